package session

import (
	"context"
	"log/slog"
)

// Monitor watches the backing user record of one session and reports the
// first password change newer than the session's marker.
type Monitor struct {
	uid    string
	token  string
	cancel context.CancelFunc
	done   chan struct{}
}

// StartMonitor begins watching rec's user. onInvalidate runs at most once,
// on the monitor goroutine, with the session token of rec.
func StartMonitor(parent context.Context, watcher RecordWatcher, rec *Record, logger *slog.Logger, onInvalidate func(token string)) *Monitor {
	ctx, cancel := context.WithCancel(parent)
	m := &Monitor{uid: rec.UID, token: rec.SessionToken, cancel: cancel, done: make(chan struct{})}
	marker := rec.PasswordChangedAt
	go func() {
		defer close(m.done)
		sub, err := watcher.WatchRecord(ctx, m.uid)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("watch user record", slog.String("uid", m.uid), slog.Any("error", err))
			}
			return
		}
		defer sub.Cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				if ev.Err != nil {
					logger.Warn("user record watch error", slog.String("uid", m.uid), slog.Any("error", ev.Err))
					continue
				}
				if PasswordInvalidates(marker, ev.PasswordChangedAt) {
					if ctx.Err() != nil {
						return
					}
					onInvalidate(m.token)
					return
				}
			}
		}
	}()
	return m
}

// Stop cancels the watch without waiting. Safe to call from onInvalidate.
func (m *Monitor) Stop() {
	if m != nil {
		m.cancel()
	}
}

// Wait blocks until the monitor goroutine has released its subscription.
func (m *Monitor) Wait() {
	if m != nil {
		<-m.done
	}
}

// Token returns the session token the monitor was started for.
func (m *Monitor) Token() string {
	return m.token
}
