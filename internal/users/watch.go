package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/cylinderhub/cylinderhub/internal/session"
)

// Channel returns the Pub/Sub channel carrying snapshots of user id.
func Channel(id string) string {
	return "users:" + id
}

// Publisher publishes user snapshots over Redis Pub/Sub.
type Publisher struct {
	client *redis.Client
}

// NewPublisher constructs a Publisher.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends snap to every watcher of the user.
func (p *Publisher) Publish(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, Channel(snap.ID), data).Err(); err != nil {
		return fmt.Errorf("users: publish %s: %w", snap.ID, err)
	}
	return nil
}

// Loader reads the current user record for the initial snapshot.
type Loader interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// Watcher opens live subscriptions on single user records.
type Watcher struct {
	client *redis.Client
	loader Loader
	logger *slog.Logger
}

// NewWatcher constructs a Watcher.
func NewWatcher(client *redis.Client, loader Loader, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{client: client, loader: loader, logger: logger}
}

// WatchRecord subscribes to user uid. The first event carries the stored
// record, later events carry published snapshots. The subscription is
// confirmed before WatchRecord returns, so no publish issued afterwards is
// missed.
func (w *Watcher) WatchRecord(ctx context.Context, uid string) (session.RecordSubscription, error) {
	pubsub := w.client.Subscribe(ctx, Channel(uid))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("users: subscribe %s: %w", uid, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		events: make(chan session.RecordEvent, 8),
		cancel: cancel,
		done:   make(chan struct{}),
		pubsub: pubsub,
	}
	go sub.run(ctx, w, uid, pubsub.Channel())
	return sub, nil
}

// Subscription is a live watch on one user record.
type Subscription struct {
	events chan session.RecordEvent
	cancel context.CancelFunc
	done   chan struct{}
	pubsub *redis.PubSub
	once   sync.Once
}

// Events delivers snapshots or errors until the subscription is cancelled.
func (s *Subscription) Events() <-chan session.RecordEvent {
	return s.events
}

// Cancel releases the Redis subscription and waits for the reader to stop.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		_ = s.pubsub.Close()
		<-s.done
	})
}

func (s *Subscription) run(ctx context.Context, w *Watcher, uid string, messages <-chan *redis.Message) {
	defer close(s.done)
	defer close(s.events)

	initial, err := w.loader.GetUserByID(ctx, uid)
	switch {
	case err == nil:
		if !s.emit(ctx, session.RecordEvent{PasswordChangedAt: initial.PasswordChangedAt}) {
			return
		}
	case errors.Is(err, ErrNotFound):
	default:
		if !s.emit(ctx, session.RecordEvent{Err: fmt.Errorf("users: load %s: %w", uid, err)}) {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var snap Snapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				w.logger.Warn("decode user snapshot", slog.String("uid", uid), slog.Any("error", err))
				if !s.emit(ctx, session.RecordEvent{Err: fmt.Errorf("users: decode snapshot: %w", err)}) {
					return
				}
				continue
			}
			if !s.emit(ctx, session.RecordEvent{PasswordChangedAt: snap.PasswordChangedAt}) {
				return
			}
		}
	}
}

func (s *Subscription) emit(ctx context.Context, ev session.RecordEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ session.RecordWatcher = (*Watcher)(nil)
