package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cylinderhub/cylinderhub/internal/identity"
)

// Snapshot is a consistent view of the session context.
type Snapshot struct {
	Session *Record
	Loading bool
}

// Context owns the in-memory session of the console. The held record is only
// ever replaced wholesale; readers receive copies.
type Context struct {
	store    *Store
	synth    *Synthesizer
	watcher  RecordWatcher
	provider identity.Provider
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	// opMu serialises transitions (login, logout, adoption, invalidation)
	// and their store writes. mu guards the fields below for readers.
	opMu sync.Mutex

	mu          sync.RWMutex
	current     *Record
	loading     bool
	monitor     *Monitor
	ready       chan struct{}
	readyOnce   sync.Once
	base        context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	closed      bool

	tasks sync.WaitGroup
}

// Deps groups the collaborators of a Context.
type Deps struct {
	Store       *Store
	Synthesizer *Synthesizer
	Watcher     RecordWatcher
	Provider    identity.Provider
	Observer    Observer
	Logger      *slog.Logger
	// Clock drives expiry checks. Nil means time.Now.
	Clock func() time.Time
}

// NewContext constructs a Context in the loading state. Call Start to
// resolve it.
func NewContext(deps Deps) *Context {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Context{
		store:    deps.Store,
		synth:    deps.Synthesizer,
		watcher:  deps.Watcher,
		provider: deps.Provider,
		observer: observer,
		logger:   logger,
		now:      now,
		loading:  true,
		ready:    make(chan struct{}),
	}
}

// Start resolves the initial session. The cached record and the provider
// identity are read in parallel; when the provider is signed in but no valid
// record is cached, a record is synthesized from the user profile. Start
// then subscribes to provider identity changes for the lifetime of ctx.
func (c *Context) Start(ctx context.Context) {
	base, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		c.settle()
		return
	}
	c.base, c.cancel = base, cancel
	c.mu.Unlock()

	var (
		cached *Record
		ident  *identity.Identity
	)
	g, gctx := errgroup.WithContext(base)
	g.Go(func() error {
		rec, err := c.store.GetSession(gctx)
		if err != nil {
			c.logger.Warn("read cached session", slog.Any("error", err))
			return nil
		}
		cached = rec
		return nil
	})
	if c.provider != nil {
		g.Go(func() error {
			cur, err := c.provider.Current(gctx)
			if err != nil {
				c.logger.Warn("read provider identity", slog.Any("error", err))
				return nil
			}
			ident = cur
			return nil
		})
	}
	_ = g.Wait()

	if cached != nil {
		c.opMu.Lock()
		if c.peek() == nil {
			c.replace(cached)
			c.observer.SessionStarted(SourceCache, cached.Role)
		}
		c.opMu.Unlock()
	} else if ident != nil && !c.resumeSignOut(base, ident.UID) {
		c.rehydrate(base, ident.UID)
	}

	c.settle()

	if c.provider != nil {
		unsubscribe := c.provider.Subscribe(c.onIdentity)
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			unsubscribe()
			return
		}
		c.unsubscribe = unsubscribe
		c.mu.Unlock()
	}
}

func (c *Context) settle() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })
}

// resumeSignOut finishes a logout whose provider sign-out failed in an
// earlier run. It reports whether uid must stay signed out.
func (c *Context) resumeSignOut(ctx context.Context, uid string) bool {
	pending, err := c.store.SignedOut(ctx)
	if err != nil {
		c.logger.Warn("read sign-out marker", slog.Any("error", err))
		return false
	}
	if pending == "" || pending != uid {
		return false
	}
	c.logger.Info("retrying provider sign out after logout", slog.String("uid", uid))
	if err := c.signOut(ctx); err != nil {
		return true
	}
	if err := c.store.ClearSignedOut(ctx); err != nil {
		c.logger.Warn("clear sign-out marker", slog.Any("error", err))
	}
	return true
}

// Current returns a copy of the session, or nil when signed out. A session
// past its expiry is ended on read.
func (c *Context) Current() *Record {
	return c.Snapshot().Session
}

// IsLoading reports whether the initial session is still being resolved.
func (c *Context) IsLoading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Snapshot returns session and loading state read together.
func (c *Context) Snapshot() Snapshot {
	c.expireIfDue()
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{Session: c.current.Clone(), Loading: c.loading}
	if snap.Session != nil && snap.Session.Expired(now) {
		snap.Session = nil
	}
	return snap
}

// Ready is closed once the initial session is resolved.
func (c *Context) Ready() <-chan struct{} {
	return c.ready
}

// Login persists rec and adopts it, replacing any current session. On a
// storage failure the in-memory session is left untouched.
func (c *Context) Login(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.Expired(c.now()) {
		return fmt.Errorf("%w: already expired", ErrInvalidRecord)
	}
	owned := rec.Clone()

	c.opMu.Lock()
	defer c.opMu.Unlock()
	if err := c.store.SaveSession(ctx, owned); err != nil {
		return err
	}
	if err := c.store.ClearSignedOut(ctx); err != nil {
		c.logger.Warn("clear sign-out marker", slog.Any("error", err))
	}
	c.replace(owned)
	c.observer.SessionStarted(SourceLogin, owned.Role)
	return nil
}

// Logout clears the stored and in-memory session and signs out of the
// provider. A provider failure is logged and the session is gone either way;
// the principal is then kept from rehydrating until the sign-out succeeds.
func (c *Context) Logout(ctx context.Context) error {
	c.opMu.Lock()
	prev := c.peek()
	if err := c.store.ClearSession(ctx); err != nil {
		c.opMu.Unlock()
		return err
	}
	c.replace(nil)
	c.opMu.Unlock()

	if prev != nil {
		c.observer.SessionEnded(EndLogout, prev.Role)
	}
	if err := c.signOut(ctx); err != nil && prev != nil {
		if err := c.store.MarkSignedOut(ctx, prev.UID); err != nil {
			c.logger.Warn("record sign-out marker", slog.String("uid", prev.UID), slog.Any("error", err))
		}
	}
	return nil
}

// Close stops the monitor and the provider subscription and waits for
// in-flight rehydrations.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe, cancel, monitor := c.unsubscribe, c.cancel, c.monitor
	c.monitor = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	monitor.Stop()
	c.tasks.Wait()
	monitor.Wait()
}

func (c *Context) onIdentity(ident *identity.Identity) {
	if ident == nil || ident.UID == "" {
		return
	}
	// The presence check happens before any fetch is issued so an explicit
	// login is never clobbered.
	c.expireIfDue()
	c.mu.RLock()
	skip := c.current != nil || c.closed || c.base == nil
	base := c.base
	c.mu.RUnlock()
	if skip {
		return
	}
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		c.rehydrate(base, ident.UID)
	}()
}

func (c *Context) rehydrate(ctx context.Context, uid string) {
	if c.synth == nil {
		return
	}
	rec, err := c.synth.Synthesize(ctx, uid)
	if err != nil {
		c.logger.Warn("rehydrate session", slog.String("uid", uid), slog.Any("error", err))
		return
	}
	if rec == nil {
		c.logger.Warn("rehydrate session: no profile", slog.String("uid", uid))
		return
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.peek() != nil {
		c.logger.Debug("rehydrate session: already signed in", slog.String("uid", uid))
		return
	}
	if err := c.store.SaveSession(ctx, rec); err != nil {
		c.logger.Warn("persist rehydrated session", slog.String("uid", uid), slog.Any("error", err))
		return
	}
	c.replace(rec)
	c.observer.SessionStarted(SourceRehydrate, rec.Role)
}

// invalidate drops the session identified by token after the monitor saw a
// newer password.
func (c *Context) invalidate(token string) {
	c.end(token, EndPasswordChanged)
}

// expireIfDue ends the held session once its lifetime is over.
func (c *Context) expireIfDue() {
	c.mu.RLock()
	cur := c.current
	c.mu.RUnlock()
	if cur != nil && cur.Expired(c.now()) {
		c.end(cur.SessionToken, EndExpired)
	}
}

// end drops the session identified by token, clears it from the store and
// signs out of the provider. A token that no longer matches is ignored.
func (c *Context) end(token, reason string) {
	c.opMu.Lock()
	cur := c.peek()
	if cur == nil || cur.SessionToken != token {
		c.opMu.Unlock()
		return
	}
	ctx := context.Background()
	if err := c.store.ClearSession(ctx); err != nil {
		c.logger.Error("clear invalidated session", slog.String("uid", cur.UID), slog.Any("error", err))
	}
	c.replace(nil)
	c.opMu.Unlock()

	msg := "session invalidated by password change"
	if reason == EndExpired {
		msg = "session expired"
	}
	c.logger.Info(msg, slog.String("uid", cur.UID), slog.String("role", string(cur.Role)))
	c.observer.SessionEnded(reason, cur.Role)
	_ = c.signOut(ctx)
}

func (c *Context) signOut(ctx context.Context) error {
	if c.provider == nil {
		return nil
	}
	err := c.provider.SignOut(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("provider sign out", slog.Any("error", err))
	}
	return err
}

func (c *Context) peek() *Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// replace swaps the held record and restarts the monitor when the monitored
// identity changed. Callers hold opMu.
func (c *Context) replace(rec *Record) {
	c.mu.Lock()
	c.current = rec
	prev := c.monitor
	keep := prev != nil && rec != nil && rec.Role.Monitored() && prev.Token() == rec.SessionToken
	if !keep {
		c.monitor = nil
		if rec != nil && rec.Role.Monitored() && c.watcher != nil && !c.closed {
			base := c.base
			if base == nil {
				base = context.Background()
			}
			c.monitor = StartMonitor(base, c.watcher, rec, c.logger, c.invalidate)
		}
	}
	c.mu.Unlock()
	if !keep {
		prev.Stop()
	}
}
