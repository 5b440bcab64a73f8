package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/identity"
	"github.com/cylinderhub/cylinderhub/internal/platform/kv"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newRedisKV(t *testing.T) (*kv.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return kv.NewRedis(client, ""), mr
}

type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string) ([]byte, error) {
	return nil, f.err
}

func (f failingKV) Set(context.Context, string, []byte) error {
	return f.err
}

func (f failingKV) Delete(context.Context, string) error {
	return f.err
}

var errDisk = errors.New("disk unavailable")

func sampleRecord(role access.Role, marker int64) *Record {
	rec := &Record{
		UID:               "user-1",
		Email:             "agent@cylinderhub.test",
		DisplayName:       "Agent One",
		PhoneNumber:       "+62811000111",
		Role:              role,
		SessionToken:      GenerateSessionToken(),
		IssuedAt:          baseTime.UnixMilli(),
		ExpiresAt:         baseTime.Add(DefaultTTL).UnixMilli(),
		PasswordChangedAt: marker,
	}
	if role == access.RoleSubAdmin {
		rec.Permissions = access.PermissionSet{access.PermOrders: true}
	}
	return rec
}

type stubProfiles struct {
	mu       sync.Mutex
	profiles map[string]*Profile
	err      error
	calls    atomic.Int32
	gate     chan struct{}
}

func (s *stubProfiles) GetProfile(ctx context.Context, uid string) (*Profile, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.profiles[uid]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

type stubGrants struct {
	grants map[string]access.PermissionSet
	err    error
	calls  atomic.Int32
}

func (s *stubGrants) GetGrants(ctx context.Context, uid string) (access.PermissionSet, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.grants[uid], nil
}

type fakeSubscription struct {
	uid       string
	events    chan RecordEvent
	cancelled atomic.Bool
}

func (s *fakeSubscription) Events() <-chan RecordEvent {
	return s.events
}

func (s *fakeSubscription) Cancel() {
	s.cancelled.Store(true)
}

type fakeWatcher struct {
	mu     sync.Mutex
	subs   []*fakeSubscription
	opened chan *fakeSubscription
	err    error
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{opened: make(chan *fakeSubscription, 16)}
}

func (w *fakeWatcher) WatchRecord(ctx context.Context, uid string) (RecordSubscription, error) {
	if w.err != nil {
		return nil, w.err
	}
	// Unbuffered so a send returns only once the monitor took the event.
	sub := &fakeSubscription{uid: uid, events: make(chan RecordEvent)}
	w.mu.Lock()
	w.subs = append(w.subs, sub)
	w.mu.Unlock()
	w.opened <- sub
	return sub, nil
}

func (w *fakeWatcher) next(t *testing.T) *fakeSubscription {
	t.Helper()
	select {
	case sub := <-w.opened:
		return sub
	case <-time.After(2 * time.Second):
		t.Fatalf("no subscription opened")
		return nil
	}
}

type fakeProvider struct {
	mu         sync.Mutex
	current    *identity.Identity
	listeners  []func(*identity.Identity)
	signOuts   atomic.Int32
	signOutErr error
}

func (p *fakeProvider) Current(context.Context) (*identity.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *fakeProvider) Subscribe(fn func(*identity.Identity)) func() {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.listeners = nil
		p.mu.Unlock()
	}
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.signOuts.Add(1)
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	return p.signOutErr
}

func (p *fakeProvider) emit(ident *identity.Identity) {
	p.mu.Lock()
	p.current = ident
	fns := append([]func(*identity.Identity){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(ident)
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	started []string
	ended   []string
}

func (o *recordingObserver) SessionStarted(source string, role access.Role) {
	o.mu.Lock()
	o.started = append(o.started, source)
	o.mu.Unlock()
}

func (o *recordingObserver) SessionEnded(reason string, role access.Role) {
	o.mu.Lock()
	o.ended = append(o.ended, reason)
	o.mu.Unlock()
}

func (o *recordingObserver) endedReasons() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.ended...)
}
