// Package identity is the auth provider contract the console consumes, plus
// a local provider that persists the signed-in identity on the device.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cylinderhub/cylinderhub/internal/platform/kv"
)

// Identity is the principal the provider vouches for.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
}

// Provider reports identity changes and signs principals out.
type Provider interface {
	Current(ctx context.Context) (*Identity, error)
	// Subscribe registers fn for identity changes. A nil identity means the
	// provider signed out. The returned func removes the listener.
	Subscribe(fn func(*Identity)) (cancel func())
	SignOut(ctx context.Context) error
}

// Local is a Provider whose credentials live in the device key-value store,
// so an identity survives a daemon restart.
type Local struct {
	store  kv.Store
	key    string
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[int]func(*Identity)
	next      int
}

// NewLocal constructs a Local provider for device.
func NewLocal(store kv.Store, device string, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		store:     store,
		key:       "identity:" + device,
		logger:    logger,
		listeners: make(map[int]func(*Identity)),
	}
}

// Current returns the persisted identity, or nil when signed out. A corrupt
// entry is dropped and reported as signed out.
func (p *Local) Current(ctx context.Context) (*Identity, error) {
	data, err := p.store.Get(ctx, p.key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity: read: %w", err)
	}
	var ident Identity
	if err := json.Unmarshal(data, &ident); err != nil || ident.UID == "" {
		p.logger.Warn("drop corrupt identity", slog.Any("error", err))
		if err := p.store.Delete(ctx, p.key); err != nil {
			p.logger.Warn("delete corrupt identity", slog.Any("error", err))
		}
		return nil, nil
	}
	return &ident, nil
}

// SignIn persists ident and notifies listeners.
func (p *Local) SignIn(ctx context.Context, ident Identity) error {
	if ident.UID == "" {
		return errors.New("identity: uid required")
	}
	data, err := json.Marshal(ident)
	if err != nil {
		return err
	}
	if err := p.store.Set(ctx, p.key, data); err != nil {
		return fmt.Errorf("identity: sign in: %w", err)
	}
	p.notify(&ident)
	return nil
}

// SignOut forgets the persisted identity and notifies listeners.
func (p *Local) SignOut(ctx context.Context) error {
	if err := p.store.Delete(ctx, p.key); err != nil {
		return fmt.Errorf("identity: sign out: %w", err)
	}
	p.notify(nil)
	return nil
}

// Subscribe implements Provider.
func (p *Local) Subscribe(fn func(*Identity)) func() {
	p.mu.Lock()
	id := p.next
	p.next++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Local) notify(ident *Identity) {
	p.mu.Lock()
	fns := make([]func(*Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		var copied *Identity
		if ident != nil {
			c := *ident
			copied = &c
		}
		fn(copied)
	}
}

var _ Provider = (*Local)(nil)
