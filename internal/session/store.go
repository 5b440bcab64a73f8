package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cylinderhub/cylinderhub/internal/platform/kv"
)

// KeyPattern matches every persisted session key.
const KeyPattern = "session:*"

// Key returns the storage key of the session for device.
func Key(device string) string {
	return "session:" + device
}

// signedOutKey holds the uid of a principal that logged out while the
// provider could not be signed out.
func signedOutKey(device string) string {
	return "signedout:" + device
}

// Store persists the device's single session record. It is the only writer of
// that key.
type Store struct {
	kv        kv.Store
	key       string
	signedOut string
	now       func() time.Time
	logger    *slog.Logger
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithStoreClock overrides the clock used for expiry checks.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithStoreLogger sets the logger used for self-heal reports.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore constructs a Store for device on top of store.
func NewStore(store kv.Store, device string, opts ...StoreOption) *Store {
	s := &Store{
		kv:        store,
		key:       Key(device),
		signedOut: signedOutKey(device),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasValidSession reports whether a readable, unexpired record is stored.
func (s *Store) HasValidSession(ctx context.Context) (bool, error) {
	rec, err := s.GetSession(ctx)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// GetSession returns the stored record, or nil when none is stored or the
// stored one is corrupt or expired. Corrupt and expired entries are removed.
func (s *Store) GetSession(ctx context.Context) (*Record, error) {
	data, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: read: %w", err)
	}
	rec, reason, cause := Inspect(data, s.now())
	if reason != "" {
		s.discard(ctx, reason, cause)
		return nil, nil
	}
	return rec, nil
}

// Discard reasons reported by Inspect.
const (
	DiscardCorrupt = "corrupt"
	DiscardExpired = "expired"
)

// Inspect applies the stored-session validity rule to raw data. A usable
// record comes back with an empty reason; otherwise reason names why the
// entry must be discarded and cause carries the decode error, if any.
func Inspect(data []byte, now time.Time) (rec *Record, reason string, cause error) {
	rec, err := Decode(data)
	if err != nil {
		return nil, DiscardCorrupt, err
	}
	if rec.Expired(now) {
		return nil, DiscardExpired, nil
	}
	return rec, "", nil
}

// SaveSession persists rec, replacing any previous session.
func (s *Store) SaveSession(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	data, err := encode(rec)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

// ClearSession deletes the stored record. Clearing twice is a no-op.
func (s *Store) ClearSession(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// MarkSignedOut records that uid logged out but may still be signed in with
// the provider.
func (s *Store) MarkSignedOut(ctx context.Context, uid string) error {
	if err := s.kv.Set(ctx, s.signedOut, []byte(uid)); err != nil {
		return fmt.Errorf("session: mark signed out: %w", err)
	}
	return nil
}

// SignedOut returns the uid recorded by MarkSignedOut, or "" when none is.
func (s *Store) SignedOut(ctx context.Context) (string, error) {
	data, err := s.kv.Get(ctx, s.signedOut)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("session: read sign-out marker: %w", err)
	}
	return string(data), nil
}

// ClearSignedOut forgets the sign-out marker.
func (s *Store) ClearSignedOut(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.signedOut); err != nil {
		return fmt.Errorf("session: clear sign-out marker: %w", err)
	}
	return nil
}

func (s *Store) discard(ctx context.Context, reason string, cause error) {
	attrs := []any{slog.String("reason", reason)}
	if cause != nil {
		attrs = append(attrs, slog.Any("error", cause))
	}
	s.logger.Info("discard stored session", attrs...)
	if err := s.kv.Delete(ctx, s.key); err != nil {
		s.logger.Warn("delete stored session", slog.Any("error", err))
	}
}
