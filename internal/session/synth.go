package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cylinderhub/cylinderhub/internal/access"
)

// Synthesizer builds session records from the backing user store.
type Synthesizer struct {
	profiles ProfileSource
	grants   GrantSource
	now      func() time.Time
	ttl      time.Duration
	logger   *slog.Logger
	group    singleflight.Group
}

// NewSynthesizer constructs a Synthesizer. A zero ttl selects DefaultTTL.
func NewSynthesizer(profiles ProfileSource, grants GrantSource, ttl time.Duration, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Synthesizer{profiles: profiles, grants: grants, now: time.Now, ttl: ttl, logger: logger}
}

// SetClock overrides the clock used to stamp issuance. Meant for tests.
func (s *Synthesizer) SetClock(now func() time.Time) {
	s.now = now
}

// Synthesize builds a fresh record for uid. It returns a nil record when the
// user does not exist or is deactivated. Concurrent calls for the same uid
// share a single lookup.
func (s *Synthesizer) Synthesize(ctx context.Context, uid string) (*Record, error) {
	v, err, _ := s.group.Do(uid, func() (any, error) {
		return s.build(ctx, uid)
	})
	if err != nil {
		return nil, err
	}
	rec, _ := v.(*Record)
	return rec.Clone(), nil
}

func (s *Synthesizer) build(ctx context.Context, uid string) (*Record, error) {
	profile, err := s.profiles.GetProfile(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("session: profile %s: %w", uid, err)
	}
	if profile == nil {
		return nil, nil
	}
	if !profile.Active {
		s.logger.Info("skip inactive profile", slog.String("uid", uid))
		return nil, nil
	}
	var perms access.PermissionSet
	if profile.Role == access.RoleSubAdmin && s.grants != nil {
		perms, err = s.grants.GetGrants(ctx, uid)
		if err != nil {
			return nil, fmt.Errorf("session: grants %s: %w", uid, err)
		}
	}
	return NewRecord(*profile, perms, GenerateSessionToken(), s.now(), s.ttl), nil
}
