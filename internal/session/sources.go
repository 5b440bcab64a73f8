package session

import (
	"context"

	"github.com/cylinderhub/cylinderhub/internal/access"
)

// ProfileSource resolves a principal's backing user record. A nil profile
// with a nil error means no such user.
type ProfileSource interface {
	GetProfile(ctx context.Context, uid string) (*Profile, error)
}

// GrantSource resolves the current permission grants of a sub-admin. A nil
// set with a nil error means the sub-admin has no grant record.
type GrantSource interface {
	GetGrants(ctx context.Context, uid string) (access.PermissionSet, error)
}

// RecordEvent is one observation of a watched user record: either its
// current password epoch marker or a watch error.
type RecordEvent struct {
	PasswordChangedAt int64
	Err               error
}

// RecordSubscription is a live watch that must be cancelled by its owner.
type RecordSubscription interface {
	Events() <-chan RecordEvent
	Cancel()
}

// RecordWatcher opens live watches on user records.
type RecordWatcher interface {
	WatchRecord(ctx context.Context, uid string) (RecordSubscription, error)
}

// Observer receives session lifecycle notifications, typically metrics.
type Observer interface {
	SessionStarted(source string, role access.Role)
	SessionEnded(reason string, role access.Role)
}

// Session start sources and end reasons reported to Observer.
const (
	SourceLogin     = "login"
	SourceCache     = "cache"
	SourceRehydrate = "rehydrate"

	EndLogout          = "logout"
	EndPasswordChanged = "password_changed"
	EndExpired         = "expired"
)

type nopObserver struct{}

func (nopObserver) SessionStarted(string, access.Role) {}
func (nopObserver) SessionEnded(string, access.Role)   {}
