// Package session owns the console's authenticated session: the persisted
// record, its rehydration from the auth provider, live invalidation on
// password resets, and the context object the rest of the daemon reads.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cylinderhub/cylinderhub/internal/access"
)

// DefaultTTL is the absolute lifetime of a session record.
const DefaultTTL = 24 * time.Hour

// ErrInvalidRecord indicates a record missing required fields.
var ErrInvalidRecord = errors.New("session: invalid record")

// Record is the persisted proof of an authenticated principal. Times are Unix
// milliseconds. A zero PasswordChangedAt means the backing record carried no
// password epoch marker at issuance.
type Record struct {
	UID               string               `json:"uid"`
	Email             string               `json:"email,omitempty"`
	DisplayName       string               `json:"displayName,omitempty"`
	PhoneNumber       string               `json:"phoneNumber,omitempty"`
	Role              access.Role          `json:"role"`
	Permissions       access.PermissionSet `json:"permissions"`
	SessionToken      string               `json:"sessionToken"`
	IssuedAt          int64                `json:"issuedAt"`
	ExpiresAt         int64                `json:"expiresAt"`
	PasswordChangedAt int64                `json:"passwordChangedAt,omitempty"`
}

// Profile is the backing user record a session is synthesized from.
type Profile struct {
	UID               string
	Email             string
	DisplayName       string
	PhoneNumber       string
	Role              access.Role
	PasswordChangedAt int64
	Active            bool
}

// NewRecord stamps a record for profile issued at now and valid for ttl.
// Permissions are attached only for sub-admins.
func NewRecord(profile Profile, perms access.PermissionSet, token string, now time.Time, ttl time.Duration) *Record {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rec := &Record{
		UID:               profile.UID,
		Email:             profile.Email,
		DisplayName:       profile.DisplayName,
		PhoneNumber:       profile.PhoneNumber,
		Role:              profile.Role,
		SessionToken:      token,
		IssuedAt:          now.UnixMilli(),
		ExpiresAt:         now.Add(ttl).UnixMilli(),
		PasswordChangedAt: profile.PasswordChangedAt,
	}
	if profile.Role == access.RoleSubAdmin {
		rec.Permissions = perms.Clone()
	}
	return rec
}

// Validate checks the fields every persisted record must carry.
func (r *Record) Validate() error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil", ErrInvalidRecord)
	case r.UID == "":
		return fmt.Errorf("%w: uid missing", ErrInvalidRecord)
	case !r.Role.Valid():
		return fmt.Errorf("%w: role %q", ErrInvalidRecord, r.Role)
	case r.SessionToken == "":
		return fmt.Errorf("%w: token missing", ErrInvalidRecord)
	case r.ExpiresAt <= 0:
		return fmt.Errorf("%w: expiry missing", ErrInvalidRecord)
	}
	return nil
}

// Expired reports whether the record is no longer valid at now. A record
// expiring exactly at now is expired.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt <= now.UnixMilli()
}

// Grant returns the view consumed by the permission model; nil for a nil
// record.
func (r *Record) Grant() *access.Grant {
	if r == nil {
		return nil
	}
	return &access.Grant{Role: r.Role, Permissions: r.Permissions}
}

// Clone returns a deep copy, so callers can never mutate the owned record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Permissions = r.Permissions.Clone()
	return &c
}

// Decode parses and validates a persisted record.
func Decode(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PasswordInvalidates reports whether a record marker observed on the backing
// user invalidates a session issued with sessionMarker.
func PasswordInvalidates(sessionMarker, recordMarker int64) bool {
	if recordMarker <= 0 {
		return false
	}
	return sessionMarker <= 0 || recordMarker > sessionMarker
}

func encode(rec *Record) ([]byte, error) {
	return json.Marshal(rec)
}
