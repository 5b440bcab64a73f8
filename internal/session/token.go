package session

import (
	"crypto/rand"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// GenerateSessionToken returns a random opaque marker for a new session. It
// identifies the session locally and is never presented as a credential.
func GenerateSessionToken() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(time.Now().UnixNano(), 36)))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
