package auth

import (
	"fmt"

	"github.com/cylinderhub/cylinderhub/internal/shared"
)

// ErrInvalidCredentials is returned for unknown users, inactive accounts and
// wrong passwords alike.
var ErrInvalidCredentials = fmt.Errorf("auth: %w", shared.ErrInvalidCredentials)
