package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxIdentityLen = 36

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

// Identity names a participant for token issuance. It is either
// caller-supplied or server-assigned.
type Identity string

// ParseIdentity validates a caller-supplied identity.
func ParseIdentity(s string) (Identity, error) {
	if len(s) == 0 {
		return "", ErrIdentityEmpty
	}
	if len(s) > MaxIdentityLen {
		return "", ErrIdentityTooLong
	}
	return Identity(s), nil
}

// AssignIdentity mints a server-side identity for clients that did not
// supply one.
func AssignIdentity() Identity {
	return Identity(uuid.NewString())
}
