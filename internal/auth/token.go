// Package auth mints and verifies the short-lived bearer tokens handed to
// clients before they connect to the media provider.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teamcollab/huddle/internal/domain"
)

var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
	ErrBadSignature   = errors.New("token signature mismatch")
)

// Minter issues HMAC-SHA256 signed tokens of the form
// base64(identity).expiry.nonce.signature.
type Minter struct {
	secret []byte
	ttl    time.Duration
}

func NewMinter(secret string, ttl time.Duration) *Minter {
	return &Minter{secret: []byte(secret), ttl: ttl}
}

// Mint issues a token for identity. An empty identity gets a server-assigned
// one; the effective identity is returned alongside the token.
func (m *Minter) Mint(identity domain.Identity) (string, domain.Identity) {
	if identity == "" {
		identity = domain.AssignIdentity()
	}
	expiry := time.Now().Add(m.ttl).Unix()
	payload := fmt.Sprintf("%s.%d.%s",
		base64.RawURLEncoding.EncodeToString([]byte(identity)),
		expiry,
		uuid.NewString(),
	)
	return payload + "." + m.sign(payload), identity
}

// Verify checks signature and expiry and returns the embedded identity.
func (m *Minter) Verify(token string) (domain.Identity, error) {
	i := strings.LastIndex(token, ".")
	if i < 0 {
		return "", ErrTokenMalformed
	}
	payload, sig := token[:i], token[i+1:]
	if !hmac.Equal([]byte(sig), []byte(m.sign(payload))) {
		return "", ErrBadSignature
	}

	parts := strings.Split(payload, ".")
	if len(parts) != 3 {
		return "", ErrTokenMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrTokenMalformed
	}
	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", ErrTokenMalformed
	}
	if time.Now().Unix() > expiry {
		return "", ErrTokenExpired
	}
	return domain.Identity(raw), nil
}

func (m *Minter) sign(payload string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
