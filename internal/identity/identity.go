// Package identity persists registered actors: the binding between a
// generated short id, an access token and an external correlation key.
package identity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// Actor is a registered external entity such as a pharmacy.
// Records are created once at registration and never updated.
type Actor struct {
	ID             int64     `json:"id"`
	ShortID        string    `json:"shortId"`
	DisplayName    string    `json:"displayName"`
	CorrelationKey string    `json:"correlationKey"`
	AccessToken    string    `json:"accessToken,omitempty"`
	TokenHash      string    `json:"tokenHash,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// HashToken returns the hex SHA-256 digest of an access token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Sealed returns a copy of a that carries only the digest of its token.
// Copies leaving the process, such as cache entries, are sealed.
func (a *Actor) Sealed() *Actor {
	c := *a
	if c.AccessToken != "" {
		c.TokenHash = HashToken(c.AccessToken)
		c.AccessToken = ""
	}
	return &c
}

// VerifyToken reports whether token is this actor's access token. It works
// on both full and sealed actors.
func (a *Actor) VerifyToken(token string) bool {
	if token == "" {
		return false
	}
	want := a.TokenHash
	if a.AccessToken != "" {
		want = HashToken(a.AccessToken)
	}
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(want)) == 1
}

// Store is the contract for actor persistence.
type Store interface {
	// Create inserts a new actor and fills in ID and CreatedAt. A clash on
	// short id, access token or correlation key surfaces as errs.ErrKindConflict.
	Create(ctx context.Context, a *Actor) error

	// ByCorrelationKey returns the actor registered under key, or an
	// errs.ErrKindNotRegistered error.
	ByCorrelationKey(ctx context.Context, key string) (*Actor, error)
}
