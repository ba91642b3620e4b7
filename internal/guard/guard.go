// Package guard checks the operator key and per-actor access tokens.
// It never mutates state.
package guard

import (
	"context"
	"crypto/subtle"

	"github.com/koustreak/omem/internal/errs"
	"github.com/koustreak/omem/internal/identity"
)

// ActorLookup resolves an actor by correlation key. identity.Store and the
// catalog cache both satisfy it.
type ActorLookup interface {
	ByCorrelationKey(ctx context.Context, key string) (*identity.Actor, error)
}

// Guard holds the operator key, read once at start-up.
type Guard struct {
	globalKey string
	actors    ActorLookup
}

// New creates a Guard. An empty globalKey rejects every global check.
func New(globalKey string, actors ActorLookup) *Guard {
	return &Guard{globalKey: globalKey, actors: actors}
}

// CheckGlobal accepts key only when it equals the configured operator key.
func (g *Guard) CheckGlobal(key string) error {
	if g.globalKey == "" || !equal(key, g.globalKey) {
		return errs.New(errs.ErrKindUnauthorized, "invalid global api key")
	}
	return nil
}

// CheckActor resolves the actor for correlationKey and accepts key only
// when it matches that actor's access token. An unknown correlation key
// fails with errs.ErrKindNotRegistered before any comparison.
func (g *Guard) CheckActor(ctx context.Context, correlationKey, key string) (*identity.Actor, error) {
	actor, err := g.actors.ByCorrelationKey(ctx, correlationKey)
	if err != nil {
		return nil, err
	}
	if !actor.VerifyToken(key) {
		return nil, errs.New(errs.ErrKindUnauthorized, "invalid user api key")
	}
	return actor, nil
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
