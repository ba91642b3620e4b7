package guard

import (
	"context"
	"testing"

	"github.com/koustreak/omem/internal/errs"
	"github.com/koustreak/omem/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupFunc func(ctx context.Context, key string) (*identity.Actor, error)

func (f lookupFunc) ByCorrelationKey(ctx context.Context, key string) (*identity.Actor, error) {
	return f(ctx, key)
}

func actors(known ...*identity.Actor) ActorLookup {
	return lookupFunc(func(_ context.Context, key string) (*identity.Actor, error) {
		for _, a := range known {
			if a.CorrelationKey == key {
				return a, nil
			}
		}
		return nil, errs.New(errs.ErrKindNotRegistered, "unknown")
	})
}

func TestCheckGlobal(t *testing.T) {
	g := New("operator-secret", actors())

	assert.NoError(t, g.CheckGlobal("operator-secret"))
	assert.True(t, errs.IsUnauthorized(g.CheckGlobal("")))
	assert.True(t, errs.IsUnauthorized(g.CheckGlobal("operator-secreT")))
	assert.True(t, errs.IsUnauthorized(g.CheckGlobal("operator-secret-but-longer")))
}

func TestCheckGlobal_EmptyConfiguredKeyRejectsAll(t *testing.T) {
	g := New("", actors())
	assert.True(t, errs.IsUnauthorized(g.CheckGlobal("")))
}

func TestCheckActor(t *testing.T) {
	acme := &identity.Actor{ShortID: "aB3dE9", CorrelationKey: "TID-001", AccessToken: "tok-acme"}
	other := &identity.Actor{ShortID: "zZ9yY8", CorrelationKey: "TID-002", AccessToken: "tok-other"}
	g := New("operator-secret", actors(acme, other))
	ctx := context.Background()

	tests := []struct {
		name    string
		key     string
		token   string
		wantErr func(error) bool
	}{
		{"own token", "TID-001", "tok-acme", nil},
		{"another actor's token", "TID-001", "tok-other", errs.IsUnauthorized},
		{"operator key is not an actor token", "TID-001", "operator-secret", errs.IsUnauthorized},
		{"empty token", "TID-001", "", errs.IsUnauthorized},
		{"unknown actor beats wrong token", "TID-404", "tok-acme", errs.IsNotRegistered},
		{"unknown actor with empty token", "TID-404", "", errs.IsNotRegistered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.CheckActor(ctx, tt.key, tt.token)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, acme, got)
				return
			}
			assert.True(t, tt.wantErr(err), "got %v", err)
			assert.Nil(t, got)
		})
	}
}

func TestCheckActor_SealedActor(t *testing.T) {
	acme := (&identity.Actor{ShortID: "aB3dE9", CorrelationKey: "TID-001", AccessToken: "tok-acme"}).Sealed()
	g := New("operator-secret", actors(acme))
	ctx := context.Background()

	got, err := g.CheckActor(ctx, "TID-001", "tok-acme")
	require.NoError(t, err)
	assert.Empty(t, got.AccessToken)

	_, err = g.CheckActor(ctx, "TID-001", acme.TokenHash)
	assert.True(t, errs.IsUnauthorized(err), "the digest itself is not a credential")
}
