package registration

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/koustreak/omem/internal/database"
	"github.com/koustreak/omem/internal/database/sqlite"
	"github.com/koustreak/omem/internal/errs"
	"github.com/koustreak/omem/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore enforces the same uniqueness rules as the SQL store.
type fakeStore struct {
	mu      sync.Mutex
	byKey   map[string]*identity.Actor
	byShort map[string]bool
	creates int

	// onCreate, when set, runs before each insert and may inject state.
	onCreate func(f *fakeStore)
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{byKey: map[string]*identity.Actor{}, byShort: map[string]bool{}}
}

func (f *fakeStore) Create(_ context.Context, a *identity.Actor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.onCreate != nil {
		f.onCreate(f)
	}
	if f.failWith != nil {
		return f.failWith
	}
	if f.byShort[a.ShortID] || f.byKey[a.CorrelationKey] != nil {
		return errs.New(errs.ErrKindConflict, "unique violation")
	}
	a.ID = int64(len(f.byKey) + 1)
	f.byKey[a.CorrelationKey] = a
	f.byShort[a.ShortID] = true
	return nil
}

func (f *fakeStore) ByCorrelationKey(_ context.Context, key string) (*identity.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byKey[key]; ok {
		return a, nil
	}
	return nil, errs.New(errs.ErrKindNotRegistered, "unknown")
}

func sequence(ids ...string) IDGenerator {
	i := 0
	return func() (string, error) {
		id := ids[i%len(ids)]
		i++
		return id, nil
	}
}

func TestRegister_Succeeds(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store,
		WithIDGenerator(sequence("aB3dE9")),
		WithTokenGenerator(func() string { return "tok-1" }))

	res, err := svc.Register(context.Background(), "AcmePharmacy", "TID-001")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.AccessToken)
	assert.Equal(t, "aB3dE9", res.Actor.ShortID)
	assert.Equal(t, "AcmePharmacy", res.Actor.DisplayName)
	assert.Equal(t, 1, store.creates)
}

func TestRegister_RetriesCollisions(t *testing.T) {
	store := newFakeStore()
	store.byShort["taken1"] = true
	store.byShort["taken2"] = true

	svc := NewService(store, WithIDGenerator(sequence("taken1", "taken2", "fresh1")))

	res, err := svc.Register(context.Background(), "Acme", "TID-001")
	require.NoError(t, err)
	assert.Equal(t, "fresh1", res.Actor.ShortID)
	assert.Equal(t, 3, store.creates)
}

func TestRegister_ExhaustsAfterExactlyFiveAttempts(t *testing.T) {
	store := newFakeStore()
	store.byShort["always"] = true

	calls := 0
	svc := NewService(store, WithIDGenerator(func() (string, error) {
		calls++
		return "always", nil
	}))

	_, err := svc.Register(context.Background(), "Acme", "TID-001")
	require.Error(t, err)
	assert.True(t, errs.IsExhaustedRetries(err))
	assert.Equal(t, MaxAttempts, calls)
	assert.Equal(t, MaxAttempts, store.creates)
}

func TestRegister_DuplicateKeyRejected(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	_, err := svc.Register(context.Background(), "Acme", "TID-001")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "Acme again", "TID-001")
	assert.True(t, errs.IsDuplicateActor(err))
	assert.Equal(t, 1, store.creates)
}

func TestRegister_ConcurrentDuplicateIsNotRetried(t *testing.T) {
	store := newFakeStore()
	store.onCreate = func(f *fakeStore) {
		if f.byKey["TID-001"] == nil {
			f.byKey["TID-001"] = &identity.Actor{ShortID: "winner", CorrelationKey: "TID-001"}
			f.byShort["winner"] = true
		}
	}
	svc := NewService(store, WithIDGenerator(sequence("loser1")))

	_, err := svc.Register(context.Background(), "Acme", "TID-001")
	assert.True(t, errs.IsDuplicateActor(err))
	assert.Equal(t, 1, store.creates)
}

func TestRegister_StoreFailureIsNotRetried(t *testing.T) {
	store := newFakeStore()
	store.failWith = errs.New(errs.ErrKindConnectionFailed, "db down")
	svc := NewService(store)

	_, err := svc.Register(context.Background(), "Acme", "TID-001")
	assert.True(t, errs.IsConnectionFailed(err))
	assert.Equal(t, 1, store.creates)
}

func TestRegister_GeneratorFailure(t *testing.T) {
	svc := NewService(newFakeStore(), WithIDGenerator(func() (string, error) {
		return "", errors.New("entropy exhausted")
	}))

	_, err := svc.Register(context.Background(), "Acme", "TID-001")
	assert.Error(t, err)
}

func TestRegister_ValidatesInput(t *testing.T) {
	svc := NewService(newFakeStore())

	for _, tc := range [][2]string{{"", "TID-001"}, {"Acme", "  "}} {
		_, err := svc.Register(context.Background(), tc[0], tc[1])
		assert.True(t, errs.IsInvalidInput(err), "%q/%q", tc[0], tc[1])
	}
}

func TestRandomShortID(t *testing.T) {
	re := regexp.MustCompile(`^[A-Za-z0-9]{6}$`)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id, err := RandomShortID()
		require.NoError(t, err)
		assert.Regexp(t, re, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 190)
}

// Against the real store, colliding candidates never produce two actors
// with the same short id.
func TestRegister_SQLStoreNeverDuplicatesShortID(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.New(ctx, &database.Config{Driver: database.DriverSQLite, DSN: sqlite.MemoryDSN})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, database.Migrate(ctx, db))

	store := identity.NewSQLStore(db)
	svc := NewService(store, WithIDGenerator(sequence("AAAAAA", "AAAAAA", "BBBBBB", "AAAAAA", "BBBBBB", "CCCCCC")))

	var tokens []string
	for i := 1; i <= 3; i++ {
		res, err := svc.Register(ctx, "Pharmacy", fmt.Sprintf("TID-%03d", i))
		require.NoError(t, err)
		tokens = append(tokens, res.AccessToken)
	}

	for i, want := range []string{"AAAAAA", "BBBBBB", "CCCCCC"} {
		a, err := store.ByCorrelationKey(ctx, fmt.Sprintf("TID-%03d", i+1))
		require.NoError(t, err)
		assert.Equal(t, want, a.ShortID)
		assert.Equal(t, tokens[i], a.AccessToken)
	}
}
