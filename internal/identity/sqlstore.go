package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/koustreak/omem/internal/database"
	"github.com/koustreak/omem/internal/errs"
)

var actorColumns = []string{"id", "short_id", "display_name", "correlation_key", "access_token", "created_at"}

// SQLStore is a database.DB-backed actor store. It works on every dialect
// the database package supports.
type SQLStore struct {
	db  database.DB
	now func() time.Time
}

// NewSQLStore creates a SQLStore. The tables must already exist (see database.Migrate).
func NewSQLStore(db database.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Create inserts a and reads back its surrogate id.
func (s *SQLStore) Create(ctx context.Context, a *Actor) error {
	if a.ShortID == "" || a.CorrelationKey == "" || a.AccessToken == "" {
		return errs.New(errs.ErrKindInvalidInput, "short id, correlation key and access token are required")
	}

	created := s.now().UTC().Truncate(time.Microsecond)
	q := s.db.Dialect().Rebind(`
		INSERT INTO actors (short_id, display_name, correlation_key, access_token, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.Exec(ctx, q, a.ShortID, a.DisplayName, a.CorrelationKey, a.AccessToken, created.UnixMicro()); err != nil {
		return err
	}

	// RETURNING is not portable to MySQL; the short id is unique, so read it back.
	stored, err := s.scanOne(ctx, "short_id", a.ShortID)
	if err != nil {
		return fmt.Errorf("create actor %s: re-fetch failed: %w", a.CorrelationKey, err)
	}
	a.ID = stored.ID
	a.CreatedAt = stored.CreatedAt
	return nil
}

// ByCorrelationKey returns the actor registered under key.
func (s *SQLStore) ByCorrelationKey(ctx context.Context, key string) (*Actor, error) {
	a, err := s.scanOne(ctx, "correlation_key", key)
	if errs.IsNotFound(err) {
		return nil, errs.Newf(errs.ErrKindNotRegistered, "no actor registered for %q", key)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *SQLStore) scanOne(ctx context.Context, column string, value any) (*Actor, error) {
	q, args, err := database.Select(database.TableActors, s.db.Dialect()).
		Columns(actorColumns...).
		Where(column, "=", value).
		Build()
	if err != nil {
		return nil, err
	}

	row, err := s.db.QueryRow(ctx, q, args...)
	if err != nil {
		return nil, err
	}

	var a Actor
	var created int64
	if err := row.Scan(&a.ID, &a.ShortID, &a.DisplayName, &a.CorrelationKey, &a.AccessToken, &created); err != nil {
		return nil, err
	}
	a.CreatedAt = time.UnixMicro(created).UTC()
	return &a, nil
}
