package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/koustreak/omem/internal/database"
	"github.com/koustreak/omem/internal/datatype"
	"github.com/koustreak/omem/internal/errs"
)

var recordColumns = []string{"id", "actor_id", "object_url", "data_type", "correlation_key", "updated_at"}

// SQLStore is a database.DB-backed catalog.
type SQLStore struct {
	db  database.DB
	now func() time.Time
}

// NewSQLStore creates a SQLStore. The tables must already exist (see database.Migrate).
func NewSQLStore(db database.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Upsert bumps an existing record or inserts a new one. Two confirmations
// racing on the same pair both end up reading the single stored row.
func (s *SQLStore) Upsert(ctx context.Context, r Record) (*Record, bool, error) {
	if r.CorrelationKey == "" || r.Tag == "" || r.ActorID == 0 {
		return nil, false, errs.New(errs.ErrKindInvalidInput, "actor, correlation key and data type are required")
	}
	now := s.now().UTC().Truncate(time.Microsecond).UnixMicro()

	n, err := s.bump(ctx, r.CorrelationKey, r.Tag, now)
	if err != nil {
		return nil, false, err
	}

	created := false
	if n == 0 {
		q := s.db.Dialect().Rebind(`
			INSERT INTO object_locations (actor_id, object_url, data_type, correlation_key, updated_at)
			VALUES (?, ?, ?, ?, ?)`)
		_, err := s.db.Exec(ctx, q, r.ActorID, r.ObjectURL, string(r.Tag), r.CorrelationKey, now)
		switch {
		case err == nil:
			created = true
		case errs.IsConflict(err):
			// The record exists and is already at least as new as now, or
			// a concurrent confirmation inserted it first.
		default:
			return nil, false, err
		}
	}

	stored, err := s.Get(ctx, r.CorrelationKey, r.Tag)
	if err != nil {
		return nil, false, fmt.Errorf("upsert %s/%s: re-fetch failed: %w", r.CorrelationKey, r.Tag, err)
	}
	return stored, created, nil
}

// bump moves updated_at forward to now. It matches nothing when the stored
// timestamp is already at or past now, so updated_at never goes backwards.
func (s *SQLStore) bump(ctx context.Context, key string, tag datatype.Tag, now int64) (int64, error) {
	q := s.db.Dialect().Rebind(`
		UPDATE object_locations
		SET updated_at = ?
		WHERE correlation_key = ? AND data_type = ? AND updated_at < ?`)
	return s.db.Exec(ctx, q, now, key, string(tag), now)
}

// Get returns the record for (key, tag).
func (s *SQLStore) Get(ctx context.Context, key string, tag datatype.Tag) (*Record, error) {
	q, args, err := database.Select(database.TableObjectLocations, s.db.Dialect()).
		Columns(recordColumns...).
		Where("correlation_key", "=", key).
		Where("data_type", "=", string(tag)).
		Build()
	if err != nil {
		return nil, err
	}

	row, err := s.db.QueryRow(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	rec, err := scanRecord(row)
	if errs.IsNotFound(err) {
		return nil, errs.Newf(errs.ErrKindNotFound, "no %s object for %q", tag, key)
	}
	return rec, err
}

// ListByActor returns every record of one actor.
func (s *SQLStore) ListByActor(ctx context.Context, key string) ([]Record, error) {
	return s.list(ctx, database.Select(database.TableObjectLocations, s.db.Dialect()).
		Columns(recordColumns...).
		Where("correlation_key", "=", key).
		OrderBy("data_type", database.Asc))
}

// List returns records across all actors, optionally filtered by tag.
func (s *SQLStore) List(ctx context.Context, tag datatype.Tag) ([]Record, error) {
	return s.list(ctx, database.Select(database.TableObjectLocations, s.db.Dialect()).
		Columns(recordColumns...).
		WhereIf(tag != "", "data_type", "=", string(tag)).
		OrderBy("correlation_key", database.Asc).
		OrderBy("data_type", database.Asc))
}

// Delete removes the record for (key, tag).
func (s *SQLStore) Delete(ctx context.Context, key string, tag datatype.Tag) error {
	q := s.db.Dialect().Rebind(`DELETE FROM object_locations WHERE correlation_key = ? AND data_type = ?`)
	n, err := s.db.Exec(ctx, q, key, string(tag))
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.Newf(errs.ErrKindNotFound, "no %s object for %q", tag, key)
	}
	return nil
}

func (s *SQLStore) list(ctx context.Context, b *database.SelectBuilder) ([]Record, error) {
	q, args, err := b.Build()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var r Record
	var tag string
	var updated int64
	if err := row.Scan(&r.ID, &r.ActorID, &r.ObjectURL, &tag, &r.CorrelationKey, &updated); err != nil {
		return nil, err
	}
	r.Tag = datatype.Tag(tag)
	r.UpdatedAt = time.UnixMicro(updated).UTC()
	return &r, nil
}
