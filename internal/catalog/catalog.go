// Package catalog records where each actor's objects live and when they
// were last confirmed.
package catalog

import (
	"context"
	"time"

	"github.com/koustreak/omem/internal/datatype"
)

// PrivateURL is stored in place of a URL for restricted tags.
const PrivateURL = "-"

// Record is one object location. There is at most one per
// (CorrelationKey, Tag).
type Record struct {
	ID             int64        `json:"id"`
	ActorID        int64        `json:"actorId"`
	ObjectURL      string       `json:"objectUrl"`
	Tag            datatype.Tag `json:"dataType"`
	CorrelationKey string       `json:"correlationKey"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// Store is the contract for object location persistence.
type Store interface {
	// Upsert creates the record for (r.CorrelationKey, r.Tag) or, when one
	// exists, only moves its UpdatedAt forward to now. It reports whether
	// a new record was created.
	Upsert(ctx context.Context, r Record) (*Record, bool, error)

	// Get returns the record for (key, tag) or an errs.ErrKindNotFound error.
	Get(ctx context.Context, key string, tag datatype.Tag) (*Record, error)

	// ListByActor returns every record of one actor ordered by tag.
	ListByActor(ctx context.Context, key string) ([]Record, error)

	// List returns records across all actors, filtered by tag unless tag is empty,
	// ordered by correlation key then tag.
	List(ctx context.Context, tag datatype.Tag) ([]Record, error)

	// Delete removes the record for (key, tag) or returns errs.ErrKindNotFound.
	Delete(ctx context.Context, key string, tag datatype.Tag) error
}

// URLMap folds records into a tag -> url map.
func URLMap(records []Record) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		out[string(r.Tag)] = r.ObjectURL
	}
	return out
}
