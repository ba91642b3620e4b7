package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/omem/internal/catalog"
	"github.com/koustreak/omem/internal/datatype"
	"github.com/koustreak/omem/internal/errs"
	"github.com/koustreak/omem/internal/identity"
	"github.com/koustreak/omem/internal/logger"
	"github.com/koustreak/omem/internal/metrics"
)

// Cached views, also used as metric labels.
const (
	viewActor   = "actor"
	viewEntries = "entries"
	viewList    = "list"
)

// Row is one aggregate listing row: {<actorKind>: correlationKey, TAG: url, ...}.
type Row map[string]string

// ActorLookup resolves an actor by correlation key.
type ActorLookup interface {
	ByCorrelationKey(ctx context.Context, key string) (*identity.Actor, error)
}

// Catalog is a read-through cache over the actor and catalog stores.
// Actor records are immutable and cached without expiry. Listings are keyed
// by a generation counter held in the backend; Invalidate bumps it, so a
// load that raced with a write can never be served afterwards.
type Catalog struct {
	backend Backend
	actors  ActorLookup
	records catalog.Store
	tags    *datatype.Set
	kind    string
	ttl     time.Duration
	log     *logger.Logger
}

// NewCatalog creates a Catalog for actors of the given kind.
func NewCatalog(backend Backend, actors ActorLookup, records catalog.Store, tags *datatype.Set, kind string, ttl time.Duration, log *logger.Logger) *Catalog {
	if log == nil {
		log = logger.Nop()
	}
	return &Catalog{
		backend: backend,
		actors:  actors,
		records: records,
		tags:    tags,
		kind:    strings.ToLower(kind),
		ttl:     ttl,
		log:     log,
	}
}

// ByCorrelationKey returns the sealed actor registered under key: the access
// token is replaced by its digest before it reaches the backend. Unknown keys
// are not cached, so a later registration is visible immediately.
func (c *Catalog) ByCorrelationKey(ctx context.Context, key string) (*identity.Actor, error) {
	return readThrough(ctx, c, viewActor, "", actorKey(key), 0, func(ctx context.Context) (*identity.Actor, error) {
		a, err := c.actors.ByCorrelationKey(ctx, key)
		if err != nil {
			return nil, err
		}
		return a.Sealed(), nil
	})
}

// Entries returns the tag -> url map of one actor.
func (c *Catalog) Entries(ctx context.Context, key string) (map[string]string, error) {
	return readThrough(ctx, c, viewEntries, entriesGenKey(key), entriesKey(key), c.ttl, func(ctx context.Context) (map[string]string, error) {
		records, err := c.records.ListByActor(ctx, key)
		if err != nil {
			return nil, err
		}
		return catalog.URLMap(records), nil
	})
}

// ListAll groups every record, optionally filtered by rawTag, into one row per
// actor ordered by correlation key.
func (c *Catalog) ListAll(ctx context.Context, kind, rawTag string) ([]Row, error) {
	if !strings.EqualFold(strings.TrimSpace(kind), c.kind) {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported actor kind %q", kind)
	}
	var tag datatype.Tag
	if strings.TrimSpace(rawTag) != "" {
		t, err := c.tags.Parse(rawTag)
		if err != nil {
			return nil, err
		}
		tag = t
	}

	return readThrough(ctx, c, viewList, c.listGenKey(), c.listKey(tag), c.ttl, func(ctx context.Context) ([]Row, error) {
		records, err := c.records.List(ctx, tag)
		if err != nil {
			return nil, err
		}
		return c.group(records), nil
	})
}

// Invalidate retires the listing of key and every aggregate listing by
// moving their generations forward, then deletes the retired entries.
func (c *Catalog) Invalidate(ctx context.Context, key string) error {
	entriesGen, err := c.backend.Incr(ctx, entriesGenKey(key))
	if err != nil {
		return err
	}
	listGen, err := c.backend.Incr(ctx, c.listGenKey())
	if err != nil {
		return err
	}

	keys := []string{versioned(entriesKey(key), entriesGen-1), versioned(c.listKey(""), listGen-1)}
	for _, t := range c.tags.All() {
		keys = append(keys, versioned(c.listKey(t), listGen-1))
	}
	return c.backend.Delete(ctx, keys...)
}

func (c *Catalog) group(records []catalog.Record) []Row {
	rows := make([]Row, 0)
	index := make(map[string]int)
	for _, r := range records {
		i, ok := index[r.CorrelationKey]
		if !ok {
			i = len(rows)
			index[r.CorrelationKey] = i
			rows = append(rows, Row{c.kind: r.CorrelationKey})
		}
		rows[i][string(r.Tag)] = r.ObjectURL
	}
	return rows
}

func (c *Catalog) listKey(tag datatype.Tag) string {
	return "list:" + c.kind + ":" + string(tag)
}

func (c *Catalog) listGenKey() string { return "gen:list:" + c.kind }

func actorKey(key string) string      { return "actor:" + key }
func entriesKey(key string) string    { return "entries:" + key }
func entriesGenKey(key string) string { return "gen:entries:" + key }

// versioned appends a generation to key. Generations are digits only, so the
// suffix after the last '#' is unambiguous.
func versioned(key string, gen int64) string {
	return key + "#" + strconv.FormatInt(gen, 10)
}

// generation reads the counter at genKey. A counter that was never bumped is 0.
func (c *Catalog) generation(ctx context.Context, genKey string) (int64, error) {
	raw, ok, err := c.backend.Get(ctx, genKey)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, errs.Wrap(errs.ErrKindInvalidInput, "generation "+genKey+" holds a non-integer", err)
	}
	return n, nil
}

// readThrough serves key from the backend or computes it with load and
// stores the result. With a genKey, key is qualified by the current
// generation and the result is only stored if that generation still holds
// after load returns. Backend failures are logged and bypassed.
func readThrough[T any](ctx context.Context, c *Catalog, view, genKey, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var gen int64
	if genKey != "" {
		g, err := c.generation(ctx, genKey)
		if err != nil {
			metrics.RecordCacheLookup(view, "error")
			c.log.WarnWith("cache generation unreadable", err, logger.Fields{"view": view, "key": genKey})
			return load(ctx)
		}
		gen = g
		key = versioned(key, gen)
	}

	raw, ok, err := c.backend.Get(ctx, key)
	switch {
	case err != nil:
		metrics.RecordCacheLookup(view, "error")
		c.log.WarnWith("cache read failed", err, logger.Fields{"view": view, "key": key})
	case ok:
		var v T
		decodeErr := json.Unmarshal(raw, &v)
		if decodeErr == nil {
			metrics.RecordCacheLookup(view, "hit")
			return v, nil
		}
		metrics.RecordCacheLookup(view, "error")
		c.log.WarnWith("cache entry undecodable", decodeErr, logger.Fields{"view": view, "key": key})
	default:
		metrics.RecordCacheLookup(view, "miss")
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if genKey != "" {
		if now, err := c.generation(ctx, genKey); err != nil || now != gen {
			return v, nil
		}
	}
	if raw, err := json.Marshal(v); err == nil {
		if err := c.backend.Set(ctx, key, raw, ttl); err != nil {
			c.log.WarnWith("cache write failed", err, logger.Fields{"view": view, "key": key})
		}
	}
	return v, nil
}
