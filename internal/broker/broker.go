// Package broker exposes the operations clients call: registration,
// signed read/write URLs, confirm-write, listings and deletion. Each
// operation runs its access checks before touching any store.
package broker

import (
	"context"
	"strings"
	"time"

	"github.com/koustreak/omem/internal/cache"
	"github.com/koustreak/omem/internal/capability"
	"github.com/koustreak/omem/internal/catalog"
	"github.com/koustreak/omem/internal/errs"
	"github.com/koustreak/omem/internal/guard"
	"github.com/koustreak/omem/internal/logger"
	"github.com/koustreak/omem/internal/metrics"
	"github.com/koustreak/omem/internal/registration"
)

// TimestampLayout is the conditional-read timestamp format. Values carry no
// zone and are read in the broker's configured location.
const TimestampLayout = "2006-01-02 15:04:05"

// ParseTimestamp parses raw with TimestampLayout in loc.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, errs.Wrap(errs.ErrKindMalformedTimestamp,
			"timestamp must look like "+TimestampLayout, err)
	}
	return t, nil
}

// ReadResult is the outcome of a read. When NotModified is set Body is nil.
type ReadResult struct {
	NotModified bool
	Body        map[string]string
	UpdatedAt   time.Time
}

// Broker wires the guard, registration, capability issuer, catalog and cache.
type Broker struct {
	guard     *guard.Guard
	registrar *registration.Service
	issuer    *capability.Issuer
	records   catalog.Store
	view      *cache.Catalog
	loc       *time.Location
}

// New creates a Broker. A nil loc reads timestamps in local time.
func New(g *guard.Guard, registrar *registration.Service, issuer *capability.Issuer, records catalog.Store, view *cache.Catalog, loc *time.Location) *Broker {
	if loc == nil {
		loc = time.Local
	}
	return &Broker{
		guard:     g,
		registrar: registrar,
		issuer:    issuer,
		records:   records,
		view:      view,
		loc:       loc,
	}
}

// ParseTimestamp parses raw in the broker's location.
func (b *Broker) ParseTimestamp(raw string) (time.Time, error) {
	return ParseTimestamp(raw, b.loc)
}

// RegisterActor registers a new actor after checking the operator key.
func (b *Broker) RegisterActor(ctx context.Context, globalKey, name, correlationKey string) (*registration.Result, error) {
	if err := b.guard.CheckGlobal(globalKey); err != nil {
		logger.FromContext(ctx).Warn("registration rejected: bad global key")
		return nil, err
	}
	return b.registrar.Register(ctx, name, correlationKey)
}

// IssueReadCapability returns a signed GET URL for the object.
//
// With asOf set the authoritative catalog is consulted instead: the result
// is NotModified unless the record was confirmed strictly after asOf. A
// changed restricted object gets a freshly signed URL; any other object
// returns its stored public URL.
func (b *Broker) IssueReadCapability(ctx context.Context, correlationKey, accessToken, rawTag string, asOf *time.Time) (*ReadResult, error) {
	actor, err := b.guard.CheckActor(ctx, correlationKey, accessToken)
	if err != nil {
		return nil, err
	}
	tag, err := b.issuer.Tags().Parse(rawTag)
	if err != nil {
		return nil, err
	}

	if asOf == nil {
		c, err := b.issuer.IssueFor(ctx, actor, tag, capability.Read, "")
		if err != nil {
			return nil, err
		}
		return &ReadResult{Body: c.Body()}, nil
	}

	rec, err := b.records.Get(ctx, actor.CorrelationKey, tag)
	if err != nil {
		return nil, err
	}
	if !rec.UpdatedAt.After(*asOf) {
		return &ReadResult{NotModified: true, UpdatedAt: rec.UpdatedAt}, nil
	}

	body := map[string]string{string(tag): rec.ObjectURL}
	if b.issuer.Tags().IsRestricted(tag) {
		c, err := b.issuer.IssueFor(ctx, actor, tag, capability.Read, "")
		if err != nil {
			return nil, err
		}
		body = c.Body()
	}
	return &ReadResult{Body: body, UpdatedAt: rec.UpdatedAt}, nil
}

// IssueWriteCapability returns a signed PUT URL bound to contentType.
func (b *Broker) IssueWriteCapability(ctx context.Context, correlationKey, accessToken, rawTag, contentType string) (*capability.Capability, error) {
	actor, err := b.guard.CheckActor(ctx, correlationKey, accessToken)
	if err != nil {
		return nil, err
	}
	tag, err := b.issuer.Tags().Parse(rawTag)
	if err != nil {
		return nil, err
	}
	return b.issuer.IssueFor(ctx, actor, tag, capability.Write, strings.TrimSpace(contentType))
}

// ConfirmWrite records that the caller uploaded the object. The upload
// itself is not verified.
func (b *Broker) ConfirmWrite(ctx context.Context, correlationKey, accessToken, rawTag string) (*catalog.Record, bool, error) {
	actor, err := b.guard.CheckActor(ctx, correlationKey, accessToken)
	if err != nil {
		return nil, false, err
	}
	tag, err := b.issuer.Tags().Parse(rawTag)
	if err != nil {
		return nil, false, err
	}

	rec, created, err := b.records.Upsert(ctx, catalog.Record{
		ActorID:        actor.ID,
		ObjectURL:      b.issuer.PublicURL(actor, tag),
		Tag:            tag,
		CorrelationKey: actor.CorrelationKey,
	})
	if err != nil {
		return nil, false, err
	}
	metrics.RecordConfirmWrite(created)
	b.invalidate(ctx, actor.CorrelationKey)

	logger.FromContext(ctx).InfoWith("write confirmed", logger.Fields{
		"correlation_key": actor.CorrelationKey,
		"data_type":       string(tag),
		"created":         created,
	})
	return rec, created, nil
}

// Get returns the tag -> url listing of one actor, or only rawTag's entry
// when rawTag is set. It is an operator lookup gated by the global key.
func (b *Broker) Get(ctx context.Context, globalKey, correlationKey, rawTag string) (map[string]string, error) {
	if err := b.guard.CheckGlobal(globalKey); err != nil {
		return nil, err
	}
	actor, err := b.view.ByCorrelationKey(ctx, correlationKey)
	if err != nil {
		return nil, err
	}
	entries, err := b.view.Entries(ctx, actor.CorrelationKey)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rawTag) == "" {
		return entries, nil
	}

	tag, err := b.issuer.Tags().Parse(rawTag)
	if err != nil {
		return nil, err
	}
	u, ok := entries[string(tag)]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "no %s object for %q", tag, correlationKey)
	}
	return map[string]string{string(tag): u}, nil
}

// ListAll returns one row per actor of kind, optionally filtered by rawTag.
func (b *Broker) ListAll(ctx context.Context, kind, rawTag string) ([]cache.Row, error) {
	return b.view.ListAll(ctx, kind, rawTag)
}

// DeleteObject removes the blob and then its catalog record. A failed blob
// deletion leaves the record in place.
func (b *Broker) DeleteObject(ctx context.Context, correlationKey, accessToken, rawTag string) error {
	actor, err := b.guard.CheckActor(ctx, correlationKey, accessToken)
	if err != nil {
		return err
	}
	tag, err := b.issuer.Tags().Parse(rawTag)
	if err != nil {
		return err
	}
	if _, err := b.records.Get(ctx, actor.CorrelationKey, tag); err != nil {
		return err
	}

	if err := b.issuer.Delete(ctx, actor, tag); err != nil {
		metrics.RecordDeletion("blob_error")
		return err
	}
	if err := b.records.Delete(ctx, actor.CorrelationKey, tag); err != nil {
		metrics.RecordDeletion("error")
		return err
	}
	metrics.RecordDeletion("deleted")
	b.invalidate(ctx, actor.CorrelationKey)

	logger.FromContext(ctx).InfoWith("object deleted", logger.Fields{
		"correlation_key": actor.CorrelationKey,
		"data_type":       string(tag),
	})
	return nil
}

func (b *Broker) invalidate(ctx context.Context, key string) {
	if err := b.view.Invalidate(ctx, key); err != nil {
		logger.FromContext(ctx).WarnWith("cache invalidation failed", err, logger.Fields{
			"correlation_key": key,
		})
	}
}
