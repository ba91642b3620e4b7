// Package capability issues time-limited signed URLs for actor objects and
// derives where those objects live.
package capability

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/koustreak/omem/internal/catalog"
	"github.com/koustreak/omem/internal/datatype"
	"github.com/koustreak/omem/internal/errs"
	"github.com/koustreak/omem/internal/filestore"
	"github.com/koustreak/omem/internal/identity"
	"github.com/koustreak/omem/internal/metrics"
)

// Mode selects the verb and validity window of a capability.
type Mode int

const (
	Read Mode = iota
	Write
)

func (m Mode) String() string {
	if m == Write {
		return "write"
	}
	return "read"
}

// Default validity windows.
const (
	DefaultReadTTL  = 30 * time.Minute
	DefaultWriteTTL = 15 * time.Minute
)

// DefaultPublicBaseURL is the host public objects are served from.
const DefaultPublicBaseURL = "https://storage.googleapis.com"

// Config holds the bucket layout and validity windows.
type Config struct {
	ActorKind     string
	PublicBucket  string
	PrivateBucket string
	PublicBaseURL string
	ReadTTL       time.Duration
	WriteTTL      time.Duration
}

// Capability is one issued signed URL.
type Capability struct {
	URL       string
	Tag       datatype.Tag
	Mode      Mode
	Bucket    string
	Key       string
	ExpiresAt time.Time
}

// Body is the response shape: {TAG: url} for reads, {signedUrl: url} for writes.
func (c *Capability) Body() map[string]string {
	if c.Mode == Write {
		return map[string]string{"signedUrl": c.URL}
	}
	return map[string]string{string(c.Tag): c.URL}
}

// Issuer signs capabilities through a BlobStore.
type Issuer struct {
	blobs filestore.BlobStore
	tags  *datatype.Set
	cfg   Config
	now   func() time.Time
}

// NewIssuer creates an Issuer. Zero TTLs and an empty base URL take the defaults.
func NewIssuer(blobs filestore.BlobStore, tags *datatype.Set, cfg Config) *Issuer {
	if cfg.ReadTTL <= 0 {
		cfg.ReadTTL = DefaultReadTTL
	}
	if cfg.WriteTTL <= 0 {
		cfg.WriteTTL = DefaultWriteTTL
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = DefaultPublicBaseURL
	}
	if cfg.ActorKind == "" {
		cfg.ActorKind = "pharmacy"
	}
	return &Issuer{blobs: blobs, tags: tags, cfg: cfg, now: time.Now}
}

// IssueFor signs a capability for an already resolved actor and tag.
// contentType is bound into write capabilities when set.
func (i *Issuer) IssueFor(ctx context.Context, actor *identity.Actor, tag datatype.Tag, mode Mode, contentType string) (*Capability, error) {
	bucket, key := i.Location(actor, tag)

	req := filestore.SignRequest{
		Bucket: bucket,
		Key:    key,
		Method: filestore.MethodGet,
		TTL:    i.cfg.ReadTTL,
	}
	if mode == Write {
		req.Method = filestore.MethodPut
		req.TTL = i.cfg.WriteTTL
		req.ContentType = contentType
	}

	issuedAt := i.now()
	signed, err := i.blobs.Sign(ctx, req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindBackingStore, "sign "+req.String(), err)
	}
	metrics.RecordCapability(mode.String(), i.tags.IsRestricted(tag))

	return &Capability{
		URL:       signed,
		Tag:       tag,
		Mode:      mode,
		Bucket:    bucket,
		Key:       key,
		ExpiresAt: issuedAt.Add(req.TTL),
	}, nil
}

// Location returns the bucket and object key for (actor, tag). Restricted
// tags live in the private bucket, everything else in the public one.
func (i *Issuer) Location(actor *identity.Actor, tag datatype.Tag) (bucket, key string) {
	bucket = i.cfg.PublicBucket
	if i.tags.IsRestricted(tag) {
		bucket = i.cfg.PrivateBucket
	}
	return bucket, strings.Join(objectSegments(i.cfg.ActorKind, actor, tag), "/")
}

// objectSegments are the escaped path segments of an object key, so a tag
// holding a slash or a space still yields exactly three segments.
func objectSegments(kind string, actor *identity.Actor, tag datatype.Tag) []string {
	return []string{url.PathEscape(kind), url.PathEscape(actor.ShortID), url.PathEscape(string(tag))}
}

// PublicURL is the bare URL stored on confirm-write, or catalog.PrivateURL
// for restricted tags.
func (i *Issuer) PublicURL(actor *identity.Actor, tag datatype.Tag) string {
	if i.tags.IsRestricted(tag) {
		return catalog.PrivateURL
	}
	// JoinPath takes escaped elements; the object key is escaped once more so
	// the URL addresses it literally.
	elems := []string{url.PathEscape(i.cfg.PublicBucket)}
	for _, seg := range objectSegments(i.cfg.ActorKind, actor, tag) {
		elems = append(elems, url.PathEscape(seg))
	}
	u, err := url.JoinPath(i.cfg.PublicBaseURL, elems...)
	if err != nil {
		return catalog.PrivateURL
	}
	return u
}

// Delete removes the blob behind (actor, tag).
func (i *Issuer) Delete(ctx context.Context, actor *identity.Actor, tag datatype.Tag) error {
	bucket, key := i.Location(actor, tag)
	if err := i.blobs.Delete(ctx, bucket, key); err != nil {
		return errs.Wrap(errs.ErrKindBackingStore, "delete "+bucket+"/"+key, err)
	}
	return nil
}

// Tags exposes the recognised tag set.
func (i *Issuer) Tags() *datatype.Set {
	return i.tags
}
