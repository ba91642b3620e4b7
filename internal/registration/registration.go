// Package registration creates actors with collision-safe short ids and
// hands out their access tokens.
package registration

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/koustreak/omem/internal/errs"
	"github.com/koustreak/omem/internal/identity"
	"github.com/koustreak/omem/internal/logger"
	"github.com/koustreak/omem/internal/metrics"
)

const (
	// MaxAttempts bounds how many candidate short ids one registration tries.
	MaxAttempts = 5

	// ShortIDLength is the length of a generated short id.
	ShortIDLength = 6

	shortIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// IDGenerator returns a fresh short id candidate.
type IDGenerator func() (string, error)

// TokenGenerator returns a fresh access token.
type TokenGenerator func() string

// RandomShortID draws ShortIDLength characters from [A-Za-z0-9] using crypto/rand.
func RandomShortID() (string, error) {
	max := big.NewInt(int64(len(shortIDAlphabet)))
	b := make([]byte, ShortIDLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = shortIDAlphabet[n.Int64()]
	}
	return string(b), nil
}

// Result is what a successful registration returns. The token is only ever
// emitted here.
type Result struct {
	Actor       *identity.Actor
	AccessToken string
}

// Service registers actors.
type Service struct {
	store    identity.Store
	newID    IDGenerator
	newToken TokenGenerator
	log      *logger.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithIDGenerator replaces the short id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) { s.newID = g }
}

// WithTokenGenerator replaces the access token source.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *Service) { s.newToken = g }
}

// WithLogger sets the service logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a Service writing through store.
func NewService(store identity.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		newID:    RandomShortID,
		newToken: uuid.NewString,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register persists a new actor for correlationKey.
//
// A correlation key that is already registered is rejected with
// errs.ErrKindDuplicateActor. Any other uniqueness conflict consumes one of
// MaxAttempts candidates; running out fails with errs.ErrKindExhaustedRetries.
func (s *Service) Register(ctx context.Context, displayName, correlationKey string) (*Result, error) {
	displayName = strings.TrimSpace(displayName)
	correlationKey = strings.TrimSpace(correlationKey)
	if displayName == "" || correlationKey == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "name and correlation key are required")
	}

	if err := s.ensureUnregistered(ctx, correlationKey); err != nil {
		s.recordFailure(err)
		return nil, err
	}

	log := s.log.With().Str("correlation_key", correlationKey).Logger()

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		shortID, err := s.newID()
		if err != nil {
			metrics.RecordRegistration("error")
			return nil, errs.Wrap(errs.ErrKindUnknown, "generate short id", err)
		}

		actor := &identity.Actor{
			ShortID:        shortID,
			DisplayName:    displayName,
			CorrelationKey: correlationKey,
			AccessToken:    s.newToken(),
		}

		err = s.store.Create(ctx, actor)
		if err == nil {
			metrics.RecordRegistration("created")
			log.With().Secret("access_token", actor.AccessToken).Logger().
				InfoWith("actor registered", logger.Fields{
					"short_id": actor.ShortID,
					"attempt":  attempt,
				})
			return &Result{Actor: actor, AccessToken: actor.AccessToken}, nil
		}
		if !errs.IsConflict(err) {
			metrics.RecordRegistration("error")
			return nil, err
		}

		// A concurrent registration of the same key is not a collision.
		if dupErr := s.ensureUnregistered(ctx, correlationKey); dupErr != nil {
			s.recordFailure(dupErr)
			return nil, dupErr
		}

		metrics.RecordCollision()
		log.With().Int("attempt", attempt).Str("short_id", shortID).Logger().
			Warn("generated id collided, retrying")
	}

	metrics.RecordRegistration("exhausted")
	return nil, errs.Newf(errs.ErrKindExhaustedRetries,
		"could not generate a unique id for %q after %d attempts", correlationKey, MaxAttempts)
}

// ensureUnregistered returns DuplicateActor when key already has an actor.
func (s *Service) ensureUnregistered(ctx context.Context, key string) error {
	_, err := s.store.ByCorrelationKey(ctx, key)
	switch {
	case err == nil:
		return errs.Newf(errs.ErrKindDuplicateActor, "correlation key %q is already registered", key)
	case errs.IsNotRegistered(err):
		return nil
	default:
		return err
	}
}

func (s *Service) recordFailure(err error) {
	if errs.IsDuplicateActor(err) {
		metrics.RecordRegistration("duplicate")
		return
	}
	metrics.RecordRegistration("error")
}
