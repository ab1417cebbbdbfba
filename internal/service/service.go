package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kisan-choice-api/internal/apperror"
	"kisan-choice-api/internal/database"
	"kisan-choice-api/internal/events"
	"kisan-choice-api/internal/features"
	"kisan-choice-api/internal/validation"
)

// Policy holds the negotiation timing and threshold rules.
type Policy struct {
	PriceLockTTL   time.Duration
	RejectCooldown time.Duration
	BlockThreshold int
	BlockDuration  time.Duration
}

// DefaultPolicy returns the production negotiation rules.
func DefaultPolicy() Policy {
	return Policy{
		PriceLockTTL:   48 * time.Hour,
		RejectCooldown: 24 * time.Hour,
		BlockThreshold: 3,
		BlockDuration:  30 * 24 * time.Hour,
	}
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Publisher events.Publisher
	Flags     *features.Manager
	Logger    zerolog.Logger
	Policy    Policy
	Clock     func() time.Time
	NewID     func() string
}

// Service implements negotiation, cart, checkout and order operations.
// Callers are authorized at the boundary; every operation takes plain ids.
type Service struct {
	db      *database.DB
	effects events.Publisher
	flags   *features.Manager
	logger  zerolog.Logger
	policy  Policy
	clock   func() time.Time
	newID   func() string
}

// NewService creates a service with default options.
func NewService(db *database.DB) *Service {
	return NewServiceWithOptions(db, Options{Logger: zerolog.Nop()})
}

// NewServiceWithOptions creates a service with custom options.
func NewServiceWithOptions(db *database.DB, opts Options) *Service {
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Policy == (Policy{}) {
		opts.Policy = DefaultPolicy()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Service{
		db:      db,
		effects: opts.Publisher,
		flags:   opts.Flags,
		logger:  opts.Logger.With().Str("component", "service").Logger(),
		policy:  opts.Policy,
		clock:   opts.Clock,
		newID:   opts.NewID,
	}
}

// Policy returns the rules the service enforces.
func (s *Service) Policy() Policy {
	return s.policy
}

// Now reads the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// now is the service clock in UTC at the store's microsecond precision.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// publish hands committed effects to the dispatcher. Subscribers apply
// their own flags; history is recorded whatever the notification setting.
func (s *Service) publish(ctx context.Context, evts []events.Event) {
	if len(evts) == 0 {
		return
	}
	s.effects.Publish(ctx, evts...)
}

// invalid converts field validation failures into client errors.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	var ve *validation.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	if strings.HasSuffix(ve.Message, ".") {
		return apperror.Validation("%s", ve.Message)
	}
	return apperror.Validation("%s %s", ve.Field, ve.Message)
}

// internal wraps unexpected store errors, leaving classified errors alone.
func internal(err error, op string) error {
	if err == nil {
		return nil
	}
	var ae *apperror.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperror.Internal(err, "%s failed", op)
}

func notFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
