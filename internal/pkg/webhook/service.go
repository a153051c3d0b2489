package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Sermonario/app/models"
	"github.com/ManuelReschke/Sermonario/internal/pkg/credentials"
	"github.com/ManuelReschke/Sermonario/internal/pkg/lock"
)

// Hasher turns a plaintext credential into an opaque stored form.
type Hasher interface {
	Hash(plaintext string) (string, error)
}

// Notifier is told about accounts created from a purchase. It must not block.
type Notifier interface {
	UserCreated(ctx context.Context, user *models.User) error
}

// Service records webhook deliveries and reconciles users and subscriptions.
type Service struct {
	repo     Repository
	cfg      Config
	hasher   Hasher
	locker   lock.Locker
	metrics  Metrics
	notifier Notifier
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

func WithHasher(h Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a webhook service from an injected repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		cfg:     DefaultConfig(),
		hasher:  credentials.NewBcryptHasher(),
		locker:  lock.Noop{},
		metrics: NoopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a webhook service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

// Repository exposes the underlying storage, e.g. for read-only admin views.
func (s *Service) Repository() Repository {
	return s.repo
}

// RecordInput is what the event log stores for one inbound call.
type RecordInput struct {
	Body      []byte
	Source    SourceFamily
	EventType string
}

// Record persists the verbatim body as an unprocessed event. It accepts any
// body, including invalid JSON.
func (s *Service) Record(ctx context.Context, in RecordInput) (*models.WebhookEvent, error) {
	source := in.Source
	if source == "" {
		source = SourceUnknown
	}
	event := &models.WebhookEvent{
		DeliveryID: uuid.NewString(),
		Source:     source.String(),
		EventType:  truncate(in.EventType, 100),
		Payload:    string(in.Body),
		Processed:  false,
	}
	if err := s.repo.CreateWebhookEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// ReconcileUser finds or creates the user identified by purchase.Email. The
// bool result reports whether a new user was created.
func (s *Service) ReconcileUser(ctx context.Context, family SourceFamily, purchase CanonicalPurchase) (*models.User, bool, error) {
	email := strings.TrimSpace(purchase.Email)
	if email == "" {
		return nil, false, ErrEmailMissing
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err == nil {
		return user, false, s.refreshUser(ctx, user, purchase)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	name := purchase.Name
	if name == "" {
		name = models.EmailLocalPart(email)
	}
	user = &models.User{
		Email:            email,
		Name:             truncate(name, 150),
		Phone:            truncate(purchase.Phone, 40),
		IsActive:         true,
		NeedsPasswordSet: true,
		Role:             models.ROLE_USER,
	}
	if err := user.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrEmailInvalid, err)
	}
	if family.ProvisionsTemporaryPassword() {
		plain, err := models.GenerateTemporaryPassword()
		if err != nil {
			return nil, false, err
		}
		hash, err := s.hasher.Hash(plain)
		if err != nil {
			return nil, false, fmt.Errorf("hash temporary password: %w", err)
		}
		user.Password = &hash
	}

	err = s.repo.CreateUser(ctx, user)
	if err == nil {
		s.metrics.RecordUserCreated(family)
		if s.notifier != nil {
			if err := s.notifier.UserCreated(ctx, user); err != nil {
				log.Warnf("[Webhook] Could not notify new user %d: %v", user.ID, err)
			}
		}
		return user, true, nil
	}
	if !IsDuplicateKey(err) {
		return nil, false, err
	}

	// A concurrent delivery created the user first.
	s.metrics.RecordConflict(ConflictUser)
	log.Infof("[Webhook] User %s created concurrently, reloading", email)
	existing, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	return existing, false, s.refreshUser(ctx, existing, purchase)
}

// refreshUser backfills an empty phone and reactivates an inactive account.
// Name, email and password are never overwritten.
func (s *Service) refreshUser(ctx context.Context, user *models.User, purchase CanonicalPurchase) error {
	fields := map[string]interface{}{}
	phone := truncate(purchase.Phone, 40)
	if user.Phone == "" && phone != "" {
		fields["phone"] = phone
	}
	if !user.IsActive {
		fields["is_active"] = true
	}
	if len(fields) == 0 {
		return nil
	}
	if err := s.repo.UpdateUserFields(ctx, user.ID, fields); err != nil {
		return err
	}
	if v, ok := fields["phone"]; ok {
		user.Phone = v.(string)
	}
	user.IsActive = true
	return nil
}

// ResolvePlan chooses the plan granted to family on activation. A nil plan
// without error means no plan is available and activation should be skipped.
func (s *Service) ResolvePlan(ctx context.Context, family SourceFamily) (*models.Plan, error) {
	if key := s.cfg.PlanKey(family); key != "" {
		plan, err := s.repo.FindActivePlanByKey(ctx, key)
		if err == nil {
			return plan, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		// The built-in lifetime key is created lazily below; only an operator
		// configured key is worth a warning.
		if key != models.PlanKeyLifetimeDefault {
			log.Warnf("[Webhook] Configured plan key %q for %s not found or inactive", key, family)
		}
	}

	if !family.IsDedicatedCheckout() {
		plan, err := s.repo.FindFirstActivePlan(ctx)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return plan, err
	}

	plan, err := s.repo.FindFirstActivePlanByInterval(ctx, models.PlanIntervalLifetime)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	plan = models.NewDefaultLifetimePlan()
	err = s.repo.CreatePlan(ctx, plan)
	if err == nil {
		log.Infof("[Webhook] Created default lifetime plan id=%d", plan.ID)
		return plan, nil
	}
	if !IsDuplicateKey(err) {
		return nil, err
	}

	s.metrics.RecordConflict(ConflictPlan)
	existing, err := s.repo.FindPlanByKey(ctx, models.PlanKeyLifetimeDefault)
	if err != nil {
		return nil, err
	}
	if !existing.IsActive {
		log.Warnf("[Webhook] Default lifetime plan id=%d is inactive but still granted", existing.ID)
	}
	return existing, nil
}

// Activate gives user an ACTIVE subscription to plan unless one already
// exists. The bool result reports whether a subscription was created.
func (s *Service) Activate(ctx context.Context, user *models.User, plan *models.Plan, externalID string) (*models.Subscription, bool, error) {
	if user == nil || plan == nil {
		return nil, false, errors.New("user and plan are required")
	}
	now := s.now()
	sub := &models.Subscription{
		UserID:          user.ID,
		PlanID:          plan.ID,
		Status:          models.SubscriptionStatusActive,
		StartDate:       now,
		NextBillingDate: models.NextBillingDateFor(plan, now),
		ExternalID:      truncate(externalID, 191),
	}

	stored, created, err := s.repo.ActivateSubscription(ctx, sub)
	if err == nil {
		return stored, created, nil
	}
	if !IsDuplicateKey(err) {
		return nil, false, err
	}

	s.metrics.RecordConflict(ConflictSubscription)
	existing, err := s.repo.FindActiveSubscription(ctx, user.ID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Cancel moves every ACTIVE subscription of user to CANCELLED and returns the
// number of rows changed.
func (s *Service) Cancel(ctx context.Context, user *models.User) (int64, error) {
	if user == nil {
		return 0, errors.New("user is required")
	}
	return s.repo.CancelActiveSubscriptions(ctx, user.ID, s.now())
}

// Finalize is the terminal write for an event.
func (s *Service) Finalize(ctx context.Context, eventID uint, processed bool, errMsg string) error {
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	return s.repo.MarkWebhookFinalized(ctx, eventID, processed, msg, s.now())
}

// RecordFailure notes an unhandled error without finalizing, so the event can
// be replayed. countAttempt charges the run against the replay budget when it
// failed before its attempt was recorded.
func (s *Service) RecordFailure(ctx context.Context, eventID uint, cause error, countAttempt bool) error {
	if cause == nil {
		return nil
	}
	return s.repo.MarkWebhookFailed(ctx, eventID, cause.Error(), countAttempt)
}
