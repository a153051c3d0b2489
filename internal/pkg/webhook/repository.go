package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/Sermonario/app/models"
)

// Repository provides the storage operations used by the webhook service.
//
// Lookups return gorm.ErrRecordNotFound when nothing matches. Creates that
// violate a unique constraint return gorm.ErrDuplicatedKey.
type Repository interface {
	CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error
	GetWebhookEvent(ctx context.Context, id uint) (*models.WebhookEvent, error)
	// MarkWebhookAttempt counts a run and stores its classification. verified
	// only ever sets signature_verified; it never clears it.
	MarkWebhookAttempt(ctx context.Context, id uint, source, eventType string, verified bool) error
	MarkWebhookFinalized(ctx context.Context, id uint, processed bool, errMsg *string, at time.Time) error
	// MarkWebhookFailed stores errMsg on an unfinalized event. countAttempt
	// increments attempts for runs that failed before MarkWebhookAttempt.
	MarkWebhookFailed(ctx context.Context, id uint, errMsg string, countAttempt bool) error
	ListWebhookEvents(ctx context.Context, filter EventFilter) ([]models.WebhookEvent, int64, error)
	ListReplayableWebhookEvents(ctx context.Context, createdBefore time.Time, maxAttempts, limit int) ([]models.WebhookEvent, error)
	ListUnarchivedWebhookEvents(ctx context.Context, limit int) ([]models.WebhookEvent, error)
	MarkWebhookArchived(ctx context.Context, id uint, at time.Time) error

	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUserFields(ctx context.Context, id uint, fields map[string]interface{}) error

	FindActivePlanByKey(ctx context.Context, key string) (*models.Plan, error)
	FindPlanByKey(ctx context.Context, key string) (*models.Plan, error)
	FindFirstActivePlanByInterval(ctx context.Context, interval string) (*models.Plan, error)
	FindFirstActivePlan(ctx context.Context) (*models.Plan, error)
	CreatePlan(ctx context.Context, plan *models.Plan) error

	// ActivateSubscription stores sub unless the user already has an ACTIVE
	// subscription, in which case that one is returned with created=false.
	ActivateSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, bool, error)
	FindActiveSubscription(ctx context.Context, userID uint) (*models.Subscription, error)
	CancelActiveSubscriptions(ctx context.Context, userID uint, at time.Time) (int64, error)
}

// EventFilter narrows ListWebhookEvents. Zero values mean "any".
type EventFilter struct {
	Processed *bool
	Source    string
	Page      int
	Limit     int
}

// Normalized returns the filter with page and limit clamped to sane bounds.
func (f EventFilter) Normalized() EventFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return f
}

// Offset returns the row offset for the filter's page.
func (f EventFilter) Offset() int {
	f = f.Normalized()
	return (f.Page - 1) * f.Limit
}

const mysqlDuplicateEntry = 1062

// IsDuplicateKey reports whether err is a unique constraint violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

func translateCreateError(err error) error {
	if IsDuplicateKey(err) {
		return gorm.ErrDuplicatedKey
	}
	return err
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a webhook repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	return translateCreateError(r.db.WithContext(ctx).Create(event).Error)
}

func (r *gormRepository) GetWebhookEvent(ctx context.Context, id uint) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.WithContext(ctx).First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *gormRepository) MarkWebhookAttempt(ctx context.Context, id uint, source, eventType string, verified bool) error {
	updates := map[string]interface{}{
		"source":     source,
		"event_type": eventType,
		"attempts":   gorm.Expr("attempts + 1"),
	}
	if verified {
		updates["signature_verified"] = true
	}
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(updates).Error
}

func (r *gormRepository) MarkWebhookFinalized(ctx context.Context, id uint, processed bool, errMsg *string, at time.Time) error {
	updates := map[string]interface{}{
		"processed":    processed,
		"processed_at": at,
		"error":        errMsg,
	}
	tx := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrEventAlreadyFinalized
	}
	return nil
}

func (r *gormRepository) MarkWebhookFailed(ctx context.Context, id uint, errMsg string, countAttempt bool) error {
	updates := map[string]interface{}{"error": errMsg}
	if countAttempt {
		updates["attempts"] = gorm.Expr("attempts + 1")
	}
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(updates).Error
}

func (r *gormRepository) ListWebhookEvents(ctx context.Context, filter EventFilter) ([]models.WebhookEvent, int64, error) {
	filter = filter.Normalized()
	q := r.db.WithContext(ctx).Model(&models.WebhookEvent{})
	if filter.Processed != nil {
		q = q.Where("processed = ?", *filter.Processed)
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var events []models.WebhookEvent
	err := q.Order("id DESC").Offset(filter.Offset()).Limit(filter.Limit).Find(&events).Error
	return events, total, err
}

func (r *gormRepository) ListReplayableWebhookEvents(ctx context.Context, createdBefore time.Time, maxAttempts, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("processed_at IS NULL AND created_at < ? AND attempts < ?", createdBefore, maxAttempts).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *gormRepository) ListUnarchivedWebhookEvents(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("processed_at IS NOT NULL AND archived_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *gormRepository) MarkWebhookArchived(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Update("archived_at", at).Error
}

func (r *gormRepository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) CreateUser(ctx context.Context, user *models.User) error {
	return translateCreateError(r.db.WithContext(ctx).Create(user).Error)
}

func (r *gormRepository) UpdateUserFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields).Error
}

func (r *gormRepository) FindActivePlanByKey(ctx context.Context, key string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).Where("`key` = ? AND is_active = ?", key, true).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) FindPlanByKey(ctx context.Context, key string) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).Where("`key` = ?", key).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) FindFirstActivePlanByInterval(ctx context.Context, interval string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).
		Where("`interval` = ? AND is_active = ?", interval, true).
		Order("created_at ASC, id ASC").
		First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) FindFirstActivePlan(ctx context.Context) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC, id ASC").
		First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) CreatePlan(ctx context.Context, plan *models.Plan) error {
	return translateCreateError(r.db.WithContext(ctx).Create(plan).Error)
}

func (r *gormRepository) ActivateSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, bool, error) {
	var (
		result  *models.Subscription
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The user row serializes concurrent activations for the same user.
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&user, sub.UserID).Error; err != nil {
			return err
		}

		var existing models.Subscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ?", sub.UserID, models.SubscriptionStatusActive).
			First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		sub.Status = models.SubscriptionStatusActive
		activeUserID := sub.UserID
		sub.ActiveUserID = &activeUserID
		if err := tx.Create(sub).Error; err != nil {
			return translateCreateError(err)
		}
		result = sub
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (r *gormRepository) FindActiveSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CancelActiveSubscriptions(ctx context.Context, userID uint, at time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		Updates(map[string]interface{}{
			"status":         models.SubscriptionStatusCancelled,
			"cancelled_at":   at,
			"active_user_id": nil,
		})
	return tx.RowsAffected, tx.Error
}
