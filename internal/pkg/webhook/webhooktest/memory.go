// Package webhooktest provides an in-memory webhook.Repository that enforces
// the same uniqueness rules as the SQL schema.
package webhooktest

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/Sermonario/app/models"
	"github.com/ManuelReschke/Sermonario/internal/pkg/webhook"
)

// Repository is safe for concurrent use. Returned records are copies.
type Repository struct {
	mu sync.Mutex

	events        map[uint]*models.WebhookEvent
	users         map[uint]*models.User
	plans         map[uint]*models.Plan
	subscriptions map[uint]*models.Subscription
	nextID        uint

	failures map[string]error

	// BeforeCreateUser runs before a user insert, outside the lock. Tests use
	// it to let a competing writer win the race.
	BeforeCreateUser func(user *models.User)
	// BeforeCreatePlan is the plan equivalent of BeforeCreateUser.
	BeforeCreatePlan func(plan *models.Plan)

	// Writes counts mutations of users, plans and subscriptions.
	Writes int
}

var _ webhook.Repository = (*Repository)(nil)

func New() *Repository {
	return &Repository{
		events:        map[uint]*models.WebhookEvent{},
		users:         map[uint]*models.User{},
		plans:         map[uint]*models.Plan{},
		subscriptions: map[uint]*models.Subscription{},
		failures:      map[string]error{},
	}
}

// FailOn makes every call to method return err until cleared with a nil err.
func (r *Repository) FailOn(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, method)
		return
	}
	r.failures[method] = err
}

func (r *Repository) fail(method string) error {
	return r.failures[method]
}

func (r *Repository) id() uint {
	r.nextID++
	return r.nextID
}

// Seeding helpers.

func (r *Repository) AddUser(u models.User) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.ID = r.id()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	r.users[u.ID] = &u
	cp := u
	return &cp
}

func (r *Repository) AddPlan(p models.Plan) *models.Plan {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.id()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	r.plans[p.ID] = &p
	cp := p
	return &cp
}

func (r *Repository) AddSubscription(s models.Subscription) *models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = r.id()
	if s.Status == models.SubscriptionStatusActive {
		uid := s.UserID
		s.ActiveUserID = &uid
	}
	r.subscriptions[s.ID] = &s
	cp := s
	return &cp
}

// Inspection helpers.

func (r *Repository) Events() []models.WebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.WebhookEvent, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Repository) Users() []models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Repository) Plans() []models.Plan {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Plan, 0, len(r.plans))
	for _, p := range r.plans {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Repository) Subscriptions() []models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Subscription, 0, len(r.subscriptions))
	for _, s := range r.subscriptions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// webhook.Repository implementation.

func (r *Repository) CreateWebhookEvent(_ context.Context, event *models.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("CreateWebhookEvent"); err != nil {
		return err
	}
	for _, e := range r.events {
		if e.DeliveryID == event.DeliveryID {
			return gorm.ErrDuplicatedKey
		}
	}
	event.ID = r.id()
	event.CreatedAt = time.Now()
	cp := *event
	r.events[event.ID] = &cp
	return nil
}

func (r *Repository) GetWebhookEvent(_ context.Context, id uint) (*models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

// SetEventCreatedAt backdates an event, e.g. to make it eligible for replay.
func (r *Repository) SetEventCreatedAt(id uint, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.events[id]; ok {
		e.CreatedAt = at
	}
}

func (r *Repository) MarkWebhookAttempt(_ context.Context, id uint, source, eventType string, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("MarkWebhookAttempt"); err != nil {
		return err
	}
	e, ok := r.events[id]
	if !ok || e.ProcessedAt != nil {
		return nil
	}
	e.Source = source
	e.EventType = eventType
	e.Attempts++
	if verified {
		e.SignatureVerified = true
	}
	return nil
}

func (r *Repository) MarkWebhookFinalized(_ context.Context, id uint, processed bool, errMsg *string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("MarkWebhookFinalized"); err != nil {
		return err
	}
	e, ok := r.events[id]
	if !ok || e.ProcessedAt != nil {
		return webhook.ErrEventAlreadyFinalized
	}
	e.Processed = processed
	e.ProcessedAt = &at
	if errMsg != nil {
		msg := *errMsg
		e.Error = &msg
	} else {
		e.Error = nil
	}
	return nil
}

func (r *Repository) MarkWebhookFailed(_ context.Context, id uint, errMsg string, countAttempt bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("MarkWebhookFailed"); err != nil {
		return err
	}
	if e, ok := r.events[id]; ok && e.ProcessedAt == nil {
		e.Error = &errMsg
		if countAttempt {
			e.Attempts++
		}
	}
	return nil
}

func (r *Repository) ListWebhookEvents(_ context.Context, filter webhook.EventFilter) ([]models.WebhookEvent, int64, error) {
	filter = filter.Normalized()
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []models.WebhookEvent
	for _, e := range r.events {
		if filter.Processed != nil && e.Processed != *filter.Processed {
			continue
		}
		if filter.Source != "" && e.Source != filter.Source {
			continue
		}
		matched = append(matched, *e)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := int64(len(matched))
	start := filter.Offset()
	if start >= len(matched) {
		return []models.WebhookEvent{}, total, nil
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *Repository) ListReplayableWebhookEvents(_ context.Context, createdBefore time.Time, maxAttempts, limit int) ([]models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WebhookEvent
	for _, e := range r.events {
		if e.ProcessedAt == nil && e.CreatedAt.Before(createdBefore) && e.Attempts < maxAttempts {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repository) ListUnarchivedWebhookEvents(_ context.Context, limit int) ([]models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WebhookEvent
	for _, e := range r.events {
		if e.ProcessedAt != nil && e.ArchivedAt == nil {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repository) MarkWebhookArchived(_ context.Context, id uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.events[id]; ok {
		e.ArchivedAt = &at
	}
	return nil
}

func (r *Repository) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("FindUserByEmail"); err != nil {
		return nil, err
	}
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *Repository) CreateUser(_ context.Context, user *models.User) error {
	if hook := r.BeforeCreateUser; hook != nil {
		hook(user)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("CreateUser"); err != nil {
		return err
	}
	for _, u := range r.users {
		if u.Email == user.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	user.ID = r.id()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	r.users[user.ID] = &cp
	r.Writes++
	return nil
}

func (r *Repository) UpdateUserFields(_ context.Context, id uint, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range fields {
		switch k {
		case "phone":
			u.Phone = v.(string)
		case "is_active":
			u.IsActive = v.(bool)
		case "name":
			u.Name = v.(string)
		}
	}
	u.UpdatedAt = time.Now()
	r.Writes++
	return nil
}

func (r *Repository) FindActivePlanByKey(_ context.Context, key string) (*models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.plans {
		if p.Key != nil && *p.Key == key && p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *Repository) FindPlanByKey(_ context.Context, key string) (*models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.plans {
		if p.Key != nil && *p.Key == key {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *Repository) firstActivePlan(match func(*models.Plan) bool) (*models.Plan, error) {
	var candidates []*models.Plan
	for _, p := range r.plans {
		if p.IsActive && match(p) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	cp := *candidates[0]
	return &cp, nil
}

func (r *Repository) FindFirstActivePlanByInterval(_ context.Context, interval string) (*models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstActivePlan(func(p *models.Plan) bool { return p.Interval == interval })
}

func (r *Repository) FindFirstActivePlan(_ context.Context) (*models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstActivePlan(func(*models.Plan) bool { return true })
}

func (r *Repository) CreatePlan(_ context.Context, plan *models.Plan) error {
	if hook := r.BeforeCreatePlan; hook != nil {
		hook(plan)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if plan.Key != nil {
		for _, p := range r.plans {
			if p.Key != nil && *p.Key == *plan.Key {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	plan.ID = r.id()
	plan.CreatedAt = time.Now()
	cp := *plan
	r.plans[plan.ID] = &cp
	r.Writes++
	return nil
}

func (r *Repository) activeSubscription(userID uint) *models.Subscription {
	for _, s := range r.subscriptions {
		if s.UserID == userID && s.Status == models.SubscriptionStatusActive {
			return s
		}
	}
	return nil
}

func (r *Repository) ActivateSubscription(_ context.Context, sub *models.Subscription) (*models.Subscription, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("ActivateSubscription"); err != nil {
		return nil, false, err
	}
	if _, ok := r.users[sub.UserID]; !ok {
		return nil, false, gorm.ErrRecordNotFound
	}
	if existing := r.activeSubscription(sub.UserID); existing != nil {
		cp := *existing
		return &cp, false, nil
	}
	sub.ID = r.id()
	sub.Status = models.SubscriptionStatusActive
	uid := sub.UserID
	sub.ActiveUserID = &uid
	sub.CreatedAt = time.Now()
	cp := *sub
	r.subscriptions[sub.ID] = &cp
	r.Writes++
	return sub, true, nil
}

func (r *Repository) FindActiveSubscription(_ context.Context, userID uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.activeSubscription(userID); s != nil {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *Repository) CancelActiveSubscriptions(_ context.Context, userID uint, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.subscriptions {
		if s.UserID == userID && s.Status == models.SubscriptionStatusActive {
			s.Status = models.SubscriptionStatusCancelled
			cancelledAt := at
			s.CancelledAt = &cancelledAt
			s.ActiveUserID = nil
			n++
		}
	}
	if n > 0 {
		r.Writes++
	}
	return n, nil
}
