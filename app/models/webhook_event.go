package models

import "time"

// Webhook source families assigned by classification.
const (
	WebhookSourceGGCheckout = "GGCHECKOUT"
	WebhookSourceHotmart    = "HOTMART"
	WebhookSourceGCheckout  = "GCHECKOUT"
	WebhookSourceUnknown    = "UNKNOWN"
)

// WebhookEvent stores every inbound webhook call verbatim. Rows are written
// before any interpretation and are never deleted.
type WebhookEvent struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	DeliveryID  string     `gorm:"type:varchar(36);not null;uniqueIndex:ux_webhook_events_delivery" json:"delivery_id"`
	Source      string     `gorm:"type:varchar(20);not null;default:'UNKNOWN';index:idx_webhook_events_source_processed,priority:1" json:"source"`
	EventType   string     `gorm:"type:varchar(100);not null;default:''" json:"event_type"`
	Payload     string     `gorm:"type:longtext;not null" json:"payload"`
	Processed   bool       `gorm:"default:false;index:idx_webhook_events_source_processed,priority:2" json:"processed"`
	Error       *string    `gorm:"type:text;default:null" json:"error"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	ProcessedAt *time.Time `gorm:"type:timestamp;default:null;index" json:"processed_at"`
	ArchivedAt  *time.Time `gorm:"type:timestamp;default:null;index" json:"archived_at,omitempty"`

	// SignatureVerified is set once a run verified the delivery signature.
	// Replays of events that never verified are rejected while signatures
	// are enforced.
	SignatureVerified bool `gorm:"not null;default:false" json:"signature_verified"`
}

// IsFinalized reports whether the finalizer has already run for this event.
func (e *WebhookEvent) IsFinalized() bool {
	return e != nil && e.ProcessedAt != nil
}

// ErrorMessage returns the stored error or an empty string.
func (e *WebhookEvent) ErrorMessage() string {
	if e == nil || e.Error == nil {
		return ""
	}
	return *e.Error
}
