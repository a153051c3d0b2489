package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	PlanIntervalMonthly  = "MONTHLY"
	PlanIntervalYearly   = "YEARLY"
	PlanIntervalLifetime = "LIFETIME"
)

// PlanKeyLifetimeDefault identifies the canonical lifetime plan that the
// dedicated checkout grants. It is created lazily on first use.
const PlanKeyLifetimeDefault = "lifetime-default"

// Plan is a subscription tier. Key is optional; when set it is unique and lets
// configuration address a plan without depending on insertion order.
type Plan struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Key         *string        `gorm:"type:varchar(100);uniqueIndex:ux_plans_key;default:null" json:"key,omitempty"`
	Name        string         `gorm:"type:varchar(150);not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Price       float64        `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
	Interval    string         `gorm:"type:varchar(16);not null;default:'MONTHLY';index" json:"interval"`
	Features    datatypes.JSON `gorm:"type:json" json:"features"`
	IsActive    bool           `gorm:"default:true;index" json:"is_active"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsLifetime reports whether subscriptions to this plan never renew.
func (p *Plan) IsLifetime() bool {
	return p != nil && p.Interval == PlanIntervalLifetime
}

// FeatureList decodes the JSON feature column. Malformed data yields nil.
func (p *Plan) FeatureList() []string {
	if p == nil || len(p.Features) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(p.Features, &out); err != nil {
		return nil
	}
	return out
}

// NewDefaultLifetimePlan builds the canonical lifetime plan granted by the
// dedicated checkout.
func NewDefaultLifetimePlan() *Plan {
	key := PlanKeyLifetimeDefault
	features, _ := json.Marshal([]string{
		"Sermões ilimitados",
		"Geração de esboços com IA",
		"Exportação em PDF e DOCX",
		"Acesso vitalício",
	})
	return &Plan{
		Key:         &key,
		Name:        "Vitalício",
		Description: "Acesso vitalício a todos os recursos",
		Price:       0,
		Interval:    PlanIntervalLifetime,
		Features:    datatypes.JSON(features),
		IsActive:    true,
	}
}
