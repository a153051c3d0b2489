package webhook

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/Sermonario/app/models"
	"github.com/ManuelReschke/Sermonario/internal/pkg/env"
)

// Config controls plan defaults and opt-in signature checks per family.
type Config struct {
	// DefaultPlanKeys maps a family to the plan key granted on activation.
	DefaultPlanKeys map[SourceFamily]string
	// Secrets enables signature verification for a family when non-empty.
	Secrets map[SourceFamily]string
	// AllowUnsigned lets families without a secret accept unsigned deliveries
	// while other families are secured. Off by default: once any secret is
	// set, every family must verify.
	AllowUnsigned bool
	// Timeout bounds the storage work of a single pipeline run.
	Timeout time.Duration `validate:"gt=0"`
}

// DefaultConfig returns the built-in configuration: the dedicated checkout
// grants the lifetime plan and no signature checks are enforced.
func DefaultConfig() Config {
	return Config{
		DefaultPlanKeys: map[SourceFamily]string{
			SourceGGCheckout: models.PlanKeyLifetimeDefault,
		},
		Secrets: map[SourceFamily]string{},
		Timeout: 15 * time.Second,
	}
}

// LoadConfig reads DEFAULT_PLAN_KEY_<FAMILY>, WEBHOOK_SECRET_<FAMILY>,
// WEBHOOK_ALLOW_UNSIGNED and WEBHOOK_TIMEOUT from the environment on top of
// DefaultConfig.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	for _, f := range Families {
		if key := strings.TrimSpace(env.GetEnv("DEFAULT_PLAN_KEY_"+f.String(), "")); key != "" {
			cfg.DefaultPlanKeys[f] = key
		}
		if secret := strings.TrimSpace(env.GetEnv("WEBHOOK_SECRET_"+f.String(), "")); secret != "" {
			cfg.Secrets[f] = secret
		}
	}
	cfg.AllowUnsigned = env.GetBool("WEBHOOK_ALLOW_UNSIGNED", false)
	if raw := env.GetEnv("WEBHOOK_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return cfg, err
		}
		cfg.Timeout = d
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for obviously wrong values.
func (c Config) Validate() error {
	return validator.New().Struct(c)
}

// PlanKey returns the configured plan key for family, if any.
func (c Config) PlanKey(family SourceFamily) string {
	if c.DefaultPlanKeys == nil {
		return ""
	}
	return c.DefaultPlanKeys[family]
}

// Secret returns the configured signature secret for family, if any.
func (c Config) Secret(family SourceFamily) string {
	if c.Secrets == nil {
		return ""
	}
	return c.Secrets[family]
}

// SignatureRequired reports whether deliveries attributed to family must pass
// verification. A family without its own secret is still required to verify
// when any other family has one, unless AllowUnsigned is set.
func (c Config) SignatureRequired(family SourceFamily) bool {
	if c.Secret(family) != "" {
		return true
	}
	if c.AllowUnsigned {
		return false
	}
	for _, secret := range c.Secrets {
		if secret != "" {
			return true
		}
	}
	return false
}
