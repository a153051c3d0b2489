package webhook

import (
	"strings"

	"github.com/ManuelReschke/Sermonario/app/models"
)

// SourceFamily is the provider category a payload is believed to come from.
type SourceFamily string

const (
	SourceGGCheckout SourceFamily = models.WebhookSourceGGCheckout
	SourceHotmart    SourceFamily = models.WebhookSourceHotmart
	SourceGCheckout  SourceFamily = models.WebhookSourceGCheckout
	SourceUnknown    SourceFamily = models.WebhookSourceUnknown
)

// Families lists every known family in classification order.
var Families = []SourceFamily{SourceGGCheckout, SourceHotmart, SourceGCheckout, SourceUnknown}

func (f SourceFamily) String() string { return string(f) }

// IsDedicatedCheckout reports whether the family is the dedicated purchase
// channel that always grants the lifetime plan.
func (f SourceFamily) IsDedicatedCheckout() bool { return f == SourceGGCheckout }

// ProvisionsTemporaryPassword reports whether users created from this family
// receive a random temporary password. The dedicated checkout leaves the
// password empty instead.
func (f SourceFamily) ProvisionsTemporaryPassword() bool { return f != SourceGGCheckout }

// ParseSourceFamily resolves an explicit provider discriminator such as an
// endpoint path segment or header value.
func ParseSourceFamily(name string) (SourceFamily, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ggcheckout", "gg-checkout", "gg_checkout":
		return SourceGGCheckout, true
	case "hotmart":
		return SourceHotmart, true
	case "gcheckout", "g-checkout", "g_checkout", "generic":
		return SourceGCheckout, true
	default:
		return SourceUnknown, false
	}
}

var (
	checkoutTokenKeys     = []string{"checkout_token", "webhook_token", "signature"}
	purchaseProductRefs   = []string{"purchase.product", "purchase.product_id", "purchase.productId"}
	localeEmailKeys       = []string{"Email", "E-mail"}
	localeCompanionKeys   = []string{"Nome", "Nome do Produto", "Telefone", "DDD"}
	genericDiscriminators = []string{"event", "status"}
)

// Classify assigns a payload to a source family using structural heuristics.
// It never fails; ambiguous payloads fall through to the generic family or
// UNKNOWN.
func Classify(p Payload) SourceFamily {
	if len(p) == 0 {
		return SourceUnknown
	}

	if anyPresent(p, checkoutTokenKeys) {
		return SourceGGCheckout
	}
	if p.IsObject("purchase") && anyPresent(p, purchaseProductRefs) {
		return SourceGGCheckout
	}
	if anyPresent(p, localeEmailKeys) && anyPresent(p, localeCompanionKeys) {
		return SourceGGCheckout
	}

	if p.Has("hottok") {
		return SourceHotmart
	}
	if p.IsObject("data.buyer") && p.IsObject("data.purchase") {
		return SourceHotmart
	}

	if anyPresent(p, genericDiscriminators) {
		return SourceGCheckout
	}
	return SourceUnknown
}

func anyPresent(p Payload, paths []string) bool {
	for _, path := range paths {
		if p.Has(path) {
			return true
		}
	}
	return false
}
