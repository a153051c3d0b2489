package webhook

import "strings"

// Action is the canonical effect of a webhook on entitlements.
type Action string

const (
	ActionActivate Action = "ACTIVATE"
	ActionCancel   Action = "CANCEL"
	ActionIgnore   Action = "IGNORE"
)

func (a Action) String() string { return string(a) }

var (
	commonActivate = []string{"approved", "paid", "completed", "complete", "succeeded", "authorized"}
	commonCancel   = []string{"refunded", "chargeback", "canceled", "cancelled"}
)

type vocabulary struct {
	activate map[string]struct{}
	cancel   map[string]struct{}
}

var vocabularies = map[SourceFamily]vocabulary{
	SourceGGCheckout: newVocabulary(
		[]string{"aprovado", "aprovada", "pago", "compra aprovada"},
		[]string{"reembolsado", "cancelado", "estornado", "chargeback realizado"},
	),
	SourceHotmart: newVocabulary(
		[]string{"purchase_approved", "purchase_complete"},
		[]string{"purchase_refunded", "purchase_chargeback", "purchase_canceled", "purchase_cancelled", "subscription_cancellation"},
	),
	SourceGCheckout: genericVocabulary,
	SourceUnknown:   genericVocabulary,
}

var genericVocabulary = newVocabulary(
	[]string{"order.paid", "payment.succeeded", "payment.approved"},
	[]string{"chargedback", "order.refunded", "order.canceled", "payment.refunded"},
)

func newVocabulary(activateExtra, cancelExtra []string) vocabulary {
	v := vocabulary{
		activate: make(map[string]struct{}, len(commonActivate)+len(activateExtra)),
		cancel:   make(map[string]struct{}, len(commonCancel)+len(cancelExtra)),
	}
	for _, s := range append(append([]string{}, commonActivate...), activateExtra...) {
		v.activate[s] = struct{}{}
	}
	for _, s := range append(append([]string{}, commonCancel...), cancelExtra...) {
		v.cancel[s] = struct{}{}
	}
	return v
}

// MapStatus maps a raw provider status to an Action. It is total: empty and
// unrecognized values map to ActionIgnore.
func MapStatus(rawStatus string, family SourceFamily) Action {
	status := strings.ToLower(strings.TrimSpace(rawStatus))
	if status == "" {
		return ActionIgnore
	}
	v, ok := vocabularies[family]
	if !ok {
		v = genericVocabulary
	}
	if _, ok := v.activate[status]; ok {
		return ActionActivate
	}
	if _, ok := v.cancel[status]; ok {
		return ActionCancel
	}
	return ActionIgnore
}
