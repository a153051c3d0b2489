package webhook

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/Sermonario/app/models"
)

// CanonicalPurchase is the family-independent shape extracted from a payload.
// RawStatus is the status exactly as found in the payload and may be empty;
// Status falls back to the family default and drives the action mapping.
type CanonicalPurchase struct {
	Email      string
	Name       string
	Phone      string
	Product    string
	RawStatus  string
	Status     string
	ExternalID string
}

// phonePair is an area-code field plus a subscriber-number field.
type phonePair struct {
	areaCode string
	number   string
}

// fieldSpec holds the ordered lookup paths for one family.
type fieldSpec struct {
	email         []string
	name          []string
	phonePairs    []phonePair
	phone         []string
	product       []string
	status        []string
	externalID    []string
	defaultStatus string
}

var fieldSpecs = map[SourceFamily]fieldSpec{
	SourceGGCheckout: {
		email: []string{"Email", "E-mail", "email", "customer.email", "buyer.email"},
		name:  []string{"Nome", "Nome Completo", "name", "customer.name", "buyer.name"},
		phonePairs: []phonePair{
			{areaCode: "DDD", number: "Telefone"},
			{areaCode: "customer.phone_area_code", number: "customer.phone_number"},
		},
		phone:      []string{"Telefone", "Celular", "phone", "customer.phone"},
		product:    []string{"Nome do Produto", "Produto", "product.name", "purchase.product.name"},
		status:     []string{"Status", "status", "purchase.status", "event"},
		externalID: []string{"ID da Transação", "Transação", "transaction_id", "purchase.transaction", "id"},

		// The dedicated checkout only notifies approved sales and often omits
		// the status field entirely.
		defaultStatus: "approved",
	},
	SourceHotmart: {
		email: []string{"data.buyer.email", "buyer.email", "email"},
		name:  []string{"data.buyer.name", "buyer.name", "name"},
		phonePairs: []phonePair{
			{areaCode: "data.buyer.checkout_phone_code", number: "data.buyer.checkout_phone"},
		},
		phone:      []string{"data.buyer.checkout_phone", "data.buyer.phone", "buyer.phone"},
		product:    []string{"data.product.name", "product.name"},
		status:     []string{"data.purchase.status", "status", "event"},
		externalID: []string{"data.purchase.transaction", "transaction", "id"},
	},
	SourceGCheckout: genericFieldSpec,
	SourceUnknown:   genericFieldSpec,
}

var genericFieldSpec = fieldSpec{
	email: []string{"email", "Email", "customer.email", "buyer.email", "data.customer.email", "data.email"},
	name:  []string{"name", "customer.name", "buyer.name", "data.customer.name"},
	phonePairs: []phonePair{
		{areaCode: "customer.phone.area_code", number: "customer.phone.number"},
	},
	phone:      []string{"phone", "customer.phone", "buyer.phone", "data.customer.phone"},
	product:    []string{"product.name", "product_name", "product", "items.0.name"},
	status:     []string{"status", "event", "order.status", "data.status"},
	externalID: []string{"transaction_id", "order_id", "order.id", "id", "data.id"},
}

var emailValidator = validator.New()

// Normalize extracts a canonical purchase record from payload. When the email
// cannot be resolved the partially filled record is still returned together
// with ErrEmailMissing or ErrEmailInvalid so callers can log the status.
func Normalize(p Payload, family SourceFamily) (CanonicalPurchase, error) {
	fields, ok := fieldSpecs[family]
	if !ok {
		fields = genericFieldSpec
	}

	out := CanonicalPurchase{
		Email:      p.FirstString(fields.email...),
		Name:       p.FirstString(fields.name...),
		Phone:      resolvePhone(p, fields),
		Product:    p.FirstString(fields.product...),
		RawStatus:  p.FirstString(fields.status...),
		ExternalID: p.FirstString(fields.externalID...),
	}
	out.Status = out.RawStatus
	if out.Status == "" {
		out.Status = fields.defaultStatus
	}

	if out.Email == "" {
		return out, ErrEmailMissing
	}
	if err := emailValidator.Var(out.Email, "email"); err != nil {
		return out, ErrEmailInvalid
	}
	if out.Name == "" {
		out.Name = models.EmailLocalPart(out.Email)
	}
	return out, nil
}

func resolvePhone(p Payload, fields fieldSpec) string {
	for _, pair := range fields.phonePairs {
		area := p.String(pair.areaCode)
		number := p.String(pair.number)
		if area != "" && number != "" {
			return area + number
		}
	}
	return p.FirstString(fields.phone...)
}

// truncate shortens s to at most n runes; used before persisting provider data
// into bounded columns.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
