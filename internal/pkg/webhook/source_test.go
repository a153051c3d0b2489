package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want SourceFamily
	}{
		{"checkout token", `{"checkout_token":"t","email":"a@x.com"}`, SourceGGCheckout},
		{"webhook token", `{"webhook_token":"t"}`, SourceGGCheckout},
		{"purchase with product", `{"purchase":{"product":{"name":"X"}},"status":"approved"}`, SourceGGCheckout},
		{"purchase with product id", `{"purchase":{"productId":"p1"}}`, SourceGGCheckout},
		{"locale keys", `{"Email":"a@x.com","Nome":"Ana"}`, SourceGGCheckout},
		{"locale keys with hyphen", `{"E-mail":"a@x.com","DDD":"11","Telefone":"9999"}`, SourceGGCheckout},
		{"hottok", `{"hottok":"abc","event":"PURCHASE_APPROVED"}`, SourceHotmart},
		{"hotmart nesting", `{"data":{"buyer":{"email":"a@x.com"},"purchase":{"status":"APPROVED"}}}`, SourceHotmart},
		{"generic status", `{"status":"paid","email":"a@x.com"}`, SourceGCheckout},
		{"generic event", `{"event":"order.paid"}`, SourceGCheckout},
		{"purchase without product", `{"purchase":{"status":"x"},"status":"paid"}`, SourceGCheckout},
		{"locale email alone", `{"Email":"a@x.com"}`, SourceUnknown},
		{"nothing", `{"foo":"bar"}`, SourceUnknown},
		{"empty object", `{}`, SourceUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePayload([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, Classify(p))
		})
	}
}

func TestClassify_NilPayload(t *testing.T) {
	assert.Equal(t, SourceUnknown, Classify(nil))
}

func TestParseSourceFamily(t *testing.T) {
	tests := []struct {
		in     string
		want   SourceFamily
		wantOK bool
	}{
		{"ggcheckout", SourceGGCheckout, true},
		{"GG-Checkout", SourceGGCheckout, true},
		{"hotmart", SourceHotmart, true},
		{" HOTMART ", SourceHotmart, true},
		{"gcheckout", SourceGCheckout, true},
		{"generic", SourceGCheckout, true},
		{"stripe", SourceUnknown, false},
		{"", SourceUnknown, false},
	}
	for _, tt := range tests {
		got, ok := ParseSourceFamily(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
	}
}

func TestSourceFamilyFlags(t *testing.T) {
	assert.True(t, SourceGGCheckout.IsDedicatedCheckout())
	assert.False(t, SourceHotmart.IsDedicatedCheckout())
	assert.False(t, SourceGGCheckout.ProvisionsTemporaryPassword())
	assert.True(t, SourceHotmart.ProvisionsTemporaryPassword())
	assert.True(t, SourceUnknown.ProvisionsTemporaryPassword())
}
