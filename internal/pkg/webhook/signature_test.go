package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature_Header(t *testing.T) {
	body := []byte(`{"email":"a@x.com","status":"paid"}`)
	p := mustParse(t, string(body))
	sig := SignBody(body, "top-secret")

	assert.True(t, VerifySignature(SourceGCheckout, body, p, sig, "top-secret"))
	assert.True(t, VerifySignature(SourceGCheckout, body, p, "sha256="+sig, "top-secret"))
	assert.False(t, VerifySignature(SourceGCheckout, body, p, sig, "other"))
	assert.False(t, VerifySignature(SourceGCheckout, body, p, "deadbeef", "top-secret"))
	assert.False(t, VerifySignature(SourceGCheckout, body, p, "not-hex", "top-secret"))
}

func TestVerifySignature_Token(t *testing.T) {
	body := []byte(`{"hottok":"abc123","data":{}}`)
	p := mustParse(t, string(body))

	assert.True(t, VerifySignature(SourceHotmart, body, p, "", "abc123"))
	assert.False(t, VerifySignature(SourceHotmart, body, p, "", "abc124"))
	assert.False(t, VerifySignature(SourceGGCheckout, body, p, "", "abc123"), "token field is family specific")
}

func TestVerifySignature_NoSecret(t *testing.T) {
	body := []byte(`{"hottok":""}`)
	assert.False(t, VerifySignature(SourceHotmart, body, mustParse(t, string(body)), "", ""))
}
