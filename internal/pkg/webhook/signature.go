package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"strings"
)

// SignatureHeader carries an HMAC-SHA256 hex digest of the raw body.
const SignatureHeader = "X-Webhook-Signature"

// tokenFields lists payload fields that carry a shared secret issued by the
// provider, per family.
var tokenFields = map[SourceFamily][]string{
	SourceGGCheckout: checkoutTokenKeys,
	SourceHotmart:    {"hottok"},
	SourceGCheckout:  {"token", "webhook_token"},
}

// VerifySignature checks a delivery against secret. The header form is an
// HMAC-SHA256 of the body, optionally prefixed with "sha256=". Without a header
// the family's token field must equal the secret.
func VerifySignature(family SourceFamily, body []byte, payload Payload, signatureHeader, secret string) bool {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return false
	}

	if sig := strings.TrimSpace(signatureHeader); sig != "" {
		sig = strings.TrimPrefix(strings.ToLower(sig), "sha256=")
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			return false
		}
		return verifyHMAC(body, decoded, []byte(secret), sha256.New)
	}

	token := payload.FirstString(tokenFields[family]...)
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

// SignBody returns the hex HMAC-SHA256 of body, the value expected in
// SignatureHeader.
func SignBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}
