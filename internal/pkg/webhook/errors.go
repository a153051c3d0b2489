package webhook

import (
	"errors"
	"fmt"
)

var (
	// ErrEmailMissing is a terminal normalization failure: no buyer email could
	// be resolved from the payload.
	ErrEmailMissing = errors.New("Email não encontrado no payload")

	// ErrEmailInvalid is a terminal normalization failure: the resolved email
	// is not a syntactically valid address.
	ErrEmailInvalid = errors.New("Email inválido no payload")

	// ErrInvalidPayload is returned when the body is not a JSON object.
	ErrInvalidPayload = errors.New("invalid JSON payload")

	// ErrInvalidSignature is returned when an opt-in signature check fails.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrSignatureRequired rejects a delivery whose family has no secret while
	// signatures are enforced. It matches ErrInvalidSignature.
	ErrSignatureRequired = fmt.Errorf("%w: no secret configured for source", ErrInvalidSignature)

	// ErrEventNotFound is returned when a webhook event id does not exist.
	ErrEventNotFound = errors.New("webhook event not found")

	// ErrEventAlreadyFinalized is returned when replaying an event whose
	// finalizer already ran.
	ErrEventAlreadyFinalized = errors.New("webhook event already finalized")
)

// IsDomainError reports whether err is a handled, terminal domain failure that
// is recorded on the event instead of failing the request.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrEmailMissing) || errors.Is(err, ErrEmailInvalid)
}
