package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Sermonario/app/models"
)

// User-facing result messages.
const (
	MsgSubscriptionActivated = "Assinatura ativada com sucesso"
	MsgSubscriptionExisting  = "Usuário já possui assinatura ativa"
	MsgNoPlanAvailable       = "Nenhum plano ativo disponível; assinatura não criada"
	MsgSubscriptionCancelled = "Assinaturas canceladas"
	MsgCancelUnknownUser     = "Usuário não encontrado; nada a cancelar"
	MsgEventIgnored          = "Evento ignorado"
)

// ProcessInput is one inbound delivery.
type ProcessInput struct {
	Body []byte
	// Provider is the explicit family named by the caller. Empty means the
	// family is inferred from the payload.
	Provider SourceFamily
	// Signature is the raw SignatureHeader value, if any.
	Signature string
}

// Result describes what a pipeline run did.
type Result struct {
	EventID             uint
	DeliveryID          string
	Source              SourceFamily
	Action              Action
	UserID              uint
	UserCreated         bool
	SubscriptionCreated bool
	CancelledCount      int64
	Message             string
	// Handled is a terminal domain error recorded on the event. The delivery
	// is still acknowledged.
	Handled error

	attempted bool
}

// Process records a delivery and runs it through the pipeline. A non-nil error
// means the delivery must not be acknowledged as processed; when the event
// was recorded, Result still carries its identifiers.
func (s *Service) Process(ctx context.Context, in ProcessInput) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	source := in.Provider
	if source == "" {
		source = SourceUnknown
	}
	event, err := s.Record(ctx, RecordInput{Body: in.Body, Source: source})
	if err != nil {
		log.Errorf("[Webhook] Failed to record event: %v", err)
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	return s.run(ctx, event, in.Provider, in.Signature, false)
}

// Replay re-runs the pipeline for a stored event that was never finalized.
// No new event is recorded. The signature header is not stored, so while
// signatures are enforced only events that verified on an earlier run are
// processed; the rest are finalized as rejected.
func (s *Service) Replay(ctx context.Context, eventID uint) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	event, err := s.repo.GetWebhookEvent(ctx, eventID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	if event.IsFinalized() {
		return nil, ErrEventAlreadyFinalized
	}

	var provider SourceFamily
	if event.Source != models.WebhookSourceUnknown {
		provider = SourceFamily(event.Source)
	}
	log.Infof("[Webhook] Replaying event %d (delivery=%s, attempts=%d)", event.ID, event.DeliveryID, event.Attempts)

	res, err := s.run(ctx, event, provider, "", true)
	if err != nil {
		s.metrics.RecordReplay(OutcomeFailed)
		return res, err
	}
	s.metrics.RecordReplay(OutcomeProcessed)
	return res, nil
}

func (s *Service) run(ctx context.Context, event *models.WebhookEvent, provider SourceFamily, signature string, replay bool) (*Result, error) {
	start := s.now()
	res := &Result{
		EventID:    event.ID,
		DeliveryID: event.DeliveryID,
		Source:     provider,
		Action:     ActionIgnore,
	}
	if res.Source == "" {
		res.Source = SourceUnknown
	}
	defer func() {
		s.metrics.RecordProcessingDuration(res.Source, s.now().Sub(start))
	}()

	body := []byte(event.Payload)
	payload, err := ParsePayload(body)
	if err != nil {
		if markErr := s.markAttempt(ctx, res, "", false); markErr != nil {
			return res, s.fail(ctx, res, markErr)
		}
		if finErr := s.finalize(ctx, res, false, err.Error()); finErr != nil {
			return res, s.fail(ctx, res, finErr)
		}
		s.metrics.RecordEvent(res.Source, res.Action, OutcomeRejected)
		log.Warnf("[Webhook] delivery=%s rejected: %v", res.DeliveryID, err)
		return res, err
	}

	if provider == "" {
		res.Source = Classify(payload)
	}
	purchase, normErr := Normalize(payload, res.Source)

	// Verification happens before any write that can fail, and its outcome is
	// persisted with the attempt for later replays.
	verified, sigErr := s.checkSignature(event, res.Source, body, payload, signature, replay)
	if err := s.markAttempt(ctx, res, purchase.RawStatus, verified); err != nil {
		return res, s.fail(ctx, res, err)
	}
	if sigErr != nil {
		if err := s.finalize(ctx, res, false, sigErr.Error()); err != nil {
			return res, s.fail(ctx, res, err)
		}
		s.metrics.RecordEvent(res.Source, res.Action, OutcomeRejected)
		log.Warnf("[Webhook] delivery=%s source=%s rejected: %v", res.DeliveryID, res.Source, sigErr)
		return res, sigErr
	}

	if normErr != nil {
		return s.handled(ctx, res, normErr)
	}

	res.Action = MapStatus(purchase.Status, res.Source)
	switch res.Action {
	case ActionActivate, ActionCancel:
		release, err := s.locker.Lock(ctx, purchase.Email)
		if err != nil {
			return res, s.fail(ctx, res, err)
		}
		if res.Action == ActionActivate {
			err = s.applyActivation(ctx, res, purchase)
		} else {
			err = s.applyCancellation(ctx, res, purchase)
		}
		release()
		if IsDomainError(err) {
			return s.handled(ctx, res, err)
		}
		if err != nil {
			return res, s.fail(ctx, res, err)
		}
	default:
		res.Message = fmt.Sprintf("%s: status %q", MsgEventIgnored, purchase.Status)
	}

	if err := s.finalize(ctx, res, true, ""); err != nil {
		return res, s.fail(ctx, res, err)
	}
	outcome := OutcomeProcessed
	if res.Action == ActionIgnore {
		outcome = OutcomeIgnored
	}
	s.metrics.RecordEvent(res.Source, res.Action, outcome)
	log.Infof("[Webhook] delivery=%s source=%s action=%s user=%d userCreated=%t subscriptionCreated=%t cancelled=%d",
		res.DeliveryID, res.Source, res.Action, res.UserID, res.UserCreated, res.SubscriptionCreated, res.CancelledCount)
	return res, nil
}

// checkSignature reports whether the delivery is verified and, when signatures
// are enforced for family, why it is rejected. A replay cannot see the original
// header and relies on the outcome stored by an earlier run.
func (s *Service) checkSignature(event *models.WebhookEvent, family SourceFamily, body []byte, payload Payload, signature string, replay bool) (bool, error) {
	secret := s.cfg.Secret(family)
	if replay {
		if event.SignatureVerified || !s.cfg.SignatureRequired(family) {
			return event.SignatureVerified, nil
		}
		return false, ErrInvalidSignature
	}
	if secret != "" {
		if VerifySignature(family, body, payload, signature, secret) {
			return true, nil
		}
		return false, ErrInvalidSignature
	}
	if s.cfg.SignatureRequired(family) {
		return false, ErrSignatureRequired
	}
	return false, nil
}

func (s *Service) markAttempt(ctx context.Context, res *Result, eventType string, verified bool) error {
	if err := s.repo.MarkWebhookAttempt(ctx, res.EventID, res.Source.String(), truncate(eventType, 100), verified); err != nil {
		return err
	}
	res.attempted = true
	return nil
}

func (s *Service) applyActivation(ctx context.Context, res *Result, purchase CanonicalPurchase) error {
	user, created, err := s.ReconcileUser(ctx, res.Source, purchase)
	if err != nil {
		return err
	}
	res.UserID = user.ID
	res.UserCreated = created

	plan, err := s.ResolvePlan(ctx, res.Source)
	if err != nil {
		return err
	}
	if plan == nil {
		log.Warnf("[Webhook] delivery=%s no active plan, skipping activation for user %d", res.DeliveryID, user.ID)
		res.Message = MsgNoPlanAvailable
		return nil
	}

	_, subCreated, err := s.Activate(ctx, user, plan, purchase.ExternalID)
	if err != nil {
		return err
	}
	res.SubscriptionCreated = subCreated
	if subCreated {
		s.metrics.RecordSubscriptionCreated(res.Source)
		res.Message = MsgSubscriptionActivated
	} else {
		res.Message = MsgSubscriptionExisting
	}
	return nil
}

func (s *Service) applyCancellation(ctx context.Context, res *Result, purchase CanonicalPurchase) error {
	user, err := s.repo.FindUserByEmail(ctx, purchase.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		res.Message = MsgCancelUnknownUser
		return nil
	}
	if err != nil {
		return err
	}
	res.UserID = user.ID

	n, err := s.Cancel(ctx, user)
	if err != nil {
		return err
	}
	res.CancelledCount = n
	res.Message = fmt.Sprintf("%s: %d", MsgSubscriptionCancelled, n)
	s.metrics.RecordSubscriptionsCancelled(res.Source, n)
	return nil
}

// handled finalizes a terminal domain failure as processed with its message.
func (s *Service) handled(ctx context.Context, res *Result, cause error) (*Result, error) {
	res.Handled = cause
	res.Message = cause.Error()
	if err := s.finalize(ctx, res, true, cause.Error()); err != nil {
		return res, s.fail(ctx, res, err)
	}
	s.metrics.RecordEvent(res.Source, res.Action, OutcomeIgnored)
	log.Warnf("[Webhook] delivery=%s source=%s handled: %v", res.DeliveryID, res.Source, cause)
	return res, nil
}

// finalize treats a concurrent finalization by another run as success.
func (s *Service) finalize(ctx context.Context, res *Result, processed bool, errMsg string) error {
	err := s.Finalize(ctx, res.EventID, processed, errMsg)
	if errors.Is(err, ErrEventAlreadyFinalized) {
		log.Infof("[Webhook] delivery=%s already finalized by a concurrent run", res.DeliveryID)
		return nil
	}
	return err
}

// fail stores cause on the event without finalizing it and returns cause.
func (s *Service) fail(ctx context.Context, res *Result, cause error) error {
	s.metrics.RecordEvent(res.Source, res.Action, OutcomeFailed)
	log.Errorf("[Webhook] delivery=%s source=%s failed: %v", res.DeliveryID, res.Source, cause)
	// The request context may have expired; the failure note must still land.
	noteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()
	if err := s.RecordFailure(noteCtx, res.EventID, cause, !res.attempted); err != nil {
		log.Errorf("[Webhook] delivery=%s could not record failure: %v", res.DeliveryID, err)
	}
	return cause
}
