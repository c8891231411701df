package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/pkg/db"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/mercadopago"
	"github.com/angelmondragon/gallotrack-backend/pkg/security"
)

const webhookScope = "webhook:mercadopago"

// Webhook outcomes, also used as metric labels.
const (
	OutcomePromoted  = "promoted"
	OutcomeRejected  = "rejected"
	OutcomeRecorded  = "recorded"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)

var errWebhookRaced = errors.New("payment linked by a concurrent webhook")

// WebhookInput carries the parts of a processor callback the coordinator
// reads. ResourceID falls back to data.id in the body.
type WebhookInput struct {
	Signature  string
	RequestID  string
	ResourceID string
	Body       []byte
}

type WebhookResult struct {
	Outcome   string
	PaymentID uint64
}

type webhookBody struct {
	Type string `json:"type"`
	Data struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// IngestWebhook verifies a processor callback, fetches the payment it names
// and applies the processor's verdict. Callbacks that need no action are
// acknowledged with a nil error so the processor stops retrying.
func (c *Coordinator) IngestWebhook(ctx context.Context, in WebhookInput) (*WebhookResult, error) {
	resourceID, kind := parseWebhookBody(in.Body)
	if id := strings.TrimSpace(in.ResourceID); id != "" {
		resourceID = id
	}
	if c.logg != nil {
		ctx = c.logg.WithProvider(ctx, "mercadopago")
		ctx = c.logg.WithFields(ctx, map[string]any{"resource_id": resourceID, "request_id": in.RequestID})
	}

	if c.webhookSecret == "" {
		if c.logg != nil {
			c.logg.Warn(ctx, "webhook signature check disabled, no secret configured")
		}
	} else if err := c.verifySignature(resourceID, in); err != nil {
		c.metrics.IncWebhook("signature_invalid")
		return nil, err
	}

	if resourceID == "" || (kind != "" && kind != "payment") {
		return c.acknowledge(ctx, &WebhookResult{Outcome: OutcomeIgnored}), nil
	}
	if c.processor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment processor not configured").
			WithReason(ReasonProcessorFailed)
	}

	remote, err := c.processor.FetchPayment(ctx, resourceID)
	if err != nil {
		c.metrics.IncWebhook("processor_failed")
		if c.logg != nil {
			c.logg.Error(ctx, "fetch processor payment failed", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch processor payment").
			WithReason(ReasonProcessorFailed)
	}

	guardKey := remote.ID + ":" + remote.Status
	if c.guard != nil {
		seen, err := c.guard.CheckAndMarkKey(ctx, webhookScope, guardKey)
		switch {
		case err != nil:
			if c.logg != nil {
				c.logg.Warn(ctx, "webhook idempotency guard unavailable, relying on database state")
			}
		case seen:
			return c.acknowledge(ctx, &WebhookResult{Outcome: OutcomeDuplicate}), nil
		}
	}

	result, err := c.applyRemote(ctx, remote)
	if errors.Is(err, errWebhookRaced) {
		result, err = &WebhookResult{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		if c.guard != nil {
			_ = c.guard.ReleaseKey(ctx, webhookScope, guardKey)
		}
		return nil, err
	}
	return c.acknowledge(ctx, result), nil
}

func (c *Coordinator) verifySignature(resourceID string, in WebhookInput) error {
	sig, err := security.ParseWebhookSignature(in.Signature)
	if err != nil {
		return errSignatureInvalid()
	}
	if err := security.VerifyWebhookSignature(c.webhookSecret, resourceID, in.RequestID, sig); err != nil {
		return errSignatureInvalid()
	}
	return nil
}

func (c *Coordinator) acknowledge(ctx context.Context, result *WebhookResult) *WebhookResult {
	c.metrics.IncWebhook(result.Outcome)
	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{"outcome": result.Outcome, "payment_id": result.PaymentID})
		c.logg.Info(logCtx, "payment webhook handled")
	}
	return result
}

// applyRemote links the processor payment to a local row and applies its
// status. A row already decided, or already carrying this status, is left
// untouched so replays leave the store unchanged.
func (c *Coordinator) applyRemote(ctx context.Context, remote *mercadopago.Payment) (*WebhookResult, error) {
	result := &WebhookResult{}
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		payment, err := repo.FindByExternalID(ctx, remote.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment by external id")
		}
		if payment != nil {
			result.PaymentID = payment.ID
			recorded := payment.ProcessorStatus != nil && *payment.ProcessorStatus == remote.Status
			if !payment.State.Verifiable() || recorded {
				result.Outcome = OutcomeDuplicate
				return nil
			}
		} else {
			payment, err = c.linkRemote(ctx, repo, remote)
			if err != nil || payment == nil {
				result.Outcome = OutcomeIgnored
				return err
			}
			result.PaymentID = payment.ID
		}

		status := remote.Status
		payment.ProcessorStatus = &status
		payment.Attempts++

		switch status {
		case mercadopago.StatusApproved:
			result.Outcome = OutcomePromoted
			_, err = c.approve(ctx, tx, payment, nil)
			return err
		case mercadopago.StatusRejected, "cancelled":
			result.Outcome = OutcomeRejected
			return c.reject(ctx, tx, payment, nil)
		default:
			result.Outcome = OutcomeRecorded
			if err := repo.Save(ctx, payment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record processor status")
			}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	if result.Outcome == OutcomePromoted || result.Outcome == OutcomeRejected {
		state := enums.PaymentStateApproved
		if result.Outcome == OutcomeRejected {
			state = enums.PaymentStateRejected
		}
		c.metrics.IncDecision(string(state))
	}
	return result, nil
}

// linkRemote attaches the processor id to the owner's open checkout for the
// plan, creating the row when the checkout was never recorded locally. It
// returns nil when the metadata does not name a known owner and plan.
func (c *Coordinator) linkRemote(ctx context.Context, repo Repository, remote *mercadopago.Payment) (*models.PendingPayment, error) {
	if remote.OwnerID == 0 || remote.PlanCode == "" {
		if c.logg != nil {
			c.logg.Warn(ctx, "processor payment carries no owner or plan metadata")
		}
		return nil, nil
	}
	plan, err := c.billing.Plan(ctx, remote.PlanCode)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			if c.logg != nil {
				c.logg.Warn(c.logg.WithField(ctx, "plan_code", remote.PlanCode), "processor payment names unknown plan")
			}
			return nil, nil
		}
		return nil, err
	}

	payment, err := repo.FindOpenForPlan(ctx, remote.OwnerID, plan.Code, enums.PaymentMethodMercadoPago)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load open checkout")
	}
	externalID := remote.ID
	if payment != nil {
		payment.ExternalID = &externalID
		if err := repo.Save(ctx, payment); err != nil {
			if db.IsUniqueViolation(err, "") {
				return nil, errWebhookRaced
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link checkout")
		}
		return payment, nil
	}

	currency := remote.Currency
	if currency == "" {
		currency = c.cfg.Currency
	}
	reference := mercadopago.ExternalReference(remote.OwnerID, plan.Code)
	payment = &models.PendingPayment{
		OwnerID:    remote.OwnerID,
		PlanCode:   plan.Code,
		Amount:     remote.Amount,
		Currency:   currency,
		Method:     enums.PaymentMethodMercadoPago,
		Reference:  &reference,
		ExternalID: &externalID,
		State:      enums.PaymentStatePending,
	}
	if err := repo.Create(ctx, payment); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, errWebhookRaced
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record processor payment")
	}
	return payment, nil
}

func parseWebhookBody(body []byte) (string, string) {
	if len(body) == 0 {
		return "", ""
	}
	var decoded webhookBody
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", ""
	}
	id := strings.Trim(strings.TrimSpace(string(decoded.Data.ID)), `"`)
	if id == "null" {
		id = ""
	}
	return id, strings.TrimSpace(decoded.Type)
}
