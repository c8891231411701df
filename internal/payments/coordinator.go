package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/internal/billing"
	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/mercadopago"
	"github.com/angelmondragon/gallotrack-backend/pkg/metrics"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gallotrack-backend/pkg/storage"
)

const adminRole = "admin"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type planBilling interface {
	Plan(ctx context.Context, code string) (*models.Plan, error)
	Promote(ctx context.Context, tx *gorm.DB, ownerID uint64, planCode string, paymentID *uint64) (*models.Subscription, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type paymentProcessor interface {
	FetchPayment(ctx context.Context, resourceID string) (*mercadopago.Payment, error)
}

type webhookGuard interface {
	CheckAndMarkKey(ctx context.Context, scope, id string) (bool, error)
	ReleaseKey(ctx context.Context, scope, id string) error
}

type receiptStore interface {
	Upload(ctx context.Context, payload []byte, name, folder string, kind enums.MediaKind) (*storage.UploadResult, error)
	Delete(ctx context.Context, storageID string) bool
}

// ServiceParams groups dependencies for the payment coordinator.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Billing           planBilling
	Outbox            eventEmitter
	Processor         paymentProcessor
	Idempotency       webhookGuard
	Receipts          receiptStore
	ReceiptLimits     storage.Limits
	RootFolder        string
	Payments          config.PaymentsConfig
	WebhookSecret     string
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
	Now               func() time.Time
}

// Coordinator moves a payment from submission to a committed plan promotion.
type Coordinator struct {
	repo          Repository
	tx            txRunner
	billing       planBilling
	outbox        eventEmitter
	processor     paymentProcessor
	guard         webhookGuard
	receipts      receiptStore
	limits        storage.Limits
	rootFolder    string
	cfg           config.PaymentsConfig
	webhookSecret string
	metrics       *metrics.PaymentMetrics
	logg          *logger.Logger
	now           func() time.Time
}

func NewCoordinator(params ServiceParams) (*Coordinator, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Billing == nil {
		return nil, errors.New("billing service is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	root := strings.Trim(params.RootFolder, "/")
	if root == "" {
		root = "gallotrack"
	}
	cfg := params.Payments
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "USD"
	}
	return &Coordinator{
		repo:          params.Repo,
		tx:            params.TransactionRunner,
		billing:       params.Billing,
		outbox:        params.Outbox,
		processor:     params.Processor,
		guard:         params.Idempotency,
		receipts:      params.Receipts,
		limits:        params.ReceiptLimits,
		rootFolder:    root,
		cfg:           cfg,
		webhookSecret: strings.TrimSpace(params.WebhookSecret),
		metrics:       params.Metrics,
		logg:          params.Logger,
		now:           now,
	}, nil
}

// SubmitInput is a user-initiated upgrade payment.
type SubmitInput struct {
	PlanCode    string
	Amount      decimal.Decimal
	Method      enums.PaymentMethod
	Reference   string
	Receipt     []byte
	ReceiptName string
}

// Submit records a pending payment and queues the admin alert. A receipt
// image, when given, is stored before the row is written and removed again
// if the write fails.
func (c *Coordinator) Submit(ctx context.Context, ownerID uint64, in SubmitInput) (*models.PendingPayment, error) {
	if ownerID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner is required")
	}
	if !in.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"field": "method"})
	}
	if in.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative").
			WithDetails(map[string]any{"field": "amount"})
	}
	plan, err := c.billing.Plan(ctx, in.PlanCode)
	if err != nil {
		return nil, err
	}
	if plan.Code == billing.PlanGratis {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "the gratis plan needs no payment").
			WithDetails(map[string]any{"field": "plan_code"})
	}

	amount := in.Amount
	if amount.IsZero() {
		amount = plan.Price
	}
	payment := &models.PendingPayment{
		OwnerID:  ownerID,
		PlanCode: plan.Code,
		Amount:   amount.Round(2),
		Currency: c.cfg.Currency,
		Method:   in.Method,
		State:    enums.PaymentStatePending,
	}
	switch ref := strings.TrimSpace(in.Reference); {
	case in.Method == enums.PaymentMethodMercadoPago:
		external := mercadopago.ExternalReference(ownerID, plan.Code)
		payment.Reference = &external
	case ref != "":
		payment.Reference = &ref
	}

	if len(in.Receipt) > 0 {
		res, err := c.storeReceipt(ctx, ownerID, in.Receipt, in.ReceiptName)
		if err != nil {
			return nil, err
		}
		payment.ReceiptURL = res.URL
		payment.ReceiptStorageID = res.StorageID
	}

	err = c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		if err := repo.Create(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment")
		}
		if payment.Method == enums.PaymentMethodQRTransfer {
			payment.QRPayload = c.qrPayload(payment)
			if err := repo.Save(ctx, payment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store qr payload")
			}
		}
		return c.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentSubmitted,
			AggregateType: enums.AggregatePendingPayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{PrincipalID: ownerID, Role: "owner"},
			Data: payloads.PaymentSubmittedEvent{
				PaymentID: payment.ID,
				OwnerID:   ownerID,
				PlanCode:  payment.PlanCode,
				Amount:    payment.Amount,
				Currency:  payment.Currency,
				Method:    payment.Method,
			},
		})
	})
	if err != nil {
		if payment.ReceiptStorageID != "" && c.receipts != nil {
			c.receipts.Delete(ctx, payment.ReceiptStorageID)
		}
		return nil, err
	}

	if c.logg != nil {
		logCtx := c.logg.WithOwnerID(ctx, ownerID)
		logCtx = c.logg.WithFields(logCtx, map[string]any{
			"payment_id": payment.ID,
			"plan_code":  payment.PlanCode,
			"method":     payment.Method,
		})
		c.logg.Info(logCtx, "payment submitted")
	}
	return payment, nil
}

func (c *Coordinator) storeReceipt(ctx context.Context, ownerID uint64, payload []byte, name string) (*storage.UploadResult, error) {
	if c.receipts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "no storage provider configured").
			WithReason(storage.ReasonProviderFailed)
	}
	if _, _, err := storage.Sniff(payload, enums.MediaKindImage, c.limits); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "receipt.jpg"
	}
	folder := fmt.Sprintf("%s/owners/%d/receipts", c.rootFolder, ownerID)
	return c.receipts.Upload(ctx, payload, name, folder, enums.MediaKindImage)
}

// qrPayload is the transfer instruction encoded in the QR shown to the user.
func (c *Coordinator) qrPayload(p *models.PendingPayment) string {
	return strings.Join([]string{
		"GALLOTRACK",
		c.cfg.QRMerchantName,
		c.cfg.QRAccount,
		p.Amount.StringFixed(2),
		p.Currency,
		fmt.Sprintf("GT-%d", p.ID),
	}, "|")
}

// BeginReview moves a pending payment into verifying. Reviewing a payment
// already under review is a no-op.
func (c *Coordinator) BeginReview(ctx context.Context, adminID, paymentID uint64) (*models.PendingPayment, error) {
	var out *models.PendingPayment
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		payment, err := repo.FindForUpdate(ctx, paymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
		}
		if payment == nil {
			return errPaymentMissing(paymentID)
		}
		switch payment.State {
		case enums.PaymentStateVerifying:
			out = payment
			return nil
		case enums.PaymentStatePending:
		default:
			return errNotVerifiable(paymentID, payment.State)
		}
		now := c.now().UTC()
		payment.State = enums.PaymentStateVerifying
		payment.VerifiedBy = &adminID
		payment.ReviewStartedAt = &now
		if err := repo.Save(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "start review")
		}
		out = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Decision is the committed outcome of a verification.
type Decision struct {
	Payment      *models.PendingPayment
	Subscription *models.Subscription
}

// Verify applies an admin decision. Approval promotes the owner's plan in the
// same transaction that marks the payment approved.
func (c *Coordinator) Verify(ctx context.Context, adminID, paymentID uint64, decision enums.PaymentDecision, note string) (*Decision, error) {
	if !decision.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid decision").
			WithDetails(map[string]any{"field": "decision"})
	}
	actor := &outbox.ActorRef{PrincipalID: adminID, Role: adminRole}

	var out Decision
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payment, err := c.repo.WithTx(tx).FindForUpdate(ctx, paymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
		}
		if payment == nil {
			return errPaymentMissing(paymentID)
		}
		if !payment.State.Verifiable() {
			return errNotVerifiable(paymentID, payment.State)
		}
		payment.VerifiedBy = &adminID
		if n := strings.TrimSpace(note); n != "" {
			payment.AdminNote = &n
		}
		out.Payment = payment
		if decision == enums.PaymentDecisionApprove {
			out.Subscription, err = c.approve(ctx, tx, payment, actor)
			return err
		}
		return c.reject(ctx, tx, payment, actor)
	})
	if err != nil {
		return nil, err
	}

	c.metrics.IncDecision(string(out.Payment.State))
	if c.logg != nil {
		logCtx := c.logg.WithOwnerID(ctx, out.Payment.OwnerID)
		logCtx = c.logg.WithFields(logCtx, map[string]any{
			"payment_id": paymentID,
			"admin_id":   adminID,
			"state":      out.Payment.State,
		})
		c.logg.Info(logCtx, "payment decided")
	}
	return &out, nil
}

// approve promotes the plan and closes the payment on tx.
func (c *Coordinator) approve(ctx context.Context, tx *gorm.DB, payment *models.PendingPayment, actor *outbox.ActorRef) (*models.Subscription, error) {
	sub, err := c.billing.Promote(ctx, tx, payment.OwnerID, payment.PlanCode, &payment.ID)
	if err != nil {
		return nil, err
	}
	if err := c.close(ctx, tx, payment, enums.PaymentStateApproved); err != nil {
		return nil, err
	}
	if err := c.emitDecision(ctx, tx, payment, enums.EventPaymentApproved, actor); err != nil {
		return nil, err
	}
	err = c.emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionPromoted,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Actor:         actor,
		Data: payloads.SubscriptionPromotedEvent{
			SubscriptionID: sub.ID,
			OwnerID:        sub.OwnerID,
			PlanCode:       sub.PlanCode,
			EndDate:        sub.EndDate,
			PaymentID:      sub.PaymentID,
		},
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (c *Coordinator) reject(ctx context.Context, tx *gorm.DB, payment *models.PendingPayment, actor *outbox.ActorRef) error {
	if err := c.close(ctx, tx, payment, enums.PaymentStateRejected); err != nil {
		return err
	}
	return c.emitDecision(ctx, tx, payment, enums.EventPaymentRejected, actor)
}

func (c *Coordinator) close(ctx context.Context, tx *gorm.DB, payment *models.PendingPayment, state enums.PaymentState) error {
	now := c.now().UTC()
	payment.State = state
	payment.DecidedAt = &now
	if err := c.repo.WithTx(tx).Save(ctx, payment); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store payment decision")
	}
	return nil
}

func (c *Coordinator) emitDecision(ctx context.Context, tx *gorm.DB, payment *models.PendingPayment, event enums.OutboxEventType, actor *outbox.ActorRef) error {
	data := payloads.PaymentDecidedEvent{
		PaymentID:  payment.ID,
		OwnerID:    payment.OwnerID,
		PlanCode:   payment.PlanCode,
		State:      payment.State,
		VerifiedBy: payment.VerifiedBy,
	}
	if payment.AdminNote != nil {
		data.Note = *payment.AdminNote
	}
	return c.emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregatePendingPayment,
		AggregateID:   payment.ID,
		Actor:         actor,
		Data:          data,
	})
}

func (c *Coordinator) emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if c.outbox == nil {
		return nil
	}
	if err := c.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue outbox event")
	}
	return nil
}

// ListPending returns payments awaiting an admin decision, oldest first.
func (c *Coordinator) ListPending(ctx context.Context, limit int) ([]models.PendingPayment, error) {
	out, err := c.repo.ListByStates(ctx, []enums.PaymentState{enums.PaymentStatePending, enums.PaymentStateVerifying}, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending payments")
	}
	return out, nil
}

func (c *Coordinator) ListForOwner(ctx context.Context, ownerID uint64) ([]models.PendingPayment, error) {
	out, err := c.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	return out, nil
}
