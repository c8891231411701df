package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gallotrack-backend/api/middleware"
	"github.com/angelmondragon/gallotrack-backend/api/responses"
	"github.com/angelmondragon/gallotrack-backend/api/validators"
	"github.com/angelmondragon/gallotrack-backend/internal/payments"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

type PaymentCoordinator interface {
	Submit(ctx context.Context, ownerID uint64, in payments.SubmitInput) (*models.PendingPayment, error)
	ListForOwner(ctx context.Context, ownerID uint64) ([]models.PendingPayment, error)
	ListPending(ctx context.Context, limit int) ([]models.PendingPayment, error)
	BeginReview(ctx context.Context, adminID, paymentID uint64) (*models.PendingPayment, error)
	Verify(ctx context.Context, adminID, paymentID uint64, decision enums.PaymentDecision, note string) (*payments.Decision, error)
}

// ReceiptUploadLimit bounds a payment submission carrying a receipt image.
const ReceiptUploadLimit = 16 << 20

type submitPaymentRequest struct {
	PlanCode  string           `json:"plan_code" validate:"required,max=40"`
	Method    string           `json:"method" validate:"required,max=40"`
	Amount    *decimal.Decimal `json:"amount"`
	Reference string           `json:"reference" validate:"max=120"`
}

// PaymentSubmit records an upgrade payment. Multipart requests carry the
// JSON document in "payload" and the receipt image in "receipt".
func PaymentSubmit(svc PaymentCoordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body submitPaymentRequest
		var in payments.SubmitInput
		if validators.IsMultipart(r) {
			if err := validators.ParseMultipart(w, r, ReceiptUploadLimit); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if err := validators.DecodeFormJSON(r, "payload", &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			receipt, err := validators.FormFile(r, "receipt")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if receipt != nil {
				in.Receipt = receipt.Payload
				in.ReceiptName = receipt.Name
			}
		} else if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(strings.ToLower(strings.TrimSpace(body.Method)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").WithDetails(map[string]any{"field": "method"}))
			return
		}
		in.PlanCode = body.PlanCode
		in.Method = method
		in.Reference = body.Reference
		if body.Amount != nil {
			in.Amount = *body.Amount
		}

		payment, err := svc.Submit(r.Context(), middleware.PrincipalIDFromContext(r.Context()), in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentResponse(payment))
	}
}

func PaymentListMine(svc PaymentCoordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.ListForOwner(r.Context(), middleware.PrincipalIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResponses(rows))
	}
}

// AdminPaymentQueue lists pending and verifying payments, oldest first.
func AdminPaymentQueue(svc PaymentCoordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListPending(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResponses(rows))
	}
}

func AdminPaymentReview(svc PaymentCoordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "paymentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := svc.BeginReview(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResponse(payment))
	}
}

type verifyPaymentRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Note     string `json:"note" validate:"max=500"`
}

type verifyPaymentResponse struct {
	Payment      *paymentResponse      `json:"payment"`
	Subscription *subscriptionResponse `json:"subscription,omitempty"`
}

func AdminPaymentVerify(svc PaymentCoordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "paymentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body verifyPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		decision, err := svc.Verify(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id, enums.PaymentDecision(body.Decision), body.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, verifyPaymentResponse{
			Payment:      newPaymentResponse(decision.Payment),
			Subscription: newSubscriptionResponse(decision.Subscription),
		})
	}
}
