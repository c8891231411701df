package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gallotrack-backend/internal/notifications"
	"github.com/angelmondragon/gallotrack-backend/internal/payments"
	"github.com/angelmondragon/gallotrack-backend/internal/quota"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
)

type stubCoordinator struct {
	PaymentCoordinator
	submitted payments.SubmitInput
	decision  enums.PaymentDecision
	paymentID uint64
	webhook   payments.WebhookInput
}

func (s *stubCoordinator) Submit(_ context.Context, ownerID uint64, in payments.SubmitInput) (*models.PendingPayment, error) {
	s.submitted = in
	return &models.PendingPayment{ID: 3, OwnerID: ownerID, PlanCode: in.PlanCode, Amount: in.Amount, Method: in.Method, State: enums.PaymentStatePending}, nil
}

func (s *stubCoordinator) Verify(_ context.Context, _ uint64, paymentID uint64, decision enums.PaymentDecision, note string) (*payments.Decision, error) {
	s.paymentID = paymentID
	s.decision = decision
	out := &payments.Decision{Payment: &models.PendingPayment{ID: paymentID, State: enums.PaymentStateApproved}}
	if decision == enums.PaymentDecisionApprove {
		out.Subscription = &models.Subscription{ID: 9, PlanCode: "premium", Status: enums.SubscriptionStatusActive}
	}
	return out, nil
}

func (s *stubCoordinator) IngestWebhook(_ context.Context, in payments.WebhookInput) (*payments.WebhookResult, error) {
	s.webhook = in
	return &payments.WebhookResult{Outcome: payments.OutcomePromoted, PaymentID: 3}, nil
}

func TestPaymentSubmitJSON(t *testing.T) {
	svc := &stubCoordinator{}
	body := `{"plan_code":"premium","method":"QR_Transfer","amount":"9.99","reference":"ref-1"}`

	resp := serve(PaymentSubmit(svc, nil), jsonRequest(http.MethodPost, "/api/v1/payments", body, nil))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, enums.PaymentMethodQRTransfer, svc.submitted.Method)
	assert.True(t, decimal.RequireFromString("9.99").Equal(svc.submitted.Amount))
	assert.Equal(t, "ref-1", svc.submitted.Reference)
	assert.Nil(t, svc.submitted.Receipt)
}

func TestPaymentSubmitMultipartReceipt(t *testing.T) {
	svc := &stubCoordinator{}
	req := multipartRequest(t, http.MethodPost, "/api/v1/payments",
		map[string]string{"payload": `{"plan_code":"premium","method":"bank_transfer"}`},
		[]formFile{{field: "receipt", name: "receipt.png", payload: []byte("png")}}, nil)

	resp := serve(PaymentSubmit(svc, nil), req)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, []byte("png"), svc.submitted.Receipt)
	assert.Equal(t, "receipt.png", svc.submitted.ReceiptName)
}

func TestPaymentSubmitRejectsUnknownMethod(t *testing.T) {
	svc := &stubCoordinator{}
	resp := serve(PaymentSubmit(svc, nil), jsonRequest(http.MethodPost, "/api/v1/payments", `{"plan_code":"premium","method":"cash"}`, nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, svc.submitted.PlanCode)
}

func TestAdminPaymentVerify(t *testing.T) {
	svc := &stubCoordinator{}
	params := map[string]string{"paymentID": "3"}

	resp := serve(AdminPaymentVerify(svc, nil), jsonRequest(http.MethodPost, "/api/v1/admin/payments/3/verify", `{"decision":"approve"}`, params))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, uint64(3), svc.paymentID)
	assert.Equal(t, enums.PaymentDecisionApprove, svc.decision)

	var out struct {
		Payment      map[string]any `json:"payment"`
		Subscription map[string]any `json:"subscription"`
	}
	decodeData(t, resp, &out)
	assert.Equal(t, "premium", out.Subscription["plan_code"])

	resp = serve(AdminPaymentVerify(svc, nil), jsonRequest(http.MethodPost, "/api/v1/admin/payments/3/verify", `{"decision":"maybe"}`, params))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMercadoPagoWebhookForwardsCallback(t *testing.T) {
	svc := &stubCoordinator{}
	req := jsonRequest(http.MethodPost, "/api/v1/webhooks/mercadopago?data.id=8812", `{"type":"payment"}`, nil)
	req.Header.Set("X-Signature", "ts=1,v1=abc")
	req.Header.Set("X-Request-Id", "req-1")

	resp := serve(MercadoPagoWebhook(svc, nil), req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "8812", svc.webhook.ResourceID)
	assert.Equal(t, "ts=1,v1=abc", svc.webhook.Signature)
	assert.Equal(t, "req-1", svc.webhook.RequestID)
	assert.JSONEq(t, `{"type":"payment"}`, string(svc.webhook.Body))
}

type stubQuota struct {
	QuotaReader
	kind   enums.ResourceKind
	cockID *uint64
}

func (s *stubQuota) AdmissionCheck(_ context.Context, _ uint64, kind enums.ResourceKind, cockID *uint64) (quota.Decision, error) {
	s.kind = kind
	s.cockID = cockID
	return quota.Decision{Allowed: false, Kind: kind, Cap: 5, Used: 5, Reason: "LIMIT_REACHED"}, nil
}

func TestQuotaCheck(t *testing.T) {
	svc := &stubQuota{}

	resp := serve(QuotaCheck(svc, nil), newRequest(http.MethodGet, "/api/v1/quota/check?kind=trainings", nil, nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = serve(QuotaCheck(svc, nil), newRequest(http.MethodGet, "/api/v1/quota/check?kind=trainings&cock_id=4", nil, nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, svc.cockID)
	assert.Equal(t, uint64(4), *svc.cockID)

	var out quota.Decision
	decodeData(t, resp, &out)
	assert.False(t, out.Allowed)
	assert.Equal(t, "LIMIT_REACHED", out.Reason)

	resp = serve(QuotaCheck(svc, nil), newRequest(http.MethodGet, "/api/v1/quota/check?kind=cocks", nil, nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Nil(t, svc.cockID)

	resp = serve(QuotaCheck(svc, nil), newRequest(http.MethodGet, "/api/v1/quota/check?kind=listings", nil, nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

type stubBroadcaster struct {
	adminID uint64
	in      notifications.BroadcastInput
	err     error
}

func (s *stubBroadcaster) Request(_ context.Context, adminID uint64, in notifications.BroadcastInput) error {
	s.adminID = adminID
	s.in = in
	return s.err
}

func TestAdminBroadcast(t *testing.T) {
	svc := &stubBroadcaster{}
	body := `{"audience":"principals","principal_ids":[3,4],"title":"Torneo","body":"Inscripciones abiertas"}`

	resp := serve(AdminBroadcast(svc, nil), jsonRequest(http.MethodPost, "/api/v1/admin/notifications", body, nil))
	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.Equal(t, uint64(7), svc.adminID)
	assert.Equal(t, []uint64{3, 4}, svc.in.PrincipalIDs)

	svc.err = pkgerrors.New(pkgerrors.CodeValidation, "unknown audience")
	resp = serve(AdminBroadcast(svc, nil), jsonRequest(http.MethodPost, "/api/v1/admin/notifications", `{"audience":"everyone","title":"x"}`, nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "unknown audience", decodeError(t, resp).Message)
}
