// Package mercadopago fetches authoritative payment state from the
// MercadoPago API for webhook ingestion.
package mercadopago

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
)

// Processor statuses that matter to plan promotion.
const (
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusPending  = "pending"
)

// ErrUnavailable is returned when no access token is configured.
var ErrUnavailable = errors.New("mercadopago client not configured")

type paymentAPI interface {
	Get(ctx context.Context, id int) (*payment.Response, error)
}

// Payment is the subset of a processor payment used by the coordinator.
// OwnerID and PlanCode come from metadata set at checkout, falling back to
// an external reference of the form "owner:<id>;plan:<code>".
type Payment struct {
	ID           string
	Status       string
	StatusDetail string
	OwnerID      uint64
	PlanCode     string
	Amount       decimal.Decimal
	Currency     string
}

// Approved reports whether the processor settled the payment.
func (p *Payment) Approved() bool {
	return p != nil && p.Status == StatusApproved
}

type Client struct {
	api paymentAPI
}

func New(cfg config.MercadoPagoConfig) (*Client, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return &Client{}, nil
	}
	sdkCfg, err := mpconfig.New(token)
	if err != nil {
		return nil, fmt.Errorf("mercadopago config: %w", err)
	}
	return &Client{api: payment.NewClient(sdkCfg)}, nil
}

func newWithAPI(api paymentAPI) *Client {
	return &Client{api: api}
}

func (c *Client) Available() bool {
	return c != nil && c.api != nil
}

// FetchPayment loads a payment by the id carried in a webhook.
func (c *Client) FetchPayment(ctx context.Context, resourceID string) (*Payment, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}
	id, err := strconv.Atoi(strings.TrimSpace(resourceID))
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid mercadopago payment id %q", resourceID)
	}
	res, err := c.api.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mercadopago get payment %d: %w", id, err)
	}
	if res == nil {
		return nil, fmt.Errorf("mercadopago get payment %d: empty response", id)
	}

	out := &Payment{
		ID:           strconv.Itoa(res.ID),
		Status:       res.Status,
		StatusDetail: res.StatusDetail,
		Amount:       decimal.NewFromFloat(res.TransactionAmount).Round(2),
		Currency:     res.CurrencyID,
	}
	out.OwnerID, out.PlanCode = fromMetadata(res.Metadata)
	if out.OwnerID == 0 || out.PlanCode == "" {
		owner, plan := parseExternalReference(res.ExternalReference)
		if out.OwnerID == 0 {
			out.OwnerID = owner
		}
		if out.PlanCode == "" {
			out.PlanCode = plan
		}
	}
	return out, nil
}

func fromMetadata(meta map[string]any) (uint64, string) {
	if meta == nil {
		return 0, ""
	}
	var owner uint64
	switch v := meta["owner_id"].(type) {
	case float64:
		if v > 0 {
			owner = uint64(v)
		}
	case string:
		owner, _ = strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	}
	plan, _ := meta["plan_code"].(string)
	return owner, strings.ToLower(strings.TrimSpace(plan))
}

// ExternalReference renders the reference set on checkout preferences.
func ExternalReference(ownerID uint64, planCode string) string {
	return "owner:" + strconv.FormatUint(ownerID, 10) + ";plan:" + planCode
}

func parseExternalReference(ref string) (uint64, string) {
	var (
		owner uint64
		plan  string
	)
	for _, part := range strings.Split(ref, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		switch key {
		case "owner":
			owner, _ = strconv.ParseUint(value, 10, 64)
		case "plan":
			plan = strings.ToLower(strings.TrimSpace(value))
		}
	}
	return owner, plan
}
