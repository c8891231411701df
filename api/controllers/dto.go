package controllers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

type imageResponse struct {
	URL         string    `json:"url"`
	Order       int       `json:"order"`
	IsPrincipal bool      `json:"is_principal"`
	UploadedAt  time.Time `json:"uploaded_at"`
	// MediaID is the handle used to detach the image.
	MediaID string `json:"media_id"`
}

type cockResponse struct {
	ID                uint64           `json:"id"`
	Name              string           `json:"name"`
	Code              string           `json:"code"`
	WeightGrams       *int             `json:"weight_grams,omitempty"`
	HeightCM          *int             `json:"height_cm,omitempty"`
	Colour            *string          `json:"colour,omitempty"`
	Breed             *string          `json:"breed,omitempty"`
	BirthDate         *string          `json:"birth_date,omitempty"`
	Notes             *string          `json:"notes,omitempty"`
	Status            enums.CockStatus `json:"status"`
	OriginKind        enums.OriginKind `json:"origin_kind"`
	CohortKey         uint64           `json:"cohort_key"`
	SireID            *uint64          `json:"sire_id,omitempty"`
	DamID             *uint64          `json:"dam_id,omitempty"`
	PrincipalImageURL string           `json:"principal_image_url,omitempty"`
	Images            []imageResponse  `json:"images"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func newCockResponse(c *models.Cock) *cockResponse {
	if c == nil {
		return nil
	}
	out := &cockResponse{
		ID:                c.ID,
		Name:              c.Name,
		Code:              c.Code,
		WeightGrams:       c.WeightGrams,
		HeightCM:          c.HeightCM,
		Colour:            c.Colour,
		Breed:             c.Breed,
		Notes:             c.Notes,
		Status:            c.Status,
		OriginKind:        c.OriginKind,
		CohortKey:         c.Cohort(),
		SireID:            c.SireID,
		DamID:             c.DamID,
		PrincipalImageURL: c.PrincipalImageURL,
		Images:            make([]imageResponse, 0, len(c.Auxiliary)),
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
	if c.BirthDate != nil {
		d := c.BirthDate.UTC().Format(dateLayout)
		out.BirthDate = &d
	}
	for _, img := range c.Auxiliary {
		out.Images = append(out.Images, imageResponse{
			URL:         img.URL,
			Order:       img.Order,
			IsPrincipal: img.IsPrincipal,
			UploadedAt:  img.UploadedAt,
			MediaID:     img.StorageID,
		})
	}
	return out
}

func newCockResponses(rows []models.Cock) []*cockResponse {
	out := make([]*cockResponse, 0, len(rows))
	for i := range rows {
		out = append(out, newCockResponse(&rows[i]))
	}
	return out
}

type trainingResponse struct {
	ID              uint64    `json:"id"`
	CockID          uint64    `json:"cock_id"`
	OccurredAt      time.Time `json:"occurred_at"`
	Kind            string    `json:"kind"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           *string   `json:"notes,omitempty"`
	MediaURL        string    `json:"media_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func newTrainingResponse(t *models.Training) trainingResponse {
	return trainingResponse{
		ID:              t.ID,
		CockID:          t.CockID,
		OccurredAt:      t.OccurredAt,
		Kind:            t.Kind,
		DurationMinutes: t.DurationMinutes,
		Notes:           t.Notes,
		MediaURL:        t.MediaURL,
		CreatedAt:       t.CreatedAt,
	}
}

type fightResponse struct {
	ID         uint64    `json:"id"`
	CockID     uint64    `json:"cock_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Venue      string    `json:"venue,omitempty"`
	Opponent   string    `json:"opponent,omitempty"`
	Result     string    `json:"result"`
	Notes      *string   `json:"notes,omitempty"`
	MediaURL   string    `json:"media_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func newFightResponse(f *models.Fight) fightResponse {
	return fightResponse{
		ID:         f.ID,
		CockID:     f.CockID,
		OccurredAt: f.OccurredAt,
		Venue:      f.Venue,
		Opponent:   f.Opponent,
		Result:     f.Result,
		Notes:      f.Notes,
		MediaURL:   f.MediaURL,
		CreatedAt:  f.CreatedAt,
	}
}

type vaccineResponse struct {
	ID         uint64     `json:"id"`
	CockID     uint64     `json:"cock_id"`
	OccurredAt time.Time  `json:"occurred_at"`
	Vaccine    string     `json:"vaccine"`
	Dose       string     `json:"dose,omitempty"`
	NextDueAt  *time.Time `json:"next_due_at,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
	MediaURL   string     `json:"media_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func newVaccineResponse(v *models.Vaccine) vaccineResponse {
	return vaccineResponse{
		ID:         v.ID,
		CockID:     v.CockID,
		OccurredAt: v.OccurredAt,
		Vaccine:    v.Vaccine,
		Dose:       v.Dose,
		NextDueAt:  v.NextDueAt,
		Notes:      v.Notes,
		MediaURL:   v.MediaURL,
		CreatedAt:  v.CreatedAt,
	}
}

type pageResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

func mapPage[M, T any](rows []M, next string, fn func(*M) T) pageResponse[T] {
	out := pageResponse[T]{Items: make([]T, 0, len(rows)), NextCursor: next}
	for i := range rows {
		out.Items = append(out.Items, fn(&rows[i]))
	}
	return out
}

type listingResponse struct {
	ID          uint64             `json:"id"`
	CockID      uint64             `json:"cock_id"`
	Price       decimal.Decimal    `json:"price"`
	Currency    string             `json:"currency"`
	Description *string            `json:"description,omitempty"`
	State       enums.ListingState `json:"state"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func newListingResponse(l *models.MarketplaceListing) *listingResponse {
	return &listingResponse{
		ID:          l.ID,
		CockID:      l.CockID,
		Price:       l.Price,
		Currency:    l.Currency,
		Description: l.Description,
		State:       l.State,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

type planResponse struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	DurationDays *int            `json:"duration_days,omitempty"`
	Limits       limitsResponse  `json:"limits"`
	Features     []string        `json:"features"`
	Highlighted  bool            `json:"highlighted"`
}

type limitsResponse struct {
	MaxCocks            int `json:"max_cocks"`
	MaxTrainingsPerCock int `json:"max_trainings_per_cock"`
	MaxFightsPerCock    int `json:"max_fights_per_cock"`
	MaxVaccinesPerCock  int `json:"max_vaccines_per_cock"`
}

func newLimitsResponse(l models.PlanLimits) limitsResponse {
	return limitsResponse{
		MaxCocks:            l.MaxCocks,
		MaxTrainingsPerCock: l.MaxTrainingsPerCock,
		MaxFightsPerCock:    l.MaxFightsPerCock,
		MaxVaccinesPerCock:  l.MaxVaccinesPerCock,
	}
}

func newPlanResponse(p *models.Plan) planResponse {
	features := []string(p.Features)
	if features == nil {
		features = []string{}
	}
	return planResponse{
		Code:         p.Code,
		Name:         p.Name,
		Price:        p.Price,
		Currency:     p.Currency,
		DurationDays: p.DurationDays,
		Limits:       newLimitsResponse(p.Limits),
		Features:     features,
		Highlighted:  p.Highlighted,
	}
}

type subscriptionResponse struct {
	ID        uint64                   `json:"id"`
	PlanCode  string                   `json:"plan_code"`
	PlanName  string                   `json:"plan_name"`
	Price     decimal.Decimal          `json:"price"`
	Status    enums.SubscriptionStatus `json:"status"`
	StartDate time.Time                `json:"start_date"`
	EndDate   *time.Time               `json:"end_date,omitempty"`
	Limits    limitsResponse           `json:"limits"`
	PaymentID *uint64                  `json:"payment_id,omitempty"`
}

func newSubscriptionResponse(s *models.Subscription) *subscriptionResponse {
	if s == nil {
		return nil
	}
	return &subscriptionResponse{
		ID:        s.ID,
		PlanCode:  s.PlanCode,
		PlanName:  s.PlanName,
		Price:     s.Price,
		Status:    s.Status,
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
		Limits:    newLimitsResponse(s.Limits),
		PaymentID: s.PaymentID,
	}
}

type paymentResponse struct {
	ID              uint64              `json:"id"`
	OwnerID         uint64              `json:"owner_id"`
	PlanCode        string              `json:"plan_code"`
	Amount          decimal.Decimal     `json:"amount"`
	Currency        string              `json:"currency"`
	Method          enums.PaymentMethod `json:"method"`
	Reference       *string             `json:"reference,omitempty"`
	ProcessorStatus *string             `json:"processor_status,omitempty"`
	QRPayload       string              `json:"qr_payload,omitempty"`
	ReceiptURL      string              `json:"receipt_url,omitempty"`
	State           enums.PaymentState  `json:"state"`
	AdminNote       *string             `json:"admin_note,omitempty"`
	DecidedAt       *time.Time          `json:"decided_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func newPaymentResponse(p *models.PendingPayment) *paymentResponse {
	if p == nil {
		return nil
	}
	return &paymentResponse{
		ID:              p.ID,
		OwnerID:         p.OwnerID,
		PlanCode:        p.PlanCode,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Method:          p.Method,
		Reference:       p.Reference,
		ProcessorStatus: p.ProcessorStatus,
		QRPayload:       p.QRPayload,
		ReceiptURL:      p.ReceiptURL,
		State:           p.State,
		AdminNote:       p.AdminNote,
		DecidedAt:       p.DecidedAt,
		CreatedAt:       p.CreatedAt,
	}
}

func newPaymentResponses(rows []models.PendingPayment) []*paymentResponse {
	out := make([]*paymentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, newPaymentResponse(&rows[i]))
	}
	return out
}

const dateLayout = "2006-01-02"
