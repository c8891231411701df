package repotest

import (
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
)

// SeedPlans inserts the same catalogue the goose seed migration writes.
func SeedPlans(t testing.TB, db *gorm.DB) []models.Plan {
	t.Helper()
	days := 30
	plans := []models.Plan{
		plan("gratis", "Gratis", "0", nil, 5, 10, 1, false, "pedigree"),
		plan("basic", "Básico", "4.99", &days, 15, 30, 2, false, "pedigree", "media"),
		plan("premium", "Premium", "9.99", &days, 50, 100, 3, true, "pedigree", "media", "marketplace"),
		plan("professional", "Profesional", "19.99", &days, 200, 500, 4, false, "pedigree", "media", "marketplace", "streaming"),
	}
	if err := db.Create(&plans).Error; err != nil {
		t.Fatalf("seed plans: %v", err)
	}
	return plans
}

func plan(code, name, price string, days *int, cocks, perCock, order int, highlighted bool, features ...string) models.Plan {
	return models.Plan{
		Code:         code,
		Name:         name,
		Price:        decimal.RequireFromString(price),
		Currency:     "USD",
		DurationDays: days,
		Limits: models.PlanLimits{
			MaxCocks:            cocks,
			MaxTrainingsPerCock: perCock,
			MaxFightsPerCock:    perCock,
			MaxVaccinesPerCock:  perCock,
		},
		Features:     datatypes.NewJSONSlice(features),
		DisplayOrder: order,
		Highlighted:  highlighted,
	}
}
