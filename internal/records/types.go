package records

import (
	"time"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
)

// Fight results accepted on create.
const (
	ResultWin  = "win"
	ResultLoss = "loss"
	ResultDraw = "draw"
)

// Media is an optional photo or clip stored with a record.
type Media struct {
	Payload []byte
	Name    string
}

type TrainingInput struct {
	OccurredAt      time.Time
	Kind            string
	DurationMinutes int
	Notes           *string
	Media           *Media
}

type FightInput struct {
	OccurredAt time.Time
	Venue      string
	Opponent   string
	Result     string
	Notes      *string
	Media      *Media
}

type VaccineInput struct {
	OccurredAt time.Time
	Vaccine    string
	Dose       string
	NextDueAt  *time.Time
	Notes      *string
	Media      *Media
}

// List is one page of records, newest first.
type List[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// FightStats tallies a cock's fight results.
type FightStats struct {
	CockID uint64 `json:"cock_id"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
	Draws  int    `json:"draws"`
	Total  int    `json:"total"`
}

type (
	TrainingList = List[models.Training]
	FightList    = List[models.Fight]
	VaccineList  = List[models.Vaccine]
)
