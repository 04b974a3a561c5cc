package domain

import "time"

// CampaignStatus tracks where a campaign is in its lifecycle.
type CampaignStatus string

const (
	CampaignPlanned    CampaignStatus = "planned"
	CampaignInProgress CampaignStatus = "in-progress"
	CampaignCompleted  CampaignStatus = "completed"
)

// Defaults for the daily answer window and the special-question bonus window.
const (
	DefaultScheduleTime         = "08:00"
	DefaultDeadlineTime         = "18:00"
	DefaultSpecialWindowMinutes = 1
)

// Player accumulates a lifetime score and a spendable coin balance.
// Score and coins are mutated only through the ledger operations; coins are
// earned 1:1 with points and spent in the store.
type Player struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	TeamID         *int64        `json:"teamId,omitempty"`
	Score          int           `json:"score"`
	GameCoins      int           `json:"gameCoins"`
	CampaignScores map[int64]int `json:"campaignScores"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Team groups players for aggregate scoreboards.
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Campaign is a time-boxed container of questions and enrolled players.
// StartDate is the origin against which question day offsets resolve,
// interpreted in the campaign's Timezone.
type Campaign struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Status    CampaignStatus `json:"status"`
	StartDate time.Time      `json:"startDate"`
	EndDate   time.Time      `json:"endDate"`
	Timezone  string         `json:"timezone"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Location resolves the campaign's IANA timezone, falling back to UTC.
func (c Campaign) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Question is a multiple-choice question scheduled within a campaign.
// Regular questions open on campaign day DayIndex between ScheduleTime and
// DeadlineTime; special questions open at SpecialStartAt for a short bonus
// window and ignore the day-based schedule entirely.
type Question struct {
	ID           int64    `json:"id"`
	CampaignID   int64    `json:"campaignId"`
	Text         string   `json:"text"`
	Choices      []string `json:"choices"`
	Answer       int      `json:"answer"`
	PointsOnTime int      `json:"pointsOnTime"`
	PointsLate   int      `json:"pointsLate"`
	DayIndex     int      `json:"dayIndex"`
	ScheduleTime string   `json:"scheduleTime"`
	DeadlineTime string   `json:"deadlineTime"`

	IsSpecial            bool       `json:"isSpecial"`
	SpecialStartAt       *time.Time `json:"specialStartAt,omitempty"`
	SpecialWindowMinutes int        `json:"specialWindowMinutes,omitempty"`
}

// Answer is the immutable record of one submission. At most one Answer ever
// exists per (player, question) pair; the scoring model depends on it.
type Answer struct {
	ID             int64     `json:"id"`
	PlayerID       int64     `json:"playerId"`
	QuestionID     int64     `json:"questionId"`
	CampaignID     int64     `json:"campaignId"`
	SelectedAnswer int       `json:"selectedAnswer"`
	AnsweredAt     time.Time `json:"answeredAt"`
	IsOnTime       bool      `json:"isOnTime"`
	IsCorrect      bool      `json:"isCorrect"`
	PointsEarned   int       `json:"pointsEarned"`
}

// Evaluation is the outcome of scoring a submission at a point in time.
type Evaluation struct {
	IsOnTime     bool `json:"isOnTime"`
	IsCorrect    bool `json:"isCorrect"`
	PointsEarned int  `json:"pointsEarned"`
}

// Product is a store item priced in game coins with finite stock.
type Product struct {
	ID               int64      `json:"id"`
	CampaignID       int64      `json:"campaignId"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	PriceInGameCoins int        `json:"priceInGameCoins"`
	Quantity         int        `json:"quantity"`
	AvailableFrom    *time.Time `json:"availableFrom,omitempty"`
	AvailableUntil   *time.Time `json:"availableUntil,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// AvailableAt reports whether the product's availability window covers now.
func (p Product) AvailableAt(now time.Time) bool {
	if p.AvailableFrom != nil && now.Before(*p.AvailableFrom) {
		return false
	}
	if p.AvailableUntil != nil && now.After(*p.AvailableUntil) {
		return false
	}
	return true
}

// Purchase is the immutable record of one store transaction. The price is
// captured at purchase time so later product edits never rewrite history.
// At most one Purchase ever exists per (player, product) pair.
type Purchase struct {
	ID               int64     `json:"id"`
	PlayerID         int64     `json:"playerId"`
	ProductID        int64     `json:"productId"`
	CampaignID       int64     `json:"campaignId"`
	PriceInGameCoins int       `json:"priceInGameCoins"`
	PurchasedAt      time.Time `json:"purchasedAt"`
}

// Adjustment is an audited manual point award. Operators never edit score or
// coin fields directly; every manual change lands as one of these and is
// applied through the same atomic path as answers.
type Adjustment struct {
	ID         int64     `json:"id"`
	PlayerID   int64     `json:"playerId"`
	CampaignID int64     `json:"campaignId"`
	Points     int       `json:"points"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ScoreboardEntry is one ranked row of a campaign scoreboard.
type ScoreboardEntry struct {
	PlayerID int64  `json:"playerId"`
	Name     string `json:"name"`
	TeamID   *int64 `json:"teamId,omitempty"`
	Score    int    `json:"score"`
}

// Scoreboard is the ordered per-campaign ranking.
type Scoreboard struct {
	CampaignID int64             `json:"campaignId"`
	Entries    []ScoreboardEntry `json:"entries"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}
