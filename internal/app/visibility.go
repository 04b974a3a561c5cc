package app

import (
	"math"
	"sort"
	"time"

	"gameday-service/internal/domain"
)

// VisibleQuestions computes the questions a player may answer right now.
// Pure and read-only, so callers can poll it freely.
//
// Regular questions: of all questions whose day has arrived, only the earliest
// one the player has not answered is visible. A player who skipped day 0 keeps
// seeing day 0 until it is answered, no matter how far the campaign has moved on.
//
// Special questions: every special whose start time has passed and which the
// player has not answered is visible at once. Specials never expire out of
// visibility here; the reward window is enforced at evaluation time.
func VisibleQuestions(questions []domain.Question, answered map[int64]bool, campaignStart time.Time, loc *time.Location, now time.Time) []domain.Question {
	visible := make([]domain.Question, 0, 2)

	dayNow := campaignDay(campaignStart, loc, now)
	if dayNow >= 0 {
		regular := make([]domain.Question, 0, len(questions))
		for _, q := range questions {
			if !q.IsSpecial && q.DayIndex <= dayNow {
				regular = append(regular, q)
			}
		}
		sort.Slice(regular, func(i, j int) bool { return regular[i].DayIndex < regular[j].DayIndex })
		for _, q := range regular {
			if !answered[q.ID] {
				visible = append(visible, q)
				break
			}
		}
	}

	specials := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if q.IsSpecial && q.SpecialStartAt != nil && !q.SpecialStartAt.After(now) && !answered[q.ID] {
			specials = append(specials, q)
		}
	}
	sort.Slice(specials, func(i, j int) bool { return specials[i].SpecialStartAt.Before(*specials[j].SpecialStartAt) })

	return append(visible, specials...)
}

// campaignDay returns the 0-based day offset of now from the campaign start
// date, computed on calendar days in the campaign's timezone. Negative before
// the campaign starts.
func campaignDay(campaignStart time.Time, loc *time.Location, now time.Time) int {
	if loc == nil {
		loc = time.UTC
	}
	start := campaignStart.In(loc)
	base := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	cur := now.In(loc)
	today := time.Date(cur.Year(), cur.Month(), cur.Day(), 0, 0, 0, 0, loc)
	// Rounding absorbs DST shifts between the two midnights.
	return int(math.Round(float64(today.Sub(base)) / float64(24*time.Hour)))
}
