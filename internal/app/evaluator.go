package app

import (
	"strconv"
	"strings"
	"time"

	"gameday-service/internal/domain"
)

// Wrong answers still earn points: participation is rewarded over accuracy.
// These tiers are fixed on purpose, decoupled from the per-question point
// configuration, so operators cannot zero out engagement rewards.
const (
	specialWrongOnTime = 600
	specialWrongLate   = 300
	regularWrongOnTime = 300
	regularWrongLate   = 150
)

// Evaluate scores a submitted choice against a question at a point in time.
// Late submissions are never rejected; lateness only drops the point tier.
// campaignStart and loc are only consulted for regular questions.
func Evaluate(q domain.Question, campaignStart time.Time, loc *time.Location, selected int, now time.Time) domain.Evaluation {
	var onTime bool
	if q.IsSpecial {
		start, end := SpecialWindow(q)
		onTime = q.SpecialStartAt != nil && !now.Before(start) && !now.After(end)
	} else {
		openAt, closeAt := QuestionWindow(q, campaignStart, loc)
		onTime = !now.Before(openAt) && !now.After(closeAt)
	}

	correct := selected == q.Answer
	return domain.Evaluation{
		IsOnTime:     onTime,
		IsCorrect:    correct,
		PointsEarned: points(q, correct, onTime),
	}
}

func points(q domain.Question, correct, onTime bool) int {
	if correct {
		if onTime {
			return q.PointsOnTime
		}
		return q.PointsLate
	}
	switch {
	case q.IsSpecial && onTime:
		return specialWrongOnTime
	case q.IsSpecial:
		return specialWrongLate
	case onTime:
		return regularWrongOnTime
	default:
		return regularWrongLate
	}
}

// QuestionWindow resolves a regular question's absolute open/close instants:
// the campaign start date shifted by DayIndex days, with ScheduleTime and
// DeadlineTime applied as wall-clock times in the campaign's timezone.
func QuestionWindow(q domain.Question, campaignStart time.Time, loc *time.Location) (openAt, closeAt time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := campaignStart.In(loc)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, q.DayIndex)

	openH, openM := parseClock(q.ScheduleTime, domain.DefaultScheduleTime)
	closeH, closeM := parseClock(q.DeadlineTime, domain.DefaultDeadlineTime)
	openAt = day.Add(time.Duration(openH)*time.Hour + time.Duration(openM)*time.Minute)
	closeAt = day.Add(time.Duration(closeH)*time.Hour + time.Duration(closeM)*time.Minute)
	return openAt, closeAt
}

// SpecialWindow resolves a special question's maximum-reward window.
func SpecialWindow(q domain.Question) (start, end time.Time) {
	if q.SpecialStartAt != nil {
		start = *q.SpecialStartAt
	}
	minutes := q.SpecialWindowMinutes
	if minutes <= 0 {
		minutes = domain.DefaultSpecialWindowMinutes
	}
	return start, start.Add(time.Duration(minutes) * time.Minute)
}

// parseClock parses an "HH:MM" wall-clock string, falling back to def when
// the value is empty or malformed.
func parseClock(raw, def string) (hour, minute int) {
	if raw == "" {
		raw = def
	}
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		parts = strings.SplitN(def, ":", 2)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return parseClock(def, def)
	}
	return h, m
}
