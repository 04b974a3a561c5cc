package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"gameday-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader reads campaign question sets over a pgx pool, feeding the
// question caches without going through the transactional store.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) CampaignQuestions(ctx context.Context, campaignID int64) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, campaign_id, text, choices, answer, points_on_time, points_late,
		       day_index, schedule_time, deadline_time, is_special, special_start_at,
		       COALESCE(special_window_minutes, 0)
		FROM questions
		WHERE campaign_id = $1
		ORDER BY id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	questions := make([]domain.Question, 0)
	for rows.Next() {
		var q domain.Question
		var choices []byte
		if err := rows.Scan(&q.ID, &q.CampaignID, &q.Text, &choices, &q.Answer,
			&q.PointsOnTime, &q.PointsLate, &q.DayIndex, &q.ScheduleTime,
			&q.DeadlineTime, &q.IsSpecial, &q.SpecialStartAt, &q.SpecialWindowMinutes); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(choices, &q.Choices); err != nil {
			return nil, fmt.Errorf("unmarshal choices: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}
