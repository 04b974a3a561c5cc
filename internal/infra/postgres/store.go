package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gameday-service/internal/app"
	"gameday-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Store is the Postgres implementation of app.Store. The ledger operations
// run inside a single transaction with the duplicate checks backed by unique
// indexes on (player_id, question_id) and (player_id, product_id), and the
// player (and product) rows locked FOR UPDATE, so concurrent duplicate
// submissions or last-unit purchases resolve to exactly one winner.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

type playerRow struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	ID             int64          `bun:"id,pk,autoincrement"`
	Name           string         `bun:"name,notnull"`
	TeamID         *int64         `bun:"team_id"`
	Score          int            `bun:"score,notnull"`
	GameCoins      int            `bun:"game_coins,notnull"`
	CampaignScores map[string]int `bun:"campaign_scores,type:jsonb"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,default:now()"`
}

type teamRow struct {
	bun.BaseModel `bun:"table:teams,alias:t"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:now()"`
}

type campaignRow struct {
	bun.BaseModel `bun:"table:campaigns,alias:c"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull"`
	Status    string    `bun:"status,notnull"`
	StartDate time.Time `bun:"start_date,notnull"`
	EndDate   time.Time `bun:"end_date,notnull"`
	Timezone  string    `bun:"timezone,notnull"`
	// NextDayIndex only ever grows, so deleting a question never frees its day.
	NextDayIndex int       `bun:"next_day_index,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,default:now()"`
}

type enrollmentRow struct {
	bun.BaseModel `bun:"table:campaign_players,alias:cp"`

	CampaignID int64 `bun:"campaign_id,pk"`
	PlayerID   int64 `bun:"player_id,pk"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID                   int64      `bun:"id,pk,autoincrement"`
	CampaignID           int64      `bun:"campaign_id,notnull"`
	Text                 string     `bun:"text,notnull"`
	Choices              []string   `bun:"choices,type:jsonb"`
	Answer               int        `bun:"answer,notnull"`
	PointsOnTime         int        `bun:"points_on_time,notnull"`
	PointsLate           int        `bun:"points_late,notnull"`
	DayIndex             int        `bun:"day_index,notnull"`
	ScheduleTime         string     `bun:"schedule_time,notnull"`
	DeadlineTime         string     `bun:"deadline_time,notnull"`
	IsSpecial            bool       `bun:"is_special,notnull"`
	SpecialStartAt       *time.Time `bun:"special_start_at"`
	SpecialWindowMinutes int        `bun:"special_window_minutes"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID             int64     `bun:"id,pk,autoincrement"`
	PlayerID       int64     `bun:"player_id,notnull"`
	QuestionID     int64     `bun:"question_id,notnull"`
	CampaignID     int64     `bun:"campaign_id,notnull"`
	SelectedAnswer int       `bun:"selected_answer,notnull"`
	AnsweredAt     time.Time `bun:"answered_at,notnull"`
	IsOnTime       bool      `bun:"is_on_time,notnull"`
	IsCorrect      bool      `bun:"is_correct,notnull"`
	PointsEarned   int       `bun:"points_earned,notnull"`
}

type productRow struct {
	bun.BaseModel `bun:"table:products,alias:pr"`

	ID               int64      `bun:"id,pk,autoincrement"`
	CampaignID       int64      `bun:"campaign_id,notnull"`
	Name             string     `bun:"name,notnull"`
	Description      string     `bun:"description"`
	PriceInGameCoins int        `bun:"price_in_game_coins,notnull"`
	Quantity         int        `bun:"quantity,notnull"`
	AvailableFrom    *time.Time `bun:"available_from"`
	AvailableUntil   *time.Time `bun:"available_until"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,default:now()"`
}

type purchaseRow struct {
	bun.BaseModel `bun:"table:purchases,alias:pu"`

	ID               int64     `bun:"id,pk,autoincrement"`
	PlayerID         int64     `bun:"player_id,notnull"`
	ProductID        int64     `bun:"product_id,notnull"`
	CampaignID       int64     `bun:"campaign_id,notnull"`
	PriceInGameCoins int       `bun:"price_in_game_coins,notnull"`
	PurchasedAt      time.Time `bun:"purchased_at,notnull"`
}

type adjustmentRow struct {
	bun.BaseModel `bun:"table:adjustments,alias:ad"`

	ID         int64     `bun:"id,pk,autoincrement"`
	PlayerID   int64     `bun:"player_id,notnull"`
	CampaignID int64     `bun:"campaign_id,notnull"`
	Points     int       `bun:"points,notnull"`
	Reason     string    `bun:"reason,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

func (r playerRow) toDomain() domain.Player {
	scores := make(map[int64]int, len(r.CampaignScores))
	for k, v := range r.CampaignScores {
		if id, err := strconv.ParseInt(k, 10, 64); err == nil {
			scores[id] = v
		}
	}
	return domain.Player{
		ID:             r.ID,
		Name:           r.Name,
		TeamID:         r.TeamID,
		Score:          r.Score,
		GameCoins:      r.GameCoins,
		CampaignScores: scores,
		CreatedAt:      r.CreatedAt,
	}
}

func (r campaignRow) toDomain() domain.Campaign {
	return domain.Campaign{
		ID:        r.ID,
		Name:      r.Name,
		Status:    domain.CampaignStatus(r.Status),
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
		Timezone:  r.Timezone,
		CreatedAt: r.CreatedAt,
	}
}

func (r questionRow) toDomain() domain.Question {
	return domain.Question{
		ID:                   r.ID,
		CampaignID:           r.CampaignID,
		Text:                 r.Text,
		Choices:              r.Choices,
		Answer:               r.Answer,
		PointsOnTime:         r.PointsOnTime,
		PointsLate:           r.PointsLate,
		DayIndex:             r.DayIndex,
		ScheduleTime:         r.ScheduleTime,
		DeadlineTime:         r.DeadlineTime,
		IsSpecial:            r.IsSpecial,
		SpecialStartAt:       r.SpecialStartAt,
		SpecialWindowMinutes: r.SpecialWindowMinutes,
	}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ID:             r.ID,
		PlayerID:       r.PlayerID,
		QuestionID:     r.QuestionID,
		CampaignID:     r.CampaignID,
		SelectedAnswer: r.SelectedAnswer,
		AnsweredAt:     r.AnsweredAt,
		IsOnTime:       r.IsOnTime,
		IsCorrect:      r.IsCorrect,
		PointsEarned:   r.PointsEarned,
	}
}

func (r productRow) toDomain() domain.Product {
	return domain.Product{
		ID:               r.ID,
		CampaignID:       r.CampaignID,
		Name:             r.Name,
		Description:      r.Description,
		PriceInGameCoins: r.PriceInGameCoins,
		Quantity:         r.Quantity,
		AvailableFrom:    r.AvailableFrom,
		AvailableUntil:   r.AvailableUntil,
		CreatedAt:        r.CreatedAt,
	}
}

func (r purchaseRow) toDomain() domain.Purchase {
	return domain.Purchase{
		ID:               r.ID,
		PlayerID:         r.PlayerID,
		ProductID:        r.ProductID,
		CampaignID:       r.CampaignID,
		PriceInGameCoins: r.PriceInGameCoins,
		PurchasedAt:      r.PurchasedAt,
	}
}

func (r adjustmentRow) toDomain() domain.Adjustment {
	return domain.Adjustment{
		ID:         r.ID,
		PlayerID:   r.PlayerID,
		CampaignID: r.CampaignID,
		Points:     r.Points,
		Reason:     r.Reason,
		CreatedAt:  r.CreatedAt,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

func (s *Store) CreatePlayer(ctx context.Context, p domain.Player) (domain.Player, error) {
	row := playerRow{
		Name:           p.Name,
		TeamID:         p.TeamID,
		CampaignScores: map[string]int{},
		CreatedAt:      p.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return domain.Player{}, fmt.Errorf("create player: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) Player(ctx context.Context, id int64) (domain.Player, error) {
	var row playerRow
	err := s.db.NewSelect().Model(&row).Where("p.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("load player: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) Players(ctx context.Context) ([]domain.Player, error) {
	var rows []playerRow
	if err := s.db.NewSelect().Model(&rows).Order("p.id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	out := make([]domain.Player, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// DeletePlayer relies on ON DELETE CASCADE to drop the player's answers,
// purchases, adjustments and enrollments with the row.
func (s *Store) DeletePlayer(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*playerRow)(nil)).Where("p.id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// UpdatePlayer renames or re-teams a player. Balances stay untouched; score
// and coins only move through the ledger operations.
func (s *Store) UpdatePlayer(ctx context.Context, id int64, name string, teamID *int64) (domain.Player, error) {
	if teamID != nil {
		exists, err := s.db.NewSelect().Model((*teamRow)(nil)).Where("t.id = ?", *teamID).Exists(ctx)
		if err != nil {
			return domain.Player{}, fmt.Errorf("check team: %w", err)
		}
		if !exists {
			return domain.Player{}, domain.ErrTeamNotFound
		}
	}
	var row playerRow
	err := s.db.NewSelect().Model(&row).Where("p.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("load player: %w", err)
	}
	row.Name = name
	row.TeamID = teamID
	if _, err := s.db.NewUpdate().Model(&row).
		Column("name", "team_id").
		WherePK().
		Exec(ctx); err != nil {
		return domain.Player{}, fmt.Errorf("update player: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) CreateTeam(ctx context.Context, t domain.Team) (domain.Team, error) {
	row := teamRow{Name: t.Name, CreatedAt: t.CreatedAt}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return domain.Team{}, fmt.Errorf("create team: %w", err)
	}
	return domain.Team{ID: row.ID, Name: row.Name, CreatedAt: row.CreatedAt}, nil
}

func (s *Store) UpdateTeam(ctx context.Context, t domain.Team) (domain.Team, error) {
	row := teamRow{ID: t.ID, Name: t.Name}
	res, err := s.db.NewUpdate().Model(&row).Column("name").WherePK().Exec(ctx)
	if err != nil {
		return domain.Team{}, fmt.Errorf("update team: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	return s.team(ctx, t.ID)
}

// DeleteTeam disbands the team; the FK sets its players' team to NULL.
func (s *Store) DeleteTeam(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*teamRow)(nil)).Where("t.id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.ErrTeamNotFound
	}
	return nil
}

func (s *Store) team(ctx context.Context, id int64) (domain.Team, error) {
	var row teamRow
	err := s.db.NewSelect().Model(&row).Where("t.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("load team: %w", err)
	}
	return domain.Team{ID: row.ID, Name: row.Name, CreatedAt: row.CreatedAt}, nil
}

func (s *Store) Teams(ctx context.Context) ([]domain.Team, error) {
	var rows []teamRow
	if err := s.db.NewSelect().Model(&rows).Order("t.id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	out := make([]domain.Team, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Team{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func (s *Store) CreateCampaign(ctx context.Context, c domain.Campaign) (domain.Campaign, error) {
	row := campaignRow{
		Name:      c.Name,
		Status:    string(c.Status),
		StartDate: c.StartDate,
		EndDate:   c.EndDate,
		Timezone:  c.Timezone,
		CreatedAt: c.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return domain.Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateCampaign(ctx context.Context, c domain.Campaign) (domain.Campaign, error) {
	row := campaignRow{
		ID:        c.ID,
		Name:      c.Name,
		Status:    string(c.Status),
		StartDate: c.StartDate,
		EndDate:   c.EndDate,
		Timezone:  c.Timezone,
	}
	res, err := s.db.NewUpdate().Model(&row).
		Column("name", "status", "start_date", "end_date", "timezone").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("update campaign: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.Campaign{}, domain.ErrCampaignNotFound
	}
	return s.Campaign(ctx, c.ID)
}

// DeleteCampaign drops the campaign; questions, products, answers, purchases,
// adjustments and enrollments go with it through the FK cascades. Player
// lifetime scores and coin balances stay as they are.
func (s *Store) DeleteCampaign(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*campaignRow)(nil)).Where("c.id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.ErrCampaignNotFound
	}
	return nil
}

func (s *Store) Campaign(ctx context.Context, id int64) (domain.Campaign, error) {
	var row campaignRow
	err := s.db.NewSelect().Model(&row).Where("c.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Campaign{}, domain.ErrCampaignNotFound
	}
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("load campaign: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) Campaigns(ctx context.Context) ([]domain.Campaign, error) {
	var rows []campaignRow
	if err := s.db.NewSelect().Model(&rows).Order("c.id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	out := make([]domain.Campaign, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) EnrollPlayer(ctx context.Context, campaignID, playerID int64) error {
	if _, err := s.Campaign(ctx, campaignID); err != nil {
		return err
	}
	if _, err := s.Player(ctx, playerID); err != nil {
		return err
	}
	row := enrollmentRow{CampaignID: campaignID, PlayerID: playerID}
	_, err := s.db.NewInsert().Model(&row).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("enroll player: %w", err)
	}
	return nil
}

// PlayerCampaigns lists the campaigns a player is enrolled in.
func (s *Store) PlayerCampaigns(ctx context.Context, playerID int64) ([]int64, error) {
	if _, err := s.Player(ctx, playerID); err != nil {
		return nil, err
	}
	var ids []int64
	err := s.db.NewSelect().Model((*enrollmentRow)(nil)).
		Column("cp.campaign_id").
		Where("cp.player_id = ?", playerID).
		Order("cp.campaign_id").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list player campaigns: %w", err)
	}
	return ids, nil
}

func (s *Store) CampaignPlayers(ctx context.Context, campaignID int64) ([]domain.Player, error) {
	if _, err := s.Campaign(ctx, campaignID); err != nil {
		return nil, err
	}
	var rows []playerRow
	err := s.db.NewSelect().Model(&rows).
		Join("JOIN campaign_players AS cp ON cp.player_id = p.id").
		Where("cp.campaign_id = ?", campaignID).
		Order("p.id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list campaign players: %w", err)
	}
	out := make([]domain.Player, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// CreateQuestion locks the campaign row so concurrent creations cannot hand
// out the same day index; regular questions take the campaign's monotonic
// counter, so a deleted question's day is never reissued.
func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	var out domain.Question
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var campaign campaignRow
		err := tx.NewSelect().Model(&campaign).Where("c.id = ?", q.CampaignID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrCampaignNotFound
		}
		if err != nil {
			return fmt.Errorf("lock campaign: %w", err)
		}

		dayIndex := q.DayIndex
		if !q.IsSpecial {
			dayIndex = campaign.NextDayIndex
			campaign.NextDayIndex++
			if _, err := tx.NewUpdate().Model(&campaign).
				Column("next_day_index").
				WherePK().
				Exec(ctx); err != nil {
				return fmt.Errorf("advance day index: %w", err)
			}
		}

		row := questionRow{
			CampaignID:           q.CampaignID,
			Text:                 q.Text,
			Choices:              q.Choices,
			Answer:               q.Answer,
			PointsOnTime:         q.PointsOnTime,
			PointsLate:           q.PointsLate,
			DayIndex:             dayIndex,
			ScheduleTime:         q.ScheduleTime,
			DeadlineTime:         q.DeadlineTime,
			IsSpecial:            q.IsSpecial,
			SpecialStartAt:       q.SpecialStartAt,
			SpecialWindowMinutes: q.SpecialWindowMinutes,
		}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return fmt.Errorf("create question: %w", err)
		}
		out = row.toDomain()
		return nil
	})
	return out, err
}

// UpdateQuestion edits the content of a question in place. The campaign, the
// special flag and the assigned day index are not editable.
func (s *Store) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	var out domain.Question
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var existing questionRow
		err := tx.NewSelect().Model(&existing).Where("q.id = ?", q.ID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrQuestionNotFound
		}
		if err != nil {
			return fmt.Errorf("lock question: %w", err)
		}

		existing.Text = q.Text
		existing.Choices = q.Choices
		existing.Answer = q.Answer
		existing.PointsOnTime = q.PointsOnTime
		existing.PointsLate = q.PointsLate
		existing.ScheduleTime = q.ScheduleTime
		existing.DeadlineTime = q.DeadlineTime
		existing.SpecialStartAt = q.SpecialStartAt
		existing.SpecialWindowMinutes = q.SpecialWindowMinutes
		if _, err := tx.NewUpdate().Model(&existing).
			Column("text", "choices", "answer", "points_on_time", "points_late",
				"schedule_time", "deadline_time", "special_start_at", "special_window_minutes").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("update question: %w", err)
		}
		out = existing.toDomain()
		return nil
	})
	return out, err
}

// DeleteQuestion drops the question; its answers go with it through the FK
// cascade. Earned points and coins are not clawed back, and the question's
// day is not reissued.
func (s *Store) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*questionRow)(nil)).Where("q.id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (s *Store) Question(ctx context.Context, id int64) (domain.Question, error) {
	var row questionRow
	err := s.db.NewSelect().Model(&row).Where("q.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) CampaignQuestions(ctx context.Context, campaignID int64) ([]domain.Question, error) {
	var rows []questionRow
	err := s.db.NewSelect().Model(&rows).Where("q.campaign_id = ?", campaignID).Order("q.id").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	out := make([]domain.Question, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if _, err := s.Campaign(ctx, p.CampaignID); err != nil {
		return domain.Product{}, err
	}
	row := productRow{
		CampaignID:       p.CampaignID,
		Name:             p.Name,
		Description:      p.Description,
		PriceInGameCoins: p.PriceInGameCoins,
		Quantity:         p.Quantity,
		AvailableFrom:    p.AvailableFrom,
		AvailableUntil:   p.AvailableUntil,
		CreatedAt:        p.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) Products(ctx context.Context, campaignID int64) ([]domain.Product, error) {
	var rows []productRow
	err := s.db.NewSelect().Model(&rows).Where("pr.campaign_id = ?", campaignID).Order("pr.id").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) PlayerAnswers(ctx context.Context, playerID, campaignID int64) ([]domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("a.player_id = ? AND a.campaign_id = ?", playerID, campaignID).
		Order("a.id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]domain.Answer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) PlayerPurchases(ctx context.Context, playerID int64) ([]domain.Purchase, error) {
	var rows []purchaseRow
	err := s.db.NewSelect().Model(&rows).Where("pu.player_id = ?", playerID).Order("pu.id").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	out := make([]domain.Purchase, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// SubmitAnswer runs the whole submit path in one transaction: the duplicate,
// question and campaign preconditions, evaluation, the answer insert and the
// three balance credits. The unique index on (player_id, question_id) settles
// races the precondition read cannot see.
func (s *Store) SubmitAnswer(ctx context.Context, playerID, questionID, campaignID int64, selected int, now time.Time) (domain.Answer, error) {
	var out domain.Answer
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*answerRow)(nil)).
			Where("a.player_id = ? AND a.question_id = ?", playerID, questionID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check existing answer: %w", err)
		}
		if exists {
			return domain.ErrAlreadyAnswered
		}

		var question questionRow
		err = tx.NewSelect().Model(&question).
			Where("q.id = ? AND q.campaign_id = ?", questionID, campaignID).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrQuestionNotFound
		}
		if err != nil {
			return fmt.Errorf("load question: %w", err)
		}

		var campaign domain.Campaign
		if !question.IsSpecial {
			var c campaignRow
			err = tx.NewSelect().Model(&c).Where("c.id = ?", campaignID).Scan(ctx)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrCampaignNotFound
			}
			if err != nil {
				return fmt.Errorf("load campaign: %w", err)
			}
			if c.StartDate.IsZero() {
				return domain.ErrCampaignNotFound
			}
			campaign = c.toDomain()
		}

		var player playerRow
		err = tx.NewSelect().Model(&player).Where("p.id = ?", playerID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPlayerNotFound
		}
		if err != nil {
			return fmt.Errorf("lock player: %w", err)
		}

		ev := app.Evaluate(question.toDomain(), campaign.StartDate, campaign.Location(), selected, now)
		row := answerRow{
			PlayerID:       playerID,
			QuestionID:     questionID,
			CampaignID:     campaignID,
			SelectedAnswer: selected,
			AnsweredAt:     now,
			IsOnTime:       ev.IsOnTime,
			IsCorrect:      ev.IsCorrect,
			PointsEarned:   ev.PointsEarned,
		}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAlreadyAnswered
			}
			return fmt.Errorf("insert answer: %w", err)
		}

		if player.CampaignScores == nil {
			player.CampaignScores = map[string]int{}
		}
		key := strconv.FormatInt(campaignID, 10)
		player.Score += ev.PointsEarned
		player.GameCoins += ev.PointsEarned
		player.CampaignScores[key] += ev.PointsEarned
		if _, err := tx.NewUpdate().Model(&player).
			Column("score", "game_coins", "campaign_scores").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("credit player: %w", err)
		}

		out = row.toDomain()
		return nil
	})
	if err != nil {
		return domain.Answer{}, err
	}
	return out, nil
}

// PurchaseProduct runs the purchase path in one transaction. The product row
// is locked FOR UPDATE before the stock count so two buyers of the last unit
// serialize; the unique index on (player_id, product_id) settles duplicate
// races.
func (s *Store) PurchaseProduct(ctx context.Context, playerID, productID, campaignID int64, now time.Time) (domain.Purchase, error) {
	var out domain.Purchase
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*purchaseRow)(nil)).
			Where("pu.player_id = ? AND pu.product_id = ?", playerID, productID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check existing purchase: %w", err)
		}
		if exists {
			return domain.ErrAlreadyPurchased
		}

		var player playerRow
		err = tx.NewSelect().Model(&player).Where("p.id = ?", playerID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPlayerNotFound
		}
		if err != nil {
			return fmt.Errorf("lock player: %w", err)
		}

		var product productRow
		err = tx.NewSelect().Model(&product).Where("pr.id = ?", productID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrProductNotFound
		}
		if err != nil {
			return fmt.Errorf("lock product: %w", err)
		}
		if !product.toDomain().AvailableAt(now) {
			return domain.ErrProductUnavailable
		}

		sold, err := tx.NewSelect().Model((*purchaseRow)(nil)).
			Where("pu.product_id = ?", productID).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("count purchases: %w", err)
		}
		if product.Quantity-sold <= 0 {
			return domain.ErrOutOfStock
		}
		if player.GameCoins < product.PriceInGameCoins {
			return domain.ErrInsufficientCoins
		}

		row := purchaseRow{
			PlayerID:         playerID,
			ProductID:        productID,
			CampaignID:       product.CampaignID,
			PriceInGameCoins: product.PriceInGameCoins,
			PurchasedAt:      now,
		}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAlreadyPurchased
			}
			return fmt.Errorf("insert purchase: %w", err)
		}

		player.GameCoins -= product.PriceInGameCoins
		if _, err := tx.NewUpdate().Model(&player).
			Column("game_coins").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("debit player: %w", err)
		}

		out = row.toDomain()
		return nil
	})
	if err != nil {
		return domain.Purchase{}, err
	}
	return out, nil
}

// ApplyAdjustment records the audited manual award and applies it to the
// locked player row in the same transaction.
func (s *Store) ApplyAdjustment(ctx context.Context, adj domain.Adjustment) (domain.Adjustment, error) {
	var out domain.Adjustment
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var player playerRow
		err := tx.NewSelect().Model(&player).Where("p.id = ?", adj.PlayerID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPlayerNotFound
		}
		if err != nil {
			return fmt.Errorf("lock player: %w", err)
		}

		exists, err := tx.NewSelect().Model((*campaignRow)(nil)).Where("c.id = ?", adj.CampaignID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("check campaign: %w", err)
		}
		if !exists {
			return domain.ErrCampaignNotFound
		}

		if player.GameCoins+adj.Points < 0 {
			return domain.ErrInsufficientCoins
		}

		row := adjustmentRow{
			PlayerID:   adj.PlayerID,
			CampaignID: adj.CampaignID,
			Points:     adj.Points,
			Reason:     adj.Reason,
			CreatedAt:  adj.CreatedAt,
		}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return fmt.Errorf("insert adjustment: %w", err)
		}

		if player.CampaignScores == nil {
			player.CampaignScores = map[string]int{}
		}
		key := strconv.FormatInt(adj.CampaignID, 10)
		player.Score += adj.Points
		player.GameCoins += adj.Points
		player.CampaignScores[key] += adj.Points
		if _, err := tx.NewUpdate().Model(&player).
			Column("score", "game_coins", "campaign_scores").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("apply adjustment: %w", err)
		}

		out = row.toDomain()
		return nil
	})
	if err != nil {
		return domain.Adjustment{}, err
	}
	return out, nil
}
