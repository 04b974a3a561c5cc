package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"gameday-service/internal/domain"
)

// Store is the datastore gateway. Implementations own the atomic boundary:
// SubmitAnswer, PurchaseProduct and ApplyAdjustment run their precondition
// checks, inserts and balance updates as a single all-or-nothing unit, so two
// near-simultaneous submissions of the same (player, question) pair or two
// purchases of the last unit can never both land.
type Store interface {
	CreatePlayer(ctx context.Context, p domain.Player) (domain.Player, error)
	Player(ctx context.Context, id int64) (domain.Player, error)
	Players(ctx context.Context) ([]domain.Player, error)
	// DeletePlayer cascades to the player's answers, purchases, adjustments
	// and enrollments.
	DeletePlayer(ctx context.Context, id int64) error

	// UpdatePlayer edits name and team only; balances move through the ledger.
	UpdatePlayer(ctx context.Context, id int64, name string, teamID *int64) (domain.Player, error)

	CreateTeam(ctx context.Context, t domain.Team) (domain.Team, error)
	UpdateTeam(ctx context.Context, t domain.Team) (domain.Team, error)
	// DeleteTeam disbands the team and leaves its players teamless.
	DeleteTeam(ctx context.Context, id int64) error
	Teams(ctx context.Context) ([]domain.Team, error)

	CreateCampaign(ctx context.Context, c domain.Campaign) (domain.Campaign, error)
	UpdateCampaign(ctx context.Context, c domain.Campaign) (domain.Campaign, error)
	// DeleteCampaign cascades to the campaign's questions, products, answers,
	// purchases, adjustments and enrollments.
	DeleteCampaign(ctx context.Context, id int64) error
	Campaign(ctx context.Context, id int64) (domain.Campaign, error)
	Campaigns(ctx context.Context) ([]domain.Campaign, error)
	EnrollPlayer(ctx context.Context, campaignID, playerID int64) error
	CampaignPlayers(ctx context.Context, campaignID int64) ([]domain.Player, error)
	PlayerCampaigns(ctx context.Context, playerID int64) ([]int64, error)

	// CreateQuestion assigns the next available day index to regular questions.
	CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	// UpdateQuestion keeps the campaign, special flag and day index fixed.
	UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	// DeleteQuestion removes the question and its answers; the day index is
	// not reissued and awarded points are not clawed back.
	DeleteQuestion(ctx context.Context, id int64) error
	Question(ctx context.Context, id int64) (domain.Question, error)
	CampaignQuestions(ctx context.Context, campaignID int64) ([]domain.Question, error)

	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	Products(ctx context.Context, campaignID int64) ([]domain.Product, error)

	PlayerAnswers(ctx context.Context, playerID, campaignID int64) ([]domain.Answer, error)
	PlayerPurchases(ctx context.Context, playerID int64) ([]domain.Purchase, error)

	SubmitAnswer(ctx context.Context, playerID, questionID, campaignID int64, selected int, now time.Time) (domain.Answer, error)
	PurchaseProduct(ctx context.Context, playerID, productID, campaignID int64, now time.Time) (domain.Purchase, error)
	ApplyAdjustment(ctx context.Context, adj domain.Adjustment) (domain.Adjustment, error)
}

// QuestionRepository serves campaign question sets for the visibility path
// (typically a TTL cache in front of the Store). Invalidate drops a
// campaign's cached set after question mutations so admin edits are visible
// to players immediately, not after the TTL.
type QuestionRepository interface {
	CampaignQuestions(ctx context.Context, campaignID int64) ([]domain.Question, error)
	Invalidate(ctx context.Context, campaignID int64) error
}

// ScoreCache mirrors campaign scores into a ranking cache. Best-effort; the
// datastore stays the source of truth.
type ScoreCache interface {
	UpdateScore(ctx context.Context, campaignID, playerID int64, score int) error
	Remove(ctx context.Context, campaignID, playerID int64) error
}

// GameService contains the gameplay and store use cases.
type GameService struct {
	store     Store
	questions QuestionRepository
	hub       *ScoreboardHub
	scores    ScoreCache // optional
	defaultTZ string
	now       func() time.Time
}

func NewGameService(store Store, questions QuestionRepository, hub *ScoreboardHub, scores ScoreCache, defaultTZ string) *GameService {
	return &GameService{
		store:     store,
		questions: questions,
		hub:       hub,
		scores:    scores,
		defaultTZ: defaultTZ,
		now:       time.Now,
	}
}

// NewGameServiceWithClock is test-only for deterministic timestamps.
func NewGameServiceWithClock(store Store, questions QuestionRepository, hub *ScoreboardHub, scores ScoreCache, defaultTZ string, now func() time.Time) *GameService {
	s := NewGameService(store, questions, hub, scores, defaultTZ)
	s.now = now
	return s
}

// GetVisibleQuestions returns the questions the player may answer right now.
// Read-only; safe to call on a polling interval.
func (s *GameService) GetVisibleQuestions(ctx context.Context, playerID, campaignID int64) ([]domain.Question, error) {
	if _, err := s.store.Player(ctx, playerID); err != nil {
		return nil, err
	}
	campaign, err := s.store.Campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questions.CampaignQuestions(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.PlayerAnswers(ctx, playerID, campaignID)
	if err != nil {
		return nil, err
	}
	answered := make(map[int64]bool, len(answers))
	for _, a := range answers {
		answered[a.QuestionID] = true
	}
	return VisibleQuestions(questions, answered, campaign.StartDate, campaign.Location(), s.now()), nil
}

// SubmitAnswer records a player's choice exactly once and credits score and
// coins atomically. Retrying after an ambiguous failure either succeeds once
// or reports ErrAlreadyAnswered, never double-awards.
func (s *GameService) SubmitAnswer(ctx context.Context, playerID, questionID, campaignID int64, selected int) (domain.Answer, error) {
	answer, err := s.store.SubmitAnswer(ctx, playerID, questionID, campaignID, selected, s.now())
	if err != nil {
		return domain.Answer{}, err
	}
	s.publishScoreboard(ctx, campaignID)
	return answer, nil
}

// PurchaseProduct spends coins on a catalog item exactly once, capturing the
// price at purchase time.
func (s *GameService) PurchaseProduct(ctx context.Context, playerID, productID, campaignID int64) (domain.Purchase, error) {
	return s.store.PurchaseProduct(ctx, playerID, productID, campaignID, s.now())
}

// AdjustScore applies an audited manual point award through the same atomic
// ledger discipline as answers. Score and coin fields are never edited directly.
func (s *GameService) AdjustScore(ctx context.Context, playerID, campaignID int64, points int, reason string) (domain.Adjustment, error) {
	if reason == "" {
		return domain.Adjustment{}, fmt.Errorf("%w: adjustment reason required", domain.ErrInvalidInput)
	}
	adj, err := s.store.ApplyAdjustment(ctx, domain.Adjustment{
		PlayerID:   playerID,
		CampaignID: campaignID,
		Points:     points,
		Reason:     reason,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return domain.Adjustment{}, err
	}
	s.publishScoreboard(ctx, campaignID)
	return adj, nil
}

// Scoreboard ranks enrolled players by their score within the campaign.
func (s *GameService) Scoreboard(ctx context.Context, campaignID int64) (domain.Scoreboard, error) {
	if _, err := s.store.Campaign(ctx, campaignID); err != nil {
		return domain.Scoreboard{}, err
	}
	players, err := s.store.CampaignPlayers(ctx, campaignID)
	if err != nil {
		return domain.Scoreboard{}, err
	}

	entries := make([]domain.ScoreboardEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, domain.ScoreboardEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			TeamID:   p.TeamID,
			Score:    p.CampaignScores[campaignID],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Name < entries[j].Name
	})

	return domain.Scoreboard{CampaignID: campaignID, Entries: entries, UpdatedAt: s.now()}, nil
}

// Subscribe returns a channel that receives scoreboard updates for a campaign.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *GameService) Subscribe(ctx context.Context, campaignID int64) (<-chan domain.Scoreboard, func(), error) {
	if _, err := s.store.Campaign(ctx, campaignID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.Subscribe(campaignID)
	return ch, cancel, nil
}

func (s *GameService) publishScoreboard(ctx context.Context, campaignID int64) {
	sb, err := s.Scoreboard(ctx, campaignID)
	if err != nil {
		log.Printf("scoreboard refresh for campaign %d failed: %v", campaignID, err)
		return
	}
	s.hub.Publish(sb)
	if s.scores != nil {
		for _, e := range sb.Entries {
			if err := s.scores.UpdateScore(ctx, campaignID, e.PlayerID, e.Score); err != nil {
				log.Printf("score cache update failed: %v", err)
				break
			}
		}
	}
}

// CreatePlayer registers a new player with zeroed balances.
func (s *GameService) CreatePlayer(ctx context.Context, name string, teamID *int64) (domain.Player, error) {
	if name == "" {
		return domain.Player{}, fmt.Errorf("%w: player name required", domain.ErrInvalidInput)
	}
	return s.store.CreatePlayer(ctx, domain.Player{
		Name:           name,
		TeamID:         teamID,
		CampaignScores: map[int64]int{},
		CreatedAt:      s.now(),
	})
}

// UpdatePlayer renames or re-teams a player; balances are not editable.
func (s *GameService) UpdatePlayer(ctx context.Context, id int64, name string, teamID *int64) (domain.Player, error) {
	if name == "" {
		return domain.Player{}, fmt.Errorf("%w: player name required", domain.ErrInvalidInput)
	}
	return s.store.UpdatePlayer(ctx, id, name, teamID)
}

// DeletePlayer removes a player and cascades to their answers, purchases,
// adjustments and enrollments, then drops them from the live rankings.
func (s *GameService) DeletePlayer(ctx context.Context, id int64) error {
	campaigns, err := s.store.PlayerCampaigns(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeletePlayer(ctx, id); err != nil {
		return err
	}
	for _, campaignID := range campaigns {
		if s.scores != nil {
			if err := s.scores.Remove(ctx, campaignID, id); err != nil {
				log.Printf("score cache removal failed: %v", err)
			}
		}
		s.publishScoreboard(ctx, campaignID)
	}
	return nil
}

func (s *GameService) Players(ctx context.Context) ([]domain.Player, error) {
	return s.store.Players(ctx)
}

func (s *GameService) Player(ctx context.Context, id int64) (domain.Player, error) {
	return s.store.Player(ctx, id)
}

func (s *GameService) CreateTeam(ctx context.Context, name string) (domain.Team, error) {
	if name == "" {
		return domain.Team{}, fmt.Errorf("%w: team name required", domain.ErrInvalidInput)
	}
	return s.store.CreateTeam(ctx, domain.Team{Name: name, CreatedAt: s.now()})
}

func (s *GameService) UpdateTeam(ctx context.Context, id int64, name string) (domain.Team, error) {
	if name == "" {
		return domain.Team{}, fmt.Errorf("%w: team name required", domain.ErrInvalidInput)
	}
	return s.store.UpdateTeam(ctx, domain.Team{ID: id, Name: name})
}

// DeleteTeam disbands a team; its players stay, teamless.
func (s *GameService) DeleteTeam(ctx context.Context, id int64) error {
	return s.store.DeleteTeam(ctx, id)
}

func (s *GameService) Teams(ctx context.Context) ([]domain.Team, error) {
	return s.store.Teams(ctx)
}

// CreateCampaign validates the date window and fills in defaults. An empty
// timezone falls back to the configured service default.
func (s *GameService) CreateCampaign(ctx context.Context, c domain.Campaign) (domain.Campaign, error) {
	c, err := s.validateCampaign(c)
	if err != nil {
		return domain.Campaign{}, err
	}
	c.CreatedAt = s.now()
	return s.store.CreateCampaign(ctx, c)
}

// UpdateCampaign revalidates and replaces the campaign's metadata. Changing
// the start date or timezone re-anchors every question window.
func (s *GameService) UpdateCampaign(ctx context.Context, c domain.Campaign) (domain.Campaign, error) {
	c, err := s.validateCampaign(c)
	if err != nil {
		return domain.Campaign{}, err
	}
	return s.store.UpdateCampaign(ctx, c)
}

// DeleteCampaign removes the campaign and everything scheduled or earned in
// it; lifetime scores and coin balances stay.
func (s *GameService) DeleteCampaign(ctx context.Context, id int64) error {
	if err := s.store.DeleteCampaign(ctx, id); err != nil {
		return err
	}
	s.invalidateQuestions(ctx, id)
	return nil
}

func (s *GameService) validateCampaign(c domain.Campaign) (domain.Campaign, error) {
	if c.Name == "" {
		return domain.Campaign{}, fmt.Errorf("%w: campaign name required", domain.ErrInvalidInput)
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() || c.EndDate.Before(c.StartDate) {
		return domain.Campaign{}, fmt.Errorf("%w: campaign start date must not be after end date", domain.ErrInvalidInput)
	}
	if c.Status == "" {
		c.Status = domain.CampaignPlanned
	}
	if c.Timezone == "" {
		c.Timezone = s.defaultTZ
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return domain.Campaign{}, fmt.Errorf("%w: unknown timezone %q", domain.ErrInvalidInput, c.Timezone)
	}
	return c, nil
}

func (s *GameService) Campaigns(ctx context.Context) ([]domain.Campaign, error) {
	return s.store.Campaigns(ctx)
}

func (s *GameService) EnrollPlayer(ctx context.Context, campaignID, playerID int64) error {
	return s.store.EnrollPlayer(ctx, campaignID, playerID)
}

// CreateQuestion validates the choice and answer invariants; the store assigns
// the day index for regular questions.
func (s *GameService) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	q, err := validateQuestion(q)
	if err != nil {
		return domain.Question{}, err
	}
	created, err := s.store.CreateQuestion(ctx, q)
	if err != nil {
		return domain.Question{}, err
	}
	s.invalidateQuestions(ctx, created.CampaignID)
	return created, nil
}

// UpdateQuestion edits a question's content; the campaign, special flag and
// day index stay as assigned.
func (s *GameService) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	q, err := validateQuestion(q)
	if err != nil {
		return domain.Question{}, err
	}
	updated, err := s.store.UpdateQuestion(ctx, q)
	if err != nil {
		return domain.Question{}, err
	}
	s.invalidateQuestions(ctx, updated.CampaignID)
	return updated, nil
}

// DeleteQuestion removes a question; its day index is not reissued and
// points already awarded stay awarded.
func (s *GameService) DeleteQuestion(ctx context.Context, id int64) error {
	q, err := s.store.Question(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	s.invalidateQuestions(ctx, q.CampaignID)
	return nil
}

// invalidateQuestions drops the cached question set so players see the
// mutation immediately. Best-effort: a failed drop only delays visibility
// until the TTL.
func (s *GameService) invalidateQuestions(ctx context.Context, campaignID int64) {
	if err := s.questions.Invalidate(ctx, campaignID); err != nil {
		log.Printf("question cache invalidation for campaign %d failed: %v", campaignID, err)
	}
}

func validateQuestion(q domain.Question) (domain.Question, error) {
	if len(q.Choices) < 2 || len(q.Choices) > 4 {
		return domain.Question{}, fmt.Errorf("%w: need between 2 and 4 choices", domain.ErrInvalidQuestion)
	}
	if q.Answer < 0 || q.Answer >= len(q.Choices) {
		return domain.Question{}, fmt.Errorf("%w: answer index out of range", domain.ErrInvalidQuestion)
	}
	if q.IsSpecial && q.SpecialStartAt == nil {
		return domain.Question{}, fmt.Errorf("%w: special question needs a start time", domain.ErrInvalidQuestion)
	}
	if q.ScheduleTime == "" {
		q.ScheduleTime = domain.DefaultScheduleTime
	}
	if q.DeadlineTime == "" {
		q.DeadlineTime = domain.DefaultDeadlineTime
	}
	if q.IsSpecial && q.SpecialWindowMinutes <= 0 {
		q.SpecialWindowMinutes = domain.DefaultSpecialWindowMinutes
	}
	return q, nil
}

func (s *GameService) CampaignQuestions(ctx context.Context, campaignID int64) ([]domain.Question, error) {
	return s.store.CampaignQuestions(ctx, campaignID)
}

func (s *GameService) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if p.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name required", domain.ErrInvalidInput)
	}
	if p.PriceInGameCoins <= 0 {
		return domain.Product{}, fmt.Errorf("%w: price must be positive", domain.ErrInvalidInput)
	}
	if p.Quantity < 0 {
		return domain.Product{}, fmt.Errorf("%w: quantity must not be negative", domain.ErrInvalidInput)
	}
	p.CreatedAt = s.now()
	return s.store.CreateProduct(ctx, p)
}

func (s *GameService) Products(ctx context.Context, campaignID int64) ([]domain.Product, error) {
	return s.store.Products(ctx, campaignID)
}

func (s *GameService) PlayerPurchases(ctx context.Context, playerID int64) ([]domain.Purchase, error) {
	return s.store.PlayerPurchases(ctx, playerID)
}
