package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"gameday-service/internal/app"
	"gameday-service/internal/domain"
)

type playerQuestion struct{ playerID, questionID int64 }
type playerProduct struct{ playerID, productID int64 }

// Store is an in-memory implementation of app.Store, used for tests and for
// running the service without Postgres. A single mutex is the atomic boundary:
// every ledger operation checks its preconditions and applies its writes
// without releasing it, so concurrent duplicate submissions or last-unit
// purchases resolve to exactly one winner.
type Store struct {
	mu     sync.Mutex
	nextID int64

	players     map[int64]*domain.Player
	teams       map[int64]domain.Team
	campaigns   map[int64]domain.Campaign
	questions   map[int64]domain.Question
	products    map[int64]domain.Product
	answers     map[int64]domain.Answer
	answerIdx   map[playerQuestion]int64
	purchases   map[int64]domain.Purchase
	purchaseIdx map[playerProduct]int64
	sold        map[int64]int
	adjustments map[int64]domain.Adjustment
	enrollments map[int64]map[int64]bool
	// nextDay only ever grows, so deleting a question never frees its day.
	nextDay map[int64]int
}

func NewStore() *Store {
	return &Store{
		players:     make(map[int64]*domain.Player),
		teams:       make(map[int64]domain.Team),
		campaigns:   make(map[int64]domain.Campaign),
		questions:   make(map[int64]domain.Question),
		products:    make(map[int64]domain.Product),
		answers:     make(map[int64]domain.Answer),
		answerIdx:   make(map[playerQuestion]int64),
		purchases:   make(map[int64]domain.Purchase),
		purchaseIdx: make(map[playerProduct]int64),
		sold:        make(map[int64]int),
		adjustments: make(map[int64]domain.Adjustment),
		enrollments: make(map[int64]map[int64]bool),
		nextDay:     make(map[int64]int),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func copyPlayer(p *domain.Player) domain.Player {
	out := *p
	out.CampaignScores = make(map[int64]int, len(p.CampaignScores))
	for k, v := range p.CampaignScores {
		out.CampaignScores[k] = v
	}
	return out
}

func (s *Store) CreatePlayer(_ context.Context, p domain.Player) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.TeamID != nil {
		if _, ok := s.teams[*p.TeamID]; !ok {
			return domain.Player{}, domain.ErrTeamNotFound
		}
	}
	p.ID = s.id()
	if p.CampaignScores == nil {
		p.CampaignScores = map[int64]int{}
	}
	s.players[p.ID] = &p
	return copyPlayer(&p), nil
}

func (s *Store) Player(_ context.Context, id int64) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return copyPlayer(p), nil
}

func (s *Store) Players(_ context.Context) ([]domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, copyPlayer(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdatePlayer renames or re-teams a player. Balances stay untouched; score
// and coins only move through the ledger operations.
func (s *Store) UpdatePlayer(_ context.Context, id int64, name string, teamID *int64) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if teamID != nil {
		if _, ok := s.teams[*teamID]; !ok {
			return domain.Player{}, domain.ErrTeamNotFound
		}
	}
	p.Name = name
	p.TeamID = teamID
	return copyPlayer(p), nil
}

// DeletePlayer removes the player and everything they own.
func (s *Store) DeletePlayer(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[id]; !ok {
		return domain.ErrPlayerNotFound
	}
	delete(s.players, id)
	for aid, a := range s.answers {
		if a.PlayerID == id {
			delete(s.answers, aid)
			delete(s.answerIdx, playerQuestion{a.PlayerID, a.QuestionID})
		}
	}
	for pid, p := range s.purchases {
		if p.PlayerID == id {
			delete(s.purchases, pid)
			delete(s.purchaseIdx, playerProduct{p.PlayerID, p.ProductID})
			s.sold[p.ProductID]--
		}
	}
	for aid, a := range s.adjustments {
		if a.PlayerID == id {
			delete(s.adjustments, aid)
		}
	}
	for _, enrolled := range s.enrollments {
		delete(enrolled, id)
	}
	return nil
}

func (s *Store) CreateTeam(_ context.Context, t domain.Team) (domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	s.teams[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTeam(_ context.Context, t domain.Team) (domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.teams[t.ID]
	if !ok {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	existing.Name = t.Name
	s.teams[t.ID] = existing
	return existing, nil
}

// DeleteTeam disbands the team; its players stay, teamless.
func (s *Store) DeleteTeam(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[id]; !ok {
		return domain.ErrTeamNotFound
	}
	delete(s.teams, id)
	for _, p := range s.players {
		if p.TeamID != nil && *p.TeamID == id {
			p.TeamID = nil
		}
	}
	return nil
}

func (s *Store) Teams(_ context.Context) ([]domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Team, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateCampaign(_ context.Context, c domain.Campaign) (domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	s.campaigns[c.ID] = c
	s.enrollments[c.ID] = make(map[int64]bool)
	return c, nil
}

func (s *Store) Campaign(_ context.Context, id int64) (domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return domain.Campaign{}, domain.ErrCampaignNotFound
	}
	return c, nil
}

func (s *Store) UpdateCampaign(_ context.Context, c domain.Campaign) (domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[c.ID]; !ok {
		return domain.Campaign{}, domain.ErrCampaignNotFound
	}
	s.campaigns[c.ID] = c
	return c, nil
}

// DeleteCampaign removes the campaign and everything scheduled or earned
// within it. Player lifetime scores and coin balances stay as they are.
func (s *Store) DeleteCampaign(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[id]; !ok {
		return domain.ErrCampaignNotFound
	}
	delete(s.campaigns, id)
	delete(s.enrollments, id)
	delete(s.nextDay, id)
	for qid, q := range s.questions {
		if q.CampaignID == id {
			delete(s.questions, qid)
		}
	}
	for pid, p := range s.products {
		if p.CampaignID == id {
			delete(s.products, pid)
			delete(s.sold, pid)
		}
	}
	for aid, a := range s.answers {
		if a.CampaignID == id {
			delete(s.answers, aid)
			delete(s.answerIdx, playerQuestion{a.PlayerID, a.QuestionID})
		}
	}
	for pid, p := range s.purchases {
		if p.CampaignID == id {
			delete(s.purchases, pid)
			delete(s.purchaseIdx, playerProduct{p.PlayerID, p.ProductID})
		}
	}
	for aid, a := range s.adjustments {
		if a.CampaignID == id {
			delete(s.adjustments, aid)
		}
	}
	return nil
}

func (s *Store) Campaigns(_ context.Context) ([]domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) EnrollPlayer(_ context.Context, campaignID, playerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[campaignID]; !ok {
		return domain.ErrCampaignNotFound
	}
	if _, ok := s.players[playerID]; !ok {
		return domain.ErrPlayerNotFound
	}
	s.enrollments[campaignID][playerID] = true
	return nil
}

// PlayerCampaigns lists the campaigns a player is enrolled in.
func (s *Store) PlayerCampaigns(_ context.Context, playerID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[playerID]; !ok {
		return nil, domain.ErrPlayerNotFound
	}
	out := make([]int64, 0)
	for campaignID, enrolled := range s.enrollments {
		if enrolled[playerID] {
			out = append(out, campaignID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) CampaignPlayers(_ context.Context, campaignID int64) ([]domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrolled, ok := s.enrollments[campaignID]
	if !ok {
		return nil, domain.ErrCampaignNotFound
	}
	out := make([]domain.Player, 0, len(enrolled))
	for id := range enrolled {
		if p, ok := s.players[id]; ok {
			out = append(out, copyPlayer(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateQuestion assigns regular questions the next day in their campaign
// from the monotonic counter; freed days are not handed out again.
func (s *Store) CreateQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[q.CampaignID]; !ok {
		return domain.Question{}, domain.ErrCampaignNotFound
	}
	if !q.IsSpecial {
		q.DayIndex = s.nextDay[q.CampaignID]
		s.nextDay[q.CampaignID]++
	}
	q.ID = s.id()
	s.questions[q.ID] = q
	return q, nil
}

// UpdateQuestion edits the content of a question in place. The campaign, the
// special flag and the assigned day index are not editable.
func (s *Store) UpdateQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.questions[q.ID]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	q.CampaignID = existing.CampaignID
	q.IsSpecial = existing.IsSpecial
	q.DayIndex = existing.DayIndex
	s.questions[q.ID] = q
	return q, nil
}

// DeleteQuestion removes the question and its answers. Earned points and
// coins are not clawed back, and the question's day is not reissued.
func (s *Store) DeleteQuestion(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return domain.ErrQuestionNotFound
	}
	delete(s.questions, id)
	for aid, a := range s.answers {
		if a.QuestionID == id {
			delete(s.answers, aid)
			delete(s.answerIdx, playerQuestion{a.PlayerID, a.QuestionID})
		}
	}
	return nil
}

func (s *Store) Question(_ context.Context, id int64) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (s *Store) CampaignQuestions(_ context.Context, campaignID int64) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Question, 0)
	for _, q := range s.questions {
		if q.CampaignID == campaignID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[p.CampaignID]; !ok {
		return domain.Product{}, domain.ErrCampaignNotFound
	}
	p.ID = s.id()
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) Products(_ context.Context, campaignID int64) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.CampaignID == campaignID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) PlayerAnswers(_ context.Context, playerID, campaignID int64) ([]domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Answer, 0)
	for _, a := range s.answers {
		if a.PlayerID == playerID && a.CampaignID == campaignID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) PlayerPurchases(_ context.Context, playerID int64) ([]domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Purchase, 0)
	for _, p := range s.purchases {
		if p.PlayerID == playerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SubmitAnswer is the atomic submit path. Preconditions in order, first
// failure wins; evaluation, insert and balance credits all happen while the
// lock is held.
func (s *Store) SubmitAnswer(_ context.Context, playerID, questionID, campaignID int64, selected int, now time.Time) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.answerIdx[playerQuestion{playerID, questionID}]; dup {
		return domain.Answer{}, domain.ErrAlreadyAnswered
	}
	q, ok := s.questions[questionID]
	if !ok || q.CampaignID != campaignID {
		return domain.Answer{}, domain.ErrQuestionNotFound
	}
	var campaign domain.Campaign
	if !q.IsSpecial {
		campaign, ok = s.campaigns[campaignID]
		if !ok || campaign.StartDate.IsZero() {
			return domain.Answer{}, domain.ErrCampaignNotFound
		}
	}
	player, ok := s.players[playerID]
	if !ok {
		return domain.Answer{}, domain.ErrPlayerNotFound
	}

	ev := app.Evaluate(q, campaign.StartDate, campaign.Location(), selected, now)
	answer := domain.Answer{
		ID:             s.id(),
		PlayerID:       playerID,
		QuestionID:     questionID,
		CampaignID:     campaignID,
		SelectedAnswer: selected,
		AnsweredAt:     now,
		IsOnTime:       ev.IsOnTime,
		IsCorrect:      ev.IsCorrect,
		PointsEarned:   ev.PointsEarned,
	}
	s.answers[answer.ID] = answer
	s.answerIdx[playerQuestion{playerID, questionID}] = answer.ID

	player.Score += ev.PointsEarned
	player.GameCoins += ev.PointsEarned
	player.CampaignScores[campaignID] += ev.PointsEarned
	return answer, nil
}

// PurchaseProduct is the atomic purchase path: duplicate, player, product,
// stock and balance checks all settle under the same lock as the insert.
func (s *Store) PurchaseProduct(_ context.Context, playerID, productID, campaignID int64, now time.Time) (domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.purchaseIdx[playerProduct{playerID, productID}]; dup {
		return domain.Purchase{}, domain.ErrAlreadyPurchased
	}
	player, ok := s.players[playerID]
	if !ok {
		return domain.Purchase{}, domain.ErrPlayerNotFound
	}
	product, ok := s.products[productID]
	if !ok {
		return domain.Purchase{}, domain.ErrProductNotFound
	}
	if !product.AvailableAt(now) {
		return domain.Purchase{}, domain.ErrProductUnavailable
	}
	if product.Quantity-s.sold[productID] <= 0 {
		return domain.Purchase{}, domain.ErrOutOfStock
	}
	if player.GameCoins < product.PriceInGameCoins {
		return domain.Purchase{}, domain.ErrInsufficientCoins
	}

	purchase := domain.Purchase{
		ID:               s.id(),
		PlayerID:         playerID,
		ProductID:        productID,
		CampaignID:       product.CampaignID,
		PriceInGameCoins: product.PriceInGameCoins,
		PurchasedAt:      now,
	}
	s.purchases[purchase.ID] = purchase
	s.purchaseIdx[playerProduct{playerID, productID}] = purchase.ID
	s.sold[productID]++

	player.GameCoins -= product.PriceInGameCoins
	return purchase, nil
}

// ApplyAdjustment records an audited manual award and applies it to the
// player's balances in the same critical section.
func (s *Store) ApplyAdjustment(_ context.Context, adj domain.Adjustment) (domain.Adjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[adj.PlayerID]
	if !ok {
		return domain.Adjustment{}, domain.ErrPlayerNotFound
	}
	if _, ok := s.campaigns[adj.CampaignID]; !ok {
		return domain.Adjustment{}, domain.ErrCampaignNotFound
	}
	if player.GameCoins+adj.Points < 0 {
		return domain.Adjustment{}, domain.ErrInsufficientCoins
	}

	adj.ID = s.id()
	s.adjustments[adj.ID] = adj

	player.Score += adj.Points
	player.GameCoins += adj.Points
	player.CampaignScores[adj.CampaignID] += adj.Points
	return adj, nil
}
