package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gameday-service/internal/domain"
)

func seedCampaign(t *testing.T, s *Store) domain.Campaign {
	t.Helper()
	c, err := s.CreateCampaign(context.Background(), domain.Campaign{
		Name:      "Spring Games",
		StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Timezone:  "UTC",
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return c
}

func seedPlayer(t *testing.T, s *Store, name string) domain.Player {
	t.Helper()
	p, err := s.CreatePlayer(context.Background(), domain.Player{Name: name})
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	return p
}

func seedQuestion(t *testing.T, s *Store, campaignID int64) domain.Question {
	t.Helper()
	q, err := s.CreateQuestion(context.Background(), domain.Question{
		CampaignID:   campaignID,
		Text:         "pick one",
		Choices:      []string{"a", "b"},
		Answer:       1,
		PointsOnTime: 100,
		PointsLate:   50,
		ScheduleTime: "08:00",
		DeadlineTime: "18:00",
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	return q
}

func grantCoins(t *testing.T, s *Store, playerID, campaignID int64, points int) {
	t.Helper()
	_, err := s.ApplyAdjustment(context.Background(), domain.Adjustment{
		PlayerID:   playerID,
		CampaignID: campaignID,
		Points:     points,
		Reason:     "test grant",
	})
	if err != nil {
		t.Fatalf("grant coins: %v", err)
	}
}

func TestSubmitAnswerConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	c := seedCampaign(t, s)
	p := seedPlayer(t, s, "Alice")
	q := seedQuestion(t, s, c.ID)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SubmitAnswer(ctx, p.ID, q.ID, c.ID, 1, now)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, dups int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrAlreadyAnswered):
			dups++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || dups != workers-1 {
		t.Fatalf("wins=%d dups=%d, want exactly one winner", wins, dups)
	}

	player, err := s.Player(ctx, p.ID)
	if err != nil {
		t.Fatalf("player: %v", err)
	}
	if player.Score != 100 || player.GameCoins != 100 {
		t.Fatalf("score=%d coins=%d, duplicate submissions must award once", player.Score, player.GameCoins)
	}
}

func TestPurchaseLastUnitRace(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	c := seedCampaign(t, s)
	alice := seedPlayer(t, s, "Alice")
	bob := seedPlayer(t, s, "Bob")
	grantCoins(t, s, alice.ID, c.ID, 100)
	grantCoins(t, s, bob.ID, c.ID, 100)

	product, err := s.CreateProduct(ctx, domain.Product{
		CampaignID:       c.ID,
		Name:             "Trophy",
		PriceInGameCoins: 50,
		Quantity:         1,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	now := time.Now()
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, id := range []int64{alice.ID, bob.ID} {
		wg.Add(1)
		go func(playerID int64) {
			defer wg.Done()
			_, err := s.PurchaseProduct(ctx, playerID, product.ID, c.ID, now)
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	var wins, outOfStock int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrOutOfStock):
			outOfStock++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || outOfStock != 1 {
		t.Fatalf("wins=%d outOfStock=%d, want exactly one buyer of the last unit", wins, outOfStock)
	}
}

func TestPurchasePreconditionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	c := seedCampaign(t, s)
	alice := seedPlayer(t, s, "Alice")
	grantCoins(t, s, alice.ID, c.ID, 100)

	product, err := s.CreateProduct(ctx, domain.Product{
		CampaignID:       c.ID,
		Name:             "Trophy",
		PriceInGameCoins: 50,
		Quantity:         1,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	now := time.Now()
	if _, err := s.PurchaseProduct(ctx, alice.ID, product.ID, c.ID, now); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// The duplicate check settles before stock: a retry by the same buyer
	// reports the duplicate even though the product is now sold out.
	if _, err := s.PurchaseProduct(ctx, alice.ID, product.ID, c.ID, now); !errors.Is(err, domain.ErrAlreadyPurchased) {
		t.Fatalf("err = %v, want ErrAlreadyPurchased", err)
	}

	bob := seedPlayer(t, s, "Bob")
	grantCoins(t, s, bob.ID, c.ID, 100)
	if _, err := s.PurchaseProduct(ctx, bob.ID, product.ID, c.ID, now); !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("err = %v, want ErrOutOfStock", err)
	}

	// Unknown player settles before unknown product.
	if _, err := s.PurchaseProduct(ctx, 9999, 8888, c.ID, now); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("err = %v, want ErrPlayerNotFound", err)
	}
}

func TestSubmitAnswerPreconditionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	c := seedCampaign(t, s)
	q := seedQuestion(t, s, c.ID)
	now := time.Now()

	// Unknown question settles before unknown player.
	if _, err := s.SubmitAnswer(ctx, 9999, 8888, c.ID, 0, now); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("err = %v, want ErrQuestionNotFound", err)
	}
	// Known question, unknown player.
	if _, err := s.SubmitAnswer(ctx, 9999, q.ID, c.ID, 0, now); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("err = %v, want ErrPlayerNotFound", err)
	}
}

func TestCreateQuestionAssignsDayIndexes(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	c := seedCampaign(t, s)

	for want := 0; want < 3; want++ {
		q := seedQuestion(t, s, c.ID)
		if q.DayIndex != want {
			t.Fatalf("day index = %d, want %d", q.DayIndex, want)
		}
	}

	// Specials sit outside the day schedule and do not consume an index.
	startAt := time.Now()
	if _, err := s.CreateQuestion(ctx, domain.Question{
		CampaignID:     c.ID,
		Choices:        []string{"a", "b"},
		IsSpecial:      true,
		SpecialStartAt: &startAt,
	}); err != nil {
		t.Fatalf("create special: %v", err)
	}
	q := seedQuestion(t, s, c.ID)
	if q.DayIndex != 3 {
		t.Fatalf("day index = %d, want 3", q.DayIndex)
	}

	// Questions in another campaign start at day 0 again.
	other := seedCampaign(t, s)
	q = seedQuestion(t, s, other.ID)
	if q.DayIndex != 0 {
		t.Fatalf("day index = %d, want 0 in a fresh campaign", q.DayIndex)
	}
}

func TestDeletePlayerCascades(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	c := seedCampaign(t, s)
	alice := seedPlayer(t, s, "Alice")
	q := seedQuestion(t, s, c.ID)
	if err := s.EnrollPlayer(ctx, c.ID, alice.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	if _, err := s.SubmitAnswer(ctx, alice.ID, q.ID, c.ID, 1, now); err != nil {
		t.Fatalf("submit: %v", err)
	}

	product, err := s.CreateProduct(ctx, domain.Product{
		CampaignID:       c.ID,
		Name:             "Trophy",
		PriceInGameCoins: 50,
		Quantity:         1,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.PurchaseProduct(ctx, alice.ID, product.ID, c.ID, now); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if err := s.DeletePlayer(ctx, alice.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Player(ctx, alice.ID); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("err = %v, want ErrPlayerNotFound", err)
	}
	if err := s.DeletePlayer(ctx, alice.ID); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("second delete: err = %v, want ErrPlayerNotFound", err)
	}

	players, err := s.CampaignPlayers(ctx, c.ID)
	if err != nil {
		t.Fatalf("campaign players: %v", err)
	}
	if len(players) != 0 {
		t.Fatalf("enrollment survived deletion: %+v", players)
	}

	// The purchased unit goes back on the shelf.
	bob := seedPlayer(t, s, "Bob")
	grantCoins(t, s, bob.ID, c.ID, 100)
	if _, err := s.PurchaseProduct(ctx, bob.ID, product.ID, c.ID, now); err != nil {
		t.Fatalf("freed unit should be purchasable: %v", err)
	}
}

func TestPlayerCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	c := seedCampaign(t, s)
	alice := seedPlayer(t, s, "Alice")
	grantCoins(t, s, alice.ID, c.ID, 100)

	got, err := s.Player(ctx, alice.ID)
	if err != nil {
		t.Fatalf("player: %v", err)
	}
	got.CampaignScores[c.ID] = 9999

	again, _ := s.Player(ctx, alice.ID)
	if again.CampaignScores[c.ID] != 100 {
		t.Fatalf("mutating a returned player leaked into the store: %+v", again)
	}
}

func TestDayIndexNotReusedAfterDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	c := seedCampaign(t, s)
	seedQuestion(t, s, c.ID)
	q1 := seedQuestion(t, s, c.ID)

	if err := s.DeleteQuestion(ctx, q1.ID); err != nil {
		t.Fatalf("delete question: %v", err)
	}

	q2 := seedQuestion(t, s, c.ID)
	if q2.DayIndex != 2 {
		t.Fatalf("day index = %d, want 2: a deleted question's day stays retired", q2.DayIndex)
	}
}

func TestDeleteQuestionCascadesAnswers(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore()
	c := seedCampaign(t, s)
	q := seedQuestion(t, s, c.ID)
	alice := seedPlayer(t, s, "Alice")

	if _, err := s.SubmitAnswer(ctx, alice.ID, q.ID, c.ID, 1, now); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := s.DeleteQuestion(ctx, q.ID); err != nil {
		t.Fatalf("delete question: %v", err)
	}
	if err := s.DeleteQuestion(ctx, q.ID); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("second delete: err = %v, want ErrQuestionNotFound", err)
	}

	answers, err := s.PlayerAnswers(ctx, alice.ID, c.ID)
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(answers) != 0 {
		t.Fatalf("answers survived question deletion: %+v", answers)
	}

	// Earned points and coins are not clawed back.
	player, _ := s.Player(ctx, alice.ID)
	if player.Score != 100 || player.GameCoins != 100 {
		t.Fatalf("balances changed on question deletion: %+v", player)
	}
}

func TestPurchaseOutsideAvailabilityWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore()
	c := seedCampaign(t, s)
	alice := seedPlayer(t, s, "Alice")
	grantCoins(t, s, alice.ID, c.ID, 500)

	opens := now.Add(time.Hour)
	closes := now.Add(2 * time.Hour)
	product, err := s.CreateProduct(ctx, domain.Product{
		CampaignID:       c.ID,
		Name:             "Limited Drop",
		PriceInGameCoins: 50,
		Quantity:         5,
		AvailableFrom:    &opens,
		AvailableUntil:   &closes,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	if _, err := s.PurchaseProduct(ctx, alice.ID, product.ID, c.ID, now); !errors.Is(err, domain.ErrProductUnavailable) {
		t.Fatalf("before window: err = %v, want ErrProductUnavailable", err)
	}
	if _, err := s.PurchaseProduct(ctx, alice.ID, product.ID, c.ID, closes.Add(time.Minute)); !errors.Is(err, domain.ErrProductUnavailable) {
		t.Fatalf("after window: err = %v, want ErrProductUnavailable", err)
	}

	player, _ := s.Player(ctx, alice.ID)
	if player.GameCoins != 500 {
		t.Fatalf("rejected purchase touched coins: %d", player.GameCoins)
	}

	if _, err := s.PurchaseProduct(ctx, alice.ID, product.ID, c.ID, opens.Add(time.Minute)); err != nil {
		t.Fatalf("within window: %v", err)
	}
}

func TestPlayerCampaigns(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	first := seedCampaign(t, s)
	second := seedCampaign(t, s)
	alice := seedPlayer(t, s, "Alice")

	if err := s.EnrollPlayer(ctx, first.ID, alice.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if err := s.EnrollPlayer(ctx, second.ID, alice.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	ids, err := s.PlayerCampaigns(ctx, alice.ID)
	if err != nil {
		t.Fatalf("player campaigns: %v", err)
	}
	if len(ids) != 2 || ids[0] != first.ID || ids[1] != second.ID {
		t.Fatalf("ids = %v, want [%d %d]", ids, first.ID, second.ID)
	}

	if _, err := s.PlayerCampaigns(ctx, 9999); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("err = %v, want ErrPlayerNotFound", err)
	}
}

func TestDeleteCampaignCascades(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore()
	c := seedCampaign(t, s)
	q := seedQuestion(t, s, c.ID)
	alice := seedPlayer(t, s, "Alice")
	if err := s.EnrollPlayer(ctx, c.ID, alice.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if _, err := s.SubmitAnswer(ctx, alice.ID, q.ID, c.ID, 1, now); err != nil {
		t.Fatalf("submit: %v", err)
	}
	product, err := s.CreateProduct(ctx, domain.Product{
		CampaignID:       c.ID,
		Name:             "Trophy",
		PriceInGameCoins: 50,
		Quantity:         1,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.PurchaseProduct(ctx, alice.ID, product.ID, c.ID, now); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if err := s.DeleteCampaign(ctx, c.ID); err != nil {
		t.Fatalf("delete campaign: %v", err)
	}
	if _, err := s.Campaign(ctx, c.ID); !errors.Is(err, domain.ErrCampaignNotFound) {
		t.Fatalf("err = %v, want ErrCampaignNotFound", err)
	}
	if questions, _ := s.CampaignQuestions(ctx, c.ID); len(questions) != 0 {
		t.Fatalf("questions survived: %+v", questions)
	}
	if products, _ := s.Products(ctx, c.ID); len(products) != 0 {
		t.Fatalf("products survived: %+v", products)
	}
	if purchases, _ := s.PlayerPurchases(ctx, alice.ID); len(purchases) != 0 {
		t.Fatalf("purchases survived: %+v", purchases)
	}

	// The player and their lifetime balances stay.
	player, err := s.Player(ctx, alice.ID)
	if err != nil {
		t.Fatalf("player: %v", err)
	}
	if player.Score != 100 {
		t.Fatalf("lifetime score clawed back: %+v", player)
	}
}

func TestDeleteTeamLeavesPlayersTeamless(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	team, err := s.CreateTeam(ctx, domain.Team{Name: "Red"})
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	alice, err := s.CreatePlayer(ctx, domain.Player{Name: "Alice", TeamID: &team.ID})
	if err != nil {
		t.Fatalf("create player: %v", err)
	}

	if err := s.DeleteTeam(ctx, team.ID); err != nil {
		t.Fatalf("delete team: %v", err)
	}

	player, _ := s.Player(ctx, alice.ID)
	if player.TeamID != nil {
		t.Fatalf("player kept a deleted team: %+v", player)
	}

	missing := team.ID + 100
	if _, err := s.UpdatePlayer(ctx, alice.ID, "Alice", &missing); !errors.Is(err, domain.ErrTeamNotFound) {
		t.Fatalf("err = %v, want ErrTeamNotFound", err)
	}
}
