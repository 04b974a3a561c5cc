package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gameday-service/internal/app"
	"gameday-service/internal/domain"
	pgstore "gameday-service/internal/infra/postgres"
	pgmigrations "gameday-service/internal/infra/postgres/migrations"
	infraredis "gameday-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestGameFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, ctx, pgURL)
	defer db.Close()
	store := pgstore.NewStore(db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	loader := pgstore.NewQuestionLoader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	questions := infraredis.NewQuestionCache(redisClient, loader, 5*time.Minute)
	scores := infraredis.NewScoreCache(redisClient)

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	service := app.NewGameServiceWithClock(store, questions, app.NewScoreboardHub(), scores, "UTC",
		func() time.Time { return now })

	campaign, err := service.CreateCampaign(ctx, domain.Campaign{
		Name:      "Spring Games",
		Status:    domain.CampaignInProgress,
		StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}

	alice, err := service.CreatePlayer(ctx, "Alice", nil)
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	bob, err := service.CreatePlayer(ctx, "Bob", nil)
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	for _, playerID := range []int64{alice.ID, bob.ID} {
		if err := service.EnrollPlayer(ctx, campaign.ID, playerID); err != nil {
			t.Fatalf("enroll %d: %v", playerID, err)
		}
	}

	question, err := service.CreateQuestion(ctx, domain.Question{
		CampaignID:   campaign.ID,
		Text:         "What is 2 + 2?",
		Choices:      []string{"3", "4", "5"},
		Answer:       1,
		PointsOnTime: 100,
		PointsLate:   50,
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}

	visible, err := service.GetVisibleQuestions(ctx, alice.ID, campaign.ID)
	if err != nil {
		t.Fatalf("visible: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != question.ID {
		t.Fatalf("expected the day-0 question visible, got %+v", visible)
	}

	answer, err := service.SubmitAnswer(ctx, alice.ID, question.ID, campaign.ID, 1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !answer.IsCorrect || !answer.IsOnTime || answer.PointsEarned != 100 {
		t.Fatalf("unexpected answer: %+v", answer)
	}

	// The unique index holds across connections: a retry reports the
	// duplicate and never double-awards.
	if _, err := service.SubmitAnswer(ctx, alice.ID, question.ID, campaign.ID, 0); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("err = %v, want ErrAlreadyAnswered", err)
	}

	if _, err := service.SubmitAnswer(ctx, bob.ID, question.ID, campaign.ID, 0); err != nil {
		t.Fatalf("bob submit: %v", err)
	}

	player, err := service.Player(ctx, alice.ID)
	if err != nil {
		t.Fatalf("player: %v", err)
	}
	if player.Score != 100 || player.GameCoins != 100 || player.CampaignScores[campaign.ID] != 100 {
		t.Fatalf("balances not credited: %+v", player)
	}

	product, err := service.CreateProduct(ctx, domain.Product{
		CampaignID:       campaign.ID,
		Name:             "Mug",
		PriceInGameCoins: 80,
		Quantity:         1,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	purchase, err := service.PurchaseProduct(ctx, alice.ID, product.ID, campaign.ID)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if purchase.PriceInGameCoins != 80 {
		t.Fatalf("captured price = %d, want 80", purchase.PriceInGameCoins)
	}
	if _, err := service.PurchaseProduct(ctx, alice.ID, product.ID, campaign.ID); !errors.Is(err, domain.ErrAlreadyPurchased) {
		t.Fatalf("err = %v, want ErrAlreadyPurchased", err)
	}
	// Bob answered wrong on time (300 coins) but the shelf is empty.
	if _, err := service.PurchaseProduct(ctx, bob.ID, product.ID, campaign.ID); !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("err = %v, want ErrOutOfStock", err)
	}

	player, _ = service.Player(ctx, alice.ID)
	if player.GameCoins != 20 || player.Score != 100 {
		t.Fatalf("coins=%d score=%d after purchase, want 20/100", player.GameCoins, player.Score)
	}

	sb, err := service.Scoreboard(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("scoreboard: %v", err)
	}
	// Bob's wrong-but-on-time 300 beats Alice's correct 100.
	if len(sb.Entries) != 2 || sb.Entries[0].PlayerID != bob.ID || sb.Entries[0].Score != 300 {
		t.Fatalf("unexpected scoreboard: %+v", sb.Entries)
	}

	// The redis ranking mirror was fed by the submits.
	top, err := scores.TopN(ctx, campaign.ID, 10)
	if err != nil {
		t.Fatalf("top n: %v", err)
	}
	if len(top) != 2 || top[0] != bob.ID {
		t.Fatalf("unexpected redis ranking: %v", top)
	}

	// Cascade delete through FK constraints.
	if err := service.DeletePlayer(ctx, bob.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	sb, err = service.Scoreboard(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("scoreboard: %v", err)
	}
	if len(sb.Entries) != 1 || sb.Entries[0].PlayerID != alice.ID {
		t.Fatalf("deleted player still ranked: %+v", sb.Entries)
	}
	top, err = scores.TopN(ctx, campaign.ID, 10)
	if err != nil {
		t.Fatalf("top n: %v", err)
	}
	if len(top) != 1 || top[0] != alice.ID {
		t.Fatalf("deleted player still in redis ranking: %v", top)
	}
}

func openBun(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "gameday", "POSTGRES_PASSWORD": "gamedaypass", "POSTGRES_DB": "gamedaydb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://gameday:gamedaypass@%s:%s/gamedaydb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
