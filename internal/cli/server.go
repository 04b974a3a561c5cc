package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gameday-service/internal/app"
	"gameday-service/internal/config"
	"gameday-service/internal/domain"
	"gameday-service/internal/infra/memory"
	pgstore "gameday-service/internal/infra/postgres"
	redisinfra "gameday-service/internal/infra/redis"
	transport "gameday-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gameday server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	defaultTZ := cfg.Game.Timezone
	if defaultTZ == "" {
		defaultTZ = "UTC"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var store app.Store
	var loader memory.QuestionLoader
	seedDemo := false
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()
		store = pgstore.NewStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = pgstore.NewQuestionLoader(pool)
	} else {
		memStore := memory.NewStore()
		store = memStore
		loader = memStore
		seedDemo = true
	}

	questionTTL := config.TTLDuration(cfg.Game.QuestionTTL, 10*time.Minute)
	var questions app.QuestionRepository
	if redisClient != nil {
		questions = redisinfra.NewQuestionCache(redisClient, loader, questionTTL)
	} else {
		questions = memory.NewQuestionCache(loader, questionTTL)
	}

	var scores app.ScoreCache
	if redisClient != nil {
		scores = redisinfra.NewScoreCache(redisClient)
	}

	hub := app.NewScoreboardHub()
	service := app.NewGameService(store, questions, hub, scores, defaultTZ)

	if seedDemo {
		if err := seedDemoData(ctx, service); err != nil {
			return err
		}
	}

	api := transport.NewAPI(service)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	api.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting gameday service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemoData loads a small playable campaign into the in-memory store so
// the service is usable without Postgres.
func seedDemoData(ctx context.Context, service *app.GameService) error {
	now := time.Now().UTC()
	campaign, err := service.CreateCampaign(ctx, domain.Campaign{
		Name:      "Demo Campaign",
		Status:    domain.CampaignInProgress,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, 7),
	})
	if err != nil {
		return err
	}

	player, err := service.CreatePlayer(ctx, "Demo Player", nil)
	if err != nil {
		return err
	}
	if err := service.EnrollPlayer(ctx, campaign.ID, player.ID); err != nil {
		return err
	}

	if _, err := service.CreateQuestion(ctx, domain.Question{
		CampaignID:   campaign.ID,
		Text:         "What is 2 + 2?",
		Choices:      []string{"3", "4", "5"},
		Answer:       1,
		PointsOnTime: 100,
		PointsLate:   50,
	}); err != nil {
		return err
	}

	if _, err := service.CreateProduct(ctx, domain.Product{
		CampaignID:       campaign.ID,
		Name:             "Sticker Pack",
		PriceInGameCoins: 80,
		Quantity:         10,
	}); err != nil {
		return err
	}

	log.Printf("seeded demo campaign %d with player %d", campaign.ID, player.ID)
	return nil
}
