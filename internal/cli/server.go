package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/broadcast"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	redisinfra "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
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
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	identities, err := identityProvider(cfg)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	var store app.Store = memory.NewSessionStore()
	var loader redisinfra.QuizLoader
	if cfg.Postgres.URL != "" {
		db := postgres.OpenDB(cfg.Postgres.URL)
		defer db.Close()
		store = postgres.NewStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		pgLoader := postgres.NewQuizLoader(pool)
		if err := seedQuizzes(ctx, pgLoader); err != nil {
			return err
		}
		loader = pgLoader
	} else {
		log.Printf("postgres not configured, sessions are kept in memory")
		loader = memory.NewStaticQuizLoader(sampleQuizzes()...)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, config.TTLDuration(cfg.Redis.TTL, quizTTL))
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	hub := broadcast.NewHub(64)
	var events broadcast.Transport = hub
	var relay *redisinfra.Relay
	if redisClient != nil && cfg.Redis.Broadcast {
		events = redisinfra.NewPubSubTransport(redisClient, cfg.Redis.ChannelPrefix)
		relay = redisinfra.NewRelay(redisClient, cfg.Redis.ChannelPrefix, hub)
	}

	opts := []app.Option{app.WithScorer(cfg.Game.Scorer())}
	if redisClient != nil {
		lbTTL := config.TTLDuration(cfg.Game.LeaderboardCacheTTL, time.Hour)
		opts = append(opts, app.WithLeaderboardCache(redisinfra.NewLeaderboardCache(redisClient, lbTTL)))
	}

	timers := app.NewTimerScheduler(30 * time.Second)
	defer timers.Close()
	service := app.NewGameService(store, quizRepo, broadcast.NewBroadcaster(events), timers, cfg.Game.Settings(), opts...)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, hub, identities),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	g.Go(func() error {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// seedQuizzes stores the bundled sample quizzes unless a quiz with the same id already exists.
func seedQuizzes(ctx context.Context, loader *postgres.QuizLoader) error {
	for _, quiz := range sampleQuizzes() {
		_, err := loader.LoadQuiz(ctx, quiz.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrQuizNotFound) {
			return err
		}
		if err := loader.SaveQuiz(ctx, quiz); err != nil {
			return err
		}
		log.Printf("seeded quiz %s", quiz.ID)
	}
	return nil
}
