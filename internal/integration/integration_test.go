package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/broadcast"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	infraredis "live-quiz-service/internal/infra/redis"
)

const hostID = "host-1"

type stack struct {
	service      *app.GameService
	hub          *broadcast.Hub
	leaderboards *infraredis.LeaderboardCache
}

func TestGameEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	game, err := s.service.StartGameFromQuiz(ctx, "quiz-1", hostID)
	require.NoError(t, err)
	room := s.hub.Subscribe(domain.SessionTopic(game.SessionID))
	defer room.Close()

	ann, err := s.service.Join(ctx, game.PinCode, "", "Ann")
	require.NoError(t, err)
	require.NotEmpty(t, ann.GuestToken)
	ben, err := s.service.Join(ctx, game.PinCode, "u2", "Ben")
	require.NoError(t, err)

	require.NoError(t, s.service.Start(ctx, game.SessionID, hostID))
	waitForPhase(t, s.service, game.SessionID, domain.PhaseQuestion)

	res, err := s.service.SubmitAnswer(ctx, app.Submission{SessionID: game.SessionID, ParticipantID: ann.ParticipantID, Payload: json.RawMessage(`"o2"`)})
	require.NoError(t, err)
	require.True(t, res.Correct)
	require.Positive(t, res.Awarded)

	_, err = s.service.SubmitAnswer(ctx, app.Submission{SessionID: game.SessionID, ParticipantID: ann.ParticipantID, Payload: json.RawMessage(`"o1"`)})
	require.ErrorIs(t, err, domain.ErrAlreadyAnswered)

	res, err = s.service.SubmitAnswer(ctx, app.Submission{SessionID: game.SessionID, ParticipantID: ben.ParticipantID, Payload: json.RawMessage(`"o1"`)})
	require.NoError(t, err)
	require.False(t, res.Correct)

	require.NoError(t, s.service.End(ctx, game.SessionID, hostID, false))

	lb, err := s.service.GetLeaderboard(ctx, game.SessionID)
	require.NoError(t, err)
	require.True(t, lb.Final)
	require.Len(t, lb.Entries, 2)
	require.Equal(t, ann.ParticipantID, lb.Entries[0].ParticipantID)
	require.Equal(t, 1, lb.Entries[0].Rank)
	require.Equal(t, 2, lb.Entries[1].Rank)

	cached, ok, err := s.leaderboards.Load(ctx, game.SessionID)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, cached.Final)
	require.Equal(t, lb.Entries, cached.Entries)

	details, err := s.service.GetSessionDetails(ctx, game.SessionID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinished, details.Session.Status)

	// Events travel through Redis pub/sub before reaching the local hub.
	require.True(t, sawEvent(room, domain.EventGameEnded, 5*time.Second), "game_ended not relayed")

	// A finished game no longer admits players.
	_, err = s.service.Join(ctx, game.PinCode, "", "Cat")
	require.ErrorIs(t, err, domain.ErrPinExpired)

	byPin, err := s.service.GetSessionByPin(ctx, game.PinCode)
	require.NoError(t, err)
	require.Equal(t, game.SessionID, byPin.ID)

	hosted, err := s.service.ListHostSessions(ctx, hostID, 10, 0)
	require.NoError(t, err)
	require.Len(t, hosted, 1)
	require.Equal(t, domain.StatusFinished, hosted[0].Status)

	stats, err := s.service.GetUserStatistics(ctx, "u2", "quiz-1")
	require.NoError(t, err)
	require.Equal(t, 1, stats.GamesPlayed)
	require.Equal(t, 1, stats.GamesCompleted)
	require.Equal(t, 1, stats.TotalQuestionsAnswered)
	require.Zero(t, stats.TotalCorrectAnswers)
	require.NotNil(t, stats.BestRank)
	require.Equal(t, 2, *stats.BestRank)
}

func TestConcurrentCreatesRespectSingleActiveSession(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx, func(settings *app.Settings) {
		settings.SingleActiveSessionPerHost = true
	})

	const attempts = 6
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.StartGameFromQuiz(ctx, "quiz-1", hostID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, domain.ErrHostSessionActive):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)
	require.Equal(t, attempts-1, rejected)
}

func TestConcurrentDuplicateAnswersStoreOneRow(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	game, err := s.service.StartGameFromQuiz(ctx, "quiz-1", hostID)
	require.NoError(t, err)
	ann, err := s.service.Join(ctx, game.PinCode, "", "Ann")
	require.NoError(t, err)
	require.NoError(t, s.service.Start(ctx, game.SessionID, hostID))
	waitForPhase(t, s.service, game.SessionID, domain.PhaseQuestion)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		accepted  int
		duplicate int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.SubmitAnswer(ctx, app.Submission{SessionID: game.SessionID, ParticipantID: ann.ParticipantID, Payload: json.RawMessage(`"o2"`)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrAlreadyAnswered):
				duplicate++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, accepted)
	require.Equal(t, attempts-1, duplicate)

	stats, err := s.service.GetSessionStats(ctx, game.SessionID)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Questions[0].Answered)
}

func newStack(t *testing.T, ctx context.Context, tweaks ...func(*app.Settings)) *stack {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db := postgres.OpenDB(pgURL)
	t.Cleanup(func() { db.Close() })
	runMigrations(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	loader := postgres.NewQuizLoader(pool)
	require.NoError(t, loader.SaveQuiz(ctx, sampleQuiz()))

	redisClient, err := redisClientFromURL(redisURL)
	require.NoError(t, err)
	t.Cleanup(func() { redisClient.Close() })

	hub := broadcast.NewHub(64)
	relayCtx, stopRelay := context.WithCancel(ctx)
	relay := infraredis.NewRelay(redisClient, "", hub)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		_ = relay.Run(relayCtx)
	}()
	t.Cleanup(func() {
		stopRelay()
		<-relayDone
	})
	select {
	case <-relay.Ready():
	case <-time.After(10 * time.Second):
		t.Fatal("relay did not subscribe")
	}

	settings := app.DefaultSettings()
	settings.Countdown = 50 * time.Millisecond
	for _, tweak := range tweaks {
		tweak(&settings)
	}
	timers := app.NewTimerScheduler(10 * time.Second)
	t.Cleanup(timers.Close)

	leaderboards := infraredis.NewLeaderboardCache(redisClient, time.Hour)
	service := app.NewGameService(
		postgres.NewStore(db),
		infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute),
		broadcast.NewBroadcaster(infraredis.NewPubSubTransport(redisClient, "")),
		timers,
		settings,
		app.WithLeaderboardCache(leaderboards),
	)
	return &stack{service: service, hub: hub, leaderboards: leaderboards}
}

func runMigrations(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)
}

func waitForPhase(t *testing.T, service *app.GameService, sessionID string, phase domain.Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		details, err := service.GetSessionDetails(context.Background(), sessionID)
		return err == nil && details.Session.Phase == phase
	}, 5*time.Second, 20*time.Millisecond)
}

func sawEvent(sub *broadcast.Subscription, typ domain.EventType, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case frame, ok := <-sub.C():
			if !ok {
				return false
			}
			var env struct {
				Type domain.EventType `json:"type"`
			}
			if json.Unmarshal(frame, &env) == nil && env.Type == typ {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Type:   domain.QuestionSingleChoice,
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4", Correct: true},
					{ID: "o3", Text: "5"},
				},
				TimeLimit: 30,
			},
			{
				ID:     "q2",
				Type:   domain.QuestionSingleChoice,
				Prompt: "What is 3 + 3?",
				Options: []domain.Option{
					{ID: "o1", Text: "6", Correct: true},
					{ID: "o2", Text: "7"},
				},
				TimeLimit: 30,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
