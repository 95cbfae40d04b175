package app

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/grading"
)

const (
	maxPinAttempts   = 10
	defaultTimeLimit = 30 * time.Second
)

// Settings are the game rules applied to new sessions.
type Settings struct {
	DefaultCapacity int
	AllowAnonymous  bool
	Countdown       time.Duration
	RevealWindow    time.Duration
	PauseTimeout    time.Duration
	GuestTokenTTL   time.Duration
	// AnswerGrace absorbs network latency at the end of a question window.
	AnswerGrace                time.Duration
	SingleActiveSessionPerHost bool
	RandomizeQuestions         bool
}

// DefaultSettings returns the rules used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		DefaultCapacity: 200,
		AllowAnonymous:  true,
		Countdown:       3 * time.Second,
		RevealWindow:    8 * time.Second,
		PauseTimeout:    10 * time.Minute,
		GuestTokenTTL:   2 * time.Hour,
		AnswerGrace:     250 * time.Millisecond,
	}
}

// GameService runs live game sessions. Every operation is one transaction; events, timers and
// cache writes are applied only after that transaction commits.
type GameService struct {
	store        Store
	quizzes      QuizRepository
	events       Publisher
	timers       Scheduler
	leaderboards LeaderboardCache
	scorer       grading.Scorer
	settings     Settings

	clock   func() time.Time
	newID   func() string
	newPin  func() string
	shuffle func(ids []string)
}

// Option customizes a GameService.
type Option func(*GameService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *GameService) { s.clock = now }
}

// WithIDGenerator replaces uuid based ids.
func WithIDGenerator(next func() string) Option {
	return func(s *GameService) { s.newID = next }
}

// WithPinGenerator replaces random six digit join codes.
func WithPinGenerator(next func() string) Option {
	return func(s *GameService) { s.newPin = next }
}

// WithLeaderboardCache enables the derived leaderboard cache.
func WithLeaderboardCache(cache LeaderboardCache) Option {
	return func(s *GameService) { s.leaderboards = cache }
}

// WithScorer overrides the points curve.
func WithScorer(scorer grading.Scorer) Option {
	return func(s *GameService) { s.scorer = scorer }
}

func NewGameService(store Store, quizzes QuizRepository, events Publisher, timers Scheduler, settings Settings, opts ...Option) *GameService {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	s := &GameService{
		store:    store,
		quizzes:  quizzes,
		events:   events,
		timers:   timers,
		scorer:   grading.DefaultScorer,
		settings: settings,
		clock:    time.Now,
		newID:    uuid.NewString,
		newPin: func() string {
			return fmt.Sprintf("%06d", rnd.Intn(1000000))
		},
		shuffle: func(ids []string) {
			rnd.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.settings.DefaultCapacity <= 0 {
		s.settings.DefaultCapacity = DefaultSettings().DefaultCapacity
	}
	return s
}

// now is truncated to the precision the stores keep, so timestamps read back compare equal.
func (s *GameService) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// unitOfWork collects the side effects of one transaction.
type unitOfWork struct {
	events      []domain.Event
	arm         *timerArm
	cancelTimer bool
	revision    int64
	leaderboard *domain.Leaderboard
}

type timerArm struct {
	delay time.Duration
	task  func(ctx context.Context)
}

func (u *unitOfWork) emit(ev domain.Event) {
	u.events = append(u.events, ev)
}

func (u *unitOfWork) schedule(session *domain.GameSession, delay time.Duration, task func(ctx context.Context)) {
	if delay < 0 {
		delay = 0
	}
	u.arm = &timerArm{delay: delay, task: task}
	u.cancelTimer = false
	u.revision = session.Revision
}

func (u *unitOfWork) stopTimers(session *domain.GameSession) {
	u.arm = nil
	u.cancelTimer = true
	u.revision = session.Revision
}

// runTx executes fn in a transaction and publishes its side effects after commit.
func (s *GameService) runTx(ctx context.Context, sessionID string, fn func(ctx context.Context, tx Tx, uow *unitOfWork) error) error {
	var uow *unitOfWork
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		uow = &unitOfWork{}
		return fn(ctx, tx, uow)
	})
	if err != nil {
		return err
	}
	s.afterCommit(context.WithoutCancel(ctx), sessionID, uow)
	return nil
}

func (s *GameService) afterCommit(ctx context.Context, sessionID string, uow *unitOfWork) {
	if uow.cancelTimer {
		s.timers.Cancel(sessionID, uow.revision)
	} else if uow.arm != nil {
		s.timers.Schedule(sessionID, uow.revision, uow.arm.delay, uow.arm.task)
	}
	if uow.leaderboard != nil && s.leaderboards != nil {
		if err := s.leaderboards.Save(ctx, *uow.leaderboard); err != nil {
			log.Printf("leaderboard cache write failed for %s: %v", sessionID, err)
		}
	}
	if len(uow.events) > 0 && s.events != nil {
		s.events.Deliver(ctx, uow.events...)
	}
}

// touch stamps a session write.
func (s *GameService) touch(session *domain.GameSession, now time.Time) {
	session.UpdatedAt = now
	session.Revision++
}

func (s *GameService) event(typ domain.EventType, session *domain.GameSession, data any) domain.Event {
	return domain.Event{Type: typ, SessionID: session.ID, Data: data, At: s.now()}
}

func (s *GameService) loadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// currentQuestion resolves the question at the session's index.
func (s *GameService) currentQuestion(ctx context.Context, session *domain.GameSession) (domain.Question, error) {
	qid, ok := session.CurrentQuestionID()
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotOpen
	}
	quiz, err := s.loadQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.Question{}, err
	}
	q, ok := quiz.QuestionByID(qid)
	if !ok {
		return domain.Question{}, fmt.Errorf("question %s missing from quiz %s", qid, session.QuizID)
	}
	if q.TimeLimit <= 0 {
		q.TimeLimit = int(defaultTimeLimit / time.Second)
	}
	return q, nil
}

func questionLimit(q domain.Question) time.Duration {
	if q.TimeLimit <= 0 {
		return defaultTimeLimit
	}
	return time.Duration(q.TimeLimit) * time.Second
}

func requireHost(session *domain.GameSession, requesterID string) error {
	if requesterID == "" || session.HostID != requesterID {
		return domain.ErrNotHost
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
