package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

const hostID = "host-1"

type harness struct {
	svc    *app.GameService
	store  *memory.SessionStore
	timers *manualScheduler
	events *recordingPublisher
	clock  *fakeClock
}

func newHarness(t *testing.T, settings app.Settings, quizzes ...domain.Quiz) *harness {
	t.Helper()
	return newHarnessWith(t, settings, nil, nil, quizzes...)
}

// newHarnessWith lets a test wrap the session store and pass extra service options.
func newHarnessWith(t *testing.T, settings app.Settings, wrap func(app.Store) app.Store, opts []app.Option, quizzes ...domain.Quiz) *harness {
	t.Helper()
	if len(quizzes) == 0 {
		quizzes = []domain.Quiz{threeQuestionQuiz()}
	}
	h := &harness{
		store:  memory.NewSessionStore(),
		timers: newManualScheduler(),
		events: &recordingPublisher{},
		clock:  &fakeClock{now: time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)},
	}
	var store app.Store = h.store
	if wrap != nil {
		store = wrap(store)
	}
	var seq, pins atomic.Int64
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(quizzes...), time.Minute)
	opts = append([]app.Option{
		app.WithClock(h.clock.Now),
		app.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
		app.WithPinGenerator(func() string { return fmt.Sprintf("%06d", pins.Add(1)) }),
	}, opts...)
	h.svc = app.NewGameService(store, quizRepo, h.events, h.timers, settings, opts...)
	return h
}

func defaultTestSettings() app.Settings {
	s := app.DefaultSettings()
	s.Countdown = 3 * time.Second
	s.RevealWindow = 5 * time.Second
	s.AnswerGrace = 250 * time.Millisecond
	return s
}

// create makes a session and joins one guest per nickname, advancing the clock a millisecond
// between joins so join order is deterministic.
func (h *harness) create(t *testing.T, nicknames ...string) (domain.SessionHandle, []domain.ParticipantHandle) {
	t.Helper()
	ctx := context.Background()
	handle, err := h.svc.StartGameFromQuiz(ctx, "quiz-1", hostID)
	require.NoError(t, err)
	players := make([]domain.ParticipantHandle, 0, len(nicknames))
	for _, name := range nicknames {
		p, err := h.svc.Join(ctx, handle.PinCode, "", name)
		require.NoError(t, err)
		players = append(players, p)
		h.clock.Advance(time.Millisecond)
	}
	return handle, players
}

// startAndOpen starts the game and fires the countdown so the first question is open.
func (h *harness) startAndOpen(t *testing.T, sessionID string) {
	t.Helper()
	require.NoError(t, h.svc.Start(context.Background(), sessionID, hostID))
	h.clock.Advance(3 * time.Second)
	require.True(t, h.timers.Fire(sessionID), "countdown timer should be armed")
}

func (h *harness) session(t *testing.T, sessionID string) domain.SessionDetails {
	t.Helper()
	details, err := h.svc.GetSessionDetails(context.Background(), sessionID)
	require.NoError(t, err)
	return details
}

func (h *harness) answer(sessionID, participantID, optionID string) (domain.AnswerResult, error) {
	return h.svc.SubmitAnswer(context.Background(), app.Submission{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Payload:       json.RawMessage(fmt.Sprintf("%q", optionID)),
	})
}

func threeQuestionQuiz() domain.Quiz {
	quiz := domain.Quiz{ID: "quiz-1", Title: "Capitals"}
	for i := 1; i <= 3; i++ {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:     fmt.Sprintf("q%d", i),
			Type:   domain.QuestionSingleChoice,
			Prompt: fmt.Sprintf("Question %d", i),
			Options: []domain.Option{
				{ID: "a", Text: "Wrong"},
				{ID: "b", Text: "Right", Correct: true},
			},
			TimeLimit: 10,
		})
	}
	return quiz
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// manualScheduler keeps armed tasks until a test fires them.
type manualScheduler struct {
	mu    sync.Mutex
	tasks map[string]scheduledTask
}

type scheduledTask struct {
	revision int64
	delay    time.Duration
	task     func(ctx context.Context)
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{tasks: make(map[string]scheduledTask)}
}

func (m *manualScheduler) Schedule(sessionID string, revision int64, delay time.Duration, task func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.tasks[sessionID]; ok && current.revision > revision {
		return
	}
	m.tasks[sessionID] = scheduledTask{revision: revision, delay: delay, task: task}
}

func (m *manualScheduler) Cancel(sessionID string, revision int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.tasks[sessionID]; ok && current.revision <= revision {
		delete(m.tasks, sessionID)
	}
}

// Take removes the armed task without running it.
func (m *manualScheduler) Take(sessionID string) (func(ctx context.Context), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.tasks[sessionID]
	delete(m.tasks, sessionID)
	return entry.task, ok
}

// Fire runs the armed task the way the real scheduler would: outside any transaction.
func (m *manualScheduler) Fire(sessionID string) bool {
	task, ok := m.Take(sessionID)
	if !ok {
		return false
	}
	task(context.Background())
	return true
}

func (m *manualScheduler) Delay(sessionID string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.tasks[sessionID]
	return entry.delay, ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Deliver(_ context.Context, events ...domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) Count(typ domain.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) Last(typ domain.EventType) (domain.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == typ {
			return p.events[i], true
		}
	}
	return domain.Event{}, false
}

func (m *manualScheduler) pending(sessionID string) (int64, time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.tasks[sessionID]
	return entry.revision, entry.delay, ok
}

func (p *recordingPublisher) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
