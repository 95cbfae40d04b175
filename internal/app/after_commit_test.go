package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

var errWriteFailed = errors.New("update session failed")

// failingStore makes the n-th UpdateSession after arm fail, so the surrounding unit of work
// rolls back.
type failingStore struct {
	app.Store
	countdown atomic.Int64
}

func (s *failingStore) arm(n int64) {
	s.countdown.Store(n)
}

func (s *failingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx app.Tx) error {
		return fn(ctx, &failingTx{Tx: tx, store: s})
	})
}

type failingTx struct {
	app.Tx
	store *failingStore
}

func (t *failingTx) UpdateSession(ctx context.Context, session *domain.GameSession) error {
	if t.store.countdown.Load() > 0 && t.store.countdown.Add(-1) == 0 {
		return errWriteFailed
	}
	return t.Tx.UpdateSession(ctx, session)
}

type recordingCache struct {
	mu    sync.Mutex
	saves []domain.Leaderboard
}

func (c *recordingCache) Save(_ context.Context, lb domain.Leaderboard) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves = append(c.saves, lb)
	return nil
}

func (c *recordingCache) Load(context.Context, string) (domain.Leaderboard, bool, error) {
	return domain.Leaderboard{}, false, nil
}

func (c *recordingCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.saves)
}

// sideEffects captures everything afterCommit may touch.
type sideEffects struct {
	events   int
	saves    int
	revision int64
	delay    time.Duration
	armed    bool
}

func captureSideEffects(h *harness, cache *recordingCache, sessionID string) sideEffects {
	revision, delay, armed := h.timers.pending(sessionID)
	return sideEffects{
		events:   h.events.Total(),
		saves:    cache.count(),
		revision: revision,
		delay:    delay,
		armed:    armed,
	}
}

func TestFailedUnitOfWorkHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{}
	cache := &recordingCache{}
	h := newHarnessWith(t, defaultTestSettings(), func(inner app.Store) app.Store {
		store.Store = inner
		return store
	}, []app.Option{app.WithLeaderboardCache(cache)})
	game, players := h.create(t, "Ann", "Ben")

	t.Run("start", func(t *testing.T) {
		before := captureSideEffects(h, cache, game.SessionID)
		store.arm(1)
		require.ErrorIs(t, h.svc.Start(ctx, game.SessionID, hostID), errWriteFailed)
		require.Equal(t, before, captureSideEffects(h, cache, game.SessionID))
		require.Equal(t, domain.StatusWaiting, h.session(t, game.SessionID).Session.Status)
	})

	h.startAndOpen(t, game.SessionID)
	h.clock.Advance(time.Second)
	_, err := h.answer(game.SessionID, players[0].ParticipantID, "b")
	require.NoError(t, err)

	t.Run("end question", func(t *testing.T) {
		before := captureSideEffects(h, cache, game.SessionID)
		require.True(t, before.armed, "question timer should be armed")
		store.arm(1)
		require.ErrorIs(t, h.svc.EndQuestion(ctx, game.SessionID, hostID), errWriteFailed)
		require.Equal(t, before, captureSideEffects(h, cache, game.SessionID))

		details := h.session(t, game.SessionID)
		require.Equal(t, domain.PhaseQuestion, details.Session.Phase)
		require.Zero(t, findParticipant(t, details, players[1].ParticipantID).SkippedCount)
		stats, err := h.svc.GetSessionStats(ctx, game.SessionID)
		require.NoError(t, err)
		require.Zero(t, stats.Questions[0].Timeouts)
	})

	t.Run("kick", func(t *testing.T) {
		before := captureSideEffects(h, cache, game.SessionID)
		store.arm(1)
		require.ErrorIs(t, h.svc.Kick(ctx, game.SessionID, hostID, players[1].ParticipantID, "spam"), errWriteFailed)
		require.Equal(t, before, captureSideEffects(h, cache, game.SessionID))

		details := h.session(t, game.SessionID)
		require.Equal(t, domain.ParticipantPlaying, findParticipant(t, details, players[1].ParticipantID).Status)
		require.Equal(t, 2, details.Session.ActivePlayerCount)
	})

	// With the store healthy again the same operations go through and publish.
	before := captureSideEffects(h, cache, game.SessionID)
	require.NoError(t, h.svc.EndQuestion(ctx, game.SessionID, hostID))
	require.NoError(t, h.svc.Kick(ctx, game.SessionID, hostID, players[1].ParticipantID, "spam"))
	after := captureSideEffects(h, cache, game.SessionID)
	require.Greater(t, after.events, before.events)
	require.Greater(t, after.saves, before.saves)
	require.Greater(t, after.revision, before.revision)
}
