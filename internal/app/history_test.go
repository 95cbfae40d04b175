package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"live-quiz-service/internal/domain"
)

func TestFinishedGamesAccumulateUserStatistics(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultTestSettings())

	play := func(answer bool) (domain.SessionHandle, domain.Participant) {
		game, err := h.svc.StartGameFromQuiz(ctx, "quiz-1", hostID)
		require.NoError(t, err)
		member, err := h.svc.Join(ctx, game.PinCode, "user-ann", "Ann")
		require.NoError(t, err)
		h.clock.Advance(time.Millisecond)
		_, err = h.svc.Join(ctx, game.PinCode, "", "Guest")
		require.NoError(t, err)
		h.startAndOpen(t, game.SessionID)
		if answer {
			h.clock.Advance(time.Second)
			_, err = h.answer(game.SessionID, member.ParticipantID, "b")
			require.NoError(t, err)
		}
		require.NoError(t, h.svc.End(ctx, game.SessionID, hostID, false))
		return game, findParticipant(t, h.session(t, game.SessionID), member.ParticipantID)
	}

	none, err := h.svc.GetUserStatistics(ctx, "user-ann", "quiz-1")
	require.NoError(t, err)
	require.Equal(t, "user-ann", none.UserID)
	require.Zero(t, none.GamesPlayed)

	_, first := play(true)
	h.clock.Advance(time.Minute)
	_, second := play(false)

	stats, err := h.svc.GetUserStatistics(ctx, "user-ann", "quiz-1")
	require.NoError(t, err)
	require.Equal(t, 2, stats.GamesPlayed)
	require.Equal(t, 2, stats.GamesCompleted)
	require.Equal(t, int64(first.Score+second.Score), stats.TotalPoints)
	require.Equal(t, first.Score, stats.HighestScore)
	require.Equal(t, 1, stats.TotalCorrectAnswers)
	require.Equal(t, 1, stats.TotalQuestionsAnswered)
	require.Equal(t, 1, stats.LongestStreak)
	require.NotNil(t, stats.BestRank)
	require.Equal(t, 1, *stats.BestRank)
	require.Equal(t, float64(100), stats.Accuracy)
	require.InDelta(t, float64(first.Score+second.Score)/2, stats.AverageScore, 0.001)
	require.NotNil(t, stats.LastPlayedAt)

	other, err := h.svc.GetUserStatistics(ctx, "user-ann", "quiz-2")
	require.NoError(t, err)
	require.Zero(t, other.GamesPlayed)

	_, err = h.svc.GetUserStatistics(ctx, "", "quiz-1")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCancelledGamesDoNotCountTowardsStatistics(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultTestSettings())
	game, err := h.svc.StartGameFromQuiz(ctx, "quiz-1", hostID)
	require.NoError(t, err)
	_, err = h.svc.Join(ctx, game.PinCode, "user-ann", "Ann")
	require.NoError(t, err)
	h.startAndOpen(t, game.SessionID)
	require.NoError(t, h.svc.Cancel(ctx, game.SessionID, hostID))

	stats, err := h.svc.GetUserStatistics(ctx, "user-ann", "quiz-1")
	require.NoError(t, err)
	require.Zero(t, stats.GamesPlayed)
}

func TestSessionLookupByPin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultTestSettings())
	game, _ := h.create(t, "Ann")

	session, err := h.svc.GetSessionByPin(ctx, game.PinCode)
	require.NoError(t, err)
	require.Equal(t, game.SessionID, session.ID)
	require.Equal(t, domain.StatusWaiting, session.Status)

	// Ended sessions stay visible so a late player learns the game is over.
	require.NoError(t, h.svc.Cancel(ctx, game.SessionID, hostID))
	session, err = h.svc.GetSessionByPin(ctx, game.PinCode)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, session.Status)

	_, err = h.svc.GetSessionByPin(ctx, "424242")
	require.ErrorIs(t, err, domain.ErrInvalidPin)
	_, err = h.svc.GetSessionByPin(ctx, "")
	require.ErrorIs(t, err, domain.ErrInvalidPin)
}

func TestListHostSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultTestSettings())
	older, _ := h.create(t, "Ann")
	require.NoError(t, h.svc.Cancel(ctx, older.SessionID, hostID))
	h.clock.Advance(time.Minute)
	newer, _ := h.create(t, "Ben")

	sessions, err := h.svc.ListHostSessions(ctx, hostID, 0, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, newer.SessionID, sessions[0].ID)
	require.Equal(t, older.SessionID, sessions[1].ID)

	sessions, err = h.svc.ListHostSessions(ctx, hostID, 1, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, older.SessionID, sessions[0].ID)

	sessions, err = h.svc.ListHostSessions(ctx, "host-2", 10, 0)
	require.NoError(t, err)
	require.Empty(t, sessions)
	require.NotNil(t, sessions)

	_, err = h.svc.ListHostSessions(ctx, "", 10, 0)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}
