package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func TestSessionStoreRollsBackFailedUnitOfWork(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(ctx context.Context, tx app.Tx) error {
		if err := tx.CreateSession(ctx, &domain.GameSession{ID: "s1", PinCode: "123456", Status: domain.StatusWaiting}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = store.InTx(ctx, func(ctx context.Context, tx app.Tx) error {
		_, err := tx.GetSession(ctx, "s1", app.LockNone)
		return err
	})
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected rolled back session, got %v", err)
	}
}

func TestSessionStorePinOnlyConflictsWhileLive(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	mustTx(t, store, func(ctx context.Context, tx app.Tx) error {
		return tx.CreateSession(ctx, &domain.GameSession{ID: "s1", PinCode: "111111", Status: domain.StatusWaiting, CreatedAt: created})
	})
	err := store.InTx(ctx, func(ctx context.Context, tx app.Tx) error {
		return tx.CreateSession(ctx, &domain.GameSession{ID: "s2", PinCode: "111111", Status: domain.StatusWaiting})
	})
	if !errors.Is(err, app.ErrPinConflict) {
		t.Fatalf("expected pin conflict, got %v", err)
	}

	mustTx(t, store, func(ctx context.Context, tx app.Tx) error {
		session, err := tx.GetSession(ctx, "s1", app.LockUpdate)
		if err != nil {
			return err
		}
		session.Status = domain.StatusFinished
		return tx.UpdateSession(ctx, &session)
	})
	mustTx(t, store, func(ctx context.Context, tx app.Tx) error {
		return tx.CreateSession(ctx, &domain.GameSession{ID: "s2", PinCode: "111111", Status: domain.StatusWaiting, CreatedAt: created.Add(time.Hour)})
	})
	mustTx(t, store, func(ctx context.Context, tx app.Tx) error {
		session, err := tx.GetSessionByPin(ctx, "111111")
		if err != nil {
			return err
		}
		if session.ID != "s2" {
			t.Fatalf("expected newest session for pin, got %s", session.ID)
		}
		return nil
	})
}

func TestSessionStoreRejectsDuplicateAnswer(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	answer := domain.Answer{ID: "a1", SessionID: "s1", ParticipantID: "p1", QuestionID: "q1"}

	mustTx(t, store, func(ctx context.Context, tx app.Tx) error {
		return tx.InsertAnswer(ctx, &answer)
	})
	err := store.InTx(ctx, func(ctx context.Context, tx app.Tx) error {
		dup := answer
		dup.ID = "a2"
		return tx.InsertAnswer(ctx, &dup)
	})
	if !errors.Is(err, app.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate answer, got %v", err)
	}
	mustTx(t, store, func(ctx context.Context, tx app.Tx) error {
		n, err := tx.CountAnswers(ctx, "s1", "q1")
		if err != nil {
			return err
		}
		if n != 1 {
			t.Fatalf("expected one answer, got %d", n)
		}
		return nil
	})
}

func mustTx(t *testing.T, store *SessionStore, fn func(ctx context.Context, tx app.Tx) error) {
	t.Helper()
	if err := store.InTx(context.Background(), fn); err != nil {
		t.Fatalf("unit of work: %v", err)
	}
}

func TestSessionStoreListsHostSessionsNewestFirst(t *testing.T) {
	store := NewSessionStore()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	mustTx(t, store, func(ctx context.Context, tx app.Tx) error {
		for i, id := range []string{"s1", "s2", "s3"} {
			session := &domain.GameSession{ID: id, HostID: "host-1", PinCode: id, Status: domain.StatusFinished, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
			if err := tx.CreateSession(ctx, session); err != nil {
				return err
			}
		}
		return tx.CreateSession(ctx, &domain.GameSession{ID: "other", HostID: "host-2", PinCode: "999999", Status: domain.StatusWaiting, CreatedAt: base})
	})

	var page []domain.GameSession
	mustTx(t, store, func(ctx context.Context, tx app.Tx) error {
		var err error
		page, err = tx.ListSessionsByHost(ctx, "host-1", 2, 0)
		return err
	})
	if len(page) != 2 || page[0].ID != "s3" || page[1].ID != "s2" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	mustTx(t, store, func(ctx context.Context, tx app.Tx) error {
		var err error
		page, err = tx.ListSessionsByHost(ctx, "host-1", 2, 2)
		return err
	})
	if len(page) != 1 || page[0].ID != "s1" {
		t.Fatalf("unexpected second page: %+v", page)
	}
}

func TestSessionStoreAccumulatesUserQuizStats(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	played := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	first, second := 2, 1

	mustTx(t, store, func(ctx context.Context, tx app.Tx) error {
		return tx.AddUserQuizStats(ctx, domain.UserQuizStats{
			UserID: "u1", QuizID: "quiz-1", GamesPlayed: 1, GamesCompleted: 1,
			TotalPoints: 800, HighestScore: 800, TotalCorrectAnswers: 1, TotalQuestionsAnswered: 2,
			BestRank: &first, LongestStreak: 1, LastPlayedAt: &played,
		})
	})
	boom := errors.New("boom")
	err := store.InTx(ctx, func(ctx context.Context, tx app.Tx) error {
		if err := tx.AddUserQuizStats(ctx, domain.UserQuizStats{UserID: "u1", QuizID: "quiz-1", GamesPlayed: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	later := played.Add(time.Hour)
	mustTx(t, store, func(ctx context.Context, tx app.Tx) error {
		return tx.AddUserQuizStats(ctx, domain.UserQuizStats{
			UserID: "u1", QuizID: "quiz-1", GamesPlayed: 1,
			TotalPoints: 1200, HighestScore: 1200, TotalCorrectAnswers: 2, TotalQuestionsAnswered: 2,
			BestRank: &second, LongestStreak: 2, LastPlayedAt: &later,
		})
	})

	var stats domain.UserQuizStats
	var ok bool
	mustTx(t, store, func(ctx context.Context, tx app.Tx) error {
		var err error
		stats, ok, err = tx.GetUserQuizStats(ctx, "u1", "quiz-1")
		return err
	})
	if !ok {
		t.Fatalf("expected stats for u1")
	}
	if stats.GamesPlayed != 2 || stats.GamesCompleted != 1 || stats.TotalPoints != 2000 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.HighestScore != 1200 || *stats.BestRank != 1 || stats.LongestStreak != 2 || !stats.LastPlayedAt.Equal(later) {
		t.Fatalf("unexpected bests: %+v", stats)
	}
	if stats.AverageScore != 1000 || stats.Accuracy != 75 {
		t.Fatalf("unexpected averages: %+v", stats)
	}
}
