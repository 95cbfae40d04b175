package app

import (
	"context"
	"log"
	"sort"
	"time"

	"live-quiz-service/internal/domain"
)

// GetLeaderboard returns the current ranking. While a question is open scores move with every
// submission, so the cache is bypassed; otherwise a cached snapshot is used when it was taken at
// the session's current revision.
func (s *GameService) GetLeaderboard(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	if s.leaderboards != nil {
		var session domain.GameSession
		err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			session, err = tx.GetSession(ctx, sessionID, LockNone)
			return err
		})
		if err != nil {
			return domain.Leaderboard{}, err
		}
		if !session.QuestionOpen() {
			lb, ok, err := s.leaderboards.Load(ctx, sessionID)
			if err != nil {
				log.Printf("leaderboard cache read failed for %s: %v", sessionID, err)
			} else if ok && lb.Revision == session.Revision {
				return lb, nil
			}
		}
	}

	var lb domain.Leaderboard
	settled := false
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		session, err := tx.GetSession(ctx, sessionID, LockNone)
		if err != nil {
			return err
		}
		participants, err := tx.ListParticipants(ctx, sessionID)
		if err != nil {
			return err
		}
		lb = buildLeaderboard(&session, participants, s.now())
		settled = !session.QuestionOpen()
		return nil
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	// The cache refuses snapshots older than the one it holds, so a slow refill cannot
	// replace a newer board.
	if s.leaderboards != nil && settled {
		if err := s.leaderboards.Save(ctx, lb); err != nil {
			log.Printf("leaderboard cache write failed for %s: %v", sessionID, err)
		}
	}
	return lb, nil
}

// GetSessionDetails returns the session with its participant list.
func (s *GameService) GetSessionDetails(ctx context.Context, sessionID string) (domain.SessionDetails, error) {
	var details domain.SessionDetails
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		session, err := tx.GetSession(ctx, sessionID, LockNone)
		if err != nil {
			return err
		}
		participants, err := tx.ListParticipants(ctx, sessionID)
		if err != nil {
			return err
		}
		sort.SliceStable(participants, func(i, j int) bool {
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		})
		details = domain.SessionDetails{Session: session, Participants: participants}
		return nil
	})
	return details, err
}

// GetSessionStats breaks the answers of a session down per question played so far.
func (s *GameService) GetSessionStats(ctx context.Context, sessionID string) (domain.SessionStats, error) {
	var stats domain.SessionStats
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		session, err := tx.GetSession(ctx, sessionID, LockNone)
		if err != nil {
			return err
		}
		answers, err := tx.ListAnswers(ctx, sessionID)
		if err != nil {
			return err
		}
		byQuestion := make(map[string][]domain.Answer)
		for _, a := range answers {
			byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], a)
		}
		stats = domain.SessionStats{SessionID: sessionID, AverageScore: session.AverageScore}
		for i, qid := range session.QuestionIDs {
			if i > session.CurrentQuestionIndex {
				break
			}
			stats.Questions = append(stats.Questions, questionStats(qid, i, byQuestion[qid]))
		}
		return nil
	})
	return stats, err
}

// GetSessionByPin returns the most recent session that used the join code.
func (s *GameService) GetSessionByPin(ctx context.Context, pin string) (domain.GameSession, error) {
	if pin == "" {
		return domain.GameSession{}, domain.ErrInvalidPin
	}
	var session domain.GameSession
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		session, err = tx.GetSessionByPin(ctx, pin)
		return err
	})
	return session, err
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListHostSessions pages through the sessions a host created, newest first.
func (s *GameService) ListHostSessions(ctx context.Context, hostID string, limit, offset int) ([]domain.GameSession, error) {
	if hostID == "" {
		return nil, domain.ErrUnauthorized
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	var sessions []domain.GameSession
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		sessions, err = tx.ListSessionsByHost(ctx, hostID, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []domain.GameSession{}
	}
	return sessions, nil
}

// GetUserStatistics returns the user's totals for a quiz. A user who never finished a game of it
// gets zeroed stats.
func (s *GameService) GetUserStatistics(ctx context.Context, userID, quizID string) (domain.UserQuizStats, error) {
	if userID == "" {
		return domain.UserQuizStats{}, domain.ErrUnauthorized
	}
	stats := domain.UserQuizStats{UserID: userID, QuizID: quizID}
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		found, ok, err := tx.GetUserQuizStats(ctx, userID, quizID)
		if err != nil {
			return err
		}
		if ok {
			stats = found
		}
		return nil
	})
	if err != nil {
		return domain.UserQuizStats{}, err
	}
	stats.Summarize()
	return stats, nil
}

// rankParticipants orders counted participants by score desc, total response time asc and join
// time asc. Participants equal on all three keys share a rank; the id only fixes output order.
func rankParticipants(participants []domain.Participant) []domain.LeaderboardEntry {
	ranked := make([]domain.Participant, 0, len(participants))
	for _, p := range participants {
		if p.Counted() {
			ranked = append(ranked, p)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := compareRank(ranked[i], ranked[j]); c != 0 {
			return c < 0
		}
		return ranked[i].ID < ranked[j].ID
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for i, p := range ranked {
		rank := i + 1
		if i > 0 && compareRank(ranked[i-1], p) == 0 {
			rank = entries[i-1].Rank
		}
		entries = append(entries, domain.LeaderboardEntry{
			Rank:              rank,
			ParticipantID:     p.ID,
			Nickname:          p.Nickname,
			Score:             p.Score,
			CorrectCount:      p.CorrectCount,
			CurrentStreak:     p.CurrentStreak,
			TotalResponseMs:   p.TotalResponseMs,
			AverageResponseMs: p.AverageResponseMs,
			Guest:             p.IsGuest(),
		})
	}
	return entries
}

func compareRank(a, b domain.Participant) int {
	switch {
	case a.Score != b.Score:
		if a.Score > b.Score {
			return -1
		}
		return 1
	case a.TotalResponseMs != b.TotalResponseMs:
		if a.TotalResponseMs < b.TotalResponseMs {
			return -1
		}
		return 1
	case !a.JoinedAt.Equal(b.JoinedAt):
		if a.JoinedAt.Before(b.JoinedAt) {
			return -1
		}
		return 1
	}
	return 0
}

func buildLeaderboard(session *domain.GameSession, participants []domain.Participant, now time.Time) domain.Leaderboard {
	return domain.Leaderboard{
		SessionID: session.ID,
		Revision:  session.Revision,
		Final:     session.Status == domain.StatusFinished,
		Entries:   rankParticipants(participants),
		UpdatedAt: now,
	}
}

func questionStats(questionID string, index int, answers []domain.Answer) domain.QuestionStats {
	stats := domain.QuestionStats{QuestionID: questionID, QuestionIndex: index}
	var totalMs int64
	for _, a := range answers {
		switch {
		case a.Timeout:
			stats.Timeouts++
		case a.Skipped:
			stats.Skipped++
		default:
			stats.Answered++
			totalMs += a.ResponseMs
			if a.Correct {
				stats.Correct++
			}
			if a.NeedsReview {
				stats.PendingReview++
			}
		}
	}
	if stats.Answered > 0 {
		stats.AverageResponseMs = totalMs / int64(stats.Answered)
	}
	return stats
}
