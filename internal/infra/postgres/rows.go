package postgres

import (
	"time"

	"github.com/uptrace/bun"
	"live-quiz-service/internal/domain"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:game_sessions"`

	ID                   string     `bun:"id,pk"`
	QuizID               string     `bun:"quiz_id,notnull"`
	HostID               string     `bun:"host_id,notnull"`
	PinCode              string     `bun:"pin_code,notnull"`
	Status               string     `bun:"status,notnull"`
	Phase                string     `bun:"phase,notnull"`
	Capacity             int        `bun:"capacity,notnull"`
	AllowAnonymous       bool       `bun:"allow_anonymous,notnull"`
	QuestionIDs          []string   `bun:"question_ids,array"`
	CurrentQuestionIndex int        `bun:"current_question_index,notnull"`
	QuestionStartedAt    *time.Time `bun:"question_started_at"`
	QuestionEndsAt       *time.Time `bun:"question_ends_at"`
	PhaseEndsAt          *time.Time `bun:"phase_ends_at"`
	TotalQuestions       int        `bun:"total_questions,notnull"`
	PlayerCount          int        `bun:"player_count,notnull"`
	ActivePlayerCount    int        `bun:"active_player_count,notnull"`
	CompletedPlayerCount int        `bun:"completed_player_count,notnull"`
	AverageScore         float64    `bun:"average_score,notnull"`
	Revision             int64      `bun:"revision,notnull"`
	PausedAt             *time.Time `bun:"paused_at"`
	StartedAt            *time.Time `bun:"started_at"`
	EndedAt              *time.Time `bun:"ended_at"`
	CreatedAt            time.Time  `bun:"created_at,notnull"`
	UpdatedAt            time.Time  `bun:"updated_at,notnull"`
}

func newSessionRow(s *domain.GameSession) *sessionRow {
	return &sessionRow{
		ID:                   s.ID,
		QuizID:               s.QuizID,
		HostID:               s.HostID,
		PinCode:              s.PinCode,
		Status:               string(s.Status),
		Phase:                string(s.Phase),
		Capacity:             s.Capacity,
		AllowAnonymous:       s.AllowAnonymous,
		QuestionIDs:          s.QuestionIDs,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		QuestionStartedAt:    s.QuestionStartedAt,
		QuestionEndsAt:       s.QuestionEndsAt,
		PhaseEndsAt:          s.PhaseEndsAt,
		TotalQuestions:       s.TotalQuestions,
		PlayerCount:          s.PlayerCount,
		ActivePlayerCount:    s.ActivePlayerCount,
		CompletedPlayerCount: s.CompletedPlayerCount,
		AverageScore:         s.AverageScore,
		Revision:             s.Revision,
		PausedAt:             s.PausedAt,
		StartedAt:            s.StartedAt,
		EndedAt:              s.EndedAt,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func (r *sessionRow) toDomain() domain.GameSession {
	return domain.GameSession{
		ID:                   r.ID,
		QuizID:               r.QuizID,
		HostID:               r.HostID,
		PinCode:              r.PinCode,
		Status:               domain.SessionStatus(r.Status),
		Phase:                domain.Phase(r.Phase),
		Capacity:             r.Capacity,
		AllowAnonymous:       r.AllowAnonymous,
		QuestionIDs:          r.QuestionIDs,
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		QuestionStartedAt:    utcPtr(r.QuestionStartedAt),
		QuestionEndsAt:       utcPtr(r.QuestionEndsAt),
		PhaseEndsAt:          utcPtr(r.PhaseEndsAt),
		TotalQuestions:       r.TotalQuestions,
		PlayerCount:          r.PlayerCount,
		ActivePlayerCount:    r.ActivePlayerCount,
		CompletedPlayerCount: r.CompletedPlayerCount,
		AverageScore:         r.AverageScore,
		Revision:             r.Revision,
		PausedAt:             utcPtr(r.PausedAt),
		StartedAt:            utcPtr(r.StartedAt),
		EndedAt:              utcPtr(r.EndedAt),
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
}

type participantRow struct {
	bun.BaseModel `bun:"table:participants"`

	ID                string     `bun:"id,pk"`
	SessionID         string     `bun:"session_id,notnull"`
	UserID            string     `bun:"user_id,nullzero"`
	Nickname          string     `bun:"nickname,notnull"`
	GuestToken        string     `bun:"guest_token,nullzero"`
	GuestExpiresAt    *time.Time `bun:"guest_expires_at"`
	Status            string     `bun:"status,notnull"`
	Score             int        `bun:"score,notnull"`
	CorrectCount      int        `bun:"correct_count,notnull"`
	IncorrectCount    int        `bun:"incorrect_count,notnull"`
	SkippedCount      int        `bun:"skipped_count,notnull"`
	CurrentStreak     int        `bun:"current_streak,notnull"`
	BestStreak        int        `bun:"best_streak,notnull"`
	TotalResponseMs   int64      `bun:"total_response_ms,notnull"`
	AverageResponseMs int64      `bun:"average_response_ms,notnull"`
	FinalRank         *int       `bun:"final_rank"`
	KickReason        string     `bun:"kick_reason,nullzero"`
	JoinedAt          time.Time  `bun:"joined_at,notnull"`
	LeftAt            *time.Time `bun:"left_at"`
	LastSeenAt        *time.Time `bun:"last_seen_at"`
}

func newParticipantRow(p *domain.Participant) *participantRow {
	return &participantRow{
		ID:                p.ID,
		SessionID:         p.SessionID,
		UserID:            p.UserID,
		Nickname:          p.Nickname,
		GuestToken:        p.GuestToken,
		GuestExpiresAt:    p.GuestExpiresAt,
		Status:            string(p.Status),
		Score:             p.Score,
		CorrectCount:      p.CorrectCount,
		IncorrectCount:    p.IncorrectCount,
		SkippedCount:      p.SkippedCount,
		CurrentStreak:     p.CurrentStreak,
		BestStreak:        p.BestStreak,
		TotalResponseMs:   p.TotalResponseMs,
		AverageResponseMs: p.AverageResponseMs,
		FinalRank:         p.FinalRank,
		KickReason:        p.KickReason,
		JoinedAt:          p.JoinedAt,
		LeftAt:            p.LeftAt,
		LastSeenAt:        p.LastSeenAt,
	}
}

func (r *participantRow) toDomain() domain.Participant {
	return domain.Participant{
		ID:                r.ID,
		SessionID:         r.SessionID,
		UserID:            r.UserID,
		Nickname:          r.Nickname,
		GuestToken:        r.GuestToken,
		GuestExpiresAt:    utcPtr(r.GuestExpiresAt),
		Status:            domain.ParticipantStatus(r.Status),
		Score:             r.Score,
		CorrectCount:      r.CorrectCount,
		IncorrectCount:    r.IncorrectCount,
		SkippedCount:      r.SkippedCount,
		CurrentStreak:     r.CurrentStreak,
		BestStreak:        r.BestStreak,
		TotalResponseMs:   r.TotalResponseMs,
		AverageResponseMs: r.AverageResponseMs,
		FinalRank:         r.FinalRank,
		KickReason:        r.KickReason,
		JoinedAt:          r.JoinedAt.UTC(),
		LeftAt:            utcPtr(r.LeftAt),
		LastSeenAt:        utcPtr(r.LastSeenAt),
	}
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers"`

	ID                string     `bun:"id,pk"`
	SessionID         string     `bun:"session_id,notnull"`
	ParticipantID     string     `bun:"participant_id,notnull"`
	QuestionID        string     `bun:"question_id,notnull"`
	QuestionIndex     int        `bun:"question_index,notnull"`
	Payload           string     `bun:"payload,type:jsonb,nullzero"`
	Correct           bool       `bun:"correct,notnull"`
	PointsEarned      int        `bun:"points_earned,notnull"`
	ResponseMs        int64      `bun:"response_ms,notnull"`
	Skipped           bool       `bun:"skipped,notnull"`
	Timeout           bool       `bun:"timeout,notnull"`
	NeedsReview       bool       `bun:"needs_review,notnull"`
	ClientSubmittedAt *time.Time `bun:"client_submitted_at"`
	ReceivedAt        time.Time  `bun:"received_at,notnull"`
}

func newAnswerRow(a *domain.Answer) *answerRow {
	return &answerRow{
		ID:                a.ID,
		SessionID:         a.SessionID,
		ParticipantID:     a.ParticipantID,
		QuestionID:        a.QuestionID,
		QuestionIndex:     a.QuestionIndex,
		Payload:           string(a.Payload),
		Correct:           a.Correct,
		PointsEarned:      a.PointsEarned,
		ResponseMs:        a.ResponseMs,
		Skipped:           a.Skipped,
		Timeout:           a.Timeout,
		NeedsReview:       a.NeedsReview,
		ClientSubmittedAt: a.ClientSubmittedAt,
		ReceivedAt:        a.ReceivedAt,
	}
}

func (r *answerRow) toDomain() domain.Answer {
	a := domain.Answer{
		ID:                r.ID,
		SessionID:         r.SessionID,
		ParticipantID:     r.ParticipantID,
		QuestionID:        r.QuestionID,
		QuestionIndex:     r.QuestionIndex,
		Correct:           r.Correct,
		PointsEarned:      r.PointsEarned,
		ResponseMs:        r.ResponseMs,
		Skipped:           r.Skipped,
		Timeout:           r.Timeout,
		NeedsReview:       r.NeedsReview,
		ClientSubmittedAt: utcPtr(r.ClientSubmittedAt),
		ReceivedAt:        r.ReceivedAt.UTC(),
	}
	if r.Payload != "" {
		a.Payload = []byte(r.Payload)
	}
	return a
}

type userQuizStatsRow struct {
	bun.BaseModel `bun:"table:user_quiz_stats"`

	UserID                 string     `bun:"user_id,pk"`
	QuizID                 string     `bun:"quiz_id,pk"`
	GamesPlayed            int        `bun:"games_played,notnull"`
	GamesCompleted         int        `bun:"games_completed,notnull"`
	TotalPoints            int64      `bun:"total_points,notnull"`
	HighestScore           int        `bun:"highest_score,notnull"`
	TotalCorrectAnswers    int        `bun:"total_correct_answers,notnull"`
	TotalQuestionsAnswered int        `bun:"total_questions_answered,notnull"`
	TotalTimeSpentMs       int64      `bun:"total_time_spent_ms,notnull"`
	BestRank               *int       `bun:"best_rank"`
	LongestStreak          int        `bun:"longest_streak,notnull"`
	LastPlayedAt           *time.Time `bun:"last_played_at"`
}

func newUserQuizStatsRow(s *domain.UserQuizStats) *userQuizStatsRow {
	return &userQuizStatsRow{
		UserID:                 s.UserID,
		QuizID:                 s.QuizID,
		GamesPlayed:            s.GamesPlayed,
		GamesCompleted:         s.GamesCompleted,
		TotalPoints:            s.TotalPoints,
		HighestScore:           s.HighestScore,
		TotalCorrectAnswers:    s.TotalCorrectAnswers,
		TotalQuestionsAnswered: s.TotalQuestionsAnswered,
		TotalTimeSpentMs:       s.TotalTimeSpentMs,
		BestRank:               s.BestRank,
		LongestStreak:          s.LongestStreak,
		LastPlayedAt:           s.LastPlayedAt,
	}
}

func (r *userQuizStatsRow) toDomain() domain.UserQuizStats {
	s := domain.UserQuizStats{
		UserID:                 r.UserID,
		QuizID:                 r.QuizID,
		GamesPlayed:            r.GamesPlayed,
		GamesCompleted:         r.GamesCompleted,
		TotalPoints:            r.TotalPoints,
		HighestScore:           r.HighestScore,
		TotalCorrectAnswers:    r.TotalCorrectAnswers,
		TotalQuestionsAnswered: r.TotalQuestionsAnswered,
		TotalTimeSpentMs:       r.TotalTimeSpentMs,
		BestRank:               r.BestRank,
		LongestStreak:          r.LongestStreak,
		LastPlayedAt:           utcPtr(r.LastPlayedAt),
	}
	s.Summarize()
	return s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
