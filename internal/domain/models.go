package domain

import (
	"encoding/json"
	"time"
)

// SessionStatus is the top-level lifecycle state of a game session.
type SessionStatus string

const (
	StatusWaiting    SessionStatus = "WAITING"
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusPaused     SessionStatus = "PAUSED"
	StatusFinished   SessionStatus = "FINISHED"
	StatusCancelled  SessionStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// Live reports whether the session still owns its join code.
func (s SessionStatus) Live() bool {
	return s == StatusWaiting || s == StatusInProgress || s == StatusPaused
}

// Phase narrows an IN_PROGRESS (or PAUSED) session to the step of the question cycle.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseCountdown Phase = "countdown"
	PhaseQuestion  Phase = "question"
	PhaseReveal    Phase = "reveal"
	PhaseDone      Phase = "done"
)

// GameSession is one live run of a quiz.
type GameSession struct {
	ID             string        `json:"id"`
	QuizID         string        `json:"quizId"`
	HostID         string        `json:"hostId"`
	PinCode        string        `json:"pinCode"`
	Status         SessionStatus `json:"status"`
	Phase          Phase         `json:"phase"`
	Capacity       int           `json:"capacity"`
	AllowAnonymous bool          `json:"allowAnonymous"`
	// QuestionIDs is the question order fixed when the session was created.
	QuestionIDs          []string   `json:"-"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	QuestionStartedAt    *time.Time `json:"questionStartedAt,omitempty"`
	QuestionEndsAt       *time.Time `json:"questionEndsAt,omitempty"`
	// PhaseEndsAt is when the current countdown, question or reveal window runs out.
	PhaseEndsAt    *time.Time `json:"phaseEndsAt,omitempty"`
	TotalQuestions int        `json:"totalQuestions"`

	PlayerCount          int     `json:"playerCount"`
	ActivePlayerCount    int     `json:"activePlayerCount"`
	CompletedPlayerCount int     `json:"completedPlayerCount"`
	AverageScore         float64 `json:"averageScore"`

	// Revision increases with every write to the session row.
	Revision  int64      `json:"revision"`
	PausedAt  *time.Time `json:"pausedAt,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CurrentQuestionID returns the id of the question at the current index, if any.
func (s *GameSession) CurrentQuestionID() (string, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.QuestionIDs) {
		return "", false
	}
	return s.QuestionIDs[s.CurrentQuestionIndex], true
}

// QuestionOpen reports whether answers are currently accepted.
func (s *GameSession) QuestionOpen() bool {
	return s.Status == StatusInProgress && s.Phase == PhaseQuestion
}

// ParticipantStatus tracks one player's membership.
type ParticipantStatus string

const (
	ParticipantJoined    ParticipantStatus = "JOINED"
	ParticipantPlaying   ParticipantStatus = "PLAYING"
	ParticipantLeft      ParticipantStatus = "LEFT"
	ParticipantKicked    ParticipantStatus = "KICKED"
	ParticipantCompleted ParticipantStatus = "COMPLETED"
)

// Participant represents a quiz participant and their accumulated score.
type Participant struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	// UserID is empty for guests.
	UserID         string            `json:"userId,omitempty"`
	Nickname       string            `json:"nickname"`
	GuestToken     string            `json:"-"`
	GuestExpiresAt *time.Time        `json:"-"`
	Status         ParticipantStatus `json:"status"`

	Score             int        `json:"score"`
	CorrectCount      int        `json:"correctCount"`
	IncorrectCount    int        `json:"incorrectCount"`
	SkippedCount      int        `json:"skippedCount"`
	CurrentStreak     int        `json:"currentStreak"`
	BestStreak        int        `json:"bestStreak"`
	TotalResponseMs   int64      `json:"totalResponseMs"`
	AverageResponseMs int64      `json:"averageResponseMs"`
	FinalRank         *int       `json:"finalRank,omitempty"`
	KickReason        string     `json:"kickReason,omitempty"`
	JoinedAt          time.Time  `json:"joinedAt"`
	LeftAt            *time.Time `json:"leftAt,omitempty"`
	LastSeenAt        *time.Time `json:"lastSeenAt,omitempty"`
}

// IsGuest reports whether the participant has no linked account.
func (p *Participant) IsGuest() bool {
	return p.UserID == ""
}

// Counted reports whether the participant still counts towards the session's player count.
func (p *Participant) Counted() bool {
	return p.Status != ParticipantLeft && p.Status != ParticipantKicked
}

// Active reports whether the participant can still answer questions.
func (p *Participant) Active() bool {
	return p.Status == ParticipantJoined || p.Status == ParticipantPlaying
}

// RecordCorrect applies a correct answer to the running aggregates.
func (p *Participant) RecordCorrect(points int, responseMs int64) {
	p.Score += points
	p.CorrectCount++
	p.CurrentStreak++
	if p.CurrentStreak > p.BestStreak {
		p.BestStreak = p.CurrentStreak
	}
	p.addResponseTime(responseMs)
}

// RecordIncorrect applies a wrong answer to the running aggregates.
func (p *Participant) RecordIncorrect(points int, responseMs int64) {
	p.Score += points
	p.IncorrectCount++
	p.CurrentStreak = 0
	p.addResponseTime(responseMs)
}

// RecordPending keeps an answer that waits for manual review; only the total time changes.
func (p *Participant) RecordPending(responseMs int64) {
	p.TotalResponseMs += responseMs
}

// RecordSkip applies a skipped or timed out question. penaltyMs is added to the total time only.
func (p *Participant) RecordSkip(penaltyMs int64) {
	p.SkippedCount++
	p.CurrentStreak = 0
	p.TotalResponseMs += penaltyMs
}

func (p *Participant) addResponseTime(ms int64) {
	p.TotalResponseMs += ms
	answered := int64(p.CorrectCount + p.IncorrectCount)
	if answered <= 0 {
		return
	}
	p.AverageResponseMs = (p.AverageResponseMs*(answered-1) + ms) / answered
}

// Answer is one submission record.
type Answer struct {
	ID                string          `json:"id"`
	SessionID         string          `json:"sessionId"`
	ParticipantID     string          `json:"participantId"`
	QuestionID        string          `json:"questionId"`
	QuestionIndex     int             `json:"questionIndex"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	Correct           bool            `json:"correct"`
	PointsEarned      int             `json:"pointsEarned"`
	ResponseMs        int64           `json:"responseMs"`
	Skipped           bool            `json:"skipped"`
	Timeout           bool            `json:"timeout"`
	NeedsReview       bool            `json:"needsReview"`
	ClientSubmittedAt *time.Time      `json:"clientSubmittedAt,omitempty"`
	ReceivedAt        time.Time       `json:"receivedAt"`
}

// AnswerResult summarizes the outcome of a submission for a single user.
type AnswerResult struct {
	QuestionID  string `json:"questionId"`
	Correct     bool   `json:"correct"`
	Awarded     int    `json:"awarded"`
	TotalScore  int    `json:"totalScore"`
	Streak      int    `json:"streak"`
	ResponseMs  int64  `json:"responseMs"`
	Timeout     bool   `json:"timeout,omitempty"`
	Skipped     bool   `json:"skipped,omitempty"`
	NeedsReview bool   `json:"needsReview,omitempty"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	Rank              int    `json:"rank"`
	ParticipantID     string `json:"participantId"`
	Nickname          string `json:"nickname"`
	Score             int    `json:"score"`
	CorrectCount      int    `json:"correctCount"`
	CurrentStreak     int    `json:"currentStreak"`
	TotalResponseMs   int64  `json:"totalResponseMs"`
	AverageResponseMs int64  `json:"averageResponseMs"`
	Guest             bool   `json:"guest"`
}

// Leaderboard captures the ordered scoreboard for a game session. Revision is the session
// revision the ranking was computed at.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Revision  int64              `json:"revision"`
	Final     bool               `json:"final"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// SessionHandle is returned to the host after creating a session.
type SessionHandle struct {
	SessionID      string `json:"sessionId"`
	PinCode        string `json:"pinCode"`
	TotalQuestions int    `json:"totalQuestions"`
}

// ParticipantHandle is returned to a player after joining.
type ParticipantHandle struct {
	ParticipantID  string     `json:"participantId"`
	SessionID      string     `json:"sessionId"`
	Nickname       string     `json:"nickname"`
	GuestToken     string     `json:"guestToken,omitempty"`
	GuestExpiresAt *time.Time `json:"guestExpiresAt,omitempty"`
	Resumed        bool       `json:"resumed"`
}

// SessionDetails is the session plus its participant list.
type SessionDetails struct {
	Session      GameSession   `json:"session"`
	Participants []Participant `json:"participants"`
}

// QuestionStats aggregates the answers given to one question.
type QuestionStats struct {
	QuestionID        string `json:"questionId"`
	QuestionIndex     int    `json:"questionIndex"`
	Answered          int    `json:"answered"`
	Correct           int    `json:"correct"`
	Skipped           int    `json:"skipped"`
	Timeouts          int    `json:"timeouts"`
	PendingReview     int    `json:"pendingReview"`
	AverageResponseMs int64  `json:"averageResponseMs"`
}

// SessionStats is the per-question breakdown of a session.
type SessionStats struct {
	SessionID    string          `json:"sessionId"`
	AverageScore float64         `json:"averageScore"`
	Questions    []QuestionStats `json:"questions"`
}

// UserQuizStats accumulates an identified user's results across every finished game of one quiz.
type UserQuizStats struct {
	UserID                 string     `json:"userId"`
	QuizID                 string     `json:"quizId"`
	GamesPlayed            int        `json:"gamesPlayed"`
	GamesCompleted         int        `json:"gamesCompleted"`
	TotalPoints            int64      `json:"totalPoints"`
	HighestScore           int        `json:"highestScore"`
	TotalCorrectAnswers    int        `json:"totalCorrectAnswers"`
	TotalQuestionsAnswered int        `json:"totalQuestionsAnswered"`
	TotalTimeSpentMs       int64      `json:"totalTimeSpentMs"`
	BestRank               *int       `json:"bestRank,omitempty"`
	LongestStreak          int        `json:"longestStreak"`
	LastPlayedAt           *time.Time `json:"lastPlayedAt,omitempty"`
	AverageScore           float64    `json:"averageScore"`
	Accuracy               float64    `json:"accuracy"`
}

// GameResult turns one finished participation into a stats increment.
func GameResult(quizID string, p Participant, playedAt time.Time) UserQuizStats {
	stats := UserQuizStats{
		UserID:                 p.UserID,
		QuizID:                 quizID,
		GamesPlayed:            1,
		TotalPoints:            int64(p.Score),
		HighestScore:           p.Score,
		TotalCorrectAnswers:    p.CorrectCount,
		TotalQuestionsAnswered: p.CorrectCount + p.IncorrectCount,
		TotalTimeSpentMs:       p.TotalResponseMs,
		BestRank:               p.FinalRank,
		LongestStreak:          p.BestStreak,
		LastPlayedAt:           &playedAt,
	}
	if p.Status == ParticipantCompleted {
		stats.GamesCompleted = 1
	}
	return stats
}

// Add merges an increment into the running totals.
func (s *UserQuizStats) Add(delta UserQuizStats) {
	s.GamesPlayed += delta.GamesPlayed
	s.GamesCompleted += delta.GamesCompleted
	s.TotalPoints += delta.TotalPoints
	s.TotalCorrectAnswers += delta.TotalCorrectAnswers
	s.TotalQuestionsAnswered += delta.TotalQuestionsAnswered
	s.TotalTimeSpentMs += delta.TotalTimeSpentMs
	if delta.HighestScore > s.HighestScore {
		s.HighestScore = delta.HighestScore
	}
	if delta.LongestStreak > s.LongestStreak {
		s.LongestStreak = delta.LongestStreak
	}
	if delta.BestRank != nil && (s.BestRank == nil || *delta.BestRank < *s.BestRank) {
		rank := *delta.BestRank
		s.BestRank = &rank
	}
	if delta.LastPlayedAt != nil && (s.LastPlayedAt == nil || delta.LastPlayedAt.After(*s.LastPlayedAt)) {
		at := *delta.LastPlayedAt
		s.LastPlayedAt = &at
	}
	s.Summarize()
}

// Summarize fills the derived averages.
func (s *UserQuizStats) Summarize() {
	s.AverageScore, s.Accuracy = 0, 0
	if s.GamesPlayed > 0 {
		s.AverageScore = float64(s.TotalPoints) / float64(s.GamesPlayed)
	}
	if s.TotalQuestionsAnswered > 0 {
		s.Accuracy = float64(s.TotalCorrectAnswers) * 100 / float64(s.TotalQuestionsAnswered)
	}
}
