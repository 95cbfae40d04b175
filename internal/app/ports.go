package app

import (
	"context"
	"errors"
	"time"

	"live-quiz-service/internal/domain"
)

// LockMode selects the row lock taken when reading a record inside a transaction.
type LockMode int

const (
	LockNone LockMode = iota
	// LockShare lets concurrent submissions read the session while blocking transitions.
	LockShare
	// LockUpdate serializes transitions of the same session.
	LockUpdate
)

var (
	// ErrDuplicateAnswer is returned by Tx.InsertAnswer when the (session, participant, question)
	// triple already has a row.
	ErrDuplicateAnswer = errors.New("answer already recorded")
	// ErrPinConflict is returned by Tx.CreateSession when a live session holds the join code.
	ErrPinConflict = errors.New("pin code already in use")
)

// Store runs units of work against the session, participant and answer tables.
type Store interface {
	// InTx runs fn in one transaction. Any error rolls back every write made through tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view handed to a unit of work.
type Tx interface {
	CreateSession(ctx context.Context, session *domain.GameSession) error
	GetSession(ctx context.Context, sessionID string, lock LockMode) (domain.GameSession, error)
	// GetSessionByPin returns the most recent session created with the join code.
	GetSessionByPin(ctx context.Context, pin string) (domain.GameSession, error)
	UpdateSession(ctx context.Context, session *domain.GameSession) error
	// HasLiveSession reports whether the host runs a live session. Implementations serialize
	// concurrent callers for the same host until the transaction ends.
	HasLiveSession(ctx context.Context, hostID string) (bool, error)
	// ListSessionsByHost returns the host's sessions, newest first.
	ListSessionsByHost(ctx context.Context, hostID string, limit, offset int) ([]domain.GameSession, error)

	CreateParticipant(ctx context.Context, participant *domain.Participant) error
	GetParticipant(ctx context.Context, participantID string, lock LockMode) (domain.Participant, error)
	GetParticipantByGuestToken(ctx context.Context, token string) (domain.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	UpdateParticipant(ctx context.Context, participant *domain.Participant) error

	InsertAnswer(ctx context.Context, answer *domain.Answer) error
	GetAnswer(ctx context.Context, sessionID, participantID, questionID string) (domain.Answer, error)
	CountAnswers(ctx context.Context, sessionID, questionID string) (int, error)
	ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error)

	// AddUserQuizStats merges one game's result into the user's totals for the quiz.
	AddUserQuizStats(ctx context.Context, delta domain.UserQuizStats) error
	GetUserQuizStats(ctx context.Context, userID, quizID string) (domain.UserQuizStats, bool, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Publisher delivers committed events. Failures are handled by the publisher and never
// reach the caller.
type Publisher interface {
	Deliver(ctx context.Context, events ...domain.Event)
}

// Scheduler runs one pending task per session. A task scheduled with a lower revision than
// the one already held for the session is ignored.
type Scheduler interface {
	Schedule(sessionID string, revision int64, delay time.Duration, task func(ctx context.Context))
	Cancel(sessionID string, revision int64)
}

// LeaderboardCache is a derived copy of the ranking for fast reads.
type LeaderboardCache interface {
	Save(ctx context.Context, lb domain.Leaderboard) error
	Load(ctx context.Context, sessionID string) (domain.Leaderboard, bool, error)
}
