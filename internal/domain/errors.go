package domain

import "net/http"

// Error is an expected business outcome with a stable code and a caller-facing status.
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

var (
	// ErrSessionNotFound is returned when a game session does not exist.
	ErrSessionNotFound = newError("SESSION_NOT_FOUND", http.StatusNotFound, "game session not found")
	// ErrInvalidPin is returned when no session ever used the join code.
	ErrInvalidPin = newError("INVALID_PIN", http.StatusNotFound, "invalid join code")
	// ErrPinExpired is returned when the join code belongs to a finished or cancelled session.
	ErrPinExpired = newError("PIN_EXPIRED", http.StatusGone, "join code expired")
	// ErrSessionFull is returned when the session reached its capacity.
	ErrSessionFull = newError("SESSION_FULL", http.StatusConflict, "game session is full")
	// ErrNotHost is returned when a host-only action is attempted by someone else.
	ErrNotHost = newError("NOT_HOST", http.StatusForbidden, "only the host can perform this action")
	// ErrAlreadyStarted is returned when the session left the lobby.
	ErrAlreadyStarted = newError("ALREADY_STARTED", http.StatusConflict, "game already started")
	// ErrAlreadyEnded is returned when the session is finished or cancelled.
	ErrAlreadyEnded = newError("ALREADY_ENDED", http.StatusConflict, "game already ended")
	// ErrInvalidState is returned when the operation does not apply to the current status.
	ErrInvalidState = newError("INVALID_STATE", http.StatusConflict, "operation not allowed in current game state")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = newError("PARTICIPANT_NOT_FOUND", http.StatusNotFound, "participant not found in game")
	// ErrAlreadyAnswered is returned for a second submission to the same question.
	ErrAlreadyAnswered = newError("ALREADY_ANSWERED", http.StatusConflict, "question already answered")
	// ErrQuestionTimedOut is returned after the answer window closed. The timeout is still recorded.
	ErrQuestionTimedOut = newError("QUESTION_TIMED_OUT", http.StatusConflict, "answer window elapsed")
	// ErrAnonymousNotAllowed is returned when a guest joins a session that requires an account.
	ErrAnonymousNotAllowed = newError("ANONYMOUS_NOT_ALLOWED", http.StatusForbidden, "anonymous players are not allowed in this game")

	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = newError("QUIZ_NOT_FOUND", http.StatusNotFound, "quiz not found")
	// ErrQuizEmpty indicates the quiz has no questions to play.
	ErrQuizEmpty = newError("QUIZ_EMPTY", http.StatusUnprocessableEntity, "quiz has no questions")
	// ErrQuestionNotOpen indicates a submission for a question that is not the open one.
	ErrQuestionNotOpen = newError("QUESTION_NOT_OPEN", http.StatusConflict, "question is not open")
	// ErrInvalidAnswer indicates the payload does not fit the question type.
	ErrInvalidAnswer = newError("INVALID_ANSWER", http.StatusBadRequest, "answer payload does not match question type")
	// ErrNicknameTaken indicates another active participant uses the nickname.
	ErrNicknameTaken = newError("NICKNAME_TAKEN", http.StatusConflict, "nickname already taken")
	// ErrNoPlayers indicates the host tried to start an empty lobby.
	ErrNoPlayers = newError("NO_PLAYERS", http.StatusConflict, "cannot start a game with no players")
	// ErrGuestTokenExpired indicates the guest token can no longer resume a participant.
	ErrGuestTokenExpired = newError("GUEST_TOKEN_EXPIRED", http.StatusUnauthorized, "guest token expired")
	// ErrParticipantRemoved indicates the participant left or was kicked.
	ErrParticipantRemoved = newError("PARTICIPANT_REMOVED", http.StatusForbidden, "participant is no longer in the game")
	// ErrHostSessionActive indicates the host already runs a live session.
	ErrHostSessionActive = newError("HOST_SESSION_ACTIVE", http.StatusConflict, "host already has an active game")
	// ErrInvalidRequest indicates missing or malformed input.
	ErrInvalidRequest = newError("INVALID_REQUEST", http.StatusBadRequest, "invalid request")
	// ErrUnauthorized indicates the caller could not be identified.
	ErrUnauthorized = newError("UNAUTHORIZED", http.StatusUnauthorized, "authentication required")
)
