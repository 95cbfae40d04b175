package domain

import "time"

// EventType names a broadcast event.
type EventType string

const (
	EventGameCreated        EventType = "game_created"
	EventParticipantJoined  EventType = "participant_joined"
	EventParticipantLeft    EventType = "participant_left"
	EventParticipantKicked  EventType = "participant_kicked"
	EventKicked             EventType = "kicked"
	EventGameStarting       EventType = "game_starting"
	EventQuestionStarted    EventType = "question_started"
	EventAnswerCount        EventType = "answer_count"
	EventQuestionEnded      EventType = "question_ended"
	EventLeaderboardUpdated EventType = "leaderboard_updated"
	EventGamePaused         EventType = "game_paused"
	EventGameResumed        EventType = "game_resumed"
	EventGameEnded          EventType = "game_ended"
	EventGameCancelled      EventType = "game_cancelled"
)

// Event is a state change notification. An empty ParticipantID targets the session room;
// otherwise the event is addressed to that participant only.
type Event struct {
	Type          EventType `json:"type"`
	SessionID     string    `json:"sessionId"`
	ParticipantID string    `json:"-"`
	Data          any       `json:"data,omitempty"`
	At            time.Time `json:"at"`
}

// SessionTopic is the room topic every client of a session listens to.
func SessionTopic(sessionID string) string {
	return "session:" + sessionID
}

// ParticipantAddress is the private channel of one participant.
func ParticipantAddress(participantID string) string {
	return "participant:" + participantID
}
