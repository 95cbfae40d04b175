package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/broadcast"
	"live-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, hub *broadcast.Hub) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID        string          `json:"questionId"`
	Answer            json.RawMessage `json:"answer"`
	ClientSubmittedAt *time.Time      `json:"clientSubmittedAt"`
}

type skipPayload struct {
	QuestionID string `json:"questionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type snapshotPayload struct {
	ParticipantID string                `json:"participantId,omitempty"`
	Host          bool                  `json:"host"`
	Details       domain.SessionDetails `json:"details"`
}

func encode[T any](typ string, payload T) []byte {
	frame, err := json.Marshal(outboundMessage[T]{Type: typ, Payload: payload})
	if err != nil {
		log.Printf("ws encode %s: %v", typ, err)
		return nil
	}
	return frame
}

func encodeError(err error) []byte {
	_, payload := toErrorPayload(err)
	return encode("error", payload)
}

// ServeWS upgrades a session client. Participants (guest token or bearer) can answer and also
// receive their addressed events; the host only listens.
func (h *WSHandler) ServeWS(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		writeError(c, domain.ErrInvalidRequest)
		return
	}
	ctx := c.Request.Context()
	details, err := h.service.GetSessionDetails(ctx, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	who := callerFrom(c)
	isHost := who.UserID != "" && who.UserID == details.Session.HostID
	var participant domain.Participant
	if who.GuestToken != "" || (who.UserID != "" && !isHost) {
		participant, err = h.service.ResolveParticipant(ctx, sessionID, who.UserID, who.GuestToken)
		if err != nil {
			writeError(c, err)
			return
		}
		if !participant.Counted() {
			writeError(c, domain.ErrParticipantRemoved)
			return
		}
	} else if !isHost {
		writeError(c, domain.ErrUnauthorized)
		return
	}

	topics := []string{domain.SessionTopic(sessionID)}
	if participant.ID != "" {
		topics = append(topics, domain.ParticipantAddress(participant.ID))
	}
	// Subscribe before taking the snapshot so no event falls between the two.
	sub := h.hub.Subscribe(topics...)
	if fresh, err := h.service.GetSessionDetails(ctx, sessionID); err == nil {
		details = fresh
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Close()
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan []byte, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	push := func(frame []byte) bool {
		if frame == nil {
			return true
		}
		select {
		case send <- frame:
			return true
		case <-writerDone:
			return false
		case <-closeSignals:
			return false
		}
	}

	// Only the writer goroutine touches conn for writing.
	go func() {
		defer close(writerDone)
		for frame := range send {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case frame, ok := <-sub.C():
				if !ok {
					return
				}
				if !push(frame) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	push(encode("snapshot", snapshotPayload{ParticipantID: participant.ID, Host: isHost, Details: details}))

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if participant.ID == "" {
			push(encodeError(domain.ErrParticipantNotFound))
			continue
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || len(payload.Answer) == 0 {
				push(encodeError(domain.ErrInvalidAnswer))
				continue
			}
			result, err := h.service.SubmitAnswer(ctx, app.Submission{
				SessionID:         sessionID,
				ParticipantID:     participant.ID,
				QuestionID:        payload.QuestionID,
				Payload:           payload.Answer,
				ClientSubmittedAt: payload.ClientSubmittedAt,
			})
			replyResult(push, result, err)
		case "skip":
			var payload skipPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					push(encodeError(domain.ErrInvalidRequest))
					continue
				}
			}
			result, err := h.service.Skip(ctx, sessionID, participant.ID, payload.QuestionID)
			replyResult(push, result, err)
		default:
			push(encode("error", errorPayload{Code: domain.ErrInvalidRequest.Code, Message: "unsupported message type"}))
		}
	}

	close(closeSignals)
	sub.Close()
	<-updatesDone
	close(send)
	<-writerDone
}

// replyResult sends the answer result. A late answer is still reported as a result, followed by the
// timeout error.
func replyResult(push func([]byte) bool, result domain.AnswerResult, err error) {
	if err == nil || (errors.Is(err, domain.ErrQuestionTimedOut) && result.QuestionID != "") {
		push(encode("answerResult", result))
	}
	if err != nil {
		push(encodeError(err))
	}
}
