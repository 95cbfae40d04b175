package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/broadcast"
	"live-quiz-service/internal/domain"
)

// NewRouter wires the REST API and the websocket endpoint.
func NewRouter(service *app.GameService, hub *broadcast.Hub, identities IdentityResolver) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	h := &gameHandlers{service: service}
	ws := NewWSHandler(service, hub)

	r.Use(identify(identities))
	r.GET("/ws", ws.ServeWS)

	games := r.Group("/api/games")
	games.POST("", h.create)
	games.POST("/join", h.join)
	games.POST("/resume", h.resume)
	games.GET("/mine", h.mine)
	games.GET("/by-pin/:pin", h.byPin)
	games.GET("/:id", h.details)
	games.GET("/:id/leaderboard", h.leaderboard)
	games.GET("/:id/stats", h.stats)

	games.POST("/:id/start", h.hostAction(service.Start))
	games.POST("/:id/advance", h.hostAction(service.AdvanceQuestion))
	games.POST("/:id/end-question", h.hostAction(service.EndQuestion))
	games.POST("/:id/end", h.hostAction(func(ctx context.Context, sessionID, hostID string) error {
		return service.End(ctx, sessionID, hostID, false)
	}))
	games.POST("/:id/cancel", h.hostAction(service.Cancel))
	games.POST("/:id/pause", h.hostAction(service.Pause))
	games.POST("/:id/resume", h.hostAction(service.Resume))
	games.POST("/:id/participants/:pid/kick", h.kick)

	games.POST("/:id/leave", h.leave)
	games.POST("/:id/answers", h.submit)
	games.POST("/:id/skip", h.skip)

	r.GET("/api/stats/quizzes/:quizId", h.userStats)
	return r
}

type gameHandlers struct {
	service *app.GameService
}

type createGameRequest struct {
	QuizID string `json:"quizId" binding:"required"`
}

type joinRequest struct {
	Pin      string `json:"pin" binding:"required"`
	Nickname string `json:"nickname"`
}

type resumeRequest struct {
	GuestToken string `json:"guestToken"`
}

type kickRequest struct {
	Reason string `json:"reason"`
}

type answerRequest struct {
	QuestionID        string          `json:"questionId"`
	Answer            json.RawMessage `json:"answer" binding:"required"`
	ClientSubmittedAt *time.Time      `json:"clientSubmittedAt"`
}

type skipRequest struct {
	QuestionID string `json:"questionId"`
}

func (h *gameHandlers) create(c *gin.Context) {
	who, ok := requireUser(c)
	if !ok {
		return
	}
	var req createGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ErrInvalidRequest)
		return
	}
	handle, err := h.service.StartGameFromQuiz(c.Request.Context(), req.QuizID, who.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handle)
}

func (h *gameHandlers) join(c *gin.Context) {
	who := callerFrom(c)
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ErrInvalidRequest)
		return
	}
	if req.Nickname == "" {
		req.Nickname = who.Name
	}
	handle, err := h.service.Join(c.Request.Context(), req.Pin, who.UserID, req.Nickname)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if handle.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, handle)
}

func (h *gameHandlers) resume(c *gin.Context) {
	var req resumeRequest
	// The body is optional; the token may come from the header instead.
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.GuestToken == "" {
		req.GuestToken = callerFrom(c).GuestToken
	}
	handle, err := h.service.ResumeGuest(c.Request.Context(), req.GuestToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, handle)
}

func (h *gameHandlers) byPin(c *gin.Context) {
	session, err := h.service.GetSessionByPin(c.Request.Context(), c.Param("pin"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type pageQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func (h *gameHandlers) mine(c *gin.Context) {
	who, ok := requireUser(c)
	if !ok {
		return
	}
	var page pageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		writeError(c, domain.ErrInvalidRequest)
		return
	}
	sessions, err := h.service.ListHostSessions(c.Request.Context(), who.UserID, page.Limit, page.Offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *gameHandlers) userStats(c *gin.Context) {
	who, ok := requireUser(c)
	if !ok {
		return
	}
	stats, err := h.service.GetUserStatistics(c.Request.Context(), who.UserID, c.Param("quizId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *gameHandlers) details(c *gin.Context) {
	details, err := h.service.GetSessionDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *gameHandlers) leaderboard(c *gin.Context) {
	lb, err := h.service.GetLeaderboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

func (h *gameHandlers) stats(c *gin.Context) {
	stats, err := h.service.GetSessionStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *gameHandlers) hostAction(action func(ctx context.Context, sessionID, hostID string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := requireUser(c)
		if !ok {
			return
		}
		if err := action(c.Request.Context(), c.Param("id"), who.UserID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *gameHandlers) kick(c *gin.Context) {
	who, ok := requireUser(c)
	if !ok {
		return
	}
	var req kickRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if err := h.service.Kick(c.Request.Context(), c.Param("id"), who.UserID, c.Param("pid"), req.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *gameHandlers) leave(c *gin.Context) {
	p, ok := h.participant(c)
	if !ok {
		return
	}
	if err := h.service.Leave(c.Request.Context(), p.SessionID, p.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *gameHandlers) submit(c *gin.Context) {
	p, ok := h.participant(c)
	if !ok {
		return
	}
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ErrInvalidAnswer)
		return
	}
	result, err := h.service.SubmitAnswer(c.Request.Context(), app.Submission{
		SessionID:         p.SessionID,
		ParticipantID:     p.ID,
		QuestionID:        req.QuestionID,
		Payload:           req.Answer,
		ClientSubmittedAt: req.ClientSubmittedAt,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *gameHandlers) skip(c *gin.Context) {
	p, ok := h.participant(c)
	if !ok {
		return
	}
	var req skipRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	result, err := h.service.Skip(c.Request.Context(), p.SessionID, p.ID, req.QuestionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// bindOptionalJSON decodes the body when one was sent. A malformed body is rejected with
// INVALID_REQUEST.
func bindOptionalJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(c, domain.ErrInvalidRequest)
	return false
}

// participant resolves the caller to their participant in the path's session.
func (h *gameHandlers) participant(c *gin.Context) (domain.Participant, bool) {
	who := callerFrom(c)
	p, err := h.service.ResolveParticipant(c.Request.Context(), c.Param("id"), who.UserID, who.GuestToken)
	if err != nil {
		writeError(c, err)
		return domain.Participant{}, false
	}
	return p, true
}
