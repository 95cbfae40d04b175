package http

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"live-quiz-service/internal/domain"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// toErrorPayload maps an error to its wire form and HTTP status. Anything that is not a
// domain error is reported as internal.
func toErrorPayload(err error) (int, errorPayload) {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return domainErr.Status, errorPayload{Code: domainErr.Code, Message: err.Error()}
	}
	log.Printf("internal error: %v", err)
	return http.StatusInternalServerError, errorPayload{Code: "INTERNAL", Message: "internal error"}
}

func writeError(c *gin.Context, err error) {
	status, payload := toErrorPayload(err)
	c.AbortWithStatusJSON(status, payload)
}
