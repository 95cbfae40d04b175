package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
)

const (
	callerKey        = "caller"
	guestTokenHeader = "X-Guest-Token"
)

// IdentityResolver verifies bearer tokens.
type IdentityResolver interface {
	Resolve(token string) (auth.Identity, error)
}

// caller is who sent the request: an identified user, a guest, or nobody.
type caller struct {
	UserID     string
	Name       string
	GuestToken string
}

// identify reads the bearer token and the guest token from headers, or from query parameters
// for websocket upgrades where browsers cannot set headers.
func identify(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var who caller
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token != "" {
			if resolver == nil {
				writeError(c, domain.ErrUnauthorized)
				return
			}
			id, err := resolver.Resolve(token)
			if err != nil {
				writeError(c, err)
				return
			}
			who.UserID = id.UserID
			who.Name = id.Name
		}
		who.GuestToken = c.GetHeader(guestTokenHeader)
		if who.GuestToken == "" {
			who.GuestToken = c.Query("guestToken")
		}
		c.Set(callerKey, who)
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func callerFrom(c *gin.Context) caller {
	if v, ok := c.Get(callerKey); ok {
		return v.(caller)
	}
	return caller{}
}

// requireUser returns the identified caller or aborts with UNAUTHORIZED.
func requireUser(c *gin.Context) (caller, bool) {
	who := callerFrom(c)
	if who.UserID == "" {
		writeError(c, domain.ErrUnauthorized)
		return caller{}, false
	}
	return who, true
}
