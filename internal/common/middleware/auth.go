package middleware

import (
	"healthtrack-backend/internal/common/apperror"
	"healthtrack-backend/internal/common/response"
	"healthtrack-backend/pkg/session"

	"github.com/gin-gonic/gin"
)

const sessionKey = "session"

// RequireSession rejects requests without a valid session with UNAUTHORIZED
func RequireSession(sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Read(c.Request)
		if s == nil {
			response.Error(c, nil, apperror.New(apperror.CodeUnauthorized, "authentication required"))
			return
		}
		c.Set(sessionKey, s)
		c.Next()
	}
}

// LoadSession attaches the session when present without requiring one
func LoadSession(sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s := sessions.Read(c.Request); s != nil {
			c.Set(sessionKey, s)
		}
		c.Next()
	}
}

// CurrentSession returns the session attached by RequireSession or
// LoadSession, or nil
func CurrentSession(c *gin.Context) *session.Session {
	value, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	s, _ := value.(*session.Session)
	return s
}
