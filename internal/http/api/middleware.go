package api

import (
	"net/http"
	"time"

	"github.com/certfolio/certfolio/internal/auth"
	"github.com/certfolio/certfolio/internal/http/api/handlers"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequireSession resolves the session cookie and aborts with 401 when no live
// session exists. Expired, forged, and missing tokens are indistinguishable to
// the client.
func RequireSession(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(handlers.SessionCookieName)
		user, session, errGet := svc.GetSession(c.Request.Context(), token)
		if errGet != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		handlers.SetCurrentUser(c, user, session)
		c.Next()
	}
}

// RequestLogger emits one structured log line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
		}).Info("http request")
	}
}
