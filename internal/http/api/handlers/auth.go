package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/certfolio/certfolio/internal/auth"
	"github.com/certfolio/certfolio/internal/models"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "session"

// Context keys for the authenticated user set by the session middleware.
const (
	ctxKeyUser    = "currentUser"
	ctxKeySession = "currentSession"
)

// SetCurrentUser stores the resolved user and session on the request context.
func SetCurrentUser(c *gin.Context, user *models.User, session auth.SessionInfo) {
	c.Set(ctxKeyUser, user)
	c.Set(ctxKeySession, session)
}

// CurrentUser returns the authenticated user placed by the session middleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get(ctxKeyUser)
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}

// AuthHandler handles login, logout, and current-user lookup.
type AuthHandler struct {
	svc          *auth.Service
	cookieSecure bool
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(svc *auth.Service, cookieSecure bool) *AuthHandler {
	return &AuthHandler{svc: svc, cookieSecure: cookieSecure}
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies credentials and issues a session cookie. Unknown usernames
// and wrong passwords both produce the same 401.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, errVerify := h.svc.VerifyCredentials(c.Request.Context(), username, body.Password)
	if errVerify != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	session, errCreate := h.svc.CreateSession(c.Request.Context(), user.ID)
	if errCreate != nil {
		log.Errorf("login: create session for user %d: %v", user.ID, errCreate)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	h.setSessionCookie(c, session.Token, session.ExpiresAt)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    formatUser(user),
	})
}

// Me returns the user owning the current session.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": formatUser(user)})
}

// Logout destroys the current session and clears the cookie. It is idempotent:
// a missing or stale cookie still yields success.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := c.Cookie(SessionCookieName)
	if token != "" {
		if errDelete := h.svc.DeleteSession(c.Request.Context(), token); errDelete != nil {
			log.Errorf("logout: delete session: %v", errDelete)
		}
	}
	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string, expiresAt time.Time) {
	c.SetSameSite(http.SameSiteLaxMode)
	maxAge := int(time.Until(expiresAt).Seconds())
	c.SetCookie(SessionCookieName, token, maxAge, "/", "", h.cookieSecure, true)
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", h.cookieSecure, true)
}

// formatUser shapes a user for API responses; the password hash never leaves
// the server.
func formatUser(user *models.User) gin.H {
	out := gin.H{
		"id":        user.ID,
		"username":  user.Username,
		"role":      user.Role,
		"createdAt": user.CreatedAt.UTC(),
	}
	if user.LastLogin != nil {
		out["lastLogin"] = user.LastLogin.UTC()
	}
	return out
}
