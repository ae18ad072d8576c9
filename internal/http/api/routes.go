// Package api registers the HTTP surface: a public read side (gallery, files,
// view tracking, analytics) and a session-gated admin side (upload, edit,
// delete).
package api

import (
	"github.com/certfolio/certfolio/internal/auth"
	"github.com/certfolio/certfolio/internal/blob"
	"github.com/certfolio/certfolio/internal/http/api/handlers"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps carries the wired dependencies for route registration.
type Deps struct {
	DB             *gorm.DB
	Auth           *auth.Service
	Blobs          blob.Store // nil when payloads stay inline
	CookieSecure   bool
	MaxUploadBytes int64
}

// RegisterRoutes attaches all endpoints to the engine.
func RegisterRoutes(engine *gin.Engine, deps Deps) {
	authHandler := handlers.NewAuthHandler(deps.Auth, deps.CookieSecure)
	certHandler := handlers.NewCertificateHandler(deps.DB, deps.Blobs, deps.MaxUploadBytes)
	fileHandler := handlers.NewFileHandler(deps.DB, deps.Blobs)
	viewsHandler := handlers.NewViewsHandler(deps.DB)

	engine.GET("/healthz", handlers.Health)

	apiGroup := engine.Group("/api")
	{
		authGroup := apiGroup.Group("/auth")
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/me", RequireSession(deps.Auth), authHandler.Me)
		authGroup.POST("/logout", authHandler.Logout)

		certs := apiGroup.Group("/certificates")
		certs.GET("", certHandler.List)
		certs.GET("/:id", certHandler.Get)
		certs.GET("/:id/file", fileHandler.Serve)
		certs.POST("/:id/view", certHandler.TrackView)
		certs.POST("", RequireSession(deps.Auth), certHandler.Create)
		certs.PUT("/:id", RequireSession(deps.Auth), certHandler.Update)
		certs.DELETE("/:id", RequireSession(deps.Auth), certHandler.Delete)

		apiGroup.GET("/views", viewsHandler.Analytics)
		apiGroup.POST("/views", viewsHandler.TrackVisit)
	}
}
