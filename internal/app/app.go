// Package app wires configuration, storage, and HTTP into runnable commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/certfolio/certfolio/internal/auth"
	"github.com/certfolio/certfolio/internal/blob"
	"github.com/certfolio/certfolio/internal/config"
	"github.com/certfolio/certfolio/internal/db"
	"github.com/certfolio/certfolio/internal/http/api"
	"github.com/certfolio/certfolio/internal/maintenance"
	"github.com/certfolio/certfolio/internal/models"
	"github.com/certfolio/certfolio/internal/security"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout bounds graceful HTTP drain on termination.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.Config) error {
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// CreateAdmin seeds or resets the admin account.
func CreateAdmin(ctx context.Context, cfg config.Config, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("app: username and password are required")
	}
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		return errMigrate
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("app: hash password: %w", errHash)
	}

	var existing models.User
	errFind := conn.WithContext(ctx).Where("username = ?", username).First(&existing).Error
	switch {
	case errFind == nil:
		if errUpdate := conn.WithContext(ctx).Model(&existing).
			Update("password_hash", hash).Error; errUpdate != nil {
			return fmt.Errorf("app: reset admin password: %w", errUpdate)
		}
		log.Infof("password reset for admin %q", username)
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		user := models.User{
			Username:     username,
			PasswordHash: hash,
			Role:         "admin",
			CreatedAt:    time.Now().UTC(),
		}
		if errCreate := conn.WithContext(ctx).Create(&user).Error; errCreate != nil {
			return fmt.Errorf("app: create admin: %w", errCreate)
		}
		log.Infof("admin %q created", username)
	default:
		return fmt.Errorf("app: lookup admin: %w", errFind)
	}
	return nil
}

// RunServer boots the HTTP API and blocks until ctx is canceled.
func RunServer(ctx context.Context, cfg config.Config) error {
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		return errMigrate
	}

	ttl, errTTL := cfg.SessionTTLDuration()
	if errTTL != nil {
		return errTTL
	}

	var sessions auth.SessionStore
	var gormSessions *auth.GormSessionStore
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		sessions = auth.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword)
		log.Infof("sessions: redis store at %s", cfg.RedisAddr)
	} else {
		gormSessions = auth.NewGormSessionStore(conn)
		sessions = gormSessions
	}
	authService := auth.NewService(conn, sessions, ttl)

	var blobs blob.Store
	if cfg.Minio.Enabled() {
		store, errStore := blob.NewMinioStore(
			cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey,
			cfg.Minio.Bucket, cfg.Minio.UseSSL,
		)
		if errStore != nil {
			return errStore
		}
		blobs = store
		log.Infof("file payloads: object storage bucket %q", cfg.Minio.Bucket)
	}

	maintenance.NewRunner(conn, gormSessions, cfg.VisitorRetentionDays).Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(api.RequestLogger(), gin.Recovery())
	if errProxies := engine.SetTrustedProxies(cfg.TrustedProxies); errProxies != nil {
		return fmt.Errorf("app: trusted proxies: %w", errProxies)
	}

	api.RegisterRoutes(engine, api.Deps{
		DB:             conn,
		Auth:           authService,
		Blobs:          blobs,
		CookieSecure:   cfg.CookieSecure,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on :%s", cfg.Port)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(drainCtx); errShutdown != nil {
		return fmt.Errorf("app: shutdown: %w", errShutdown)
	}
	log.Info("server stopped")
	return nil
}
