// Package maintenance runs scheduled cleanup jobs: expired-session purge and
// visitor-record retention.
package maintenance

import (
	"context"
	"time"

	"github.com/certfolio/certfolio/internal/auth"
	"github.com/certfolio/certfolio/internal/models"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	sessionPurgeBatchSize = 1000
	visitorDeleteBatch    = 5000
)

// Runner owns the cron scheduler for background cleanup.
type Runner struct {
	db            *gorm.DB
	sessions      *auth.GormSessionStore // nil when sessions live in Redis
	retentionDays int
	cron          *cron.Cron
}

// NewRunner builds a maintenance runner. sessions may be nil when the session
// store expires entries natively.
func NewRunner(db *gorm.DB, sessions *auth.GormSessionStore, retentionDays int) *Runner {
	return &Runner{
		db:            db,
		sessions:      sessions,
		retentionDays: retentionDays,
		cron:          cron.New(),
	}
}

// Start schedules the jobs and launches the scheduler. Jobs stop when ctx is
// canceled.
func (r *Runner) Start(ctx context.Context) {
	if r.sessions != nil {
		if _, errAdd := r.cron.AddFunc("@hourly", func() { r.purgeSessions(ctx) }); errAdd != nil {
			log.Errorf("maintenance: schedule session purge: %v", errAdd)
		}
	}
	if _, errAdd := r.cron.AddFunc("0 3 * * *", func() { r.pruneVisitors(ctx) }); errAdd != nil {
		log.Errorf("maintenance: schedule visitor prune: %v", errAdd)
	}
	r.cron.Start()
	log.Info("maintenance jobs scheduled")

	go func() {
		<-ctx.Done()
		r.cron.Stop()
	}()
}

func (r *Runner) purgeSessions(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	removed, errPurge := r.sessions.PurgeExpired(ctx, sessionPurgeBatchSize)
	if errPurge != nil {
		log.Errorf("maintenance: purge sessions: %v", errPurge)
		return
	}
	if removed > 0 {
		log.Infof("maintenance: purged %d expired sessions", removed)
	}
}

func (r *Runner) pruneVisitors(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -r.retentionDays).Format("2006-01-02")
	var total int64
	for {
		result := r.db.WithContext(ctx).
			Where("id IN (?)", r.db.Model(&models.Visitor{}).
				Select("id").
				Where("visit_date < ?", cutoff).
				Limit(visitorDeleteBatch)).
			Delete(&models.Visitor{})
		if result.Error != nil {
			log.Errorf("maintenance: prune visitors: %v", result.Error)
			return
		}
		total += result.RowsAffected
		if result.RowsAffected < int64(visitorDeleteBatch) {
			break
		}
	}
	if total > 0 {
		log.Infof("maintenance: pruned %d visitor records older than %s", total, cutoff)
	}
}
