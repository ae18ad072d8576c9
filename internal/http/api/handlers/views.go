package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/certfolio/certfolio/internal/models"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ViewsHandler serves site-visit tracking and aggregate analytics.
type ViewsHandler struct {
	db *gorm.DB
}

// NewViewsHandler wires a views handler with database access.
func NewViewsHandler(db *gorm.DB) *ViewsHandler {
	return &ViewsHandler{db: db}
}

// mostViewedEntry is one row of the top-viewed list.
type mostViewedEntry struct {
	ID     uint64 `json:"id"`
	Title  string `json:"title"`
	Issuer string `json:"issuer"`
	Views  int64  `json:"views"`
}

// analyticsResponse is the aggregate payload for the admin dashboard.
type analyticsResponse struct {
	TotalViews     int64             `json:"totalViews"`     // Sum of certificate view counters.
	UniqueVisitors int64             `json:"uniqueVisitors"` // Distinct IP/day visitor records.
	RecentViews    int64             `json:"recentViews"`    // Certificates viewed in the last 24h.
	MostViewed     []mostViewedEntry `json:"mostViewed"`     // Top five public certificates.
}

// Analytics recomputes the dashboard aggregates on every call. The underlying
// tables are small, so no caching layer sits in front.
func (h *ViewsHandler) Analytics(c *gin.Context) {
	ctx := c.Request.Context()

	var totalViews int64
	if errSum := h.db.WithContext(ctx).Model(&models.Certificate{}).
		Where("views > 0").
		Select("COALESCE(SUM(views), 0)").
		Scan(&totalViews).Error; errSum != nil {
		log.Errorf("views: sum views: %v", errSum)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch analytics"})
		return
	}

	var uniqueVisitors int64
	if errCount := h.db.WithContext(ctx).Model(&models.Visitor{}).
		Count(&uniqueVisitors).Error; errCount != nil {
		log.Errorf("views: count visitors: %v", errCount)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch analytics"})
		return
	}

	var recentViews int64
	dayAgo := time.Now().UTC().Add(-24 * time.Hour)
	if errRecent := h.db.WithContext(ctx).Model(&models.Certificate{}).
		Where("last_viewed >= ?", dayAgo).
		Count(&recentViews).Error; errRecent != nil {
		log.Errorf("views: count recent: %v", errRecent)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch analytics"})
		return
	}

	mostViewed := make([]mostViewedEntry, 0, 5)
	if errTop := h.db.WithContext(ctx).Model(&models.Certificate{}).
		Where("is_public = ? AND views > 0", true).
		Order("views DESC").
		Limit(5).
		Select("id", "title", "issuer", "views").
		Scan(&mostViewed).Error; errTop != nil {
		log.Errorf("views: top viewed: %v", errTop)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch analytics"})
		return
	}

	c.JSON(http.StatusOK, analyticsResponse{
		TotalViews:     totalViews,
		UniqueVisitors: uniqueVisitors,
		RecentViews:    recentViews,
		MostViewed:     mostViewed,
	})
}

// TrackVisit records a site visit: one visitor row per IP per local calendar
// day, created on the first visit and incremented afterwards. Clients swallow
// failures here, so the handler still responds quickly and generically.
func (h *ViewsHandler) TrackVisit(c *gin.Context) {
	ctx := c.Request.Context()
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	today := time.Now().Format("2006-01-02")
	now := time.Now().UTC()

	var visitor models.Visitor
	errFind := h.db.WithContext(ctx).
		Where("ip = ? AND visit_date = ?", ip, today).
		First(&visitor).Error

	isNewVisitor := false
	switch {
	case errFind == nil:
		if errBump := h.db.WithContext(ctx).Model(&models.Visitor{}).
			Where("id = ?", visitor.ID).
			UpdateColumns(map[string]any{
				"visit_count": gorm.Expr("visit_count + ?", 1),
				"last_visit":  now,
			}).Error; errBump != nil {
			log.Errorf("views: bump visitor %d: %v", visitor.ID, errBump)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to track visit"})
			return
		}
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		isNewVisitor = true
		visitor = models.Visitor{
			IP:         ip,
			VisitDate:  today,
			UserAgent:  c.Request.UserAgent(),
			FirstVisit: now,
			VisitCount: 1,
		}
		if errCreate := h.db.WithContext(ctx).Create(&visitor).Error; errCreate != nil {
			// A concurrent first visit may have won the unique index; count
			// this one as a repeat instead of failing.
			isNewVisitor = false
			if errBump := h.db.WithContext(ctx).Model(&models.Visitor{}).
				Where("ip = ? AND visit_date = ?", ip, today).
				UpdateColumns(map[string]any{
					"visit_count": gorm.Expr("visit_count + ?", 1),
					"last_visit":  now,
				}).Error; errBump != nil {
				log.Errorf("views: create visitor %s: %v", ip, errCreate)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to track visit"})
				return
			}
		}
	default:
		log.Errorf("views: find visitor %s: %v", ip, errFind)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to track visit"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "isNewVisitor": isNewVisitor})
}
