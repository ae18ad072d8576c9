package handlers

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/certfolio/certfolio/internal/blob"
	"github.com/certfolio/certfolio/internal/models"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// fileCacheControl keeps cached copies for five minutes with forced
// revalidation. Certificate files are editable in place, so stale bytes after
// an edit would be a correctness bug; the short window bounds revalidation
// cost without risking long-lived stale caches.
const fileCacheControl = "public, max-age=300, must-revalidate"

// FileHandler serves certificate file payloads with conditional GET support.
type FileHandler struct {
	db    *gorm.DB
	blobs blob.Store
}

// NewFileHandler wires a file handler with its database and optional object store.
func NewFileHandler(db *gorm.DB, blobs blob.Store) *FileHandler {
	return &FileHandler{db: db, blobs: blobs}
}

// Serve returns the file payload for a certificate, honoring If-None-Match
// and If-Modified-Since.
func (h *FileHandler) Serve(c *gin.Context) {
	id, ok := parseCertificateID(c)
	if !ok {
		return
	}

	var cert models.Certificate
	if errFind := h.db.WithContext(c.Request.Context()).First(&cert, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		log.Errorf("files: load certificate %d: %v", id, errFind)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to serve file"})
		return
	}
	if !cert.HasFile() {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	data, errLoad := h.loadPayload(c, &cert)
	if errLoad != nil {
		log.Errorf("files: load payload for certificate %d: %v", id, errLoad)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to serve file"})
		return
	}

	// ETag couples content and update time so both metadata-preserving file
	// replacements and identical re-uploads after an edit revalidate correctly.
	stamp := cert.FileStampedAt().UTC()
	sum := md5.Sum(data)
	etag := fmt.Sprintf("\"%s-%d\"", hex.EncodeToString(sum[:]), stamp.UnixMilli())

	c.Header("ETag", etag)
	c.Header("Last-Modified", stamp.Format(http.TimeFormat))
	c.Header("Cache-Control", fileCacheControl)
	c.Header("Vary", "Accept-Encoding")

	if clientHasCurrent(c.Request, etag, stamp) {
		c.Status(http.StatusNotModified)
		return
	}

	contentType := cert.FileType
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", cert.FileName))
	if strings.HasPrefix(contentType, "image/") {
		// Images must reach the client byte-identical; forbid transcoding.
		c.Header("Content-Encoding", "identity")
	}
	c.Data(http.StatusOK, contentType, data)
}

// loadPayload returns the file bytes from the row or the object store.
func (h *FileHandler) loadPayload(c *gin.Context, cert *models.Certificate) ([]byte, error) {
	if len(cert.FileData) > 0 {
		return cert.FileData, nil
	}
	if h.blobs == nil {
		return nil, fmt.Errorf("files: certificate %d offloaded to %q but no object store configured", cert.ID, cert.FileKey)
	}
	return h.blobs.Get(c.Request.Context(), cert.FileKey)
}

// clientHasCurrent reports whether the client's cached copy is still valid by
// either the ETag or the modification-time check.
func clientHasCurrent(r *http.Request, etag string, stamp time.Time) bool {
	if match := r.Header.Get("If-None-Match"); match != "" {
		for _, candidate := range strings.Split(match, ",") {
			candidate = strings.TrimSpace(candidate)
			// "*" matches any current representation (RFC 9110 §13.1.2).
			if candidate == etag || candidate == "*" {
				return true
			}
		}
		return false
	}
	if since := r.Header.Get("If-Modified-Since"); since != "" {
		if t, errParse := http.ParseTime(since); errParse == nil {
			// HTTP dates have second precision.
			return !stamp.Truncate(time.Second).After(t)
		}
	}
	return false
}
