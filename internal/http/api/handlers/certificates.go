package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/certfolio/certfolio/internal/blob"
	dbutil "github.com/certfolio/certfolio/internal/db"
	"github.com/certfolio/certfolio/internal/models"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CertificateHandler implements CRUD and view tracking for certificates.
type CertificateHandler struct {
	db             *gorm.DB
	blobs          blob.Store // nil: payloads stay inline in the row
	maxUploadBytes int64
}

// NewCertificateHandler wires a certificate handler with its dependencies.
func NewCertificateHandler(db *gorm.DB, blobs blob.Store, maxUploadBytes int64) *CertificateHandler {
	return &CertificateHandler{db: db, blobs: blobs, maxUploadBytes: maxUploadBytes}
}

// certificateRequest is the JSON metadata carried in the multipart "data" field.
type certificateRequest struct {
	Title       string `json:"title"`
	Issuer      string `json:"issuer"`
	Description string `json:"description"`
	DateIssued  string `json:"dateIssued"`
	ExpiryDate  string `json:"expiryDate"`
	Category    string `json:"category"`
	Skills      string `json:"skills"` // comma-separated
	IsPublic    bool   `json:"isPublic"`
}

// List returns certificates filtered by category, free-text search, and the
// public-only flag, newest issue date first. The result set is unbounded.
func (h *CertificateHandler) List(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&models.Certificate{})

	if c.Query("public") == "true" {
		query = query.Where("is_public = ?", true)
	}
	if category := strings.TrimSpace(c.Query("category")); category != "" && category != "all" {
		query = query.Where("category = ?", category)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+search+"%")
		query = query.Where(
			fmt.Sprintf("%s OR %s OR %s",
				dbutil.CaseInsensitiveLikeExpr(h.db, "title"),
				dbutil.CaseInsensitiveLikeExpr(h.db, "issuer"),
				dbutil.CaseInsensitiveLikeExpr(h.db, "description")),
			pattern, pattern, pattern,
		)
	}

	var certs []models.Certificate
	if errFind := query.Order("date_issued DESC").Find(&certs).Error; errFind != nil {
		log.Errorf("certificates: list: %v", errFind)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch certificates"})
		return
	}

	out := make([]gin.H, 0, len(certs))
	for i := range certs {
		out = append(out, formatCertificate(&certs[i]))
	}
	c.JSON(http.StatusOK, out)
}

// Get returns a single certificate's metadata. The raw file payload is only
// reachable through the file endpoint.
func (h *CertificateHandler) Get(c *gin.Context) {
	id, ok := parseCertificateID(c)
	if !ok {
		return
	}
	cert, ok := h.loadCertificate(c, id)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, formatCertificate(cert))
}

// Create stores a new certificate from multipart form data: a JSON "data"
// field plus an optional "file" upload.
func (h *CertificateHandler) Create(c *gin.Context) {
	var body certificateRequest
	if !h.bindMetadata(c, &body) {
		return
	}
	title := strings.TrimSpace(body.Title)
	issuer := strings.TrimSpace(body.Issuer)
	category := strings.TrimSpace(body.Category)
	if title == "" || issuer == "" || category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title, issuer and category are required"})
		return
	}
	dateIssued, errDate := parseDate(body.DateIssued)
	if errDate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dateIssued"})
		return
	}
	expiryDate, errExpiry := parseOptionalDate(body.ExpiryDate)
	if errExpiry != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expiryDate"})
		return
	}

	now := time.Now().UTC()
	cert := models.Certificate{
		Title:       title,
		Issuer:      issuer,
		Description: strings.TrimSpace(body.Description),
		DateIssued:  dateIssued,
		ExpiryDate:  expiryDate,
		Category:    category,
		Skills:      encodeSkills(body.Skills),
		IsPublic:    body.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if ok := h.attachUpload(c, &cert, false); !ok {
		return
	}

	if errCreate := h.db.WithContext(c.Request.Context()).Create(&cert).Error; errCreate != nil {
		log.Errorf("certificates: create: %v", errCreate)
		if h.blobs != nil && cert.FileKey != "" {
			// The object was written before the row; do not leave it orphaned.
			if errDrop := h.blobs.Delete(c.Request.Context(), cert.FileKey); errDrop != nil {
				log.Errorf("certificates: drop orphaned blob %s: %v", cert.FileKey, errDrop)
			}
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create certificate"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": cert.ID})
}

// Update replaces certificate metadata and, when a new file is supplied, the
// file payload. A file replacement stamps file_updated_at; updated_at always
// advances.
func (h *CertificateHandler) Update(c *gin.Context) {
	id, ok := parseCertificateID(c)
	if !ok {
		return
	}
	cert, ok := h.loadCertificate(c, id)
	if !ok {
		return
	}

	var body certificateRequest
	if !h.bindMetadata(c, &body) {
		return
	}
	if title := strings.TrimSpace(body.Title); title != "" {
		cert.Title = title
	}
	if issuer := strings.TrimSpace(body.Issuer); issuer != "" {
		cert.Issuer = issuer
	}
	cert.Description = strings.TrimSpace(body.Description)
	if category := strings.TrimSpace(body.Category); category != "" {
		cert.Category = category
	}
	if body.DateIssued != "" {
		dateIssued, errDate := parseDate(body.DateIssued)
		if errDate != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dateIssued"})
			return
		}
		cert.DateIssued = dateIssued
	}
	expiryDate, errExpiry := parseOptionalDate(body.ExpiryDate)
	if errExpiry != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expiryDate"})
		return
	}
	cert.ExpiryDate = expiryDate
	cert.Skills = encodeSkills(body.Skills)
	cert.IsPublic = body.IsPublic

	if ok := h.attachUpload(c, cert, true); !ok {
		return
	}
	cert.UpdatedAt = time.Now().UTC()

	// The view counter only moves through its own atomic increment; writing the
	// loaded value back here would drop views tracked during the edit.
	if errSave := h.db.WithContext(c.Request.Context()).
		Model(&models.Certificate{}).
		Where("id = ?", cert.ID).
		Select("*").
		Omit("id", "views", "last_viewed", "created_at").
		Updates(cert).Error; errSave != nil {
		log.Errorf("certificates: update %d: %v", id, errSave)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update certificate"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete removes a certificate and, when offloaded, its stored object.
func (h *CertificateHandler) Delete(c *gin.Context) {
	id, ok := parseCertificateID(c)
	if !ok {
		return
	}
	cert, ok := h.loadCertificate(c, id)
	if !ok {
		return
	}

	if errDelete := h.db.WithContext(c.Request.Context()).Delete(&models.Certificate{}, id).Error; errDelete != nil {
		log.Errorf("certificates: delete %d: %v", id, errDelete)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete certificate"})
		return
	}
	if h.blobs != nil && cert.FileKey != "" {
		if errBlob := h.blobs.Delete(c.Request.Context(), cert.FileKey); errBlob != nil {
			log.Errorf("certificates: delete blob %s: %v", cert.FileKey, errBlob)
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// TrackView atomically increments the view counter. The increment happens in
// SQL so concurrent viewers never lose updates, and it deliberately bypasses
// updated_at, which must only move on edits.
func (h *CertificateHandler) TrackView(c *gin.Context) {
	id, ok := parseCertificateID(c)
	if !ok {
		return
	}

	now := time.Now().UTC()
	result := h.db.WithContext(c.Request.Context()).
		Model(&models.Certificate{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"views":       gorm.Expr("views + ?", 1),
			"last_viewed": now,
		})
	if result.Error != nil {
		log.Errorf("certificates: track view %d: %v", id, result.Error)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to track view"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found"})
		return
	}

	var views int64
	if errCount := h.db.WithContext(c.Request.Context()).
		Model(&models.Certificate{}).
		Where("id = ?", id).
		Select("views").
		Scan(&views).Error; errCount != nil {
		log.Errorf("certificates: reload views %d: %v", id, errCount)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to track view"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "views": views, "lastViewed": now})
}

// bindMetadata parses the multipart "data" field into body. It accepts a bare
// JSON request body as well, for clients that edit metadata without a file.
func (h *CertificateHandler) bindMetadata(c *gin.Context, body *certificateRequest) bool {
	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "multipart/form-data") {
		raw := c.PostForm("data")
		if raw == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing data field"})
			return false
		}
		if errParse := json.Unmarshal([]byte(raw), body); errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data json"})
			return false
		}
		return true
	}
	if errBind := c.ShouldBindJSON(body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return false
	}
	return true
}

// attachUpload reads the optional "file" part into the certificate, enforcing
// the size cap. On replacement it stamps file_updated_at and drops any
// previously offloaded object.
func (h *CertificateHandler) attachUpload(c *gin.Context, cert *models.Certificate, replacement bool) bool {
	fileHeader, errFile := c.FormFile("file")
	if errFile != nil {
		if errors.Is(errFile, http.ErrMissingFile) || errors.Is(errFile, http.ErrNotMultipart) {
			return true
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file upload"})
		return false
	}
	if fileHeader.Size > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file exceeds %dMB limit", h.maxUploadBytes/(1024*1024))})
		return false
	}

	data, errRead := readUpload(fileHeader)
	if errRead != nil {
		log.Errorf("certificates: read upload %s: %v", fileHeader.Filename, errRead)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return false
	}

	previousKey := cert.FileKey
	if h.blobs != nil {
		key := blob.ObjectKey(data)
		contentType := fileHeader.Header.Get("Content-Type")
		if errPut := h.blobs.Put(c.Request.Context(), key, data, contentType); errPut != nil {
			log.Errorf("certificates: offload upload: %v", errPut)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
			return false
		}
		cert.FileKey = key
		cert.FileData = nil
		if previousKey != "" && previousKey != key {
			if errDrop := h.blobs.Delete(c.Request.Context(), previousKey); errDrop != nil {
				log.Errorf("certificates: drop replaced blob %s: %v", previousKey, errDrop)
			}
		}
	} else {
		cert.FileData = data
		cert.FileKey = ""
	}

	cert.FileName = fileHeader.Filename
	cert.FileType = fileHeader.Header.Get("Content-Type")
	cert.FileSize = int64(len(data))
	if replacement {
		now := time.Now().UTC()
		cert.FileUpdatedAt = &now
	}
	return true
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, errOpen := fileHeader.Open()
	if errOpen != nil {
		return nil, errOpen
	}
	defer file.Close()
	return io.ReadAll(file)
}

// loadCertificate fetches by id, responding 404/500 itself on failure.
func (h *CertificateHandler) loadCertificate(c *gin.Context, id uint64) (*models.Certificate, bool) {
	var cert models.Certificate
	if errFind := h.db.WithContext(c.Request.Context()).First(&cert, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found"})
			return nil, false
		}
		log.Errorf("certificates: load %d: %v", id, errFind)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch certificate"})
		return nil, false
	}
	return &cert, true
}

// parseCertificateID validates the :id path parameter, responding 400 itself
// when malformed.
func parseCertificateID(c *gin.Context) (uint64, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	id, errParse := strconv.ParseUint(raw, 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid certificate id"})
		return 0, false
	}
	return id, true
}

// encodeSkills splits a comma-separated skills string into a JSON array,
// trimming whitespace and dropping empties.
func encodeSkills(raw string) datatypes.JSON {
	parts := strings.Split(raw, ",")
	skills := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			skills = append(skills, trimmed)
		}
	}
	encoded, errMarshal := json.Marshal(skills)
	if errMarshal != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(encoded)
}

func decodeSkills(raw datatypes.JSON) []string {
	var skills []string
	if len(raw) == 0 {
		return []string{}
	}
	if errUnmarshal := json.Unmarshal(raw, &skills); errUnmarshal != nil {
		return []string{}
	}
	return skills
}

// formatCertificate shapes a certificate for API responses. The raw payload
// stays server-side; only file metadata is exposed.
func formatCertificate(cert *models.Certificate) gin.H {
	out := gin.H{
		"id":          cert.ID,
		"title":       cert.Title,
		"issuer":      cert.Issuer,
		"description": cert.Description,
		"dateIssued":  cert.DateIssued.UTC(),
		"category":    cert.Category,
		"skills":      decodeSkills(cert.Skills),
		"isPublic":    cert.IsPublic,
		"views":       cert.Views,
		"hasFile":     cert.HasFile(),
		"createdAt":   cert.CreatedAt.UTC(),
		"updatedAt":   cert.UpdatedAt.UTC(),
	}
	if cert.ExpiryDate != nil {
		out["expiryDate"] = cert.ExpiryDate.UTC()
	}
	if cert.HasFile() {
		out["fileName"] = cert.FileName
		out["fileType"] = cert.FileType
		out["fileSize"] = cert.FileSize
	}
	if cert.LastViewed != nil {
		out["lastViewed"] = cert.LastViewed.UTC()
	}
	if cert.FileUpdatedAt != nil {
		out["fileUpdatedAt"] = cert.FileUpdatedAt.UTC()
	}
	return out
}

// parseDate accepts bare dates and RFC3339 timestamps.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, errParse := time.Parse(layout, raw); errParse == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, errParse := parseDate(raw)
	if errParse != nil {
		return nil, errParse
	}
	return &t, nil
}
