package api

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func createCertificate(t *testing.T, engine *gin.Engine, cookie *http.Cookie, data map[string]any, fileName, fileType string, fileContent []byte) uint64 {
	t.Helper()
	req := multipartRequest(t, http.MethodPost, "/api/certificates", data, fileName, fileType, fileContent)
	req.AddCookie(cookie)
	recorder := serve(engine, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("create certificate: status %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	id, ok := body["id"].(float64)
	if !ok || id == 0 {
		t.Fatalf("create response missing id: %v", body)
	}
	return uint64(id)
}

func TestCertificateCreateAndGet(t *testing.T) {
	engine, _ := setupAPITest(t)
	cookie := login(t, engine)

	id := createCertificate(t, engine, cookie, map[string]any{
		"title":      "AWS Solutions Architect",
		"issuer":     "Amazon",
		"dateIssued": "2024-03-15",
		"category":   "cloud",
		"skills":     "ec2, s3 , iam,,",
		"isPublic":   true,
	}, "cert.pdf", "application/pdf", []byte("%PDF-1.4 fake"))

	recorder := doJSON(t, engine, http.MethodGet, "/api/certificates/"+itoa(id), nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("get certificate: status %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["title"] != "AWS Solutions Architect" {
		t.Fatalf("unexpected title %v", body["title"])
	}
	skills, ok := body["skills"].([]any)
	if !ok || len(skills) != 3 {
		t.Fatalf("expected 3 skills, got %v", body["skills"])
	}
	if skills[0] != "ec2" || skills[1] != "s3" || skills[2] != "iam" {
		t.Fatalf("skills not trimmed: %v", skills)
	}
	if body["hasFile"] != true {
		t.Fatalf("expected hasFile true")
	}
	if body["fileName"] != "cert.pdf" {
		t.Fatalf("unexpected fileName %v", body["fileName"])
	}
	if body["views"] != float64(0) {
		t.Fatalf("expected zero views, got %v", body["views"])
	}
	if _, leaked := body["fileData"]; leaked {
		t.Fatalf("metadata response leaked raw file payload")
	}
}

func TestCertificateCreateValidation(t *testing.T) {
	engine, _ := setupAPITest(t)
	cookie := login(t, engine)

	cases := []map[string]any{
		{"issuer": "Amazon", "dateIssued": "2024-03-15", "category": "cloud"},
		{"title": "X", "dateIssued": "2024-03-15", "category": "cloud"},
		{"title": "X", "issuer": "Amazon", "dateIssued": "2024-03-15"},
		{"title": "X", "issuer": "Amazon", "dateIssued": "not-a-date", "category": "cloud"},
	}
	for i, data := range cases {
		req := multipartRequest(t, http.MethodPost, "/api/certificates", data, "", "", nil)
		req.AddCookie(cookie)
		recorder := serve(engine, req)
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("case %d: status %d, want 400", i, recorder.Code)
		}
	}
}

func TestCertificateUploadSizeCap(t *testing.T) {
	engine, _ := setupAPITest(t)
	cookie := login(t, engine)

	oversized := bytes.Repeat([]byte("a"), (1<<20)+1)
	req := multipartRequest(t, http.MethodPost, "/api/certificates", map[string]any{
		"title":      "Big",
		"issuer":     "Issuer",
		"dateIssued": "2024-01-01",
		"category":   "misc",
	}, "big.bin", "application/octet-stream", oversized)
	req.AddCookie(cookie)
	recorder := serve(engine, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("oversized upload: status %d, want 400", recorder.Code)
	}
}

func TestCertificateListFilters(t *testing.T) {
	engine, _ := setupAPITest(t)
	cookie := login(t, engine)

	createCertificate(t, engine, cookie, map[string]any{
		"title": "Kubernetes Administrator", "issuer": "CNCF",
		"dateIssued": "2024-01-10", "category": "cloud", "isPublic": true,
	}, "", "", nil)
	createCertificate(t, engine, cookie, map[string]any{
		"title": "Deep Learning", "issuer": "Coursera",
		"dateIssued": "2023-06-01", "category": "ml", "isPublic": true,
	}, "", "", nil)
	createCertificate(t, engine, cookie, map[string]any{
		"title": "Internal Training", "issuer": "Acme",
		"dateIssued": "2024-05-01", "category": "cloud", "isPublic": false,
	}, "", "", nil)

	recorder := doJSON(t, engine, http.MethodGet, "/api/certificates", nil, nil)
	if got := listLen(t, recorder); got != 3 {
		t.Fatalf("unfiltered list: %d entries, want 3", got)
	}

	recorder = doJSON(t, engine, http.MethodGet, "/api/certificates?public=true", nil, nil)
	if got := listLen(t, recorder); got != 2 {
		t.Fatalf("public list: %d entries, want 2", got)
	}

	recorder = doJSON(t, engine, http.MethodGet, "/api/certificates?category=cloud", nil, nil)
	if got := listLen(t, recorder); got != 2 {
		t.Fatalf("category list: %d entries, want 2", got)
	}

	recorder = doJSON(t, engine, http.MethodGet, "/api/certificates?category=all", nil, nil)
	if got := listLen(t, recorder); got != 3 {
		t.Fatalf("category=all list: %d entries, want 3", got)
	}

	recorder = doJSON(t, engine, http.MethodGet, "/api/certificates?search=KUBERNETES", nil, nil)
	if got := listLen(t, recorder); got != 1 {
		t.Fatalf("search list: %d entries, want 1", got)
	}

	recorder = doJSON(t, engine, http.MethodGet, "/api/certificates?search=coursera", nil, nil)
	if got := listLen(t, recorder); got != 1 {
		t.Fatalf("issuer search: %d entries, want 1", got)
	}

	// Newest issue date first.
	recorder = doJSON(t, engine, http.MethodGet, "/api/certificates", nil, nil)
	var entries []map[string]any
	decodeInto(t, recorder, &entries)
	if entries[0]["title"] != "Internal Training" || entries[2]["title"] != "Deep Learning" {
		t.Fatalf("unexpected ordering: %v, %v, %v", entries[0]["title"], entries[1]["title"], entries[2]["title"])
	}
}

func TestCertificateMetadataUpdateKeepsFileStamp(t *testing.T) {
	engine, _ := setupAPITest(t)
	cookie := login(t, engine)

	id := createCertificate(t, engine, cookie, map[string]any{
		"title": "Original", "issuer": "Issuer",
		"dateIssued": "2024-01-01", "category": "misc", "isPublic": true,
	}, "scan.png", "image/png", []byte("pngbytes"))

	recorder := doJSON(t, engine, http.MethodGet, "/api/certificates/"+itoa(id), nil, nil)
	before := decodeBody(t, recorder)

	recorder = doJSON(t, engine, http.MethodPut, "/api/certificates/"+itoa(id), map[string]any{
		"title": "Renamed", "issuer": "Issuer",
		"dateIssued": "2024-01-01", "category": "misc", "isPublic": true,
	}, cookie)
	if recorder.Code != http.StatusOK {
		t.Fatalf("metadata update: status %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, engine, http.MethodGet, "/api/certificates/"+itoa(id), nil, nil)
	after := decodeBody(t, recorder)
	if after["title"] != "Renamed" {
		t.Fatalf("title not updated: %v", after["title"])
	}
	if after["hasFile"] != true {
		t.Fatalf("metadata update dropped the file")
	}
	if _, stamped := after["fileUpdatedAt"]; stamped {
		t.Fatalf("metadata-only update must not stamp fileUpdatedAt")
	}
	if after["updatedAt"] == before["updatedAt"] {
		t.Fatalf("updatedAt did not advance on edit")
	}
}

func TestCertificateFileReplacementStampsFileUpdatedAt(t *testing.T) {
	engine, _ := setupAPITest(t)
	cookie := login(t, engine)

	id := createCertificate(t, engine, cookie, map[string]any{
		"title": "Cert", "issuer": "Issuer",
		"dateIssued": "2024-01-01", "category": "misc", "isPublic": true,
	}, "v1.pdf", "application/pdf", []byte("version one"))

	req := multipartRequest(t, http.MethodPut, "/api/certificates/"+itoa(id), map[string]any{
		"title": "Cert", "issuer": "Issuer",
		"dateIssued": "2024-01-01", "category": "misc", "isPublic": true,
	}, "v2.pdf", "application/pdf", []byte("version two"))
	req.AddCookie(cookie)
	recorder := serve(engine, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("file replacement: status %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, engine, http.MethodGet, "/api/certificates/"+itoa(id), nil, nil)
	body := decodeBody(t, recorder)
	if body["fileName"] != "v2.pdf" {
		t.Fatalf("fileName not replaced: %v", body["fileName"])
	}
	if _, stamped := body["fileUpdatedAt"]; !stamped {
		t.Fatalf("file replacement must stamp fileUpdatedAt")
	}
}

func TestEditPreservesConcurrentViewIncrement(t *testing.T) {
	engine, db := setupAPITest(t)
	cookie := login(t, engine)

	id := createCertificate(t, engine, cookie, map[string]any{
		"title": "Contended", "issuer": "Issuer",
		"dateIssued": "2024-01-01", "category": "misc", "isPublic": true,
	}, "", "", nil)

	// Land a view increment between the edit's row load and its write.
	fired := false
	errRegister := db.Callback().Update().Before("gorm:update").Register("interleaved_view", func(tx *gorm.DB) {
		if fired {
			return
		}
		fired = true
		if errBump := db.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE certificates SET views = views + 1 WHERE id = ?", id).Error; errBump != nil {
			t.Errorf("interleaved increment: %v", errBump)
		}
	})
	if errRegister != nil {
		t.Fatalf("register callback: %v", errRegister)
	}

	recorder := doJSON(t, engine, http.MethodPut, "/api/certificates/"+itoa(id), map[string]any{
		"title": "Contended v2", "issuer": "Issuer",
		"dateIssued": "2024-01-01", "category": "misc", "isPublic": true,
	}, cookie)
	if recorder.Code != http.StatusOK {
		t.Fatalf("update: status %d: %s", recorder.Code, recorder.Body.String())
	}
	if !fired {
		t.Fatalf("interleaved increment never ran")
	}

	recorder = doJSON(t, engine, http.MethodGet, "/api/certificates/"+itoa(id), nil, nil)
	body := decodeBody(t, recorder)
	if body["views"] != float64(1) {
		t.Fatalf("concurrent view increment lost: views = %v, want 1", body["views"])
	}
	if body["title"] != "Contended v2" {
		t.Fatalf("edit not applied: %v", body["title"])
	}
}

func TestCertificateDelete(t *testing.T) {
	engine, _ := setupAPITest(t)
	cookie := login(t, engine)

	id := createCertificate(t, engine, cookie, map[string]any{
		"title": "Doomed", "issuer": "Issuer",
		"dateIssued": "2024-01-01", "category": "misc",
	}, "", "", nil)

	recorder := doJSON(t, engine, http.MethodDelete, "/api/certificates/"+itoa(id), nil, cookie)
	if recorder.Code != http.StatusOK {
		t.Fatalf("delete: status %d", recorder.Code)
	}
	recorder = doJSON(t, engine, http.MethodGet, "/api/certificates/"+itoa(id), nil, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status %d, want 404", recorder.Code)
	}
	recorder = doJSON(t, engine, http.MethodDelete, "/api/certificates/"+itoa(id), nil, cookie)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("double delete: status %d, want 404", recorder.Code)
	}
}

func TestTrackViewIncrements(t *testing.T) {
	engine, _ := setupAPITest(t)
	cookie := login(t, engine)

	id := createCertificate(t, engine, cookie, map[string]any{
		"title": "Viewed", "issuer": "Issuer",
		"dateIssued": "2024-01-01", "category": "misc", "isPublic": true,
	}, "", "", nil)

	var last map[string]any
	for i := 0; i < 3; i++ {
		recorder := doJSON(t, engine, http.MethodPost, "/api/certificates/"+itoa(id)+"/view", nil, nil)
		if recorder.Code != http.StatusOK {
			t.Fatalf("track view %d: status %d", i, recorder.Code)
		}
		last = decodeBody(t, recorder)
	}
	if last["views"] != float64(3) {
		t.Fatalf("views = %v, want 3", last["views"])
	}
	if _, ok := last["lastViewed"]; !ok {
		t.Fatalf("track view response missing lastViewed")
	}

	// View tracking must not move updatedAt.
	recorder := doJSON(t, engine, http.MethodGet, "/api/certificates/"+itoa(id), nil, nil)
	body := decodeBody(t, recorder)
	if body["updatedAt"] != body["createdAt"] {
		t.Fatalf("view tracking moved updatedAt: %v != %v", body["updatedAt"], body["createdAt"])
	}
}

func TestTrackViewUnknownCertificate(t *testing.T) {
	engine, _ := setupAPITest(t)

	recorder := doJSON(t, engine, http.MethodPost, "/api/certificates/999/view", nil, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("unknown certificate view: status %d, want 404", recorder.Code)
	}
	recorder = doJSON(t, engine, http.MethodPost, "/api/certificates/abc/view", nil, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("malformed id view: status %d, want 400", recorder.Code)
	}
}
