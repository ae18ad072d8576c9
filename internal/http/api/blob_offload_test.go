package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/certfolio/certfolio/internal/models"
)

// memBlobStore is an in-memory blob.Store for exercising the offload paths.
type memBlobStore struct {
	objects map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: map[string][]byte{}}
}

func (m *memBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (m *memBlobStore) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func TestOffloadedFileRoundTrip(t *testing.T) {
	store := newMemBlobStore()
	engine, db := setupAPITestWithBlobs(t, store)
	cookie := login(t, engine)
	payload := []byte("offloaded payload")

	id := createCertificate(t, engine, cookie, map[string]any{
		"title": "Offloaded", "issuer": "Issuer",
		"dateIssued": "2024-01-01", "category": "misc", "isPublic": true,
	}, "scan.pdf", "application/pdf", payload)

	if len(store.objects) != 1 {
		t.Fatalf("expected 1 stored object, got %d", len(store.objects))
	}
	var cert models.Certificate
	if errFind := db.First(&cert, id).Error; errFind != nil {
		t.Fatalf("load certificate: %v", errFind)
	}
	if cert.FileKey == "" {
		t.Fatalf("expected object key on the row")
	}
	if len(cert.FileData) != 0 {
		t.Fatalf("offloaded payload must not stay inline")
	}

	recorder := getFile(t, engine, id, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("serve offloaded file: status %d: %s", recorder.Code, recorder.Body.String())
	}
	if recorder.Body.String() != string(payload) {
		t.Fatalf("payload mismatch: %q", recorder.Body.String())
	}

	recorder = doJSON(t, engine, http.MethodDelete, "/api/certificates/"+itoa(id), nil, cookie)
	if recorder.Code != http.StatusOK {
		t.Fatalf("delete: status %d", recorder.Code)
	}
	if len(store.objects) != 0 {
		t.Fatalf("delete left %d orphaned objects", len(store.objects))
	}
}

func TestOffloadedCreateFailureDropsObject(t *testing.T) {
	store := newMemBlobStore()
	engine, db := setupAPITestWithBlobs(t, store)
	cookie := login(t, engine)

	// Force the row insert to fail after the object is written.
	if errDrop := db.Migrator().DropTable(&models.Certificate{}); errDrop != nil {
		t.Fatalf("drop table: %v", errDrop)
	}

	req := multipartRequest(t, http.MethodPost, "/api/certificates", map[string]any{
		"title": "Doomed", "issuer": "Issuer",
		"dateIssued": "2024-01-01", "category": "misc",
	}, "scan.pdf", "application/pdf", []byte("payload"))
	req.AddCookie(cookie)
	recorder := serve(engine, req)
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("create on dropped table: status %d, want 500", recorder.Code)
	}
	if len(store.objects) != 0 {
		t.Fatalf("failed create left %d orphaned objects", len(store.objects))
	}
}
