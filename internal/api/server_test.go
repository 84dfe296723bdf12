package api

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"studymate/internal/db"
	"studymate/internal/services"
)

func newTestServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	questions := services.NewQuestionService(conn)
	sets := services.NewStudySetService(conn)
	documents := services.NewDocumentService(conn, t.TempDir())
	ai := services.NewAIService("", "", "", "", "", "", nil)
	ingestion := services.NewIngestionService(documents, ai, questions, sets)
	tutor := services.NewTutorService(conn, ai, questions, sets)

	return NewServer(questions, sets, documents, ingestion, tutor), conn
}

func TestCreateChatMissingSetReturns404(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sets/999/chat", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a missing set, got %d (body %s)", rec.Code, rec.Body.String())
	}
}

func TestCreateChatExistingSet(t *testing.T) {
	server, conn := newTestServer(t)

	sets := services.NewStudySetService(conn)
	set, err := sets.CreateSet(context.Background(), "Electromagnetism", sql.NullInt64{})
	if err != nil {
		t.Fatalf("create set: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sets/"+strconv.FormatInt(set.ID, 10)+"/chat", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for an existing set, got %d (body %s)", rec.Code, rec.Body.String())
	}
}

func TestGetSetMissingReturns404(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sets/999", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a missing set, got %d (body %s)", rec.Code, rec.Body.String())
	}
}
