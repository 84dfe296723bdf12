package services_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"studymate/internal/models"
	"studymate/internal/services"
)

func TestKindForFilename(t *testing.T) {
	cases := []struct {
		name    string
		want    models.DocumentKind
		wantErr bool
	}{
		{"lecture.pdf", models.DocumentPDF, false},
		{"Lecture.PDF", models.DocumentPDF, false},
		{"whiteboard.png", models.DocumentImage, false},
		{"notes.jpeg", models.DocumentImage, false},
		{"scan.webp", models.DocumentImage, false},
		{"syllabus.docx", "", true},
		{"no-extension", "", true},
	}

	for _, tc := range cases {
		kind, err := services.KindForFilename(tc.name)
		if tc.wantErr {
			if err == nil {
				t.Errorf("KindForFilename(%q): expected error, got %q", tc.name, kind)
			}
			continue
		}
		if err != nil {
			t.Errorf("KindForFilename(%q): %v", tc.name, err)
			continue
		}
		if kind != tc.want {
			t.Errorf("KindForFilename(%q) = %q, want %q", tc.name, kind, tc.want)
		}
	}
}

func TestDocumentService_CreateStoresFile(t *testing.T) {
	conn := openTestDB(t)
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	documents := services.NewDocumentService(conn, uploadDir)

	doc, err := documents.Create(context.Background(), "whiteboard.png", strings.NewReader("fake image bytes"))
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	if doc.Kind != models.DocumentImage {
		t.Errorf("expected kind image, got %q", doc.Kind)
	}
	if filepath.Ext(doc.StoredPath) != ".png" {
		t.Errorf("expected stored path to keep the extension, got %q", doc.StoredPath)
	}

	data, err := os.ReadFile(doc.StoredPath)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "fake image bytes" {
		t.Errorf("stored file content mismatch: %q", data)
	}

	loaded, err := documents.GetByID(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if loaded.OriginalName != "whiteboard.png" {
		t.Errorf("expected original name to be preserved, got %q", loaded.OriginalName)
	}
}

func TestDocumentService_CreateRejectsUnknownType(t *testing.T) {
	conn := openTestDB(t)
	documents := services.NewDocumentService(conn, t.TempDir())

	if _, err := documents.Create(context.Background(), "malware.exe", strings.NewReader("")); err == nil {
		t.Fatal("expected an error for an unsupported file type")
	}
}
