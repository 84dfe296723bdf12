package services_test

import (
	"context"
	"database/sql"
	"testing"

	"studymate/internal/services"
)

func TestStudySetService_NotesKeepGenerationOrder(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	sets := services.NewStudySetService(conn)

	set, err := sets.CreateSet(ctx, "Cell Biology", sql.NullInt64{})
	if err != nil {
		t.Fatalf("create set: %v", err)
	}

	items := []services.NoteItem{
		{Title: "The cell membrane", Body: "A phospholipid bilayer."},
		{Title: "The nucleus", Body: "Stores genetic material."},
		{Title: "Mitochondria", Body: "Site of aerobic respiration."},
	}
	if err := sets.InsertNotes(ctx, set.ID, items); err != nil {
		t.Fatalf("insert notes: %v", err)
	}

	notes, err := sets.ListNotes(ctx, set.ID)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(notes) != len(items) {
		t.Fatalf("expected %d notes, got %d", len(items), len(notes))
	}
	for i, note := range notes {
		if note.Title != items[i].Title {
			t.Errorf("note %d: expected title %q, got %q", i, items[i].Title, note.Title)
		}
	}
}

func TestStudySetService_WrittenQuestions(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	sets := services.NewStudySetService(conn)

	set, err := sets.CreateSet(ctx, "Essay Practice", sql.NullInt64{})
	if err != nil {
		t.Fatalf("create set: %v", err)
	}

	items := []services.WrittenItem{
		{Question: "Explain osmosis.", ModelAnswer: "Diffusion of water across a membrane."},
	}
	if err := sets.InsertWritten(ctx, set.ID, items); err != nil {
		t.Fatalf("insert written questions: %v", err)
	}

	written, err := sets.ListWritten(ctx, set.ID)
	if err != nil {
		t.Fatalf("list written questions: %v", err)
	}
	if len(written) != 1 {
		t.Fatalf("expected 1 written question, got %d", len(written))
	}
	if written[0].Prompt != items[0].Question {
		t.Errorf("expected prompt %q, got %q", items[0].Question, written[0].Prompt)
	}
}

func TestStudySetService_GetSetMissing(t *testing.T) {
	conn := openTestDB(t)
	sets := services.NewStudySetService(conn)

	if _, err := sets.GetSet(context.Background(), 42); err == nil {
		t.Fatal("expected an error for a missing set")
	}
}
