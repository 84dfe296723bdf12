package services_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"studymate/internal/db"
	"studymate/internal/services"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func seedSet(t *testing.T, conn *sql.DB, items []services.QuizItem) int64 {
	t.Helper()
	ctx := context.Background()
	sets := services.NewStudySetService(conn)
	set, err := sets.CreateSet(ctx, "Thermodynamics", sql.NullInt64{})
	if err != nil {
		t.Fatalf("create set: %v", err)
	}
	questions := services.NewQuestionService(conn)
	if err := questions.BulkInsertQuestions(ctx, set.ID, items); err != nil {
		t.Fatalf("insert questions: %v", err)
	}
	return set.ID
}

func TestQuestionService_ReviewCycle(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	questions := services.NewQuestionService(conn)

	setID := seedSet(t, conn, []services.QuizItem{
		{
			Question:    "What is the first law of thermodynamics?",
			Options:     []string{"Energy is conserved", "Entropy always decreases"},
			Answer:      "Energy is conserved",
			Explanation: "Energy can change form but the total stays constant.",
		},
		{
			Question: "What is absolute zero in Celsius?",
			Options:  []string{"-273.15", "0"},
			Answer:   "-273.15",
		},
	})

	start := time.Now().UTC()

	q, err := questions.NextDue(ctx, setID)
	if err != nil {
		t.Fatalf("next due: %v", err)
	}
	if q == nil {
		t.Fatal("expected a due question, got nil")
	}
	if len(q.Options) != 2 {
		t.Fatalf("expected 2 options, got %d", len(q.Options))
	}

	t.Run("CorrectAnswerReschedules", func(t *testing.T) {
		result, err := questions.SubmitAnswer(ctx, q.ID, "  "+q.Answer+" ")
		if err != nil {
			t.Fatalf("submit answer: %v", err)
		}
		if !result.Correct {
			t.Error("expected answer to be graded correct")
		}
		if result.CorrectAnswer != q.Answer {
			t.Errorf("unexpected correct answer %q", result.CorrectAnswer)
		}
		if !result.Due.Valid {
			t.Fatal("expected a new due time")
		}
		if !result.Due.Time.After(start) {
			t.Errorf("expected due after %v, got %v", start, result.Due.Time)
		}
	})

	t.Run("WrongAnswerKeepsQuestionClose", func(t *testing.T) {
		next, err := questions.NextDue(ctx, setID)
		if err != nil {
			t.Fatalf("next due: %v", err)
		}
		if next.ID == q.ID {
			t.Fatal("expected the other question to come up next")
		}

		result, err := questions.SubmitAnswer(ctx, next.ID, "definitely wrong")
		if err != nil {
			t.Fatalf("submit answer: %v", err)
		}
		if result.Correct {
			t.Error("expected answer to be graded incorrect")
		}
		if result.CorrectAnswer != next.Answer {
			t.Errorf("unexpected correct answer %q", result.CorrectAnswer)
		}
	})

	t.Run("StatsCountReviews", func(t *testing.T) {
		stats, err := questions.Stats(ctx, setID)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats["total"] != 2 {
			t.Errorf("expected total 2, got %d", stats["total"])
		}
		if stats["new"] != 0 {
			t.Errorf("expected no unseen questions after reviewing both, got %d", stats["new"])
		}
	})
}

func TestQuestionService_NextDueEmptySet(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	sets := services.NewStudySetService(conn)
	set, err := sets.CreateSet(ctx, "Empty", sql.NullInt64{})
	if err != nil {
		t.Fatalf("create set: %v", err)
	}

	questions := services.NewQuestionService(conn)
	if _, err := questions.NextDue(ctx, set.ID); err != services.ErrNoDueQuestions {
		t.Fatalf("expected ErrNoDueQuestions, got %v", err)
	}
}

func TestAnswerMatches(t *testing.T) {
	cases := []struct {
		selected string
		answer   string
		want     bool
	}{
		{"6", "6", true},
		{" 6 ", "6", true},
		{"Mitochondria", "mitochondria", true},
		{"5", "6", false},
		{"", "6", false},
	}
	for _, tc := range cases {
		if got := services.AnswerMatches(tc.selected, tc.answer); got != tc.want {
			t.Errorf("AnswerMatches(%q, %q) = %v, want %v", tc.selected, tc.answer, got, tc.want)
		}
	}
}
