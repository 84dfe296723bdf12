package models

import (
	"database/sql"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"
)

type DocumentKind string

const (
	DocumentPDF   DocumentKind = "pdf"
	DocumentImage DocumentKind = "image"
)

type Document struct {
	ID           int64
	OriginalName string
	StoredPath   string
	Kind         DocumentKind
	PageCount    int
	UploadedAt   time.Time
}

// GenerationKind selects what the AI produces from an uploaded document.
type GenerationKind string

const (
	GenerateQuiz    GenerationKind = "quiz"
	GenerateNotes   GenerationKind = "notes"
	GenerateWritten GenerationKind = "written"
)

// StudySet groups the material generated from one document: quiz questions,
// notes and written questions all hang off a set, and tutor sessions are
// scoped to one.
type StudySet struct {
	ID               int64
	Title            string
	SourceDocumentID sql.NullInt64
	SourceName       sql.NullString
	CreatedAt        time.Time
}

// Question is one multiple-choice quiz question carrying FSRS scheduling
// state so answered questions come back for review at the right time.
type Question struct {
	ID            int64
	SetID         int64
	Prompt        string
	Options       []string
	Answer        string
	Explanation   string
	Due           sql.NullTime
	Stability     float64
	Difficulty    float64
	ElapsedDays   int
	ScheduledDays int
	Reps          int
	Lapses        int
	State         int
	LastReview    sql.NullTime
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Note struct {
	ID        int64
	SetID     int64
	Title     string
	Body      string
	Position  int
	CreatedAt time.Time
}

// WrittenQuestion is an open question with a model answer, for self-graded
// written practice.
type WrittenQuestion struct {
	ID          int64
	SetID       int64
	Prompt      string
	ModelAnswer string
	Position    int
	CreatedAt   time.Time
}

type ChatSession struct {
	ID        int64
	SetID     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ChatMessage struct {
	ID        int64
	SessionID int64
	Role      string
	Content   string
	CreatedAt time.Time
}

type ReviewLog struct {
	ID            int64
	QuestionID    int64
	Rating        int
	ScheduledDays int
	ElapsedDays   int
	State         int
	ReviewedAt    time.Time
}

func (q *Question) ToFSRSCard() fsrs.Card {
	card := fsrs.Card{
		Stability:     q.Stability,
		Difficulty:    q.Difficulty,
		ElapsedDays:   uint64(max(q.ElapsedDays, 0)),
		ScheduledDays: uint64(max(q.ScheduledDays, 0)),
		Reps:          uint64(max(q.Reps, 0)),
		Lapses:        uint64(max(q.Lapses, 0)),
		State:         fsrs.State(max(q.State, 0)),
	}
	if q.Due.Valid {
		card.Due = q.Due.Time
	}
	if q.LastReview.Valid {
		card.LastReview = q.LastReview.Time
	}
	return card
}

func (q *Question) ApplyFSRSCard(f fsrs.Card) {
	q.Due = sql.NullTime{Time: f.Due, Valid: !f.Due.IsZero()}
	q.Stability = f.Stability
	q.Difficulty = f.Difficulty
	q.ElapsedDays = int(f.ElapsedDays)
	q.ScheduledDays = int(f.ScheduledDays)
	q.Reps = int(f.Reps)
	q.Lapses = int(f.Lapses)
	q.State = int(f.State)
	q.LastReview = sql.NullTime{Time: f.LastReview, Valid: !f.LastReview.IsZero()}
}

func max[T ~int | ~int32 | ~int64](a, b T) T {
	if a > b {
		return a
	}
	return b
}
