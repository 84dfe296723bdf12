package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"studymate/internal/models"
)

// StudySetService persists study sets and the note and written-question
// material generated into them.
type StudySetService struct {
	db *sql.DB
}

func NewStudySetService(db *sql.DB) *StudySetService {
	return &StudySetService{db: db}
}

func (s *StudySetService) CreateSet(ctx context.Context, title string, documentID sql.NullInt64) (*models.StudySet, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO study_sets (title, source_document_id, created_at)
		VALUES (?, ?, ?);
	`, title, nullInt64Ptr(documentID), now)
	if err != nil {
		return nil, fmt.Errorf("insert study set: %w", err)
	}
	id, _ := res.LastInsertId()

	return &models.StudySet{
		ID:               id,
		Title:            title,
		SourceDocumentID: documentID,
		CreatedAt:        now,
	}, nil
}

func (s *StudySetService) GetSet(ctx context.Context, id int64) (*models.StudySet, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.title, s.source_document_id, d.original_name, s.created_at
		FROM study_sets s
		LEFT JOIN documents d ON s.source_document_id = d.id
		WHERE s.id = ?;
	`, id)
	var set models.StudySet
	if err := row.Scan(&set.ID, &set.Title, &set.SourceDocumentID, &set.SourceName, &set.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("study set %d not found", id)
		}
		return nil, fmt.Errorf("scan study set: %w", err)
	}
	return &set, nil
}

func (s *StudySetService) ListSets(ctx context.Context, limit int) ([]models.StudySet, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.title, s.source_document_id, d.original_name, s.created_at
		FROM study_sets s
		LEFT JOIN documents d ON s.source_document_id = d.id
		ORDER BY s.created_at DESC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list study sets: %w", err)
	}
	defer rows.Close()

	var sets []models.StudySet
	for rows.Next() {
		var set models.StudySet
		if err := rows.Scan(&set.ID, &set.Title, &set.SourceDocumentID, &set.SourceName, &set.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan study set: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate study sets: %w", err)
	}
	return sets, nil
}

// InsertNotes stores generated notes under a set, keeping generation order.
func (s *StudySetService) InsertNotes(ctx context.Context, setID int64, items []NoteItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notes (set_id, title, body, position, created_at)
		VALUES (?, ?, ?, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("prepare note insert: %w", err)
	}
	defer stmt.Close()

	for i, item := range items {
		if _, err = stmt.ExecContext(ctx, setID, item.Title, item.Body, i, now); err != nil {
			return fmt.Errorf("insert note %q: %w", item.Title, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit notes: %w", err)
	}
	return nil
}

func (s *StudySetService) ListNotes(ctx context.Context, setID int64) ([]models.Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, set_id, title, body, position, created_at
		FROM notes
		WHERE set_id = ?
		ORDER BY position ASC, id ASC;
	`, setID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		var note models.Note
		if err := rows.Scan(&note.ID, &note.SetID, &note.Title, &note.Body, &note.Position, &note.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

// InsertWritten stores generated written questions under a set.
func (s *StudySetService) InsertWritten(ctx context.Context, setID int64, items []WrittenItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO written_questions (set_id, prompt, model_answer, position, created_at)
		VALUES (?, ?, ?, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("prepare written insert: %w", err)
	}
	defer stmt.Close()

	for i, item := range items {
		if _, err = stmt.ExecContext(ctx, setID, item.Question, item.ModelAnswer, i, now); err != nil {
			return fmt.Errorf("insert written question %q: %w", item.Question, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit written questions: %w", err)
	}
	return nil
}

func (s *StudySetService) ListWritten(ctx context.Context, setID int64) ([]models.WrittenQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, set_id, prompt, model_answer, position, created_at
		FROM written_questions
		WHERE set_id = ?
		ORDER BY position ASC, id ASC;
	`, setID)
	if err != nil {
		return nil, fmt.Errorf("list written questions: %w", err)
	}
	defer rows.Close()

	var questions []models.WrittenQuestion
	for rows.Next() {
		var q models.WrittenQuestion
		if err := rows.Scan(&q.ID, &q.SetID, &q.Prompt, &q.ModelAnswer, &q.Position, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan written question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate written questions: %w", err)
	}
	return questions, nil
}

func nullInt64Ptr(v sql.NullInt64) any {
	if v.Valid {
		return v.Int64
	}
	return nil
}
