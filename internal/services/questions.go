package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"studymate/internal/models"
)

var (
	// ErrNoDueQuestions indicates that there are no questions ready to review.
	ErrNoDueQuestions = errors.New("no due questions")
)

// QuestionService orchestrates quiz question persistence and FSRS review
// scheduling: a correct answer rates Good, a wrong one Again.
type QuestionService struct {
	db     *sql.DB
	params fsrs.Parameters
}

func NewQuestionService(db *sql.DB) *QuestionService {
	params := fsrs.DefaultParam()
	return &QuestionService{db: db, params: params}
}

// AnswerResult reports the outcome of one submitted answer.
type AnswerResult struct {
	Correct       bool
	CorrectAnswer string
	Explanation   string
	Due           sql.NullTime
	ScheduledDays int
}

// NextDue returns the next question due for review in a set. Priority:
// due questions first, then the oldest unseen question.
func (s *QuestionService) NextDue(ctx context.Context, setID int64) (*models.Question, error) {
	now := time.Now().UTC()

	q, err := s.fetchQuestion(ctx, `
		SELECT id, set_id, prompt, options, answer, explanation,
		       due, stability, difficulty, elapsed_days, scheduled_days,
		       reps, lapses, state, last_review, created_at, updated_at
		FROM questions
		WHERE set_id = ? AND due IS NOT NULL AND due <= ?
		ORDER BY due ASC
		LIMIT 1;
	`, setID, now)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	q, err = s.fetchQuestion(ctx, `
		SELECT id, set_id, prompt, options, answer, explanation,
		       due, stability, difficulty, elapsed_days, scheduled_days,
		       reps, lapses, state, last_review, created_at, updated_at
		FROM questions
		WHERE set_id = ?
		ORDER BY due IS NULL DESC, created_at ASC
		LIMIT 1;
	`, setID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoDueQuestions
		}
		return nil, err
	}
	return q, nil
}

func (s *QuestionService) fetchQuestion(ctx context.Context, query string, args ...any) (*models.Question, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	return scanQuestion(row.Scan)
}

func scanQuestion(scan func(...any) error) (*models.Question, error) {
	q := &models.Question{}
	var options string
	if err := scan(
		&q.ID,
		&q.SetID,
		&q.Prompt,
		&options,
		&q.Answer,
		&q.Explanation,
		&q.Due,
		&q.Stability,
		&q.Difficulty,
		&q.ElapsedDays,
		&q.ScheduledDays,
		&q.Reps,
		&q.Lapses,
		&q.State,
		&q.LastReview,
		&q.CreatedAt,
		&q.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		q.Options = nil
	}
	return q, nil
}

// SubmitAnswer grades the selected option against the stored answer and
// reschedules the question.
func (s *QuestionService) SubmitAnswer(ctx context.Context, questionID int64, selected string) (*AnswerResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `
		SELECT id, set_id, prompt, options, answer, explanation,
		       due, stability, difficulty, elapsed_days, scheduled_days,
		       reps, lapses, state, last_review, created_at, updated_at
		FROM questions
		WHERE id = ?;
	`, questionID)
	q, err := scanQuestion(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("load question %d: %w", questionID, err)
	}

	correct := AnswerMatches(selected, q.Answer)
	rating := fsrs.Again
	if correct {
		rating = fsrs.Good
	}

	now := time.Now().UTC()
	scheduling := s.params.Repeat(q.ToFSRSCard(), now)
	info, ok := scheduling[rating]
	if !ok {
		err = fmt.Errorf("rating %d not supported", rating)
		return nil, err
	}
	q.ApplyFSRSCard(info.Card)
	q.UpdatedAt = now

	if _, err = tx.ExecContext(ctx, `
		UPDATE questions
		SET due = ?, stability = ?, difficulty = ?, elapsed_days = ?, scheduled_days = ?,
		    reps = ?, lapses = ?, state = ?, last_review = ?, updated_at = ?
		WHERE id = ?;
	`,
		nullTimePtr(q.Due),
		q.Stability,
		q.Difficulty,
		q.ElapsedDays,
		q.ScheduledDays,
		q.Reps,
		q.Lapses,
		q.State,
		nullTimePtr(q.LastReview),
		q.UpdatedAt,
		q.ID,
	); err != nil {
		return nil, fmt.Errorf("update question %d: %w", q.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO review_logs (question_id, rating, scheduled_days, elapsed_days, state, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, q.ID, info.ReviewLog.Rating, info.ReviewLog.ScheduledDays, info.ReviewLog.ElapsedDays, info.ReviewLog.State, now); err != nil {
		return nil, fmt.Errorf("insert review log: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit review: %w", err)
	}

	return &AnswerResult{
		Correct:       correct,
		CorrectAnswer: q.Answer,
		Explanation:   q.Explanation,
		Due:           q.Due,
		ScheduledDays: int(info.ReviewLog.ScheduledDays),
	}, nil
}

// AnswerMatches compares a submitted answer against the stored one,
// ignoring surrounding whitespace and letter case.
func AnswerMatches(selected, answer string) bool {
	return strings.EqualFold(strings.TrimSpace(selected), strings.TrimSpace(answer))
}

// BulkInsertQuestions stores freshly generated questions under a study set,
// due immediately so they enter the review queue.
func (s *QuestionService) BulkInsertQuestions(ctx context.Context, setID int64, items []QuizItem) error {
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
		INSERT INTO questions (set_id, prompt, options, answer, explanation, due, stability, difficulty,
		                       elapsed_days, scheduled_days, reps, lapses, state, last_review, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, 0, 0, 0, ?, NULL, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("prepare question insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		options, merr := json.Marshal(item.Options)
		if merr != nil {
			options = []byte("[]")
		}
		if _, err = stmt.ExecContext(ctx,
			setID,
			item.Question,
			string(options),
			item.Answer,
			item.Explanation,
			now,
			int(fsrs.New),
			now,
			now,
		); err != nil {
			return fmt.Errorf("insert question %q: %w", item.Question, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk insert: %w", err)
	}
	return nil
}

// ListBySet returns all questions of a study set in creation order.
func (s *QuestionService) ListBySet(ctx context.Context, setID int64) ([]models.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, set_id, prompt, options, answer, explanation,
		       due, stability, difficulty, elapsed_days, scheduled_days,
		       reps, lapses, state, last_review, created_at, updated_at
		FROM questions
		WHERE set_id = ?
		ORDER BY created_at ASC, id ASC;
	`, setID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}

// Stats returns review statistics for a study set.
func (s *QuestionService) Stats(ctx context.Context, setID int64) (map[string]int, error) {
	now := time.Now().UTC()
	stats := make(map[string]int)

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM questions WHERE set_id = ?;", setID).Scan(&total); err != nil {
		return nil, fmt.Errorf("get total questions count: %w", err)
	}
	stats["total"] = total

	var due int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM questions WHERE set_id = ? AND due IS NOT NULL AND due <= ?;",
		setID, now).Scan(&due); err != nil {
		return nil, fmt.Errorf("get due questions count: %w", err)
	}
	stats["due"] = due

	var fresh int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM questions WHERE set_id = ? AND state = 0;", setID).Scan(&fresh); err != nil {
		return nil, fmt.Errorf("get new questions count: %w", err)
	}
	stats["new"] = fresh

	var learning int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM questions WHERE set_id = ? AND state = 1;", setID).Scan(&learning); err != nil {
		return nil, fmt.Errorf("get learning questions count: %w", err)
	}
	stats["learning"] = learning

	var review int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM questions WHERE set_id = ? AND state = 2;", setID).Scan(&review); err != nil {
		return nil, fmt.Errorf("get review questions count: %w", err)
	}
	stats["review"] = review

	return stats, nil
}

func nullTimePtr(t sql.NullTime) any {
	if t.Valid {
		return t.Time
	}
	return nil
}
