package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"studymate/internal/models"
)

const tutorSystemPrompt = `You are a patient tutor helping a student work through their own study material.
Ground every answer in the material provided below. If the student asks about
something the material does not cover, say so instead of inventing content.
Use inline LaTeX (e.g. $\frac{1}{2}$) for all math. Keep answers short and
ask a guiding question back when the student seems stuck.`

const (
	maxTutorContextNotes     = 20
	maxTutorContextQuestions = 40
	maxTutorHistory          = 30
)

// TutorService runs conversational study sessions scoped to a study set.
// Replies are grounded in the set's questions and notes and sanitized
// before they are stored or returned.
type TutorService struct {
	db        *sql.DB
	ai        *AIService
	questions *QuestionService
	sets      *StudySetService
}

func NewTutorService(db *sql.DB, ai *AIService, questions *QuestionService, sets *StudySetService) *TutorService {
	return &TutorService{db: db, ai: ai, questions: questions, sets: sets}
}

func (s *TutorService) CreateSession(ctx context.Context, setID int64) (*models.ChatSession, error) {
	if _, err := s.sets.GetSet(ctx, setID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (set_id, created_at, updated_at)
		VALUES (?, ?, ?);
	`, setID, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert chat session: %w", err)
	}
	id, _ := res.LastInsertId()

	return &models.ChatSession{ID: id, SetID: setID, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *TutorService) GetSession(ctx context.Context, id int64) (*models.ChatSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, set_id, created_at, updated_at
		FROM chat_sessions WHERE id = ?;
	`, id)
	var session models.ChatSession
	if err := row.Scan(&session.ID, &session.SetID, &session.CreatedAt, &session.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("chat session %d not found", id)
		}
		return nil, fmt.Errorf("scan chat session: %w", err)
	}
	return &session, nil
}

func (s *TutorService) ListMessages(ctx context.Context, sessionID int64) ([]models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC;
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return messages, nil
}

// Send records the student's message, asks the model for a grounded reply
// and records that too. Both messages are returned in stored form.
func (s *TutorService) Send(ctx context.Context, sessionID int64, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message is empty")
	}

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	history, err := s.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(history) > maxTutorHistory {
		history = history[len(history)-maxTutorHistory:]
	}

	material, err := s.buildMaterialContext(ctx, session.SetID)
	if err != nil {
		return nil, err
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+3)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: tutorSystemPrompt + "\n\nStudy material:\n" + material,
	})
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	reply, err := s.ai.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reply) == "" {
		reply = "I don't have a useful answer to that. Could you rephrase the question?"
	}

	if err := s.storeMessage(ctx, sessionID, "user", text); err != nil {
		return nil, err
	}
	stored, err := s.storeReply(ctx, sessionID, reply)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *TutorService) storeMessage(ctx context.Context, sessionID int64, role, content string) error {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, role, content, created_at)
		VALUES (?, ?, ?, ?);
	`, sessionID, role, content, now); err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE chat_sessions SET updated_at = ? WHERE id = ?;
	`, now, sessionID); err != nil {
		return fmt.Errorf("touch chat session: %w", err)
	}
	return nil
}

func (s *TutorService) storeReply(ctx context.Context, sessionID int64, content string) (*models.ChatMessage, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, role, content, created_at)
		VALUES (?, 'assistant', ?, ?);
	`, sessionID, content, now)
	if err != nil {
		return nil, fmt.Errorf("insert assistant message: %w", err)
	}
	id, _ := res.LastInsertId()
	return &models.ChatMessage{
		ID:        id,
		SessionID: sessionID,
		Role:      "assistant",
		Content:   content,
		CreatedAt: now,
	}, nil
}

// buildMaterialContext summarizes the set's notes and questions into prompt
// context for the tutor.
func (s *TutorService) buildMaterialContext(ctx context.Context, setID int64) (string, error) {
	notes, err := s.sets.ListNotes(ctx, setID)
	if err != nil {
		return "", err
	}
	questions, err := s.questions.ListBySet(ctx, setID)
	if err != nil {
		return "", err
	}
	written, err := s.sets.ListWritten(ctx, setID)
	if err != nil {
		return "", err
	}

	if len(notes) == 0 && len(questions) == 0 && len(written) == 0 {
		return "No material has been generated for this study set yet.", nil
	}

	var builder strings.Builder
	if len(notes) > 0 {
		builder.WriteString("Notes:\n")
		for i, note := range notes {
			if i >= maxTutorContextNotes {
				builder.WriteString("- (additional notes omitted)\n")
				break
			}
			builder.WriteString("## " + note.Title + "\n" + note.Body + "\n")
		}
	}
	if len(questions) > 0 {
		builder.WriteString("\nQuiz questions already generated:\n")
		for i, q := range questions {
			if i >= maxTutorContextQuestions {
				builder.WriteString("- (additional questions omitted)\n")
				break
			}
			builder.WriteString(fmt.Sprintf("- Q: %s | A: %s\n", sanitizeForPrompt(q.Prompt, 200), sanitizeForPrompt(q.Answer, 120)))
		}
	}
	if len(written) > 0 {
		builder.WriteString("\nWritten practice questions:\n")
		for i, q := range written {
			if i >= maxTutorContextQuestions {
				builder.WriteString("- (additional questions omitted)\n")
				break
			}
			builder.WriteString(fmt.Sprintf("- Q: %s | Model answer: %s\n", sanitizeForPrompt(q.Prompt, 200), sanitizeForPrompt(q.ModelAnswer, 200)))
		}
	}

	return builder.String(), nil
}
