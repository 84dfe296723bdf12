package services

import (
	"context"
	"database/sql"
	"fmt"

	"studymate/internal/models"
)

// ProgressCallback is called during document processing to report progress
type ProgressCallback func(step, message string, current, total int)

// IngestionService coordinates document parsing, AI generation and
// persistence: store upload, extract content, generate the requested
// material, save it under a new study set.
type IngestionService struct {
	documents *DocumentService
	ai        *AIService
	questions *QuestionService
	sets      *StudySetService
}

func NewIngestionService(
	documents *DocumentService,
	ai *AIService,
	questions *QuestionService,
	sets *StudySetService,
) *IngestionService {
	return &IngestionService{
		documents: documents,
		ai:        ai,
		questions: questions,
		sets:      sets,
	}
}

// GenerationSummary reports what one processed document produced.
type GenerationSummary struct {
	SetID     int64                 `json:"setId"`
	Kind      models.GenerationKind `json:"kind"`
	Questions int                   `json:"questions,omitempty"`
	Notes     int                   `json:"notes,omitempty"`
	Written   int                   `json:"written,omitempty"`
	Pages     int                   `json:"pages"`
}

// ProcessDocument runs the full pipeline for one uploaded document. A model
// response that yields no records produces an empty study set, not an error.
func (s *IngestionService) ProcessDocument(ctx context.Context, doc *models.Document, kind models.GenerationKind, opts GenerateOptions, progress ProgressCallback) (*GenerationSummary, error) {
	if s.ai == nil {
		return nil, ErrAIUnavailable
	}

	if progress != nil {
		progress("extract", "Extracting document content", 0, 100)
	}

	content, pages, err := s.ai.DocumentContent(ctx, doc, progress)
	if err != nil {
		return nil, err
	}
	if pages > 0 {
		if err := s.documents.UpdatePageCount(ctx, doc.ID, pages); err != nil {
			return nil, err
		}
	}

	set, err := s.sets.CreateSet(ctx, doc.OriginalName, sql.NullInt64{Valid: true, Int64: doc.ID})
	if err != nil {
		return nil, err
	}

	summary := &GenerationSummary{SetID: set.ID, Kind: kind, Pages: pages}

	if progress != nil {
		progress("generate", fmt.Sprintf("Generating %s", kind), 80, 100)
	}

	switch kind {
	case models.GenerateQuiz:
		items, err := s.ai.GenerateQuiz(ctx, content, opts)
		if err != nil {
			return nil, err
		}
		if err := s.questions.BulkInsertQuestions(ctx, set.ID, items); err != nil {
			return nil, fmt.Errorf("insert questions: %w", err)
		}
		summary.Questions = len(items)

	case models.GenerateNotes:
		items, err := s.ai.GenerateNotes(ctx, content, opts)
		if err != nil {
			return nil, err
		}
		if err := s.sets.InsertNotes(ctx, set.ID, items); err != nil {
			return nil, fmt.Errorf("insert notes: %w", err)
		}
		summary.Notes = len(items)

	case models.GenerateWritten:
		items, err := s.ai.GenerateWritten(ctx, content, opts)
		if err != nil {
			return nil, err
		}
		if err := s.sets.InsertWritten(ctx, set.ID, items); err != nil {
			return nil, fmt.Errorf("insert written questions: %w", err)
		}
		summary.Written = len(items)

	default:
		return nil, fmt.Errorf("unsupported generation kind: %s", kind)
	}

	if progress != nil {
		progress("complete", "Processing complete", 100, 100)
	}

	return summary, nil
}
