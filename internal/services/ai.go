package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"studymate/internal/modelout"
	"studymate/internal/models"
)

var (
	// ErrAIUnavailable is returned when the OpenAI integration is not configured.
	ErrAIUnavailable = errors.New("openai integration is not configured")
)

type AIService struct {
	client *openai.Client
	model  string
	vision *VisionService // direct vision API client for images and scanned PDFs
	pdf    *PDFService
}

func NewAIService(apiKey string, model string, apiEndpoint string, visionKey string, visionBaseURL string, visionModel string, pdfService *PDFService) *AIService {
	if apiKey == "" && visionKey == "" {
		return &AIService{}
	}

	var client *openai.Client
	if apiKey != "" {
		cfg := openai.DefaultConfig(apiKey)
		if apiEndpoint != "" {
			cfg.BaseURL = apiEndpoint
		}
		client = openai.NewClientWithConfig(cfg)
	}

	var vision *VisionService
	if visionKey != "" {
		vision = NewVisionService(visionKey, visionBaseURL, visionModel)
	}

	return &AIService{
		client: client,
		model:  model,
		vision: vision,
		pdf:    pdfService,
	}
}

// QuizItem is one multiple-choice question as decoded from model output.
type QuizItem struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}

// NoteItem is one study note as decoded from model output.
type NoteItem struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// WrittenItem is one open written question with its model answer.
type WrittenItem struct {
	Question    string `json:"question"`
	ModelAnswer string `json:"model_answer"`
}

// GenerateOptions tunes a generation call.
type GenerateOptions struct {
	Count int    // how many items to ask for; 0 picks a default per kind
	Focus string // optional topic emphasis from the user
}

func (s *AIService) disabled() bool {
	return s.client == nil || s.model == ""
}

// minimum extracted characters before we trust the text path; below this a
// PDF is treated as scanned and sent through the vision pipeline.
const minTextLength = 200

// DocumentContent extracts study material from an uploaded document: plain
// text for text PDFs, vision analysis for images and scanned PDFs. Returns
// the content and the page count.
func (s *AIService) DocumentContent(ctx context.Context, doc *models.Document, progress ProgressCallback) (string, int, error) {
	switch doc.Kind {
	case models.DocumentImage:
		if s.vision == nil {
			return "", 0, fmt.Errorf("image uploads require the vision API")
		}
		if progress != nil {
			progress("analyze", "Analyzing image", 10, 100)
		}
		uri, err := ImageDataURI(doc.StoredPath)
		if err != nil {
			return "", 0, err
		}
		analysis, err := s.vision.AnalyzeImage(ctx, uri, visionExtractPrompt)
		if err != nil {
			return "", 0, fmt.Errorf("analyze image: %w", err)
		}
		return analysis, 1, nil

	case models.DocumentPDF:
		text, pages, err := s.pdf.ExtractText(doc.StoredPath)
		if err == nil && len(text) >= minTextLength {
			return text, pages, nil
		}
		if s.vision == nil {
			if err != nil {
				return "", 0, fmt.Errorf("extract pdf text: %w", err)
			}
			return "", pages, fmt.Errorf("pdf has too little extractable text and no vision API is configured")
		}
		return s.analyzePDFWithVision(ctx, doc.StoredPath, progress)

	default:
		return "", 0, fmt.Errorf("unsupported document kind: %s", doc.Kind)
	}
}

const visionExtractPrompt = `Analyze these pages and extract all educational content: facts, definitions,
concepts, worked examples and formulas. Return your analysis as detailed text
describing everything a student would need to study from the pages shown.`

// analyzePDFWithVision renders PDF pages to images and analyzes them in
// batches through the vision API.
func (s *AIService) analyzePDFWithVision(ctx context.Context, pdfPath string, progress ProgressCallback) (string, int, error) {
	fmt.Fprintf(os.Stderr, "Converting PDF to images for vision analysis...\n")

	if progress != nil {
		progress("convert", "Converting PDF to images", 0, 100)
	}

	pages, err := s.pdf.ConvertPDFPagesToImages(pdfPath)
	if err != nil {
		return "", 0, fmt.Errorf("convert pdf to images: %w", err)
	}
	if len(pages) == 0 {
		return "", 0, fmt.Errorf("no pages extracted from pdf")
	}

	if progress != nil {
		progress("analyze", fmt.Sprintf("Analyzing %d pages", len(pages)), 10, 100)
	}

	fmt.Fprintf(os.Stderr, "Processing %d pages with vision API (batched)...\n", len(pages))

	// Small batches keep payloads under the API limits.
	batchSize := 2

	type batch struct {
		start       int
		end         int
		imageURIs   []string
		pageNumbers []int
	}

	var batches []batch
	for i := 0; i < len(pages); i += batchSize {
		end := i + batchSize
		if end > len(pages) {
			end = len(pages)
		}
		batchPages := pages[i:end]

		imageURIs := make([]string, len(batchPages))
		pageNumbers := make([]int, len(batchPages))
		for j, page := range batchPages {
			imageURIs[j] = page.ImageData
			pageNumbers[j] = page.PageNumber
		}

		batches = append(batches, batch{
			start:       i + 1,
			end:         end,
			imageURIs:   imageURIs,
			pageNumbers: pageNumbers,
		})
	}

	type result struct {
		index    int
		analysis string
		err      error
	}

	results := make([]result, len(batches))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var completed int
	semaphore := make(chan struct{}, 10) // Max 10 concurrent API calls

	for i, b := range batches {
		wg.Add(1)
		go func(idx int, bt batch) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			fmt.Fprintf(os.Stderr, "Analyzing pages %d-%d/%d...\n", bt.start, bt.end, len(pages))

			if progress != nil {
				pct := 10 + (70 * (bt.start - 1) / len(pages))
				progress("analyze", fmt.Sprintf("Analyzing pages %d-%d of %d", bt.start, bt.end, len(pages)), pct, 100)
			}

			analysis, err := s.vision.AnalyzeMultipleImages(ctx, bt.imageURIs, visionExtractPrompt)
			if err != nil {
				results[idx] = result{idx, "", fmt.Errorf("analyze pages %d-%d with vision: %w", bt.start, bt.end, err)}
				return
			}

			pageRange := fmt.Sprintf("Pages %d-%d", bt.pageNumbers[0], bt.pageNumbers[len(bt.pageNumbers)-1])
			results[idx] = result{idx, fmt.Sprintf("=== %s ===\n%s", pageRange, analysis), nil}

			mu.Lock()
			completed++
			if progress != nil {
				pct := 10 + (70 * bt.end / len(pages))
				progress("analyze", fmt.Sprintf("Completed pages %d-%d of %d", bt.start, bt.end, len(pages)), pct, 100)
			}
			mu.Unlock()
		}(i, b)
	}

	wg.Wait()

	var pageAnalyses []string
	for _, res := range results {
		if res.err != nil {
			return "", 0, res.err
		}
		pageAnalyses = append(pageAnalyses, res.analysis)
	}

	return strings.Join(pageAnalyses, "\n\n"), len(pages), nil
}

const quizSystemPrompt = "You are an expert educator who writes exam-quality multiple-choice questions from study material."

// GenerateQuiz asks the model for multiple-choice questions over the
// extracted document content. Truncated or malformed responses degrade to
// fewer (possibly zero) items rather than an error.
func (s *AIService) GenerateQuiz(ctx context.Context, content string, opts GenerateOptions) ([]QuizItem, error) {
	if s.disabled() {
		return nil, ErrAIUnavailable
	}

	count := opts.Count
	if count <= 0 {
		count = 10
	}

	instruction := fmt.Sprintf(`Strictly respond with a JSON array of question objects:
[{"question":"","options":["","","",""],"answer":"","explanation":""}]
Write %d questions. "answer" must be one of "options" verbatim. Use inline LaTeX
(e.g. $\frac{1}{2}$) for all math. Questions must be answerable from the material alone.`, count)

	raw, err := s.complete(ctx, quizSystemPrompt, instruction, opts.Focus, content, 0.4)
	if err != nil {
		return nil, err
	}

	items := modelout.Decode[QuizItem](raw)
	out := make([]QuizItem, 0, len(items))
	for _, item := range items {
		item.Question = modelout.Sanitize(strings.TrimSpace(item.Question))
		item.Answer = modelout.Sanitize(strings.TrimSpace(item.Answer))
		item.Explanation = modelout.Sanitize(strings.TrimSpace(item.Explanation))
		for i, opt := range item.Options {
			item.Options[i] = modelout.Sanitize(strings.TrimSpace(opt))
		}
		if item.Question == "" || item.Answer == "" {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

const notesSystemPrompt = "You are a tutor who condenses study material into clear, structured revision notes."

// GenerateNotes asks the model for study notes over the extracted content.
func (s *AIService) GenerateNotes(ctx context.Context, content string, opts GenerateOptions) ([]NoteItem, error) {
	if s.disabled() {
		return nil, ErrAIUnavailable
	}

	count := opts.Count
	if count <= 0 {
		count = 6
	}

	instruction := fmt.Sprintf(`Strictly respond with a JSON array of note objects:
[{"title":"","body":""}]
Write at most %d notes, one per major topic. Bodies use Markdown with inline
LaTeX for math. Each note must stand alone as revision material.`, count)

	raw, err := s.complete(ctx, notesSystemPrompt, instruction, opts.Focus, content, 0.4)
	if err != nil {
		return nil, err
	}

	items := modelout.Decode[NoteItem](raw)
	out := make([]NoteItem, 0, len(items))
	for _, item := range items {
		item.Title = modelout.Sanitize(strings.TrimSpace(item.Title))
		item.Body = modelout.Sanitize(strings.TrimSpace(item.Body))
		if item.Title == "" || item.Body == "" {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

const writtenSystemPrompt = "You are an examiner who writes open questions with model answers for written practice."

// GenerateWritten asks the model for open written questions with model
// answers over the extracted content.
func (s *AIService) GenerateWritten(ctx context.Context, content string, opts GenerateOptions) ([]WrittenItem, error) {
	if s.disabled() {
		return nil, ErrAIUnavailable
	}

	count := opts.Count
	if count <= 0 {
		count = 5
	}

	instruction := fmt.Sprintf(`Strictly respond with a JSON array of question objects:
[{"question":"","model_answer":""}]
Write %d open questions that require a written answer of a few sentences.
Model answers must be complete enough to self-grade against. Use inline LaTeX
for all math.`, count)

	raw, err := s.complete(ctx, writtenSystemPrompt, instruction, opts.Focus, content, 0.5)
	if err != nil {
		return nil, err
	}

	items := modelout.Decode[WrittenItem](raw)
	out := make([]WrittenItem, 0, len(items))
	for _, item := range items {
		item.Question = modelout.Sanitize(strings.TrimSpace(item.Question))
		item.ModelAnswer = modelout.Sanitize(strings.TrimSpace(item.ModelAnswer))
		if item.Question == "" || item.ModelAnswer == "" {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// Chat runs one chat completion over an already-built message history and
// returns the sanitized reply. Used by the tutor.
func (s *AIService) Chat(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	if s.disabled() {
		return "", ErrAIUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: 0.6,
		MaxTokens:   2048,
	})
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	return modelout.Sanitize(strings.TrimSpace(resp.Choices[0].Message.Content)), nil
}

// complete runs one generation call over document content and returns the
// raw response text for the caller to recover records from.
func (s *AIService) complete(ctx context.Context, system, instruction, focus, content string, temperature float32) (string, error) {
	var builder strings.Builder
	builder.WriteString(instruction)
	if strings.TrimSpace(focus) != "" {
		builder.WriteString("\n\nFocus on: " + sanitizeForPrompt(focus, 200))
	}
	builder.WriteString("\n\nStudy material:\n")
	builder.WriteString(clampContent(content, maxContentRunes))

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: builder.String()},
		},
		Temperature: temperature,
		MaxTokens:   4096,
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("request generation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

const maxContentRunes = 60000

func clampContent(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "\n(material truncated)"
}

func sanitizeForPrompt(input string, limit int) string {
	collapsed := strings.Join(strings.Fields(strings.TrimSpace(input)), " ")
	if limit <= 0 {
		return collapsed
	}
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	if limit > 3 {
		return string(runes[:limit-3]) + "..."
	}
	return string(runes[:limit])
}
