package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"studymate/internal/models"
	"studymate/internal/services"
)

const maxMultipartMemory = 8 << 20 // 8 MB

type Server struct {
	mux       *http.ServeMux
	questions *services.QuestionService
	sets      *services.StudySetService
	documents *services.DocumentService
	ingestion *services.IngestionService
	tutor     *services.TutorService
	jobs      *JobManager
}

type DocumentResult struct {
	DocumentID int64       `json:"documentId"`
	Name       string      `json:"name"`
	Pages      int         `json:"pages"`
	Status     string      `json:"status"`
	Message    string      `json:"message,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
}

func NewServer(
	questions *services.QuestionService,
	sets *services.StudySetService,
	documents *services.DocumentService,
	ingestion *services.IngestionService,
	tutor *services.TutorService,
) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		questions: questions,
		sets:      sets,
		documents: documents,
		ingestion: ingestion,
		tutor:     tutor,
		jobs:      NewJobManager(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/sets", s.handleListSets)
	s.mux.HandleFunc("/api/sets/", s.handleSetActions)
	s.mux.HandleFunc("/api/questions/", s.handleQuestionActions)
	s.mux.HandleFunc("/api/chat/", s.handleChatActions)
	s.mux.HandleFunc("/api/documents", s.handleUploadDocuments)
	s.mux.HandleFunc("/api/documents/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/documents/jobs/", s.handleJobStatus)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 {
			limit = l
		}
	}

	sets, err := s.sets.ListSets(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(sets))
	for _, set := range sets {
		out = append(out, map[string]any{
			"id":         set.ID,
			"title":      set.Title,
			"source":     nullString(set.SourceName),
			"created_at": set.CreatedAt.Format(timeLayout),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"sets": out})
}

// handleSetActions serves the study-set subresources:
// /api/sets/{id}/questions, .../questions/next, .../notes, .../written,
// .../stats and POST .../chat.
func (s *Server) handleSetActions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sets/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	setID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid set id")
		return
	}

	switch {
	case len(parts) == 1:
		s.handleGetSet(w, r, setID)
	case len(parts) == 2 && parts[1] == "questions":
		s.handleListQuestions(w, r, setID)
	case len(parts) == 3 && parts[1] == "questions" && parts[2] == "next":
		s.handleNextQuestion(w, r, setID)
	case len(parts) == 2 && parts[1] == "notes":
		s.handleListNotes(w, r, setID)
	case len(parts) == 2 && parts[1] == "written":
		s.handleListWritten(w, r, setID)
	case len(parts) == 2 && parts[1] == "stats":
		s.handleSetStats(w, r, setID)
	case len(parts) == 2 && parts[1] == "chat":
		s.handleCreateChat(w, r, setID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGetSet(w http.ResponseWriter, r *http.Request, setID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	set, err := s.sets.GetSet(r.Context(), setID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"set": map[string]any{
			"id":         set.ID,
			"title":      set.Title,
			"source":     nullString(set.SourceName),
			"created_at": set.CreatedAt.Format(timeLayout),
		},
	})
}

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request, setID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	questions, err := s.questions.ListBySet(r.Context(), setID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(questions))
	for _, q := range questions {
		out = append(out, questionJSON(&q, false))
	}

	writeJSON(w, http.StatusOK, map[string]any{"questions": out})
}

func (s *Server) handleNextQuestion(w http.ResponseWriter, r *http.Request, setID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	q, err := s.questions.NextDue(r.Context(), setID)
	if err != nil {
		if err == services.ErrNoDueQuestions {
			writeJSON(w, http.StatusOK, map[string]any{
				"question": nil,
				"message":  "No questions due. Come back later!",
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"question": questionJSON(q, true)})
}

// questionJSON omits the answer and explanation while a question is being
// asked; they come back with the grading result.
func questionJSON(q *models.Question, hideAnswer bool) map[string]any {
	out := map[string]any{
		"id":      q.ID,
		"set_id":  q.SetID,
		"prompt":  q.Prompt,
		"options": q.Options,
		"due":     nullTimeToString(q.Due),
		"state":   q.State,
	}
	if !hideAnswer {
		out["answer"] = q.Answer
		out["explanation"] = q.Explanation
	}
	return out
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request, setID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	notes, err := s.sets.ListNotes(r.Context(), setID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(notes))
	for _, note := range notes {
		out = append(out, map[string]any{
			"id":    note.ID,
			"title": note.Title,
			"body":  note.Body,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"notes": out})
}

func (s *Server) handleListWritten(w http.ResponseWriter, r *http.Request, setID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	questions, err := s.sets.ListWritten(r.Context(), setID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(questions))
	for _, q := range questions {
		out = append(out, map[string]any{
			"id":           q.ID,
			"prompt":       q.Prompt,
			"model_answer": q.ModelAnswer,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"written": out})
}

func (s *Server) handleSetStats(w http.ResponseWriter, r *http.Request, setID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	stats, err := s.questions.Stats(r.Context(), setID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request, setID int64) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if _, err := s.sets.GetSet(r.Context(), setID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	session, err := s.tutor.CreateSession(r.Context(), setID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session": map[string]any{
			"id":         session.ID,
			"set_id":     session.SetID,
			"created_at": session.CreatedAt.Format(timeLayout),
		},
	})
}

func (s *Server) handleQuestionActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/questions/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "answer" {
		http.NotFound(w, r)
		return
	}

	questionID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question id")
		return
	}

	var payload answerRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(payload.Answer) == "" {
		writeError(w, http.StatusBadRequest, "answer is required")
		return
	}

	result, err := s.questions.SubmitAnswer(r.Context(), questionID, payload.Answer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result": map[string]any{
			"correct":        result.Correct,
			"correct_answer": result.CorrectAnswer,
			"explanation":    result.Explanation,
			"due":            nullTimeToString(result.Due),
			"due_in":         result.ScheduledDays,
		},
	})
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// handleChatActions serves GET /api/chat/{id} and POST /api/chat/{id}/messages.
func (s *Server) handleChatActions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/chat/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	sessionID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		s.handleListChatMessages(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "messages":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		s.handleSendChatMessage(w, r, sessionID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleListChatMessages(w http.ResponseWriter, r *http.Request, sessionID int64) {
	if _, err := s.tutor.GetSession(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	messages, err := s.tutor.ListMessages(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		out = append(out, map[string]any{
			"role":       msg.Role,
			"content":    msg.Content,
			"created_at": msg.CreatedAt.Format(timeLayout),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (s *Server) handleSendChatMessage(w http.ResponseWriter, r *http.Request, sessionID int64) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	reply, err := s.tutor.Send(r.Context(), sessionID, payload.Message)
	if err != nil {
		if err == services.ErrAIUnavailable {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reply": map[string]any{
			"role":       reply.Role,
			"content":    reply.Content,
			"created_at": reply.CreatedAt.Format(timeLayout),
		},
	})
}

func (s *Server) handleUploadDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	kind, opts, err := generationParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	results := make([]DocumentResult, 0, len(files))
	for _, file := range files {
		result, err := s.processDocument(r.Context(), file, kind, opts, nil)
		if err != nil {
			result.Status = FileStatusError
		}
		results = append(results, result)
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func generationParams(r *http.Request) (models.GenerationKind, services.GenerateOptions, error) {
	kind := models.GenerationKind(r.FormValue("kind"))
	switch kind {
	case models.GenerateQuiz, models.GenerateNotes, models.GenerateWritten:
	default:
		return "", services.GenerateOptions{}, fmt.Errorf("kind must be 'quiz', 'notes' or 'written'")
	}

	opts := services.GenerateOptions{Focus: r.FormValue("focus")}
	if raw := r.FormValue("count"); raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil || count <= 0 || count > 50 {
			return "", services.GenerateOptions{}, fmt.Errorf("count must be a number between 1 and 50")
		}
		opts.Count = count
	}
	return kind, opts, nil
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/documents/jobs" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	s.handleCreateUploadJob(w, r)
}

func (s *Server) handleCreateUploadJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	kind, opts, err := generationParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	form := r.MultipartForm
	if form == nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	fileNames := make([]string, len(files))
	for i, file := range files {
		fileNames[i] = file.Filename
	}

	fileHeaders := append([]*multipart.FileHeader(nil), files...)
	jobID, snapshot := s.jobs.CreateJob(fileNames)

	go s.runUploadJob(context.Background(), jobID, kind, opts, fileHeaders, form)

	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	if !strings.HasPrefix(r.URL.Path, "/api/documents/jobs/") {
		http.NotFound(w, r)
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/documents/jobs/")
	jobID = strings.Trim(jobID, "/")
	if jobID == "" {
		http.NotFound(w, r)
		return
	}

	job, ok := s.jobs.GetJob(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (s *Server) runUploadJob(ctx context.Context, jobID string, kind models.GenerationKind, opts services.GenerateOptions, files []*multipart.FileHeader, form *multipart.Form) {
	defer func() {
		if form != nil {
			_ = form.RemoveAll()
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}

	s.jobs.MarkProcessing(jobID)
	for idx, file := range files {
		s.jobs.MarkFileStarted(jobID, idx)
		progress := func(step, message string, current, total int) {
			s.jobs.UpdateFileProgress(jobID, idx, step, message, current, total)
		}
		result, err := s.processDocument(ctx, file, kind, opts, progress)
		if err != nil {
			s.jobs.MarkFileError(jobID, idx, err.Error(), result)
			continue
		}
		s.jobs.MarkFileComplete(jobID, idx, result)
	}
	s.jobs.MarkCompleted(jobID)
}

func (s *Server) processDocument(ctx context.Context, file *multipart.FileHeader, kind models.GenerationKind, opts services.GenerateOptions, progress services.ProgressCallback) (DocumentResult, error) {
	result := DocumentResult{
		Name:   file.Filename,
		Status: FileStatusError,
	}

	src, err := file.Open()
	if err != nil {
		result.Message = err.Error()
		return result, fmt.Errorf("open file %s: %w", file.Filename, err)
	}
	defer src.Close()

	doc, err := s.documents.Create(ctx, file.Filename, src)
	if err != nil {
		result.Message = err.Error()
		return result, fmt.Errorf("create document %s: %w", file.Filename, err)
	}

	result.DocumentID = doc.ID

	summary, err := s.ingestion.ProcessDocument(ctx, doc, kind, opts, progress)
	if err != nil {
		result.Message = err.Error()
		return result, err
	}

	result.Status = "ok"
	result.Pages = summary.Pages
	result.Payload = summary
	return result, nil
}

const timeLayout = time.RFC3339

func nullTimeToString(t sql.NullTime) *string {
	if t.Valid {
		str := t.Time.Format(timeLayout)
		return &str
	}
	return nil
}

func nullString(v sql.NullString) *string {
	if v.Valid {
		str := v.String
		return &str
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
