// Package api exposes the pipeline over HTTP: document upload and indexing,
// question generation, run history, and metrics.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quizforge/quizforge/internal/engine"
	"github.com/quizforge/quizforge/internal/generator"
	"github.com/quizforge/quizforge/internal/index"
	"github.com/quizforge/quizforge/internal/monitor"
	"github.com/quizforge/quizforge/internal/quiz"
	"github.com/quizforge/quizforge/internal/storage"
)

const maxUploadSize = 50 << 20 // 50MB
const maxRequestBodySize = 1 << 20

// Extractor turns uploaded PDF bytes into text chunks.
type Extractor interface {
	ExtractFromReader(r io.ReaderAt, size int64) (string, error)
	Chunk(text string) []string
}

type Deps struct {
	Store     *storage.Store
	Engine    engine.Engine
	Monitor   *monitor.Monitor
	Extractor Extractor
	Logger    *slog.Logger

	// Token guards mutating routes; empty disables auth (local use).
	Token string
	// DataDir is where persisted index bundles live.
	DataDir string
	// Model is the default model when a request names none.
	Model string
	// MaxRetries is passed to each generator.
	MaxRetries int
	// MaxFeatures caps the index vocabulary per document.
	MaxFeatures int
}

// Server holds the per-document index handles. A handle is loaded from its
// persisted bundle on first use and replaced wholesale when the document is
// re-indexed; search state is never mutated in place.
type Server struct {
	deps Deps

	mu      sync.RWMutex
	indexes map[string]*index.Index
}

// NewHandler builds the HTTP API router.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps, indexes: make(map[string]*index.Index)}

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/documents", s.handleListDocuments)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{id}", s.handleGetRun)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/documents", s.handleUploadDocument)
		r.Post("/documents/{id}/generate", s.handleGenerate)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":        "ok",
		"model_backend": s.deps.Engine.IsRunning(r.Context()),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.deps.Monitor.Metrics())
}

// DocumentResponse is the JSON shape for an indexed document.
type DocumentResponse struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func documentResponse(d storage.Document) DocumentResponse {
	return DocumentResponse{ID: d.ID, Filename: d.Filename, ChunkCount: d.ChunkCount, CreatedAt: d.CreatedAt}
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
		return
	}

	text, err := s.deps.Extractor.ExtractFromReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "extracting text: %v", err)
		return
	}
	chunks := s.deps.Extractor.Chunk(text)
	if len(chunks) == 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "document produced no text chunks")
		return
	}

	ix := index.New(s.deps.MaxFeatures)
	if err := ix.FitParallel(chunks, runtime.NumCPU()); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "building index: %v", err)
		return
	}

	id := uuid.New().String()
	indexDir := filepath.Join(s.deps.DataDir, "indexes", id)
	if err := ix.Save(indexDir); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "persisting index: %v", err)
		return
	}

	doc := storage.Document{
		ID:         id,
		Filename:   header.Filename,
		ChunkCount: len(chunks),
		IndexDir:   indexDir,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.deps.Store.SaveDocument(doc); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "saving document: %v", err)
		return
	}

	s.mu.Lock()
	s.indexes[id] = ix
	s.mu.Unlock()

	s.deps.Logger.Info("document indexed", "id", id, "filename", doc.Filename, "chunks", len(chunks))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(documentResponse(doc))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 20, 100)
	docs, err := s.deps.Store.ListDocuments(limit)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "listing documents: %v", err)
		return
	}
	out := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentResponse(d))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.deps.Store.DeleteDocument(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "deleting document: %v", err)
		return
	}

	s.mu.Lock()
	delete(s.indexes, id)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

// indexFor returns the cached index handle for the document, loading it from
// the persisted bundle on first use.
func (s *Server) indexFor(doc storage.Document) (*index.Index, error) {
	s.mu.RLock()
	ix, ok := s.indexes[doc.ID]
	s.mu.RUnlock()
	if ok {
		return ix, nil
	}

	ix, err := index.Load(doc.IndexDir)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.indexes[doc.ID] = ix
	s.mu.Unlock()
	return ix, nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := s.deps.Store.GetDocument(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "loading document: %v", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var cfg quiz.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if cfg.Model == "" {
		cfg.Model = s.deps.Model
	}

	ix, err := s.indexFor(doc)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "loading index: %v", err)
		return
	}

	g := generator.New(s.deps.Engine, ix, s.deps.Logger)
	g.Source = doc.Filename
	if s.deps.MaxRetries >= 0 {
		g.MaxRetries = s.deps.MaxRetries
	}

	run, err := g.Generate(r.Context(), cfg)
	if err != nil {
		var invalid *quiz.InvalidConfigError
		var unavailable *engine.ModelUnavailableError
		switch {
		case errors.As(err, &invalid):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		case errors.As(err, &unavailable):
			httpError(w, http.StatusBadGateway, "api_error", "%v", err)
		default:
			httpError(w, http.StatusInternalServerError, "api_error", "generating questions: %v", err)
		}
		return
	}

	s.deps.Monitor.Record(run)
	rec, err := storage.NewRunRecord(doc.ID, run)
	if err == nil {
		err = s.deps.Store.SaveRun(rec)
	}
	if err != nil {
		// The caller still gets their questions; persistence is best effort.
		s.deps.Logger.Warn("failed to persist run", "run", run.ID, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		ID string `json:"id"`
		quiz.Export
	}{run.ID, run.Export()})
}

// RunSummary is the JSON shape for a run in list responses; question bodies
// are available from GET /runs/{id}.
type RunSummary struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"document_id"`
	QuestionType   string    `json:"question_type"`
	Topic          string    `json:"topic,omitempty"`
	Difficulty     string    `json:"difficulty"`
	Language       string    `json:"language"`
	Model          string    `json:"model,omitempty"`
	RequestedCount int       `json:"requested_count"`
	GeneratedCount int       `json:"generated_count"`
	FilteredCount  int       `json:"filtered_count"`
	CreatedAt      time.Time `json:"created_at"`
}

func runSummary(r storage.RunRecord) RunSummary {
	return RunSummary{
		ID:             r.ID,
		DocumentID:     r.DocumentID,
		QuestionType:   r.QuestionType,
		Topic:          r.Topic,
		Difficulty:     r.Difficulty,
		Language:       r.Language,
		Model:          r.Model,
		RequestedCount: r.RequestedCount,
		GeneratedCount: r.GeneratedCount,
		FilteredCount:  r.FilteredCount,
		CreatedAt:      r.CreatedAt,
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 20, 100)

	var (
		runs []storage.RunRecord
		err  error
	)
	if docID := r.URL.Query().Get("document_id"); docID != "" {
		runs, err = s.deps.Store.ListRunsForDocument(docID, limit)
	} else {
		runs, err = s.deps.Store.ListRuns(limit)
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "listing runs: %v", err)
		return
	}

	out := make([]RunSummary, 0, len(runs))
	for _, rec := range runs {
		out = append(out, runSummary(rec))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.deps.Store.GetRun(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "run not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "loading run: %v", err)
		return
	}

	questions, err := rec.Questions()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "decoding run: %v", err)
		return
	}

	var filename string
	if doc, err := s.deps.Store.GetDocument(rec.DocumentID); err == nil {
		filename = doc.Filename
	}

	export := quiz.Export{
		Metadata: quiz.RunMetadata{
			PDFFilename:    filename,
			QuestionType:   quiz.QuestionType(rec.QuestionType),
			Topic:          rec.Topic,
			Difficulty:     quiz.Difficulty(rec.Difficulty),
			Language:       rec.Language,
			RequestedCount: rec.RequestedCount,
			GeneratedCount: rec.GeneratedCount,
			FilteredCount:  rec.FilteredCount,
			Timestamp:      rec.CreatedAt,
		},
		Questions: questions,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		ID string `json:"id"`
		quiz.Export
	}{rec.ID, export})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
