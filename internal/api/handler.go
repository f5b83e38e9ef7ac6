package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"CivicIndex/internal/domain"
	"CivicIndex/internal/usecase"
)

const (
	maxJSONBody     = 1 << 20
	multipartMemory = 1 << 20
)

// CrawlService runs link ingestion.
type CrawlService interface {
	Crawl(ctx context.Context, seedURL string, opts usecase.CrawlOptions) (domain.CrawlReport, error)
}

// UploadService ingests a single uploaded document.
type UploadService interface {
	Upload(ctx context.Context, req usecase.UploadRequest) (domain.CivicRecord, error)
	MaxBytes() int64
}

// RecordService is the read side.
type RecordService interface {
	List(ctx context.Context, category domain.Category) ([]domain.CivicRecord, error)
	Get(ctx context.Context, id string) (domain.CivicRecord, error)
	Dashboard(ctx context.Context) (domain.Dashboard, error)
	Ping(ctx context.Context) error
}

// AssistantService answers questions about stored records.
type AssistantService interface {
	Ask(ctx context.Context, question string) (domain.Answer, error)
	Chat(ctx context.Context, messages []domain.ChatMessage) (domain.Answer, error)
}

// HandlerDeps wires the use cases into the HTTP surface.
type HandlerDeps struct {
	Crawler      CrawlService
	Uploader     UploadService
	Records      RecordService
	Assistant    AssistantService
	Logger       *slog.Logger
	CrawlTimeout time.Duration
}

// Handler serves the JSON API.
type Handler struct {
	crawler      CrawlService
	uploader     UploadService
	records      RecordService
	assistant    AssistantService
	logger       *slog.Logger
	crawlTimeout time.Duration
	mux          *http.ServeMux
}

// NewHandler registers every route.
func NewHandler(deps HandlerDeps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Handler{
		crawler:      deps.Crawler,
		uploader:     deps.Uploader,
		records:      deps.Records,
		assistant:    deps.Assistant,
		logger:       logger,
		crawlTimeout: deps.CrawlTimeout,
		mux:          http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /ingest/link", h.ingestLink)
	h.mux.HandleFunc("POST /ingest/upload", h.ingestUpload)
	h.mux.HandleFunc("GET /records", h.listRecords)
	h.mux.HandleFunc("GET /records/{id}", h.getRecord)
	h.mux.HandleFunc("GET /dashboard", h.dashboard)
	h.mux.HandleFunc("POST /ask", h.ask)
	h.mux.HandleFunc("POST /chat", h.chat)
	h.mux.HandleFunc("GET /healthz", h.health)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rec, r)
	h.logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(started))
}

type linkRequest struct {
	URL       string `json:"url"`
	Category  string `json:"category"`
	Source    string `json:"source"`
	ParseHTML *bool  `json:"parseHtml"`
	Recursive bool   `json:"recursive"`
	MaxPages  int    `json:"maxPages"`
}

func (h *Handler) ingestLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		h.writeError(w, fmt.Errorf("%w: url is required", domain.ErrValidationFailed))
		return
	}
	category, err := parseCategoryHint(req.Category)
	if err != nil {
		h.writeError(w, err)
		return
	}

	opts := usecase.CrawlOptions{
		Category:  category,
		Source:    strings.TrimSpace(req.Source),
		ParseHTML: req.ParseHTML == nil || *req.ParseHTML,
		Recursive: req.Recursive,
		MaxPages:  req.MaxPages,
	}

	ctx := r.Context()
	if h.crawlTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.crawlTimeout)
		defer cancel()
	}

	report, err := h.crawler.Crawl(ctx, req.URL, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) ingestUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.uploader.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, fmt.Errorf("%w: file size must be at most %d bytes", domain.ErrValidationFailed, maxBytes))
			return
		}
		h.writeError(w, fmt.Errorf("%w: invalid multipart body: %v", domain.ErrValidationFailed, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: no file provided", domain.ErrValidationFailed))
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		h.writeError(w, fmt.Errorf("read upload: %w", err))
		return
	}

	category, err := parseCategoryHint(r.FormValue("category"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	record, err := h.uploader.Upload(r.Context(), usecase.UploadRequest{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        body,
		Hints: domain.Hints{
			Title:    strings.TrimSpace(r.FormValue("title")),
			Category: category,
			Source:   strings.TrimSpace(r.FormValue("source")),
		},
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	category, err := parseCategoryHint(r.URL.Query().Get("category"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	records, err := h.records.List(r.Context(), category)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.records.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.records.Dashboard(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (h *Handler) ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	answer, err := h.assistant.Ask(r.Context(), req.Question)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	answer, err := h.assistant.Chat(r.Context(), req.Messages)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.records.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseCategoryHint(raw string) (domain.Category, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	category, ok := domain.ParseCategory(raw)
	if !ok {
		return "", fmt.Errorf("%w: unknown category %q", domain.ErrValidationFailed, raw)
	}
	return category, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrValidationFailed, err)
	}
	return nil
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidationFailed),
		errors.Is(err, domain.ErrInsufficientText),
		errors.Is(err, domain.ErrExtractionFailed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrExtractionServiceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
