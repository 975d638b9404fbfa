package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/adrianliechti/glimpse/config"
	"github.com/adrianliechti/glimpse/pkg/assembler"
	"github.com/adrianliechti/glimpse/pkg/extractor"
	"github.com/adrianliechti/glimpse/pkg/job"
	"github.com/adrianliechti/glimpse/pkg/orchestrator"
	"github.com/adrianliechti/glimpse/pkg/provider"
	"github.com/adrianliechti/glimpse/pkg/rasterizer"

	"github.com/go-chi/chi/v5"
)

// MaxUploadSize bounds the documents accepted by the API.
const MaxUploadSize = 128 << 20

type Handler struct {
	*config.Config

	recognizer   provider.Recognizer
	extractor    *extractor.Extractor
	orchestrator *orchestrator.Orchestrator

	jobs *Jobs

	logger *slog.Logger
}

func New(cfg *config.Config, r provider.Recognizer, jobs *Jobs) *Handler {
	return &Handler{
		Config: cfg,

		recognizer:   r,
		extractor:    cfg.Extractor(r),
		orchestrator: cfg.Orchestrator(r),

		jobs: jobs,

		logger: slog.Default(),
	}
}

func (h *Handler) Attach(r chi.Router) {
	r.Post("/ocr", h.handleOCR)
	r.Post("/documents", h.handleDocuments)

	r.Post("/jobs", h.handleJobCreate)
	r.Get("/jobs/{id}", h.handleJobGet)
	r.Get("/jobs/{id}/result", h.handleJobResult)
	r.Delete("/jobs/{id}", h.handleJobCancel)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.recognizer.Health(r.Context())

	if !health.Healthy() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	writeJson(w, Health{
		Status: health.Status,

		Expected: health.Expected,
		Actual:   health.Actual,

		Error: health.Error,
	})
}

type upload struct {
	Name    string
	Content []byte

	Options job.Options
}

// readUpload accepts a multipart form with a "file" field or a raw request
// body. Options come from form fields or query parameters.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)

	u := &upload{
		Name:    r.URL.Query().Get("filename"),
		Options: h.JobOptions(),
	}

	var file io.Reader = r.Body

	if err := r.ParseMultipartForm(32 << 20); err == nil {
		f, header, err := r.FormFile("file")

		if err != nil {
			return nil, fmt.Errorf("missing file: %w", err)
		}

		defer f.Close()

		file = f
		u.Name = header.Filename
	} else if !errors.Is(err, http.ErrNotMultipart) {
		return nil, err
	}

	data, err := io.ReadAll(file)

	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, errors.New("empty document")
	}

	u.Content = data

	if err := parseOptions(r, &u.Options); err != nil {
		return nil, err
	}

	return u, nil
}

func parseOptions(r *http.Request, o *job.Options) error {
	if val := r.FormValue("format"); val != "" {
		format, err := assembler.ParseFormat(val)

		if err != nil {
			return err
		}

		o.Format = format
	}

	if val := r.FormValue("mode"); val != "" {
		mode, err := provider.ParseMode(val)

		if err != nil {
			return err
		}

		o.Mode = mode
	}

	if val := r.FormValue("dpi"); val != "" {
		dpi, err := strconv.Atoi(val)

		if err != nil || dpi < rasterizer.MinDPI || dpi > rasterizer.MaxDPI {
			return fmt.Errorf("dpi must be within [%d, %d]", rasterizer.MinDPI, rasterizer.MaxDPI)
		}

		o.DPI = dpi
	}

	if val := r.FormValue("extract_images"); val != "" {
		enabled, err := strconv.ParseBool(val)

		if err != nil {
			return fmt.Errorf("invalid extract_images: %w", err)
		}

		o.ExtractImages = enabled
	}

	if val := r.FormValue("include_caption"); val != "" {
		enabled, err := strconv.ParseBool(val)

		if err != nil {
			return fmt.Errorf("invalid include_caption: %w", err)
		}

		o.Caption = enabled
	}

	o.Term = r.FormValue("term")
	o.Prompt = r.FormValue("prompt")

	_, err := provider.BuildPrompt(provider.Request{
		Mode:   o.Mode,
		Term:   o.Term,
		Prompt: o.Prompt,
	})

	return err
}

func writeJson(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	if code >= 500 {
		slog.Error("server error", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	errorType := "invalid_request_error"

	switch {
	case code == http.StatusUnauthorized:
		errorType = "authentication_error"
	case code == http.StatusNotFound:
		errorType = "not_found_error"
	case code == http.StatusConflict:
		errorType = "conflict_error"
	case code == http.StatusRequestEntityTooLarge:
		errorType = "request_too_large"
	case code >= 500:
		errorType = "api_error"
	}

	resp := ErrorResponse{
		Error: Error{
			Type:    errorType,
			Message: err.Error(),
		},
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(resp)
}

func WriteError(w http.ResponseWriter, code int, err error) {
	writeError(w, code, err)
}

func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError

	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	if errors.Is(err, multipart.ErrMessageTooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	return http.StatusBadRequest
}

func writeArtifact(w http.ResponseWriter, name string, a *assembler.Artifact) {
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+a.Extension))
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Content)))

	w.Write(a.Content)
}
