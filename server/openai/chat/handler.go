// Package chat serves recognition through an OpenAI compatible chat
// completions endpoint, so existing OpenAI clients can send page images.
package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/adrianliechti/glimpse/config"
	"github.com/adrianliechti/glimpse/pkg/extractor"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	*config.Config

	extractor *extractor.Extractor
}

func New(cfg *config.Config, e *extractor.Extractor) *Handler {
	return &Handler{
		Config: cfg,

		extractor: e,
	}
}

func (h *Handler) Attach(r chi.Router) {
	r.Post("/chat/completions", h.handleChatCompletion)
}

type ErrorResponse struct {
	Error Error `json:"error"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
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

	if code >= 500 {
		errorType = "api_error"
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(ErrorResponse{
		Error: Error{
			Type:    errorType,
			Message: err.Error(),
		},
	})
}

func writeEvent(w http.ResponseWriter, v any) error {
	rc := http.NewResponseController(w)

	var data bytes.Buffer
	enc := json.NewEncoder(&data)
	enc.SetEscapeHTML(false)
	enc.Encode(v)

	event := strings.TrimSpace(data.String())

	if _, err := fmt.Fprintf(w, "data: %s\n\n", event); err != nil {
		return err
	}

	return rc.Flush()
}
