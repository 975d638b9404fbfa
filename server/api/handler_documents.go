package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/adrianliechti/glimpse/pkg/assembler"
	"github.com/adrianliechti/glimpse/pkg/job"
	"github.com/adrianliechti/glimpse/pkg/orchestrator"
	"github.com/adrianliechti/glimpse/pkg/rasterizer"
)

// handleDocuments converts a document synchronously and responds with the
// artifact itself.
func (h *Handler) handleDocuments(w http.ResponseWriter, r *http.Request) {
	u, err := h.readUpload(w, r)

	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}

	j := job.New(u.Name, u.Options)

	artifact, err := h.orchestrator.Run(r.Context(), j, u.Content)

	if err != nil {
		writeError(w, runStatus(err), err)
		return
	}

	w.Header().Set("X-Job-Id", j.ID)

	writeArtifact(w, baseName(u.Name), artifact)
}

func runStatus(err error) int {
	switch {
	case errors.Is(err, rasterizer.ErrUnsupportedSource):
		return http.StatusUnsupportedMediaType

	case errors.Is(err, orchestrator.ErrRasterize):
		return http.StatusUnprocessableEntity

	case errors.Is(err, orchestrator.ErrCancelled), errors.Is(err, assembler.ErrIncompleteJob):
		return http.StatusConflict
	}

	return http.StatusInternalServerError
}

func baseName(name string) string {
	name = filepath.Base(name)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	if name == "" || name == "." || name == string(filepath.Separator) {
		return "document"
	}

	return name
}
