package api

import (
	"errors"
	"net/http"

	"github.com/adrianliechti/glimpse/pkg/assembler"
	"github.com/adrianliechti/glimpse/pkg/extractor"
	"github.com/adrianliechti/glimpse/pkg/job"
)

func (h *Handler) handleOCR(w http.ResponseWriter, r *http.Request) {
	u, err := h.readUpload(w, r)

	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}

	page, err := h.extractor.ExtractImage(r.Context(), u.Content, extractor.Input{
		Mode:   u.Options.Mode,
		Term:   u.Options.Term,
		Prompt: u.Options.Prompt,

		Caption: u.Options.Caption,
	})

	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if page.Status == job.StatusFailed {
		code := http.StatusBadGateway

		if page.ErrorKind == job.ErrorKindTimeout {
			code = http.StatusGatewayTimeout
		}

		writeError(w, code, errors.New(assembler.FailureSummary(page)))
		return
	}

	writeJson(w, toRecognition(page))
}
