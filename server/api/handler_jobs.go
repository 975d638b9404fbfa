package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/adrianliechti/glimpse/pkg/assembler"
	"github.com/adrianliechti/glimpse/pkg/job"

	"github.com/go-chi/chi/v5"
)

var ErrJobNotFound = errors.New("job not found")

func (h *Handler) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	u, err := h.readUpload(w, r)

	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}

	j := job.New(u.Name, u.Options)

	// the job outlives the request that created it
	ctx := context.WithoutCancel(r.Context())

	h.jobs.Start(ctx, j, func(ctx context.Context, j *job.Job) (*assembler.Artifact, error) {
		return h.orchestrator.Run(ctx, j, u.Content)
	})

	h.logger.Info("job created", "job", j.ID, "source", j.Source, "format", j.Options.Format)

	w.Header().Set("Location", "/v1/jobs/"+j.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)

	writeJson(w, toJob(j, false))
}

func (h *Handler) handleJobGet(w http.ResponseWriter, r *http.Request) {
	j, ok := h.jobs.Get(chi.URLParam(r, "id"))

	if !ok {
		writeError(w, http.StatusNotFound, ErrJobNotFound)
		return
	}

	writeJson(w, toJob(j, true))
}

func (h *Handler) handleJobResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	j, ok := h.jobs.Get(id)

	if !ok {
		writeError(w, http.StatusNotFound, ErrJobNotFound)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		if err := h.jobs.Wait(r.Context(), id); err != nil {
			return
		}
	}

	artifact, finished, err := h.jobs.Result(id)

	if !finished {
		writeError(w, http.StatusConflict, fmt.Errorf("job is %s", j.State()))
		return
	}

	if err != nil {
		writeError(w, runStatus(err), err)
		return
	}

	if val := r.URL.Query().Get("format"); val != "" {
		format, err := assembler.ParseFormat(val)

		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		if format != artifact.Format {
			artifact, err = assembler.AssembleAs(j, format)

			if err != nil {
				writeError(w, runStatus(err), err)
				return
			}
		}
	}

	writeArtifact(w, baseName(j.Source), artifact)
}

func (h *Handler) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	j, ok := h.jobs.Get(chi.URLParam(r, "id"))

	if !ok {
		writeError(w, http.StatusNotFound, ErrJobNotFound)
		return
	}

	if j.State().Terminal() {
		writeError(w, http.StatusConflict, fmt.Errorf("job is already %s", j.State()))
		return
	}

	j.Cancel()

	h.logger.Info("job cancellation requested", "job", j.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)

	writeJson(w, toJob(j, false))
}
