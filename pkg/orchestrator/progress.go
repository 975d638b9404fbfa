package orchestrator

import (
	"log/slog"

	"github.com/adrianliechti/glimpse/pkg/job"
)

// Progress is emitted once for every page that reaches a terminal status.
type Progress struct {
	Job string

	Page      int
	Total     int
	Completed int

	Status    job.Status
	ErrorKind job.ErrorKind
}

type Reporter interface {
	Report(p Progress)
}

type ReporterFunc func(p Progress)

func (f ReporterFunc) Report(p Progress) {
	f(p)
}

type logReporter struct {
	logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) Reporter {
	return &logReporter{
		logger: logger,
	}
}

func (r *logReporter) Report(p Progress) {
	if p.Status == job.StatusFailed {
		r.logger.Warn("page failed", "job", p.Job, "page", p.Page+1, "total", p.Total, "kind", p.ErrorKind)
		return
	}

	r.logger.Info("page completed", "job", p.Job, "page", p.Page+1, "total", p.Total, "completed", p.Completed)
}
