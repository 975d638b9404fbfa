package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/adrianliechti/glimpse/pkg/assembler"
	"github.com/adrianliechti/glimpse/pkg/extractor"
	"github.com/adrianliechti/glimpse/pkg/job"
	"github.com/adrianliechti/glimpse/pkg/otel"
	"github.com/adrianliechti/glimpse/pkg/rasterizer"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var (
	ErrRasterize = errors.New("rasterize failed")
	ErrCancelled = errors.New("job cancelled")
)

type Orchestrator struct {
	rasterizer rasterizer.Rasterizer
	extractor  *extractor.Extractor

	concurrency int

	reporter Reporter
	logger   *slog.Logger

	assemble []assembler.Option
}

type Option func(*Orchestrator)

func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		o.concurrency = max(1, n)
	}
}

func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) {
		o.reporter = r
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithAssemblerOptions(options ...assembler.Option) Option {
	return func(o *Orchestrator) {
		o.assemble = options
	}
}

func New(r rasterizer.Rasterizer, e *extractor.Extractor, options ...Option) *Orchestrator {
	o := &Orchestrator{
		rasterizer: r,
		extractor:  e,

		concurrency: 1,

		logger: slog.Default(),
	}

	for _, option := range options {
		option(o)
	}

	if o.reporter == nil {
		o.reporter = NewLogReporter(o.logger)
	}

	return o
}

// Run drives a job from rasterizing to the assembled artifact. Page failures
// are recorded on the job, only rasterizing and assembling errors fail it.
// Cancelling ctx or the job stops dispatching, pages in flight still finish.
func (o *Orchestrator) Run(ctx context.Context, j *job.Job, source []byte) (*assembler.Artifact, error) {
	ctx, span := otel.Tracer().Start(ctx, "job")
	defer span.End()

	span.SetAttributes(
		attribute.String("glimpse.job", j.ID),
		attribute.String("glimpse.format", string(j.Options.Format)),
	)

	logger := o.logger.With("job", j.ID)

	if j.Cancelled() || ctx.Err() != nil {
		if err := j.Transition(job.StateCancelled); err != nil {
			return nil, err
		}

		return nil, ErrCancelled
	}

	if err := j.Transition(job.StateRasterizing); err != nil {
		return nil, err
	}

	pages, err := o.rasterizer.Rasterize(ctx, source, j.Options.DPI)

	if err == nil && len(pages) == 0 {
		err = rasterizer.ErrCorruptSource
	}

	if err != nil {
		if j.Cancelled() || ctx.Err() != nil {
			j.Transition(job.StateCancelled)
			return nil, ErrCancelled
		}

		err = fmt.Errorf("%w: %w", ErrRasterize, err)

		j.Fail(err)
		span.RecordError(err)

		logger.Error("rasterizing failed", "source", j.Source, "error", err)

		return nil, err
	}

	j.Init(len(pages))

	if err := j.Transition(job.StateProcessing); err != nil {
		return nil, err
	}

	logger.Info("processing document", "source", j.Source, "pages", len(pages), "concurrency", min(o.concurrency, len(pages)))

	o.process(ctx, j, pages)

	if j.Cancelled() || ctx.Err() != nil {
		j.Transition(job.StateCancelled)

		logger.Warn("job cancelled", "completed", j.Completed(), "total", j.Total())

		return nil, ErrCancelled
	}

	if err := j.Transition(job.StateAssembling); err != nil {
		return nil, err
	}

	artifact, err := assembler.Assemble(j, o.assemble...)

	if err != nil {
		j.Fail(err)
		span.RecordError(err)

		return nil, err
	}

	if err := j.Transition(job.StateDone); err != nil {
		return nil, err
	}

	logger.Info("job completed", "pages", j.Total(), "failed", j.Failed(), "format", artifact.Format, "images", len(artifact.Images))

	return artifact, nil
}

func (o *Orchestrator) process(ctx context.Context, j *job.Job, pages []rasterizer.Page) {
	limit := min(o.concurrency, len(pages))

	// pages in flight finish even when the job is cancelled
	work := context.WithoutCancel(ctx)

	progress := make(chan Progress, len(pages))
	delivered := make(chan struct{})

	go func() {
		defer close(delivered)

		for p := range progress {
			o.reporter.Report(p)
		}
	}()

	var mu sync.Mutex
	var completed int

	finish := func(page job.Page) {
		mu.Lock()
		defer mu.Unlock()

		if err := j.Complete(page); err != nil {
			o.logger.Error("page result rejected", "job", j.ID, "page", page.Index+1, "error", err)
			return
		}

		completed++

		progress <- Progress{
			Job: j.ID,

			Page:      page.Index,
			Total:     len(pages),
			Completed: completed,

			Status:    page.Status,
			ErrorKind: page.ErrorKind,
		}
	}

	var g errgroup.Group
	sem := semaphore.NewWeighted(int64(limit))

	for i, page := range pages {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		if j.Cancelled() || ctx.Err() != nil {
			sem.Release(1)
			break
		}

		g.Go(func() error {
			defer sem.Release(1)

			result := o.extractor.Extract(work, extractor.Input{
				Index: i,
				Page:  page,

				Mode:   j.Options.Mode,
				Term:   j.Options.Term,
				Prompt: j.Options.Prompt,

				ExtractImages: j.Options.ExtractImages,
				Caption:       j.Options.Caption,
			})

			finish(result)

			return nil
		})
	}

	g.Wait()

	close(progress)
	<-delivered
}
