package orchestrator

import (
	"context"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adrianliechti/glimpse/pkg/assembler"
	"github.com/adrianliechti/glimpse/pkg/extractor"
	"github.com/adrianliechti/glimpse/pkg/job"
	"github.com/adrianliechti/glimpse/pkg/provider"
	"github.com/adrianliechti/glimpse/pkg/rasterizer"

	"github.com/stretchr/testify/require"
)

type fakeRasterizer struct {
	pages int
	err   error
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, source []byte, dpi int) ([]rasterizer.Page, error) {
	if f.err != nil {
		return nil, f.err
	}

	var pages []rasterizer.Page

	for range f.pages {
		page, err := rasterizer.NewPage(image.NewRGBA(image.Rect(0, 0, 100, 100)))

		if err != nil {
			return nil, err
		}

		pages = append(pages, page)
	}

	return pages, nil
}

type funcRecognizer func(ctx context.Context, req provider.Request) (*provider.Recognition, error)

func (f funcRecognizer) Recognize(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
	return f(ctx, req)
}

func (f funcRecognizer) Health(ctx context.Context) provider.Health {
	return provider.Health{Status: provider.HealthStatusHealthy}
}

func echo(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
	return &provider.Recognition{Text: "text of " + req.Image.Name}, nil
}

func newOrchestrator(pages int, r provider.Recognizer, options ...Option) *Orchestrator {
	e := extractor.New(r,
		extractor.WithTimeout(20*time.Millisecond),
		extractor.WithBackoff(time.Millisecond),
	)

	options = append([]Option{WithReporter(ReporterFunc(func(Progress) {}))}, options...)

	return New(&fakeRasterizer{pages: pages}, e, options...)
}

func TestRun(t *testing.T) {
	o := newOrchestrator(3, funcRecognizer(echo))

	j := job.New("doc.pdf", job.Options{Format: job.FormatMarkdown})

	artifact, err := o.Run(context.Background(), j, []byte("%PDF-"))
	require.NoError(t, err)

	require.Equal(t, job.StateDone, j.State())
	require.Equal(t, 3, j.Completed())

	require.Equal(t, "text of page-1.png\n\n---\n\ntext of page-2.png\n\n---\n\ntext of page-3.png\n", string(artifact.Content))
}

func TestRunIsolatesTimedOutPage(t *testing.T) {
	var attempts atomic.Int32

	r := funcRecognizer(func(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
		if req.Image.Name == "page-2.png" {
			attempts.Add(1)

			<-ctx.Done()
			return nil, ctx.Err()
		}

		return echo(ctx, req)
	})

	o := newOrchestrator(3, r)

	j := job.New("doc.pdf", job.Options{Format: job.FormatMarkdown})

	artifact, err := o.Run(context.Background(), j, []byte("%PDF-"))
	require.NoError(t, err)

	require.Equal(t, job.StateDone, j.State())
	require.Equal(t, int32(3), attempts.Load())

	pages := j.Pages()

	require.Equal(t, job.StatusOK, pages[0].Status)
	require.Equal(t, job.StatusFailed, pages[1].Status)
	require.Equal(t, job.ErrorKindTimeout, pages[1].ErrorKind)
	require.Equal(t, job.StatusOK, pages[2].Status)

	blocks := strings.Split(strings.TrimSpace(string(artifact.Content)), assembler.PageBoundary)

	require.Len(t, blocks, 3)
	require.Equal(t, "text of page-1.png", blocks[0])
	require.Contains(t, blocks[1], "[Page 2 failed] timeout")
	require.Equal(t, "text of page-3.png", blocks[2])
}

func TestRunIsolatesModelErrors(t *testing.T) {
	r := funcRecognizer(func(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
		if req.Image.Name == "page-1.png" {
			return nil, provider.NewModelError("refused")
		}

		return echo(ctx, req)
	})

	o := newOrchestrator(4, r, WithConcurrency(4))

	j := job.New("doc.pdf", job.Options{Format: job.FormatJSON})

	_, err := o.Run(context.Background(), j, []byte("%PDF-"))
	require.NoError(t, err)

	require.Equal(t, 1, j.Failed())
	require.Equal(t, 4, j.Completed())
	require.Equal(t, job.ErrorKindModel, j.Pages()[0].ErrorKind)
	require.Equal(t, 1, j.Pages()[0].Attempts)
}

func TestRunCancelled(t *testing.T) {
	var calls atomic.Int32

	j := job.New("doc.pdf", job.Options{Format: job.FormatMarkdown})

	r := funcRecognizer(func(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
		if calls.Add(1) == 3 {
			j.Cancel()
		}

		return echo(ctx, req)
	})

	o := newOrchestrator(10, r)

	artifact, err := o.Run(context.Background(), j, []byte("%PDF-"))

	require.ErrorIs(t, err, ErrCancelled)
	require.Nil(t, artifact)

	require.Equal(t, job.StateCancelled, j.State())
	require.Equal(t, 10, j.Total())
	require.Equal(t, 3, j.Completed())

	p, _ := j.Page(3)
	require.Equal(t, job.StatusPending, p.Status)

	_, err = assembler.Assemble(j)
	require.ErrorIs(t, err, assembler.ErrIncompleteJob)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newOrchestrator(2, funcRecognizer(echo))

	j := job.New("doc.pdf", job.Options{})

	_, err := o.Run(ctx, j, []byte("%PDF-"))

	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, job.StateCancelled, j.State())
}

func TestRunRasterizeFailure(t *testing.T) {
	e := extractor.New(funcRecognizer(echo))
	o := New(&fakeRasterizer{err: rasterizer.ErrCorruptSource}, e)

	j := job.New("doc.pdf", job.Options{})

	_, err := o.Run(context.Background(), j, []byte("%PDF-"))

	require.ErrorIs(t, err, ErrRasterize)
	require.ErrorIs(t, err, rasterizer.ErrCorruptSource)
	require.Equal(t, job.StateFailed, j.State())

	o = New(&fakeRasterizer{}, e)
	j = job.New("doc.pdf", job.Options{})

	_, err = o.Run(context.Background(), j, []byte("%PDF-"))
	require.ErrorIs(t, err, ErrRasterize)
}

func TestRunBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32

	r := funcRecognizer(func(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
		n := active.Add(1)
		defer active.Add(-1)

		for {
			p := peak.Load()

			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		time.Sleep(5 * time.Millisecond)

		return echo(ctx, req)
	})

	var reporting atomic.Bool
	var mu sync.Mutex
	var reports []Progress

	reporter := ReporterFunc(func(p Progress) {
		require.False(t, reporting.Swap(true), "reporter called concurrently")
		defer reporting.Store(false)

		mu.Lock()
		reports = append(reports, p)
		mu.Unlock()
	})

	o := newOrchestrator(8, r, WithConcurrency(3), WithReporter(reporter))

	j := job.New("doc.pdf", job.Options{Format: job.FormatMarkdown})

	_, err := o.Run(context.Background(), j, []byte("%PDF-"))
	require.NoError(t, err)

	require.LessOrEqual(t, peak.Load(), int32(3))
	require.Len(t, reports, 8)

	seen := map[int]bool{}

	for i, p := range reports {
		require.Equal(t, i+1, p.Completed)
		require.Equal(t, 8, p.Total)
		require.Equal(t, j.ID, p.Job)

		seen[p.Page] = true
	}

	require.Len(t, seen, 8)
}

func TestRunExtractsImages(t *testing.T) {
	r := funcRecognizer(func(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
		return &provider.Recognition{Text: "<|ref|>image<|/ref|><|det|>[[0,0,499,499]]<|/det|>\nFigure"}, nil
	})

	o := newOrchestrator(2, r)

	j := job.New("doc.pdf", job.Options{Format: job.FormatMarkdown, ExtractImages: true})

	artifact, err := o.Run(context.Background(), j, []byte("%PDF-"))
	require.NoError(t, err)

	require.Len(t, artifact.Images, 2)
	require.Equal(t, 0, artifact.Images[0].Page)
	require.Equal(t, 1, artifact.Images[1].Page)
	require.Contains(t, string(artifact.Content), "![image](data:image/png;base64,")
}

func TestLogReporter(t *testing.T) {
	r := NewLogReporter(discardLogger())

	r.Report(Progress{Page: 0, Total: 1, Completed: 1, Status: job.StatusOK})
	r.Report(Progress{Page: 0, Total: 1, Completed: 1, Status: job.StatusFailed, ErrorKind: job.ErrorKindModel})
}
