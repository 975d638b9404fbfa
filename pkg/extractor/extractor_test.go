package extractor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/adrianliechti/glimpse/pkg/grounding"
	"github.com/adrianliechti/glimpse/pkg/job"
	"github.com/adrianliechti/glimpse/pkg/provider"
	"github.com/adrianliechti/glimpse/pkg/rasterizer"

	"github.com/stretchr/testify/require"
)

type scriptedRecognizer struct {
	mu sync.Mutex

	calls   int
	results []func(ctx context.Context) (string, error)
}

func (s *scriptedRecognizer) Recognize(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
	s.mu.Lock()
	step := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	s.mu.Unlock()

	text, err := step(ctx)

	if err != nil {
		return nil, err
	}

	return &provider.Recognition{Text: text}, nil
}

func (s *scriptedRecognizer) Health(ctx context.Context) provider.Health {
	return provider.Health{Status: provider.HealthStatusHealthy}
}

func respond(text string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return text, nil }
}

func fail(err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", err }
}

func hang(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func testPage(t *testing.T, width, height int) rasterizer.Page {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for x := range width / 2 {
		for y := range height / 2 {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	page, err := rasterizer.NewPage(img)
	require.NoError(t, err)

	return page
}

func newExtractor(r provider.Recognizer) *Extractor {
	return New(r,
		WithTimeout(50*time.Millisecond),
		WithBackoff(time.Millisecond),
	)
}

func TestExtract(t *testing.T) {
	r := &scriptedRecognizer{
		results: []func(context.Context) (string, error){
			respond("Total<|ref|>Total<|/ref|><|det|>[[10,10,50,50],[600,600,650,650]]<|/det|> due"),
		},
	}

	page := newExtractor(r).Extract(context.Background(), Input{
		Index: 3,
		Page:  testPage(t, 1000, 1000),
	})

	require.Equal(t, job.StatusOK, page.Status)
	require.Equal(t, 3, page.Index)
	require.Equal(t, "Total due", page.Text)
	require.Equal(t, 1, page.Attempts)

	require.Equal(t, 1000, page.Width)
	require.Len(t, page.Regions, 1)
	require.Equal(t, []grounding.PixelBox{{10, 10, 50, 50}, {600, 600, 650, 650}}, page.Regions[0].Boxes)
}

func TestExtractRetriesTransportErrors(t *testing.T) {
	r := &scriptedRecognizer{
		results: []func(context.Context) (string, error){
			fail(provider.NewTransportError(errors.New("connection reset"))),
			respond("hello"),
		},
	}

	page := newExtractor(r).Extract(context.Background(), Input{Page: testPage(t, 10, 10)})

	require.Equal(t, job.StatusOK, page.Status)
	require.Equal(t, "hello", page.Text)
	require.Equal(t, 2, page.Attempts)
}

func TestExtractDoesNotRetryModelErrors(t *testing.T) {
	r := &scriptedRecognizer{
		results: []func(context.Context) (string, error){
			fail(provider.NewModelError("image too small")),
			respond("never"),
		},
	}

	page := newExtractor(r).Extract(context.Background(), Input{Page: testPage(t, 10, 10)})

	require.Equal(t, job.StatusFailed, page.Status)
	require.Equal(t, job.ErrorKindModel, page.ErrorKind)
	require.Equal(t, 1, page.Attempts)
	require.Contains(t, page.Error, "image too small")
}

func TestExtractTimeout(t *testing.T) {
	r := &scriptedRecognizer{
		results: []func(context.Context) (string, error){hang},
	}

	page := New(r,
		WithTimeout(10*time.Millisecond),
		WithBackoff(time.Millisecond),
		WithRetries(2),
	).Extract(context.Background(), Input{Page: testPage(t, 10, 10)})

	require.Equal(t, job.StatusFailed, page.Status)
	require.Equal(t, job.ErrorKindTimeout, page.ErrorKind)
	require.Equal(t, 3, page.Attempts)
}

func TestExtractGivesUpAfterRetries(t *testing.T) {
	r := &scriptedRecognizer{
		results: []func(context.Context) (string, error){
			fail(provider.NewTransportError(errors.New("connection refused"))),
		},
	}

	page := newExtractor(r).Extract(context.Background(), Input{Page: testPage(t, 10, 10)})

	require.Equal(t, job.StatusFailed, page.Status)
	require.Equal(t, job.ErrorKindTransport, page.ErrorKind)
	require.Equal(t, 3, page.Attempts)
}

func TestExtractUsesEveryRetry(t *testing.T) {
	r := &scriptedRecognizer{
		results: []func(context.Context) (string, error){hang},
	}

	page := New(r,
		WithTimeout(5*time.Millisecond),
		WithBackoff(time.Millisecond),
		WithRetries(6),
	).Extract(context.Background(), Input{Page: testPage(t, 10, 10)})

	require.Equal(t, job.ErrorKindTimeout, page.ErrorKind)
	require.Equal(t, 7, page.Attempts)
}

func TestExtractEmptyOutput(t *testing.T) {
	r := &scriptedRecognizer{
		results: []func(context.Context) (string, error){respond("  \n")},
	}

	page := newExtractor(r).Extract(context.Background(), Input{Page: testPage(t, 10, 10)})

	require.Equal(t, job.StatusOK, page.Status)
	require.Equal(t, EmptyText, page.Text)
}

func TestExtractListsLabelsWithoutText(t *testing.T) {
	r := &scriptedRecognizer{
		results: []func(context.Context) (string, error){
			respond("<|ref|>Total<|/ref|><|det|>[[10,10,50,50]]<|/det|><|ref|>Date<|/ref|><|det|>[[60,60,90,90]]<|/det|>"),
		},
	}

	page := newExtractor(r).Extract(context.Background(), Input{Page: testPage(t, 100, 100)})

	require.Equal(t, "Total, Date", page.Text)
}

func TestExtractRecoversPanics(t *testing.T) {
	r := &scriptedRecognizer{
		results: []func(context.Context) (string, error){
			func(context.Context) (string, error) { panic("boom") },
		},
	}

	page := newExtractor(r).Extract(context.Background(), Input{Index: 1, Page: testPage(t, 10, 10)})

	require.Equal(t, job.StatusFailed, page.Status)
	require.Equal(t, job.ErrorKindParse, page.ErrorKind)
	require.Equal(t, 1, page.Index)
}

func TestExtractImages(t *testing.T) {
	r := &scriptedRecognizer{
		results: []func(context.Context) (string, error){
			respond("<|ref|>image<|/ref|><|det|>[[0,0,499,499]]<|/det|>\nCaption\n\n<|ref|>text<|/ref|><|det|>[[500,500,999,999]]<|/det|>\nBody"),
		},
	}

	page := newExtractor(r).Extract(context.Background(), Input{
		Index: 2,
		Page:  testPage(t, 100, 100),

		ExtractImages: true,
	})

	require.Equal(t, job.StatusOK, page.Status)
	require.Equal(t, "Caption\n\nBody", page.Text)
	require.Len(t, page.Images, 1)

	img := page.Images[0]

	require.Equal(t, 2, img.Page)
	require.Equal(t, 0, img.Offset)
	require.Equal(t, grounding.PixelBox{0, 0, 49, 49}, img.Box)
	require.Equal(t, 49, img.Width)
	require.Equal(t, "image/png", img.ContentType)
	require.NotEmpty(t, img.Content)
}

func TestCropMatchesExactLabel(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 100))
	box := []grounding.PixelBox{{0, 0, 10, 10}}

	tests := []struct {
		label string
		want  int
	}{
		{"image", 1},
		{"IMAGE", 0},
		{"Image", 0},
		{"images", 0},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			images, err := Crop(0, src, []grounding.Region{
				{Label: tt.label, Boxes: box, Anchors: []grounding.Anchor{{Boxes: box}}},
			})

			require.NoError(t, err)
			require.Len(t, images, tt.want)
		})
	}
}

func TestKind(t *testing.T) {
	require.Equal(t, job.ErrorKindTimeout, Kind(provider.ErrTimeout))
	require.Equal(t, job.ErrorKindTransport, Kind(provider.NewTransportError(errors.New("eof"))))
	require.Equal(t, job.ErrorKindModel, Kind(provider.NewModelError("bad")))
	require.Equal(t, job.ErrorKindModel, Kind(provider.ErrMissingTerm))
}

func TestExtractImage(t *testing.T) {
	r := &scriptedRecognizer{
		results: []func(context.Context) (string, error){
			respond("hello"),
		},
	}

	e := newExtractor(r)

	page, err := e.ExtractImage(context.Background(), testPage(t, 40, 20).Content, Input{})
	require.NoError(t, err)

	require.Equal(t, job.StatusOK, page.Status)
	require.Equal(t, "hello", page.Text)
	require.Equal(t, 40, page.Width)
	require.Equal(t, 20, page.Height)

	_, err = e.ExtractImage(context.Background(), []byte("not an image"), Input{})
	require.ErrorIs(t, err, rasterizer.ErrUnsupportedSource)
}
