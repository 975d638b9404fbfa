package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adrianliechti/glimpse/pkg/grounding"
	"github.com/adrianliechti/glimpse/pkg/job"
	"github.com/adrianliechti/glimpse/pkg/provider"
	"github.com/adrianliechti/glimpse/pkg/rasterizer"

	"github.com/cenkalti/backoff/v5"
)

// EmptyText replaces model output that carries no text at all.
const EmptyText = "No text returned by model."

// ImageLabel is the detection label whose regions are cropped out as images.
const ImageLabel = "image"

type Extractor struct {
	recognizer provider.Recognizer

	timeout time.Duration
	retries int
	backoff time.Duration

	logger *slog.Logger
}

type Option func(*Extractor)

// WithTimeout bounds every single attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Extractor) {
		e.timeout = timeout
	}
}

func WithRetries(retries int) Option {
	return func(e *Extractor) {
		e.retries = max(0, retries)
	}
}

// WithBackoff sets the delay before the first retry.
func WithBackoff(initial time.Duration) Option {
	return func(e *Extractor) {
		e.backoff = initial
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

func New(recognizer provider.Recognizer, options ...Option) *Extractor {
	e := &Extractor{
		recognizer: recognizer,

		timeout: 2 * time.Minute,
		retries: 2,
		backoff: time.Second,

		logger: slog.Default(),
	}

	for _, option := range options {
		option(e)
	}

	return e
}

type Input struct {
	Index int
	Page  rasterizer.Page

	Mode   provider.Mode
	Term   string
	Prompt string

	ExtractImages bool
	Caption       bool
}

// Extract runs one page through recognition, parsing and normalization. It
// always returns a terminal page, failures are recorded on the page itself.
func (e *Extractor) Extract(ctx context.Context, in Input) (page job.Page) {
	start := time.Now()
	attempts := 0

	defer func() {
		if r := recover(); r != nil {
			page = job.FailedPage(in.Index, job.ErrorKindParse, fmt.Errorf("panic: %v", r))
		}

		page.Attempts = attempts
		page.Duration = time.Since(start)
	}()

	req := provider.Request{
		Image: provider.File{
			Name: fmt.Sprintf("page-%d.png", in.Index+1),

			Content:     in.Page.Content,
			ContentType: "image/png",
		},

		Mode:   in.Mode,
		Term:   in.Term,
		Prompt: in.Prompt,

		Caption: in.Caption,
	}

	op := func() (*provider.Recognition, error) {
		attempts++

		actx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		result, err := e.recognizer.Recognize(actx, req)

		if err != nil {
			if actx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
				err = provider.ErrTimeout
			}

			if !provider.Retryable(err) {
				return nil, backoff.Permanent(err)
			}

			return nil, err
		}

		return result, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.backoff

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(e.retries+1)),
		// attempts are bounded by their timeout and count, not by a total budget
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			e.logger.Warn("retrying page", "page", in.Index+1, "error", err, "delay", delay)
		}),
	)

	if err != nil {
		return job.FailedPage(in.Index, Kind(err), err)
	}

	return e.page(in, result.Text)
}

// ExtractImage recognizes a single encoded image. Decoding errors are
// returned, recognition failures are recorded on the page.
func (e *Extractor) ExtractImage(ctx context.Context, data []byte, in Input) (job.Page, error) {
	pages, err := (&rasterizer.Images{}).Rasterize(ctx, data, 0)

	if err != nil {
		return job.Page{}, err
	}

	in.Page = pages[0]

	return e.Extract(ctx, in), nil
}

func (e *Extractor) page(in Input, raw string) job.Page {
	if strings.TrimSpace(raw) == "" {
		raw = EmptyText
	}

	width := in.Page.Width()
	height := in.Page.Height()

	parsed := grounding.Parse(raw)
	regions, dropped := grounding.Normalize(parsed.Detections, width, height)

	text := parsed.Text

	if text == "" && len(regions) > 0 {
		var labels []string

		for _, r := range regions {
			labels = append(labels, r.Label)
		}

		text = strings.Join(labels, ", ")
	}

	if parsed.Malformed > 0 || parsed.Dropped+dropped > 0 {
		e.logger.Debug("page has broken grounding tags", "page", in.Index+1, "malformed", parsed.Malformed, "dropped", parsed.Dropped+dropped)
	}

	page := job.Page{
		Index:  in.Index,
		Status: job.StatusOK,

		Text: text,
		Raw:  raw,

		Width:  width,
		Height: height,

		Regions: regions,

		Malformed: parsed.Malformed,
		Dropped:   parsed.Dropped + dropped,
	}

	if in.ExtractImages {
		images, err := Crop(in.Index, in.Page.Image, regions)

		if err != nil {
			return job.FailedPage(in.Index, job.ErrorKindParse, err)
		}

		page.Images = images
	}

	return page
}

// Kind maps a recognition error onto the kind recorded on a failed page.
func Kind(err error) job.ErrorKind {
	if errors.Is(err, provider.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return job.ErrorKindTimeout
	}

	var transport *provider.TransportError

	if errors.As(err, &transport) {
		return job.ErrorKindTransport
	}

	return job.ErrorKindModel
}
