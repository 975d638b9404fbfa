//go:build ocr

// Package tesseract recognizes pages offline with the Tesseract engine. It
// emits grounding tags for paragraphs so its output flows through the same
// parser as the vision-language backends.
//
// Building it requires the "ocr" build tag and an installed Tesseract:
//
//	go build -tags ocr ./...
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/adrianliechti/glimpse/pkg/grounding"
	"github.com/adrianliechti/glimpse/pkg/provider"

	"github.com/otiai10/gosseract/v2"
)

var _ provider.Recognizer = (*Recognizer)(nil)

type Recognizer struct {
	languages []string
}

type Option func(*Recognizer)

func WithLanguages(languages ...string) Option {
	return func(r *Recognizer) {
		r.languages = languages
	}
}

func NewRecognizer(options ...Option) (*Recognizer, error) {
	r := &Recognizer{}

	for _, option := range options {
		option(r)
	}

	return r, nil
}

func (r *Recognizer) Recognize(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return nil, provider.NewTransportError(err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(req.Image.Content))

	if err != nil {
		return nil, provider.NewModelError("unsupported image: " + err.Error())
	}

	c := gosseract.NewClient()
	defer c.Close()

	if len(r.languages) > 0 {
		if err := c.SetLanguage(r.languages...); err != nil {
			return nil, provider.NewModelError(err.Error())
		}
	}

	if err := c.SetImageFromBytes(req.Image.Content); err != nil {
		return nil, provider.NewModelError(err.Error())
	}

	var text string

	switch req.Mode {
	case provider.ModePlain:
		text, err = c.Text()

	case provider.ModeMarkdown, provider.ModeOCR, "":
		text, err = paragraphs(c, cfg.Width, cfg.Height)

	case provider.ModeFind:
		text, err = find(c, req.Term, cfg.Width, cfg.Height)

	default:
		return nil, provider.NewModelError(fmt.Sprintf("mode %q is not supported by tesseract", req.Mode))
	}

	if err != nil {
		return nil, provider.NewModelError(err.Error())
	}

	return &provider.Recognition{
		Text:  text,
		Model: "tesseract " + gosseract.Version(),
	}, nil
}

func (r *Recognizer) Health(ctx context.Context) provider.Health {
	return provider.Health{
		Status: provider.HealthStatusHealthy,
		Actual: "tesseract " + gosseract.Version(),
	}
}

func paragraphs(c *gosseract.Client, width, height int) (string, error) {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_PARA)

	if err != nil {
		return "", err
	}

	var sb strings.Builder

	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)

		if text == "" {
			continue
		}

		sb.WriteString(tag("text", [][4]int{modelBox(b.Box, width, height)}))
		sb.WriteString("\n")
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	return sb.String(), nil
}

func find(c *gosseract.Client, term string, width, height int) (string, error) {
	term = strings.TrimSpace(term)

	if term == "" {
		return "", provider.ErrMissingTerm
	}

	words, err := c.GetBoundingBoxes(gosseract.RIL_WORD)

	if err != nil {
		return "", err
	}

	var boxes [][4]int

	for _, w := range words {
		if strings.EqualFold(strings.Trim(w.Word, ".,;:!?"), term) {
			boxes = append(boxes, modelBox(w.Box, width, height))
		}
	}

	if len(boxes) == 0 {
		return "", nil
	}

	return tag(term, boxes), nil
}

func tag(label string, boxes [][4]int) string {
	var coords []string

	for _, b := range boxes {
		coords = append(coords, fmt.Sprintf("[%d,%d,%d,%d]", b[0], b[1], b[2], b[3]))
	}

	return "<|ref|>" + label + "<|/ref|><|det|>[" + strings.Join(coords, ",") + "]<|/det|>"
}

// modelBox maps pixel coordinates into the 0..999 space of grounding tags.
func modelBox(r image.Rectangle, width, height int) [4]int {
	scale := func(v, dim int) int {
		if dim <= 0 {
			return 0
		}

		return min(grounding.ModelSpace, max(0, v*grounding.ModelSpace/dim))
	}

	return [4]int{
		scale(r.Min.X, width),
		scale(r.Min.Y, height),
		scale(r.Max.X, width),
		scale(r.Max.Y, height),
	}
}
