//go:build !ocr

// Package tesseract recognizes pages offline with the Tesseract engine.
//
// This is the stub used when the "ocr" build tag is not set. Rebuild with
// -tags ocr and an installed Tesseract to enable it.
package tesseract

import (
	"context"
	"errors"

	"github.com/adrianliechti/glimpse/pkg/provider"
)

var ErrNotEnabled = errors.New("tesseract support not enabled; rebuild with -tags ocr")

var _ provider.Recognizer = (*Recognizer)(nil)

type Recognizer struct{}

type Option func(*Recognizer)

func WithLanguages(languages ...string) Option {
	return func(r *Recognizer) {}
}

func NewRecognizer(options ...Option) (*Recognizer, error) {
	return nil, ErrNotEnabled
}

func (r *Recognizer) Recognize(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
	return nil, ErrNotEnabled
}

func (r *Recognizer) Health(ctx context.Context) provider.Health {
	return provider.Health{
		Status: provider.HealthStatusUnreachable,
		Error:  ErrNotEnabled.Error(),
	}
}
