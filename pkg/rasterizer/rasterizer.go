// Package rasterizer turns source documents into page images.
package rasterizer

import (
	"bytes"
	"context"
	"errors"
)

var (
	ErrUnsupportedSource = errors.New("unsupported source")
	ErrCorruptSource     = errors.New("corrupt source")
)

const (
	MinDPI     = 72
	MaxDPI     = 300
	DefaultDPI = 144
)

type Rasterizer interface {
	Rasterize(ctx context.Context, source []byte, dpi int) ([]Page, error)
}

// IsPDF reports whether source starts like a PDF file.
func IsPDF(source []byte) bool {
	head := source[:min(len(source), 1024)]
	return bytes.Contains(head, []byte("%PDF-"))
}

// Auto sends PDF documents to the PDF rasterizer and everything else to the
// image decoder.
type Auto struct {
	PDF    Rasterizer
	Images Rasterizer
}

func New() *Auto {
	return &Auto{
		PDF:    &PDF{},
		Images: &Images{},
	}
}

func (a *Auto) Rasterize(ctx context.Context, source []byte, dpi int) ([]Page, error) {
	if len(source) == 0 {
		return nil, ErrUnsupportedSource
	}

	if IsPDF(source) {
		return a.PDF.Rasterize(ctx, source, dpi)
	}

	return a.Images.Rasterize(ctx, source, dpi)
}

func clampDPI(dpi int) int {
	if dpi <= 0 {
		return DefaultDPI
	}

	return min(MaxDPI, max(MinDPI, dpi))
}
