package rasterizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Images decodes a single raster image as a one page document. The DPI is
// irrelevant for images that are already rasterized.
type Images struct{}

func (r *Images) Rasterize(ctx context.Context, source []byte, dpi int) ([]Page, error) {
	img, _, err := image.Decode(bytes.NewReader(source))

	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedSource
		}

		return nil, fmt.Errorf("%w: %w", ErrCorruptSource, err)
	}

	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrCorruptSource)
	}

	page, err := NewPage(img)

	if err != nil {
		return nil, err
	}

	return []Page{page}, nil
}
