package rasterizer

import (
	"bytes"
	"image"
	"image/png"
)

// Page is one rasterized page. Content holds the page PNG encoded.
type Page struct {
	Image image.Image

	Content []byte
}

func (p Page) Width() int {
	return p.Image.Bounds().Dx()
}

func (p Page) Height() int {
	return p.Image.Bounds().Dy()
}

func NewPage(img image.Image) (Page, error) {
	var buf bytes.Buffer

	if err := png.Encode(&buf, img); err != nil {
		return Page{}, err
	}

	return Page{
		Image:   img,
		Content: buf.Bytes(),
	}, nil
}
