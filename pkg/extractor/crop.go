package extractor

import (
	"bytes"
	"image"
	"image/png"

	"github.com/adrianliechti/glimpse/pkg/grounding"
	"github.com/adrianliechti/glimpse/pkg/job"

	"golang.org/x/image/draw"
)

// Crop cuts every image region out of the page raster in detection order.
func Crop(page int, src image.Image, regions []grounding.Region) ([]job.Image, error) {
	var images []job.Image

	for _, r := range regions {
		if r.Label != ImageLabel {
			continue
		}

		for _, a := range r.Anchors {
			for _, b := range a.Boxes {
				rect := image.Rect(b[0], b[1], b[2], b[3]).Add(src.Bounds().Min).Intersect(src.Bounds())

				if rect.Empty() {
					continue
				}

				dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
				draw.Copy(dst, image.Point{}, src, rect, draw.Src, nil)

				var buf bytes.Buffer

				if err := png.Encode(&buf, dst); err != nil {
					return nil, err
				}

				images = append(images, job.Image{
					Page:  page,
					Index: len(images),

					Label:  r.Label,
					Offset: a.Offset,

					Box: b,

					Width:  rect.Dx(),
					Height: rect.Dy(),

					ContentType: "image/png",
					Content:     buf.Bytes(),
				})
			}
		}
	}

	return images, nil
}
