package grounding

import (
	"math"
	"slices"
	"strings"
)

// Normalize resolves model-space detections into the pixel space of an image
// of the given size. Boxes that collapse to zero or negative area after
// clamping are dropped; their number is returned alongside the regions.
func Normalize(detections []Detection, width, height int) ([]Region, int) {
	var regions []Region
	var dropped int

	for _, d := range detections {
		region := Region{
			Label: d.Label,
		}

		for _, o := range d.Occurrences {
			anchor := Anchor{
				Offset: o.Offset,
			}

			for _, b := range o.Boxes {
				box := PixelBox{
					scale(b[0], width),
					scale(b[1], height),
					scale(b[2], width),
					scale(b[3], height),
				}

				if box[0] >= box[2] || box[1] >= box[3] {
					dropped++
					continue
				}

				anchor.Boxes = append(anchor.Boxes, box)
				region.Boxes = append(region.Boxes, box)
			}

			if len(anchor.Boxes) > 0 {
				region.Anchors = append(region.Anchors, anchor)
			}
		}

		if len(region.Boxes) == 0 {
			continue
		}

		regions = append(regions, region)
	}

	return regions, dropped
}

func scale(v float64, dimension int) int {
	if dimension <= 0 {
		return 0
	}

	p := v / ModelSpace * float64(dimension)

	if math.IsNaN(p) || p <= 0 {
		return 0
	}

	if p >= float64(dimension) {
		return dimension
	}

	return int(math.Trunc(p))
}

type Insertion struct {
	Offset int
	Text   string
}

// Insert splices text into clean text at the recorded excision offsets.
// Insertions at the same offset keep their order.
func Insert(text string, insertions []Insertion) string {
	if len(insertions) == 0 {
		return text
	}

	sorted := slices.Clone(insertions)

	slices.SortStableFunc(sorted, func(a, b Insertion) int {
		return a.Offset - b.Offset
	})

	var sb strings.Builder
	last := 0

	for _, ins := range sorted {
		offset := max(last, min(ins.Offset, len(text)))

		sb.WriteString(text[last:offset])
		sb.WriteString(ins.Text)

		last = offset
	}

	sb.WriteString(text[last:])

	return sb.String()
}
