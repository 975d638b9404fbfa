// Package grounding parses the grounding tags emitted by vision-language OCR
// models and maps their model-space coordinates onto concrete images.
//
// A grounding tag is a label wrapper immediately followed by a coordinate list:
//
//	<|ref|>Total<|/ref|><|det|>[[10,10,50,50],[600,600,650,650]]<|/det|>
//
// Coordinates live in a fixed model space of 0..999 on both axes.
package grounding

const (
	tagRefOpen   = "<|ref|>"
	tagRefClose  = "<|/ref|>"
	tagDetOpen   = "<|det|>"
	tagDetClose  = "<|/det|>"
	tagGrounding = "<|grounding|>"
)

// ModelSpace is the largest coordinate value a model emits on either axis.
const ModelSpace = 999

// Box is a model-space bounding box: x1, y1, x2, y2.
type Box [4]float64

func (b Box) valid() bool {
	return b[0] < b[2] && b[1] < b[3]
}

// PixelBox is a bounding box in the pixel space of one image: x1, y1, x2, y2.
type PixelBox [4]int

func (b PixelBox) Width() int {
	return b[2] - b[0]
}

func (b PixelBox) Height() int {
	return b[3] - b[1]
}

type Span struct {
	Start int
	End   int
}

// Occurrence is one appearance of a grounding tag in the raw text.
type Occurrence struct {
	// Span is the byte range of the whole tag in the raw text.
	Span Span

	// Offset is the byte offset in the clean text where the tag was excised.
	Offset int

	Boxes []Box
}

type Detection struct {
	Label string

	Occurrences []Occurrence
}

func (d Detection) Boxes() []Box {
	var result []Box

	for _, o := range d.Occurrences {
		result = append(result, o.Boxes...)
	}

	return result
}

type Result struct {
	Text string

	Detections []Detection

	// Malformed counts tag occurrences skipped because of a broken payload.
	Malformed int

	// Dropped counts out-of-order or degenerate boxes.
	Dropped int
}

// Anchor ties the pixel boxes of one occurrence to its clean text offset.
type Anchor struct {
	Offset int

	Boxes []PixelBox
}

// Region is a detection resolved into the pixel space of one image.
type Region struct {
	Label string

	Boxes   []PixelBox
	Anchors []Anchor
}
