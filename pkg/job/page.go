package job

import (
	"strconv"
	"time"

	"github.com/adrianliechti/glimpse/pkg/grounding"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
)

type ErrorKind string

const (
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindTransport ErrorKind = "transport"
	ErrorKindModel     ErrorKind = "model"
	ErrorKindParse     ErrorKind = "parse"
)

// Page is the outcome of one source page. It does not change once it has
// been written into its job.
type Page struct {
	Index  int
	Status Status

	// Text is the clean text with all grounding tags removed.
	Text string

	// Raw is the unmodified model output.
	Raw string

	Width  int
	Height int

	Regions []grounding.Region
	Images  []Image

	Malformed int
	Dropped   int

	Attempts int
	Duration time.Duration

	ErrorKind ErrorKind
	Error     string
}

func PendingPage(index int) Page {
	return Page{
		Index:  index,
		Status: StatusPending,
	}
}

func FailedPage(index int, kind ErrorKind, err error) Page {
	return Page{
		Index:  index,
		Status: StatusFailed,

		ErrorKind: kind,
		Error:     err.Error(),
	}
}

// Image is a region cropped out of a page raster.
type Image struct {
	Page  int
	Index int

	Label  string
	Offset int

	Box grounding.PixelBox

	Width  int
	Height int

	ContentType string
	Content     []byte
}

func (i Image) Name() string {
	return "page" + strconv.Itoa(i.Page+1) + "_image" + strconv.Itoa(i.Index+1) + ".png"
}
