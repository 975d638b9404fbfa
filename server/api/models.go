package api

import (
	"github.com/adrianliechti/glimpse/pkg/grounding"
	"github.com/adrianliechti/glimpse/pkg/job"
	"github.com/adrianliechti/glimpse/pkg/provider"
)

type ErrorResponse struct {
	Error Error `json:"error"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Health struct {
	Status provider.HealthStatus `json:"status"`

	Expected string `json:"expected_model,omitempty"`
	Actual   string `json:"actual_model,omitempty"`

	Error string `json:"error,omitempty"`
}

// Recognition is the result of a single image OCR request.
type Recognition struct {
	Text string `json:"text"`
	Raw  string `json:"raw,omitempty"`

	Width  int `json:"width"`
	Height int `json:"height"`

	Detections []Detection `json:"detections"`

	Malformed int `json:"malformed_tags,omitempty"`
	Dropped   int `json:"dropped_boxes,omitempty"`

	Attempts int     `json:"attempts"`
	Duration float64 `json:"duration"`
}

type Detection struct {
	Label string               `json:"label"`
	Boxes []grounding.PixelBox `json:"boxes"` // [x1, y1, x2, y2]
}

type Job struct {
	ID     string `json:"id"`
	Source string `json:"source,omitempty"`

	State job.State `json:"state"`

	Format job.Format    `json:"format"`
	Mode   provider.Mode `json:"mode"`

	Total     int `json:"total_pages"`
	Completed int `json:"completed_pages"`
	Failed    int `json:"failed_pages"`

	Pages []Page `json:"pages,omitempty"`

	Error string `json:"error,omitempty"`
}

type Page struct {
	Index  int        `json:"page_index"`
	Status job.Status `json:"status"`

	Attempts int `json:"attempts,omitempty"`

	ErrorKind job.ErrorKind `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func toRecognition(p job.Page) Recognition {
	result := Recognition{
		Text: p.Text,
		Raw:  p.Raw,

		Width:  p.Width,
		Height: p.Height,

		Detections: toDetections(p.Regions),

		Malformed: p.Malformed,
		Dropped:   p.Dropped,

		Attempts: p.Attempts,
		Duration: p.Duration.Seconds(),
	}

	return result
}

func toDetections(regions []grounding.Region) []Detection {
	result := []Detection{}

	for _, r := range regions {
		result = append(result, Detection{
			Label: r.Label,
			Boxes: r.Boxes,
		})
	}

	return result
}

func toJob(j *job.Job, pages bool) Job {
	s := j.Snapshot()

	result := Job{
		ID:     s.ID,
		Source: s.Source,

		State: s.State,

		Format: j.Options.Format,
		Mode:   j.Options.Mode,

		Total:     s.Total,
		Completed: s.Completed,
		Failed:    s.Failed,

		Error: s.Error,
	}

	if pages {
		for _, p := range j.Pages() {
			result.Pages = append(result.Pages, Page{
				Index:  p.Index,
				Status: p.Status,

				Attempts: p.Attempts,

				ErrorKind: p.ErrorKind,
				Error:     p.Error,
			})
		}
	}

	return result
}
