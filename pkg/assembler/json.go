package assembler

import (
	"bytes"
	"encoding/json"

	"github.com/adrianliechti/glimpse/pkg/grounding"
	"github.com/adrianliechti/glimpse/pkg/job"
)

type jsonPage struct {
	PageIndex int        `json:"page_index"`
	Status    job.Status `json:"status"`

	CleanText string `json:"clean_text"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	Detections []jsonDetection `json:"detections"`
	Images     []jsonImage     `json:"images,omitempty"`

	Malformed int `json:"malformed_tags,omitempty"`
	Dropped   int `json:"dropped_boxes,omitempty"`

	ErrorKind job.ErrorKind `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
}

type jsonDetection struct {
	Label string               `json:"label"`
	Boxes []grounding.PixelBox `json:"boxes"`
}

type jsonImage struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Label string `json:"label"`

	Offset int                `json:"offset"`
	Box    grounding.PixelBox `json:"box"`
}

func renderJSON(pages []job.Page) ([]byte, error) {
	result := make([]jsonPage, 0, len(pages))

	for _, p := range pages {
		page := jsonPage{
			PageIndex: p.Index,
			Status:    p.Status,

			CleanText: p.Text,

			Width:  p.Width,
			Height: p.Height,

			Detections: []jsonDetection{},

			Malformed: p.Malformed,
			Dropped:   p.Dropped,

			ErrorKind: p.ErrorKind,
			Error:     p.Error,
		}

		for _, r := range p.Regions {
			page.Detections = append(page.Detections, jsonDetection{
				Label: r.Label,
				Boxes: r.Boxes,
			})
		}

		for _, img := range p.Images {
			page.Images = append(page.Images, jsonImage{
				Index: img.Index,
				Name:  img.Name(),
				Label: img.Label,

				Offset: img.Offset,
				Box:    img.Box,
			})
		}

		result = append(result, page)
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(result); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
