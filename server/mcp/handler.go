// Package mcp exposes single image OCR as a Model Context Protocol tool.
package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/adrianliechti/glimpse/pkg/assembler"
	"github.com/adrianliechti/glimpse/pkg/extractor"
	"github.com/adrianliechti/glimpse/pkg/grounding"
	"github.com/adrianliechti/glimpse/pkg/job"
	"github.com/adrianliechti/glimpse/pkg/provider"

	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const ToolName = "ocr_image"

type Handler struct {
	server  *sdk.Server
	handler http.Handler

	extractor *extractor.Extractor
}

type Input struct {
	Image string `json:"image" jsonschema:"base64 encoded image, PNG, JPEG, GIF, BMP, TIFF or WebP"`

	Mode   string `json:"mode,omitempty" jsonschema:"recognition mode, defaults to markdown"`
	Term   string `json:"term,omitempty" jsonschema:"term to locate in find mode"`
	Prompt string `json:"prompt,omitempty" jsonschema:"instruction for freeform mode"`
}

type Output struct {
	Text string `json:"text"`

	Width  int `json:"width"`
	Height int `json:"height"`

	Detections []Detection `json:"detections"`
}

type Detection struct {
	Label string   `json:"label"`
	Boxes [][4]int `json:"boxes"`
}

func New(e *extractor.Extractor, version string) (*Handler, error) {
	h := &Handler{
		extractor: e,
	}

	schema, err := jsonschema.For[Input](nil)

	if err != nil {
		return nil, err
	}

	if mode, ok := schema.Properties["mode"]; ok {
		for _, m := range provider.Modes {
			mode.Enum = append(mode.Enum, string(m))
		}
	}

	h.server = sdk.NewServer(&sdk.Implementation{
		Name:    "glimpse",
		Version: version,
	}, nil)

	sdk.AddTool(h.server, &sdk.Tool{
		Name:        ToolName,
		Description: "Recognize the text in an image and locate the labelled regions the model grounds.",

		InputSchema: schema,
	}, h.handleOCR)

	h.handler = sdk.NewStreamableHTTPHandler(func(*http.Request) *sdk.Server {
		return h.server
	}, nil)

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *Handler) handleOCR(ctx context.Context, req *sdk.CallToolRequest, in Input) (*sdk.CallToolResult, Output, error) {
	data, err := base64.StdEncoding.DecodeString(trimDataURL(in.Image))

	if err != nil {
		return nil, Output{}, errors.New("image is not valid base64")
	}

	mode, err := provider.ParseMode(in.Mode)

	if err != nil {
		return nil, Output{}, err
	}

	page, err := h.extractor.ExtractImage(ctx, data, extractor.Input{
		Mode:   mode,
		Term:   in.Term,
		Prompt: in.Prompt,
	})

	if err != nil {
		return nil, Output{}, err
	}

	if page.Status == job.StatusFailed {
		return nil, Output{}, errors.New(assembler.FailureSummary(page))
	}

	out := Output{
		Text: page.Text,

		Width:  page.Width,
		Height: page.Height,

		Detections: toDetections(page.Regions),
	}

	result := &sdk.CallToolResult{
		Content: []sdk.Content{
			&sdk.TextContent{Text: page.Text},
		},
	}

	return result, out, nil
}

func toDetections(regions []grounding.Region) []Detection {
	result := []Detection{}

	for _, r := range regions {
		d := Detection{
			Label: r.Label,
		}

		for _, b := range r.Boxes {
			d.Boxes = append(d.Boxes, [4]int(b))
		}

		result = append(result, d)
	}

	return result
}

// trimDataURL accepts both bare base64 and data URLs.
func trimDataURL(s string) string {
	s = strings.TrimSpace(s)

	if !strings.HasPrefix(s, "data:") {
		return s
	}

	if _, data, ok := strings.Cut(s, ","); ok {
		return data
	}

	return s
}
