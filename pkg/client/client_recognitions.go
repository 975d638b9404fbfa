package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/adrianliechti/glimpse/server/api"
)

type RecognitionService struct {
	Options []RequestOption
}

func NewRecognitionService(opts ...RequestOption) RecognitionService {
	return RecognitionService{
		Options: opts,
	}
}

type Recognition = api.Recognition

type RecognitionRequest struct {
	Name   string
	Reader io.Reader

	Options
}

// New recognizes a single image.
func (r *RecognitionService) New(ctx context.Context, input RecognitionRequest, opts ...RequestOption) (*Recognition, error) {
	c := newRequestConfig(append(r.Options, opts...)...)

	data, contentType, err := newUpload(input.Name, input.Reader, input.Options)

	if err != nil {
		return nil, err
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/v1/ocr", data)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.do(req)

	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	var result Recognition

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}
