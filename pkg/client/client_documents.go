package client

import (
	"context"
	"io"
	"net/http"
)

type DocumentService struct {
	Options []RequestOption
}

func NewDocumentService(opts ...RequestOption) DocumentService {
	return DocumentService{
		Options: opts,
	}
}

type Document struct {
	JobID string

	Content     []byte
	ContentType string
}

type DocumentRequest struct {
	Name   string
	Reader io.Reader

	Options
}

// New converts a document and waits for the result.
func (r *DocumentService) New(ctx context.Context, input DocumentRequest, opts ...RequestOption) (*Document, error) {
	c := newRequestConfig(append(r.Options, opts...)...)

	data, contentType, err := newUpload(input.Name, input.Reader, input.Options)

	if err != nil {
		return nil, err
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/v1/documents", data)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.do(req)

	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)

	if err != nil {
		return nil, err
	}

	return &Document{
		JobID: resp.Header.Get("X-Job-Id"),

		Content:     content,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
