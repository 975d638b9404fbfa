package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/adrianliechti/glimpse/server/api"
)

type JobService struct {
	Options []RequestOption
}

func NewJobService(opts ...RequestOption) JobService {
	return JobService{
		Options: opts,
	}
}

type Job = api.Job

type JobRequest struct {
	Name   string
	Reader io.Reader

	Options
}

type ResultOptions struct {
	// Format renders the result in another format than the job was created with.
	Format string

	// Wait blocks until the job finished.
	Wait bool
}

func (r *JobService) New(ctx context.Context, input JobRequest, opts ...RequestOption) (*Job, error) {
	c := newRequestConfig(append(r.Options, opts...)...)

	data, contentType, err := newUpload(input.Name, input.Reader, input.Options)

	if err != nil {
		return nil, err
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/v1/jobs", data)
	req.Header.Set("Content-Type", contentType)

	return doJob(c, req)
}

func (r *JobService) Get(ctx context.Context, id string, opts ...RequestOption) (*Job, error) {
	c := newRequestConfig(append(r.Options, opts...)...)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.URL+"/v1/jobs/"+url.PathEscape(id), nil)

	return doJob(c, req)
}

func (r *JobService) Cancel(ctx context.Context, id string, opts ...RequestOption) (*Job, error) {
	c := newRequestConfig(append(r.Options, opts...)...)

	req, _ := http.NewRequestWithContext(ctx, http.MethodDelete, c.URL+"/v1/jobs/"+url.PathEscape(id), nil)

	return doJob(c, req)
}

func (r *JobService) Result(ctx context.Context, id string, options *ResultOptions, opts ...RequestOption) (*Document, error) {
	c := newRequestConfig(append(r.Options, opts...)...)

	query := url.Values{}

	if options != nil {
		if options.Format != "" {
			query.Set("format", options.Format)
		}

		if options.Wait {
			query.Set("wait", "true")
		}
	}

	u := c.URL + "/v1/jobs/" + url.PathEscape(id) + "/result"

	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)

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
		JobID: id,

		Content:     content,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func doJob(c *RequestConfig, req *http.Request) (*Job, error) {
	resp, err := c.do(req)

	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	var result Job

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}
