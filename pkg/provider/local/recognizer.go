package local

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/adrianliechti/glimpse/pkg/provider"
)

var _ provider.Recognizer = (*Recognizer)(nil)

// Recognizer talks to a resident model worker on the same host. The worker
// holds a single model instance, so requests are sent one at a time.
type Recognizer struct {
	*Config

	mu sync.Mutex
}

func NewRecognizer(url, model string, options ...Option) (*Recognizer, error) {
	cfg := &Config{
		url:   url,
		model: model,

		baseSize:  1024,
		imageSize: 640,
		cropMode:  true,

		client: http.DefaultClient,
	}

	for _, option := range options {
		option(cfg)
	}

	if cfg.url == "" {
		cfg.url = "http://127.0.0.1:8765"
	}

	cfg.url = strings.TrimRight(cfg.url, "/")

	return &Recognizer{
		Config: cfg,
	}, nil
}

type inferRequest struct {
	Prompt string `json:"prompt"`
	Image  string `json:"image_base64"`

	BaseSize  int  `json:"base_size"`
	ImageSize int  `json:"image_size"`
	CropMode  bool `json:"crop_mode"`
}

type inferResponse struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`

	Error string `json:"error,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

func (r *Recognizer) Recognize(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
	prompt, err := provider.BuildPrompt(req)

	if err != nil {
		return nil, err
	}

	body := inferRequest{
		Prompt: prompt,
		Image:  base64.StdEncoding.EncodeToString(req.Image.Content),

		BaseSize:  r.baseSize,
		ImageSize: r.imageSize,
		CropMode:  r.cropMode,
	}

	var data bytes.Buffer

	if err := json.NewEncoder(&data).Encode(body); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// the context may have expired while waiting for the worker
	if err := ctx.Err(); err != nil {
		return nil, provider.NewTransportError(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/infer", &data)

	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)

	if err != nil {
		return nil, provider.NewTransportError(err)
	}

	defer resp.Body.Close()

	var result inferResponse

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil && !errors.Is(err, io.EOF) {
		return nil, provider.NewTransportError(err)
	}

	if resp.StatusCode >= 500 {
		return nil, provider.NewTransportError(errors.New(resp.Status + " " + result.Error))
	}

	if resp.StatusCode != http.StatusOK || result.Error != "" {
		message := result.Error

		if message == "" {
			message = resp.Status
		}

		return nil, provider.NewModelError(message)
	}

	model := result.Model

	if model == "" {
		model = r.model
	}

	return &provider.Recognition{
		Text:  result.Text,
		Model: model,
	}, nil
}

func (r *Recognizer) Health(ctx context.Context) provider.Health {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url+"/health", nil)

	if err != nil {
		return unreachable(r.model, err)
	}

	resp, err := r.client.Do(req)

	if err != nil {
		return unreachable(r.model, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unreachable(r.model, errors.New(resp.Status))
	}

	var result healthResponse

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return unreachable(r.model, err)
	}

	if result.Model == "" {
		return provider.Health{
			Status:   provider.HealthStatusHealthy,
			Expected: r.model,
		}
	}

	return provider.CheckModel(r.model, []string{result.Model})
}

func unreachable(model string, err error) provider.Health {
	return provider.Health{
		Status: provider.HealthStatusUnreachable,

		Expected: model,
		Error:    err.Error(),
	}
}
