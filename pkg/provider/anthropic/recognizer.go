package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/adrianliechti/glimpse/pkg/provider"

	"github.com/anthropics/anthropic-sdk-go"
)

var _ provider.Recognizer = (*Recognizer)(nil)

// Recognizer transcribes pages with a general purpose vision model. Such
// models do not emit grounding tags, so their pages carry text only.
type Recognizer struct {
	*Config

	messages anthropic.MessageService
	models   anthropic.ModelService
}

func NewRecognizer(url, model string, options ...Option) (*Recognizer, error) {
	cfg := &Config{
		url:   url,
		model: model,

		maxTokens: 8192,
	}

	for _, option := range options {
		option(cfg)
	}

	if cfg.model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	return &Recognizer{
		Config: cfg,

		messages: anthropic.NewMessageService(cfg.Options()...),
		models:   anthropic.NewModelService(cfg.Options()...),
	}, nil
}

func (r *Recognizer) Recognize(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
	prompt, err := provider.BuildPrompt(req)

	if err != nil {
		return nil, err
	}

	contentType := req.Image.ContentType

	if contentType == "" {
		contentType = http.DetectContentType(req.Image.Content)
	}

	message, err := r.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: r.maxTokens,

		Temperature: anthropic.Float(0),

		System: []anthropic.TextBlockParam{
			{Text: "You transcribe document images. Answer with the transcription only, without commentary."},
		},

		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(contentType, base64.StdEncoding.EncodeToString(req.Image.Content)),
				anthropic.NewTextBlock(instruction(prompt)),
			),
		},
	})

	if err != nil {
		return nil, convertError(err)
	}

	var text strings.Builder

	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &provider.Recognition{
		Text:  text.String(),
		Model: string(message.Model),
	}, nil
}

func (r *Recognizer) Health(ctx context.Context) provider.Health {
	// Bedrock has no model listing on the messages endpoint
	if r.bedrock() {
		return provider.Health{
			Status: provider.HealthStatusHealthy,

			Expected: r.model,
			Actual:   r.model,
		}
	}

	page, err := r.models.List(ctx, anthropic.ModelListParams{})

	if err != nil {
		return provider.Health{
			Status: provider.HealthStatusUnreachable,

			Expected: r.model,
			Error:    err.Error(),
		}
	}

	var models []string

	for _, m := range page.Data {
		models = append(models, m.ID)
	}

	return provider.CheckModel(r.model, models)
}

// instruction drops the markers only grounding models understand.
func instruction(prompt string) string {
	prompt = strings.ReplaceAll(prompt, provider.ImagePlaceholder, "")
	prompt = strings.ReplaceAll(prompt, "<|grounding|>", "")
	prompt = strings.ReplaceAll(prompt, "<|ref|>", "\"")
	prompt = strings.ReplaceAll(prompt, "<|/ref|>", "\"")

	return strings.TrimSpace(prompt)
}

func convertError(err error) error {
	var apierr *anthropic.Error

	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusRequestTimeout:
			return provider.ErrTimeout

		case apierr.StatusCode == http.StatusTooManyRequests || apierr.StatusCode >= 500:
			return provider.NewTransportError(err)

		default:
			return provider.NewModelError(apierr.Error())
		}
	}

	return provider.NewTransportError(err)
}
