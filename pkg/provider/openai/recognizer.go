package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/adrianliechti/glimpse/pkg/provider"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var _ provider.Recognizer = (*Recognizer)(nil)

// grounding token ids of <|ref|>, <|/ref|>, <|det|>, <|/det|> and <|grounding|>
var groundingTokens = []int{32006, 32007, 32008, 32009, 32010}

type Recognizer struct {
	*Config

	completions openai.ChatCompletionService
	models      openai.ModelService
}

func NewRecognizer(url, model string, options ...Option) (*Recognizer, error) {
	cfg := &Config{
		url:   url,
		model: model,
	}

	for _, option := range options {
		option(cfg)
	}

	return &Recognizer{
		Config: cfg,

		completions: openai.NewChatCompletionService(cfg.Options()...),
		models:      openai.NewModelService(cfg.Options()...),
	}, nil
}

func (r *Recognizer) Recognize(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
	prompt, err := provider.BuildPrompt(req)

	if err != nil {
		return nil, err
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, provider.NewTransportError(err)
		}
	}

	text := strings.TrimSpace(strings.ReplaceAll(prompt, provider.ImagePlaceholder, ""))

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),

		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL(req.Image),
				}),

				openai.TextContentPart(text),
			}),
		},

		MaxTokens:   openai.Int(2048),
		Temperature: openai.Float(0),
	}

	completion, err := r.completions.New(ctx, params,
		option.WithJSONSet("skip_special_tokens", false),
		option.WithJSONSet("vllm_xargs", map[string]any{
			"ngram_size":          5,
			"window_size":         10,
			"whitelist_token_ids": groundingTokens,
		}),
	)

	if err != nil {
		return nil, convertError(err)
	}

	if len(completion.Choices) == 0 {
		return nil, provider.NewModelError("no choices returned")
	}

	return &provider.Recognition{
		Text:  completion.Choices[0].Message.Content,
		Model: completion.Model,
	}, nil
}

func (r *Recognizer) Health(ctx context.Context) provider.Health {
	page, err := r.models.List(ctx)

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

func dataURL(file provider.File) string {
	contentType := file.ContentType

	if contentType == "" {
		contentType = http.DetectContentType(file.Content)
	}

	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(file.Content)
}

func convertError(err error) error {
	var apierr *openai.Error

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
