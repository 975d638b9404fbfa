package config

import (
	"errors"
	"os"
	"strings"

	"github.com/adrianliechti/glimpse/pkg/extractor"
	"github.com/adrianliechti/glimpse/pkg/orchestrator"
	"github.com/adrianliechti/glimpse/pkg/otel"
	"github.com/adrianliechti/glimpse/pkg/provider"
	"github.com/adrianliechti/glimpse/pkg/provider/anthropic"
	"github.com/adrianliechti/glimpse/pkg/provider/local"
	"github.com/adrianliechti/glimpse/pkg/provider/openai"
	"github.com/adrianliechti/glimpse/pkg/provider/tesseract"
	"github.com/adrianliechti/glimpse/pkg/rasterizer"
)

// Recognizer builds the configured inference backend. Several remote
// endpoints are spread round-robin.
func (cfg *Config) Recognizer() (provider.Recognizer, error) {
	backend := strings.ToLower(cfg.Backend)

	endpoints := cfg.endpoints()

	if backend != BackendTesseract && len(endpoints) > 1 {
		return cfg.registerRouter(backend, endpoints)
	}

	endpoint := ""

	if len(endpoints) > 0 {
		endpoint = endpoints[0]
	}

	r, err := createRecognizer(cfg, backend, endpoint)

	if err != nil {
		return nil, err
	}

	return otel.NewRecognizer(backend, cfg.Model, r), nil
}

func (cfg *Config) endpoints() []string {
	var result []string

	for _, e := range append([]string{cfg.Endpoint}, cfg.Endpoints...) {
		e = strings.TrimSpace(e)

		if e == "" {
			continue
		}

		result = append(result, e)
	}

	return result
}

func createRecognizer(cfg *Config, backend, endpoint string) (provider.Recognizer, error) {
	switch backend {
	case BackendRemote, "openai":
		return openaiRecognizer(cfg, endpoint)

	case BackendLocal:
		return localRecognizer(cfg, endpoint)

	case BackendTesseract:
		return tesseractRecognizer(cfg)

	case BackendAnthropic:
		return anthropicRecognizer(cfg, endpoint)

	default:
		return nil, errors.New("invalid backend: " + cfg.Backend)
	}
}

func openaiRecognizer(cfg *Config, endpoint string) (provider.Recognizer, error) {
	options := []openai.Option{
		openai.WithClient(otel.HTTPClient()),
		openai.WithRateLimit(cfg.RateLimit),
	}

	if cfg.APIKey != "" {
		options = append(options, openai.WithToken(cfg.APIKey))
	}

	return openai.NewRecognizer(endpoint, cfg.Model, options...)
}

func localRecognizer(cfg *Config, endpoint string) (provider.Recognizer, error) {
	options := []local.Option{
		local.WithClient(otel.HTTPClient()),

		local.WithBaseSize(cfg.BaseSize),
		local.WithImageSize(cfg.ImageSize),
		local.WithCropMode(cfg.CropMode),
	}

	return local.NewRecognizer(endpoint, cfg.Model, options...)
}

func anthropicRecognizer(cfg *Config, endpoint string) (provider.Recognizer, error) {
	options := []anthropic.Option{
		anthropic.WithClient(otel.HTTPClient()),
	}

	token := cfg.APIKey

	if token == "" {
		token = os.Getenv("ANTHROPIC_API_KEY")
	}

	if token != "" {
		options = append(options, anthropic.WithToken(token))
	}

	return anthropic.NewRecognizer(endpoint, cfg.Model, options...)
}

func tesseractRecognizer(cfg *Config) (provider.Recognizer, error) {
	var options []tesseract.Option

	if len(cfg.Languages) > 0 {
		options = append(options, tesseract.WithLanguages(cfg.Languages...))
	}

	return tesseract.NewRecognizer(options...)
}

// Extractor wires the retry policy around a recognizer.
func (cfg *Config) Extractor(r provider.Recognizer) *extractor.Extractor {
	return extractor.New(r,
		extractor.WithTimeout(cfg.Timeout),
		extractor.WithRetries(cfg.Retries),
	)
}

func (cfg *Config) Orchestrator(r provider.Recognizer, options ...orchestrator.Option) *orchestrator.Orchestrator {
	options = append([]orchestrator.Option{
		orchestrator.WithConcurrency(cfg.Concurrency),
	}, options...)

	return orchestrator.New(rasterizer.New(), cfg.Extractor(r), options...)
}
