package anthropic

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type Config struct {
	url string

	token string
	model string

	maxTokens int64

	client *http.Client
}

type Option func(*Config)

func WithClient(client *http.Client) Option {
	return func(c *Config) {
		c.client = client
	}
}

func WithToken(token string) Option {
	return func(c *Config) {
		c.token = token
	}
}

// bedrock reports whether the endpoint is Amazon Bedrock.
func (cfg *Config) bedrock() bool {
	return strings.Contains(cfg.url, "amazonaws.com")
}

func (cfg *Config) Options() []option.RequestOption {
	// retries belong to the page extractor
	options := []option.RequestOption{
		option.WithMaxRetries(0),
	}

	if cfg.client != nil {
		options = append(options, option.WithHTTPClient(cfg.client))
	}

	if !cfg.bedrock() {
		url := cfg.url

		if url == "" {
			url = "https://api.anthropic.com/"
		}

		options = append(options, option.WithBaseURL(strings.TrimRight(url, "/")+"/"))

		if cfg.token != "" {
			options = append(options, option.WithAPIKey(cfg.token))
		}

		return options
	}

	token := cfg.token

	if token == "" {
		token = os.Getenv("AWS_BEARER_TOKEN_BEDROCK")
	}

	// without a bearer token the default AWS credential chain signs requests
	if token == "" {
		return append(options, bedrock.WithLoadDefaultConfig(context.Background()))
	}

	return append(options,
		option.WithBaseURL(cfg.url),
		option.WithMiddleware(bedrockMiddleware(token)),
	)
}
