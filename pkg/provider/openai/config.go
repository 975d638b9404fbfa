package openai

import (
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"
)

type Config struct {
	url string

	token string
	model string

	client  *http.Client
	limiter *rate.Limiter
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

// WithRateLimit caps outgoing requests per second. Zero or less disables it.
func WithRateLimit(limit float64) Option {
	return func(c *Config) {
		if limit <= 0 {
			c.limiter = nil
			return
		}

		c.limiter = rate.NewLimiter(rate.Limit(limit), 1)
	}
}

func (cfg *Config) Options() []option.RequestOption {
	url := cfg.url

	if url == "" {
		url = "http://localhost:8000/v1"
	}

	url = strings.TrimRight(url, "/") + "/"

	token := cfg.token

	// vLLM accepts any key when it runs without one
	if token == "" {
		token = "EMPTY"
	}

	options := []option.RequestOption{
		option.WithBaseURL(url),
		option.WithAPIKey(token),

		// retries belong to the page orchestrator
		option.WithMaxRetries(0),
	}

	if cfg.client != nil {
		options = append(options, option.WithHTTPClient(cfg.client))
	}

	return options
}
