package local

import (
	"net/http"
)

type Config struct {
	url   string
	model string

	baseSize  int
	imageSize int
	cropMode  bool

	client *http.Client
}

type Option func(*Config)

func WithClient(client *http.Client) Option {
	return func(c *Config) {
		c.client = client
	}
}

// WithBaseSize sets the global view resolution the model resizes pages to.
func WithBaseSize(size int) Option {
	return func(c *Config) {
		c.baseSize = size
	}
}

// WithImageSize sets the resolution of the local crops.
func WithImageSize(size int) Option {
	return func(c *Config) {
		c.imageSize = size
	}
}

func WithCropMode(enabled bool) Option {
	return func(c *Config) {
		c.cropMode = enabled
	}
}
