package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adrianliechti/glimpse/pkg/assembler"
	"github.com/adrianliechti/glimpse/pkg/job"
	"github.com/adrianliechti/glimpse/pkg/provider"
	"github.com/adrianliechti/glimpse/pkg/rasterizer"

	"gopkg.in/yaml.v3"
)

const (
	BackendRemote    = "remote"
	BackendLocal     = "local"
	BackendTesseract = "tesseract"
	BackendAnthropic = "anthropic"
)

type Config struct {
	Backend string `yaml:"backend"`

	// Endpoint defaults per backend when empty.
	Endpoint  string   `yaml:"endpoint"`
	Endpoints []string `yaml:"endpoints"`

	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`

	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
	RateLimit float64       `yaml:"rate_limit"`

	DPI         int  `yaml:"dpi"`
	Concurrency int  `yaml:"concurrency"`
	Images      bool `yaml:"extract_images"`
	Caption     bool `yaml:"include_caption"`

	Format string `yaml:"format"`
	Mode   string `yaml:"mode"`

	BaseSize  int  `yaml:"base_size"`
	ImageSize int  `yaml:"image_size"`
	CropMode  bool `yaml:"crop_mode"`

	Languages []string `yaml:"languages"`

	Address string `yaml:"address"`
	Token   string `yaml:"token"`
}

func Default() *Config {
	return &Config{
		Backend: BackendRemote,

		Model: "deepseek-ai/DeepSeek-OCR",

		Timeout: 2 * time.Minute,
		Retries: 2,

		DPI:         rasterizer.DefaultDPI,
		Concurrency: 1,
		Images:      true,

		Format: string(job.FormatMarkdown),
		Mode:   string(provider.ModeMarkdown),

		BaseSize:  1024,
		ImageSize: 640,
		CropMode:  true,

		Address: ":8080",
	}
}

// Load reads the configuration from path, if given, and applies GLIMPSE_*
// environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)

		if err != nil {
			return nil, err
		}

		if err := cfg.parse(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) parse(data []byte) error {
	data = []byte(os.ExpandEnv(string(data)))

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

func (cfg *Config) applyEnv() error {
	var errs []error

	str := func(key string, target *string) {
		if val := os.Getenv(key); val != "" {
			*target = val
		}
	}

	num := func(key string, target *int) {
		if val := os.Getenv(key); val != "" {
			n, err := strconv.Atoi(val)

			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}

			*target = n
		}
	}

	flag := func(key string, target *bool) {
		if val := os.Getenv(key); val != "" {
			b, err := strconv.ParseBool(val)

			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}

			*target = b
		}
	}

	str("GLIMPSE_BACKEND", &cfg.Backend)
	str("GLIMPSE_ENDPOINT", &cfg.Endpoint)
	str("GLIMPSE_MODEL", &cfg.Model)

	if cfg.APIKey == "" {
		str("OPENAI_API_KEY", &cfg.APIKey)
	}

	str("GLIMPSE_API_KEY", &cfg.APIKey)

	if val := os.Getenv("GLIMPSE_ENDPOINTS"); val != "" {
		cfg.Endpoints = strings.Split(val, ",")
	}

	if val := os.Getenv("GLIMPSE_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)

		if err != nil {
			errs = append(errs, fmt.Errorf("GLIMPSE_TIMEOUT: %w", err))
		} else {
			cfg.Timeout = d
		}
	}

	if val := os.Getenv("GLIMPSE_RATE_LIMIT"); val != "" {
		f, err := strconv.ParseFloat(val, 64)

		if err != nil {
			errs = append(errs, fmt.Errorf("GLIMPSE_RATE_LIMIT: %w", err))
		} else {
			cfg.RateLimit = f
		}
	}

	num("GLIMPSE_RETRIES", &cfg.Retries)
	num("GLIMPSE_DPI", &cfg.DPI)
	num("GLIMPSE_CONCURRENCY", &cfg.Concurrency)
	num("GLIMPSE_BASE_SIZE", &cfg.BaseSize)
	num("GLIMPSE_IMAGE_SIZE", &cfg.ImageSize)

	flag("GLIMPSE_EXTRACT_IMAGES", &cfg.Images)
	flag("GLIMPSE_INCLUDE_CAPTION", &cfg.Caption)
	flag("GLIMPSE_CROP_MODE", &cfg.CropMode)

	str("GLIMPSE_FORMAT", &cfg.Format)
	str("GLIMPSE_MODE", &cfg.Mode)

	str("GLIMPSE_ADDRESS", &cfg.Address)
	str("GLIMPSE_TOKEN", &cfg.Token)

	return errors.Join(errs...)
}

func (cfg *Config) Validate() error {
	var errs []error

	switch strings.ToLower(cfg.Backend) {
	case BackendRemote, "openai", BackendLocal, BackendTesseract, BackendAnthropic:
	default:
		errs = append(errs, errors.New("invalid backend: "+cfg.Backend))
	}

	if cfg.DPI < rasterizer.MinDPI || cfg.DPI > rasterizer.MaxDPI {
		errs = append(errs, fmt.Errorf("dpi must be within [%d, %d]: %d", rasterizer.MinDPI, rasterizer.MaxDPI, cfg.DPI))
	}

	if cfg.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1: %d", cfg.Concurrency))
	}

	if cfg.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative: %d", cfg.Retries))
	}

	if cfg.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive: %s", cfg.Timeout))
	}

	if cfg.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative: %v", cfg.RateLimit))
	}

	if _, err := assembler.ParseFormat(cfg.Format); err != nil {
		errs = append(errs, err)
	}

	if _, err := provider.ParseMode(cfg.Mode); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// JobOptions returns the per-job defaults a new document job starts with.
func (cfg *Config) JobOptions() job.Options {
	format, _ := assembler.ParseFormat(cfg.Format)
	mode, _ := provider.ParseMode(cfg.Mode)

	return job.Options{
		Format: format,
		Mode:   mode,

		DPI:           cfg.DPI,
		ExtractImages: cfg.Images,
		Caption:       cfg.Caption,
	}
}
