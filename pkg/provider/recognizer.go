package provider

import (
	"context"
)

type Recognizer interface {
	Recognize(ctx context.Context, req Request) (*Recognition, error)
	Health(ctx context.Context) Health
}

type File struct {
	Name string

	Content     []byte
	ContentType string
}

type Request struct {
	Image File

	Mode Mode

	// Prompt is the instruction for ModeFreeform.
	Prompt string

	// Term is the text to locate for ModeFind.
	Term string

	// Caption asks for a short caption below every figure.
	Caption bool
}

type Recognition struct {
	Text  string
	Model string
}

type HealthStatus string

const (
	HealthStatusHealthy       HealthStatus = "healthy"
	HealthStatusUnreachable   HealthStatus = "unreachable"
	HealthStatusModelMismatch HealthStatus = "model_mismatch"
)

type Health struct {
	Status HealthStatus `json:"status"`

	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`

	Error string `json:"error,omitempty"`
}

func (h Health) Healthy() bool {
	return h.Status == HealthStatusHealthy
}

// CheckModel compares the configured model against the ones a backend serves.
func CheckModel(expected string, available []string) Health {
	if len(available) == 0 {
		return Health{
			Status: HealthStatusModelMismatch,

			Expected: expected,
		}
	}

	for _, m := range available {
		if m == expected || expected == "" {
			return Health{
				Status: HealthStatusHealthy,

				Expected: expected,
				Actual:   m,
			}
		}
	}

	return Health{
		Status: HealthStatusModelMismatch,

		Expected: expected,
		Actual:   available[0],
	}
}
