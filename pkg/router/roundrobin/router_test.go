package roundrobin

import (
	"context"
	"testing"

	"github.com/adrianliechti/glimpse/pkg/provider"
	"github.com/adrianliechti/glimpse/pkg/router"

	"github.com/stretchr/testify/require"
)

type staticRecognizer struct {
	name   string
	health provider.HealthStatus
}

func (s *staticRecognizer) Recognize(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
	return &provider.Recognition{Text: s.name}, nil
}

func (s *staticRecognizer) Health(ctx context.Context) provider.Health {
	return provider.Health{Status: s.health, Actual: s.name}
}

func TestRecognizeRotates(t *testing.T) {
	r, err := NewRecognizer(
		router.Route{Name: "a", Recognizer: &staticRecognizer{name: "a"}},
		router.Route{Name: "skip"},
		router.Route{Name: "b", Recognizer: &staticRecognizer{name: "b"}},
	)

	require.NoError(t, err)

	var names []string

	for range 4 {
		result, err := r.Recognize(context.Background(), provider.Request{})
		require.NoError(t, err)

		names = append(names, result.Text)
	}

	require.Equal(t, []string{"a", "b", "a", "b"}, names)
}

func TestHealth(t *testing.T) {
	r, _ := NewRecognizer(
		router.Route{Recognizer: &staticRecognizer{name: "a", health: provider.HealthStatusUnreachable}},
		router.Route{Recognizer: &staticRecognizer{name: "b", health: provider.HealthStatusHealthy}},
	)

	require.Equal(t, "b", r.Health(context.Background()).Actual)

	r, _ = NewRecognizer(
		router.Route{Recognizer: &staticRecognizer{name: "a", health: provider.HealthStatusUnreachable}},
	)

	require.Equal(t, provider.HealthStatusUnreachable, r.Health(context.Background()).Status)
}

func TestNoRoutes(t *testing.T) {
	_, err := NewRecognizer(router.Route{Name: "empty"})
	require.Error(t, err)
}
