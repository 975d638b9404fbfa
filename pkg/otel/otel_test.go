package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProtocol(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"", "http"},
		{"http/protobuf", "http"},
		{"grpc", "grpc"},
	}

	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.value, func(t *testing.T) {
			t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", tt.value)
			require.Equal(t, tt.want, Protocol())
		})
	}
}

func TestExporters(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://127.0.0.1:4318")

	for _, protocol := range []string{"http", "grpc"} {
		t.Run(protocol, func(t *testing.T) {
			traces, metrics, logs, err := exporters(context.Background(), protocol)

			require.NoError(t, err)
			require.NotNil(t, traces)
			require.NotNil(t, metrics)
			require.NotNil(t, logs)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			traces.Shutdown(ctx)
			metrics.Shutdown(ctx)
			logs.Shutdown(ctx)
		})
	}
}
