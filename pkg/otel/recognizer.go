package otel

import (
	"context"
	"time"

	"github.com/adrianliechti/glimpse/pkg/provider"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

type Recognizer interface {
	otelSetup()

	provider.Recognizer
}

type observableRecognizer struct {
	backend string
	model   string

	recognizer provider.Recognizer

	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func NewRecognizer(backend, model string, r provider.Recognizer) Recognizer {
	meter := otel.Meter(scope)

	requests, _ := meter.Int64Counter("glimpse.recognizer.requests",
		metric.WithDescription("Number of recognition requests"),
	)

	duration, _ := meter.Float64Histogram("glimpse.recognizer.duration",
		metric.WithDescription("Duration of recognition requests"),
		metric.WithUnit("s"),
	)

	return &observableRecognizer{
		backend: backend,
		model:   model,

		recognizer: r,

		requests: requests,
		duration: duration,
	}
}

func (r *observableRecognizer) otelSetup() {
}

func (r *observableRecognizer) Recognize(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
	ctx, span := Tracer().Start(ctx, "recognize "+r.backend)
	defer span.End()

	attributes := []attribute.KeyValue{
		attribute.String("glimpse.backend", r.backend),
		attribute.String("glimpse.model", r.model),
		attribute.String("glimpse.mode", string(req.Mode)),
	}

	span.SetAttributes(attributes...)
	span.SetAttributes(attribute.Int("glimpse.image.size", len(req.Image.Content)))

	start := time.Now()

	result, err := r.recognizer.Recognize(ctx, req)

	status := "ok"

	if err != nil {
		status = "error"

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if result != nil {
		span.SetAttributes(attribute.Int("glimpse.output.length", len(result.Text)))
	}

	attributes = append(attributes, attribute.String("glimpse.status", status))

	r.requests.Add(ctx, 1, metric.WithAttributes(attributes...))
	r.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attributes...))

	return result, err
}

func (r *observableRecognizer) Health(ctx context.Context) provider.Health {
	ctx, span := Tracer().Start(ctx, "health "+r.backend)
	defer span.End()

	h := r.recognizer.Health(ctx)

	span.SetAttributes(attribute.String("glimpse.health", string(h.Status)))

	return h
}
