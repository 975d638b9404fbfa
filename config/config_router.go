package config

import (
	"errors"
	"fmt"

	"github.com/adrianliechti/glimpse/pkg/otel"
	"github.com/adrianliechti/glimpse/pkg/provider"
	"github.com/adrianliechti/glimpse/pkg/router"
	"github.com/adrianliechti/glimpse/pkg/router/roundrobin"
)

func (cfg *Config) registerRouter(backend string, endpoints []string) (provider.Recognizer, error) {
	var routes []router.Route

	for i, endpoint := range endpoints {
		recognizer, err := createRecognizer(cfg, backend, endpoint)

		if err != nil {
			return nil, err
		}

		routes = append(routes, router.Route{
			Name: fmt.Sprintf("%s-%d", backend, i),

			Recognizer: otel.NewRecognizer(backend, cfg.Model, recognizer),
		})
	}

	r, err := createRouter("roundrobin", routes)

	if err != nil {
		return nil, err
	}

	if _, ok := r.(otel.Recognizer); !ok {
		r = otel.NewRecognizer("roundrobin", cfg.Model, r)
	}

	return r, nil
}

func createRouter(kind string, routes []router.Route) (provider.Recognizer, error) {
	switch kind {
	case "roundrobin":
		return roundrobinRouter(routes)

	default:
		return nil, errors.New("invalid router type: " + kind)
	}
}

func roundrobinRouter(routes []router.Route) (provider.Recognizer, error) {
	return roundrobin.NewRecognizer(routes...)
}
