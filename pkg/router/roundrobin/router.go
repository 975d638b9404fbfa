package roundrobin

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/adrianliechti/glimpse/pkg/provider"
	"github.com/adrianliechti/glimpse/pkg/router"
)

var _ provider.Recognizer = (*Recognizer)(nil)

type Recognizer struct {
	recognizers []provider.Recognizer

	next atomic.Uint64
}

func NewRecognizer(routes ...router.Route) (*Recognizer, error) {
	recognizers := []provider.Recognizer{}

	for _, r := range routes {
		if r.Recognizer == nil {
			continue
		}

		recognizers = append(recognizers, r.Recognizer)
	}

	if len(recognizers) == 0 {
		return nil, errors.New("no recognizers to route to")
	}

	r := &Recognizer{
		recognizers: recognizers,
	}

	return r, nil
}

func (r *Recognizer) Recognize(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
	index := (r.next.Add(1) - 1) % uint64(len(r.recognizers))
	recognizer := r.recognizers[index]

	return recognizer.Recognize(ctx, req)
}

// Health is healthy as long as one route is.
func (r *Recognizer) Health(ctx context.Context) provider.Health {
	var first provider.Health

	for i, recognizer := range r.recognizers {
		h := recognizer.Health(ctx)

		if h.Healthy() {
			return h
		}

		if i == 0 {
			first = h
		}
	}

	return first
}
