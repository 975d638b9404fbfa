package local

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adrianliechti/glimpse/pkg/provider"

	"github.com/stretchr/testify/require"
)

func TestRecognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req inferRequest
		json.NewDecoder(r.Body).Decode(&req)

		image, _ := base64.StdEncoding.DecodeString(req.Image)

		if string(image) != "png" || req.BaseSize != 1280 || !req.CropMode {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(inferResponse{Error: "unexpected request"})
			return
		}

		json.NewEncoder(w).Encode(inferResponse{Text: req.Prompt})
	}))

	defer server.Close()

	r, err := NewRecognizer(server.URL, "deepseek-ai/DeepSeek-OCR", WithBaseSize(1280))
	require.NoError(t, err)

	result, err := r.Recognize(context.Background(), provider.Request{
		Image: provider.File{Content: []byte("png")},
		Mode:  provider.ModePlain,
	})

	require.NoError(t, err)
	require.Equal(t, "<image>\nFree OCR.", result.Text)
	require.Equal(t, "deepseek-ai/DeepSeek-OCR", result.Model)
}

func TestRecognizeErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"model rejects input", http.StatusUnprocessableEntity, false},
		{"worker crashed", http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(inferResponse{Error: "failed"})
			}))

			defer server.Close()

			r, _ := NewRecognizer(server.URL, "model")

			_, err := r.Recognize(context.Background(), provider.Request{})

			require.Error(t, err)
			require.Equal(t, tt.retryable, provider.Retryable(err))
		})
	}
}

func TestRecognizeSerializesCalls(t *testing.T) {
	var active, peak atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := active.Add(1)
		defer active.Add(-1)

		for {
			p := peak.Load()

			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		time.Sleep(10 * time.Millisecond)
		json.NewEncoder(w).Encode(inferResponse{Text: "ok"})
	}))

	defer server.Close()

	r, _ := NewRecognizer(server.URL, "model")

	var wg sync.WaitGroup

	for range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			r.Recognize(context.Background(), provider.Request{})
		}()
	}

	wg.Wait()

	require.Equal(t, int32(1), peak.Load())
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(healthResponse{Status: "ok", Model: "deepseek-ai/DeepSeek-OCR"})
	}))

	defer server.Close()

	r, _ := NewRecognizer(server.URL, "deepseek-ai/DeepSeek-OCR")
	require.True(t, r.Health(context.Background()).Healthy())

	r, _ = NewRecognizer(server.URL, "other")
	require.Equal(t, provider.HealthStatusModelMismatch, r.Health(context.Background()).Status)

	server.Close()

	require.Equal(t, provider.HealthStatusUnreachable, r.Health(context.Background()).Status)
}
