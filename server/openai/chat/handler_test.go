package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/adrianliechti/glimpse/config"
	"github.com/adrianliechti/glimpse/pkg/extractor"
	"github.com/adrianliechti/glimpse/pkg/provider"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type recordingRecognizer struct {
	requests []provider.Request
}

func (r *recordingRecognizer) Recognize(ctx context.Context, req provider.Request) (*provider.Recognition, error) {
	r.requests = append(r.requests, req)
	return &provider.Recognition{Text: "<|ref|>title<|/ref|><|det|>[[1,1,9,9]]<|/det|>\n# Invoice"}, nil
}

func (r *recordingRecognizer) Health(ctx context.Context) provider.Health {
	return provider.Health{Status: provider.HealthStatusHealthy}
}

func newServer(t *testing.T, r provider.Recognizer) *httptest.Server {
	mux := chi.NewRouter()

	New(config.Default(), extractor.New(r)).Attach(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func imageURL(t *testing.T) string {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10))))

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func post(t *testing.T, server *httptest.Server, body any) *http.Response {
	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/chat/completions", "application/json", bytes.NewReader(data))
	require.NoError(t, err)

	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func TestChatCompletion(t *testing.T) {
	r := &recordingRecognizer{}
	server := newServer(t, r)

	resp := post(t, server, map[string]any{
		"model": "glimpse",
		"messages": []any{
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "image_url", "image_url": map[string]any{"url": imageURL(t)}},
				},
			},
		},
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var completion Completion
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&completion))

	require.Equal(t, "chat.completion", completion.Object)
	require.Equal(t, "deepseek-ai/DeepSeek-OCR", completion.Model)
	require.Len(t, completion.Choices, 1)
	require.Equal(t, "# Invoice", completion.Choices[0].Message.Content)

	require.Len(t, r.requests, 1)
	require.Equal(t, provider.ModeMarkdown, r.requests[0].Mode)
}

func TestChatCompletionPrompt(t *testing.T) {
	r := &recordingRecognizer{}
	server := newServer(t, r)

	resp := post(t, server, map[string]any{
		"messages": []any{
			map[string]any{"role": "system", "content": "ignored"},
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "text", "text": "List the totals."},
					map[string]any{"type": "image_url", "image_url": map[string]any{"url": imageURL(t)}},
				},
			},
		},
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, provider.ModeFreeform, r.requests[0].Mode)
	require.Equal(t, "List the totals.", r.requests[0].Prompt)
}

func TestChatCompletionStream(t *testing.T) {
	server := newServer(t, &recordingRecognizer{})

	resp := post(t, server, map[string]any{
		"stream": true,
		"messages": []any{
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "image_url", "image_url": map[string]any{"url": imageURL(t)}},
				},
			},
		},
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	scanner := bufio.NewScanner(resp.Body)

	for scanner.Scan() {
		if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
			events = append(events, data)
		}
	}

	require.Len(t, events, 2)
	require.Equal(t, "[DONE]", events[1])

	var chunk Completion
	require.NoError(t, json.Unmarshal([]byte(events[0]), &chunk))

	require.Equal(t, "chat.completion.chunk", chunk.Object)
	require.Equal(t, "# Invoice", chunk.Choices[0].Delta.Content)
}

func TestChatCompletionRejectsRequests(t *testing.T) {
	server := newServer(t, &recordingRecognizer{})

	tests := []struct {
		name     string
		messages []any
	}{
		{"no image", []any{map[string]any{"role": "user", "content": "hello"}}},
		{"remote url", []any{map[string]any{"role": "user", "content": []any{
			map[string]any{"type": "image_url", "image_url": map[string]any{"url": "https://example.com/a.png"}},
		}}}},
		{"no messages", []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, server, map[string]any{"messages": tt.messages})
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}
