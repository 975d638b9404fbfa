package chat

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adrianliechti/glimpse/pkg/assembler"
	"github.com/adrianliechti/glimpse/pkg/extractor"
	"github.com/adrianliechti/glimpse/pkg/job"
	"github.com/adrianliechti/glimpse/pkg/provider"

	"github.com/google/uuid"
)

var ErrMissingImage = errors.New("no image in the last user message")

func (h *Handler) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	image, prompt, err := lastImage(req.Messages)

	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	defaults := h.JobOptions()

	input := extractor.Input{
		Mode:    defaults.Mode,
		Caption: defaults.Caption,
	}

	// text sent along with the image becomes the instruction
	if prompt != "" {
		input.Mode = provider.ModeFreeform
		input.Prompt = prompt
	}

	page, err := h.extractor.ExtractImage(r.Context(), image, input)

	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if page.Status == job.StatusFailed {
		writeError(w, http.StatusBadGateway, errors.New(assembler.FailureSummary(page)))
		return
	}

	completion := Completion{
		Object: "chat.completion",

		ID: "chatcmpl-" + uuid.NewString(),

		Model:   h.Model,
		Created: time.Now().Unix(),

		Choices: []Choice{
			{
				Message: &Message{
					Role:    RoleAssistant,
					Content: page.Text,
				},

				FinishReason: "stop",
			},
		},
	}

	if !req.Stream {
		writeJson(w, completion)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	choice := completion.Choices[0]

	completion.Object = "chat.completion.chunk"
	completion.Choices = []Choice{
		{
			Delta:        choice.Message,
			FinishReason: choice.FinishReason,
		},
	}

	if err := writeEvent(w, completion); err != nil {
		return
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
}

// lastImage returns the image and accompanying text of the last user message.
func lastImage(messages []InputMessage) ([]byte, string, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]

		if m.Role != RoleUser {
			continue
		}

		var image []byte
		var text []string

		for _, c := range m.Content {
			switch c.Type {
			case PartTypeText:
				if t := strings.TrimSpace(c.Text); t != "" {
					text = append(text, t)
				}

			case PartTypeImage:
				if c.Image == nil {
					continue
				}

				data, err := decodeDataURL(c.Image.URL)

				if err != nil {
					return nil, "", err
				}

				image = data

			case PartTypeFile:
				if c.File == nil {
					continue
				}

				data, err := decodeDataURL(c.File.Data)

				if err != nil {
					return nil, "", err
				}

				image = data
			}
		}

		if image == nil {
			return nil, "", ErrMissingImage
		}

		return image, strings.Join(text, "\n"), nil
	}

	return nil, "", ErrMissingImage
}

func decodeDataURL(url string) ([]byte, error) {
	if !strings.HasPrefix(url, "data:") {
		return nil, errors.New("only data URLs are supported")
	}

	header, data, ok := strings.Cut(url, ",")

	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, errors.New("invalid data URL")
	}

	return base64.StdEncoding.DecodeString(data)
}
