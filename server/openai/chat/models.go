package chat

import (
	"encoding/json"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type PartType string

const (
	PartTypeText  PartType = "text"
	PartTypeFile  PartType = "file"
	PartTypeImage PartType = "image_url"
)

// https://platform.openai.com/docs/api-reference/chat/create
type CompletionRequest struct {
	Model string `json:"model"`

	Messages []InputMessage `json:"messages"`

	Stream bool `json:"stream,omitempty"`
}

type InputMessage struct {
	Role Role `json:"role"`

	Content Parts `json:"content"`
}

// Parts accepts both the plain string and the array form of message content.
type Parts []Part

func (p *Parts) UnmarshalJSON(data []byte) error {
	var text string

	if err := json.Unmarshal(data, &text); err == nil {
		*p = Parts{{Type: PartTypeText, Text: text}}
		return nil
	}

	var parts []Part

	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}

	*p = parts

	return nil
}

type Part struct {
	Type PartType `json:"type"`

	Text string `json:"text,omitempty"`

	Image *ImagePart `json:"image_url,omitempty"`
	File  *FilePart  `json:"file,omitempty"`
}

type ImagePart struct {
	URL string `json:"url"`
}

type FilePart struct {
	Name string `json:"filename,omitempty"`
	Data string `json:"file_data,omitempty"`
}

// https://platform.openai.com/docs/api-reference/chat/object
type Completion struct {
	Object string `json:"object"` // "chat.completion" | "chat.completion.chunk"

	ID string `json:"id"`

	Model   string `json:"model"`
	Created int64  `json:"created"`

	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index int `json:"index"`

	Message *Message `json:"message,omitempty"`
	Delta   *Message `json:"delta,omitempty"`

	FinishReason string `json:"finish_reason"`
}

// Message is an assistant answer; transcriptions are always plain text.
type Message struct {
	Role Role `json:"role,omitempty"`

	Content string `json:"content"`
}
