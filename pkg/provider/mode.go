package provider

import (
	"strings"
)

type Mode string

const (
	ModeMarkdown Mode = "markdown"
	ModeOCR      Mode = "ocr"
	ModePlain    Mode = "plain"
	ModeFigure   Mode = "figure"
	ModeDescribe Mode = "describe"
	ModeFind     Mode = "find"
	ModeFreeform Mode = "freeform"
)

// ImagePlaceholder marks where the image goes in a prompt. Chat based
// backends send the image as a separate content part and drop it.
const ImagePlaceholder = "<image>"

var Modes = []Mode{
	ModeMarkdown,
	ModeOCR,
	ModePlain,
	ModeFigure,
	ModeDescribe,
	ModeFind,
	ModeFreeform,
}

func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeMarkdown, nil
	}

	m := Mode(strings.ToLower(strings.TrimSpace(s)))

	for _, mode := range Modes {
		if mode == m {
			return m, nil
		}
	}

	return "", ErrInvalidMode
}

// Grounded reports whether the mode asks the model for grounding tags.
func (m Mode) Grounded() bool {
	switch m {
	case ModeMarkdown, ModeOCR, ModeFind:
		return true
	}

	return false
}

func BuildPrompt(req Request) (string, error) {
	mode := req.Mode

	if mode == "" {
		mode = ModeMarkdown
	}

	var instruction string

	switch mode {
	case ModeMarkdown:
		instruction = "<|grounding|>Convert the document to markdown."

	case ModeOCR:
		instruction = "<|grounding|>OCR this image."

	case ModePlain:
		instruction = "Free OCR."

	case ModeFigure:
		instruction = "Parse the figure."

	case ModeDescribe:
		instruction = "Describe this image in detail."

	case ModeFind:
		term := strings.TrimSpace(req.Term)

		if term == "" {
			return "", ErrMissingTerm
		}

		instruction = "Locate <|ref|>" + term + "<|/ref|> in the image."

	case ModeFreeform:
		prompt := strings.TrimSpace(req.Prompt)

		if prompt == "" {
			return "", ErrMissingPrompt
		}

		instruction = prompt

	default:
		return "", ErrInvalidMode
	}

	if req.Caption && mode.Captioned() {
		instruction += " " + CaptionInstruction
	}

	return ImagePlaceholder + "\n" + instruction, nil
}

// CaptionInstruction is appended for documents whose figures get captions.
const CaptionInstruction = "Add a one sentence caption below every figure."

// Captioned reports whether the mode renders figures that can carry captions.
func (m Mode) Captioned() bool {
	switch m {
	case ModeMarkdown, ModeOCR, ModeFigure:
		return true
	}

	return false
}
