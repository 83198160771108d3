package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Word is one spoken word with timestamps in seconds from the start of the
// audio file.
type Word struct {
	Text  string
	Start float64
	End   float64
}

// transcription result
type Result struct {
	Words    []Word
	Language string
	Duration float64
}

// interface for word-level speech timing
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (*Result, error)
}

// speech timing provider
type Provider string

const (
	ProviderWhisper Provider = "whisper"
	ProviderOpenAI  Provider = "openai"
	ProviderGemini  Provider = "gemini"
	ProviderNone    Provider = "none"
)

// transcription options
type Options struct {
	Model  string
	Prompt string
	// WhisperBinary is the local whisper CLI used by ProviderWhisper.
	WhisperBinary string
}

// ParseProvider validates a provider name.
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	switch p {
	case ProviderWhisper, ProviderOpenAI, ProviderGemini, ProviderNone:
		return p, nil
	case "":
		return ProviderNone, nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", name)
	}
}

// creates transcriber based on provider; ProviderNone yields nil so callers
// fall straight through to estimation
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (Transcriber, error) {
	switch provider {
	case ProviderGemini:
		return NewGeminiTranscriber(ctx, apiKey, opts)
	case ProviderWhisper:
		return NewWhisperCLITranscriber(opts), nil
	case ProviderOpenAI:
		return NewOpenAITranscriber(ctx, apiKey, opts)
	case ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// word entry shared by the Whisper API, the whisper CLI and the Gemini
// prompt contract
type wordJSON struct {
	Word  string  `json:"word"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (w wordJSON) text() string {
	if w.Word != "" {
		return strings.TrimSpace(w.Word)
	}
	return strings.TrimSpace(w.Text)
}

func toWords(raw []wordJSON) []Word {
	words := make([]Word, 0, len(raw))
	for _, w := range raw {
		text := w.text()
		if text == "" {
			continue
		}
		words = append(words, Word{Text: text, Start: w.Start, End: w.End})
	}
	return words
}

func decodeWords(data []byte) ([]wordJSON, error) {
	var raw []wordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
