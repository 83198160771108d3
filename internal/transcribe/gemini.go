package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

// implements Transcriber interface using Google Gemini
type GeminiTranscriber struct {
	client  *genai.Client
	model   string
	options Options
}

func NewGeminiTranscriber(ctx context.Context, apiKey string, opts Options) (*GeminiTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &GeminiTranscriber{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

// transcribes single audio file
func (t *GeminiTranscriber) Transcribe(ctx context.Context, audioPath, language string) (*Result, error) {
	if _, err := os.Stat(audioPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", audioPath)
	}

	uploadedFile, err := t.client.Files.UploadFromPath(ctx, audioPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upload audio file: %w", err)
	}

	defer func() {
		_, _ = t.client.Files.Delete(ctx, uploadedFile.Name, nil)
	}()

	parts := []*genai.Part{
		genai.NewPartFromText(t.buildPrompt(language)),
		genai.NewPartFromURI(uploadedFile.URI, uploadedFile.MIMEType),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := t.client.Models.GenerateContent(ctx, t.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	text, err := responseText(result)
	if err != nil {
		return nil, err
	}

	raw, err := extractWordEntries(cleanJSONResponse(text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse transcription: %w", err)
	}

	return &Result{Words: toWords(raw), Language: language}, nil
}

// creates the prompt for word-level timing
func (t *GeminiTranscriber) buildPrompt(language string) string {
	var sb strings.Builder

	sb.WriteString("Transcribe this narration word by word. ")
	sb.WriteString("For every spoken word give its start and end time in seconds (as numbers). ")
	sb.WriteString("Format your response as a JSON array of objects with 'word', 'start' and 'end' fields, in spoken order. ")

	if language != "" {
		sb.WriteString(fmt.Sprintf("The audio is in %s. ", language))
	}

	if t.options.Prompt != "" {
		sb.WriteString(t.options.Prompt)
		sb.WriteString(" ")
	}

	sb.WriteString("Return ONLY the JSON array, no other text or markdown formatting.")

	return sb.String()
}

func responseText(result *genai.GenerateContentResponse) (string, error) {
	if result == nil || len(result.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}

	var sb strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("no text in Gemini response")
	}
	return sb.String(), nil
}

// extractWordEntries finds the first JSON array of word objects in s. Models
// sometimes wrap the array in prose or in an object, so every '[' and '{'
// is tried as a decode start and objects are searched for an array value.
func extractWordEntries(s string) ([]wordJSON, error) {
	for i := 0; i < len(s); i++ {
		if s[i] != '[' && s[i] != '{' {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(s[i:])))
		var v any
		if err := dec.Decode(&v); err != nil {
			continue
		}
		if words, ok := findWordArray(v); ok {
			return words, nil
		}
		// skip past the decoded value
		i += int(dec.InputOffset()) - 1
	}
	return nil, fmt.Errorf("no word array found (response: %s)", truncateString(s, 200))
}

func findWordArray(v any) ([]wordJSON, bool) {
	switch t := v.(type) {
	case []any:
		data, err := json.Marshal(t)
		if err != nil {
			return nil, false
		}
		words, err := decodeWords(data)
		if err != nil || !validateWords(words) {
			return nil, false
		}
		return words, true
	case map[string]any:
		for _, key := range []string{"words", "segments", "transcript", "data"} {
			if inner, ok := t[key]; ok {
				if words, ok := findWordArray(inner); ok {
					return words, true
				}
			}
		}
		for _, inner := range t {
			if words, ok := findWordArray(inner); ok {
				return words, true
			}
		}
	}
	return nil, false
}

// at least one entry must carry text or a timestamp
func validateWords(words []wordJSON) bool {
	for _, w := range words {
		if w.text() != "" || w.Start != 0 || w.End != 0 {
			return true
		}
	}
	return false
}

// removes markdown formatting from the response
func cleanJSONResponse(s string) string {
	s = strings.TrimSpace(s)

	jsonBlockRegex := regexp.MustCompile("```(?:json)?\\s*")
	s = jsonBlockRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")

	return strings.TrimSpace(s)
}

// truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
