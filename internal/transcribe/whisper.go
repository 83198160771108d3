package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// WhisperCLITranscriber shells out to a locally installed openai-whisper
// CLI and reads its JSON output with word timestamps.
type WhisperCLITranscriber struct {
	binary string
	model  string
	run    func(ctx context.Context, name string, args ...string) error
}

type whisperCLIOutput struct {
	Language string `json:"language"`
	Segments []struct {
		Words []wordJSON `json:"words"`
	} `json:"segments"`
}

func NewWhisperCLITranscriber(opts Options) *WhisperCLITranscriber {
	binary := opts.WhisperBinary
	if binary == "" {
		binary = "whisper"
	}
	model := opts.Model
	if model == "" {
		model = "base"
	}
	return &WhisperCLITranscriber{binary: binary, model: model, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, truncateString(strings.TrimSpace(string(out)), 500))
	}
	return nil
}

func (t *WhisperCLITranscriber) Transcribe(ctx context.Context, audioPath, language string) (*Result, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file not found: %s", audioPath)
	}

	outDir, err := os.MkdirTemp("", "vidgen-whisper-*")
	if err != nil {
		return nil, fmt.Errorf("create whisper output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{
		audioPath,
		"--model", t.model,
		"--output_format", "json",
		"--output_dir", outDir,
		"--word_timestamps", "True",
		"--verbose", "False",
	}
	if language != "" {
		args = append(args, "--language", language)
	}

	if err := t.run(ctx, t.binary, args...); err != nil {
		return nil, err
	}

	// whisper names its output after the input file
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}
	return parseWhisperCLIOutput(data, language)
}

func parseWhisperCLIOutput(data []byte, language string) (*Result, error) {
	var out whisperCLIOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}

	var raw []wordJSON
	for _, seg := range out.Segments {
		raw = append(raw, seg.Words...)
	}

	lang := out.Language
	if lang == "" {
		lang = language
	}
	return &Result{Words: toWords(raw), Language: lang}, nil
}
