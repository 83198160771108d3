package transcode

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// Recorder is a Runner that records commands instead of executing them. It
// writes the rendered command line to each output path so later stages find
// a file where ffmpeg would have produced one.
type Recorder struct {
	// Fail, when set, is consulted before recording side effects; a non-nil
	// return is surfaced as a ProcessError.
	Fail func(Command) error

	mu       sync.Mutex
	commands []Command
}

func (r *Recorder) Run(_ context.Context, cmd Command) error {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	fail := r.Fail
	r.mu.Unlock()

	if fail != nil {
		if err := fail(cmd); err != nil {
			return &ProcessError{Stage: cmd.Stage, Args: cmd.Args(), ExitCode: 1, Err: err}
		}
	}

	if err := os.MkdirAll(filepath.Dir(cmd.Output), 0o755); err != nil {
		return err
	}
	return os.WriteFile(cmd.Output, []byte(cmd.String()+"\n"), 0o644)
}

// Commands returns a copy of everything run so far.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

// Stage returns the recorded commands with the given stage label.
func (r *Recorder) Stage(stage string) []Command {
	var out []Command
	for _, c := range r.Commands() {
		if c.Stage == stage {
			out = append(out, c)
		}
	}
	return out
}
