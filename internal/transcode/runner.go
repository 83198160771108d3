package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mgpai22/vidgen/internal/faults"
	"github.com/mgpai22/vidgen/internal/logging"
)

const stderrTail = 4096

// Runner executes a Command to completion. Implementations block until the
// process exits and impose no timeout of their own.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ProcessError reports a non-zero ffmpeg exit.
type ProcessError struct {
	Stage    string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("ffmpeg %s failed (exit %d)", e.Stage, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Is makes every ProcessError match faults.ErrExternalProcess.
func (e *ProcessError) Is(target error) bool {
	return target == faults.ErrExternalProcess
}

// ExecRunner runs the real ffmpeg binary as a child process.
type ExecRunner struct {
	binary string
	logger *logging.Logger
}

func NewExecRunner(binary string, logger *logging.Logger) *ExecRunner {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &ExecRunner{binary: binary, logger: logger.Or()}
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return faults.Wrap(faults.ErrConfiguration, cmd.Stage, "build command", "", err)
	}

	args := cmd.Args()
	proc := exec.CommandContext(ctx, r.binary, args...)
	var stderr bytes.Buffer
	proc.Stderr = &stderr

	r.logger.Debugw("running ffmpeg",
		"stage", cmd.Stage,
		"output", cmd.Output,
		"args", strings.Join(args, " "),
	)
	start := time.Now()

	if err := proc.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &ProcessError{
			Stage:    cmd.Stage,
			Args:     args,
			ExitCode: exitCode,
			Stderr:   tail(stderr.String(), stderrTail),
			Err:      err,
		}
	}

	r.logger.Debugw("ffmpeg finished",
		"stage", cmd.Stage,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
