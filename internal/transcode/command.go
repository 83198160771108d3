// Package transcode runs ffmpeg behind a narrow interface: a Command names
// its inputs, an optional filter graph, stream maps and encoder options, and
// a Runner executes it. Stage code builds Commands and never touches exec.
package transcode

import (
	"errors"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Input is one -i source with its demuxer options (loop, stream_loop, f...).
type Input struct {
	Path    string
	Options ffmpeg.KwArgs
}

// Command is a single ffmpeg invocation producing one output file.
type Command struct {
	// Stage labels the command for logs and test assertions.
	Stage       string
	Inputs      []Input
	FilterGraph string
	// Maps are emitted in order as -map arguments.
	Maps    []string
	Options ffmpeg.KwArgs
	Output  string
}

var globalArgs = []string{"-hide_banner", "-loglevel", "error", "-y"}

// Args renders the argv passed to ffmpeg, excluding the binary itself.
func (c Command) Args() []string {
	args := append([]string(nil), globalArgs...)
	for _, in := range c.Inputs {
		args = append(args, ffmpeg.ConvertKwargsToCmdLineArgs(in.Options)...)
		args = append(args, "-i", in.Path)
	}
	if c.FilterGraph != "" {
		args = append(args, "-filter_complex", c.FilterGraph)
	}
	for _, m := range c.Maps {
		args = append(args, "-map", m)
	}
	args = append(args, ffmpeg.ConvertKwargsToCmdLineArgs(c.Options)...)
	return append(args, c.Output)
}

func (c Command) String() string {
	return "ffmpeg " + strings.Join(c.Args(), " ")
}

// Validate checks the command is runnable.
func (c Command) Validate() error {
	if len(c.Inputs) == 0 {
		return errors.New("command has no inputs")
	}
	for i, in := range c.Inputs {
		if strings.TrimSpace(in.Path) == "" {
			return errors.New("input " + strconv.Itoa(i) + " has no path")
		}
	}
	if strings.TrimSpace(c.Output) == "" {
		return errors.New("command has no output")
	}
	return nil
}

// Option returns the string form of an output option, or "" if unset.
func (c Command) Option(key string) string {
	v, ok := c.Options[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case float64:
		return Seconds(t)
	default:
		return ""
	}
}

// Seconds formats a duration in seconds the way every stage passes time to
// ffmpeg: fixed millisecond precision, so equal inputs give equal argv.
func Seconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
