// Package faults classifies render failures so callers can tell fatal
// configuration and process errors apart from degradable probe errors.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrExternalProcess = errors.New("external process error")
	ErrProbe           = errors.New("probe error")
	ErrMissingAsset    = errors.New("missing asset")
)

// Wrap builds an error message that carries stage context and tags it with
// marker for errors.Is classification. A nil marker defaults to
// ErrExternalProcess.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalProcess
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// MissingAsset reports a scene whose narration text or media is unusable.
func MissingAsset(sceneID, what string) error {
	return Wrap(ErrMissingAsset, "validate", "scene "+sceneID, what, nil)
}

// IsFatal reports whether err must abort a render. Probe failures are the
// only degradable class.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrProbe)
}

// Kind returns a short label for the taxonomy class of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrMissingAsset):
		return "missing_asset"
	case errors.Is(err, ErrExternalProcess):
		return "external_process"
	case errors.Is(err, ErrProbe):
		return "probe"
	default:
		return "internal"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "render failure"
	}
	return strings.Join(parts, ": ")
}
