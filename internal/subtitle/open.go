package subtitle

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Open reads a captions document written by ASSWriter, or any ASS/SSA
// file whose Text column is last.
func Open(path string) (*ASSFile, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".ass", ".ssa":
		return parseASSFile(path)
	default:
		return nil, fmt.Errorf("unsupported subtitle format: %s", ext)
	}
}
