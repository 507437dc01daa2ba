package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const transcriptExt = ".txt"

// isTranscript reports whether path names a transcript file. The extension
// check is case-insensitive.
func isTranscript(path string) bool {
	return strings.EqualFold(filepath.Ext(path), transcriptExt)
}

// ReadTranscript loads a UTF-8 transcript with line endings normalized and
// any byte order mark removed.
func ReadTranscript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading transcript: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("reading transcript %s: not valid UTF-8", path)
	}
	content := strings.TrimPrefix(string(data), "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return content, nil
}
