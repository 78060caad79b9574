package ingest

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// textExtensions are always treated as plain-text exports, whatever the
// system MIME table says about them.
var textExtensions = map[string]bool{
	".txt": true,
	".tsv": true,
	".csv": true,
	".log": true,
	".dat": true,
}

var textTypes = map[string]bool{
	"text/plain":                true,
	"text/csv":                  true,
	"text/tab-separated-values": true,
}

// DeclaredType returns the MIME type implied by the file name, without
// parameters. Unknown extensions return "".
func DeclaredType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ""
	}
	if textExtensions[ext] {
		return "text/plain"
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return ""
	}
	if media, _, err := mime.ParseMediaType(t); err == nil {
		return media
	}
	return t
}

// ValidateFile checks that path names a plain-text (or untyped) regular file
// that still exists. It returns ErrRejectedInput or ErrVanishedInput wrapped
// with the file name.
func ValidateFile(path string) error {
	name := filepath.Base(path)

	if t := DeclaredType(path); t != "" && !textTypes[t] {
		return fmt.Errorf("%s declared as %s: %w", name, t, ErrRejectedInput)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", name, ErrVanishedInput)
		}
		return fmt.Errorf("stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file: %w", name, ErrVanishedInput)
	}
	return nil
}
