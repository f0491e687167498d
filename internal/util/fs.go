package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const maxFilenameRunes = 200

// EnsureDir creates the directory path if it does not exist.
func EnsureDir(path string) error {
	if path == "" {
		return errors.New("empty path")
	}
	return os.MkdirAll(path, 0o755)
}

// RemoveIfExists deletes the file if present. A missing file is not an error.
func RemoveIfExists(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// SanitizeFilename makes a server-supplied name safe to write locally:
// separators and shell-hostile characters become underscores, runs of
// underscores collapse, and the result is capped at 200 runes with the
// extension kept.
func SanitizeFilename(s string) string {
	s = filepath.Base(strings.ReplaceAll(s, "\\", "/"))
	if s == "." || s == "/" {
		return "untitled"
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`/\:*?"<>|#%{}$!@+^~`+"`"+`=&; `, r):
			return '_'
		}
		return r
	}, s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "._-")
	if s == "" {
		return "untitled"
	}

	if utf8.RuneCountInString(s) > maxFilenameRunes {
		ext := filepath.Ext(s)
		if utf8.RuneCountInString(ext) > 16 {
			ext = ""
		}
		stem := []rune(strings.TrimSuffix(s, ext))
		s = string(stem[:maxFilenameRunes-utf8.RuneCountInString(ext)]) + ext
	}
	return s
}

// UniquePath returns dir/name, or dir/stem (n).ext for the first n that does not exist yet.
func UniquePath(dir, name string) string {
	p := filepath.Join(dir, name)
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return p
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		p = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return p
		}
	}
}
