// Package notes implements the sandboxed note store used by the
// write_note tool. Every write target must resolve to a path strictly
// inside the sandbox root; filenames are derived from user-supplied
// titles and sanitized before use.
package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
)

var (
	repeatedDots = regexp.MustCompile(`\.+`)
	illegalChars = regexp.MustCompile(`[^a-zA-Z0-9 _.-]+`)
	spaceRuns    = regexp.MustCompile(`\s+`)
)

// SanitizeTitle converts a user-supplied title into a filesystem-safe
// base name: path separators become spaces, repeated dots collapse to
// one, characters outside [a-zA-Z0-9 _.-] are stripped, whitespace runs
// collapse, the result is capped at 80 characters and spaces become
// underscores. An empty result falls back to "note".
func SanitizeTitle(title string) string {
	t := strings.TrimSpace(title)
	t = strings.ReplaceAll(t, "\\", " ")
	t = strings.ReplaceAll(t, "/", " ")
	t = repeatedDots.ReplaceAllString(t, ".")
	t = illegalChars.ReplaceAllString(t, "")
	t = strings.TrimSpace(spaceRuns.ReplaceAllString(t, " "))
	if t == "" {
		t = "note"
	}
	if len(t) > 80 {
		t = strings.TrimSpace(t[:80])
	}
	return strings.ReplaceAll(t, " ", "_")
}

// Store writes notes under a fixed sandbox directory.
type Store struct {
	root string // absolute path to the sandbox directory
}

// NewStore creates a store rooted at the given directory, creating it
// if needed.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("notes: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("notes: create root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute sandbox directory.
func (s *Store) Root() string { return s.root }

// SafePath resolves name against the sandbox root and rejects any
// result that escapes it.
func (s *Store) SafePath(name string) (string, error) {
	joined := filepath.Join(s.root, filepath.Clean(name))
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("notes: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, s.root+string(os.PathSeparator)) && abs != s.root {
		return "", fmt.Errorf("%w: %s", apperr.ErrPathTraversal, name)
	}
	if abs == s.root {
		return "", fmt.Errorf("%w: empty file name", apperr.ErrPathTraversal)
	}
	return abs, nil
}

// Write stores a Markdown note titled title with the given content and
// returns the absolute path written. The filename comes from
// SanitizeTitle; the resolved path is verified against the sandbox
// before anything touches disk. The write is atomic: tmp → fsync → rename.
func (s *Store) Write(title, content string) (string, error) {
	name := SanitizeTitle(title) + ".md"
	abs, err := s.SafePath(name)
	if err != nil {
		return "", err
	}

	doc := fmt.Sprintf("# %s\n\n%s\n", strings.TrimSpace(title), strings.TrimSpace(content))

	tmp, err := os.CreateTemp(s.root, ".ansuz-tmp-*")
	if err != nil {
		return "", fmt.Errorf("notes: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(doc); err != nil {
		return "", fmt.Errorf("notes: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("notes: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("notes: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return "", fmt.Errorf("notes: rename: %w", err)
	}
	success = true
	return abs, nil
}

// List returns the base names of all notes in the sandbox, for
// inspection endpoints. Nested directories are not created by this
// store and are ignored.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("notes: list: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}
