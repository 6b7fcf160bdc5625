// Package tempdir owns the run-scoped temporary directory referenced by the
// tempdir placeholder token. The directory is created lazily, on the first
// argument or redirection path that actually names it, shared by every chain
// in the run, and removed once when the run unwinds.
package tempdir

import (
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Manager is the handle for the run's temporary directory.
// It is not safe for concurrent use; the orchestration is single-flow.
type Manager struct {
	placeholder string
	path        string
}

// NewManager returns a manager for the given placeholder token.
// An empty placeholder disables substitution entirely.
func NewManager(placeholder string) *Manager {
	return &Manager{placeholder: placeholder}
}

// Created reports whether the temporary directory exists yet.
func (m *Manager) Created() bool {
	return m.path != ""
}

// Path returns the directory path, or "" if it has not been created.
func (m *Manager) Path() string {
	return m.path
}

// EnsureCreated creates the temporary directory on first call and returns its
// path. Subsequent calls return the same path.
func (m *Manager) EnsureCreated() (string, error) {
	if m.path != "" {
		return m.path, nil
	}
	dir, err := os.MkdirTemp("", "o-o-")
	if err != nil {
		return "", fmt.Errorf("create temporary directory: %w", err)
	}
	m.path = dir
	return dir, nil
}

// Cleanup removes the temporary directory and everything under it.
// It is a no-op if the directory was never created, and idempotent, so every
// exit path may call it. Removal failure is returned for logging only; the
// run's outcome does not depend on it.
func (m *Manager) Cleanup() error {
	if m.path == "" {
		return nil
	}
	dir := m.path
	m.path = ""
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove temporary directory %s: %w", dir, err)
	}
	return nil
}

// Substitute replaces qualifying placeholder occurrences in s with the
// temporary directory path, creating the directory if this is the first use.
// An occurrence qualifies only when it is not preceded by a filename-like
// character and is followed by a path separator, so a placeholder of "T"
// rewrites "T/in.txt" but leaves "CAT/in.txt" and a bare "T" alone.
// The replacement is plain string splicing, applied to every qualifying
// occurrence.
func (m *Manager) Substitute(s string) (string, error) {
	if m.placeholder == "" || !strings.Contains(s, m.placeholder) {
		return s, nil
	}

	parts := strings.Split(s, m.placeholder)
	hit := false
	for i := 1; i < len(parts); i++ {
		if qualifies(parts[i-1], parts[i]) {
			hit = true
			break
		}
	}
	if !hit {
		return s, nil
	}

	dir, err := m.EnsureCreated()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(parts[0])
	for i := 1; i < len(parts); i++ {
		if qualifies(parts[i-1], parts[i]) {
			b.WriteString(dir)
		} else {
			b.WriteString(m.placeholder)
		}
		b.WriteString(parts[i])
	}
	return b.String(), nil
}

// WouldSubstitute reports whether Substitute would rewrite s, without
// creating the temporary directory.
func (m *Manager) WouldSubstitute(s string) bool {
	if m.placeholder == "" || !strings.Contains(s, m.placeholder) {
		return false
	}
	parts := strings.Split(s, m.placeholder)
	for i := 1; i < len(parts); i++ {
		if qualifies(parts[i-1], parts[i]) {
			return true
		}
	}
	return false
}

// qualifies reports whether a placeholder occurrence between prev and next
// should be substituted: nothing filename-like directly before it, and a
// path separator directly after it.
func qualifies(prev, next string) bool {
	if next == "" || next[0] != '/' {
		return false
	}
	if prev == "" {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(prev)
	return !isFilenameLike(r)
}

func isFilenameLike(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}
