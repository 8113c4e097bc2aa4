// Package credentials maps session identifiers to their persisted-credential
// directories.
//
// Only existence and deletion are interpreted here. The directory contents
// belong to the transport that writes them.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const dirPrefix = "session-"

// Store resolves credential directories below Root.
type Store struct {
	Root string
}

// New returns a store rooted at root.
func New(root string) *Store {
	return &Store{Root: root}
}

// Dir returns the credential directory for id. The directory may not exist.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.Root, dirPrefix+encodeID(id))
}

// Exists reports whether the credential directory for id is present.
func (s *Store) Exists(id string) (bool, error) {
	info, err := os.Stat(s.Dir(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("credentials: stat %q failed: %w", id, err)
	}
	return info.IsDir(), nil
}

// Ensure creates the credential directory for id and returns its path.
func (s *Store) Ensure(id string) (string, error) {
	dir := s.Dir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("credentials: creating %s failed: %w", dir, err)
	}
	return dir, nil
}

// Delete removes the credential directory for id. Deleting a missing
// directory is not an error.
func (s *Store) Delete(id string) error {
	if err := os.RemoveAll(s.Dir(id)); err != nil {
		return fmt.Errorf("credentials: deleting %q failed: %w", id, err)
	}
	return nil
}

// encodeID maps id to a single path element, one-to-one. Lowercase
// letters, digits and "-_." are kept; every other byte becomes %XX with
// uppercase hex, so distinct ids never share a directory, even on
// case-insensitive filesystems.
func encodeID(id string) string {
	var b strings.Builder
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
