// Package filex holds small filesystem helpers for the embedded storage backends.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureParentDir creates the directory that will hold the file at path.
// It returns the directory, or "" when path has no directory part.
func EnsureParentDir(path string) (string, error) {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// IsPlainPath reports whether a SQLite DSN names a file on disk rather than
// a URI or an in-memory database.
func IsPlainPath(dsn string) bool {
	return dsn != "" && !strings.HasPrefix(dsn, "file:") && !strings.HasPrefix(dsn, ":memory:")
}
