// Package testutils holds fixtures shared by the package tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// TraversalPaths are request paths that try to leave the served root.
var TraversalPaths = []string{
	"/../../../etc/passwd",
	"/..\\..\\..\\windows\\system32\\config\\sam",
	"/....//....//....//etc/passwd",
	"/%2e%2e/%2e%2e/%2e%2e/etc/passwd",
	"/./../../etc/passwd",
}

// CreateTempProject writes files, keyed by slash-separated relative path, into
// a fresh temporary directory and returns its symlink-free path.
func CreateTempProject(t testing.TB, files map[string]string) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for name, content := range files {
		WriteFile(t, root, name, content)
	}
	return root
}

// WriteFile writes content to root/name, creating parent directories.
func WriteFile(t testing.TB, root, name, content string) string {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	return full
}

// CreateMemProject returns an in-memory filesystem holding files under root.
func CreateMemProject(t testing.TB, root string, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, afero.WriteFile(fsys, full, []byte(content), 0o644))
	}
	return fsys
}
