// Package testutils holds fixtures shared by the package tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/stretchr/testify/require"
)

// DefaultConfig returns the default configuration with the environment
// variables that select production cleared for the test.
func DefaultConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("NODE_ENV", "")
	t.Setenv("SITEPIPE_ENVIRONMENT", "")
	return config.Default()
}

// WriteFile writes body to path, creating parent directories.
func WriteFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// WriteScript writes an executable shell script into its own temporary
// directory and returns its path. It stands in for external tools.
func WriteScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// CreateTempProject creates a project directory holding files, keyed by
// slash-separated relative path.
func CreateTempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(name)), body)
	}
	return root
}
