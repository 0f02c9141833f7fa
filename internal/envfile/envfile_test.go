package envfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thainguyen06/pmc/internal/envfile"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "env", "FOO=bar\nBAZ=qux\n")
	env := envfile.Load(path)
	assert.Equal(t, "bar", env["FOO"])
	assert.Equal(t, "qux", env["BAZ"])
}

func TestLoadStripsWhitespaceAndQuotes(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "env", "  KEY = value  \nQUOTED=\"hello world\"\n")
	env := envfile.Load(path)
	assert.Equal(t, "value", env["KEY"])
	assert.Equal(t, "hello world", env["QUOTED"])
}

func TestLoadSkipsCommentsAndBlanks(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "env", "# comment\n\nA=1\n")
	env := envfile.Load(path)
	assert.Equal(t, map[string]string{"A": "1"}, env)
}

func TestLoadMissingFile(t *testing.T) {
	env := envfile.Load("/nonexistent/path/env")
	assert.Empty(t, env)
}

func TestLoadSkipsLinesWithoutEquals(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "env", "NOEQUALS\nA=1\n")
	env := envfile.Load(path)
	assert.Equal(t, map[string]string{"A": "1"}, env)
}

func TestOverlayPrecedence(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, ".env", "A=from-dotenv\nB=from-dotenv\n")

	base := []string{"A=from-daemon", "C=from-daemon"}
	explicit := map[string]string{"B": "from-record"}

	merged, list := envfile.Overlay(base, dir, explicit)

	assert.Equal(t, "from-dotenv", merged["A"], "dotenv overrides daemon env")
	assert.Equal(t, "from-record", merged["B"], "explicit record env overrides dotenv")
	assert.Equal(t, "from-daemon", merged["C"], "daemon env survives untouched")
	assert.Contains(t, list, "A=from-dotenv")
	assert.Contains(t, list, "C=from-daemon")
}

func TestOverlayWithNoDotenv(t *testing.T) {
	dir := t.TempDir()
	merged, _ := envfile.Overlay([]string{"A=1"}, dir, nil)
	assert.Equal(t, "1", merged["A"])
}
