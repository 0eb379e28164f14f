package diag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimoJanra/SSOPulse/internal/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newCollector(t *testing.T, logDirs []string) *SystemCollector {
	t.Helper()
	cfg := testSettingsNoServer()
	cfg.LogLocations = logDirs
	cfg.LogFilePatterns = []string{"*.log", "*.out"}
	cfg.ErrorPatterns = []string{"ERROR", "Exception", "authentication.*failed"}
	return NewSystemCollector(cfg, quietLogger())
}

func TestExpandLogDirs(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "profiles", "AppSrv01", "logs"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "profiles", "AppSrv02", "logs"), 0o755))
	writeFile(t, base, "not-a-dir.log", "x")

	dirs := expandLogDirs([]string{
		filepath.Join(base, "profiles", "*", "logs"),
		base,
		filepath.Join(base, "missing"),
		filepath.Join(base, "not-a-dir.log"),
	})

	assert.Len(t, dirs, 3)
	assert.Contains(t, dirs, filepath.Join(base, "profiles", "AppSrv01", "logs"))
	assert.Contains(t, dirs, filepath.Join(base, "profiles", "AppSrv02", "logs"))
	assert.Contains(t, dirs, base)
}

func TestFindLogFilesMatchesPatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "server.log", "")
	writeFile(t, dir, "native_stdout.out", "")
	writeFile(t, dir, "notes.txt", "")

	c := newCollector(t, []string{dir})
	files := c.FindLogFiles(nil, nil, 0)

	require.Len(t, files, 2)
	names := []string{filepath.Base(files[0].Path), filepath.Base(files[1].Path)}
	assert.Contains(t, names, "server.log")
	assert.Contains(t, names, "native_stdout.out")
	for _, f := range files {
		assert.True(t, f.Readable)
	}
}

func TestFindLogFilesRespectsCap(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.log", "b.log", "c.log", "d.log", "e.log"} {
		writeFile(t, dir, name, "")
	}

	c := newCollector(t, []string{dir})
	files := c.FindLogFiles(nil, nil, 2)

	assert.Len(t, files, 2)
}

func TestFindLogFilesWalksSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "ffdc")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeFile(t, sub, "nested.log", "")

	c := newCollector(t, []string{dir})
	files := c.FindLogFiles(nil, nil, 0)

	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(sub, "nested.log"), files[0].Path)
}

func TestSearchLogsFindsMatchesWithLineNumbers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "server.log",
		"line one is fine\n"+
			"[2/14/26] ERROR something broke   \n"+
			"line three\n"+
			"javax.naming.NamingException: lookup\n")

	c := newCollector(t, []string{dir})
	matches, err := c.SearchLogs(nil, nil, 0)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, 2, matches[0].LineNumber)
	assert.Equal(t, "[2/14/26] ERROR something broke", matches[0].Content,
		"trailing whitespace is stripped")
	assert.Equal(t, 4, matches[1].LineNumber)
}

func TestSearchLogsCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "server.log", "an error occurred\nAuthentication Failed for user\n")

	c := newCollector(t, []string{dir})
	matches, err := c.SearchLogs(nil, nil, 0)
	require.NoError(t, err)

	assert.Len(t, matches, 2)
}

func TestSearchLogsStopsAtMaxMatches(t *testing.T) {
	dir := t.TempDir()
	content := ""
	for i := 0; i < 20; i++ {
		content += "ERROR again\n"
	}
	writeFile(t, dir, "server.log", content)

	c := newCollector(t, []string{dir})
	matches, err := c.SearchLogs(nil, nil, 5)
	require.NoError(t, err)

	assert.Len(t, matches, 5)
}

func TestSearchLogsCustomPatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "server.log", "ERROR default pattern\nLTPA token rejected\n")

	c := newCollector(t, []string{dir})
	matches, err := c.SearchLogs(nil, []string{"LTPA"}, 0)
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Contains(t, matches[0].Content, "LTPA")
}

func TestSearchLogsBadPattern(t *testing.T) {
	c := newCollector(t, []string{t.TempDir()})
	_, err := c.SearchLogs(nil, []string{"(unclosed"}, 0)
	assert.Error(t, err)
}

func TestRunChecksReportsEnvironmentAndConfig(t *testing.T) {
	c := newCollector(t, []string{t.TempDir()})
	results := c.RunChecks(context.Background())

	env := findResult(t, results, "System - Environment")
	assert.Equal(t, models.LevelInfo, env.Level)
	assert.Contains(t, env.Details, "go_version")
	assert.Contains(t, env.Details, "hostname")

	cfg := findResult(t, results, "System - Configuration")
	assert.Equal(t, "***REDACTED***", cfg.Details["secret_key"])

	dirs := findResult(t, results, "System - Log Directories")
	assert.Equal(t, models.LevelInfo, dirs.Level)
}

func TestRunChecksWarnsOnMissingLogDirs(t *testing.T) {
	c := newCollector(t, []string{"/does/not/exist/anywhere"})
	results := c.RunChecks(context.Background())

	dirs := findResult(t, results, "System - Log Directories")
	assert.Equal(t, models.LevelWarning, dirs.Level)
}
