package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cristianoliveira/job-intray/internal/config"
	"github.com/stretchr/testify/require"
)

func setupTest(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_STATE_HOME", tmp)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("HOME", tmp)
	config.Load()
	return tmp
}

func decodeLines(t *testing.T, data string) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestConfigFromGlobal(t *testing.T) {
	setupTest(t)
	t.Setenv("JOB_INTRAY_LOGGING_ENABLED", "true")
	t.Setenv("JOB_INTRAY_LOGGING_LEVEL", "debug")
	t.Setenv("JOB_INTRAY_LOGGING_MAX_FILES", "5")
	config.Load()

	cfg := FromGlobalConfig()
	require.True(t, cfg.Enabled)
	require.Equal(t, "debug", cfg.Level)
	require.Equal(t, 5, cfg.MaxFiles)
	require.Equal(t, filepath.Base(os.Args[0]), cfg.Command)
	require.Equal(t, os.Getpid(), cfg.PID)
}

func TestLogLevelMapping(t *testing.T) {
	setupTest(t)

	t.Setenv("JOB_INTRAY_DEBUG", "true")
	t.Setenv("JOB_INTRAY_LOGGING_LEVEL", "info")
	config.Load()
	require.Equal(t, "debug", FromGlobalConfig().Level)

	t.Setenv("JOB_INTRAY_QUIET", "true")
	config.Load()
	require.Equal(t, "debug", FromGlobalConfig().Level, "debug wins over quiet")

	t.Setenv("JOB_INTRAY_DEBUG", "false")
	config.Load()
	require.Equal(t, "error", FromGlobalConfig().Level)

	t.Setenv("JOB_INTRAY_QUIET", "false")
	t.Setenv("JOB_INTRAY_LOGGING_LEVEL", "warn")
	config.Load()
	require.Equal(t, "warn", FromGlobalConfig().Level)
}

func TestLogDir(t *testing.T) {
	tmp := setupTest(t)

	stateDir := config.Get("state_dir", "")
	require.True(t, strings.HasPrefix(stateDir, tmp), "state_dir %s not in temp dir %s", stateDir, tmp)

	logDir, err := LogDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(stateDir, "logs"), logDir)
	info, err := os.Stat(logDir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
	require.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestInitDisabled(t *testing.T) {
	logger, err := Init(Config{Enabled: false})
	require.NoError(t, err)
	require.IsType(t, noopLogger{}, logger)
	require.NotPanics(t, func() {
		logger.Debug("test")
		logger.With("job_id", "1").Info("test")
		require.NoError(t, logger.Shutdown())
	})
}

func TestInitEnabledCreatesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Command = "sync"
	cfg.Dir = dir

	logger, err := Init(cfg)
	require.NoError(t, err)
	defer logger.Shutdown()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	fname := entries[0].Name()
	require.True(t, strings.HasPrefix(fname, "job-intray_"))
	require.Contains(t, fname, fmt.Sprintf("_PID%d_", os.Getpid()))
	require.True(t, strings.HasSuffix(fname, "_sync.log"))
	info, err := os.Stat(filepath.Join(dir, fname))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoggingWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "debug", PID: 42, Command: "watch"})

	logger.Info("poll finished", "job_id", "job-1", "polls", 3)

	entries := decodeLines(t, buf.String())
	require.Len(t, entries, 1)
	require.Equal(t, "info", entries[0]["level"])
	require.Equal(t, "poll finished", entries[0]["msg"])
	require.Equal(t, float64(42), entries[0]["pid"])
	require.Equal(t, "watch", entries[0]["command"])
	require.Equal(t, "job-1", entries[0]["job_id"])
	require.Equal(t, float64(3), entries[0]["polls"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "warn"})

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown")

	require.Len(t, decodeLines(t, buf.String()), 2)
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "info"})

	logger.Info("starting", "api_token", "abc123", "auth-header", "Bearer x", "job_type", "plaid-sync")

	entries := decodeLines(t, buf.String())
	require.Len(t, entries, 1)
	require.Equal(t, "[REDACTED]", entries[0]["api_token"])
	require.Equal(t, "[REDACTED]", entries[0]["auth-header"])
	require.Equal(t, "plaid-sync", entries[0]["job_type"])
	require.NotContains(t, buf.String(), "abc123")
}

func TestWithAddsFieldsWithoutMutatingParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(&buf, Config{Level: "info"})
	child := parent.With("component", "poller")

	child.Info("child")
	parent.Info("parent")

	entries := decodeLines(t, buf.String())
	require.Len(t, entries, 2)
	require.Equal(t, "poller", entries[0]["component"])
	require.NotContains(t, entries[1], "component")
}

func TestRotateKeepsNewestFiles(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, fmt.Sprintf("job-intray_%d.log", i))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0600))
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(p, ts, ts))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.log"), []byte("x"), 0600))

	require.NoError(t, rotate(dir, 3))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.ElementsMatch(t, []string{"job-intray_3.log", "job-intray_4.log", "other.log"}, names)
}
