// Package hooks runs user scripts on job lifecycle events.
//
// Scripts live in <hooks_dir>/<hook-point>/ and run in name order. They
// receive the job details through JOB_* environment variables.
package hooks

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cristianoliveira/job-intray/internal/colors"
	"github.com/cristianoliveira/job-intray/internal/config"
)

// Hook points.
const (
	JobStarted  = "job-started"
	JobFinished = "job-finished"
	JobFailed   = "job-failed"
	JobExpired  = "job-expired"
	JobLost     = "job-lost"
	JobTimeout  = "job-timeout"
)

// Failure modes.
const (
	FailureAbort  = "abort"
	FailureWarn   = "warn"
	FailureIgnore = "ignore"
)

var (
	asyncPending      sync.WaitGroup
	asyncPendingMu    sync.Mutex
	asyncPendingCount int

	outputMu sync.Mutex
	output   io.Writer = os.Stderr
)

// SetOutput redirects hook script output. nil restores stderr.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	output = w
}

func hookOutput() io.Writer {
	outputMu.Lock()
	defer outputMu.Unlock()
	return output
}

// Init creates the hooks directory.
func Init() error {
	dir := hooksDir()
	if dir == "" {
		return fmt.Errorf("hooks directory is not configured")
	}
	if err := os.MkdirAll(dir, config.FileModeDir); err != nil {
		colors.Error(fmt.Sprintf("failed to create hooks directory %s: %v", dir, err))
		return fmt.Errorf("failed to create hooks directory %s: %w", dir, err)
	}
	return nil
}

func hooksDir() string {
	return config.Get("hooks_dir", "")
}

func failureMode() string {
	return config.Get("hooks_failure_mode", FailureWarn)
}

// enabled checks the global switch and the per-point override
// (e.g. JOB_INTRAY_HOOKS_ENABLED_JOB_FINISHED=0).
func enabled(hookPoint string) bool {
	if !config.GetBool("hooks_enabled", true) {
		return false
	}
	key := "hooks_enabled_" + strings.ReplaceAll(hookPoint, "-", "_")
	return config.GetBool(key, true)
}

func asyncTimeout() time.Duration {
	return time.Duration(config.GetInt("hooks_async_timeout", 30)) * time.Second
}

// JobEnv builds the environment passed to job hooks.
func JobEnv(jobID, jobType, outcome, message string) []string {
	return []string{
		"JOB_ID=" + jobID,
		"JOB_TYPE=" + jobType,
		"JOB_OUTCOME=" + outcome,
		"JOB_MESSAGE=" + message,
	}
}

type script struct {
	path string
	name string
}

func collectScripts(dir string) []script {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var scripts []script
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		path := filepath.Join(dir, f.Name())
		info, err := os.Stat(path)
		if err != nil || info.Mode()&0111 == 0 {
			continue
		}
		scripts = append(scripts, script{path: path, name: f.Name()})
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].name < scripts[j].name })
	return scripts
}

func buildEnv(hookPoint, mode string, envVars []string) []string {
	env := os.Environ()
	env = append(env,
		"HOOK_POINT="+hookPoint,
		"HOOK_TIMESTAMP="+time.Now().Format(time.RFC3339),
		config.EnvPrefix+"HOOKS_FAILURE_MODE="+mode,
	)
	if exe, err := os.Executable(); err == nil {
		env = append(env, config.EnvPrefix+"BINARY="+exe)
	}
	for _, v := range envVars {
		if strings.Contains(v, "=") {
			env = append(env, v)
		}
	}
	return env
}

// Run executes the hooks of hookPoint. envVars are KEY=VALUE pairs. Only the
// abort failure mode turns a failing script into an error.
func Run(hookPoint string, envVars ...string) error {
	if !enabled(hookPoint) {
		return nil
	}
	dir := hooksDir()
	if dir == "" {
		return nil
	}
	scripts := collectScripts(filepath.Join(dir, hookPoint))
	if len(scripts) == 0 {
		return nil
	}

	mode := failureMode()
	env := buildEnv(hookPoint, mode, envVars)
	async := config.GetBool("hooks_async", false)
	maxAsync := config.GetInt("max_hooks", 10)
	colors.Debug(fmt.Sprintf("running %s hooks (%d script(s))", hookPoint, len(scripts)))

	for _, s := range scripts {
		if !async {
			if err := runSync(s, env, mode); err != nil {
				return err
			}
			continue
		}
		asyncPendingMu.Lock()
		if asyncPendingCount >= maxAsync {
			asyncPendingMu.Unlock()
			colors.Warning(fmt.Sprintf("too many async hooks pending (max: %d), skipping %s", maxAsync, s.name))
			continue
		}
		asyncPendingCount++
		asyncPending.Add(1)
		asyncPendingMu.Unlock()
		runAsync(s, env, mode)
	}
	return nil
}

func runSync(s script, env []string, mode string) error {
	start := time.Now()
	cmd := exec.Command(s.path)
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		hookOutput().Write(out)
	}
	if err == nil {
		colors.Debug(fmt.Sprintf("hook %s completed in %.2fs", s.name, time.Since(start).Seconds()))
		return nil
	}
	switch mode {
	case FailureAbort:
		return fmt.Errorf("hook %s failed: %w", s.name, err)
	case FailureWarn:
		colors.Warning(fmt.Sprintf("hook %s failed: %v", s.name, err))
	}
	return nil
}

func runAsync(s script, env []string, mode string) {
	ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout())
	cmd := exec.CommandContext(ctx, s.path)
	cmd.Env = env
	cmd.Stdout = hookOutput()
	cmd.Stderr = hookOutput()
	// Grandchildren may keep the output pipe open after the script is killed.
	cmd.WaitDelay = time.Second

	done := func() {
		cancel()
		asyncPendingMu.Lock()
		asyncPendingCount--
		asyncPendingMu.Unlock()
		asyncPending.Done()
	}
	if err := cmd.Start(); err != nil {
		if mode != FailureIgnore {
			colors.Warning(fmt.Sprintf("async hook %s failed to start: %v", s.name, err))
		}
		done()
		return
	}

	start := time.Now()
	go func() {
		defer done()
		err := cmd.Wait()
		elapsed := time.Since(start)
		if ctx.Err() == context.DeadlineExceeded {
			colors.Warning(fmt.Sprintf("async hook %s timed out after %.2fs", s.name, elapsed.Seconds()))
			return
		}
		if err != nil && mode != FailureIgnore {
			colors.Warning(fmt.Sprintf("async hook %s failed: %v", s.name, err))
			return
		}
		colors.Debug(fmt.Sprintf("async hook %s completed in %.2fs", s.name, elapsed.Seconds()))
	}()
}

// Pending returns the number of async hooks still running.
func Pending() int {
	asyncPendingMu.Lock()
	defer asyncPendingMu.Unlock()
	return asyncPendingCount
}

// WaitForPendingHooks waits for all pending async hooks to complete.
func WaitForPendingHooks() {
	asyncPending.Wait()
}

// Shutdown waits for async hooks before the process exits.
func Shutdown() {
	WaitForPendingHooks()
}
