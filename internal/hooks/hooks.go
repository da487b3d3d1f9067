// Package hooks runs user scripts when the badge changes or an item is added.
// Scripts live in {hooks_dir}/{hook-point}/ and run in name order.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cristianoliveira/badgesync/internal/config"
	"github.com/cristianoliveira/badgesync/internal/logging"
)

const (
	// PointCountChanged runs after the published badge value changes.
	PointCountChanged = "count-changed"
	// PointItemAdded runs after the add command stores an item.
	PointItemAdded = "item-added"

	// FailureIgnore drops hook failures silently.
	FailureIgnore = "ignore"
	// FailureWarn reports hook failures and keeps going.
	FailureWarn = "warn"
	// FailureAbort stops at the first failing hook and returns its error.
	FailureAbort = "abort"
)

// ErrHookFailed wraps a failing script in abort mode.
var ErrHookFailed = errors.New("hook failed")

// Options configures a Runner.
type Options struct {
	Dir         string
	Enabled     bool
	FailureMode string
	Timeout     time.Duration
	// Output receives script output and warnings; defaults to os.Stderr.
	Output io.Writer
}

// OptionsFromConfig reads hook settings from the loaded configuration.
func OptionsFromConfig() Options {
	return Options{
		Dir:         config.Get("hooks_dir", ""),
		Enabled:     config.GetBool("hooks_enabled", true),
		FailureMode: config.Get("hooks_failure_mode", FailureWarn),
		Timeout:     time.Duration(config.GetInt("hooks_timeout", 30)) * time.Second,
	}
}

// Runner executes hook scripts.
type Runner struct {
	opts Options
}

// NewRunner applies defaults to opts.
func NewRunner(opts Options) *Runner {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	switch opts.FailureMode {
	case FailureIgnore, FailureWarn, FailureAbort:
	default:
		opts.FailureMode = FailureWarn
	}
	return &Runner{opts: opts}
}

// Scripts returns the executable scripts of a hook point sorted by name.
func (r *Runner) Scripts(hookPoint string) []string {
	if strings.TrimSpace(r.opts.Dir) == "" {
		return nil
	}
	hookDir := filepath.Join(r.opts.Dir, hookPoint)
	files, err := os.ReadDir(hookDir)
	if err != nil {
		// Directory doesn't exist -> no hooks
		return nil
	}

	var scripts []string
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		path := filepath.Join(hookDir, f.Name())
		info, err := os.Stat(path)
		if err != nil || info.Mode()&0111 == 0 {
			continue
		}
		scripts = append(scripts, path)
	}
	sort.Strings(scripts)
	return scripts
}

// Run executes every script of hookPoint with env added to the process
// environment. Only abort mode returns an error.
func (r *Runner) Run(ctx context.Context, hookPoint string, env map[string]string) error {
	if !r.opts.Enabled {
		return nil
	}
	scripts := r.Scripts(hookPoint)
	if len(scripts) == 0 {
		return nil
	}

	environ := os.Environ()
	environ = append(environ,
		"HOOK_POINT="+hookPoint,
		"HOOK_TIMESTAMP="+time.Now().Format(time.RFC3339),
		"BADGESYNC_HOOKS_FAILURE_MODE="+r.opts.FailureMode,
	)
	if exe, err := os.Executable(); err == nil {
		environ = append(environ, "BADGESYNC_BINARY="+exe)
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		environ = append(environ, k+"="+env[k])
	}

	logging.Debug("running hooks", "hook_point", hookPoint, "scripts", len(scripts))
	for _, script := range scripts {
		if err := r.runScript(ctx, script, environ); err != nil {
			name := filepath.Base(script)
			switch r.opts.FailureMode {
			case FailureAbort:
				return fmt.Errorf("%w: %s: %v", ErrHookFailed, name, err)
			case FailureWarn:
				logging.Warn("hook failed", "hook_point", hookPoint, "script", name, "error", err)
				fmt.Fprintf(r.opts.Output, "warning: hook %s failed: %v\n", name, err)
			}
		}
	}
	return nil
}

func (r *Runner) runScript(ctx context.Context, script string, environ []string) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, script)
	cmd.Env = environ
	cmd.Stdout = r.opts.Output
	cmd.Stderr = r.opts.Output
	cmd.WaitDelay = time.Second
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("timed out after %s", r.opts.Timeout)
	}
	logging.Debug("hook finished", "script", filepath.Base(script), "duration", time.Since(start), "error", err)
	return err
}
