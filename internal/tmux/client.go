// Package tmux publishes the badge into tmux user options so status lines can
// show it without spawning a process per redraw.
package tmux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/cristianoliveira/badgesync/internal/colors"
	"github.com/cristianoliveira/badgesync/internal/logging"
)

// Client is the subset of tmux operations the badge needs.
type Client interface {
	// HasSession checks if tmux server is running.
	HasSession() (bool, error)

	// SetStatusOption sets a global tmux option.
	SetStatusOption(name, value string) error

	// SetEnvironment sets a global tmux environment variable.
	SetEnvironment(name, value string) error

	// RefreshStatus redraws the status line of attached clients.
	RefreshStatus() error

	// Run executes a tmux command with the given arguments.
	Run(args ...string) (string, string, error)
}

// DefaultClient implements Client by running the tmux binary.
type DefaultClient struct {
	binary     string
	socketPath string
	timeout    time.Duration
}

// NewDefaultClient creates a new DefaultClient with the given options.
func NewDefaultClient(opts ...ClientOption) *DefaultClient {
	client := &DefaultClient{
		binary:  DefaultBinary,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// runCommand returns stdout, stderr and any error that occurred.
func (c *DefaultClient) runCommand(args ...string) (string, string, error) {
	start := time.Now()
	command := ""
	if len(args) > 0 {
		command = args[0]
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	cmdArgs := []string{}
	if c.socketPath != "" {
		cmdArgs = append(cmdArgs, "-L", c.socketPath)
	}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.CommandContext(ctx, c.binary, cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	elapsed := time.Since(start)
	if err != nil {
		logging.Warn("tmux command failed", "command", command, "error", err, "duration", elapsed)
	} else {
		logging.Debug("tmux command completed", "command", command, "duration", elapsed)
	}
	return stdout.String(), stderr.String(), err
}

// Run executes a tmux command with the given arguments.
func (c *DefaultClient) Run(args ...string) (string, string, error) {
	stdout, stderr, err := c.runCommand(args...)
	if err != nil {
		return stdout, stderr, fmt.Errorf("tmux command %v failed: %w", args, err)
	}
	return stdout, stderr, nil
}

// HasSession checks if tmux server is running.
func (c *DefaultClient) HasSession() (bool, error) {
	_, stderr, err := c.Run("has-session")
	if err != nil {
		if stderr != "" {
			colors.Debug("stderr: " + stderr)
		}
		return false, ErrTmuxNotRunning
	}
	return true, nil
}

// SetStatusOption sets a global tmux option.
func (c *DefaultClient) SetStatusOption(name, value string) error {
	_, stderr, err := c.Run("set-option", "-g", name, value)
	if err != nil {
		if stderr != "" {
			colors.Debug("stderr: " + stderr)
		}
		return fmt.Errorf("failed to set status option %s: %w", name, err)
	}
	return nil
}

// RefreshStatus redraws the status line of attached clients.
func (c *DefaultClient) RefreshStatus() error {
	if _, _, err := c.Run("refresh-client", "-S"); err != nil {
		return fmt.Errorf("refresh status: %w", err)
	}
	return nil
}
