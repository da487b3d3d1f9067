package tmux

import (
	"fmt"

	"github.com/cristianoliveira/badgesync/internal/colors"
)

// SetEnvironment sets a global tmux environment variable.
func (c *DefaultClient) SetEnvironment(name, value string) error {
	_, stderr, err := c.Run("set-environment", "-g", name, value)
	if err != nil {
		if stderr != "" {
			colors.Debug("stderr: " + stderr)
		}
		return fmt.Errorf("failed to set environment variable %s: %w", name, err)
	}
	return nil
}
