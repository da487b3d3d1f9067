/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cristianoliveira/badgesync/cmd"
	"github.com/cristianoliveira/badgesync/internal/colors"
)

type addClient interface {
	AddItem(ctx context.Context, principal, message string) (string, error)
}

// NewAddCmd creates the add command with explicit dependencies.
func NewAddCmd(client addClient) *cobra.Command {
	if client == nil {
		panic("NewAddCmd: client dependency cannot be nil")
	}

	addCmd := &cobra.Command{
		Use:   "add <message>",
		Short: "Add an unread item",
		Long: `Store an unread item for the principal. Backends with push support
announce the change so running watchers refresh their badge.

USAGE:
    badgesync add [OPTIONS] <message>

OPTIONS:
    -p, --principal <id>   Principal to add the item for
    -h, --help             Show this help`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			principal := cmd.Principal()
			if principal == "" {
				return errNoPrincipal
			}
			message := strings.TrimSpace(strings.Join(args, " "))
			if message == "" {
				return fmt.Errorf("add: message cannot be empty")
			}
			id, err := client.AddItem(c.Context(), principal, message)
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}
			colors.Success(fmt.Sprintf("Item %s added for %s", id, principal))
			return nil
		},
	}

	return addCmd
}

// addCmd represents the add command
var addCmd = NewAddCmd(appClient)

func init() {
	cmd.RootCmd.AddCommand(addCmd)
}
