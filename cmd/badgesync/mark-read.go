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

type markReadClient interface {
	MarkAllRead(ctx context.Context, principal string) (int64, error)
	MarkRead(ctx context.Context, principal, id string) error
}

// NewMarkReadCmd creates the mark-read command with explicit dependencies.
func NewMarkReadCmd(client markReadClient) *cobra.Command {
	if client == nil {
		panic("NewMarkReadCmd: client dependency cannot be nil")
	}

	markReadCmd := &cobra.Command{
		Use:   "mark-read [id]",
		Short: "Mark unread items as read",
		Long: `Mark every unread item of the principal as read in storage, or only
the item with the given ID (see 'badgesync list').

USAGE:
    badgesync mark-read [OPTIONS] [id]

OPTIONS:
    -p, --principal <id>   Principal to clear
    -h, --help             Show this help

A running watch clears its badge on SIGUSR1 instead, which also updates
the badge before the server confirms.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			principal := cmd.Principal()
			if principal == "" {
				return errNoPrincipal
			}
			if len(args) == 1 {
				id := strings.TrimSpace(args[0])
				if id == "" {
					return fmt.Errorf("mark-read: id cannot be empty")
				}
				if err := client.MarkRead(c.Context(), principal, id); err != nil {
					return fmt.Errorf("mark-read: %w", err)
				}
				colors.Success(fmt.Sprintf("Item %s marked as read", id))
				return nil
			}
			n, err := client.MarkAllRead(c.Context(), principal)
			if err != nil {
				return fmt.Errorf("mark-read: %w", err)
			}
			colors.Success(fmt.Sprintf("Marked %d item(s) as read", n))
			return nil
		},
	}

	return markReadCmd
}

// markReadCmd represents the mark-read command
var markReadCmd = NewMarkReadCmd(appClient)

func init() {
	cmd.RootCmd.AddCommand(markReadCmd)
}
