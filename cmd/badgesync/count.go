/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cristianoliveira/badgesync/cmd"
	"github.com/cristianoliveira/badgesync/internal/config"
	"github.com/cristianoliveira/badgesync/internal/status"
)

var errNoPrincipal = errors.New("no principal configured; pass --principal or set principal in config")

type countClient interface {
	FetchCount(ctx context.Context, principal string) (uint, error)
}

// NewCountCmd creates the count command with explicit dependencies.
func NewCountCmd(client countClient) *cobra.Command {
	if client == nil {
		panic("NewCountCmd: client dependency cannot be nil")
	}

	var formatFlag string
	var colorFlag string
	var showZeroFlag bool

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Print the current unread badge",
		Long: `Fetch the authoritative unread count once and print it as a badge.

USAGE:
    badgesync count [OPTIONS]

OPTIONS:
    --format <fmt>    compact, detailed or count-only (default from config)
    --color <name>    tmux colour for the badge (default from config)
    --show-zero       Print the badge even when nothing is unread
    -h, --help        Show this help

Suitable for tmux: set -g status-right '#(badgesync count)'`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			principal := cmd.Principal()
			if principal == "" {
				return errNoPrincipal
			}
			n, err := client.FetchCount(c.Context(), principal)
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}
			out, err := status.Render(n, statusOptions(formatFlag, colorFlag, showZeroFlag))
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}
			if out != "" {
				fmt.Fprintln(c.OutOrStdout(), out)
			}
			return nil
		},
	}

	countCmd.Flags().StringVar(&formatFlag, "format", "", "Badge format: compact, detailed, count-only")
	countCmd.Flags().StringVar(&colorFlag, "color", "", "tmux colour for the badge")
	countCmd.Flags().BoolVar(&showZeroFlag, "show-zero", false, "Print the badge even when nothing is unread")

	return countCmd
}

// statusOptions fills unset flags from the configuration.
func statusOptions(format, color string, showZero bool) status.Options {
	if format == "" {
		format = config.Get("status_format", status.FormatCompact)
	}
	if color == "" {
		color = config.Get("badge_color", "")
	}
	return status.Options{Format: format, Color: color, ShowZero: showZero}
}

// countCmd represents the count command
var countCmd = NewCountCmd(appClient)

func init() {
	cmd.RootCmd.AddCommand(countCmd)
}
