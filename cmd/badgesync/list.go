/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cristianoliveira/badgesync/cmd"
	"github.com/cristianoliveira/badgesync/internal/storage"
)

type listClient interface {
	ListUnread(ctx context.Context, principal string, limit int) ([]storage.Item, error)
}

const defaultListLimit = 20

const listCommandLong = `List the unread items behind the badge, newest first.

USAGE:
    badgesync list [OPTIONS]

OPTIONS:
    -p, --principal <id>   Principal to list items for
    --limit <n>            Maximum number of items, 0 for all (default 20)
    --json                 Print a JSON array instead of one line per item
    -h, --help             Show this help

Each line is: ID, creation time, message. Use the ID with
'badgesync mark-read <id>'.`

// NewListCmd creates the list command with explicit dependencies.
func NewListCmd(client listClient) *cobra.Command {
	if client == nil {
		panic("NewListCmd: client dependency cannot be nil")
	}

	var limitFlag int
	var jsonFlag bool

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List unread items",
		Long:  listCommandLong,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			principal := cmd.Principal()
			if principal == "" {
				return errNoPrincipal
			}
			if limitFlag < 0 {
				return fmt.Errorf("list: --limit must be zero or positive")
			}
			items, err := client.ListUnread(c.Context(), principal, limitFlag)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			if jsonFlag {
				return printItemsJSON(c.OutOrStdout(), items)
			}
			return printItems(c.OutOrStdout(), items)
		},
	}

	listCmd.Flags().IntVar(&limitFlag, "limit", defaultListLimit, "Maximum number of items, 0 for all")
	listCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print a JSON array")

	return listCmd
}

func printItems(w io.Writer, items []storage.Item) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "No unread items")
		return err
	}
	for _, item := range items {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", item.ID, item.CreatedAt.Local().Format(time.DateTime), item.Message); err != nil {
			return err
		}
	}
	return nil
}

type itemJSON struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func printItemsJSON(w io.Writer, items []storage.Item) error {
	out := make([]itemJSON, len(items))
	for i, item := range items {
		out[i] = itemJSON{ID: item.ID, Message: item.Message, CreatedAt: item.CreatedAt}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// listCmd represents the list command
var listCmd = NewListCmd(appClient)

func init() {
	cmd.RootCmd.AddCommand(listCmd)
}
