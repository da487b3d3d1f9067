/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cristianoliveira/badgesync/internal/colors"
	"github.com/cristianoliveira/badgesync/internal/config"
	"github.com/cristianoliveira/badgesync/internal/logging"
	"github.com/cristianoliveira/badgesync/internal/version"
)

var (
	principalFlag string
	backendFlag   string
	debugFlag     bool
)

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:           "badgesync",
	Short:         "Keep an unread badge in sync with the server.",
	Long:          `Keep an unread badge in sync with the server without flicker or stale values.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.Load()
		if backendFlag != "" {
			config.Set("count_backend", backendFlag)
		}
		if debugFlag {
			config.Set("debug", "true")
			colors.SetDebug(true)
		}
		if cmd.Name() == "watch" {
			// watch installs its own logger once it knows about --verbose.
			return nil
		}
		return InitLogging(logging.FromGlobalConfig())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.ShutdownGlobal()
	},
}

// Execute runs the root command and reports a failing command on stderr.
func Execute() error {
	err := RootCmd.Execute()
	if err != nil {
		colors.Error(err.Error())
	}
	return err
}

// InitLogging installs the global logger for the running command.
func InitLogging(cfg logging.Config) error {
	if err := logging.SetGlobalConfig(cfg); err != nil {
		colors.Warning(fmt.Sprintf("logging disabled: %v", err))
	}
	return nil
}

// Principal returns the --principal flag or the configured principal.
func Principal() string {
	if p := strings.TrimSpace(principalFlag); p != "" {
		return p
	}
	return config.Get("principal", "")
}

func init() {
	RootCmd.Version = version.String()
	RootCmd.CompletionOptions.HiddenDefaultCmd = true

	RootCmd.PersistentFlags().StringVarP(&principalFlag, "principal", "p", "", "Principal whose badge to use (default from config)")
	RootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Count backend: sqlite, postgres or redis (default from config)")
	RootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug output")

	RootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != RootCmd {
			fmt.Fprintln(cmd.OutOrStdout(), cmd.Long)
			return
		}
		printHelpText(cmd)
	})
}

func printHelpText(cmd *cobra.Command) {
	commandOrder := []string{
		"watch",
		"count",
		"add",
		"list",
		"mark-read",
		"version",
	}

	var cmdLines []string
	for _, name := range commandOrder {
		var found *cobra.Command
		for _, c := range cmd.Commands() {
			if c.Name() == name {
				found = c
				break
			}
		}
		if found == nil {
			continue
		}
		cmdLines = append(cmdLines, fmt.Sprintf("    %-16s %s", found.Name(), found.Short))
	}

	helpText := fmt.Sprintf(`badgesync %s

Keep an unread badge in sync with the server without flicker or stale values.

USAGE:
    badgesync [COMMAND] [OPTIONS]

COMMANDS:
%s

OPTIONS:
    -p, --principal <id>   Principal whose badge to use
    --backend <name>       Count backend: sqlite, postgres, redis
    --debug                Enable debug output
    -h, --help             Show help message
`, version.String(), strings.Join(cmdLines, "\n"))
	fmt.Fprint(cmd.OutOrStdout(), helpText)
}
