/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/cristianoliveira/badgesync/cmd"
	"github.com/cristianoliveira/badgesync/internal/badge"
	"github.com/cristianoliveira/badgesync/internal/colors"
	"github.com/cristianoliveira/badgesync/internal/config"
	"github.com/cristianoliveira/badgesync/internal/hooks"
	"github.com/cristianoliveira/badgesync/internal/logging"
	"github.com/cristianoliveira/badgesync/internal/metrics"
	"github.com/cristianoliveira/badgesync/internal/status"
	"github.com/cristianoliveira/badgesync/internal/tmux"
	"github.com/cristianoliveira/badgesync/internal/tui"
)

const markReadTimeout = 10 * time.Second

type watchClient interface {
	Sources(events string) (badge.CountSource, badge.EventSource, error)
	MarkAllRead(ctx context.Context, principal string) (int64, error)
}

// WatchOptions holds parameters for Watch.
type WatchOptions struct {
	Principal   string
	Events      string
	Status      status.Options
	Tmux        bool
	Hooks       bool
	TUI         bool
	MetricsAddr string
	Output      io.Writer
	// Signals overrides the process signal channel, for tests.
	Signals <-chan os.Signal
	// TmuxClient overrides the tmux client used with Tmux.
	TmuxClient tmux.Client
}

// NewWatchCmd creates the watch command with explicit dependencies.
func NewWatchCmd(client watchClient) *cobra.Command {
	if client == nil {
		panic("NewWatchCmd: client dependency cannot be nil")
	}

	var (
		eventsFlag  string
		formatFlag  string
		colorFlag   string
		tmuxFlag    bool
		hooksFlag   bool
		tuiFlag     bool
		metricsFlag string
		verboseFlag bool
	)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the badge in sync until interrupted",
		Long: `Run the badge engine and print the badge every time it changes.

USAGE:
    badgesync watch [OPTIONS]

OPTIONS:
    --events <name>        auto, none, sqlite, postgres, redis, websocket (default from config)
    --format <fmt>         compact, detailed or count-only (default from config)
    --color <name>         tmux colour for the badge (default from config)
    --tmux                 Publish the badge to tmux options @badgesync_badge and @badgesync_unread_count
    --hooks                Run count-changed hooks
    --tui                  Show the interactive badge view
    --metrics-addr <addr>  Serve Prometheus metrics on addr, e.g. :9090
    -v, --verbose          Log to stderr
    -h, --help             Show this help

SIGNALS:
    SIGUSR1   clear the badge and mark every item read
    SIGUSR2   refresh the badge now`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			logCfg := logging.FromGlobalConfig()
			if verboseFlag {
				logCfg.Enabled = true
				logCfg.Console = c.ErrOrStderr()
			}
			if err := cmd.InitLogging(logCfg); err != nil {
				return err
			}

			principal := cmd.Principal()
			if principal == "" {
				return errNoPrincipal
			}
			if metricsFlag == "" {
				metricsFlag = config.Get("metrics_addr", "")
			}
			opts := WatchOptions{
				Principal:   principal,
				Events:      eventsFlag,
				Status:      statusOptions(formatFlag, colorFlag, false),
				Tmux:        tmuxFlag,
				Hooks:       hooksFlag,
				TUI:         tuiFlag,
				MetricsAddr: metricsFlag,
				Output:      c.OutOrStdout(),
			}
			return Watch(c.Context(), client, opts)
		},
	}

	watchCmd.Flags().StringVar(&eventsFlag, "events", "", "Event backend: auto, none, sqlite, postgres, redis, websocket")
	watchCmd.Flags().StringVar(&formatFlag, "format", "", "Badge format: compact, detailed, count-only")
	watchCmd.Flags().StringVar(&colorFlag, "color", "", "tmux colour for the badge")
	watchCmd.Flags().BoolVar(&tmuxFlag, "tmux", false, "Publish the badge to tmux options")
	watchCmd.Flags().BoolVar(&hooksFlag, "hooks", false, "Run count-changed hooks")
	watchCmd.Flags().BoolVar(&tuiFlag, "tui", false, "Show the interactive badge view")
	watchCmd.Flags().StringVar(&metricsFlag, "metrics-addr", "", "Serve Prometheus metrics on this address")
	watchCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log to stderr")

	return watchCmd
}

// Watch runs the badge engine for opts.Principal until ctx is cancelled or
// the process is asked to stop.
func Watch(ctx context.Context, client watchClient, opts WatchOptions) error {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	counts, events, err := client.Sources(opts.Events)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	engineOpts := badge.OptionsFromConfig()
	engineOpts.Counts = counts
	engineOpts.Events = events
	engineOpts.Logger = logging.GetGlobal()

	var collector *metrics.Collector
	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewCollector(reg)
		engineOpts.Observer = collector
		go func() {
			if err := metrics.Serve(ctx, opts.MetricsAddr, reg); err != nil {
				colors.Warning(err.Error())
			}
		}()
	}

	engine := badge.New(engineOpts)
	defer engine.Dispose()

	if collector != nil {
		engine.Subscribe(collector.Observe)
	}
	if opts.Tmux {
		tmuxClient := opts.TmuxClient
		if tmuxClient == nil {
			tmuxClient = tmux.NewDefaultClient()
		}
		engine.Subscribe(tmux.NewStatusPublisher(tmuxClient, opts.Status).Publish)
	}
	if opts.Hooks {
		notifier := hooks.NewCountNotifier(hooks.NewRunner(hooks.OptionsFromConfig()), opts.Principal)
		defer notifier.Close()
		engine.Subscribe(notifier.Notify)
	}

	markAllRead := func(ctx context.Context) error {
		_, err := client.MarkAllRead(ctx, opts.Principal)
		return err
	}

	if opts.TUI {
		if err := engine.Initialize(opts.Principal); err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		return tui.Run(engine, markAllRead)
	}

	engine.Subscribe(func(n uint) {
		line, err := status.Render(n, opts.Status)
		if err != nil {
			logging.Warn("render badge failed", "error", err)
			return
		}
		fmt.Fprintln(opts.Output, line)
	})
	if err := engine.Initialize(opts.Principal); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	logging.Info("watching badge", "principal", opts.Principal, "events", opts.Events)

	signals := opts.Signals
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
		defer signal.Stop(ch)
		signals = ch
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-signals:
			switch sig {
			case syscall.SIGUSR1:
				engine.Clear()
				go func() {
					markCtx, markCancel := context.WithTimeout(ctx, markReadTimeout)
					defer markCancel()
					if err := markAllRead(markCtx); err != nil {
						logging.Warn("mark all read failed", "principal", opts.Principal, "error", err)
					}
				}()
			case syscall.SIGUSR2:
				engine.RequestRefresh()
			default:
				logging.Info("stopping watch", "signal", sig.String())
				return nil
			}
		}
	}
}

// watchCmd represents the watch command
var watchCmd = NewWatchCmd(appClient)

func init() {
	cmd.RootCmd.AddCommand(watchCmd)
}
