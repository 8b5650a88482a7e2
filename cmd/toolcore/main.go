// Package main is the entry point for the toolcore CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flemzord/toolcore/internal/config"
	"github.com/flemzord/toolcore/internal/tool"
	"github.com/flemzord/toolcore/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errToolFailed marks a tool error whose payload was already printed.
var errToolFailed = errors.New("tool call failed")

func main() {
	if err := rootCmd().Execute(); err != nil {
		if !errors.Is(err, errToolFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

type globalFlags struct {
	config    string
	workspace string
	dataDir   string
	logLevel  string
}

func (g *globalFlags) params(stderr io.Writer) app.Params {
	return app.Params{
		ConfigPath: g.config,
		Version:    version,
		Workspace:  g.workspace,
		DataDir:    g.dataDir,
		LogLevel:   g.logLevel,
		LogOutput:  stderr,
	}
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "toolcore",
		Short:         "Sandboxed file, command, and code execution tools for AI agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.config, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVarP(&g.workspace, "workspace", "w", "", "Workspace root (overrides config)")
	root.PersistentFlags().StringVar(&g.dataDir, "data-dir", "", "Data directory (overrides config)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		versionCmd(),
		toolsCmd(g),
		execCmd(g),
		stdioCmd(g),
		healthCmd(g),
		configCmd(),
	)
	return root
}

// withApp builds the application for one command and closes it after.
func withApp(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, g.params(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "toolcore %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func toolsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool schemas of every enabled service as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(_ context.Context, a *app.App) error {
				defs := a.Registry.Definitions()
				if defs == nil {
					defs = []tool.Definition{}
				}
				return printJSON(cmd.OutOrStdout(), defs)
			})
		},
	}
}

func execCmd(g *globalFlags) *cobra.Command {
	var (
		params      string
		showMetrics bool
	)
	cmd := &cobra.Command{
		Use:   "exec <tool>",
		Short: "Run one tool and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				result, err := a.Registry.Execute(ctx, args[0], json.RawMessage(params))
				if showMetrics {
					defer func() {
						if text, mErr := a.Metrics.Text(); mErr == nil {
							fmt.Fprint(cmd.ErrOrStderr(), text)
						}
					}()
				}
				if err != nil {
					var te *tool.Error
					if !errors.As(err, &te) {
						return err
					}
					if pErr := printJSON(cmd.OutOrStdout(), te); pErr != nil {
						return pErr
					}
					return errToolFailed
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "{}", "Tool parameters as a JSON object")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print Prometheus metrics to stderr afterwards")
	return cmd
}

func stdioCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve newline-delimited JSON tool calls on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				a.Logger.Info("serving tool calls on stdio", "workspace", a.Workspace.Root)
				err := a.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
				if errors.Is(err, context.Canceled) {
					a.Logger.Info("shutdown signal received")
					return nil
				}
				return err
			})
		},
	}
}

func healthCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print the health of every service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(_ context.Context, a *app.App) error {
				return printJSON(cmd.OutOrStdout(), a.Registry.Health())
			})
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			ids := config.EnabledServices(cfg)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d services enabled)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}
