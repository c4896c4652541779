package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	appconfig "kilometers.ai/boot/internal/application/config"
	"kilometers.ai/boot/internal/application/services"
	argvdomain "kilometers.ai/boot/internal/core/domain/argv"
)

// shutdownTimeout bounds Close after a signal. The server's own grace delay
// applies inside it.
const shutdownTimeout = 30 * time.Second

const startUsage = `Usage:
  kmboot start <plugin> [flags] [-- plugin flags]

Examples:
  # Serve a Lua plugin on port 8080
  kmboot start ./plugin.lua -p 8080

  # Pass options to the plugin through its declared flags
  kmboot start ./plugin.lua -- --hello world -abc

  # Serve a manifest, using the logger settings it exports
  kmboot start ./plugin.yaml --options -l info

  # Flags may also come before the plugin path
  kmboot start -l debug -p 8080 ./plugin.lua

Every flag can also be set through the environment as KMBOOT_<FLAG>,
for example KMBOOT_LOG_LEVEL=info. PORT is honoured as well. A .env file
in the working directory is applied first without overriding variables
that are already set.

Flags:
`

func newStartCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:                "start <plugin> [flags] [-- plugin flags]",
		Short:              "Load a plugin and start listening",
		DisableFlagParsing: true, // everything after -- belongs to the plugin
		RunE: func(cmd *cobra.Command, args []string) error {
			if wantsHelp(args) {
				printUsage(cmd, startUsage)
				return nil
			}
			return runStart(cmd, container, args)
		},
	}
}

func runStart(cmd *cobra.Command, container *CLIContainer, args []string) error {
	ctx := cmd.Context()
	container.applyDebug(args)

	app, err := container.Builder.Listen(ctx, args, nil, services.ServerOptions{})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Server listening at http://"+app.Addr().String()))
	for _, r := range app.Routes() {
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render(fmt.Sprintf("  %-7s %s", r.Method, r.Path)))
	}

	<-ctx.Done()
	container.Logger.Info("shutting down")

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.Close(closeCtx)
}

// wantsHelp reports whether -h or --help appears before the delimiter.
func wantsHelp(args []string) bool {
	for _, arg := range argvdomain.Split(args).Leading() {
		if arg == "-h" || arg == "--help" {
			return true
		}
	}
	return false
}

func printUsage(cmd *cobra.Command, usage string) {
	fs := appconfig.NewToolFlagSet(&appconfig.ToolOptions{})
	fmt.Fprint(cmd.OutOrStdout(), usage+fs.FlagUsages())
}

// applyDebug raises the bootstrap logger to debug when --debug is given on
// the command line or in the environment.
func (c *CLIContainer) applyDebug(args []string) {
	if c.LogLevel == nil {
		return
	}
	tool, err := appconfig.ParseToolArgs(argvdomain.SplitWith(args, appconfig.PluginPathIndex).ToolArgs, c.Env)
	if err == nil && tool.Debug {
		c.LogLevel.Set(slog.LevelDebug)
	}
}
