package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"kilometers.ai/boot/internal/application/services"
	configports "kilometers.ai/boot/internal/core/ports/config"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// CLIContainer holds the dependencies of the CLI commands.
type CLIContainer struct {
	Builder  *services.Builder
	Env      configports.Env
	Logger   *slog.Logger
	LogLevel *slog.LevelVar // bootstrap logger level, raised by --debug
	Out      io.Writer
	Err      io.Writer
}

// NewRootCommand builds the kmboot command tree.
func NewRootCommand(container *CLIContainer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kmboot",
		Short: "Load an HTTP plugin module and serve it",
		Long: `kmboot loads a plugin module (a Lua script or a YAML/JSON manifest),
registers it on a fresh HTTP server instance and starts listening.

Arguments before -- configure the server; arguments after it are parsed
against the flags the plugin declares and passed to it as options.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.SetVersionTemplate(versionText())
	rootCmd.SetOut(container.Out)
	rootCmd.SetErr(container.Err)

	rootCmd.AddCommand(newStartCommand(container))
	rootCmd.AddCommand(newPrintRoutesCommand(container))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), versionText())
		},
	}
}

func versionText() string {
	return fmt.Sprintf("kmboot version %s\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		Version, BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH)
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, container *CLIContainer, args []string) int {
	if container.Out == nil {
		container.Out = os.Stdout
	}
	if container.Err == nil {
		container.Err = os.Stderr
	}

	rootCmd := NewRootCommand(container)
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(container.Err, FormatError(err))
		return 1
	}
	return 0
}
