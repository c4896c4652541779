package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"kilometers.ai/boot/internal/application/services"
)

const printRoutesUsage = `Usage:
  kmboot print-routes <plugin> [flags] [-- plugin flags]

Loads and registers the plugin exactly as start does, prints the routes it
declared and exits without listening.

Flags:
`

func newPrintRoutesCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:                "print-routes <plugin> [flags] [-- plugin flags]",
		Short:              "Print the routes a plugin registers",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if wantsHelp(args) {
				printUsage(cmd, printRoutesUsage)
				return nil
			}
			return runPrintRoutes(cmd, container, args)
		},
	}
}

func runPrintRoutes(cmd *cobra.Command, container *CLIContainer, args []string) error {
	ctx := cmd.Context()
	container.applyDebug(args)

	app, err := container.Builder.Build(ctx, args, nil, services.ServerOptions{}, nil)
	if err != nil {
		return err
	}
	defer app.Close(context.WithoutCancel(ctx))

	out := cmd.OutOrStdout()
	routes := app.Routes()
	if len(routes) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No routes registered."))
		return nil
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-7s │ %s", "METHOD", "PATH")))
	for _, r := range routes {
		fmt.Fprintf(out, "%-7s │ %s\n", r.Method, r.Path)
	}
	return nil
}
