// Command reconcile stages a royalty statement from the command line, prints the
// review summary and optionally exports or commits the selection.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "reconcile",
		Short:        "Royalty statement reconciliation tools",
		SilenceUsage: true,
	}
	root.AddCommand(newStageCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
