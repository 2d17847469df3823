package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/settlement-engine/internal/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "settlectl",
		Short:         "Operator tooling for the settlement engine",
		Version:       telemetry.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(pruneCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
