package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/settlement-engine/internal/audit"
	"github.com/josh-kwaku/settlement-engine/internal/config"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
	"github.com/josh-kwaku/settlement-engine/internal/service"
	"github.com/josh-kwaku/settlement-engine/migrations"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			applied, err := repository.Migrate(cmd.Context(), env.db, migrations.FS)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	var (
		limit  int
		minAge time.Duration
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Poll the gateway once for stale PENDING intents",
		Long: `Run a single reconciler pass. Every PENDING intent older than --min-age
is polled at the gateway and settled if the gateway reports a final status.

Examples:
  settlectl reconcile
  settlectl reconcile --limit 200 --min-age 10m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			payments, err := env.payments()
			if err != nil {
				return err
			}

			summary, err := service.NewReconciler(payments, service.ReconcilerConfig{
				MinAge: minAge,
				Batch:  limit,
			}, env.logger).RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "checked=%d settled=%d pending=%d errors=%d\n",
				summary.Checked, summary.Settled, summary.Pending, summary.Errors)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum intents to poll")
	cmd.Flags().DurationVar(&minAge, "min-age", 2*time.Minute, "only poll intents older than this")
	return cmd
}

func completeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <external-ref>",
		Short: "Settle an intent as paid without asking the gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			payments, err := env.payments()
			if err != nil {
				return err
			}

			res, err := payments.ManualComplete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (status %s)\n", args[0], res.Outcome, res.Intent.Status)
			if res.Shortfall {
				fmt.Fprintln(cmd.OutOrStdout(), "warning: wallet could not cover the entitlement")
			}
			return nil
		},
	}
}

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check that every balance equals the sum of its ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOperator()
			if err != nil {
				return err
			}

			pool, err := audit.Connect(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			report, err := audit.New(pool).Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, m := range report.Mismatches {
				last := "none"
				if m.LastBalance != nil {
					last = fmt.Sprint(*m.LastBalance)
				}
				fmt.Fprintf(out, "MISMATCH account=%s balance=%d ledger_sum=%d last_balance_after=%s entries=%d\n",
					m.AccountID, m.Balance, m.LedgerSum, last, m.EntriesCount)
			}
			fmt.Fprintf(out, "audited %d accounts, %d mismatched\n", report.Accounts, len(report.Mismatches))

			if !report.OK() {
				return fmt.Errorf("ledger audit failed: %d accounts out of balance", len(report.Mismatches))
			}
			return nil
		},
	}
}

func pruneCmd() *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete expired idempotency cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			n, err := repository.NewIdempotencyRepository(env.db).DeleteExpired(cmd.Context(), time.Now().UTC().Add(-grace))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired idempotency entries\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", 0, "keep entries that expired less than this long ago")
	return cmd
}
