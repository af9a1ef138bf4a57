package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/playvault/wallet_ledger/internal/config"
	"github.com/playvault/wallet_ledger/internal/idempotency"
	"github.com/playvault/wallet_ledger/internal/infra"
	"github.com/playvault/wallet_ledger/internal/ledger"
	"github.com/playvault/wallet_ledger/internal/logging"
	"github.com/playvault/wallet_ledger/internal/middleware"
	"github.com/playvault/wallet_ledger/internal/seed"
)

var errAuditFailed = errors.New("ledger audit found violations")

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(hashKeyCmd)

	rootCmd.PersistentFlags().Duration("timeout", 2*time.Minute, "Deadline for the whole command")
	seedCmd.Flags().StringP("file", "f", "", "TOML seed plan; the built-in demo plan when empty")
	pruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "Delete finalized keys older than this")
}

var rootCmd = &cobra.Command{
	Use:           "walletctl",
	Short:         "Maintenance commands for the wallet ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the ledger and idempotency tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(cmd, func(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
			if err := infra.Migrate(ctx, pool, ledger.Schema, idempotency.Schema); err != nil {
				return err
			}
			logger.Info("schema applied")
			return nil
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Provision asset types, system wallets and user wallets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("file")
		plan := seed.DefaultPlan()
		if path != "" {
			var err error
			if plan, err = seed.LoadFile(path); err != nil {
				return err
			}
		}
		return withDatabase(cmd, func(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
			sum, err := seed.Apply(ctx, ledger.NewPostgresStore(pool), plan, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "assets: %d  wallets created: %d  grants: %d\n", sum.Assets, sum.Wallets, sum.Grants)
			return nil
		})
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Replay the journal and check every ledger invariant",
	Long: `Replay every ledger entry and verify that each transaction is a balanced
debit/credit pair and that stored balances match the entries. Run it while
the service is idle; wallets and entries are read in separate snapshots.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(cmd, func(ctx context.Context, pool *pgxpool.Pool, _ *slog.Logger) error {
			report, err := ledger.AuditJournal(ctx, ledger.NewPostgresStore(pool))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wallets: %d  entries: %d  transactions: %d\n", report.Wallets, report.Entries, report.Transactions)
			for _, v := range report.Violations {
				fmt.Fprintln(out, "  "+v.String())
			}
			if !report.OK() {
				return fmt.Errorf("%w: %d", errAuditFailed, len(report.Violations))
			}
			fmt.Fprintln(out, "ok")
			return nil
		})
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune-idempotency",
	Short: "Delete finalized idempotency keys from PostgreSQL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		return withDatabase(cmd, func(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
			n, err := idempotency.NewPostgresStore(pool).Prune(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			logger.Info("idempotency keys pruned", slog.Int64("deleted", n), slog.Duration("older_than", olderThan))
			return nil
		})
	},
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key KEY",
	Short: "Print the bcrypt hash to use as OPERATOR_KEY_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := middleware.HashOperatorKey(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

// withDatabase loads configuration, connects to PostgreSQL and runs fn under
// the --timeout deadline.
func withDatabase(cmd *cobra.Command, fn func(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel)

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	pool, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool, logger)
}
