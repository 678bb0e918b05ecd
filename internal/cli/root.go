// Package cli builds the ride-settlement command tree.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

// Runners are the entry points the commands dispatch to.
type Runners struct {
	Payment      func(ctx context.Context, configPath string, maxConcurrent int) error
	Notification func(ctx context.Context, configPath string) error
	Migrate      func(ctx context.Context, configPath, tariffsPath string) error
}

// NewRootCommand returns the root command with the service and migrate subcommands.
func NewRootCommand(r Runners) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "ride-settlement",
		Short: "Ride settlement: payment saga, command consumer and notifications",
		Example: `  ride-settlement migrate --tariffs=config/tariffs.yaml
  ride-settlement payment-service --max-concurrent=150
  ride-settlement notification-service
  ride-settlement --mode=payment-service`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml",
		"path to the YAML config file (SETTLEMENT_* env vars override it)")

	root.AddCommand(paymentCmd(r, &configPath))
	root.AddCommand(notificationCmd(r, &configPath))
	root.AddCommand(migrateCmd(r, &configPath))
	return root
}

func paymentCmd(r Runners, configPath *string) *cobra.Command {
	var maxConcurrent int
	cmd := &cobra.Command{
		Use:   ModePayment,
		Short: "Saga orchestrator, process_payment consumer and settlement HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if maxConcurrent < 1 {
				return errors.New("--max-concurrent must be >= 1")
			}
			return r.Payment(cmd.Context(), *configPath, maxConcurrent)
		},
	}
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 100, "maximum number of concurrent HTTP requests to process")
	return cmd
}

func notificationCmd(r Runners, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   ModeNotification,
		Short: "Webhook delivery of payment outcomes with delayed retries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.Notification(cmd.Context(), *configPath)
		},
	}
}

func migrateCmd(r Runners, configPath *string) *cobra.Command {
	var tariffsPath string
	cmd := &cobra.Command{
		Use:   ModeMigrate,
		Short: "Apply the database schema and optionally seed tariffs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.Migrate(cmd.Context(), *configPath, tariffsPath)
		},
	}
	cmd.Flags().StringVar(&tariffsPath, "tariffs", "", "YAML file of city tariffs to upsert")
	return cmd
}
