package main

import (
	"github.com/spf13/cobra"

	"github.com/digkill/imagestudio/internal/config"
	"github.com/digkill/imagestudio/internal/kvstore"
	"github.com/digkill/imagestudio/internal/repository"
	"github.com/digkill/imagestudio/internal/service"
	"github.com/digkill/imagestudio/pkg/logger"
)

// app holds the services opened for a single command invocation.
type app struct {
	history       *service.HistoryService
	subscriptions *service.SubscriptionService
	close         func() error
}

func newRootCommand(load func() (config.Config, error)) *cobra.Command {
	a := &app{close: func() error { return nil }}

	rootCmd := &cobra.Command{
		Use:           "studioctl",
		Short:         "Inspect and maintain image studio state",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel)
			store, closeStore, err := kvstore.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			a.history = service.NewHistoryService(repository.NewHistoryRepository(store), log)
			a.subscriptions = service.NewSubscriptionService(repository.NewSubscriptionRepository(store), log)
			a.close = closeStore
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	rootCmd.AddCommand(
		historyCommand(a),
		usageCommand(a),
		plansCommand(a),
		upgradeCommand(a),
		cancelCommand(a),
	)
	return rootCmd
}
