package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digkill/imagestudio/internal/catalog"
)

func usageCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Print monthly usage for the current plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd, a.subscriptions.GetUsageStats(cmd.Context()))
		},
	}
}

func plansCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List subscription plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			current := a.subscriptions.GetCurrentPlan(cmd.Context()).ID
			for _, p := range catalog.Plans() {
				marker := " "
				if p.ID == current {
					marker = "*"
				}
				limit := fmt.Sprintf("%d", p.Limits.ImagesPerMonth)
				if p.UnlimitedImages() {
					limit = "unlimited"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-9s %-9s %8.2f %s  %s images/%s\n", marker, p.ID, p.Name, p.Price, p.Currency, limit, p.Interval)
			}
			return nil
		},
	}
}

func upgradeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade <plan>",
		Short: "Switch to another plan and restart the billing window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := catalog.FindPlan(args[0]); !ok {
				return fmt.Errorf("unknown plan %q", args[0])
			}
			a.subscriptions.UpgradePlan(cmd.Context(), args[0])
			return writeJSON(cmd, a.subscriptions.GetUserSubscription(cmd.Context()))
		},
	}
}

func cancelCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the current subscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.subscriptions.CancelSubscription(cmd.Context())
			return writeJSON(cmd, a.subscriptions.GetUserSubscription(cmd.Context()))
		},
	}
}
