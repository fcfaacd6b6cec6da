package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/billing"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/database"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
)

func openBilling() *billing.Service {
	env.SetupEnvFile()
	database.SetupDatabase()
	return billing.NewServiceFromDB(database.GetDB(), billing.WithCatalog(billing.NewCatalogFromEnv()))
}

func plansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Manage provider price to plan mappings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Upsert the mappings of the STRIPE_PRICE_* variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := openBilling()
			mappings := svc.Catalog().Mappings()
			if len(mappings) == 0 {
				return fmt.Errorf("no STRIPE_PRICE_* variable is set")
			}
			n, err := svc.SeedPlanMappings(context.Background(), mappings)
			if err != nil {
				return fmt.Errorf("seed plan mappings: %w", err)
			}
			for _, m := range mappings {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-8s %-8s %s\n", m.InternalPlan, m.BillingInterval, m.ProviderPlanRef)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d mapping(s) seeded\n", n)
			return nil
		},
	})
	return cmd
}

func billingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Subscription maintenance",
	}

	reconcile := &cobra.Command{
		Use:   "reconcile [user-id]",
		Short: "Recompute plans from stored subscriptions",
		Long: `Recompute the effective plan of one user from the stored subscriptions.
With --all every user holding a subscription is reconciled, and with
--trials only users whose trial elapsed without conversion.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			trials, _ := cmd.Flags().GetBool("trials")
			if len(args) == 0 && !all && !trials {
				return fmt.Errorf("give a user id, --all or --trials")
			}

			svc := openBilling()
			ctx := context.Background()
			out := cmd.OutOrStdout()
			switch {
			case len(args) == 1:
				plan, err := svc.ReconcileUserPlan(ctx, args[0])
				if err != nil {
					return fmt.Errorf("reconcile %s: %w", args[0], err)
				}
				fmt.Fprintf(out, "%s: %s\n", args[0], plan)
			case trials:
				n, err := svc.ReconcileExpiredTrials(ctx)
				if err != nil {
					return fmt.Errorf("reconcile expired trials: %w", err)
				}
				fmt.Fprintf(out, "%d expired trial(s) reconciled\n", n)
			default:
				n, err := svc.ReconcileAll(ctx)
				if err != nil {
					return fmt.Errorf("reconcile all: %w", err)
				}
				fmt.Fprintf(out, "%d user(s) reconciled\n", n)
			}
			return nil
		},
	}
	reconcile.Flags().Bool("all", false, "Reconcile every user with a subscription")
	reconcile.Flags().Bool("trials", false, "Only downgrade elapsed trials")
	cmd.AddCommand(reconcile)

	return cmd
}
