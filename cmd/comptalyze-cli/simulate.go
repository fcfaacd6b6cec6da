package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/urssaf"
)

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate [revenue]",
		Short: "Compute URSSAF contributions for a revenue in euros",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulate,
	}

	cmd.Flags().StringP("activity", "a", string(urssaf.ActivityServicesBIC), "Activity (vente, services_bic, liberal_bnc, liberal_cipav)")
	cmd.Flags().IntP("year", "y", 0, "Rates year, current year when 0")
	cmd.Flags().Bool("acre", false, "Apply the ACRE reduction")
	cmd.Flags().Bool("vl", false, "Opt for the versement libératoire")
	cmd.Flags().Bool("artisan", false, "Registered as artisan (CFP rate)")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	revenue, err := decimal.NewFromString(args[0])
	if err != nil {
		return fmt.Errorf("invalid revenue %q: %w", args[0], err)
	}
	activityFlag, _ := cmd.Flags().GetString("activity")
	activity, err := urssaf.ParseActivity(activityFlag)
	if err != nil {
		return err
	}
	year, _ := cmd.Flags().GetInt("year")
	acre, _ := cmd.Flags().GetBool("acre")
	vl, _ := cmd.Flags().GetBool("vl")
	artisan, _ := cmd.Flags().GetBool("artisan")

	sim, err := urssaf.Simulate(urssaf.SimulationInput{
		Revenue:              revenue,
		Activity:             activity,
		Year:                 year,
		ACRE:                 acre,
		VersementLiberatoire: vl,
		Artisan:              artisan,
	})
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), sim)
	}
	printSimulation(cmd.OutOrStdout(), sim)
	return nil
}

func printSimulation(w io.Writer, sim *urssaf.Simulation) {
	fmt.Fprintf(w, "%s %d\n", sim.Activity.Label(), sim.Year)
	fmt.Fprintln(w, strings.Repeat("=", 40))
	fmt.Fprintf(w, "  Revenue:        %s €\n", sim.Revenue.StringFixed(2))
	fmt.Fprintf(w, "  Rate:           %s %%\n", sim.ContributionRate.Mul(decimal.NewFromInt(100)).String())
	fmt.Fprintf(w, "  Contributions:  %s €\n", sim.Contributions.StringFixed(2))
	fmt.Fprintf(w, "  CFP:            %s €\n", sim.CFP.StringFixed(2))
	if !sim.IncomeTaxPrepayment.IsZero() {
		fmt.Fprintf(w, "  Income tax:     %s €\n", sim.IncomeTaxPrepayment.StringFixed(2))
	}
	fmt.Fprintf(w, "  Total:          %s €\n", sim.Total.StringFixed(2))
	fmt.Fprintf(w, "  Net income:     %s €\n", sim.NetIncome.StringFixed(2))
	fmt.Fprintf(w, "  Ceiling:        %s %%\n", sim.CeilingProgress.StringFixed(1))
	fmt.Fprintf(w, "  VAT threshold:  %s %%\n", sim.VATThresholdProgress.StringFixed(1))
	for _, warning := range sim.Warnings {
		fmt.Fprintf(w, "  ! %s\n", warning)
	}
}

func incomeTaxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "income-tax [revenue]",
		Short: "Estimate the progressive income tax on a micro revenue",
		Args:  cobra.ExactArgs(1),
		RunE:  runIncomeTax,
	}

	cmd.Flags().StringP("activity", "a", string(urssaf.ActivityServicesBIC), "Activity")
	cmd.Flags().IntP("year", "y", 0, "Rates year, current year when 0")
	cmd.Flags().StringP("parts", "p", "1", "Household parts (quotient familial)")
	cmd.Flags().String("other", "0", "Other taxable income of the household")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}

func runIncomeTax(cmd *cobra.Command, args []string) error {
	revenue, err := decimal.NewFromString(args[0])
	if err != nil {
		return fmt.Errorf("invalid revenue %q: %w", args[0], err)
	}
	activityFlag, _ := cmd.Flags().GetString("activity")
	activity, err := urssaf.ParseActivity(activityFlag)
	if err != nil {
		return err
	}
	partsFlag, _ := cmd.Flags().GetString("parts")
	parts, err := decimal.NewFromString(partsFlag)
	if err != nil {
		return fmt.Errorf("invalid parts %q: %w", partsFlag, err)
	}
	otherFlag, _ := cmd.Flags().GetString("other")
	other, err := decimal.NewFromString(otherFlag)
	if err != nil {
		return fmt.Errorf("invalid other income %q: %w", otherFlag, err)
	}
	year, _ := cmd.Flags().GetInt("year")

	est, err := urssaf.EstimateIncomeTax(urssaf.IncomeTaxInput{
		Revenue:     revenue,
		Activity:    activity,
		Year:        year,
		Parts:       parts,
		OtherIncome: other,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(out, est)
	}
	fmt.Fprintf(out, "Income tax %d (%s parts)\n", est.Year, est.Parts.String())
	fmt.Fprintln(out, strings.Repeat("=", 40))
	fmt.Fprintf(out, "  Allowance:      %s €\n", est.Allowance.StringFixed(2))
	fmt.Fprintf(out, "  Taxable:        %s €\n", est.TaxableIncome.StringFixed(2))
	for _, b := range est.Brackets {
		fmt.Fprintf(out, "    %5s %%  %10s €\n", b.Rate.Mul(decimal.NewFromInt(100)).String(), b.Tax.StringFixed(2))
	}
	fmt.Fprintf(out, "  Tax:            %s €\n", est.Tax.StringFixed(2))
	fmt.Fprintf(out, "  Marginal rate:  %s %%\n", est.MarginalRate.Mul(decimal.NewFromInt(100)).String())
	fmt.Fprintf(out, "  With VL:        %s €\n", est.VersementLiberatoire.StringFixed(2))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
