package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/pricing"
)

var (
	priceTier     string
	priceAction   string
	priceDuration int
	priceSlab     string
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Inspect and refresh the pricing cache",
}

var pricingRefreshCmd = &cobra.Command{
	Use:   "refresh [tier...]",
	Short: "Refresh cached prices for the given tiers (default: configured tiers)",
	Run:   runPricingRefresh,
}

var pricingGetCmd = &cobra.Command{
	Use:   "get <resource-key>",
	Short: "Look up a price through the cache",
	Args:  cobra.ExactArgs(1),
	Run:   runPricingGet,
}

func init() {
	pricingGetCmd.Flags().StringVar(&priceTier, "tier", string(domain.TierCustomer), "pricing tier: customer, reseller or cost")
	pricingGetCmd.Flags().StringVar(&priceAction, "action", "", "only show this action (register, renew, transfer, restore, add)")
	pricingGetCmd.Flags().IntVar(&priceDuration, "duration", 0, "only show this duration")
	pricingGetCmd.Flags().StringVar(&priceSlab, "slab", "", "only show this slab")

	pricingCmd.AddCommand(pricingRefreshCmd, pricingGetCmd)
	rootCmd.AddCommand(pricingCmd)
}

func runPricingRefresh(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := newApp(ctx)
	defer app.Close()

	var tiers []domain.Tier
	for _, a := range args {
		t, err := domain.ParseTier(a)
		if err != nil {
			slog.Error("Invalid tier", "error", err)
			os.Exit(1)
		}
		tiers = append(tiers, t)
	}
	if len(tiers) == 0 {
		configured, err := app.Config().PricingTiers()
		if err != nil {
			slog.Error("Invalid configured tiers", "error", err)
			os.Exit(1)
		}
		tiers = configured
	}

	res := app.Pricing.Refresh(ctx, tiers...)
	for tier, err := range res.TierErrors {
		slog.Error("Tier refresh failed", "tier", tier, "error", err)
	}
	fmt.Printf("entries=%d calls=%d skipped=%d duration=%s\n", res.Entries, res.Calls, len(res.Skipped), res.Duration)
	if !res.OK() {
		os.Exit(1)
	}
}

func runPricingGet(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := newApp(ctx)
	defer app.Close()

	tier, err := domain.ParseTier(priceTier)
	if err != nil {
		slog.Error("Invalid tier", "error", err)
		os.Exit(1)
	}

	quotes, err := app.Pricing.Prices(ctx, args[0], tier)
	if err != nil {
		slog.Error("Price lookup failed", "key", args[0], "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "SLAB\tACTION\tDURATION\tAMOUNT\tREFRESHED\tSTATE")
	for _, q := range quotes {
		if !matchesFilter(q) {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d %s\t%s %s\t%s\t%s\n",
			q.Slab, q.Action, q.Duration, q.Unit, q.Major().StringFixed(domain.CurrencyExponent(q.Currency)), q.Currency,
			q.RefreshedAt.Format("2006-01-02 15:04"), quoteState(q))
	}
	_ = w.Flush()
}

func matchesFilter(q pricing.Quote) bool {
	if priceAction != "" && string(q.Action) != priceAction {
		return false
	}
	if priceDuration != 0 && q.Duration != priceDuration {
		return false
	}
	if priceSlab != "" && q.Slab != priceSlab {
		return false
	}
	return true
}

func quoteState(q pricing.Quote) string {
	switch {
	case q.Stale:
		return "stale"
	case q.Live:
		return "live"
	}
	return "cached"
}
