package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/regsync/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pricing cache coverage and age per tier",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := newApp(ctx)
	defer app.Close()

	tiers, err := app.Config().PricingTiers()
	if err != nil {
		slog.Error("Invalid configured tiers", "error", err)
		os.Exit(1)
	}
	maxAge := app.Config().Pricing.MaxAge()
	now := time.Now()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TIER\tKEYS\tROWS\tSTALE\tOLDEST")

	for _, tier := range tiers {
		rows, err := app.Stores.Prices.ListByTier(ctx, tier)
		if err != nil {
			slog.Error("Failed to list prices", "tier", tier, "error", err)
			continue
		}
		keys := make(map[string]struct{})
		stale := 0
		var oldest time.Time
		for _, r := range rows {
			keys[r.ResourceKey] = struct{}{}
			if r.Freshness(now, maxAge) == domain.Stale {
				stale++
			}
			if oldest.IsZero() || r.RefreshedAt.Before(oldest) {
				oldest = r.RefreshedAt
			}
		}
		age := "-"
		if !oldest.IsZero() {
			age = now.Sub(oldest).Truncate(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", tier, len(keys), len(rows), stale, age)
	}
	_ = w.Flush()
}
