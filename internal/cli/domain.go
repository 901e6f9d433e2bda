package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Registrar domain lookups",
}

var domainCheckCmd = &cobra.Command{
	Use:   "check <name>...",
	Short: "Check availability of one or more domain names",
	Args:  cobra.MinimumNArgs(1),
	Run:   runDomainCheck,
}

func init() {
	domainCmd.AddCommand(domainCheckCmd)
	rootCmd.AddCommand(domainCmd)
}

func runDomainCheck(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := newApp(ctx)
	defer app.Close()

	results, err := app.Registrar.Domains.CheckAvailability(ctx, args...)
	if err != nil {
		slog.Error("Availability check failed", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOMAIN\tSTATUS\tCLASS")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Status, r.ClassKey)
	}
	_ = w.Flush()
}
