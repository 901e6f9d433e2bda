package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/regsync/internal/reconcile"
)

var reconcileTenant string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare mirrored domains and email orders against the registrar",
	Run:   runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileTenant, "tenant", "", "reconcile a single tenant (default: all)")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := newApp(ctx)
	defer app.Close()

	var (
		res reconcile.Result
		err error
	)
	if reconcileTenant != "" {
		res, err = app.Reconciler.ReconcileTenant(ctx, reconcileTenant)
	} else {
		res, err = app.Reconciler.RunAll(ctx)
	}
	if err != nil {
		slog.Error("Reconciliation aborted", "error", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "RESOURCE\tNAME\tFIELD\tLOCAL\tREMOTE")
	for _, d := range res.Discrepancies {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ResourceType, d.DisplayName, d.Field, d.LocalValue, d.RemoteValue)
	}
	_ = w.Flush()

	for _, e := range res.Errors {
		slog.Warn("Item not reconciled", "error", e)
	}
	fmt.Printf("run=%s checked=%d updated=%d skipped=%d errors=%d\n",
		res.RunID, res.Checked, res.Updated, res.Skipped, len(res.Errors))

	if err != nil {
		os.Exit(1)
	}
}
