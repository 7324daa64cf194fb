package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/amasuba/uraics-revenue-assurance/internal/mirror"
	"github.com/amasuba/uraics-revenue-assurance/internal/risk"
)

var (
	syncStartDate string
	syncEndDate   string
	syncRegion    string
)

var syncCmd = &cobra.Command{
	Use:   "sync [risk-id]",
	Short: "Mirror flagged taxpayers into the graph store",
	Long: `Evaluates catalogue rules and writes the flagged taxpayers into
the Neo4j mirror. With a risk identifier, syncs that rule only; without
one, syncs the whole catalogue with the configured parallelism.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close(ctx)

	syncer := mirror.NewSyncer(risk.NewEvaluator(b.db), b.store)
	filters := risk.Filters{
		StartDate: syncStartDate,
		EndDate:   syncEndDate,
		Region:    syncRegion,
	}

	var out any
	if len(args) == 1 {
		out, err = syncer.SyncRule(ctx, args[0], filters)
	} else {
		out, err = syncer.SyncAll(ctx, filters, cfg.Sync.Parallelism)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func init() {
	syncCmd.Flags().StringVar(&syncStartDate, "start-date", "", "Window start, DD/MM/YYYY")
	syncCmd.Flags().StringVar(&syncEndDate, "end-date", "", "Window end, DD/MM/YYYY")
	syncCmd.Flags().StringVar(&syncRegion, "region", "", "Restrict to one regional office")
}
