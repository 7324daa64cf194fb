package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/amasuba/uraics-revenue-assurance/internal/risk"
)

var (
	evalStartDate string
	evalEndDate   string
	evalRegion    string
	evalLimit     int
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and evaluate the risk rule catalogue",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every rule in the catalogue",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSEVERITY\tCATEGORY\tTITLE")
		for _, r := range risk.All() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Severity, r.Category, r.Title)
		}
		w.Flush()
	},
}

var rulesEvalCmd = &cobra.Command{
	Use:   "eval <risk-id>",
	Short: "Evaluate one rule and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesEval,
}

func runRulesEval(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close(ctx)

	evaluator := risk.NewEvaluator(b.db)
	result, err := evaluator.Evaluate(ctx, args[0], risk.Filters{
		StartDate: evalStartDate,
		EndDate:   evalEndDate,
		Region:    evalRegion,
		Limit:     evalLimit,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func init() {
	rulesEvalCmd.Flags().StringVar(&evalStartDate, "start-date", "", "Window start, DD/MM/YYYY")
	rulesEvalCmd.Flags().StringVar(&evalEndDate, "end-date", "", "Window end, DD/MM/YYYY")
	rulesEvalCmd.Flags().StringVar(&evalRegion, "region", "", "Restrict to one regional office")
	rulesEvalCmd.Flags().IntVar(&evalLimit, "limit", 0, "Row cap (0 = default)")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesEvalCmd)
}
