package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/relaymarket/secgate/internal/store"
)

var (
	historyDB    string
	historyEnv   string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent gate runs from the history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(historyDB)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.RecentRuns(historyEnv, historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tENV\tRESULT\tTOTAL\tCRIT\tHIGH\tMED\tLOW\tREGR\tVIOL\tWARN")
		for _, r := range runs {
			result := "pass"
			if !r.Passed {
				result = "FAIL"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
				r.Timestamp, r.Environment, result,
				r.Total, r.Critical, r.High, r.Medium, r.Low,
				r.Regressions, r.Violations, r.Warnings)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "history", "secgate-history.db", "SQLite history database path")
	historyCmd.Flags().StringVar(&historyEnv, "env", "", "filter by environment")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to list")

	rootCmd.AddCommand(historyCmd)
}
