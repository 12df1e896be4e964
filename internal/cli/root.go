// Package cli wires the secgate commands.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/relaymarket/secgate/internal/logging"
)

var (
	debugMode bool
	log       *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "secgate",
	Short: "secgate evaluates scanner output against security gates",
	Long: `secgate normalizes dependency, static-analysis, dynamic-scan and
container scanner output into one finding schema, diffs it against a stored
baseline, and evaluates the result against per-environment security gates.
The exit code is 0 when the gates pass and 1 when a blocking gate fails.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log = logging.New(debugMode)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
