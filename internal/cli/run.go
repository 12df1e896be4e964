package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relaymarket/secgate/internal/pipeline"
)

var (
	runGateConfig string
	runEnv        string
	runTolerance  string
	runBaseline   string
	runAllowlist  string
	runCoverage   string
	runOutput     string
	runHTML       string
	runWebhook    string
	runHosts      []string
	runHistory    string

	runDependency []string
	runStatic     []string
	runDynamic    []string
	runContainer  []string
	runAuto       []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest scan documents and evaluate the security gates",
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs := collectInputs()
		if len(inputs) == 0 {
			return fmt.Errorf("no scan inputs: pass at least one --dependency, --static, --dynamic, --container or --scan file")
		}

		rep, err := pipeline.Run(cmd.Context(), pipeline.Config{
			Inputs:         inputs,
			GateConfigPath: runGateConfig,
			Environment:    runEnv,
			Tolerance:      pipeline.Tolerance(runTolerance),
			BaselinePath:   runBaseline,
			AllowlistPath:  runAllowlist,
			CoveragePath:   runCoverage,
			OutputPath:     runOutput,
			HTMLPath:       runHTML,
			WebhookURL:     runWebhook,
			WebhookHosts:   runHosts,
			HistoryPath:    runHistory,
			Log:            log,
		})
		if err != nil {
			// Exit 2 separates "the run could not complete" from "the gates
			// failed" (exit 1), so CI can tell a broken invocation apart from
			// a blocked deployment.
			log.Errorw("gate run failed", "error", err)
			os.Exit(2)
		}

		fmt.Print(pipeline.RenderText(rep))
		if rep.ExitCode != 0 {
			// The report already explains the failure; exit without cobra's
			// error banner.
			os.Exit(rep.ExitCode)
		}
		return nil
	},
}

func collectInputs() []pipeline.ScanInput {
	var inputs []pipeline.ScanInput
	add := func(t pipeline.SourceType, paths []string) {
		for _, p := range paths {
			if strings.TrimSpace(p) != "" {
				inputs = append(inputs, pipeline.ScanInput{Type: t, Path: p})
			}
		}
	}
	add(pipeline.SourceDependency, runDependency)
	add(pipeline.SourceStatic, runStatic)
	add(pipeline.SourceDynamic, runDynamic)
	add(pipeline.SourceContainer, runContainer)
	add("", runAuto)
	return inputs
}

func init() {
	runCmd.Flags().StringVar(&runGateConfig, "config", "", "gate configuration YAML (built-in defaults when omitted or unusable)")
	runCmd.Flags().StringVar(&runEnv, "env", "", "environment: development, staging or production (auto-detected when omitted)")
	runCmd.Flags().StringVar(&runTolerance, "tolerance", "moderate", "regression tolerance: strict, moderate or lenient")
	runCmd.Flags().StringVar(&runBaseline, "baseline", "", "baseline JSON to diff against")
	runCmd.Flags().StringVar(&runAllowlist, "allowlist", "", "allowlist YAML of approved finding ids")
	runCmd.Flags().StringVar(&runCoverage, "coverage", "", "test coverage JSON sidecar")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "secgate-report.json", "report JSON output path")
	runCmd.Flags().StringVar(&runHTML, "html", "", "also write an HTML report to this path")
	runCmd.Flags().StringVar(&runWebhook, "webhook", "", "POST the run outcome to this HTTPS URL")
	runCmd.Flags().StringSliceVar(&runHosts, "webhook-allow", nil, "hosts allowed as webhook destinations")
	runCmd.Flags().StringVar(&runHistory, "history", "", "SQLite history database path")

	runCmd.Flags().StringSliceVar(&runDependency, "dependency", nil, "dependency audit JSON file(s)")
	runCmd.Flags().StringSliceVar(&runStatic, "static", nil, "static analysis JSON file(s)")
	runCmd.Flags().StringSliceVar(&runDynamic, "dynamic", nil, "dynamic scan JSON file(s)")
	runCmd.Flags().StringSliceVar(&runContainer, "container", nil, "container scan JSON file(s)")
	runCmd.Flags().StringSliceVar(&runAuto, "scan", nil, "scan JSON file(s) with auto-detected format")

	rootCmd.AddCommand(runCmd)
}
