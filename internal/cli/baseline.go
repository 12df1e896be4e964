package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaymarket/secgate/internal/pipeline"
)

var (
	baselineOut     string
	baselineEnv     string
	baselineForce   bool
	baselineHistory string

	baselineDependency []string
	baselineStatic     []string
	baselineDynamic    []string
	baselineContainer  []string
	baselineAuto       []string
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Snapshot current findings as a new baseline",
	Long: `baseline ingests the given scan documents and writes an immutable
snapshot of the normalized findings. Later runs diff against it; regenerating
supersedes the previous snapshot rather than editing it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var inputs []pipeline.ScanInput
		add := func(t pipeline.SourceType, paths []string) {
			for _, p := range paths {
				inputs = append(inputs, pipeline.ScanInput{Type: t, Path: p})
			}
		}
		add(pipeline.SourceDependency, baselineDependency)
		add(pipeline.SourceStatic, baselineStatic)
		add(pipeline.SourceDynamic, baselineDynamic)
		add(pipeline.SourceContainer, baselineContainer)
		add("", baselineAuto)
		if len(inputs) == 0 {
			return fmt.Errorf("no scan inputs: pass at least one --dependency, --static, --dynamic, --container or --scan file")
		}

		b, err := pipeline.GenerateBaseline(pipeline.Config{
			Inputs:      inputs,
			Environment: baselineEnv,
			HistoryPath: baselineHistory,
			Log:         log,
		}, baselineOut, baselineForce)
		if err != nil {
			return err
		}
		log.Infow("baseline written",
			"path", baselineOut,
			"findings", len(b.Vulnerabilities),
			"environment", b.Metadata.Environment)
		return nil
	},
}

func init() {
	baselineCmd.Flags().StringVarP(&baselineOut, "output", "o", "security-baseline.json", "baseline output path")
	baselineCmd.Flags().StringVar(&baselineEnv, "env", "", "environment recorded in the baseline metadata")
	baselineCmd.Flags().BoolVar(&baselineForce, "force", false, "replace an existing baseline file")
	baselineCmd.Flags().StringVar(&baselineHistory, "history", "", "SQLite history database path")

	baselineCmd.Flags().StringSliceVar(&baselineDependency, "dependency", nil, "dependency audit JSON file(s)")
	baselineCmd.Flags().StringSliceVar(&baselineStatic, "static", nil, "static analysis JSON file(s)")
	baselineCmd.Flags().StringSliceVar(&baselineDynamic, "dynamic", nil, "dynamic scan JSON file(s)")
	baselineCmd.Flags().StringSliceVar(&baselineContainer, "container", nil, "container scan JSON file(s)")
	baselineCmd.Flags().StringSliceVar(&baselineAuto, "scan", nil, "scan JSON file(s) with auto-detected format")

	rootCmd.AddCommand(baselineCmd)
}
