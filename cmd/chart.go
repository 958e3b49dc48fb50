package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/benthic/internal/report"
	"github.com/andresmejia3/benthic/internal/utils"
	"github.com/spf13/cobra"
)

var chartOutput string

var chartCmd = &cobra.Command{
	Use:   "chart <results.json>",
	Short: "Regenerate the timeline and trail map charts from a results document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runChart(args[0], chartOutput)
	},
}

func init() {
	chartCmd.Flags().StringVarP(&chartOutput, "output", "o", "", "Directory for the charts (default: next to the results file)")
	rootCmd.AddCommand(chartCmd)
}

func runChart(path, dir string) error {
	res, err := report.Load(path)
	if err != nil {
		utils.ShowError("Failed to read results", err, nil)
		return err
	}
	if dir == "" {
		dir = filepath.Dir(path)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		utils.ShowError("Failed to create output directory", err, nil)
		return err
	}

	stem := strings.TrimSuffix(filepath.Base(path), "_results.json")
	if stem == filepath.Base(path) {
		stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	}

	timeline, trails, err := report.Charts(res, dir, stem)
	if err != nil {
		utils.ShowError("Chart generation failed", err, nil)
		return err
	}

	res.OutputPaths.TimelineChart = timeline
	res.OutputPaths.TrailMap = trails
	if err := report.Write(path, res); err != nil {
		utils.ShowError("Failed to update results", err, nil)
		return err
	}

	fmt.Fprintf(os.Stderr, "📈 Timeline: %s\n", timeline)
	fmt.Fprintf(os.Stderr, "🗺️  Trail map: %s\n", trails)
	return nil
}
