package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/benthic/internal/utils"
	"github.com/spf13/cobra"
)

var (
	cleanDir    string
	cleanVideo  bool
	cleanJSON   bool
	cleanCharts bool
	cleanYes    bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove generated outputs (annotated videos, results, charts)",
	Long:  "Deletes files written by track and chart. By default, it removes everything. Use flags to clear specific outputs.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !cleanVideo && !cleanJSON && !cleanCharts {
			cleanVideo = true
			cleanJSON = true
			cleanCharts = true
		}

		if info, err := os.Stat(cleanDir); err != nil {
			utils.Die("Output directory not found", err, nil)
		} else if !info.IsDir() {
			utils.Die("Output path is not a directory", fmt.Errorf("%s", cleanDir), nil)
		}

		reader := bufio.NewReader(os.Stdin)
		ask := func(prompt string) bool { return cleanYes || confirm(reader, prompt) }

		if cleanVideo {
			removeOutputs(cleanDir, ask, "annotated videos", "*_tracked.mp4")
		}
		if cleanJSON {
			removeOutputs(cleanDir, ask, "results documents", "*_results.json")
		}
		if cleanCharts {
			removeOutputs(cleanDir, ask, "charts", "*_timeline.png", "*_trails.html")
		}

		fmt.Println("✨ Clean Complete.")
	},
}

func init() {
	cleanCmd.Flags().StringVarP(&cleanDir, "output", "o", "results", "Output directory to clean")
	cleanCmd.Flags().BoolVar(&cleanVideo, "video", false, "Remove annotated videos")
	cleanCmd.Flags().BoolVar(&cleanJSON, "json", false, "Remove results documents")
	cleanCmd.Flags().BoolVar(&cleanCharts, "charts", false, "Remove timeline and trail map charts")
	cleanCmd.Flags().BoolVarP(&cleanYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(cleanCmd)
}

// matchOutputs lists the files in dir matching any of the patterns.
func matchOutputs(dir string, patterns ...string) []string {
	var files []string
	for _, p := range patterns {
		m, _ := filepath.Glob(filepath.Join(dir, p))
		files = append(files, m...)
	}
	return files
}

func removeOutputs(dir string, ask func(string) bool, what string, patterns ...string) {
	files := matchOutputs(dir, patterns...)
	if len(files) == 0 {
		return
	}
	if !ask(fmt.Sprintf("⚠️  Are you sure you want to delete %d %s in %s?", len(files), what, dir)) {
		return
	}
	fmt.Printf("🗑️  Clearing %s...\n", what)
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", f, err)
		}
	}
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return false
	}
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
