package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/benthic/internal/report"
	"github.com/andresmejia3/benthic/internal/utils"
	"github.com/spf13/cobra"
)

var summaryValidOnly bool

var summaryCmd = &cobra.Command{
	Use:   "summary <results.json>",
	Short: "List the tracks of a results document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		res, err := report.Load(args[0])
		if err != nil {
			utils.ShowError("Failed to read results", err, nil)
			return err
		}
		writeSummary(os.Stdout, res, summaryValidOnly)
		return nil
	},
}

func init() {
	summaryCmd.Flags().BoolVar(&summaryValidOnly, "valid", false, "Only list tracks that passed validation")
	rootCmd.AddCommand(summaryCmd)
}

func writeSummary(out io.Writer, res *report.RunResult, validOnly bool) {
	fps := res.VideoInfo.FPS
	at := func(frame int) string {
		if fps <= 0 {
			return fmt.Sprintf("#%d", frame)
		}
		return fmtTime(float64(frame) / fps)
	}

	fmt.Fprintf(out, "%s  run %s", res.VideoInfo.Filename, res.RunID)
	if res.Cancelled {
		fmt.Fprint(out, "  (cancelled)")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out)

	listed := 0
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTART\tEND\tDETECTIONS\tDISPLACEMENT\tSPEED\tCOUPLED\tSTATE\tVALID")
	fmt.Fprintln(w, "--\t-----\t---\t----------\t------------\t-----\t-------\t-----\t-----")
	for _, t := range res.Tracks {
		if validOnly && !t.IsValid {
			continue
		}
		listed++
		first, last := 0, 0
		if len(t.Frames) > 0 {
			first, last = t.Frames[0], t.Frames[len(t.Frames)-1]
		}
		valid := "no"
		if t.IsValid {
			valid = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.1f px\t%.2f px/f\t%.0f%%\t%s\t%s\n",
			t.TrackID, at(first), at(last), t.TotalDetections, t.Displacement, t.AvgSpeed, t.CouplingRate, t.FinalState, valid)
	}
	w.Flush()

	if listed == 0 {
		fmt.Fprintln(out, "No tracks found in results.")
	}

	s := res.Summary
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Tracks: %d (%d valid)  Frames: %d  Blobs: %d (%d coupled)  Coupling: %.1f%%\n",
		s.TotalTracks, s.ValidTracks, s.FramesProcessed, s.TotalBlobDetections, s.TotalCoupledBlobs, s.OverallCouplingRate)
}

func fmtTime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60
	s := int(duration.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
