package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/benthic/internal/params"
	"github.com/andresmejia3/benthic/internal/pipeline"
	"github.com/andresmejia3/benthic/internal/render"
	"github.com/andresmejia3/benthic/internal/report"
	"github.com/andresmejia3/benthic/internal/utils"
	"github.com/mdobak/go-xerrors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var trackOpts Options

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Detect and track organisms in a motion-isolated video",
	Long: `Runs dual-polarity blob detection on every frame, couples shadows with their
reflections, tracks organisms across frames and writes an annotated video
plus a JSON results document.

Parameters are resolved from defaults, then --params, then BENTHIC_*
environment variables (a .env file is honoured), then command line flags.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runTrack(cmd, trackOpts)
	},
}

func init() {
	f := trackCmd.Flags()
	f.StringVarP(&trackOpts.InputPath, "input", "i", "", "Path to the background-subtracted video")
	f.StringVarP(&trackOpts.OutputDir, "output", "o", "results", "Directory for the annotated video and results")
	f.StringVarP(&trackOpts.ParamsFile, "params", "p", "", "JSON parameter file (partial overrides allowed)")
	f.IntVarP(&trackOpts.NumEngines, "engines", "e", 1, "Number of parallel detection engines")
	f.BoolVarP(&trackOpts.Charts, "charts", "c", false, "Also write a timeline PNG and an interactive trail map")

	registerParamFlags(trackCmd, &trackOpts.Params)

	trackCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(trackCmd)
}

// registerParamFlags exposes every tunable parameter as a flag. Only flags the
// user actually sets are applied, see resolveParams.
func registerParamFlags(cmd *cobra.Command, s *params.Set) {
	d := params.Default()
	f := cmd.Flags()

	f.IntVar(&s.Detection.DarkThreshold, "dark-threshold", d.Detection.DarkThreshold, "Darkening below neutral grey that marks a shadow pixel")
	f.IntVar(&s.Detection.BrightThreshold, "bright-threshold", d.Detection.BrightThreshold, "Brightening above neutral grey that marks a reflection pixel")
	f.IntVar(&s.Detection.MinArea, "min-area", d.Detection.MinArea, "Smallest blob area in pixels (inclusive)")
	f.IntVar(&s.Detection.MaxArea, "max-area", d.Detection.MaxArea, "Largest blob area in pixels (inclusive)")
	f.Float64Var(&s.Detection.CouplingDistance, "coupling-distance", d.Detection.CouplingDistance, "Max shadow-to-reflection distance for coupling")
	f.IntVar(&s.Detection.MorphKernelSize, "morph-kernel-size", d.Detection.MorphKernelSize, "Elliptical kernel size for mask cleanup (<=1 disables)")
	f.Float64Var(&s.Detection.MaxAspectRatio, "max-aspect-ratio", d.Detection.MaxAspectRatio, "Reject blobs more elongated than this (0 disables)")
	f.Float64Var(&s.Detection.MinCircularity, "min-circularity", d.Detection.MinCircularity, "Reject blobs less round than this (4*pi*area/perimeter^2)")
	f.Float64Var(&s.Detection.CouplingBoost, "coupling-boost", d.Detection.CouplingBoost, "Confidence multiplier for coupled blobs")
	f.BoolVar(&s.Detection.RequireCoupling, "require-coupling", d.Detection.RequireCoupling, "Drop blobs without a shadow/reflection partner")

	f.Float64Var(&s.Tracking.MaxDistance, "max-distance", d.Tracking.MaxDistance, "Max frame-to-frame movement in pixels")
	f.IntVar(&s.Tracking.MaxSkipFrames, "max-skip-frames", d.Tracking.MaxSkipFrames, "Frames a track may rest unseen before it is terminated")
	f.Float64Var(&s.Tracking.RestZoneRadius, "rest-zone-radius", d.Tracking.RestZoneRadius, "Radius around a resting track where it can be re-acquired")
	f.Float64Var(&s.Tracking.RestZoneDiscount, "rest-zone-discount", d.Tracking.RestZoneDiscount, "Distance multiplier for re-acquiring a resting track")

	f.IntVar(&s.Validation.MinTrackLength, "min-track-length", d.Validation.MinTrackLength, "Minimum detections for a valid track")
	f.Float64Var(&s.Validation.MinDisplacement, "min-displacement", d.Validation.MinDisplacement, "Minimum start-to-end displacement in pixels")
	f.Float64Var(&s.Validation.MinSpeed, "min-speed", d.Validation.MinSpeed, "Minimum average speed in pixels per frame")
	f.Float64Var(&s.Validation.MaxSpeed, "max-speed", d.Validation.MaxSpeed, "Maximum average speed in pixels per frame")
}

// resolveParams layers defaults, the parameter file, the environment and the
// flags the user changed, in that order.
func resolveParams(cmd *cobra.Command, file string, lookup func(string) (string, bool)) (params.Set, error) {
	s := params.Default()
	if file != "" {
		if err := s.LoadFile(file); err != nil {
			return s, err
		}
	}
	if err := s.ApplyEnv(lookup); err != nil {
		return s, err
	}
	for _, name := range params.Names() {
		if !cmd.Flags().Changed(name) {
			continue
		}
		if err := s.Assign(name, cmd.Flags().Lookup(name).Value.String()); err != nil {
			return s, err
		}
	}
	return s, s.Validate()
}

// outputFiles names everything a run writes for the video stem.
type outputFiles struct {
	Video string
	JSON  string
}

func outputsFor(dir, input string) (outputFiles, string) {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return outputFiles{
		Video: filepath.Join(dir, stem+"_tracked.mp4"),
		JSON:  filepath.Join(dir, stem+"_results.json"),
	}, stem
}

func runTrack(cmd *cobra.Command, opts Options) error {
	ctx := cmd.Context()

	if err := validateTrackFlags(&opts); err != nil {
		return err
	}

	set, err := resolveParams(cmd, opts.ParamsFile, os.LookupEnv)
	if err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	opts.Params = set

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		utils.ShowError("Failed to create output directory", err, nil)
		return err
	}
	files, stem := outputsFor(opts.OutputDir, opts.InputPath)

	// Safety Check: Prevent overwriting input file which causes corruption
	inAbs, _ := filepath.Abs(opts.InputPath)
	outAbs, _ := filepath.Abs(files.Video)
	if inAbs == outAbs {
		err := fmt.Errorf("input and output paths must be different to prevent file corruption")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}

	info, err := utils.ProbeVideo(ctx, opts.InputPath)
	if err != nil {
		utils.ShowError("Failed to probe video", err, nil)
		return err
	}
	videoID, err := utils.GenerateVideoID(opts.InputPath)
	if err != nil {
		utils.ShowError("Failed to generate video ID", err, nil)
		return err
	}

	fmt.Fprintf(os.Stderr, "📼 Processing Video ID: %s (%dx%d @ %.2f fps)\n", videoID[:12], info.Resolution.Width, info.Resolution.Height, info.FPS)
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Detection Engines...\n", opts.NumEngines)
	logger.Debug("resolved parameters", slog.Any("params", opts.Params))

	decoder, err := utils.NewRawDecoder(ctx, opts.InputPath, info.Resolution.Width, info.Resolution.Height)
	if err != nil {
		utils.ShowError("Failed to start decoder", err, nil)
		return err
	}
	encoder, err := utils.NewRawEncoder(ctx, files.Video, info.FPS, info.Resolution.Width, info.Resolution.Height)
	if err != nil {
		decoder.Close()
		utils.ShowError("Failed to start encoder", err, nil)
		return err
	}

	var barTotal int64 = int64(info.TotalFrames)
	if barTotal <= 0 {
		barTotal = -1 // Trigger spinner mode
	}
	bar := progressbar.NewOptions64(barTotal,
		progressbar.OptionSetDescription("🔍 Tracking"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	cfg := pipeline.Config{
		Params:  opts.Params,
		Engines: opts.NumEngines,
		Info:    info,
		Meta:    report.Meta{VideoID: videoID, Version: Version},
		Style:   render.DefaultStyle(),
		Logger:  logger,
		OnFrame: func(report.FrameRecord) { bar.Add(1) },
	}
	res, runErr := pipeline.Run(ctx, cfg, decoder, encoder)
	bar.Finish()

	decErr := decoder.Close()
	if runErr != nil {
		utils.ShowError("Tracking failed", runErr, encoder.Cmd)
		if res == nil {
			return runErr
		}
	} else if decErr != nil && ctx.Err() == nil {
		utils.ShowError("Decoder process failed", decErr, decoder.Cmd)
		runErr = decErr
	}

	res.OutputPaths.AnnotatedVideo = files.Video
	res.OutputPaths.ResultsJSON = files.JSON
	if opts.Charts && res.Summary.FramesProcessed > 0 {
		timeline, trails, err := report.Charts(res, opts.OutputDir, stem)
		if err != nil {
			logger.Warn("chart generation failed", slog.Any("error", xerrors.New(err)))
		}
		res.OutputPaths.TimelineChart = timeline
		res.OutputPaths.TrailMap = trails
	}
	if err := report.Write(files.JSON, res); err != nil {
		utils.ShowError("Failed to write results", err, nil)
		return err
	}

	printSummary(res)
	if res.Cancelled {
		fmt.Fprintf(os.Stderr, "\n🛑 Interrupted after %d frames. Partial results saved to %s\n", res.Summary.FramesProcessed, files.JSON)
		return nil
	}
	if runErr != nil {
		return runErr
	}
	fmt.Fprintf(os.Stderr, "\n🏁 Tracking Complete. Results saved to %s\n", files.JSON)
	return nil
}

func printSummary(res *report.RunResult) {
	s := res.Summary
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "📊 TRACKING SUMMARY\n")
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🎞️  Frames Processed:     %d\n", s.FramesProcessed)
	fmt.Fprintf(os.Stderr, "🫧 Blob Detections:      %d (%d coupled)\n", s.TotalBlobDetections, s.TotalCoupledBlobs)
	fmt.Fprintf(os.Stderr, "🧭 Tracks:               %d (%d valid)\n", s.TotalTracks, s.ValidTracks)
	fmt.Fprintf(os.Stderr, "🔗 Mean Coupling Rate:   %.1f%%\n", s.OverallCouplingRate)
	fmt.Fprintf(os.Stderr, "⏱️  Processing Time:      %s\n", fmtTime(s.ProcessingTime))
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// validateTrackFlags ensures all CLI arguments are valid before starting heavy processes.
func validateTrackFlags(opts *Options) error {
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			utils.ShowError("Input file does not exist", err, nil)
			return err
		}
		utils.ShowError("Unable to access input file", err, nil)
		return err
	}
	if info.IsDir() {
		err := fmt.Errorf("is a directory")
		utils.ShowError("Input path is a directory, expected a video file", err, nil)
		return err
	}
	if opts.OutputDir == "" {
		err := fmt.Errorf("output directory must not be empty")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}
	return nil
}
