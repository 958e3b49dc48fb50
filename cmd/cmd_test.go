package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/benthic/internal/params"
	"github.com/andresmejia3/benthic/internal/report"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFmtTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00"},
		{59.9, "00:00:59"},
		{61, "00:01:01"},
		{3725, "01:02:05"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fmtTime(tt.seconds), "fmtTime(%v)", tt.seconds)
	}
}

func newParamCommand() (*cobra.Command, *params.Set) {
	var s params.Set
	c := &cobra.Command{Use: "test"}
	registerParamFlags(c, &s)
	return c, &s
}

func noEnv(string) (string, bool) { return "", false }

func TestResolveParamsDefaults(t *testing.T) {
	c, _ := newParamCommand()
	got, err := resolveParams(c, "", noEnv)
	require.NoError(t, err)
	assert.Equal(t, params.Default(), got)
}

func TestResolveParamsPrecedence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "params.json")
	body := `{"detection": {"min_area": 40, "dark_threshold": 12}, "tracking": {"max_distance": 70}}`
	require.NoError(t, os.WriteFile(file, []byte(body), 0644))

	env := map[string]string{
		params.EnvKey("dark-threshold"): "15",
		params.EnvKey("max-distance"):   "80",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	c, _ := newParamCommand()
	require.NoError(t, c.ParseFlags([]string{"--max-distance=90", "--require-coupling"}))

	got, err := resolveParams(c, file, lookup)
	require.NoError(t, err)

	assert.Equal(t, 40, got.Detection.MinArea, "file overrides default")
	assert.Equal(t, 15, got.Detection.DarkThreshold, "env overrides file")
	assert.Equal(t, 90.0, got.Tracking.MaxDistance, "flag overrides env")
	assert.True(t, got.Detection.RequireCoupling)
	assert.Equal(t, params.Default().Detection.MaxArea, got.Detection.MaxArea, "untouched values keep defaults")
}

func TestResolveParamsUnchangedFlagsDoNotOverride(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == params.EnvKey("min-area") {
			return "44", true
		}
		return "", false
	}
	c, _ := newParamCommand()
	require.NoError(t, c.ParseFlags(nil))

	got, err := resolveParams(c, "", lookup)
	require.NoError(t, err)
	assert.Equal(t, 44, got.Detection.MinArea)
}

func TestResolveParamsRejectsInvalid(t *testing.T) {
	c, _ := newParamCommand()
	require.NoError(t, c.ParseFlags([]string{"--min-area=5000"}))

	_, err := resolveParams(c, "", noEnv)
	assert.Error(t, err)
}

func TestResolveParamsBadEnv(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == params.EnvKey("max-skip-frames") {
			return "lots", true
		}
		return "", false
	}
	c, _ := newParamCommand()
	_, err := resolveParams(c, "", lookup)
	assert.Error(t, err)
}

func TestValidateTrackFlags(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "dive.mp4")
	require.NoError(t, os.WriteFile(video, []byte("x"), 0644))

	t.Run("missing input", func(t *testing.T) {
		opts := Options{InputPath: filepath.Join(dir, "nope.mp4"), OutputDir: "out"}
		assert.Error(t, validateTrackFlags(&opts))
	})
	t.Run("directory input", func(t *testing.T) {
		opts := Options{InputPath: dir, OutputDir: "out"}
		assert.Error(t, validateTrackFlags(&opts))
	})
	t.Run("empty output", func(t *testing.T) {
		opts := Options{InputPath: video}
		assert.Error(t, validateTrackFlags(&opts))
	})
	t.Run("engines clamped", func(t *testing.T) {
		opts := Options{InputPath: video, OutputDir: "out", NumEngines: 0}
		require.NoError(t, validateTrackFlags(&opts))
		assert.Equal(t, 1, opts.NumEngines)
	})
}

func TestOutputsFor(t *testing.T) {
	files, stem := outputsFor("results", "/data/dives/site_04.MOV")
	assert.Equal(t, "site_04", stem)
	assert.Equal(t, filepath.Join("results", "site_04_tracked.mp4"), files.Video)
	assert.Equal(t, filepath.Join("results", "site_04_results.json"), files.JSON)
}

func sampleResult() *report.RunResult {
	res := &report.RunResult{RunID: "run-1"}
	res.VideoInfo.Filename = "dive.mp4"
	res.VideoInfo.FPS = 10
	res.Tracks = []report.TrackRecord{
		{TrackID: 1, Frames: []int{10, 20, 30}, TotalDetections: 3, FinalState: "terminated", IsValid: true},
		{TrackID: 2, Frames: []int{5}, TotalDetections: 1, FinalState: "active"},
	}
	res.Summary.TotalTracks = 2
	res.Summary.ValidTracks = 1
	return res
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	writeSummary(&buf, sampleResult(), false)
	out := buf.String()

	assert.Contains(t, out, "dive.mp4")
	assert.Contains(t, out, "00:00:01")
	assert.Contains(t, out, "00:00:03")
	assert.Contains(t, out, "terminated")
	assert.Contains(t, out, "active")
	assert.Contains(t, out, "Tracks: 2 (1 valid)")
}

func TestWriteSummaryValidOnly(t *testing.T) {
	var buf bytes.Buffer
	res := sampleResult()
	writeSummary(&buf, res, true)
	assert.NotContains(t, buf.String(), "active")

	buf.Reset()
	res.Tracks = res.Tracks[1:]
	writeSummary(&buf, res, true)
	assert.Contains(t, buf.String(), "No tracks found in results.")
}

func TestMatchOutputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a_tracked.mp4", "a_results.json", "a_timeline.png", "a_trails.html", "input.mp4"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	assert.Len(t, matchOutputs(dir, "*_tracked.mp4"), 1)
	assert.Len(t, matchOutputs(dir, "*_timeline.png", "*_trails.html"), 2)

	removeOutputs(dir, func(string) bool { return false }, "videos", "*_tracked.mp4")
	assert.FileExists(t, filepath.Join(dir, "a_tracked.mp4"))

	removeOutputs(dir, func(string) bool { return true }, "videos", "*_tracked.mp4")
	assert.NoFileExists(t, filepath.Join(dir, "a_tracked.mp4"))
	assert.FileExists(t, filepath.Join(dir, "input.mp4"))
}

func TestRunChart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dive_results.json")
	res := sampleResult()
	res.Tracks[0].Centroids = [][2]float64{{10, 10}, {20, 12}, {30, 15}}
	res.Tracks[1].Centroids = [][2]float64{{50, 50}}
	res.FrameDetections = []report.FrameRecord{{Frame: 0}, {Frame: 1, BlobsDetected: 2, ActiveTracks: 1}}
	require.NoError(t, report.Write(path, res))

	require.NoError(t, runChart(path, ""))

	got, err := report.Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dive_timeline.png"), got.OutputPaths.TimelineChart)
	assert.Equal(t, filepath.Join(dir, "dive_trails.html"), got.OutputPaths.TrailMap)
	assert.FileExists(t, got.OutputPaths.TimelineChart)
	assert.FileExists(t, got.OutputPaths.TrailMap)
}
