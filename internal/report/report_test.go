package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresmejia3/benthic/internal/params"
	"github.com/andresmejia3/benthic/internal/tracker"
	"github.com/andresmejia3/benthic/internal/types"
	"github.com/andresmejia3/benthic/internal/validate"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func testInfo() types.VideoInfo {
	info := types.VideoInfo{Filename: "dive_042.mp4", FPS: 10, TotalFrames: 4}
	info.Resolution.Width = 640
	info.Resolution.Height = 480
	return info
}

func fixedClock(start time.Time, step time.Duration) func() time.Time {
	t := start
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

func track(id int, valid bool, coupled int, xs ...float64) *tracker.Track {
	t := &tracker.Track{ID: id, State: tracker.Terminated, FramesCoupled: coupled, Valid: valid}
	for i, x := range xs {
		t.Frames = append(t.Frames, i)
		t.Centroids = append(t.Centroids, r2.Vec{X: x, Y: 10})
		t.Boxes = append(t.Boxes, types.Rect{X: int(x) - 2, Y: 8, Width: 5, Height: 5})
		t.Areas = append(t.Areas, 25)
		t.Confidences = append(t.Confidences, 1)
	}
	return t
}

func TestRecordTimestamps(t *testing.T) {
	r := NewReporter(testInfo(), params.Default(), Meta{})

	blobs := []types.Blob{{Kind: types.Coupled}, {Kind: types.Single}, {Kind: types.Coupled}}
	rec := r.Record(25, blobs, 4)
	assert.Equal(t, FrameRecord{Frame: 25, Timestamp: 2.5, ActiveTracks: 4, BlobsDetected: 3, CoupledBlobs: 2}, rec)

	failed := r.Record(26, nil, 4)
	assert.Equal(t, 0, failed.BlobsDetected)
	assert.Equal(t, 2, r.Frames())

	noFPS := NewReporter(types.VideoInfo{}, params.Default(), Meta{})
	assert.Equal(t, 0.0, noFPS.Record(7, nil, 0).Timestamp)
}

func TestResultSummary(t *testing.T) {
	r := NewReporter(testInfo(), params.Default(), Meta{VideoID: "vid-1", Version: "test"})
	r.now = fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), 1500*time.Millisecond)
	r.start = r.now()

	r.Record(0, []types.Blob{{Kind: types.Coupled}, {}}, 2)
	r.Record(1, []types.Blob{{}}, 2)

	tracks := []*tracker.Track{
		track(1, true, 1, 0, 10, 20, 30),   // 25%
		track(2, true, 3, 5, 8, 11, 14),    // 75%
		track(3, false, 2, 100, 100),       // 100%, excluded from the mean
	}
	metrics := make([]validate.Metrics, len(tracks))
	for i, tr := range tracks {
		metrics[i] = validate.Measure(tr)
	}

	res := r.Result(tracks, metrics, true)

	_, err := uuid.Parse(res.RunID)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, "vid-1", res.VideoID)

	want := Summary{
		TotalTracks:         3,
		ValidTracks:         2,
		FramesProcessed:     2,
		TotalDetections:     10,
		TotalBlobDetections: 3,
		TotalCoupledBlobs:   1,
		OverallCouplingRate: 50,
		ProcessingTime:      1.5,
	}
	if diff := cmp.Diff(want, res.Summary); diff != "" {
		t.Errorf("Summary mismatch (-want +got):\n%s", diff)
	}

	first := res.Tracks[0]
	assert.Equal(t, [2]float64{10, 10}, first.Centroids[1])
	assert.Equal(t, [4]int{8, 8, 5, 5}, first.Bboxes[1])
	assert.Equal(t, "terminated", first.FinalState)
	assert.Equal(t, 4, first.TotalDetections)
	assert.Equal(t, 30.0, first.Displacement)
}

func TestResultNoValidTracks(t *testing.T) {
	r := NewReporter(testInfo(), params.Default(), Meta{})
	tr := track(1, false, 1, 0)
	res := r.Result([]*tracker.Track{tr}, []validate.Metrics{validate.Measure(tr)}, false)
	assert.Equal(t, 0.0, res.Summary.OverallCouplingRate)
	assert.NotNil(t, res.FrameDetections)
}

func TestWriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.json")

	r := NewReporter(testInfo(), params.Default(), Meta{VideoID: "abc"})
	r.Record(0, []types.Blob{{Kind: types.Coupled}}, 1)
	tr := track(1, true, 1, 0, 20)
	res := r.Result([]*tracker.Track{tr}, []validate.Metrics{validate.Measure(tr)}, false)
	res.OutputPaths.ResultsJSON = path

	require.NoError(t, Write(path, res))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(res, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteMissingDir(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "nope", "results.json"), &RunResult{})
	assert.Error(t, err)
}

func TestCharts(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter(testInfo(), params.Default(), Meta{})
	for f := 0; f < 4; f++ {
		r.Record(f, []types.Blob{{Kind: types.Coupled}, {}}, 1)
	}
	tracks := []*tracker.Track{track(1, true, 2, 0, 10, 20, 30), track(2, false, 0, 50)}
	metrics := validate.Apply(tracks, params.Default().Validation)
	res := r.Result(tracks, metrics, false)

	timeline, trails, err := Charts(res, dir, "dive_042")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dive_042_timeline.png"), timeline)

	for _, p := range []string{timeline, trails} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
	html, err := os.ReadFile(trails)
	require.NoError(t, err)
	assert.Contains(t, string(html), "ID:1")
}
