// Package report collects the per-frame timeline of a run and assembles the
// final results document.
package report

import (
	"time"

	"github.com/andresmejia3/benthic/internal/params"
	"github.com/andresmejia3/benthic/internal/tracker"
	"github.com/andresmejia3/benthic/internal/types"
	"github.com/andresmejia3/benthic/internal/validate"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// FrameRecord is one row of the detection timeline.
type FrameRecord struct {
	Frame         int     `json:"frame"`
	Timestamp     float64 `json:"timestamp"`
	ActiveTracks  int     `json:"active_tracks"`
	BlobsDetected int     `json:"blobs_detected"`
	CoupledBlobs  int     `json:"coupled_blobs"`
}

// TrackRecord is a finished track as written to the results document.
type TrackRecord struct {
	TrackID     int          `json:"track_id"`
	Frames      []int        `json:"frames"`
	Centroids   [][2]float64 `json:"centroids"`
	Bboxes      [][4]int     `json:"bboxes"`
	Areas       []float64    `json:"areas"`
	Confidences []float64    `json:"confidences"`
	validate.Metrics
	CoupledDetections int    `json:"coupled_detections"`
	TotalDetections   int    `json:"total_detections"`
	FinalState        string `json:"final_state"`
	IsValid           bool   `json:"is_valid"`
}

// Summary aggregates a whole run.
type Summary struct {
	TotalTracks         int     `json:"total_tracks"`
	ValidTracks         int     `json:"valid_tracks"`
	FramesProcessed     int     `json:"frames_processed"`
	TotalDetections     int     `json:"total_detections"`
	TotalBlobDetections int     `json:"total_blob_detections"`
	TotalCoupledBlobs   int     `json:"total_coupled_blobs"`
	OverallCouplingRate float64 `json:"overall_coupling_rate"`
	ProcessingTime      float64 `json:"processing_time"`
}

// OutputPaths lists the files a run produced. Empty entries were not written.
type OutputPaths struct {
	AnnotatedVideo string `json:"annotated_video,omitempty"`
	ResultsJSON    string `json:"results_json,omitempty"`
	TimelineChart  string `json:"timeline_chart,omitempty"`
	TrailMap       string `json:"trail_map,omitempty"`
}

// RunResult is the results document of one run.
type RunResult struct {
	RunID           string          `json:"run_id"`
	VideoID         string          `json:"video_id,omitempty"`
	Version         string          `json:"version,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	Cancelled       bool            `json:"cancelled"`
	VideoInfo       types.VideoInfo `json:"video_info"`
	Parameters      params.Set      `json:"parameters"`
	Tracks          []TrackRecord   `json:"tracks"`
	FrameDetections []FrameRecord   `json:"frame_detections"`
	Summary         Summary         `json:"summary"`
	OutputPaths     OutputPaths     `json:"output_paths"`
}

// Meta carries identifiers stamped on the results document.
type Meta struct {
	VideoID string
	Version string
}

// Reporter accumulates FrameRecords while the run is in progress. Like the
// tracker it is fed from a single goroutine.
type Reporter struct {
	info   types.VideoInfo
	params params.Set
	meta   Meta

	start  time.Time
	now    func() time.Time
	frames []FrameRecord

	blobs   int
	coupled int
}

// NewReporter starts the processing clock.
func NewReporter(info types.VideoInfo, p params.Set, meta Meta) *Reporter {
	r := &Reporter{info: info, params: p, meta: meta, now: time.Now}
	r.start = r.now()
	return r
}

// Record appends the timeline entry for one frame. Failed frames are
// recorded with no blobs.
func (r *Reporter) Record(frame int, blobs []types.Blob, live int) FrameRecord {
	rec := FrameRecord{
		Frame:         frame,
		ActiveTracks:  live,
		BlobsDetected: len(blobs),
		CoupledBlobs:  types.CountCoupled(blobs),
	}
	if r.info.FPS > 0 {
		rec.Timestamp = float64(frame) / r.info.FPS
	}
	r.frames = append(r.frames, rec)
	r.blobs += rec.BlobsDetected
	r.coupled += rec.CoupledBlobs
	return rec
}

// Frames is the number of frames recorded so far.
func (r *Reporter) Frames() int { return len(r.frames) }

// Result assembles the document from the classified tracks. metrics must be
// parallel to tracks, as returned by validate.Apply.
func (r *Reporter) Result(tracks []*tracker.Track, metrics []validate.Metrics, cancelled bool) *RunResult {
	end := r.now()
	res := &RunResult{
		RunID:           uuid.NewString(),
		VideoID:         r.meta.VideoID,
		Version:         r.meta.Version,
		CreatedAt:       end.UTC(),
		Cancelled:       cancelled,
		VideoInfo:       r.info,
		Parameters:      r.params,
		Tracks:          make([]TrackRecord, 0, len(tracks)),
		FrameDetections: make([]FrameRecord, len(r.frames)),
	}
	copy(res.FrameDetections, r.frames)

	var validRates []float64
	for i, t := range tracks {
		rec := newTrackRecord(t, metrics[i])
		res.Tracks = append(res.Tracks, rec)
		res.Summary.TotalDetections += rec.TotalDetections
		if rec.IsValid {
			res.Summary.ValidTracks++
			validRates = append(validRates, rec.CouplingRate)
		}
	}

	res.Summary.TotalTracks = len(tracks)
	res.Summary.FramesProcessed = len(r.frames)
	res.Summary.TotalBlobDetections = r.blobs
	res.Summary.TotalCoupledBlobs = r.coupled
	if len(validRates) > 0 {
		res.Summary.OverallCouplingRate = stat.Mean(validRates, nil)
	}
	res.Summary.ProcessingTime = end.Sub(r.start).Seconds()
	return res
}

func newTrackRecord(t *tracker.Track, m validate.Metrics) TrackRecord {
	rec := TrackRecord{
		TrackID:           t.ID,
		Frames:            append([]int(nil), t.Frames...),
		Centroids:         make([][2]float64, len(t.Centroids)),
		Bboxes:            make([][4]int, len(t.Boxes)),
		Areas:             append([]float64(nil), t.Areas...),
		Confidences:       append([]float64(nil), t.Confidences...),
		Metrics:           m,
		CoupledDetections: t.FramesCoupled,
		TotalDetections:   t.Len(),
		FinalState:        t.State.String(),
		IsValid:           t.Valid,
	}
	for i, c := range t.Centroids {
		rec.Centroids[i] = [2]float64{c.X, c.Y}
	}
	for i, b := range t.Boxes {
		rec.Bboxes[i] = [4]int{b.X, b.Y, b.Width, b.Height}
	}
	return rec
}
