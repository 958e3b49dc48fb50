package worker

import (
	"context"
	"log/slog"

	"github.com/andresmejia3/benthic/internal/detect"
	"github.com/andresmejia3/benthic/internal/params"
	"github.com/andresmejia3/benthic/internal/types"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Result is what an engine hands to the aggregator for one frame.
// Blobs is nil when Err is set; the frame still has to be accounted for.
type Result struct {
	Frame types.Frame
	Blobs []types.Blob
	Err   error
}

// Engine runs blob detection and coupling for frames pulled off a task channel.
// Each engine owns its Detector, so engines can run in parallel.
type Engine struct {
	ID     int
	det    *detect.Detector
	params params.Detection
	log    *slog.Logger
}

func NewEngine(id int, p params.Detection, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		ID:     id,
		det:    detect.NewDetector(p),
		params: p,
		log:    log.With("engine", id),
	}
}

// ProcessFrame detects and couples the blobs of one packed BGR frame.
func (e *Engine) ProcessFrame(f types.Frame) ([]types.Blob, error) {
	if f.Err != nil {
		return nil, errors.Wrapf(f.Err, "frame %d", f.Index)
	}
	if !f.Valid() {
		return nil, errors.Errorf("frame %d: got %d bytes for %dx%d", f.Index, len(f.Data), f.Width, f.Height)
	}

	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", f.Index)
	}
	defer mat.Close()

	dark, bright, err := e.det.Detect(mat)
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", f.Index)
	}
	return detect.Couple(dark, bright, e.params), nil
}

// Run processes tasks until the channel closes or ctx is cancelled. A frame
// that fails is logged and forwarded with no blobs so the aggregator never
// waits on it.
func (e *Engine) Run(ctx context.Context, tasks <-chan types.Frame, results chan<- Result) {
	for f := range tasks {
		blobs, err := e.ProcessFrame(f)
		if err != nil {
			e.log.Warn("frame skipped", "frame", f.Index, "error", err)
		}
		select {
		case results <- Result{Frame: f, Blobs: blobs, Err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the engine's native buffers.
func (e *Engine) Close() error {
	return e.det.Close()
}
