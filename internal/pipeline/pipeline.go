// Package pipeline wires decoding, parallel detection and the serial
// track/render/report stage together.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/andresmejia3/benthic/internal/params"
	"github.com/andresmejia3/benthic/internal/render"
	"github.com/andresmejia3/benthic/internal/report"
	"github.com/andresmejia3/benthic/internal/tracker"
	"github.com/andresmejia3/benthic/internal/types"
	"github.com/andresmejia3/benthic/internal/validate"
	"github.com/andresmejia3/benthic/internal/worker"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Source yields frames with contiguous indices starting at 0 and io.EOF at the end.
type Source interface {
	Next(ctx context.Context) (types.Frame, error)
}

// Sink receives every processed frame in order.
type Sink interface {
	Write(f types.Frame) error
	Close() error
}

// recycler is implemented by sources that pool their frame buffers.
type recycler interface {
	Recycle(f types.Frame)
}

// Config describes one run.
type Config struct {
	Params  params.Set
	Engines int
	Info    types.VideoInfo
	Meta    report.Meta
	Style   render.Style
	Logger  *slog.Logger
	// OnFrame is called from the consumer after each frame is recorded.
	OnFrame func(report.FrameRecord)
}

// Run processes src until it is exhausted or ctx is cancelled and returns the
// results document. On cancellation the document covers the frames processed
// so far and is flagged Cancelled; this is not an error. The sink is always
// closed. A non-nil result may accompany an error from the source or sink.
func Run(ctx context.Context, cfg Config, src Source, sink Sink) (*report.RunResult, error) {
	if err := cfg.Params.Validate(); err != nil {
		sink.Close()
		return nil, errors.Wrap(err, "invalid parameters")
	}
	if cfg.Engines < 1 {
		cfg.Engines = 1
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	tasks := make(chan types.Frame, cfg.Engines)
	results := make(chan worker.Result, cfg.Engines*2)

	// 1. Decoder
	var srcErr error
	decodeDone := make(chan struct{})
	go func() {
		defer close(decodeDone)
		defer close(tasks)
		for {
			f, err := src.Next(runCtx)
			if err == io.EOF {
				return
			}
			if err != nil {
				if runCtx.Err() == nil {
					srcErr = errors.Wrap(err, "read frame")
					stop()
				}
				return
			}
			select {
			case tasks <- f:
			case <-runCtx.Done():
				return
			}
		}
	}()

	// 2. Engine pool
	var wg sync.WaitGroup
	for i := 0; i < cfg.Engines; i++ {
		e := worker.NewEngine(i, cfg.Params.Detection, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer e.Close()
			e.Run(runCtx, tasks, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// 3. Aggregator
	c := &consumer{
		cfg:      cfg,
		log:      log,
		tracks:   tracker.New(cfg.Params.Tracking),
		renderer: render.New(cfg.Style, cfg.Params.Validation),
		reporter: report.NewReporter(cfg.Info, cfg.Params, cfg.Meta),
		sink:     sink,
	}
	if r, ok := src.(recycler); ok {
		c.recycle = r.Recycle
	}
	runErr := c.consume(runCtx, results)

	// Let the producers unwind before touching anything they share.
	stop()
	for range results {
	}
	<-decodeDone

	if err := sink.Close(); err != nil && runErr == nil {
		runErr = errors.Wrap(err, "close sink")
	}
	if runErr == nil {
		runErr = srcErr
	}

	cancelled := ctx.Err() != nil
	all := c.tracks.Finish()
	metrics := validate.Apply(all, cfg.Params.Validation)
	res := c.reporter.Result(all, metrics, cancelled)

	if cancelled {
		log.Info("run cancelled", "frames", c.reporter.Frames(), "tracks", c.tracks.Count())
	}
	return res, runErr
}

type consumer struct {
	cfg      Config
	log      *slog.Logger
	tracks   *tracker.Manager
	renderer *render.Renderer
	reporter *report.Reporter
	sink     Sink
	recycle  func(types.Frame)
}

// consume reorders results by frame index and feeds them through the serial
// stages strictly in order. It returns when results closes or ctx is done.
func (c *consumer) consume(ctx context.Context, results <-chan worker.Result) error {
	// Buffer for re-ordering frames (engine 2 might finish before engine 1)
	buffer := make(map[int]worker.Result)
	next := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case res, ok := <-results:
			if !ok {
				if len(buffer) > 0 {
					c.log.Warn("frames left in reorder buffer", "count", len(buffer), "next", next)
				}
				return nil
			}
			buffer[res.Frame.Index] = res

			for {
				r, ok := buffer[next]
				if !ok {
					break
				}
				if ctx.Err() != nil {
					return nil
				}
				delete(buffer, next)
				if err := c.step(r); err != nil {
					return err
				}
				next++
			}
		}
	}
}

// step tracks, renders, writes and records a single frame.
func (c *consumer) step(r worker.Result) error {
	f := r.Frame
	if err := c.tracks.Update(f.Index, r.Blobs); err != nil {
		return errors.Wrapf(err, "track frame %d", f.Index)
	}
	live := c.tracks.Live()

	out := c.annotate(f, live)
	if err := c.sink.Write(out); err != nil {
		return errors.Wrapf(err, "write frame %d", f.Index)
	}
	if c.recycle != nil {
		c.recycle(f)
	}

	rec := c.reporter.Record(f.Index, r.Blobs, len(live))
	if c.cfg.OnFrame != nil {
		c.cfg.OnFrame(rec)
	}
	return nil
}

// annotate returns the frame with tracks drawn on it. Frames that failed to
// decode are passed through untouched, or blank when their buffer is unusable.
func (c *consumer) annotate(f types.Frame, live []*tracker.Track) types.Frame {
	if !f.Valid() {
		w, h := c.cfg.Info.Resolution.Width, c.cfg.Info.Resolution.Height
		if f.Width > 0 && f.Height > 0 {
			w, h = f.Width, f.Height
		}
		if len(f.Data) != w*h*3 {
			return types.Frame{Index: f.Index, Width: w, Height: h, Data: make([]byte, w*h*3)}
		}
		return f
	}

	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		c.log.Warn("frame not annotated", "frame", f.Index, "error", err)
		return f
	}
	defer mat.Close()

	c.renderer.Draw(&mat, live)
	return types.Frame{Index: f.Index, Width: f.Width, Height: f.Height, Data: mat.ToBytes()}
}
