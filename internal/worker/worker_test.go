package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/andresmejia3/benthic/internal/params"
	"github.com/andresmejia3/benthic/internal/types"
)

const (
	width  = 160
	height = 120
)

// syntheticFrame builds a mid-grey BGR frame with a shadow square and a
// reflection square placed close enough to couple.
func syntheticFrame(index int) types.Frame {
	data := bytes.Repeat([]byte{128}, width*height*3)
	paint := func(x0, y0, size int, v byte) {
		for y := y0; y < y0+size; y++ {
			for x := x0; x < x0+size; x++ {
				i := (y*width + x) * 3
				data[i], data[i+1], data[i+2] = v, v, v
			}
		}
	}
	paint(40, 40, 15, 40)  // shadow
	paint(60, 40, 15, 230) // reflection
	return types.Frame{Index: index, Width: width, Height: height, Data: data}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessFrame(t *testing.T) {
	e := NewEngine(1, params.Default().Detection, quietLogger())
	defer e.Close()

	blobs, err := e.ProcessFrame(syntheticFrame(0))
	if err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}
	if len(blobs) != 1 {
		t.Fatalf("Expected 1 coupled blob, got %d", len(blobs))
	}
	if blobs[0].Kind != types.Coupled {
		t.Errorf("Expected coupled blob, got %s", blobs[0].Kind)
	}
	// The coupled blob sits on the shadow.
	if c := blobs[0].Centroid; c.X < 46 || c.X > 48 {
		t.Errorf("Expected centroid x near 47, got %f", c.X)
	}
}

func TestProcessFrame_Error(t *testing.T) {
	e := NewEngine(1, params.Default().Detection, quietLogger())
	defer e.Close()

	tests := []struct {
		name  string
		frame types.Frame
	}{
		{"short buffer", types.Frame{Index: 3, Width: width, Height: height, Data: make([]byte, 10)}},
		{"decode error", types.Frame{Index: 4, Err: io.ErrUnexpectedEOF}},
		{"no dimensions", types.Frame{Index: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs, err := e.ProcessFrame(tt.frame)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if blobs != nil {
				t.Errorf("Expected no blobs, got %d", len(blobs))
			}
		})
	}
}

func TestRunForwardsEveryFrame(t *testing.T) {
	e := NewEngine(2, params.Default().Detection, quietLogger())
	defer e.Close()

	tasks := make(chan types.Frame, 3)
	results := make(chan Result, 3)
	tasks <- syntheticFrame(0)
	tasks <- types.Frame{Index: 1, Err: io.ErrUnexpectedEOF}
	tasks <- syntheticFrame(2)
	close(tasks)

	e.Run(context.Background(), tasks, results)
	close(results)

	seen := map[int]Result{}
	for r := range results {
		seen[r.Frame.Index] = r
	}
	if len(seen) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(seen))
	}
	if !errors.Is(seen[1].Err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected decode error to be forwarded, got %v", seen[1].Err)
	}
	if len(seen[2].Blobs) != 1 {
		t.Errorf("Expected 1 blob on frame 2, got %d", len(seen[2].Blobs))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	e := NewEngine(3, params.Default().Detection, quietLogger())
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := make(chan types.Frame, 1)
	tasks <- syntheticFrame(0)
	close(tasks)

	// Unbuffered and never read: Run must return through ctx.
	e.Run(ctx, tasks, make(chan Result))
}
