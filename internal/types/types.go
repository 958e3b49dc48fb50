package types

import (
	"image"

	"gonum.org/v1/gonum/spatial/r2"
)

// Frame is a single decoded video frame travelling through the pipeline.
// Data holds packed BGR24 pixels (Width*Height*3 bytes). Err is set when the
// decoder could not produce a complete frame; the frame still flows through
// the pipeline so the timeline stays contiguous.
type Frame struct {
	Index  int
	Width  int
	Height int
	Data   []byte
	Err    error
}

// Valid reports whether the frame carries a complete pixel buffer.
func (f Frame) Valid() bool {
	return f.Err == nil && f.Width > 0 && f.Height > 0 && len(f.Data) == f.Width*f.Height*3
}

// VideoInfo describes the input stream as reported by ffprobe.
type VideoInfo struct {
	Filename    string  `json:"filename"`
	FPS         float64 `json:"fps"`
	TotalFrames int     `json:"total_frames"`
	Resolution  struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"resolution"`
}

// Polarity tells which threshold mask a blob came from.
type Polarity int

const (
	Dark Polarity = iota
	Bright
)

func (p Polarity) String() string {
	if p == Bright {
		return "bright"
	}
	return "dark"
}

// Kind tells whether a blob is a lone detection or a shadow+reflection pair.
type Kind int

const (
	Single Kind = iota
	Coupled
)

func (k Kind) String() string {
	if k == Coupled {
		return "coupled"
	}
	return "single"
}

// Rect is an axis aligned box in pixel coordinates (top-left origin).
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Union returns the smallest box covering both r and o.
func (r Rect) Union(o Rect) Rect {
	u := r.Image().Union(o.Image())
	return Rect{X: u.Min.X, Y: u.Min.Y, Width: u.Dx(), Height: u.Dy()}
}

// Image converts the box into an image.Rectangle for drawing.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// AspectRatio is long side over short side; degenerate boxes report 0.
func (r Rect) AspectRatio() float64 {
	long, short := r.Width, r.Height
	if short > long {
		long, short = short, long
	}
	if short <= 0 {
		return 0
	}
	return float64(long) / float64(short)
}

// Blob is one candidate organism detection in a single frame. Blobs carry no
// identity; identity is assigned by the tracker.
type Blob struct {
	Centroid   r2.Vec
	Box        Rect
	Area       float64
	Polarity   Polarity
	Kind       Kind
	Confidence float64
}

// CountCoupled returns how many blobs in the list are shadow+reflection pairs.
func CountCoupled(blobs []Blob) int {
	n := 0
	for _, b := range blobs {
		if b.Kind == Coupled {
			n++
		}
	}
	return n
}
