// Package render annotates frames with track trails, boxes and labels.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/andresmejia3/benthic/internal/params"
	"github.com/andresmejia3/benthic/internal/tracker"
	"github.com/andresmejia3/benthic/internal/validate"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"
)

// Renderer draws live tracks onto frames in place.
type Renderer struct {
	style      Style
	validation params.Validation
}

// New returns a Renderer that colours tracks by whether they would pass p so far.
func New(style Style, p params.Validation) *Renderer {
	return &Renderer{style: style, validation: p}
}

// Label is the caption drawn above a track's box.
func Label(t *tracker.Track) string {
	return fmt.Sprintf("ID:%d (%.0f%% coupled)", t.ID, t.CouplingRate())
}

// Draw renders every track on img. Labels are drawn last so trails never
// cover them. The image keeps its size.
func (r *Renderer) Draw(img *gocv.Mat, tracks []*tracker.Track) {
	type label struct {
		text string
		box  image.Rectangle
		clr  color.RGBA
	}
	labels := make([]label, 0, len(tracks))

	for _, t := range tracks {
		if t.Len() == 0 {
			continue
		}
		clr := r.style.Pending
		if validate.Evaluate(t, r.validation) {
			clr = r.style.Valid
		}

		r.trail(img, t.Centroids, clr)

		thickness := r.style.BoxThickness
		if t.State == tracker.Resting {
			thickness = r.style.RestingThickness
		}
		box := t.LastBox().Image()
		gocv.Rectangle(img, box, clr, thickness)

		labels = append(labels, label{text: Label(t), box: box, clr: clr})
	}

	f := r.style.Font
	for _, l := range labels {
		size := gocv.GetTextSize(l.text, f.Face, f.Scale, f.Thickness)
		top := max(l.box.Min.Y-size.Y-2*f.Pad, 0)
		bg := image.Rect(l.box.Min.X, top, l.box.Min.X+size.X+2*f.Pad, top+size.Y+2*f.Pad)
		gocv.Rectangle(img, bg, l.clr, -1)
		gocv.PutTextWithParams(img, l.text, image.Pt(bg.Min.X+f.Pad, bg.Max.Y-f.Pad),
			f.Face, f.Scale, f.Color, f.Thickness, f.LineType, false)
	}
}

// trail draws the full path from birth to the latest point.
func (r *Renderer) trail(img *gocv.Mat, pts []r2.Vec, clr color.RGBA) {
	n := len(pts)
	for i := 1; i < n; i++ {
		gocv.Line(img, pixel(pts[i-1]), pixel(pts[i]), clr, r.style.LineThickness)
	}
	for i, p := range pts {
		dot := clr
		if r.style.FadeDots && n > 1 {
			dot = fade(clr, float64(i)/float64(n-1))
		}
		radius := r.style.DotRadius
		if i == n-1 {
			radius++
		}
		gocv.Circle(img, pixel(p), radius, dot, -1)
	}
}

func pixel(v r2.Vec) image.Point {
	return image.Pt(int(v.X+0.5), int(v.Y+0.5))
}
