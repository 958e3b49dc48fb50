package render

import (
	"image/color"

	"gocv.io/x/gocv"
)

var (
	Green  = color.RGBA{R: 0, G: 220, B: 0, A: 255}
	Orange = color.RGBA{R: 255, G: 140, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

// Font defines the parameters for rendering track labels with GoCV.
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// Padding around the label text
	Pad int
}

// DefaultFont returns default font settings
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.45,
		Color:     Black,
		Thickness: 1,
		LineType:  gocv.LineAA,
		Pad:       3,
	}
}

// Style controls how tracks are drawn.
type Style struct {
	// Valid colours tracks that already pass validation, Pending the rest.
	Valid   color.RGBA
	Pending color.RGBA

	BoxThickness int
	// RestingThickness is used for the box of a track that was not seen
	// this frame.
	RestingThickness int

	LineThickness int
	DotRadius     int
	// FadeDots darkens older trail points so the direction of travel reads
	// at a glance.
	FadeDots bool

	Font Font
}

// DefaultStyle returns default style settings
func DefaultStyle() Style {
	return Style{
		Valid:            Green,
		Pending:          Orange,
		BoxThickness:     2,
		RestingThickness: 1,
		LineThickness:    2,
		DotRadius:        2,
		FadeDots:         true,
		Font:             DefaultFont(),
	}
}

// fade scales c towards black; t in [0,1] where 1 keeps the full colour.
func fade(c color.RGBA, t float64) color.RGBA {
	const floor = 0.3
	if t >= 1 {
		return c
	}
	k := floor + (1-floor)*t
	return color.RGBA{
		R: uint8(float64(c.R) * k),
		G: uint8(float64(c.G) * k),
		B: uint8(float64(c.B) * k),
		A: c.A,
	}
}
