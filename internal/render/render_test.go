package render

import (
	"image/color"
	"testing"

	"github.com/andresmejia3/benthic/internal/params"
	"github.com/andresmejia3/benthic/internal/tracker"
	"github.com/andresmejia3/benthic/internal/types"
	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"
)

func walkingTrack(id, steps int, coupled int) *tracker.Track {
	t := &tracker.Track{ID: id, State: tracker.Active, FramesCoupled: coupled}
	for i := 0; i < steps; i++ {
		x := 30 + float64(i)*5
		t.Frames = append(t.Frames, i)
		t.Centroids = append(t.Centroids, r2.Vec{X: x, Y: 80})
		t.Boxes = append(t.Boxes, types.Rect{X: int(x) - 6, Y: 74, Width: 13, Height: 13})
		t.Areas = append(t.Areas, 100)
		t.Confidences = append(t.Confidences, 1)
	}
	return t
}

func bgr(m gocv.Mat, x, y int) color.RGBA {
	v := m.GetVecbAt(y, x)
	return color.RGBA{B: v[0], G: v[1], R: v[2], A: 255}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "ID:7 (50% coupled)", Label(walkingTrack(7, 4, 2)))
	assert.Equal(t, "ID:1 (0% coupled)", Label(walkingTrack(1, 1, 0)))
}

func TestDrawColoursByValidity(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 160, 200, gocv.MatTypeCV8UC3)
	defer img.Close()

	r := New(DefaultStyle(), params.Default().Validation)

	pending := walkingTrack(1, 2, 0) // too short to be valid
	r.Draw(&img, []*tracker.Track{pending})
	assert.Equal(t, Orange, bgr(img, 35, 80))

	img.SetTo(gocv.NewScalar(0, 0, 0, 0))
	valid := walkingTrack(2, 6, 6)
	r.Draw(&img, []*tracker.Track{valid})
	assert.Equal(t, Green, bgr(img, 55, 80))
}

func TestDrawKeepsSizeAndSkipsEmpty(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 90, 120, gocv.MatTypeCV8UC3)
	defer img.Close()

	r := New(DefaultStyle(), params.Default().Validation)
	r.Draw(&img, []*tracker.Track{{ID: 3}})
	r.Draw(&img, nil)

	assert.Equal(t, 90, img.Rows())
	assert.Equal(t, 120, img.Cols())
	flat := img.Reshape(1, 0)
	defer flat.Close()
	assert.Equal(t, 0, gocv.CountNonZero(flat))
}

func TestFade(t *testing.T) {
	c := color.RGBA{R: 200, G: 100, B: 0, A: 255}
	assert.Equal(t, c, fade(c, 1))
	dim := fade(c, 0)
	assert.InDelta(t, 60, int(dim.R), 1)
	assert.InDelta(t, 30, int(dim.G), 1)
}
