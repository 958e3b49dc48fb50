package detect

import (
	"image"
	"math"

	"github.com/andresmejia3/benthic/internal/params"
	"github.com/andresmejia3/benthic/internal/types"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"
)

// neutral is the grey level a background-difference frame holds where nothing moved.
const neutral = 128

// blurSize is the Gaussian kernel applied before thresholding.
const blurSize = 5

// ErrEmptyFrame is returned for frames that carry no pixels.
var ErrEmptyFrame = errors.New("empty frame")

// Detector segments a motion frame into dark (shadow) and bright (reflection) blobs.
// It keeps scratch Mats between calls and is therefore not safe for concurrent use;
// give each worker its own Detector.
type Detector struct {
	params params.Detection

	kernel    gocv.Mat
	gray      gocv.Mat
	blurred   gocv.Mat
	mask      gocv.Mat
	region    gocv.Mat
	scratch   gocv.Mat
	labels    gocv.Mat
	stats     gocv.Mat
	centroids gocv.Mat
}

// NewDetector allocates a Detector for the given parameters. Call Close when done.
func NewDetector(p params.Detection) *Detector {
	d := &Detector{
		params:    p,
		gray:      gocv.NewMat(),
		blurred:   gocv.NewMat(),
		mask:      gocv.NewMat(),
		region:    gocv.NewMat(),
		scratch:   gocv.NewMat(),
		labels:    gocv.NewMat(),
		stats:     gocv.NewMat(),
		centroids: gocv.NewMat(),
	}
	if p.MorphKernelSize > 1 {
		d.kernel = gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(p.MorphKernelSize, p.MorphKernelSize))
	} else {
		d.kernel = gocv.NewMat()
	}
	return d
}

// Close releases the native memory held by the Detector.
func (d *Detector) Close() error {
	for _, m := range []*gocv.Mat{&d.kernel, &d.gray, &d.blurred, &d.mask, &d.region, &d.scratch, &d.labels, &d.stats, &d.centroids} {
		if err := m.Close(); err != nil {
			return errors.Wrap(err, "release detector mat")
		}
	}
	return nil
}

// Detect smooths frame and runs both threshold passes over it. The frame may be BGR or
// single channel 8-bit. An empty frame returns ErrEmptyFrame and no blobs.
func (d *Detector) Detect(frame gocv.Mat) (dark, bright []types.Blob, err error) {
	if frame.Empty() || frame.Rows() == 0 || frame.Cols() == 0 {
		return nil, nil, ErrEmptyFrame
	}

	gray := frame
	switch frame.Channels() {
	case 1:
	case 3:
		gocv.CvtColor(frame, &d.gray, gocv.ColorBGRToGray)
		gray = d.gray
	case 4:
		gocv.CvtColor(frame, &d.gray, gocv.ColorBGRAToGray)
		gray = d.gray
	default:
		return nil, nil, errors.Errorf("unsupported channel count %d", frame.Channels())
	}

	gocv.GaussianBlur(gray, &d.blurred, image.Pt(blurSize, blurSize), 0, 0, gocv.BorderDefault)
	gray = d.blurred

	// Dark: pixel < neutral-dark_threshold. BinaryInv keeps values <= thresh.
	gocv.Threshold(gray, &d.mask, float32(neutral-1-d.params.DarkThreshold), 255, gocv.ThresholdBinaryInv)
	dark = d.extract(types.Dark)

	// Bright: pixel > neutral+bright_threshold.
	gocv.Threshold(gray, &d.mask, float32(neutral+d.params.BrightThreshold), 255, gocv.ThresholdBinary)
	bright = d.extract(types.Bright)

	return dark, bright, nil
}

// extract cleans d.mask and turns its connected components into blobs.
func (d *Detector) extract(polarity types.Polarity) []types.Blob {
	if !d.kernel.Empty() {
		gocv.MorphologyEx(d.mask, &d.scratch, gocv.MorphClose, d.kernel)
		gocv.MorphologyEx(d.scratch, &d.mask, gocv.MorphOpen, d.kernel)
	}

	n := gocv.ConnectedComponentsWithStats(d.mask, &d.labels, &d.stats, &d.centroids)
	if n <= 1 {
		return nil
	}

	comps := make([]component, 0, n-1)
	// label 0 is the background
	for label := 1; label < n; label++ {
		comps = append(comps, component{
			Label: label,
			Box: types.Rect{
				X:      int(d.stats.GetIntAt(label, int(gocv.CC_STAT_LEFT))),
				Y:      int(d.stats.GetIntAt(label, int(gocv.CC_STAT_TOP))),
				Width:  int(d.stats.GetIntAt(label, int(gocv.CC_STAT_WIDTH))),
				Height: int(d.stats.GetIntAt(label, int(gocv.CC_STAT_HEIGHT))),
			},
			Area: float64(d.stats.GetIntAt(label, int(gocv.CC_STAT_AREA))),
			Centroid: r2.Vec{
				X: d.centroids.GetDoubleAt(label, 0),
				Y: d.centroids.GetDoubleAt(label, 1),
			},
		})
	}
	return filterComponents(comps, polarity, d.params, d.circularity)
}

// circularity is 4*pi*area/perimeter^2 of the component's outer contour. It is
// 0 when no contour can be traced.
func (d *Detector) circularity(c component) float64 {
	roi := d.labels.Region(c.Box.Image())
	defer roi.Close()

	label := float64(c.Label)
	gocv.InRangeWithScalar(roi, gocv.NewScalar(label, 0, 0, 0), gocv.NewScalar(label, 0, 0, 0), &d.region)

	contours := gocv.FindContours(d.region, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return 0
	}
	perimeter := gocv.ArcLength(contours.At(0), true)
	return shapeCircularity(c.Area, perimeter)
}

func shapeCircularity(area, perimeter float64) float64 {
	if perimeter <= 0 {
		return 0
	}
	return 4 * math.Pi * area / (perimeter * perimeter)
}

// component is one labelled region before filtering.
type component struct {
	Label    int
	Box      types.Rect
	Area     float64
	Centroid r2.Vec
}

// filterComponents keeps components inside the inclusive area range, under
// the aspect ratio limit and at least MinCircularity round, tagging survivors
// as single blobs. Circularity is measured last and becomes the confidence.
func filterComponents(comps []component, polarity types.Polarity, p params.Detection, circularity func(component) float64) []types.Blob {
	var blobs []types.Blob
	for _, c := range comps {
		if !withinArea(c.Area, p) {
			continue
		}
		if p.MaxAspectRatio > 0 && c.Box.AspectRatio() > p.MaxAspectRatio {
			continue
		}
		circ := circularity(c)
		if circ < p.MinCircularity {
			continue
		}
		blobs = append(blobs, types.Blob{
			Centroid:   c.Centroid,
			Box:        c.Box,
			Area:       c.Area,
			Polarity:   polarity,
			Kind:       types.Single,
			Confidence: circ,
		})
	}
	return blobs
}

func withinArea(area float64, p params.Detection) bool {
	return area >= float64(p.MinArea) && area <= float64(p.MaxArea)
}
