package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	blobColor    = color.RGBA{R: 255, G: 140, A: 255}
	coupledColor = color.RGBA{R: 30, G: 110, B: 220, A: 255}
	trackColor   = color.RGBA{G: 160, A: 255}
	meanColor    = color.RGBA{R: 220, A: 255}
)

// Charts writes the timeline PNG and the trail map HTML into dir, named after
// stem, and returns their paths.
func Charts(res *RunResult, dir, stem string) (timeline, trailMap string, err error) {
	timeline = filepath.Join(dir, stem+"_timeline.png")
	if err := Timeline(res, timeline); err != nil {
		return "", "", err
	}
	trailMap = filepath.Join(dir, stem+"_trails.html")
	if err := TrailMap(res, trailMap); err != nil {
		return timeline, "", err
	}
	return timeline, trailMap, nil
}

// Timeline plots blobs, coupled blobs and live tracks per frame, with the
// mean blob count as a dashed reference line.
func Timeline(res *RunResult, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Detections over time - %s", res.VideoInfo.Filename)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Count"

	n := len(res.FrameDetections)
	blobs := make(plotter.XYs, n)
	coupled := make(plotter.XYs, n)
	live := make(plotter.XYs, n)
	counts := make([]float64, n)
	for i, fr := range res.FrameDetections {
		x := float64(fr.Frame)
		blobs[i] = plotter.XY{X: x, Y: float64(fr.BlobsDetected)}
		coupled[i] = plotter.XY{X: x, Y: float64(fr.CoupledBlobs)}
		live[i] = plotter.XY{X: x, Y: float64(fr.ActiveTracks)}
		counts[i] = float64(fr.BlobsDetected)
	}

	series := []struct {
		name string
		pts  plotter.XYs
		clr  color.RGBA
	}{
		{"blobs", blobs, blobColor},
		{"coupled", coupled, coupledColor},
		{"live tracks", live, trackColor},
	}
	if n > 0 {
		for _, s := range series {
			line, err := plotter.NewLine(s.pts)
			if err != nil {
				return errors.Wrapf(err, "timeline %s", s.name)
			}
			line.Color = s.clr
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add(s.name, line)
		}

		avg := stat.Mean(counts, nil)
		mean, err := plotter.NewLine(plotter.XYs{{X: blobs[0].X, Y: avg}, {X: blobs[n-1].X, Y: avg}})
		if err != nil {
			return errors.Wrap(err, "timeline mean")
		}
		mean.Color = meanColor
		mean.Width = vg.Points(1)
		mean.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(mean)
		p.Legend.Add("mean blobs", mean)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrap(err, "save timeline")
	}
	return nil
}

// TrailMap renders every track's centroids as an interactive scatter, one
// series per track, valid tracks first.
func TrailMap(res *RunResult, path string) error {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Benthic Trails", Width: "1000px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Organism trails",
			Subtitle: fmt.Sprintf("%s tracks=%d valid=%d", res.VideoInfo.Filename, res.Summary.TotalTracks, res.Summary.ValidTracks),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: res.VideoInfo.Resolution.Width, Name: "x (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: res.VideoInfo.Resolution.Height, Name: "y (px)", NameLocation: "middle", NameGap: 30}),
	)

	for _, wantValid := range []bool{true, false} {
		for _, t := range res.Tracks {
			if t.IsValid != wantValid {
				continue
			}
			data := make([]opts.ScatterData, 0, len(t.Centroids))
			for i, c := range t.Centroids {
				data = append(data, opts.ScatterData{Value: []interface{}{c[0], c[1], t.Frames[i]}})
			}
			name := fmt.Sprintf("ID:%d", t.TrackID)
			if !t.IsValid {
				name += " (invalid)"
			}
			scatter.AddSeries(name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
		}
	}

	page := components.NewPage()
	page.AddCharts(scatter)

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return errors.Wrap(err, "create trail map")
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return errors.Wrap(err, "render trail map")
	}
	return errors.Wrap(f.Close(), "close trail map")
}
