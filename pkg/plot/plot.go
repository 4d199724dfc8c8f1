// Package plot renders stored measurements and calibration tables.
package plot

import (
	"image/color"
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/yigbench/yig/pkg/calibration"
	"github.com/yigbench/yig/pkg/run"
)

const ghz = 1e9

// Default image size.
var (
	Width  = 10 * vg.Inch
	Height = 6 * vg.Inch
)

var (
	colorPower = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorHot   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	colorCold  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorDiff  = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	colorFit   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
)

// ErrEmpty is returned when there is nothing to draw.
var ErrEmpty = pkgerrors.New("no data to plot")

// Measurement plots IF power against tuned frequency. Chopper runs get a
// hot and a cold line.
func Measurement(res *run.MeasurementResult) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "IF power " + res.ID
	p.X.Label.Text = "Frequency (GHz)"
	p.Y.Label.Text = "Power (dBm)"
	p.Add(plotter.NewGrid())

	n := 0
	if len(res.Steps) > 0 {
		if err := addLine(p, "power", stepXYs(res.Steps), colorPower); err != nil {
			return nil, err
		}
		n++
	}
	if res.Hot != nil && len(res.Hot.Power) > 0 {
		if err := addLine(p, "hot", xys(res.Hot.Frequency, res.Hot.Power), colorHot); err != nil {
			return nil, err
		}
		n++
	}
	if res.Cold != nil && len(res.Cold.Power) > 0 {
		if err := addLine(p, "cold", xys(res.Cold.Frequency, res.Cold.Power), colorCold); err != nil {
			return nil, err
		}
		n++
	}
	if n == 0 {
		return nil, ErrEmpty
	}
	p.Legend.Top = true
	return p, nil
}

// Diff plots hot minus cold power of a chopper run.
func Diff(res *run.MeasurementResult) (*plot.Plot, error) {
	if len(res.Diff) == 0 || res.Hot == nil {
		return nil, ErrEmpty
	}
	p := plot.New()
	p.Title.Text = "Hot - cold " + res.ID
	p.X.Label.Text = "Frequency (GHz)"
	p.Y.Label.Text = "Difference (dB)"
	p.Add(plotter.NewGrid())

	n := min(len(res.Diff), len(res.Hot.Frequency))
	if err := addLine(p, "diff", xys(res.Hot.Frequency[:n], res.Diff[:n]), colorDiff); err != nil {
		return nil, err
	}
	return p, nil
}

// Calibration plots measured frequency against measured current with
// the fitted current to frequency line over the same current span.
func Calibration(samples []calibration.Sample, fit calibration.Coefficients) (*plot.Plot, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	p := plot.New()
	p.Title.Text = "Calibration " + fit.String()
	p.X.Label.Text = "Current (A)"
	p.Y.Label.Text = "Frequency (GHz)"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(samples))
	lo, hi := samples[0].CurrentGet, samples[0].CurrentGet
	for i, s := range samples {
		pts[i] = plotter.XY{X: s.CurrentGet, Y: s.Frequency / ghz}
		lo, hi = min(lo, s.CurrentGet), max(hi, s.CurrentGet)
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create scatter")
	}
	sc.Color = colorPower
	p.Add(sc)
	p.Legend.Add("measured", sc)

	line := plotter.XYs{
		{X: lo, Y: fit.Apply(lo) / ghz},
		{X: hi, Y: fit.Apply(hi) / ghz},
	}
	if err := addLine(p, "fit", line, colorFit); err != nil {
		return nil, err
	}
	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// WritePNG encodes p as a PNG of the default size.
func WritePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to render plot")
	}
	_, err = wt.WriteTo(w)
	return pkgerrors.Wrap(err, "failed to write plot")
}

// SavePNG writes p to path.
func SavePNG(path string, p *plot.Plot) error {
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create %s", path)
	}
	if err := WritePNG(f, p); err != nil {
		_ = f.Close()
		return err
	}
	return pkgerrors.Wrapf(f.Close(), "failed to close %s", path)
}

func addLine(p *plot.Plot, name string, pts plotter.XYs, c color.Color) error {
	l, err := plotter.NewLine(pts)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create %s line", name)
	}
	l.Color = c
	l.Width = vg.Points(1)
	p.Add(l)
	p.Legend.Add(name, l)
	return nil
}

func stepXYs(steps []run.StepResult) plotter.XYs {
	pts := make(plotter.XYs, len(steps))
	for i, s := range steps {
		pts[i] = plotter.XY{X: s.Setpoint.Value / ghz, Y: s.Aggregate}
	}
	return pts
}

// xys pairs frequencies in Hz with ys, truncating to the shorter slice.
func xys(freqs, ys []float64) plotter.XYs {
	n := min(len(freqs), len(ys))
	pts := make(plotter.XYs, n)
	for i := range n {
		pts[i] = plotter.XY{X: freqs[i] / ghz, Y: ys[i]}
	}
	return pts
}
