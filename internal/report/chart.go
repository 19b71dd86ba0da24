package report

import (
	"context"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ChartRenderer draws incidents per identity as a bar chart PNG.
type ChartRenderer struct {
	Dir string
}

func (ChartRenderer) Name() string { return "chart" }

func (c ChartRenderer) Render(_ context.Context, s Summary, _ []string) (string, error) {
	incidents := s.Incidents()
	if len(incidents) == 0 {
		return "", nil
	}

	values := make(plotter.Values, len(incidents))
	names := make([]string, len(incidents))
	for i, inc := range incidents {
		values[i] = float64(len(inc.Events))
		names[i] = inc.Events[0].Identity
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Incidents per student - %s", s.Location)
	p.Y.Label.Text = "Incidents"

	bars, err := plotter.NewBarChart(values, vg.Points(18))
	if err != nil {
		return "", fmt.Errorf("bar chart: %w", err)
	}
	bars.Color = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)

	path, err := artifactPath(c.Dir, s, ".png")
	if err != nil {
		return "", err
	}
	width := vg.Length(len(names))*vg.Centimeter + 8*vg.Centimeter
	if err := p.Save(width, 10*vg.Centimeter, path); err != nil {
		return "", fmt.Errorf("save chart: %w", err)
	}
	return path, nil
}
