package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// AgeChartHTML writes a standalone HTML page with a bar chart of the age
// brackets.
func AgeChartHTML(w io.Writer, s Summary) error {
	x := make([]string, 0, len(s.AgeBrackets))
	y := make([]opts.BarData, 0, len(s.AgeBrackets))
	for _, b := range s.AgeBrackets {
		x = append(x, b.Label)
		y = append(y, opts.BarData{Value: b.Count})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Patient Ages", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Patients by age",
			Subtitle: fmt.Sprintf("total=%d mean=%.1f median=%.1f", s.Total, s.AgeMean, s.AgeMedian),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Age"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Patients"}),
	)
	bar.SetXAxis(x).
		AddSeries("patients", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	if err := bar.Render(w); err != nil {
		return fmt.Errorf("render age chart: %w", err)
	}
	return nil
}

// RegistrationsPNG writes a PNG bar chart of registrations per month.
func RegistrationsPNG(w io.Writer, s Summary) error {
	p := plot.New()
	p.Title.Text = "Registrations per month"
	p.Y.Label.Text = "Patients"
	p.Y.Min = 0

	values := make(plotter.Values, 0, len(s.Registrations))
	labels := make([]string, 0, len(s.Registrations))
	for _, m := range s.Registrations {
		values = append(values, float64(m.Count))
		labels = append(labels, monthLabel(m.Month))
	}
	if len(values) > 0 {
		bars, err := plotter.NewBarChart(values, vg.Points(20))
		if err != nil {
			return fmt.Errorf("build bar chart: %w", err)
		}
		bars.LineStyle.Width = vg.Length(0)
		p.Add(bars)
		p.NominalX(labels...)
	}

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}
