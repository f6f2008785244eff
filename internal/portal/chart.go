package portal

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

type Metric string

const (
	MetricWeight       Metric = "weight"
	MetricComposition  Metric = "composition"
	MetricMeasurements Metric = "measurements"
)

var ErrUnknownMetric = errors.New("unknown trend metric")

type series struct {
	name  string
	value func(TrendPoint) *float64
}

var metricSeries = map[Metric]struct {
	title, unit string
	series      []series
}{
	MetricWeight: {"Peso", "kg", []series{
		{"Peso", func(p TrendPoint) *float64 { return p.Weight }},
	}},
	MetricComposition: {"Composição corporal", "%", []series{
		{"Gordura", func(p TrendPoint) *float64 { return p.BodyFat }},
		{"Massa muscular", func(p TrendPoint) *float64 { return p.MuscleMass }},
	}},
	MetricMeasurements: {"Medidas", "cm", []series{
		{"Cintura", func(p TrendPoint) *float64 { return p.Waist }},
		{"Quadril", func(p TrendPoint) *float64 { return p.Hips }},
		{"Braço", func(p TrendPoint) *float64 { return p.Arm }},
	}},
}

// RenderTrendChart writes an HTML line chart of points for metric. Missing
// values are left as gaps rather than interpolated.
func RenderTrendChart(w io.Writer, points []TrendPoint, metric Metric) error {
	def, ok := metricSeries[metric]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}

	xAxis := make([]string, 0, len(points))
	for _, p := range points {
		xAxis = append(xAxis, p.Date.Format("02/01/2006"))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: def.title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(len(def.series) > 1)}),
		charts.WithYAxisOpts(opts.YAxis{Name: def.unit}),
	)
	line.SetXAxis(xAxis)
	for _, s := range def.series {
		data := make([]opts.LineData, 0, len(points))
		for _, p := range points {
			if v := s.value(p); v != nil {
				data = append(data, opts.LineData{Value: *v})
			} else {
				data = append(data, opts.LineData{Value: "-"})
			}
		}
		line.AddSeries(s.name, data)
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{
		ShowSymbol:   opts.Bool(true),
		ConnectNulls: opts.Bool(false),
	}))
	return line.Render(w)
}

// TrendChart renders the trend of the patient behind recordID.
func (s *Service) TrendChart(ctx context.Context, w io.Writer, recordID string, metric Metric) error {
	if _, ok := metricSeries[metric]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	rec, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return err
	}
	history, err := s.records.ListByAccessCode(ctx, rec.AccessCode)
	if err != nil {
		return err
	}
	return RenderTrendChart(w, Trend(history, rec.AccessCode), metric)
}
