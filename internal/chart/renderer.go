// Package chart draws closing-price line charts as PNG images.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"kabunotify/internal/model"
)

// ErrNoSeries is returned when no series has enough points to draw a line.
var ErrNoSeries = errors.New("chart: no series with at least two points")

// Series is one ticker's history, oldest first.
type Series struct {
	Label  string
	Points []model.HistoryPoint
}

// Renderer produces an image from price history.
type Renderer interface {
	Render(series []Series) ([]byte, error)
}

// PNGRenderer renders with go-chart. With one series it plots prices, with
// several it plots percent change from each series' first close.
type PNGRenderer struct {
	Width    int
	Height   int
	Location *time.Location
}

// NewPNGRenderer returns an 800x400 renderer labelling dates in loc.
func NewPNGRenderer(loc *time.Location) *PNGRenderer {
	if loc == nil {
		loc = time.UTC
	}
	return &PNGRenderer{Width: 800, Height: 400, Location: loc}
}

var (
	backgroundColor = drawing.ColorFromHex("1e1e2e")
	textColor       = drawing.ColorFromHex("cdd6f4")
	gridColor       = drawing.ColorFromHex("45475a")
)

func (r *PNGRenderer) Render(series []Series) ([]byte, error) {
	type usable struct {
		index int
		s     Series
	}
	var drawable []usable
	for i, s := range series {
		if len(s.Points) >= 2 {
			drawable = append(drawable, usable{index: i, s: s})
		}
	}
	if len(drawable) == 0 {
		return nil, ErrNoSeries
	}
	normalize := len(drawable) > 1

	axisStyle := gochart.Style{FontColor: textColor, StrokeColor: gridColor}
	graph := gochart.Chart{
		Width:      r.Width,
		Height:     r.Height,
		Background: gochart.Style{FillColor: backgroundColor, Padding: gochart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20}},
		Canvas:     gochart.Style{FillColor: backgroundColor},
		XAxis: gochart.XAxis{
			Style:          axisStyle,
			ValueFormatter: gochart.TimeValueFormatterWithFormat("01/02"),
		},
		YAxis: gochart.YAxis{
			Style:          axisStyle,
			ValueFormatter: priceFormatter,
			GridMajorStyle: gochart.Style{StrokeColor: gridColor, StrokeWidth: 1},
		},
	}
	if normalize {
		graph.YAxis.ValueFormatter = percentFormatter
	}

	for _, d := range drawable {
		xs := make([]time.Time, len(d.s.Points))
		ys := make([]float64, len(d.s.Points))
		for i, p := range d.s.Points {
			xs[i] = p.Date.In(r.Location)
			ys[i] = p.Close
		}
		if normalize {
			ys = PercentChange(ys)
		}
		graph.Series = append(graph.Series, gochart.TimeSeries{
			Name:    d.s.Label,
			XValues: xs,
			YValues: ys,
			Style: gochart.Style{
				StrokeColor: drawing.ColorFromHex(ColorForIndex(d.index)),
				StrokeWidth: 2,
			},
		})
	}
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph, gochart.Style{
		FillColor: backgroundColor,
		FontColor: textColor,
	})}

	var buf bytes.Buffer
	if err := graph.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render: %w", err)
	}
	return buf.Bytes(), nil
}

// PercentChange rescales closes to percent change from the first value.
// A zero first value yields all zeros.
func PercentChange(closes []float64) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 || closes[0] == 0 {
		return out
	}
	base := closes[0]
	for i, c := range closes {
		out[i] = (c - base) / base * 100
	}
	return out
}

func priceFormatter(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	return humanize.Commaf(math.Round(f))
}

func percentFormatter(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%+.1f%%", f)
}
