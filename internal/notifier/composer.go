package notifier

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"kabunotify/internal/chart"
	"kabunotify/internal/model"
)

const (
	upMarker   = "🔺"
	downMarker = "🔻"
	failedText = "fetch failed"
)

// HistorySource provides closing-price history. It returns an empty slice on failure.
type HistorySource interface {
	GetHistory(ctx context.Context, ticker string, days int) []model.HistoryPoint
}

// Composer builds price reports.
type Composer struct {
	history  HistorySource
	renderer chart.Renderer
	loc      *time.Location
	now      func() time.Time
	days     int
	log      zerolog.Logger
}

// NewComposer creates a Composer. A nil history source or renderer disables charts.
func NewComposer(history HistorySource, renderer chart.Renderer, loc *time.Location, log zerolog.Logger) *Composer {
	if loc == nil {
		loc = time.UTC
	}
	return &Composer{
		history:  history,
		renderer: renderer,
		loc:      loc,
		now:      time.Now,
		days:     30,
		log:      log.With().Str("component", "composer").Logger(),
	}
}

// WithClock replaces the clock used for the default title.
func (c *Composer) WithClock(now func() time.Time) *Composer {
	c.now = now
	return c
}

// WithHistoryDays sets the chart lookback window.
func (c *Composer) WithHistoryDays(days int) *Composer {
	if days > 0 {
		c.days = days
	}
	return c
}

// DefaultTitle is the report title used when none is supplied.
func (c *Composer) DefaultTitle() string {
	return "📈 price report - " + c.now().In(c.loc).Format("2006/01/02 15:04")
}

// Compose renders quotes in tickers order. Tickers missing from quotes get a
// failure field. A chart is attached when history is available; chart
// failures never suppress the summary.
func (c *Composer) Compose(ctx context.Context, quotes map[string]model.Quote, tickers []string, title string) Message {
	if title == "" {
		title = c.DefaultTitle()
	}
	msg := Message{Title: title, Color: DefaultColor}

	for i, t := range tickers {
		q, ok := quotes[t]
		if !ok {
			msg.Fields = append(msg.Fields, Field{Name: model.DisplayTicker(t), Value: failedText, Inline: true})
			continue
		}
		msg.Fields = append(msg.Fields, quoteField(i, t, q))
	}

	if len(quotes) == 0 {
		return msg
	}
	if img, err := c.renderChart(ctx, tickers); err != nil {
		c.log.Warn().Err(err).Msg("chart skipped")
	} else if img != nil {
		msg.Image = img
		msg.ImageName = ChartFileName
	}
	return msg
}

func quoteField(index int, ticker string, q model.Quote) Field {
	name := q.Name
	if name == "" {
		name = model.DisplayTicker(ticker)
	}
	marker := upMarker
	if q.Change < 0 {
		marker = downMarker
	}
	return Field{
		Name: fmt.Sprintf("%s %s (%s)", chart.MarkerForIndex(index), name, model.DisplayTicker(ticker)),
		Value: fmt.Sprintf("%s　%s %+.2f (%+.2f%%)",
			FormatPrice(q.Price, q.Currency), marker, q.Change, q.ChangePercent),
	}
}

// FormatPrice renders a thousands-grouped price with its currency prefix.
func FormatPrice(price float64, currency string) string {
	grouped := humanize.Commaf(math.Round(price*100) / 100)
	switch currency {
	case "", "JPY":
		return "¥" + grouped
	case "USD":
		return "$" + grouped
	default:
		return currency + " " + grouped
	}
}

// renderChart returns nil bytes and no error when no ticker has history.
func (c *Composer) renderChart(ctx context.Context, tickers []string) (img []byte, err error) {
	if c.history == nil || c.renderer == nil || len(tickers) == 0 {
		return nil, nil
	}

	series := make([]chart.Series, len(tickers))
	var (
		mu        sync.Mutex
		survivors int
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tickers {
		g.Go(func() error {
			points := c.history.GetHistory(gctx, t, c.days)
			series[i] = chart.Series{Label: model.DisplayTicker(t), Points: points}
			if len(points) > 0 {
				mu.Lock()
				survivors++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if survivors == 0 {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("chart render panic: %v", r)
		}
	}()
	return c.renderer.Render(series)
}
