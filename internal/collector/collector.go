package collector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"kabunotify/internal/model"
	"kabunotify/internal/retry"
)

const defaultHistoryDays = 30

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price         float64
	PreviousClose float64
	Points        []model.HistoryPoint
	Err           error
	Now           func() time.Time
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchChart(_ context.Context, ticker, _, _ string) (*ChartResult, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	prev := m.PreviousClose
	if prev == 0 {
		prev = m.Price
	}
	points := m.Points
	if points == nil {
		now := time.Now
		if m.Now != nil {
			now = m.Now
		}
		points = generateMockPoints(m.Price, defaultHistoryDays, now())
	}
	return &ChartResult{
		Symbol:        ticker,
		Name:          model.DisplayTicker(ticker),
		Currency:      "JPY",
		Price:         m.Price,
		PreviousClose: prev,
		Points:        points,
	}, nil
}

func generateMockPoints(basePrice float64, count int, now time.Time) []model.HistoryPoint {
	points := make([]model.HistoryPoint, count)
	for i := 0; i < count; i++ {
		points[i] = model.HistoryPoint{
			Date:  now.AddDate(0, 0, -(count - 1 - i)),
			Close: basePrice * (1 + float64(i-count/2)*0.001),
		}
	}
	return points
}

// ValidationErrorKind classifies why a ticker could not be validated.
type ValidationErrorKind string

const (
	ValidationNetwork  ValidationErrorKind = "network"
	ValidationNotFound ValidationErrorKind = "not_found"
	ValidationUnknown  ValidationErrorKind = "unknown"
)

// Validation is the outcome of ValidateTicker.
type Validation struct {
	Valid   bool
	Name    string
	Kind    ValidationErrorKind
	Message string
}

// Collector turns raw charts into quotes and price history.
type Collector struct {
	Fetcher     ChartFetcher
	Concurrency int
	HistoryDays int

	now func() time.Time
	log zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher ChartFetcher, log zerolog.Logger) *Collector {
	return &Collector{
		Fetcher:     fetcher,
		Concurrency: 8,
		HistoryDays: defaultHistoryDays,
		now:         time.Now,
		log:         log.With().Str("component", "collector").Str("source", fetcher.Name()).Logger(),
	}
}

// WithClock replaces the wall clock used for history windows.
func (c *Collector) WithClock(now func() time.Time) *Collector {
	c.now = now
	return c
}

// GetQuote returns the latest quote, or false when it cannot be produced.
func (c *Collector) GetQuote(ctx context.Context, ticker string) (model.Quote, bool) {
	res, err := c.Fetcher.FetchChart(ctx, ticker, "1d", "1d")
	if err != nil {
		c.log.Warn().Err(err).Str("ticker", ticker).Msg("quote fetch failed")
		return model.Quote{}, false
	}
	if res.Price <= 0 || math.IsNaN(res.Price) {
		c.log.Warn().Str("ticker", ticker).Msg("quote has no market price")
		return model.Quote{}, false
	}
	return buildQuote(ticker, res), true
}

func buildQuote(ticker string, res *ChartResult) model.Quote {
	price := decimal.NewFromFloat(res.Price)
	prev := decimal.NewFromFloat(res.PreviousClose)
	change := price.Sub(prev)

	var pct decimal.Decimal
	if !prev.IsZero() {
		pct = change.Div(prev).Mul(decimal.NewFromInt(100))
	}

	name := res.Name
	if name == "" {
		name = ticker
	}
	currency := res.Currency
	if currency == "" {
		currency = "JPY"
	}
	return model.Quote{
		Ticker:        ticker,
		Name:          name,
		Price:         res.Price,
		PreviousClose: res.PreviousClose,
		Change:        change.InexactFloat64(),
		ChangePercent: pct.InexactFloat64(),
		Currency:      currency,
	}
}

// GetQuotes fetches quotes concurrently. Tickers that fail are absent from the result.
func (c *Collector) GetQuotes(ctx context.Context, tickers []string) map[string]model.Quote {
	out := make(map[string]model.Quote, len(tickers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if c.Concurrency > 0 {
		g.SetLimit(c.Concurrency)
	}
	for _, t := range tickers {
		g.Go(func() error {
			q, ok := c.GetQuote(gctx, t)
			if ok {
				mu.Lock()
				out[t] = q
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// GetHistory returns daily closes within the last days days, oldest first.
// It returns an empty slice on any failure.
func (c *Collector) GetHistory(ctx context.Context, ticker string, days int) []model.HistoryPoint {
	if days <= 0 {
		days = c.HistoryDays
	}
	res, err := c.Fetcher.FetchChart(ctx, ticker, rangeForDays(days), "1d")
	if err != nil {
		c.log.Warn().Err(err).Str("ticker", ticker).Msg("history fetch failed")
		return []model.HistoryPoint{}
	}

	cutoff := c.now().AddDate(0, 0, -days)
	out := make([]model.HistoryPoint, 0, len(res.Points))
	for _, p := range res.Points {
		if p.Date.Before(cutoff) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// rangeForDays picks the smallest chart range covering days.
func rangeForDays(days int) string {
	switch {
	case days <= 1:
		return "1d"
	case days <= 5:
		return "5d"
	case days <= 31:
		return "1mo"
	case days <= 93:
		return "3mo"
	case days <= 186:
		return "6mo"
	case days <= 366:
		return "1y"
	default:
		return "2y"
	}
}

// ValidateTicker checks that ticker exists and returns its display name.
func (c *Collector) ValidateTicker(ctx context.Context, ticker string) Validation {
	res, err := c.Fetcher.FetchChart(ctx, ticker, "1d", "1d")
	if err == nil && res.Price <= 0 {
		err = ErrNoData
	}
	if err != nil {
		kind := classify(err)
		c.log.Info().Err(err).Str("ticker", ticker).Str("kind", string(kind)).Msg("ticker validation failed")
		return Validation{Kind: kind, Message: validationMessage(kind, ticker, err)}
	}

	name := res.Name
	if name == "" {
		name = ticker
	}
	return Validation{Valid: true, Name: name}
}

func classify(err error) ValidationErrorKind {
	var se *StatusError
	switch {
	case errors.Is(err, ErrNoData):
		return ValidationNotFound
	case errors.As(err, &se):
		if se.StatusCode == 404 {
			return ValidationNotFound
		}
		return ValidationUnknown
	case retry.IsTransient(err):
		return ValidationNetwork
	default:
		return ValidationUnknown
	}
}

func validationMessage(kind ValidationErrorKind, ticker string, err error) string {
	switch kind {
	case ValidationNetwork:
		return "could not reach the price service, please try again later"
	case ValidationNotFound:
		return fmt.Sprintf("ticker %s was not found", model.DisplayTicker(ticker))
	default:
		return err.Error()
	}
}
