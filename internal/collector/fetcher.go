package collector

import (
	"context"
	"errors"
	"fmt"

	"kabunotify/internal/model"
)

// ErrNoData means the price source answered but had nothing for the ticker.
var ErrNoData = errors.New("no data returned")

// StatusError is a non-2xx answer from the price source.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// ChartResult is a chart response normalized at the fetch boundary.
type ChartResult struct {
	Symbol        string
	Name          string // short name, then long name; empty when neither is present
	Currency      string
	Price         float64
	PreviousClose float64 // previous close, then chart previous close, then Price
	Points        []model.HistoryPoint
}

// ChartFetcher defines the interface for fetching chart data for one ticker.
type ChartFetcher interface {
	FetchChart(ctx context.Context, ticker, rng, interval string) (*ChartResult, error)
	Name() string
}
