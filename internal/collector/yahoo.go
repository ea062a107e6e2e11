package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"kabunotify/internal/model"
	"kabunotify/internal/retry"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=collector_test -destination=mock_http_client_test.go -source=yahoo.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// YahooFetcher implements ChartFetcher using the Yahoo Finance chart API.
type YahooFetcher struct {
	baseURL    string
	userAgent  string
	httpClient HTTPClient
	timeout    time.Duration
	limiter    *rate.Limiter
	retryOpts  []retry.Option
	group      singleflight.Group
	log        zerolog.Logger
}

// YahooOption configures a YahooFetcher.
type YahooOption func(*YahooFetcher)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) YahooOption {
	return func(f *YahooFetcher) { f.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c HTTPClient) YahooOption {
	return func(f *YahooFetcher) { f.httpClient = c }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) YahooOption {
	return func(f *YahooFetcher) { f.userAgent = ua }
}

// WithTimeout bounds every single request attempt.
func WithTimeout(d time.Duration) YahooOption {
	return func(f *YahooFetcher) { f.timeout = d }
}

// WithRateLimit caps outbound requests per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64) YahooOption {
	return func(f *YahooFetcher) {
		if rps <= 0 {
			f.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the retry budget for transient failures.
func WithRetry(maxRetries int, initialDelay time.Duration) YahooOption {
	return func(f *YahooFetcher) {
		f.retryOpts = []retry.Option{
			retry.WithMaxRetries(maxRetries),
			retry.WithInitialDelay(initialDelay),
			retry.WithShouldRetry(ShouldRetry),
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) YahooOption {
	return func(f *YahooFetcher) { f.log = log }
}

// WithProxy routes requests through an HTTP proxy. It replaces the HTTP client.
func WithProxy(proxyURL string) YahooOption {
	return func(f *YahooFetcher) {
		transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
		if proxyURL != "" {
			if u, err := url.Parse(proxyURL); err == nil {
				transport.Proxy = http.ProxyURL(u)
			}
		}
		f.httpClient = &http.Client{Transport: transport}
	}
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(opts ...YahooOption) *YahooFetcher {
	f := &YahooFetcher{
		baseURL:    defaultYahooBaseURL,
		userAgent:  "kabu-notify-bot/1.0",
		httpClient: http.DefaultClient,
		timeout:    10 * time.Second,
		log:        zerolog.Nop(),
	}
	WithRetry(2, time.Second)(f)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// ShouldRetry retries transient network failures only. Status errors and empty
// results are authoritative answers and never retried.
func ShouldRetry(err error) bool {
	var se *StatusError
	if errors.As(err, &se) || errors.Is(err, ErrNoData) {
		return false
	}
	return retry.IsTransient(err)
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string   `json:"symbol"`
				Currency           string   `json:"currency"`
				ShortName          string   `json:"shortName"`
				LongName           string   `json:"longName"`
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
				PreviousClose      *float64 `json:"previousClose"`
				ChartPreviousClose *float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchChart requests one chart, retrying transient failures. Concurrent calls
// with identical arguments share a single in-flight request, which is not
// cancelled by any one caller; each caller still returns on its own ctx.
func (f *YahooFetcher) FetchChart(ctx context.Context, ticker, rng, interval string) (*ChartResult, error) {
	key := ticker + "|" + rng + "|" + interval
	shared := context.WithoutCancel(ctx)
	ch := f.group.DoChan(key, func() (any, error) {
		return retry.Do(shared, func(ctx context.Context) (*ChartResult, error) {
			return f.fetchOnce(ctx, ticker, rng, interval)
		}, f.retryOpts...)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ChartResult), nil
	}
}

func (f *YahooFetcher) fetchOnce(ctx context.Context, ticker, rng, interval string) (*ChartResult, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.baseURL, url.PathEscape(ticker), url.QueryEscape(interval), url.QueryEscape(rng))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.log.Debug().Err(err).Str("ticker", ticker).Msg("chart request failed")
		return nil, fmt.Errorf("yahoo fetch %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoData, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, ErrNoData
	}
	return normalize(ticker, &chart), nil
}

func normalize(ticker string, chart *yahooChart) *ChartResult {
	r := chart.Chart.Result[0]
	meta := r.Meta

	out := &ChartResult{
		Symbol:   meta.Symbol,
		Name:     meta.ShortName,
		Currency: meta.Currency,
	}
	if out.Symbol == "" {
		out.Symbol = ticker
	}
	if out.Name == "" {
		out.Name = meta.LongName
	}
	if meta.RegularMarketPrice != nil {
		out.Price = *meta.RegularMarketPrice
	}
	switch {
	case meta.PreviousClose != nil:
		out.PreviousClose = *meta.PreviousClose
	case meta.ChartPreviousClose != nil:
		out.PreviousClose = *meta.ChartPreviousClose
	default:
		out.PreviousClose = out.Price
	}

	var closes []*float64
	if len(r.Indicators.Quote) > 0 {
		closes = r.Indicators.Quote[0].Close
	}
	n := len(r.Timestamp)
	if len(closes) < n {
		n = len(closes)
	}
	out.Points = make([]model.HistoryPoint, 0, n)
	for i := 0; i < n; i++ {
		if closes[i] == nil {
			continue // holidays and halted sessions
		}
		out.Points = append(out.Points, model.HistoryPoint{
			Date:  time.Unix(r.Timestamp[i], 0),
			Close: *closes[i],
		})
	}
	sort.Slice(out.Points, func(i, j int) bool { return out.Points[i].Date.Before(out.Points[j].Date) })
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
