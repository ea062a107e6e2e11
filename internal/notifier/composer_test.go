package notifier_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kabunotify/internal/chart"
	"kabunotify/internal/model"
	"kabunotify/internal/notifier"
)

type fakeHistory struct {
	mu     sync.Mutex
	points map[string][]model.HistoryPoint
	calls  []string
}

func (f *fakeHistory) GetHistory(_ context.Context, ticker string, _ int) []model.HistoryPoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ticker)
	if p, ok := f.points[ticker]; ok {
		return p
	}
	return []model.HistoryPoint{}
}

type fakeRenderer struct {
	got   []chart.Series
	err   error
	panic bool
}

func (f *fakeRenderer) Render(series []chart.Series) ([]byte, error) {
	if f.panic {
		panic("boom")
	}
	f.got = series
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png"), nil
}

var fixedNow = time.Date(2024, 6, 3, 0, 30, 0, 0, time.UTC)

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

func twoPoints() []model.HistoryPoint {
	return []model.HistoryPoint{
		{Date: fixedNow.AddDate(0, 0, -1), Close: 1},
		{Date: fixedNow, Close: 2},
	}
}

func TestCompose_AllMissing(t *testing.T) {
	t.Parallel()

	// Arrange
	hist := &fakeHistory{}
	rend := &fakeRenderer{}
	c := notifier.NewComposer(hist, rend, tokyo(t), zerolog.Nop())

	// Act
	msg := c.Compose(t.Context(), map[string]model.Quote{}, []string{"7203.T", "6758.T"}, "title")

	// Assert
	require.Len(t, msg.Fields, 2)
	assert.Equal(t, notifier.Field{Name: "7203", Value: "fetch failed", Inline: true}, msg.Fields[0])
	assert.Equal(t, notifier.Field{Name: "6758", Value: "fetch failed", Inline: true}, msg.Fields[1])
	assert.Nil(t, msg.Image)
	assert.Empty(t, hist.calls, "no chart is attempted without quotes")
}

func TestCompose_PartialFailure(t *testing.T) {
	t.Parallel()

	// Arrange: one of three tickers resolved
	quotes := map[string]model.Quote{
		"6758.T": {Ticker: "6758.T", Name: "Sony", Price: 13450, Change: -120, ChangePercent: -0.884, Currency: "JPY"},
	}
	c := notifier.NewComposer(nil, nil, tokyo(t), zerolog.Nop())

	// Act
	msg := c.Compose(t.Context(), quotes, []string{"7203.T", "6758.T", "9984.T"}, "")

	// Assert
	require.Len(t, msg.Fields, 3)
	assert.Equal(t, "fetch failed", msg.Fields[0].Value)
	assert.Equal(t, "🟢 Sony (6758)", msg.Fields[1].Name)
	assert.Equal(t, "¥13,450　🔻 -120.00 (-0.88%)", msg.Fields[1].Value)
	assert.False(t, msg.Fields[1].Inline)
	assert.Equal(t, "fetch failed", msg.Fields[2].Value)
}

func TestCompose_ZeroChangeIsUp(t *testing.T) {
	t.Parallel()

	quotes := map[string]model.Quote{"7203.T": {Name: "", Price: 2850.5, Currency: "JPY"}}
	c := notifier.NewComposer(nil, nil, nil, zerolog.Nop())

	msg := c.Compose(t.Context(), quotes, []string{"7203.T"}, "t")

	require.Len(t, msg.Fields, 1)
	assert.Equal(t, "🔵 7203 (7203)", msg.Fields[0].Name)
	assert.Equal(t, "¥2,850.5　🔺 +0.00 (+0.00%)", msg.Fields[0].Value)
}

func TestCompose_DefaultTitle(t *testing.T) {
	t.Parallel()

	c := notifier.NewComposer(nil, nil, tokyo(t), zerolog.Nop()).WithClock(func() time.Time { return fixedNow })

	msg := c.Compose(t.Context(), nil, []string{"7203.T"}, "")

	assert.Equal(t, "📈 price report - 2024/06/03 09:30", msg.Title)
	assert.Equal(t, notifier.DefaultColor, msg.Color)
}

func TestCompose_AttachesChartKeepingPositions(t *testing.T) {
	t.Parallel()

	// Arrange: history only for the second ticker
	quotes := map[string]model.Quote{
		"7203.T": {Price: 1},
		"6758.T": {Price: 1},
	}
	hist := &fakeHistory{points: map[string][]model.HistoryPoint{"6758.T": twoPoints()}}
	rend := &fakeRenderer{}
	c := notifier.NewComposer(hist, rend, time.UTC, zerolog.Nop())

	// Act
	msg := c.Compose(t.Context(), quotes, []string{"7203.T", "6758.T"}, "t")

	// Assert
	assert.Equal(t, []byte("png"), msg.Image)
	assert.Equal(t, notifier.ChartFileName, msg.ImageName)
	require.Len(t, rend.got, 2)
	assert.Equal(t, "7203", rend.got[0].Label)
	assert.Empty(t, rend.got[0].Points)
	assert.Len(t, rend.got[1].Points, 2)
	assert.ElementsMatch(t, []string{"7203.T", "6758.T"}, hist.calls)
}

func TestCompose_NoHistoryNoChart(t *testing.T) {
	t.Parallel()

	rend := &fakeRenderer{}
	c := notifier.NewComposer(&fakeHistory{}, rend, time.UTC, zerolog.Nop())

	msg := c.Compose(t.Context(), map[string]model.Quote{"7203.T": {Price: 1}}, []string{"7203.T"}, "t")

	assert.Nil(t, msg.Image)
	assert.Nil(t, rend.got)
	require.Len(t, msg.Fields, 1)
}

func TestCompose_ChartFailuresAreSwallowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		renderer *fakeRenderer
	}{
		{"error", &fakeRenderer{err: errors.New("bad data")}},
		{"panic", &fakeRenderer{panic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hist := &fakeHistory{points: map[string][]model.HistoryPoint{"7203.T": twoPoints()}}
			c := notifier.NewComposer(hist, tt.renderer, time.UTC, zerolog.Nop())

			msg := c.Compose(t.Context(), map[string]model.Quote{"7203.T": {Price: 1}}, []string{"7203.T"}, "t")

			assert.Nil(t, msg.Image)
			require.Len(t, msg.Fields, 1)
		})
	}
}

func TestFormatPrice(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "¥1,234,567.89", notifier.FormatPrice(1234567.891, "JPY"))
	assert.Equal(t, "¥100", notifier.FormatPrice(100, ""))
	assert.Equal(t, "$12.5", notifier.FormatPrice(12.5, "USD"))
	assert.Equal(t, "EUR 3", notifier.FormatPrice(3, "EUR"))
}
