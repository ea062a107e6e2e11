package status_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kabunotify/internal/scheduler"
	"kabunotify/internal/status"
)

type fakeTriggers struct {
	infos   []scheduler.TriggerInfo
	sendErr error
	sent    []string
}

func (f *fakeTriggers) Triggers() []scheduler.TriggerInfo { return f.infos }

func (f *fakeTriggers) SendNotification(_ context.Context, channelID string) error {
	f.sent = append(f.sent, channelID)
	return f.sendErr
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	t.Parallel()

	// Arrange
	triggers := &fakeTriggers{infos: []scheduler.TriggerInfo{{ChannelID: "c1", Expression: "0 9 * * 1-5"}}}
	router := status.NewRouter(triggers, fakePinger{}, zerolog.Nop())

	// Act
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["triggers"])
}

func TestHealthz_StoreDown(t *testing.T) {
	t.Parallel()

	router := status.NewRouter(&fakeTriggers{}, fakePinger{err: errors.New("database is locked")}, zerolog.Nop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is locked")
}

func TestTriggersEndpoint(t *testing.T) {
	t.Parallel()

	// Arrange
	next := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	triggers := &fakeTriggers{infos: []scheduler.TriggerInfo{
		{ChannelID: "c1", Expression: "0 9 * * 1-5", Description: "weekdays 9:00", Next: next},
	}}
	router := status.NewRouter(triggers, fakePinger{}, zerolog.Nop())

	// Act
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/triggers", nil))

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	var got []scheduler.TriggerInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ChannelID)
	assert.Equal(t, "weekdays 9:00", got[0].Description)
	assert.True(t, next.Equal(got[0].Next))
}

func TestNotifyEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()
		triggers := &fakeTriggers{}
		router := status.NewRouter(triggers, fakePinger{}, zerolog.Nop())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/channels/123/notify", nil))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, []string{"123"}, triggers.sent)
	})

	t.Run("delivery failure", func(t *testing.T) {
		t.Parallel()
		triggers := &fakeTriggers{sendErr: errors.New("missing access")}
		router := status.NewRouter(triggers, fakePinger{}, zerolog.Nop())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/channels/123/notify", nil))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing access")
	})
}
