package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewWithWriterFiltersByLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "warn"}, &buf)

	log.Info().Msg("hidden")
	log.Warn().Str("channel_id", "42").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, `"channel_id":"42"`)
}

func TestNewWritesFileSink(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	var console bytes.Buffer
	log := NewWithWriter(Config{Level: "info", Console: true, FilePath: path}, &console)

	log.Info().Msg("to both")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"to both"`)
	assert.Contains(t, console.String(), "to both")
}

func TestNewWithWriterLeavesGlobalsAlone(t *testing.T) {
	t.Parallel()
	before := zerolog.ErrorFieldName
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "info"}, &buf)

	log.Error().Err(errors.New("boom")).Msg("failed")

	assert.Equal(t, before, zerolog.ErrorFieldName)
	assert.Contains(t, buf.String(), `"`+zerolog.ErrorFieldName+`":"boom"`)
}
