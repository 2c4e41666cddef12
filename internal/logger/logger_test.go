package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "json")
	log.Info().Str("session_id", "abc").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, Service, line["service"])
	assert.Equal(t, "abc", line["session_id"])
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestNewUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "loud", "json")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestNewPretty(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", "pretty")
	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}
