package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_json(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.InfoLevel, false)
	l.Debug().Msg("hidden")
	l.Info().Str("id", "abc").Msg("visible")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "abc", entry["id"])
	assert.Contains(t, entry, "time")
}

func TestNew_console(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.DebugLevel, true)
	l.Info().Str("id", "abc").Msg("visible")

	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "abc")
	assert.False(t, json.Valid(buf.Bytes()))
}
