package logx_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timeline-engine/logx"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, logx.ParseLevel("debug", zerolog.InfoLevel))
	assert.Equal(t, zerolog.WarnLevel, logx.ParseLevel(" Warning ", zerolog.InfoLevel))
	assert.Equal(t, zerolog.ErrorLevel, logx.ParseLevel("nonsense", zerolog.ErrorLevel))
}

func TestNewWithWriter_JSONFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logx.Component(logx.NewWithWriter(logx.Config{Level: "info", Format: "json"}, &buf), "sweep")

	log.Debug().Msg("hidden")
	log.Info().Int("delayed", 2).Msg("done")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1, "debug is below the configured level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "done", entry["message"])
	assert.Equal(t, "sweep", entry["component"])
	assert.EqualValues(t, 2, entry["delayed"])
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	log := logx.NewWithWriter(logx.Config{Level: "debug"}, &buf)
	log.Info().Str("schedule_id", "s-1").Msg("schedule created")

	assert.Contains(t, buf.String(), "schedule created")
	assert.Contains(t, buf.String(), "schedule_id")
	assert.Contains(t, buf.String(), "s-1")
}
