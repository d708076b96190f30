package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vip-access-bot/internal/config"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.Log{Level: "warn", Format: "json"}, &buf)

	log.Info().Msg("dropped")
	log.Warn().Int64("buyer_id", 7).Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, float64(7), entry["buyer_id"])
}

func TestNewWithWriterUnknownLevel(t *testing.T) {
	log := NewWithWriter(config.Log{Level: "loud"}, &bytes.Buffer{})
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
