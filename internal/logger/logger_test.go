package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestInitLevels(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	InitWithWriter(&buf, "warn", false)
	log.Info().Msg("hidden")
	log.Warn().Str("uid", "u1").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"uid":"u1"`)
	assert.Contains(t, out, `"level":"warn"`)
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	InitWithWriter(&buf, "loud", false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
