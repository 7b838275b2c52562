package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromCoreCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromCore(core).Named("engine").With(String("activity_id", "a1"))

	log.Warn("transition rejected", String("from", "verified"), Int("attempt", 2), Err(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "engine", e.LoggerName)
	assert.Equal(t, zapcore.WarnLevel, e.Level)
	fields := e.ContextMap()
	assert.Equal(t, "a1", fields["activity_id"])
	assert.Equal(t, "verified", fields["from"])
	assert.EqualValues(t, 2, fields["attempt"])
	assert.Equal(t, "boom", fields["error"])
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNopAndOrNop(t *testing.T) {
	assert.NotPanics(t, func() {
		l := OrNop(nil)
		l.With(Bool("x", true)).Named("n").Error("ignored")
	})
}
