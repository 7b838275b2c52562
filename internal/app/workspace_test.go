package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadwork/internal/config"
	"roadwork/internal/engine"
	"roadwork/internal/logging"
)

func TestInitThenOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	p, err := Init(ctx, dir, false)
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultYAML, string(data))

	_, err = Init(ctx, dir, false)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	ws, err := Open(ctx, dir, Options{Logger: logging.NewNop()})
	require.NoError(t, err)
	defer ws.Close()

	n, err := ws.Engine.CreateNeed(ctx, engine.NeedCreateOptions{
		Name: "lighting", FinishEarlyTo: "2025-04-01", FinishOptimumTo: "2025-05-01", FinishLateTo: "2025-06-01", ActorID: "alice",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Same(t, ws.Metrics, ws.Engine.Metrics)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("assignment:\n  timeout_seconds: 0\n"), 0o644))
	_, err := Open(context.Background(), dir, Options{})
	assert.Error(t, err)
}

func TestOpenWithoutConfigUsesDefaults(t *testing.T) {
	ws, err := Open(context.Background(), t.TempDir(), Options{LogLevel: "debug", Logger: logging.NewNop()})
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, "debug", ws.Config.Log.Level)
	assert.Equal(t, 7, ws.Config.Schedule.SoftDeadlineDays)
}
