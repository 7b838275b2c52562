package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadwork/internal/config"
	"roadwork/internal/db"
	"roadwork/internal/engine"
	"roadwork/internal/metrics"
	"roadwork/internal/migrate"
)

type fakeWriter struct {
	msgs   []kafka.Message
	failAt int
	calls  int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls++
	if w.failAt > 0 && w.calls == w.failAt {
		return errors.New("broker unavailable")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func published(t *testing.T, m *metrics.Metrics, result string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "roadwork_relay_published_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func setup(t *testing.T) (engine.Engine, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn))
	return engine.New(conn, config.Default()), ctx
}

func seed(t *testing.T, e engine.Engine, ctx context.Context) string {
	t.Helper()
	n, err := e.CreateNeed(ctx, engine.NeedCreateOptions{
		Name: "sewer", FinishEarlyTo: "2025-04-01", FinishOptimumTo: "2025-05-01", FinishLateTo: "2025-06-01", ActorID: "alice",
	})
	require.NoError(t, err)
	a, err := e.CreateActivity(ctx, engine.ActivityCreateOptions{Name: "Harbour", NeedIDs: []string{n.ID}, ActorID: "alice"})
	require.NoError(t, err)
	return a.ID
}

func TestDispatchPublishesAndAdvances(t *testing.T) {
	e, ctx := setup(t)
	activityID := seed(t, e, ctx)
	total, err := e.Repo.LatestEventID(ctx)
	require.NoError(t, err)
	require.Greater(t, total, int64(1))

	w := &fakeWriter{}
	m := metrics.New()
	d := NewDispatcher(e.Repo, w, config.Default().Relay, nil, m)

	sent, err := d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, total, sent)
	require.Len(t, w.msgs, int(total))

	last := w.msgs[len(w.msgs)-1]
	assert.Equal(t, activityID, string(last.Key))
	var env envelope
	require.NoError(t, json.Unmarshal(last.Value, &env))
	assert.Equal(t, total, env.ID)
	assert.True(t, json.Valid(env.Payload))

	cursor, err := e.Repo.RelayCursor(ctx, CursorName)
	require.NoError(t, err)
	assert.Equal(t, total, cursor)
	assert.EqualValues(t, total, published(t, m, "ok"))

	sent, err = d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestDispatchStopsOnWriteFailure(t *testing.T) {
	e, ctx := setup(t)
	seed(t, e, ctx)

	w := &fakeWriter{failAt: 2}
	d := NewDispatcher(e.Repo, w, config.Default().Relay, nil, nil)

	sent, err := d.DispatchOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, sent)

	cursor, err := e.Repo.RelayCursor(ctx, CursorName)
	require.NoError(t, err)
	assert.Equal(t, "1", string(w.msgs[0].Headers[1].Value))
	assert.EqualValues(t, 1, cursor)

	// retried on the next tick
	sent, err = d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Positive(t, sent)
	assert.Equal(t, "2", string(w.msgs[1].Headers[1].Value))
}
