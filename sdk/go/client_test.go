package roadworksdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadwork/internal/assignment"
	"roadwork/internal/config"
	"roadwork/internal/db"
	"roadwork/internal/domain"
	"roadwork/internal/engine"
	"roadwork/internal/migrate"
	"roadwork/internal/server"
)

var _ assignment.Remote = (*Client)(nil)

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/needs/n1", r.URL.Path)
		assert.Equal(t, "alice", r.Header.Get("X-User-Id"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"not_found","message":"need n1 not found"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.UserID = "alice"
	_, err := c.GetNeed(context.Background(), "n1")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.Equal(t, "not_found: need n1 not found", err.Error())
}

func TestAPIErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).ListNeeds(context.Background(), "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad_gateway", apiErr.Code)
	assert.NotEmpty(t, apiErr.Message)
}

func TestBearerTokenAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("X-User-Id"))
		assert.Equal(t, "registered", r.URL.Query().Get("relation"))
		json.NewEncoder(w).Encode(map[string]any{"items": []domain.Need{{ID: "n1"}}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	c.UserID = "ignored"
	needs, err := c.ListNeeds(context.Background(), domain.RelationRegistered)
	require.NoError(t, err)
	require.Len(t, needs, 1)
	assert.Equal(t, "n1", needs[0].ID)
}

func TestCoordinatorThroughServer(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn))
	e := engine.New(conn, config.Default())
	handler, err := server.New(server.Config{
		Engine: e,
		Auth:   server.AuthConfig{AllowLegacyUserHeader: true},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	c := New(srv.URL)
	c.UserID = "alice"
	n, err := c.CreateNeed(ctx, NeedInput{Name: "cable", FinishEarlyTo: "2025-04-01", FinishOptimumTo: "2025-05-01", FinishLateTo: "2025-06-01"})
	require.NoError(t, err)
	other, err := c.CreateNeed(ctx, NeedInput{Name: "gas", FinishEarlyTo: "2025-04-01", FinishOptimumTo: "2025-05-01", FinishLateTo: "2025-06-01"})
	require.NoError(t, err)
	a, err := c.CreateActivity(ctx, ActivityInput{Name: "Station square", NeedIDs: []string{n.ID}})
	require.NoError(t, err)

	pool, err := c.ListNeeds(ctx, "")
	require.NoError(t, err)
	coord := assignment.NewCoordinator(assignment.NewBoard(pool), c, 5*time.Second, nil, nil)

	require.NoError(t, coord.Assign(ctx, other.ID, a.ID))
	snap := coord.Board.Snapshot()
	assert.Len(t, snap.Assigned, 2)

	require.NoError(t, coord.Unassign(ctx, other.ID))
	got, err := c.GetNeed(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelationNonAssigned, got.ActivityRelationType)

	require.NoError(t, coord.Register(ctx, n.ID))
	got, err = c.GetNeed(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelationRegistered, got.ActivityRelationType)

	// the server rejects assigning to an unknown activity; the board rolls back
	err = coord.Assign(ctx, other.ID, "missing")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	_, slot, ok := coord.Board.Snapshot().Find(other.ID)
	require.True(t, ok)
	assert.Equal(t, assignment.SlotNonAssigned, slot)

	board, err := c.Board(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, board.Activity.ID)
	assert.Empty(t, board.Needs)
}
