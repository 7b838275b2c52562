package assignment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadwork/internal/domain"
	"roadwork/internal/metrics"
)

type fakeRemote struct {
	mu       sync.Mutex
	fail     map[string]error
	block    chan struct{}
	updates  []domain.Need
	register []string
}

func (f *fakeRemote) UpdateNeed(ctx context.Context, n domain.Need) (domain.Need, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return domain.Need{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, n)
	if err := f.fail[n.ID]; err != nil {
		return domain.Need{}, err
	}
	if n.ActivityRelationType != domain.RelationAssigned {
		n.IsPrimary = false
	}
	n.UpdatedAt = "2025-01-01T00:00:00Z"
	return n, nil
}

func (f *fakeRemote) RegisterNeed(_ context.Context, id string) (domain.Need, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.register = append(f.register, id)
	if err := f.fail[id]; err != nil {
		return domain.Need{}, err
	}
	return domain.Need{ID: id, ActivityRelationType: domain.RelationRegistered}, nil
}

func ids(needs []domain.Need) []string {
	out := []string{}
	for _, n := range needs {
		out = append(out, n.ID)
	}
	return out
}

func fixture() []domain.Need {
	return []domain.Need{
		{ID: "a1", ActivityRelationType: domain.RelationAssigned, ActivityID: "act", IsPrimary: true},
		{ID: "a2", ActivityRelationType: domain.RelationAssigned, ActivityID: "act"},
		{ID: "free", ActivityRelationType: domain.RelationNonAssigned},
		{ID: "req", ActivityRelationType: domain.RelationRequirement},
		{ID: "reg", ActivityRelationType: domain.RelationRegistered},
	}
}

func TestPartition(t *testing.T) {
	c := Partition(fixture())
	assert.Equal(t, []string{"a1", "a2"}, ids(c.Assigned))
	assert.Equal(t, []string{"free", "req"}, ids(c.NonAssigned))
	assert.Equal(t, []string{"reg"}, ids(c.Registered))
}

func TestMoveExcludesOnlyTarget(t *testing.T) {
	c := Partition(fixture())
	moved := c.Move(SlotAssigned, SlotNonAssigned, domain.Need{ID: "a2"})

	assert.Equal(t, []string{"a1"}, ids(moved.Assigned))
	assert.Equal(t, []string{"free", "req", "a2"}, ids(moved.NonAssigned))
	// the original value is untouched
	assert.Equal(t, []string{"a1", "a2"}, ids(c.Assigned))
	assert.Equal(t, []string{"free", "req"}, ids(c.NonAssigned))
}

func TestAssignSuccess(t *testing.T) {
	remote := &fakeRemote{}
	co := NewCoordinator(NewBoard(fixture()), remote, time.Second, nil, metrics.New())

	n, err := co.Assign(context.Background(), "free", "act")
	require.NoError(t, err)
	assert.Equal(t, domain.RelationAssigned, n.ActivityRelationType)
	assert.Equal(t, "act", n.ActivityID)

	snap := co.Board.Snapshot()
	assert.Equal(t, []string{"a1", "a2", "free"}, ids(snap.Assigned))
	assert.Equal(t, []string{"req"}, ids(snap.NonAssigned))
	assert.Equal(t, "2025-01-01T00:00:00Z", snap.Assigned[2].UpdatedAt)
}

func TestAssignFailureRollsBack(t *testing.T) {
	remote := &fakeRemote{fail: map[string]error{"free": errors.New("E42: activity locked")}}
	co := NewCoordinator(NewBoard(fixture()), remote, time.Second, nil, nil)

	_, err := co.Assign(context.Background(), "free", "act")
	require.EqualError(t, err, "E42: activity locked")

	require.Len(t, remote.updates, 1)
	assert.Equal(t, domain.RelationAssigned, remote.updates[0].ActivityRelationType)

	snap := co.Board.Snapshot()
	assert.NotContains(t, ids(snap.Assigned), "free")
	n, slot, ok := snap.Find("free")
	require.True(t, ok)
	assert.Equal(t, SlotNonAssigned, slot)
	assert.Equal(t, domain.RelationNonAssigned, n.ActivityRelationType)
	assert.Equal(t, "", n.ActivityID)
}

func TestAssignTimeoutRollsBack(t *testing.T) {
	remote := &fakeRemote{block: make(chan struct{})}
	co := NewCoordinator(NewBoard(fixture()), remote, 20*time.Millisecond, nil, nil)

	_, err := co.Assign(context.Background(), "req", "act")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	n, slot, ok := co.Board.Snapshot().Find("req")
	require.True(t, ok)
	assert.Equal(t, SlotNonAssigned, slot)
	assert.Equal(t, domain.RelationRequirement, n.ActivityRelationType)
	assert.Equal(t, "", n.ActivityID)
}

func TestUnassign(t *testing.T) {
	remote := &fakeRemote{}
	co := NewCoordinator(NewBoard(fixture()), remote, time.Second, nil, nil)

	n, err := co.Unassign(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.RelationNonAssigned, n.ActivityRelationType)
	assert.False(t, n.IsPrimary)

	snap := co.Board.Snapshot()
	assert.Equal(t, []string{"a2"}, ids(snap.Assigned))
	assert.Equal(t, []string{"free", "req", "a1"}, ids(snap.NonAssigned))
}

func TestUnassignFailureRestoresBothFields(t *testing.T) {
	remote := &fakeRemote{fail: map[string]error{"a2": errors.New("denied")}}
	co := NewCoordinator(NewBoard(fixture()), remote, time.Second, nil, nil)

	_, err := co.Unassign(context.Background(), "a2")
	require.Error(t, err)

	n, slot, ok := co.Board.Snapshot().Find("a2")
	require.True(t, ok)
	assert.Equal(t, SlotAssigned, slot)
	assert.Equal(t, domain.RelationAssigned, n.ActivityRelationType)
	assert.Equal(t, "act", n.ActivityID)
}

func TestUnassignRequiresAssigned(t *testing.T) {
	remote := &fakeRemote{}
	co := NewCoordinator(NewBoard(fixture()), remote, time.Second, nil, nil)

	_, err := co.Unassign(context.Background(), "free")
	require.Error(t, err)
	assert.Empty(t, remote.updates)

	_, err = co.Unassign(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNeedNotFound)
}

func TestRegister(t *testing.T) {
	remote := &fakeRemote{}
	co := NewCoordinator(NewBoard(fixture()), remote, time.Second, nil, nil)

	n, err := co.Register(context.Background(), "a2")
	require.NoError(t, err)
	assert.Equal(t, domain.RelationRegistered, n.ActivityRelationType)

	snap := co.Board.Snapshot()
	assert.Equal(t, []string{"a1"}, ids(snap.Assigned))
	assert.Equal(t, []string{"free", "req", "a2"}, ids(snap.NonAssigned))
	assert.Equal(t, []string{"a2"}, remote.register)
}

func TestRegisterFailureLeavesCollections(t *testing.T) {
	remote := &fakeRemote{fail: map[string]error{"a1": errors.New("nope")}}
	board := NewBoard(fixture())
	before := board.Snapshot()
	co := NewCoordinator(board, remote, time.Second, nil, nil)

	_, err := co.Register(context.Background(), "a1")
	require.EqualError(t, err, "nope")
	assert.Equal(t, before, board.Snapshot())
}

func TestConcurrentChangesDoNotInterfere(t *testing.T) {
	needs := []domain.Need{}
	fail := map[string]error{}
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		needs = append(needs, domain.Need{ID: id, ActivityRelationType: domain.RelationNonAssigned})
		if i%2 == 1 {
			fail[id] = errors.New("rejected")
		}
	}
	remote := &fakeRemote{fail: fail}
	co := NewCoordinator(NewBoard(needs), remote, time.Second, nil, nil)

	var wg sync.WaitGroup
	for _, n := range needs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = co.Assign(context.Background(), id, "act")
		}(n.ID)
	}
	wg.Wait()

	snap := co.Board.Snapshot()
	assert.Len(t, snap.Assigned, 10)
	assert.Len(t, snap.NonAssigned, 10)
	for _, n := range snap.NonAssigned {
		assert.Contains(t, fail, n.ID)
		assert.Equal(t, domain.RelationNonAssigned, n.ActivityRelationType)
		assert.Equal(t, "", n.ActivityID)
	}
}

func TestPendingChangeIsRejected(t *testing.T) {
	remote := &fakeRemote{block: make(chan struct{})}
	co := NewCoordinator(NewBoard(fixture()), remote, time.Second, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := co.Assign(context.Background(), "free", "act")
		done <- err
	}()
	require.Eventually(t, func() bool {
		n, _, _ := co.Board.Snapshot().Find("free")
		return n.ActivityRelationType == domain.RelationAssigned
	}, time.Second, 5*time.Millisecond)

	_, err := co.Assign(context.Background(), "free", "other")
	assert.ErrorIs(t, err, ErrInFlight)

	close(remote.block)
	require.NoError(t, <-done)
}
