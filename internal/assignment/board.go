package assignment

import (
	"sync"

	"roadwork/internal/domain"
)

// Board owns the need collections of one activity view. All changes go
// through it so that moves are applied as a unit.
type Board struct {
	mu       sync.Mutex
	state    Collections
	inflight map[string]struct{}
}

func NewBoard(needs []domain.Need) *Board {
	return &Board{state: Partition(needs), inflight: map[string]struct{}{}}
}

// Snapshot returns a copy of the current collections.
func (b *Board) Snapshot() Collections {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Collections{
		Assigned:    append([]domain.Need(nil), b.state.Assigned...),
		NonAssigned: append([]domain.Need(nil), b.state.NonAssigned...),
		Registered:  append([]domain.Need(nil), b.state.Registered...),
	}
}

// begin marks id as in flight and applies patch to the stored need once
// check accepts its collection. It returns the need as it was before the
// patch, the patched need and the collection holding it.
func (b *Board) begin(id string, check func(Slot) error, patch func(*domain.Need)) (before, after domain.Need, slot Slot, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, busy := b.inflight[id]; busy {
		return before, after, SlotNone, ErrInFlight
	}
	n, s, ok := b.state.Find(id)
	if !ok {
		return before, after, SlotNone, ErrNeedNotFound
	}
	if check != nil {
		if err := check(s); err != nil {
			return before, after, s, err
		}
	}
	before, after = n, n
	if patch != nil {
		patch(&after)
		b.state = b.state.Replace(after)
	}
	b.inflight[id] = struct{}{}
	return before, after, s, nil
}

// rollback restores the relation fields captured in before. Other fields
// of the need are left as they are.
func (b *Board) rollback(before domain.Need) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, before.ID)
	cur, _, ok := b.state.Find(before.ID)
	if !ok {
		return
	}
	cur.ActivityRelationType = before.ActivityRelationType
	cur.ActivityID = before.ActivityID
	b.state = b.state.Replace(cur)
}

// commit applies move to the collections once the data layer confirmed.
func (b *Board) commit(id string, move func(Collections) Collections) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, id)
	b.state = move(b.state)
}
