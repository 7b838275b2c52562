// Package assignment moves needs between an activity's assigned,
// non-assigned and registered collections, applying changes optimistically
// and rolling them back when the data layer rejects them.
package assignment

import "roadwork/internal/domain"

// Slot names one of the three need collections.
type Slot int

const (
	SlotNone Slot = iota
	SlotAssigned
	SlotNonAssigned
	SlotRegistered
)

func (s Slot) String() string {
	switch s {
	case SlotAssigned:
		return "assigned"
	case SlotNonAssigned:
		return "nonassigned"
	case SlotRegistered:
		return "registered"
	default:
		return "none"
	}
}

// Collections is a snapshot of the three need lists. Methods never modify
// the receiver's slices; they return a new value.
type Collections struct {
	Assigned    []domain.Need `json:"assigned"`
	NonAssigned []domain.Need `json:"non_assigned"`
	Registered  []domain.Need `json:"registered"`
}

// Partition sorts loaded needs into collections by relation type. Needs
// without an activity relation go to NonAssigned.
func Partition(needs []domain.Need) Collections {
	var c Collections
	for _, n := range needs {
		switch n.ActivityRelationType {
		case domain.RelationAssigned:
			c.Assigned = append(c.Assigned, n)
		case domain.RelationRegistered:
			c.Registered = append(c.Registered, n)
		default:
			c.NonAssigned = append(c.NonAssigned, n)
		}
	}
	return c
}

func (c Collections) slot(s Slot) []domain.Need {
	switch s {
	case SlotAssigned:
		return c.Assigned
	case SlotNonAssigned:
		return c.NonAssigned
	case SlotRegistered:
		return c.Registered
	}
	return nil
}

func (c Collections) withSlot(s Slot, needs []domain.Need) Collections {
	switch s {
	case SlotAssigned:
		c.Assigned = needs
	case SlotNonAssigned:
		c.NonAssigned = needs
	case SlotRegistered:
		c.Registered = needs
	}
	return c
}

// Find returns the need with id and the collection holding it.
func (c Collections) Find(id string) (domain.Need, Slot, bool) {
	for _, s := range []Slot{SlotAssigned, SlotNonAssigned, SlotRegistered} {
		for _, n := range c.slot(s) {
			if n.ID == id {
				return n, s, true
			}
		}
	}
	return domain.Need{}, SlotNone, false
}

// without drops the need with id, keeping every other need.
func without(needs []domain.Need, id string) []domain.Need {
	out := make([]domain.Need, 0, len(needs))
	for _, n := range needs {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return out
}

// Move removes the need with need.ID from the from collection and appends
// need to the to collection.
func (c Collections) Move(from, to Slot, need domain.Need) Collections {
	c = c.withSlot(from, without(c.slot(from), need.ID))
	dst := append(append([]domain.Need(nil), c.slot(to)...), need)
	return c.withSlot(to, dst)
}

// Replace swaps the stored copy of need in place, leaving its collection
// unchanged.
func (c Collections) Replace(need domain.Need) Collections {
	_, s, ok := c.Find(need.ID)
	if !ok {
		return c
	}
	src := c.slot(s)
	out := make([]domain.Need, len(src))
	for i, n := range src {
		if n.ID == need.ID {
			out[i] = need
		} else {
			out[i] = n
		}
	}
	return c.withSlot(s, out)
}
