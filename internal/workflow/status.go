// Package workflow holds the activity status ordering and the transition
// guard shared by the API and its clients.
package workflow

import "fmt"

type Status string

const (
	StatusRequirement Status = "requirement"
	StatusReview      Status = "review"
	StatusInConsult   Status = "inconsult"
	StatusVerified    Status = "verified"
	StatusReporting   Status = "reporting"
	StatusCoordinated Status = "coordinated"
	StatusSuspended   Status = "suspended"
)

// rank is the forward ordering. coordinated and suspended share the last
// rank: they are siblings reachable from each other.
var rank = map[Status]int{
	StatusRequirement: 0,
	StatusReview:      1,
	StatusInConsult:   2,
	StatusVerified:    3,
	StatusReporting:   4,
	StatusCoordinated: 5,
	StatusSuspended:   5,
}

// ActivityStatuses lists the statuses an activity can hold, in forward order.
var ActivityStatuses = []Status{
	StatusReview,
	StatusInConsult,
	StatusVerified,
	StatusReporting,
	StatusCoordinated,
	StatusSuspended,
}

// Parse returns the status for s and whether it is a known status.
func Parse(s string) (Status, bool) {
	st := Status(s)
	_, ok := rank[st]
	return st, ok
}

// IsActivityStatus reports whether s may be held by an activity.
func IsActivityStatus(s Status) bool {
	_, ok := rank[s]
	return ok && s != StatusRequirement
}

func isTerminal(s Status) bool {
	return s == StatusCoordinated || s == StatusSuspended
}

// IsLater reports whether candidate lies strictly after reference. Nothing is
// later than suspended. Unknown statuses are never later.
func IsLater(candidate, reference Status) bool {
	if reference == StatusSuspended {
		return false
	}
	c, ok := rank[candidate]
	if !ok {
		return false
	}
	r, ok := rank[reference]
	if !ok {
		return false
	}
	return c > r
}

// IsTransitionAllowed reports whether an activity in current may move to
// candidate. Only forward moves are allowed, plus toggling between the two
// terminal siblings. Unknown statuses fail closed.
func IsTransitionAllowed(current, candidate Status) bool {
	c, ok := rank[current]
	if !ok {
		return false
	}
	n, ok := rank[candidate]
	if !ok {
		return false
	}
	if isTerminal(current) && isTerminal(candidate) && current != candidate {
		return true
	}
	return n > c
}

// TransitionError reports a status change rejected by the guard.
type TransitionError struct {
	From Status
	To   Status
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid activity status transition %s -> %s", e.From, e.To)
}

// EnsureTransition is the hard form of IsTransitionAllowed.
func EnsureTransition(current, candidate Status) error {
	if !IsTransitionAllowed(current, candidate) {
		return TransitionError{From: current, To: candidate}
	}
	return nil
}

// Option is one selectable status with its guard result.
type Option struct {
	Status  Status `json:"status"`
	Enabled bool   `json:"enabled"`
	Passed  bool   `json:"passed"`
}

// Options returns every activity status with whether it can be chosen next
// from current and whether it is already behind current.
func Options(current Status) []Option {
	out := make([]Option, 0, len(ActivityStatuses))
	for _, s := range ActivityStatuses {
		out = append(out, Option{
			Status:  s,
			Enabled: IsTransitionAllowed(current, s),
			Passed:  IsLater(current, s),
		})
	}
	return out
}
