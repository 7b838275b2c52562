// Package schedule classifies need timing against an activity's primary need
// and construction window, and resolves phase deadlines.
//
// Everything here is pure: inputs are parsed into local values and never
// written back.
package schedule

import (
	"strings"
	"time"

	"roadwork/internal/domain"
)

// TimeFactor is the compatibility category of one window against another.
type TimeFactor int

const (
	// FactorUnknown means no comparison was possible.
	FactorUnknown TimeFactor = iota
	// FactorIncompatible: compare starts after reference's latest date.
	FactorIncompatible
	// FactorModerate: compare's preferred timing trails reference's.
	FactorModerate
	// FactorMinor: compare still overlaps reference's earliest edge.
	FactorMinor
	// FactorCompatible: aligned, or compare precedes reference.
	FactorCompatible
)

func (f TimeFactor) String() string {
	switch f {
	case FactorIncompatible:
		return "incompatible"
	case FactorModerate:
		return "moderate"
	case FactorMinor:
		return "minor"
	case FactorCompatible:
		return "compatible"
	default:
		return "unknown"
	}
}

// DateWindow is an (earliest, optimum, latest) triple. The ordering
// Early <= Optimum <= Late is expected but not required.
type DateWindow struct {
	Early   time.Time
	Optimum time.Time
	Late    time.Time
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// ParseDate parses an ISO date or timestamp. ok is false for blank or
// unparsable input.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseOptionalDate is ParseDate for nullable fields.
func ParseOptionalDate(s *string) (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	return ParseDate(*s)
}

// ParseWindow builds a window from three date strings. It returns nil when
// any of them is missing or unparsable.
func ParseWindow(early, optimum, late string) *DateWindow {
	e, ok := ParseDate(early)
	if !ok {
		return nil
	}
	o, ok := ParseDate(optimum)
	if !ok {
		return nil
	}
	l, ok := ParseDate(late)
	if !ok {
		return nil
	}
	return &DateWindow{Early: e, Optimum: o, Late: l}
}

// NeedWindow returns the need's finish window, or nil if it cannot be parsed.
func NeedWindow(n *domain.Need) *DateWindow {
	if n == nil {
		return nil
	}
	return ParseWindow(n.FinishEarlyTo, n.FinishOptimumTo, n.FinishLateTo)
}

// Classify compares two windows. The checks run in order and the first
// match wins.
func Classify(compare, reference *DateWindow) TimeFactor {
	if compare == nil || reference == nil {
		return FactorUnknown
	}
	switch {
	case compare.Early.After(reference.Late):
		return FactorIncompatible
	case compare.Early.After(reference.Optimum) || compare.Optimum.After(reference.Optimum):
		return FactorModerate
	case compare.Optimum.After(reference.Early) || compare.Late.After(reference.Early):
		return FactorMinor
	default:
		return FactorCompatible
	}
}

// ClassifyNeeds classifies need against the primary need's window.
func ClassifyNeeds(need, primary *domain.Need) TimeFactor {
	return Classify(NeedWindow(need), NeedWindow(primary))
}
