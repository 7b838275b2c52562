package schedule

import (
	"time"

	"roadwork/internal/domain"
)

// ConstructionWindow is an activity's planned construction period. Either
// end may be missing.
type ConstructionWindow struct {
	Start *time.Time
	End   *time.Time
}

// ActivityWindow parses the construction window of a.
func ActivityWindow(a domain.Activity) ConstructionWindow {
	var w ConstructionWindow
	if t, ok := ParseOptionalDate(a.StartOfConstruction); ok {
		w.Start = &t
	}
	if t, ok := ParseOptionalDate(a.EndOfConstruction); ok {
		w.End = &t
	}
	return w
}

// NeedMarkers are the display flags of one need row.
type NeedMarkers struct {
	NeedID      string     `json:"need_id"`
	Name        string     `json:"name"`
	Primary     bool       `json:"primary"`
	TimeFactor  TimeFactor `json:"time_factor"`
	Border      bool       `json:"border"`
	EarlyGreen  bool       `json:"early_green"`
	WishGreen   bool       `json:"wish_green"`
	LatestRed   bool       `json:"latest_red"`
	LatestGreen bool       `json:"latest_green"`
}

// Evaluate computes the markers for need against the primary need and the
// construction window. The primary need itself is always neutral.
func Evaluate(need domain.Need, primary *domain.Need, w ConstructionWindow) NeedMarkers {
	m := NeedMarkers{NeedID: need.ID, Name: need.Name}
	if primary != nil && primary.ID == need.ID {
		m.Primary = true
		return m
	}
	m.TimeFactor = ClassifyNeeds(&need, primary)
	m.Border = m.TimeFactor != FactorCompatible
	if w.End == nil {
		return m
	}
	end := *w.End
	if t, ok := ParseDate(need.FinishEarlyTo); ok {
		m.EarlyGreen = !t.After(end)
	}
	if t, ok := ParseDate(need.FinishOptimumTo); ok {
		m.WishGreen = !t.After(end)
	}
	if t, ok := ParseDate(need.FinishLateTo); ok {
		m.LatestRed = t.Before(end)
		m.LatestGreen = !t.Before(end)
	}
	return m
}

// PrimaryOf returns the primary need among needs, or nil.
func PrimaryOf(needs []domain.Need) *domain.Need {
	for i := range needs {
		if needs[i].IsPrimary {
			p := needs[i]
			return &p
		}
	}
	return nil
}

// EvaluateActivity returns markers for every need, primary first, the rest in
// input order.
func EvaluateActivity(a domain.Activity, needs []domain.Need) []NeedMarkers {
	primary := PrimaryOf(needs)
	w := ActivityWindow(a)
	out := make([]NeedMarkers, 0, len(needs))
	if primary != nil {
		out = append(out, Evaluate(*primary, primary, w))
	}
	for _, n := range needs {
		if primary != nil && n.ID == primary.ID {
			continue
		}
		out = append(out, Evaluate(n, primary, w))
	}
	return out
}
