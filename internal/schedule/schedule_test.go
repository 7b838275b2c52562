package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadwork/internal/domain"
)

func window(t *testing.T, e, o, l string) *DateWindow {
	t.Helper()
	w := ParseWindow(e, o, l)
	require.NotNil(t, w)
	return w
}

func strp(s string) *string { return &s }

func TestClassify(t *testing.T) {
	ref := window(t, "2025-01-01", "2025-01-02", "2025-01-03")

	assert.Equal(t, FactorUnknown, Classify(nil, ref))
	assert.Equal(t, FactorUnknown, Classify(ref, nil))
	assert.Equal(t, FactorUnknown, Classify(nil, nil))

	assert.Equal(t, FactorIncompatible, Classify(window(t, "2025-01-04", "2025-01-05", "2025-01-06"), ref))
	assert.Equal(t, FactorModerate, Classify(window(t, "2025-01-03", "2025-01-01", "2025-01-02"), ref))
	assert.Equal(t, FactorMinor, Classify(
		window(t, "2025-01-01", "2025-01-04", "2025-01-03"),
		window(t, "2025-01-03", "2025-01-04", "2025-01-05"),
	))
	assert.Equal(t, FactorCompatible, Classify(
		window(t, "2025-01-01", "2025-01-02", "2025-01-03"),
		window(t, "2025-01-05", "2025-01-06", "2025-01-07"),
	))
}

func TestClassifyNeedsDoesNotMutate(t *testing.T) {
	need := domain.Need{ID: "n", FinishEarlyTo: "2025-01-04", FinishOptimumTo: "2025-01-05", FinishLateTo: "2025-01-06T00:00:00Z"}
	primary := domain.Need{ID: "p", FinishEarlyTo: "2025-01-01", FinishOptimumTo: "2025-01-02", FinishLateTo: "2025-01-03"}
	before, beforePrimary := need, primary

	first := ClassifyNeeds(&need, &primary)
	second := ClassifyNeeds(&need, &primary)
	assert.Equal(t, FactorIncompatible, first)
	assert.Equal(t, first, second)
	assert.Equal(t, before, need)
	assert.Equal(t, beforePrimary, primary)
}

func TestClassifyMalformedWindow(t *testing.T) {
	good := domain.Need{FinishEarlyTo: "2025-01-01", FinishOptimumTo: "2025-01-02", FinishLateTo: "2025-01-03"}
	bad := domain.Need{FinishEarlyTo: "2025-01-01", FinishOptimumTo: "not-a-date", FinishLateTo: "2025-01-03"}
	missing := domain.Need{FinishEarlyTo: "2025-01-01"}

	assert.Equal(t, FactorUnknown, ClassifyNeeds(&bad, &good))
	assert.Equal(t, FactorUnknown, ClassifyNeeds(&good, &missing))
	assert.Equal(t, FactorUnknown, ClassifyNeeds(&good, nil))
}

func TestEvaluateLatestMarkers(t *testing.T) {
	activity := domain.Activity{EndOfConstruction: strp("2030-01-01")}
	w := ActivityWindow(activity)

	early := Evaluate(domain.Need{ID: "a", FinishLateTo: "2029-10-01"}, nil, w)
	assert.True(t, early.LatestRed)
	assert.False(t, early.LatestGreen)

	late := Evaluate(domain.Need{ID: "b", FinishLateTo: "2031-10-31"}, nil, w)
	assert.True(t, late.LatestGreen)
	assert.False(t, late.LatestRed)
}

func TestEvaluateEndChangeFlipsMarker(t *testing.T) {
	need := domain.Need{ID: "n", FinishLateTo: "2028-10-01"}

	m := Evaluate(need, nil, ActivityWindow(domain.Activity{EndOfConstruction: strp("2028-09-15")}))
	assert.True(t, m.LatestGreen)
	assert.False(t, m.LatestRed)

	m = Evaluate(need, nil, ActivityWindow(domain.Activity{EndOfConstruction: strp("2028-10-31")}))
	assert.False(t, m.LatestGreen)
	assert.True(t, m.LatestRed)
}

func TestEvaluateWithoutConstructionWindow(t *testing.T) {
	primary := domain.Need{ID: "p", IsPrimary: true, FinishEarlyTo: "2025-01-01", FinishOptimumTo: "2025-01-02", FinishLateTo: "2025-01-03"}
	late := domain.Need{ID: "late", FinishEarlyTo: "2025-02-01", FinishOptimumTo: "2025-02-02", FinishLateTo: "2025-02-03"}
	aligned := domain.Need{ID: "aligned", FinishEarlyTo: "2024-12-01", FinishOptimumTo: "2024-12-02", FinishLateTo: "2024-12-03"}

	for _, n := range []domain.Need{late, aligned} {
		m := Evaluate(n, &primary, ConstructionWindow{})
		assert.False(t, m.EarlyGreen)
		assert.False(t, m.WishGreen)
		assert.False(t, m.LatestRed)
		assert.False(t, m.LatestGreen)
		assert.Equal(t, m.TimeFactor != FactorCompatible, m.Border)
	}
	assert.True(t, Evaluate(late, &primary, ConstructionWindow{}).Border)
	assert.False(t, Evaluate(aligned, &primary, ConstructionWindow{}).Border)
}

func TestEvaluateActivityPrimaryNeutralAndFirst(t *testing.T) {
	activity := domain.Activity{EndOfConstruction: strp("2025-01-10")}
	needs := []domain.Need{
		{ID: "other", FinishEarlyTo: "2025-02-01", FinishOptimumTo: "2025-02-02", FinishLateTo: "2025-02-03"},
		{ID: "primary", IsPrimary: true, FinishEarlyTo: "2025-01-01", FinishOptimumTo: "2025-01-02", FinishLateTo: "2025-01-03"},
	}

	rows := EvaluateActivity(activity, needs)
	require.Len(t, rows, 2)
	assert.Equal(t, NeedMarkers{NeedID: "primary", Primary: true}, rows[0])
	assert.Equal(t, "other", rows[1].NeedID)
	assert.Equal(t, FactorIncompatible, rows[1].TimeFactor)
	assert.True(t, rows[1].Border)
	assert.False(t, rows[1].EarlyGreen)
	assert.True(t, rows[1].LatestGreen)
}

func TestDueDateBands(t *testing.T) {
	p := DefaultPolicy()
	due := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, BandSafe, p.Band(&due, due.Add(-4*day)))
	assert.Equal(t, BandNear, p.Band(&due, due.Add(-2*day)))
	assert.Equal(t, BandNear, p.Band(&due, due.Add(-3*day)))
	assert.Equal(t, BandNear, p.Band(&due, due))
	assert.Equal(t, BandOverdue, p.Band(&due, due.Add(day)))
	assert.Equal(t, BandOverdue, p.Band(&due, due.Add(2*day)))
	assert.Equal(t, BandSafe, p.Band(nil, due))
}

func TestResolveDueDate(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := domain.Activity{
		DateConsultEnd: strp("2025-06-03"),
		DateReportEnd:  strp("2025-07-01"),
		DateInfoEnd:    strp("2025-05-01"),
	}

	cases := []struct {
		status string
		want   time.Time
		soft   bool
		band   Band
	}{
		{"inconsult", time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), false, BandNear},
		{"verified", time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), false, BandNear},
		{"reporting", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), false, BandSafe},
		{"coordinated", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), false, BandOverdue},
		{"review", now.Add(7 * day), true, BandSafe},
		{"suspended", now.Add(7 * day), true, BandSafe},
	}
	for _, tc := range cases {
		a.Status = tc.status
		got := p.Resolve(a, now)
		assert.Equal(t, tc.want, got.At, tc.status)
		assert.Equal(t, tc.soft, got.Soft, tc.status)
		assert.Equal(t, tc.band, got.Band, tc.status)
	}

	a.Status = "reporting"
	a.DateReportEnd = nil
	got := p.Resolve(a, now)
	assert.True(t, got.Soft)
	assert.Equal(t, now.Add(7*day), got.At)
}
