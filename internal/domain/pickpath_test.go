package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		code string
		zone string
		want LocationCoord
	}{
		{"Z1-A02-B03-L01-P05", "", LocationCoord{Zone: "Z1", Aisle: 2, Bay: 3, Level: 1, Position: 5}},
		{"Z1-02-03-01-05", "", LocationCoord{Zone: "Z1", Aisle: 2, Bay: 3, Level: 1, Position: 5}},
		{"z3-aisle-4-bay 2", "", LocationCoord{Zone: "Z3", Aisle: 4, Bay: 2}},
		{"Z07-A1", "", LocationCoord{Zone: "Z7", Aisle: 1}},
		{"BIN-7", "", LocationCoord{Zone: "BIN", Aisle: 7}},
		{"Z1-A02-B03", "FAST", LocationCoord{Zone: "FAST", Aisle: 2, Bay: 3}},
		{"", "", LocationCoord{Zone: "Z0"}},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLocation(tt.code, tt.zone))
		})
	}
}

func TestDistance(t *testing.T) {
	a := LocationCoord{Zone: "Z1", Aisle: 1, Bay: 1, Position: 1}
	b := LocationCoord{Zone: "Z1", Aisle: 3, Bay: 2, Position: 4}
	assert.Equal(t, 200+10+3, Distance(a, b))
	assert.Equal(t, Distance(a, b), Distance(b, a))

	c := b
	c.Zone = "Z2"
	assert.Equal(t, 10000+213, Distance(a, c))
}

func stopAt(code string) PickStop {
	return PickStop{LocationID: code, LocationCode: code, Coord: ParseLocation(code, "")}
}

func TestOrderStops_ZoneIsDominant(t *testing.T) {
	ordered := OrderStops([]PickStop{stopAt("Z2-A01-B01"), stopAt("Z1-A01-B01"), stopAt("Z1-A09-B09")})

	require.Len(t, ordered, 3)
	assert.Equal(t, "Z1-A01-B01", ordered[0].LocationCode)
	assert.Equal(t, "Z1-A09-B09", ordered[1].LocationCode, "the far stop in the same zone beats a zone change")
	assert.Equal(t, "Z2-A01-B01", ordered[2].LocationCode)
}

func TestOrderStops_NearestNeighbour(t *testing.T) {
	ordered := OrderStops([]PickStop{stopAt("Z1-A05-B01"), stopAt("Z1-A01-B01"), stopAt("Z1-A02-B09"), stopAt("Z1-A04-B01")})

	codes := make([]string, 0, len(ordered))
	for _, s := range ordered {
		codes = append(codes, s.LocationCode)
	}
	assert.Equal(t, []string{"Z1-A01-B01", "Z1-A02-B09", "Z1-A04-B01", "Z1-A05-B01"}, codes)
	assert.Empty(t, OrderStops(nil))
}

func TestAssignTotes(t *testing.T) {
	totes := AssignTotes([]string{"o1", "o2", "o3", "o4", "o5"}, 4)
	require.Len(t, totes, 5)
	assert.Equal(t, "TOTE-01", totes[3].Tote)
	assert.Equal(t, "TOTE-02", totes[4].Tote)

	assert.Equal(t, "TOTE-02", AssignTotes([]string{"a", "b", "c", "d", "e"}, 0)[4].Tote, "zero capacity falls back to the default")
}

func TestBuildWavePlan(t *testing.T) {
	near := &Location{ID: "loc-near", Code: "Z1-A01-B01", Type: LocationTypeBin}
	far := &Location{ID: "loc-far", Code: "Z2-A01-B01", Type: LocationTypeBin}
	alloc := func(id, order, loc string, qty string) *Allocation {
		return &Allocation{ID: id, OrderID: order, OrderLineID: order + "-1", ItemID: "i-" + id, LocationID: loc, Quantity: dec(qty)}
	}

	plan := BuildWavePlan("abcdef123456", []string{"o1", "o2"}, []PlanLine{
		{Allocation: alloc("a1", "o2", far.ID, "1"), SKU: "SKU-B", Location: far},
		{Allocation: alloc("a2", "o2", near.ID, "2"), SKU: "SKU-B", Location: near},
		{Allocation: alloc("a3", "o1", near.ID, "3"), SKU: "SKU-Z", Location: near},
	}, 1)

	assert.Equal(t, "CART-abcdef", plan.Cart)
	assert.Equal(t, []string{"TOTE-01", "TOTE-02"}, plan.ToteCodes())
	require.Len(t, plan.Stops, 2)
	assert.Equal(t, near.ID, plan.Stops[0].LocationID)
	require.Len(t, plan.Stops[0].Lines, 2)
	assert.Equal(t, "a3", plan.Stops[0].Lines[0].AllocationID, "lines sort by tote first")
	assert.Equal(t, "TOTE-01", plan.Stops[0].Lines[0].Tote)

	steps := WavePickSteps(plan)
	// cart + 2 totes + 2 location scans + 3 lines * 3
	require.Len(t, steps, 1+2+2+9)
	assert.Equal(t, StepScanContainer, steps[0].Kind())
	assert.Equal(t, 5, steps[0].Seq)
	assert.Equal(t, StepScanLocation, steps[3].Kind())
	assert.Equal(t, 20, steps[3].Seq)
	for i := 1; i < len(steps); i++ {
		assert.Greater(t, steps[i].Seq, steps[i-1].Seq, "sequence numbers must be unique and increasing")
	}
	last := steps[len(steps)-1]
	assert.Equal(t, StepEnterQty, last.Kind())
	require.NotNil(t, last.Ref)
	assert.Equal(t, StepRef{Stop: 1, Line: 0}, *last.Ref)
}

func TestWave_Lifecycle(t *testing.T) {
	_, err := NewWave(testTenant, []string{" ", ""})
	assert.ErrorIs(t, err, ErrEmptyWave)

	w, err := NewWave(testTenant, []string{"o1", "o2", "o1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2"}, w.OrderIDs())
	assert.Equal(t, WavePlanned, w.Status)

	plan := WavePlan{Cart: CartCode(w.ID), Totes: AssignTotes(w.OrderIDs(), 4)}
	require.NoError(t, w.Release("task-1", plan, "sup"))
	assert.Equal(t, WaveReleased, w.Status)
	assert.NotNil(t, w.ReleasedAt)
	assert.Equal(t, WaveOrderPicking, w.Orders[0].Status)
	assert.Equal(t, "TOTE-01", w.Orders[1].Tote)
	assert.ErrorIs(t, w.Release("task-2", plan, "sup"), ErrWaveNotPlanned)

	w.MarkOrdersDone()
	assert.Equal(t, WaveDone, w.Status)
	assert.Equal(t, WaveOrderDone, w.Orders[0].Status)
}
