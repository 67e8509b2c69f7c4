package sched

import (
	"testing"

	"github.com/gnbsched/gnbsched/nr"
)

func testSlotGrid(t *testing.T, slotIdx uint32) *BwpSlotGrid {
	t.Helper()
	bwp := testBwpParams(t, testSchedArgs())
	return NewBwpSlotGrid(bwp, slotIdx, NewSoftbufferPool(100, 4))
}

func testUeParams(t *testing.T, bwp *BwpParams, rnti nr.Rnti) *UeCarrierParams {
	t.Helper()
	cfg := NewUeCfgManager(0)
	cell := testCellConfig()
	cfg.Phy = defaultUePhyFromBwp(&cell.Bwps[0])
	return NewUeCarrierParams(rnti, bwp, cfg)
}

func TestPdcchSiAndRarAllocation(t *testing.T) {
	g := testSlotGrid(t, 0)

	pdcch, res := g.Pdcchs.AllocSiPdcch(0, siAggrIdx)
	if !res.Ok() {
		t.Fatalf("SI alloc failed: %s", res)
	}
	if pdcch.Dci.Ctx.Rnti != nr.SiRnti || pdcch.Dci.Ctx.SsType != nr.SearchSpaceTypeCommon0 {
		t.Fatalf("SI dci ctx wrong: %+v", pdcch.Dci.Ctx)
	}

	rar, res := g.Pdcchs.AllocRarPdcch(1, rarAggrIdx)
	if !res.Ok() {
		t.Fatalf("RAR alloc failed: %s", res)
	}
	if rar.Dci.Ctx.RntiType != nr.RntiTypeRA || rar.Dci.Ctx.SsType != nr.SearchSpaceTypeCommon1 {
		t.Fatalf("RAR dci ctx wrong: %+v", rar.Dci.Ctx)
	}
	if rar.Dci.Ctx.Location.L != rarAggrIdx {
		t.Fatalf("RAR aggregation wrong: %+v", rar.Dci.Ctx.Location)
	}
	if g.Pdcchs.NofAllocations() != 2 {
		t.Fatalf("NofAllocations = %d", g.Pdcchs.NofAllocations())
	}
}

// Two L=4 DCIs in an 8-CCE coreset: the allocator must place both on
// disjoint CCE ranges even when the direct candidate choices collide,
// by revisiting earlier placements.
func TestPdcchBacktracking(t *testing.T) {
	g := testSlotGrid(t, 0)
	bwp := g.Cfg

	ueA := testUeParams(t, bwp, 0x4601)
	ueB := testUeParams(t, bwp, 0x4602)

	if _, res := g.Pdcchs.AllocDlPdcch(nr.RntiTypeC, 1, 2, ueA); !res.Ok() {
		t.Fatalf("first L=4 alloc failed: %s", res)
	}
	if _, res := g.Pdcchs.AllocDlPdcch(nr.RntiTypeC, 1, 2, ueB); !res.Ok() {
		t.Fatalf("second L=4 alloc failed: %s", res)
	}

	locA := g.Dl.PdcchDl[0].Dci.Ctx.Location
	locB := g.Dl.PdcchDl[1].Dci.Ctx.Location
	if rangesOverlap(locA, locB) {
		t.Fatalf("CCE collision: %+v vs %+v", locA, locB)
	}

	// A third L=4 cannot fit in 8 CCEs.
	ueC := testUeParams(t, bwp, 0x4603)
	if _, res := g.Pdcchs.AllocDlPdcch(nr.RntiTypeC, 1, 2, ueC); res != AllocNoCchSpace {
		t.Fatalf("expected no_cch_space, got %s", res)
	}
	// Failure must leave the previous allocations in place.
	if g.Pdcchs.NofAllocations() != 2 || len(g.Dl.PdcchDl) != 2 {
		t.Fatal("failed alloc disturbed previous state")
	}
	locA2 := g.Dl.PdcchDl[0].Dci.Ctx.Location
	locB2 := g.Dl.PdcchDl[1].Dci.Ctx.Location
	if rangesOverlap(locA2, locB2) {
		t.Fatal("restored locations overlap")
	}
}

// Deterministic choice: same requests yield the same CCE positions.
func TestPdcchDeterminism(t *testing.T) {
	run := func() []nr.DciLocation {
		g := testSlotGrid(t, 3)
		ueA := testUeParams(t, g.Cfg, 0x4601)
		g.Pdcchs.AllocSiPdcch(0, siAggrIdx)
		g.Pdcchs.AllocDlPdcch(nr.RntiTypeC, 1, 2, ueA)
		var locs []nr.DciLocation
		for i := range g.Dl.PdcchDl {
			locs = append(locs, g.Dl.PdcchDl[i].Dci.Ctx.Location)
		}
		return locs
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("different allocation counts: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("nondeterministic position %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestPdcchCancelLast(t *testing.T) {
	g := testSlotGrid(t, 0)
	if _, res := g.Pdcchs.AllocSiPdcch(0, siAggrIdx); !res.Ok() {
		t.Fatalf("SI alloc failed: %s", res)
	}
	g.Pdcchs.CancelLastPdcch()
	if g.Pdcchs.NofAllocations() != 0 || len(g.Dl.PdcchDl) != 0 {
		t.Fatal("cancel did not remove the allocation")
	}
	// The freed CCEs are available again.
	if _, res := g.Pdcchs.AllocSiPdcch(0, siAggrIdx); !res.Ok() {
		t.Fatalf("re-alloc after cancel failed: %s", res)
	}
}

func TestPdcchArgValidation(t *testing.T) {
	g := testSlotGrid(t, 0)
	ue := testUeParams(t, g.Cfg, 0x4601)

	// Unknown search space.
	if _, res := g.Pdcchs.AllocDlPdcch(nr.RntiTypeC, 7, 2, ue); res != AllocInvalidGrantParams {
		t.Fatalf("expected invalid_grant_params, got %s", res)
	}
	// Aggregation level without candidates.
	if _, res := g.Pdcchs.AllocDlPdcch(nr.RntiTypeC, 1, 4, ue); res != AllocInvalidGrantParams {
		t.Fatalf("expected invalid_grant_params for L=16, got %s", res)
	}
	// SI RNTI in a common1 search space is not allowed.
	if _, res := g.Pdcchs.AllocSiPdcch(1, siAggrIdx); res != AllocInvalidGrantParams {
		t.Fatalf("expected invalid_grant_params for SI in common1, got %s", res)
	}
}

func rangesOverlap(a, b nr.DciLocation) bool {
	la, lb := nr.AggrLevel(a.L), nr.AggrLevel(b.L)
	return a.Ncce < b.Ncce+lb && b.Ncce < a.Ncce+la
}
