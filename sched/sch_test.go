package sched

import (
	"testing"

	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
)

func TestPdschCollisionDetection(t *testing.T) {
	g := testSlotGrid(t, 0)
	var dci nr.DciDl

	if _, res := g.Pdschs.AllocSiPdsch(0, nr.GrantFromInterval(nr.NewPrbInterval(0, 8)), &dci); !res.Ok() {
		t.Fatalf("first alloc failed: %s", res)
	}
	if _, res := g.Pdschs.AllocSiPdsch(0, nr.GrantFromInterval(nr.NewPrbInterval(4, 12)), &dci); res != AllocSchCollision {
		t.Fatalf("expected sch_collision, got %s", res)
	}
	if _, res := g.Pdschs.AllocSiPdsch(0, nr.GrantFromInterval(nr.NewPrbInterval(8, 16)), &dci); !res.Ok() {
		t.Fatalf("disjoint alloc failed: %s", res)
	}
}

func TestPdschCommonSsCoresetBounds(t *testing.T) {
	// CORESET#0 covers PRBs [0, 48): a common-SS DCI 1_0 grant may not
	// reach past it.
	g := testSlotGrid(t, 0)
	var dci nr.DciDl

	if _, res := g.Pdschs.AllocSiPdsch(0, nr.GrantFromInterval(nr.NewPrbInterval(40, 56)), &dci); res != AllocSchCollision {
		t.Fatalf("expected sch_collision outside coreset bounds, got %s", res)
	}
	if _, res := g.Pdschs.AllocSiPdsch(0, nr.GrantFromInterval(nr.NewPrbInterval(40, 48)), &dci); !res.Ok() {
		t.Fatalf("in-bounds alloc failed: %s", res)
	}
}

func TestPdschRivCommonSsOffset(t *testing.T) {
	// With CORESET#0 configured, the common-SS DCI 1_0 RIV is computed
	// over the coreset width with coreset-relative PRB start.
	g := testSlotGrid(t, 0)
	var dci nr.DciDl

	grant := nr.GrantFromInterval(nr.NewPrbInterval(8, 16))
	if _, res := g.Pdschs.AllocSiPdsch(0, grant, &dci); !res.Ok() {
		t.Fatalf("alloc failed: %s", res)
	}
	want := uint64(nr.RivType1(48, 8, 8))
	if dci.FreqDomainAssignment != want {
		t.Fatalf("freq assignment = %d, want %d", dci.FreqDomainAssignment, want)
	}
}

func TestPdschOccupiedPrbsFoldsExcluded(t *testing.T) {
	g := testSlotGrid(t, 0)
	mask := g.Pdschs.OccupiedPrbs(0, nr.DciFormat10)
	// PRBs past the coreset#0 region read as occupied.
	if !mask.Test(48) || !mask.Test(99) {
		t.Fatal("excluded PRBs must appear occupied for common DCI 1_0")
	}
	if mask.Test(0) {
		t.Fatal("coreset region must be free")
	}
}

func TestPdschWrongSlotDirection(t *testing.T) {
	cell := testCellConfig()
	cell.Tdd = &TddPattern{PeriodSlots: 10, DlSlots: 6, UlSlots: 3}
	bwp, err := newBwpParams(&cell, testSchedArgs(), 0, 0, cell.Bwps[0], log.Discard())
	if err != nil {
		t.Fatalf("newBwpParams: %v", err)
	}
	pool := NewSoftbufferPool(100, 2)

	// Slot 8 is UL-only.
	g := NewBwpSlotGrid(bwp, 8, pool)
	var dci nr.DciDl
	if _, res := g.Pdschs.AllocSiPdsch(0, nr.GrantFromInterval(nr.NewPrbInterval(0, 8)), &dci); res != AllocNoSchSpace {
		t.Fatalf("expected no_sch_space in UL slot, got %s", res)
	}
	var udci nr.DciUl
	if _, res := g.Puschs.AllocPusch(nr.SearchSpaceTypeCommon1, nr.GrantFromInterval(nr.NewPrbInterval(0, 8)), &udci); !res.Ok() {
		t.Fatalf("PUSCH in UL slot failed: %s", res)
	}

	// Slot 2 is DL-only.
	g2 := NewBwpSlotGrid(bwp, 2, pool)
	if _, res := g2.Puschs.AllocPusch(nr.SearchSpaceTypeCommon1, nr.GrantFromInterval(nr.NewPrbInterval(0, 8)), &udci); res != AllocNoSchSpace {
		t.Fatalf("expected no_sch_space for PUSCH in DL slot, got %s", res)
	}
}

func TestPuschRules(t *testing.T) {
	g := testSlotGrid(t, 0)
	var dci nr.DciUl

	rbgs := nr.NewRbgBitmap(13)
	rbgs.Set(0)
	if _, res := g.Puschs.AllocPusch(nr.SearchSpaceTypeCommon1, nr.GrantFromRbgs(rbgs), &dci); res != AllocInvalidGrantParams {
		t.Fatalf("alloc type 0 in common SS must be rejected, got %s", res)
	}

	if _, res := g.Puschs.AllocPusch(nr.SearchSpaceTypeCommon1, nr.GrantFromInterval(nr.NewPrbInterval(0, 10)), &dci); !res.Ok() {
		t.Fatalf("PUSCH alloc failed: %s", res)
	}
	want := uint64(nr.RivType1(100, 0, 10))
	if dci.FreqDomainAssignment != want {
		t.Fatalf("freq assignment = %d, want %d", dci.FreqDomainAssignment, want)
	}

	if _, res := g.Puschs.AllocPusch(nr.SearchSpaceTypeCommon1, nr.GrantFromInterval(nr.NewPrbInterval(5, 15)), &dci); res != AllocSchCollision {
		t.Fatalf("expected sch_collision, got %s", res)
	}
}

func TestZeroWidthGrantRejected(t *testing.T) {
	g := testSlotGrid(t, 0)
	var dci nr.DciDl
	if _, res := g.Pdschs.AllocSiPdsch(0, nr.GrantFromInterval(nr.NewPrbInterval(5, 5)), &dci); res != AllocInvalidGrantParams {
		t.Fatalf("expected invalid_grant_params for empty grant, got %s", res)
	}
	var udci nr.DciUl
	if _, res := g.Puschs.AllocPusch(nr.SearchSpaceTypeCommon1, nr.GrantFromInterval(nr.NewPrbInterval(0, 0)), &udci); res != AllocInvalidGrantParams {
		t.Fatalf("expected invalid_grant_params for empty UL grant, got %s", res)
	}
}

func TestPdschCancelRevertsMask(t *testing.T) {
	g := testSlotGrid(t, 0)
	var dci nr.DciDl
	grant := nr.GrantFromInterval(nr.NewPrbInterval(0, 8))
	if _, res := g.Pdschs.AllocSiPdsch(0, grant, &dci); !res.Ok() {
		t.Fatalf("alloc failed: %s", res)
	}
	g.Pdschs.CancelLastPdsch()
	if _, res := g.Pdschs.AllocSiPdsch(0, grant, &dci); !res.Ok() {
		t.Fatalf("re-alloc after cancel failed: %s", res)
	}
}
