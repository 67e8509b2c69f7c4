package sched

import (
	"testing"

	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
)

// Scenario: SIB1 with period 160 frames, 41 bytes, 20-slot window. The
// window opens at slot 0 of even frames; the allocation uses search
// space 0, L=2, SI-RNTI, and at least 8 PRBs inside coreset#0 bounds.
func TestSib1Scheduling(t *testing.T) {
	s := testScheduler(t, DefaultSchedArgs())
	defer s.Stop()

	sl := slot0()
	res := runSlot(s, sl)

	if len(res.SibIdxs) != 1 || res.SibIdxs[0] != 0 {
		t.Fatalf("sib idxs = %v", res.SibIdxs)
	}
	var siPdcch *PdcchDl
	for i := range res.PdcchDl {
		if res.PdcchDl[i].Dci.Ctx.RntiType == nr.RntiTypeSI {
			siPdcch = &res.PdcchDl[i]
		}
	}
	if siPdcch == nil {
		t.Fatal("no SI PDCCH")
	}
	if siPdcch.Dci.Ctx.Rnti != nr.SiRnti || siPdcch.Dci.Ctx.SsID != 0 {
		t.Fatalf("SI dci ctx: %+v", siPdcch.Dci.Ctx)
	}
	if siPdcch.Dci.Ctx.Location.L != siAggrIdx {
		t.Fatalf("SI aggregation index = %d", siPdcch.Dci.Ctx.Location.L)
	}
	if siPdcch.Dci.Sii != 0 {
		t.Fatalf("sii = %d", siPdcch.Dci.Sii)
	}
	if len(res.Pdsch) != 1 {
		t.Fatalf("expected 1 PDSCH, got %d", len(res.Pdsch))
	}
	grant := res.Pdsch[0].Sch.Grant
	if grant.NofPrb < 8 {
		t.Fatalf("SI grant too small: %d PRBs", grant.NofPrb)
	}
	if grant.Prbs.Prbs().Stop() > 48 {
		t.Fatalf("SI grant outside coreset#0 bounds: %s", grant.Prbs.Prbs())
	}
	if res.Pdsch[0].Softbuffer == nil {
		t.Fatal("SI PDSCH must carry a softbuffer")
	}

	// SIB1 appears only in slots with slot_idx==0 and even SFN.
	for i := 0; i < 19; i++ {
		sl = sl.Add(1)
		res = runSlot(s, sl)
		if len(res.SibIdxs) != 0 {
			t.Fatalf("unexpected SIB at %s", sl)
		}
	}
	// Slot 2.0: next window.
	sl = sl.Add(1)
	res = runSlot(s, sl)
	if sl.SFN() != 2 || sl.SlotIdx() != 0 {
		t.Fatalf("slot bookkeeping wrong: %s", sl)
	}
	if len(res.SibIdxs) != 1 {
		t.Fatalf("expected SIB1 at %s", sl)
	}
}

func TestSiMessageWindow(t *testing.T) {
	// SI message n=1: window opens when sfn % period == x/N and
	// slot == x % N, with x = (n-1)*win_len = 0.
	cell := testCellConfig()
	cell.Sibs = append(cell.Sibs, SibConfig{Len: 30, PeriodRf: 4, WindowSlots: 10})

	s := New(log.Discard())
	if err := s.Config(DefaultSchedArgs(), []CellConfig{cell}); err != nil {
		t.Fatalf("Config: %v", err)
	}
	defer s.Stop()

	res := runSlot(s, slot0())
	// Both SIB1 and SI message 1 open at slot 0.0 and fit.
	if len(res.SibIdxs) != 2 {
		t.Fatalf("sib idxs = %v", res.SibIdxs)
	}
	// The two SI PDSCHs must not collide.
	if len(res.Pdsch) != 2 {
		t.Fatalf("expected 2 PDSCHs, got %d", len(res.Pdsch))
	}
	a := res.Pdsch[0].Sch.Grant.Prbs.Prbs()
	b := res.Pdsch[1].Sch.Grant.Prbs.Prbs()
	if a.Overlaps(b) {
		t.Fatalf("SI grants overlap: %s vs %s", a, b)
	}
	// The second SI message carries sii=1.
	seenSii1 := false
	for i := range res.PdcchDl {
		if res.PdcchDl[i].Dci.Ctx.RntiType == nr.RntiTypeSI && res.PdcchDl[i].Dci.Sii == 1 {
			seenSii1 = true
		}
	}
	if !seenSii1 {
		t.Fatal("SI message must carry sii=1")
	}
}
