package sched

import (
	"testing"

	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
	"github.com/gnbsched/gnbsched/phy"
)

// testBwpConfig builds a 100-PRB FDD BWP with CORESET#0 (48 PRBs, 8
// CCEs), a common0 search space for SI and a common1 search space used
// for RA, UE DL and UE UL allocations.
func testBwpConfig() BwpConfig {
	cs0 := nr.ContiguousCoreset(0, 0, 48, 1)
	ss0 := nr.SearchSpace{ID: 0, CoresetID: 0, Type: nr.SearchSpaceTypeCommon0,
		NofCandidates: [nr.MaxNofAggrLevels]uint32{0, 2, 1, 0, 0},
		Formats:       []nr.DciFormat{nr.DciFormat10}}
	ss1 := nr.SearchSpace{ID: 1, CoresetID: 0, Type: nr.SearchSpaceTypeCommon1,
		NofCandidates: [nr.MaxNofAggrLevels]uint32{0, 2, 2, 0, 0},
		Formats:       []nr.DciFormat{nr.DciFormat10, nr.DciFormat00}}

	return BwpConfig{
		StartRb:       0,
		RbWidth:       100,
		RbgSizeCfg1:   true,
		RarWindowSize: 10,
		Pdcch: phy.PdcchConfig{
			Coresets:             []nr.Coreset{cs0},
			SearchSpaces:         []nr.SearchSpace{ss0, ss1},
			RaSearchSpacePresent: true,
			RaSearchSpaceID:      1,
		},
		PuschTimeRa: []PuschTimeConfig{{Msg3Delay: 6, K: 4, S: 0, L: 14}},
	}
}

func testCellConfig() CellConfig {
	return CellConfig{
		Pci:    1,
		NofPrb: 100,
		Bwps:   []BwpConfig{testBwpConfig()},
		Sibs:   []SibConfig{{Len: 41, PeriodRf: 160, WindowSlots: 20}},
	}
}

func testBwpParams(t *testing.T, args *SchedArgs) *BwpParams {
	t.Helper()
	cell := testCellConfig()
	bwp, err := newBwpParams(&cell, args, 0, 0, cell.Bwps[0], log.Discard())
	if err != nil {
		t.Fatalf("newBwpParams: %v", err)
	}
	return bwp
}

func testSchedArgs() *SchedArgs {
	args := DefaultSchedArgs()
	return &args
}

// testScheduler builds a configured single-cell scheduler.
func testScheduler(t *testing.T, args SchedArgs) *Scheduler {
	t.Helper()
	s := New(log.Discard())
	if err := s.Config(args, []CellConfig{testCellConfig()}); err != nil {
		t.Fatalf("Config: %v", err)
	}
	return s
}

// testUeCfg builds a valid single-carrier UE configuration with one DRB.
func testUeCfg(cell CellConfig) UeCfg {
	return UeCfg{
		MaxHarqTx: 4,
		Carriers:  []UeCcCfg{{Active: true, CC: 0}},
		Phy:       defaultUePhyFromBwp(&cell.Bwps[0]),
		LcChToAdd: []UeLcChCfg{{Lcid: 4, Cfg: BearerConfig{Direction: BearerDirBoth, Group: 0}}},
	}
}

// runSlot drives one full driver iteration.
func runSlot(s *Scheduler, sl nr.SlotPoint) *DlResult {
	s.SlotIndication(sl)
	return s.GetDLSched(sl, 0)
}

func slot0() nr.SlotPoint { return nr.NewSlotPoint(0, 0, 0) }
