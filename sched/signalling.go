package sched

import (
	"github.com/gnbsched/gnbsched/nr"
	"github.com/gnbsched/gnbsched/phy"
)

// defaultSsbPeriodicityMs applies when the upper layers leave the SSB
// periodicity unset (TS 38.213, clause 4.1).
const defaultSsbPeriodicityMs = 5

// maxSsbPerSlot bounds the SSB list of one slot result.
const maxSsbPerSlot = 1

// schedNzpCsiRs appends the NZP-CSI-RS resources whose periodicity
// matches the slot.
func schedNzpCsiRs(sets []phy.NzpCsiRsSet, sl nr.SlotPoint, list *[]phy.NzpCsiRsResource, bwp *BwpParams) {
	for i := range sets {
		for j := range sets[i].Resources {
			res := &sets[i].Resources[j]
			if !phy.CsiRsSend(res.Periodicity, sl) {
				continue
			}
			if len(*list) >= cap(*list) {
				bwp.Logger.Error("failed to allocate NZP-CSI RS: list full")
				return
			}
			*list = append(*list, *res)
		}
	}
}

// schedSsbBasic emits the SSB at the first slot of each periodicity
// interval, with the MIB updated for the current SFN and half-frame.
// Simplified: 15 kHz SCS, sub-3GHz carrier, position-in-burst 1000.
func schedSsbBasic(sl nr.SlotPoint, ssbPeriodicityMs uint32, mib phy.Mib, list *[]Ssb, bwp *BwpParams) {
	if len(*list) >= maxSsbPerSlot {
		bwp.Logger.Error("failed to allocate SSB: list full")
		return
	}
	if ssbPeriodicityMs == 0 {
		ssbPeriodicityMs = defaultSsbPeriodicityMs
	}

	slotsPerPeriod := ssbPeriodicityMs * sl.NofSlotsPerSubframe()
	if sl.ToUint()%slotsPerPeriod != 0 {
		return
	}

	mib.Sfn = sl.SFN()
	mib.Hrf = sl.SlotIdx() >= sl.NofSlotsPerFrame()/2
	mib.SsbIdx = 0

	*list = append(*list, Ssb{Pbch: phy.PackMib(&mib)})
}

// schedDlSignalling schedules the SSB and NZP-CSI-RS of the slot and
// reserves the SSB PRB region ahead of data allocation.
func schedDlSignalling(alloc *BwpSlotAllocator, cell *CellParams) {
	slPdcch := alloc.PdcchSlot()
	grid := alloc.TxSlotGrid()

	schedSsbBasic(slPdcch, cell.Cfg.SsbPeriodicityMs, cell.Mib, &grid.Dl.Ssb, alloc.Cfg())

	if len(grid.Dl.Ssb) > 0 {
		grid.ReservePdsch(nr.GrantFromInterval(alloc.Cfg().SsbReservation))
	}

	schedNzpCsiRs(cell.Cfg.NzpCsiRsSets, slPdcch, &grid.Dl.NzpCsiRs, alloc.Cfg())
}
