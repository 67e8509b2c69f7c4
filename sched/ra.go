package sched

import (
	"errors"

	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
)

// prachDuration is the PRACH occasion length in slots.
const prachDuration = 1

// rarAggrIdx is the aggregation index of RAR DCIs (L = 2).
const rarAggrIdx = 1

// ErrRarGrantsFull rejects a PRACH when the matching RAR record already
// carries the maximum number of Msg3 grants.
var ErrRarGrantsFull = errors.New("sched: maximum number of RAR grants reached")

// pendingRar queues the preambles detected on one {prach_slot, ra-rnti}
// together with the response window they must be answered in.
type pendingRar struct {
	raRnti     nr.Rnti
	prachSlot  nr.SlotPoint
	rarWin     nr.SlotInterval
	msg3Grants []RarInfo
}

// RaSched queues detected PRACH preambles, opens RAR windows and pairs
// each RAR PDSCH with its Msg3 PUSCH grant.
type RaSched struct {
	bwp    *BwpParams
	logger *log.Logger

	pendingRars []pendingRar
}

// NewRaSched builds the RAR scheduler of one BWP.
func NewRaSched(bwp *BwpParams) *RaSched {
	return &RaSched{bwp: bwp, logger: bwp.Logger.Module("ra")}
}

// Empty reports whether no RARs are pending.
func (r *RaSched) Empty() bool { return len(r.pendingRars) == 0 }

// DlRachInfo enqueues a detected PRACH (TS 38.321, 5.1.3). Preambles of
// the same occasion aggregate into one RAR record; a new occasion opens
// its window at the first DL slot after the PRACH.
func (r *RaSched) DlRachInfo(info RarInfo) error {
	raRnti := info.RaRnti()

	r.logger.Info("new PRACH", "slot", info.PrachSlot.String(), "preamble", info.PreambleIdx,
		"ra_rnti", raRnti, "temp_crnti", info.TempCrnti, "ta_cmd", info.TaCmd, "msg3_size", info.Msg3Size)

	for i := range r.pendingRars {
		p := &r.pendingRars[i]
		if p.prachSlot.Equal(info.PrachSlot) && p.raRnti == raRnti {
			if len(p.msg3Grants) >= MaxGrants {
				r.logger.Warn("PRACH ignored: maximum RAR grants per occasion reached", "ra_rnti", raRnti)
				return ErrRarGrantsFull
			}
			p.msg3Grants = append(p.msg3Grants, info)
			return nil
		}
	}

	p := pendingRar{raRnti: raRnti, prachSlot: info.PrachSlot}
	for t := info.PrachSlot.Add(prachDuration); t.Sub(info.PrachSlot) < int(r.bwp.NofSlots())+prachDuration; t = t.Add(1) {
		if r.bwp.IsDl(t.SlotIdx()) {
			p.rarWin = nr.SlotInterval{Start: t, Stop: t.Add(int(r.bwp.Cfg.RarWindowSize))}
			break
		}
	}
	p.msg3Grants = append(p.msg3Grants, info)
	r.pendingRars = append(r.pendingRars, p)
	return nil
}

// RunSlot attempts to schedule the pending RARs whose window covers the
// PDCCH slot. RARs are answered in arrival order; expired ones are
// dropped with a warning.
func (r *RaSched) RunSlot(alloc *BwpSlotAllocator) {
	pdcchSlot := alloc.PdcchSlot()
	msg3Slot := pdcchSlot.Add(int(r.bwp.PuschRaList[0].Msg3Delay))
	if !r.bwp.IsDl(pdcchSlot.SlotIdx()) || !r.bwp.IsUl(msg3Slot.SlotIdx()) {
		return
	}

	for i := 0; i < len(r.pendingRars); {
		rar := &r.pendingRars[i]

		if !rar.rarWin.Contains(pdcchSlot) {
			if pdcchSlot.AtOrAfter(rar.rarWin.Stop) {
				r.logger.Warn("could not transmit RAR within window",
					"window", rar.rarWin.String(), "prach_slot", rar.prachSlot.String(),
					"pdcch_slot", pdcchSlot.String())
				r.pendingRars = append(r.pendingRars[:i], r.pendingRars[i+1:]...)
				continue
			}
			// Windows open in FIFO order: nothing later is due yet.
			return
		}

		nofAllocs, res := r.allocatePendingRar(alloc, rar)
		if res.Ok() {
			if nofAllocs == len(rar.msg3Grants) {
				r.pendingRars = append(r.pendingRars[:i], r.pendingRars[i+1:]...)
				continue
			}
			// Partial allocation: shift the unserved grants to the head
			// and stop for this slot.
			rar.msg3Grants = append(rar.msg3Grants[:0], rar.msg3Grants[nofAllocs:]...)
			return
		}
		// PDCCH exhaustion may still leave room for the next RAR; any
		// other cause stops the loop.
		if res != AllocNoCchSpace {
			return
		}
		i++
	}
}

// allocatePendingRar tries to place as many Msg3 grants of the RAR as
// the grid accepts, growing the PDSCH width from 4 PRBs until the code
// rate is valid, and dropping one grant at a time when space runs out.
func (r *RaSched) allocatePendingRar(alloc *BwpSlotAllocator, rar *pendingRar) (int, AllocResult) {
	prbs := alloc.TxSlotGrid().Pdschs.OccupiedPrbs(r.bwp.RaSearchSpace().ID, nr.DciFormat10)

	res := AllocOtherCause
	for nofGrants := len(rar.msg3Grants); nofGrants > 0; nofGrants-- {
		res = AllocInvalidCoderate
		startIdx := uint32(0)
		for nprb := uint32(4); nprb < r.bwp.Cfg.RbWidth && res == AllocInvalidCoderate; nprb++ {
			interv := prbs.FindEmptyInterval(nprb, startIdx)
			startIdx = interv.Start()
			if interv.Length() == nprb {
				res = alloc.AllocRarAndMsg3(rar.raRnti, rarAggrIdx, interv, rar.msg3Grants[:nofGrants])
			} else {
				res = AllocNoSchSpace
			}
		}
		if res.Ok() {
			return nofGrants, res
		}
		// Only lack of space justifies retrying with fewer grants.
		if res != AllocInvalidCoderate && res != AllocNoSchSpace {
			return 0, res
		}
	}
	r.logger.Info("RAR allocation postponed", "ra_rnti", rar.raRnti, "cause", res.String())
	return 0, res
}
