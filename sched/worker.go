package sched

import (
	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
	"github.com/gnbsched/gnbsched/phy"
)

// bwpManager groups the per-BWP schedulers and resource grid.
type bwpManager struct {
	cfg       *BwpParams
	si        *SiSched
	ra        *RaSched
	grid      *BwpResGrid
	dataSched DataScheduler
}

func newBwpManager(bwp *BwpParams, cell *CellParams, pool *SoftbufferPool) *bwpManager {
	return &bwpManager{
		cfg:       bwp,
		si:        NewSiSched(bwp, cell.Cfg.Sibs, pool),
		ra:        NewRaSched(bwp),
		grid:      NewBwpResGrid(bwp, pool),
		dataSched: NewTimeRR(),
	}
}

// CcWorker orchestrates the scheduling of one cell for one slot.
type CcWorker struct {
	cfg    *CellParams
	logger *log.Logger

	bwps []*bwpManager

	slotUes  map[nr.Rnti]*SlotUe
	lastTxSl nr.SlotPoint
}

// NewCcWorker builds the worker of one cell.
func NewCcWorker(cell *CellParams, pool *SoftbufferPool) *CcWorker {
	w := &CcWorker{
		cfg:     cell,
		logger:  cell.Logger.Module("sched").With("cc", cell.CC),
		slotUes: make(map[nr.Rnti]*SlotUe),
	}
	for _, bwp := range cell.Bwps {
		w.bwps = append(w.bwps, newBwpManager(bwp, cell, pool))
	}
	return w
}

// DlRachInfo enqueues a detected PRACH into the common BWP RA scheduler.
func (w *CcWorker) DlRachInfo(info RarInfo) error {
	return w.bwps[0].ra.DlRachInfo(info)
}

// RunSlot generates the {slot, cc} scheduling decision. Must be called
// from the slot driver only.
func (w *CcWorker) RunSlot(txSl nr.SlotPoint, ueDb map[nr.Rnti]*Ue) *DlResult {
	// Recycle the ring entries that left the TX window.
	if !w.lastTxSl.Valid() {
		w.lastTxSl = txSl
	}
	for !w.lastTxSl.Equal(txSl) {
		w.lastTxSl = w.lastTxSl.Add(1)
		oldSlot := w.lastTxSl.Add(-TxEnbDelay - 1)
		for _, bwp := range w.bwps {
			bwp.grid.Slot(oldSlot).Reset()
		}
	}

	// Build the slot-UE candidate set.
	for rnti, u := range ueDb {
		if u.Carrier(w.cfg.CC) == nil {
			continue
		}
		su := u.MakeSlotUe(txSl, w.cfg.CC)
		if su.Empty() || (!su.DlActive && !su.UlActive) {
			continue
		}
		suCopy := su
		w.slotUes[rnti] = &suCopy
	}

	alloc := NewBwpSlotAllocator(w.bwps[0].grid, txSl, w.slotUes)

	logSchedSlotUes(w.logger, txSl, w.cfg.CC, w.slotUes)

	schedDlSignalling(alloc, w.cfg)
	w.bwps[0].si.RunSlot(alloc)
	w.bwps[0].ra.RunSlot(alloc)

	w.allocDlUes(alloc)
	w.allocUlUes(alloc)

	w.postprocessDecisions(alloc)

	logSchedBwpResult(w.logger, txSl, w.bwps[0].grid, w.slotUes)

	// Release the per-slot UE handles.
	for rnti := range w.slotUes {
		delete(w.slotUes, rnti)
	}

	return &alloc.TxSlotGrid().Dl
}

// GetUlSched returns the uplink result of any slot inside the TX window.
func (w *CcWorker) GetUlSched(sl nr.SlotPoint) *UlResult {
	return &w.bwps[0].grid.Slot(sl).Ul
}

func (w *CcWorker) allocDlUes(alloc *BwpSlotAllocator) {
	if !w.cfg.SchedArgs.PdschEnabled {
		return
	}
	w.bwps[0].dataSched.SchedDlUsers(w.slotUes, alloc)
}

func (w *CcWorker) allocUlUes(alloc *BwpSlotAllocator) {
	if !w.cfg.SchedArgs.PuschEnabled {
		return
	}
	w.bwps[0].dataSched.SchedUlUsers(w.slotUes, alloc)
}

// postprocessDecisions multiplexes the pending HARQ-ACKs of each slot
// user into PUSCH (piggyback) or PUCCH records.
func (w *CcWorker) postprocessDecisions(alloc *BwpSlotAllocator) {
	bwpSlot := w.bwps[0].grid.Slot(alloc.PdcchSlot())

	for _, ue := range sortedSlotUes(w.slotUes) {
		var acks []phy.AckResource
		for i := range bwpSlot.PendingAcks {
			if bwpSlot.PendingAcks[i].Res.Rnti == ue.Rnti() {
				acks = append(acks, bwpSlot.PendingAcks[i].Res)
			}
		}

		uci, ok := ue.Phy().GetUciCfg(alloc.PdcchSlot(), ue.Rnti(), acks)
		if !ok {
			w.logger.Error("error getting UCI configuration", "rnti", ue.Rnti())
			continue
		}
		if uci.Empty() {
			continue
		}

		hasPusch := false
		for i := range bwpSlot.Ul.Pusch {
			pusch := &bwpSlot.Ul.Pusch[i]
			if pusch.Sch.Grant.Rnti == ue.Rnti() {
				// With a PUSCH in the slot, UCI rides on it and no SR is
				// expected.
				hasPusch = true
				if !ue.Phy().GetPuschUciCfg(uci, &pusch.Sch) {
					w.logger.Error("error setting UCI configuration in PUSCH", "rnti", ue.Rnti())
				}
				break
			}
		}
		if hasPusch {
			continue
		}

		if len(bwpSlot.Ul.Pucch) >= MaxGrants {
			w.logger.Warn("cannot fit pending UCI into PUCCH", "rnti", ue.Rnti())
			continue
		}
		bwpSlot.Ul.Pucch = append(bwpSlot.Ul.Pucch, Pucch{Candidates: make([]PucchCandidate, 0, 2)})
		pucch := &bwpSlot.Ul.Pucch[len(bwpSlot.Ul.Pucch)-1]

		var res phy.PucchResource
		if !ue.Phy().GetPucchUciCfg(uci, &res) {
			w.logger.Error("error getting PUCCH UCI config", "rnti", ue.Rnti())
			bwpSlot.Ul.Pucch = bwpSlot.Ul.Pucch[:len(bwpSlot.Ul.Pucch)-1]
			continue
		}
		pucch.Candidates = append(pucch.Candidates, PucchCandidate{Uci: uci, Resource: res})

		// SR opportunity with HARQ-ACKs on a format-1 resource: offer a
		// second, SR-negative candidate as the PHY fallback.
		if uci.OSr > 0 && uci.AckCount > 0 && res.Format == phy.PucchFormat1 {
			uciNeg := uci
			uciNeg.SrPositivePresent = false
			var resNeg phy.PucchResource
			if !ue.Phy().GetPucchUciCfg(uciNeg, &resNeg) {
				w.logger.Error("error getting fallback PUCCH UCI config", "rnti", ue.Rnti())
				continue
			}
			pucch.Candidates = append(pucch.Candidates, PucchCandidate{Uci: uciNeg, Resource: resNeg})
		}
	}
}
