package sched

import (
	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
)

// maxSiTx caps the transmissions of one SI message within its window.
const maxSiTx = 8

// siAggrIdx is the aggregation index of SI DCIs (L = 2).
const siAggrIdx = 1

// siMsgCtxt is the persistent scheduling state of one SI message.
type siMsgCtxt struct {
	// n is 0 for SIB1, otherwise the index in the SI scheduling info list.
	n        uint32
	lenBytes uint32
	winLen   uint32
	periodRf uint32

	nTx      uint32
	result   AllocResult
	winStart nr.SlotPoint

	softbuffer *TxSoftbuffer
}

// SiSched schedules SIB1 and the other configured SI messages, managing
// their windows and retransmission counts.
type SiSched struct {
	bwp    *BwpParams
	logger *log.Logger

	pendingSis []siMsgCtxt
}

// NewSiSched builds the SI scheduler of one BWP.
func NewSiSched(bwp *BwpParams, sibs []SibConfig, pool *SoftbufferPool) *SiSched {
	s := &SiSched{bwp: bwp, logger: bwp.Logger.Module("si")}
	for i, sib := range sibs {
		s.pendingSis = append(s.pendingSis, siMsgCtxt{
			n:          uint32(i),
			lenBytes:   sib.Len,
			winLen:     sib.WindowSlots,
			periodRf:   sib.PeriodRf,
			result:     AllocInvalidCoderate,
			softbuffer: pool.GetTx(bwp.Cfg.RbWidth),
		})
	}
	return s
}

// RunSlot updates the SI windows and attempts the pending transmissions.
func (s *SiSched) RunSlot(alloc *BwpSlotAllocator) {
	if s.bwp.Coreset(0) == nil {
		// SI allocation requires CORESET#0.
		return
	}
	const ssID = 0
	slPdcch := alloc.PdcchSlot()
	n := s.bwp.NofSlots()

	// Open and close SI windows.
	for i := range s.pendingSis {
		si := &s.pendingSis[i]
		if !si.winStart.Valid() {
			var startWindow bool
			if si.n == 0 {
				// SIB1: slot 0 of even frames.
				startWindow = slPdcch.SlotIdx() == 0 && slPdcch.SFN()%2 == 0
			} else {
				// TS 38.331, 5.2.2.3.2 - acquisition of SI messages.
				x := (si.n - 1) * si.winLen
				startWindow = si.periodRf > 0 && slPdcch.SFN()%si.periodRf == x/n &&
					slPdcch.SlotIdx() == x%n
			}
			if startWindow {
				si.winStart = slPdcch
				si.nTx = 0
			}
		} else if slPdcch.AtOrAfter(si.winStart.Add(int(si.winLen))) && si.nTx == 0 {
			if si.n == 0 {
				s.logger.Error("could not allocate SIB1 within window",
					"len", si.lenBytes, "cause", si.result.String())
			} else {
				s.logger.Warn("could not allocate SI message within window",
					"idx", si.n, "len", si.lenBytes, "cause", si.result.String())
			}
			si.winStart.Clear()
		}
	}

	if !s.bwp.IsDl(slPdcch.SlotIdx()) {
		return
	}

	// Attempt the pending transmissions, growing the PRB width from 8
	// when the code rate comes out invalid.
	for i := range s.pendingSis {
		si := &s.pendingSis[i]
		if !si.winStart.Valid() || si.nTx >= maxSiTx {
			continue
		}

		prbs := alloc.TxSlotGrid().Pdschs.OccupiedPrbs(ssID, nr.DciFormat10)
		si.result = AllocInvalidCoderate
		for nprb := uint32(8); nprb <= s.bwp.Cfg.RbWidth && si.result == AllocInvalidCoderate; nprb++ {
			grant := prbs.FindEmptyInterval(nprb, 0)
			if grant.Length() < nprb {
				si.result = AllocNoSchSpace
				break
			}
			si.result = alloc.AllocSi(siAggrIdx, si.n, si.nTx, grant, si.softbuffer)
		}
		if si.result.Ok() {
			si.winStart.Clear()
			si.nTx++
			if si.n == 0 {
				s.logger.Debug("allocated SIB1", "len", si.lenBytes)
			} else {
				s.logger.Debug("allocated SI message", "idx", si.n, "len", si.lenBytes)
			}
		} else {
			s.logger.Warn("failed to allocate SI", "idx", si.n, "ntx", si.nTx,
				"cause", si.result.String())
		}
	}
}
