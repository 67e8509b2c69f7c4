package sched

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
)

// sortedSlotUes returns the slot users in RNTI order for deterministic
// log output.
func sortedSlotUes(slotUes map[nr.Rnti]*SlotUe) []*SlotUe {
	out := make([]*SlotUe, 0, len(slotUes))
	for _, ue := range slotUes {
		out = append(out, ue)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rnti() < out[j].Rnti() })
	return out
}

// logSchedSlotUes emits one debug line summarizing the slot candidates.
func logSchedSlotUes(logger *log.Logger, pdcchSlot nr.SlotPoint, cc uint32, slotUes map[nr.Rnti]*SlotUe) {
	if !logger.DebugEnabled() || len(slotUes) == 0 {
		return
	}
	var b strings.Builder
	for i, ue := range sortedSlotUes(slotUes) {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "{rnti=%s", ue.Rnti())
		if ue.DlActive {
			fmt.Fprintf(&b, ", dl_bs=%d", ue.DlBytes)
		}
		if ue.UlActive {
			fmt.Fprintf(&b, ", ul_bs=%d", ue.UlBytes)
		}
		b.WriteString("}")
	}
	logger.Debug("UE candidates", "pdcch_slot", pdcchSlot.String(), "cc", cc, "ues", b.String())
}

// logSchedBwpResult emits one line per scheduled PDCCH of the slot.
func logSchedBwpResult(logger *log.Logger, pdcchSlot nr.SlotPoint, grid *BwpResGrid, slotUes map[nr.Rnti]*SlotUe) {
	bwpSlot := grid.Slot(pdcchSlot)
	dataCount := 0
	for i := range bwpSlot.Dl.PdcchDl {
		pdcch := &bwpSlot.Dl.PdcchDl[i]
		switch pdcch.Dci.Ctx.RntiType {
		case nr.RntiTypeC, nr.RntiTypeTC:
			ue, ok := slotUes[pdcch.Dci.Ctx.Rnti]
			if !ok || ue.HDl == nil {
				continue
			}
			kind := "tx"
			if ue.HDl.NofRetx() > 0 {
				kind = "retx"
			}
			var lcids []uint32
			if dataCount < len(bwpSlot.Dl.Data) {
				lcids = bwpSlot.Dl.Data[dataCount].Subpdus
			}
			logger.Info("DL "+kind,
				"cc", grid.Cfg().CC, "rnti", pdcch.Dci.Ctx.Rnti, "pid", pdcch.Dci.Pid,
				"cs", pdcch.Dci.Ctx.CoresetID, "f", pdcch.Dci.Ctx.Format.String(),
				"prbs", ue.HDl.Prbs().String(), "nrtx", ue.HDl.NofRetx(), "dai", pdcch.Dci.Dai,
				"lcids", fmt.Sprint(lcids), "tbs", ue.HDl.Tbs(), "bs", ue.DlBytes,
				"pdsch_slot", ue.PdschSlot.String(), "ack_slot", ue.UciSlot.String())
			dataCount++
		case nr.RntiTypeRA:
			if i < len(bwpSlot.Dl.Pdsch) {
				logger.Info("RAR", "cc", grid.Cfg().CC, "ra_rnti", pdcch.Dci.Ctx.Rnti,
					"prbs", bwpSlot.Dl.Pdsch[i].Sch.Grant.Prbs.String(),
					"pdsch_slot", pdcchSlot.String())
			}
		case nr.RntiTypeSI:
			if logger.DebugEnabled() && i < len(bwpSlot.Dl.Pdsch) {
				name := "SI message"
				if pdcch.Dci.Sii == 0 {
					name = "SIB1"
				}
				logger.Debug(name, "cc", grid.Cfg().CC,
					"prbs", bwpSlot.Dl.Pdsch[i].Sch.Grant.Prbs.String(),
					"pdsch_slot", pdcchSlot.String())
			}
		}
	}
	for i := range bwpSlot.Dl.PdcchUl {
		pdcch := &bwpSlot.Dl.PdcchUl[i]
		ue, ok := slotUes[pdcch.Dci.Ctx.Rnti]
		if !ok || ue.HUl == nil {
			continue
		}
		if pdcch.Dci.Ctx.RntiType == nr.RntiTypeTC {
			logger.Info("UL Msg3", "cc", grid.Cfg().CC, "tc_rnti", pdcch.Dci.Ctx.Rnti,
				"pid", pdcch.Dci.Pid, "nrtx", ue.HUl.NofRetx(),
				"f", pdcch.Dci.Ctx.Format.String(), "pusch_slot", ue.PuschSlot.String())
			continue
		}
		kind := "tx"
		if ue.HUl.NofRetx() > 0 {
			kind = "retx"
		}
		logger.Info("UL "+kind, "cc", grid.Cfg().CC, "rnti", pdcch.Dci.Ctx.Rnti,
			"pid", pdcch.Dci.Pid, "cs", pdcch.Dci.Ctx.CoresetID,
			"f", pdcch.Dci.Ctx.Format.String(), "nrtx", ue.HUl.NofRetx(),
			"tbs", ue.HUl.Tbs(), "bs", ue.UlBytes, "pusch_slot", ue.PuschSlot.String())
	}
}
