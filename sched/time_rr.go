package sched

import (
	"sort"

	"github.com/gnbsched/gnbsched/nr"
)

// DataScheduler picks the users served with PDSCH/PUSCH data grants in
// one slot.
type DataScheduler interface {
	SchedDlUsers(ues map[nr.Rnti]*SlotUe, alloc *BwpSlotAllocator)
	SchedUlUsers(ues map[nr.Rnti]*SlotUe, alloc *BwpSlotAllocator)
}

// TimeRR is the time-domain round-robin data scheduler: one user per
// slot per direction, retransmissions first.
type TimeRR struct{}

// NewTimeRR returns the round-robin data scheduler.
func NewTimeRR() *TimeRR { return &TimeRR{} }

// roundRobinApply visits the users in RNTI order starting at an offset
// derived from rrCount, stopping at the first successful allocation.
func roundRobinApply(ues map[nr.Rnti]*SlotUe, rrCount uint32, p func(*SlotUe) bool) bool {
	if len(ues) == 0 {
		return false
	}
	rntis := make([]nr.Rnti, 0, len(ues))
	for rnti := range ues {
		rntis = append(rntis, rnti)
	}
	sort.Slice(rntis, func(i, j int) bool { return rntis[i] < rntis[j] })

	start := int(rrCount) % len(rntis)
	for count := 0; count < len(rntis); count++ {
		ue := ues[rntis[(start+count)%len(rntis)]]
		if p(ue) {
			return true
		}
	}
	return false
}

// SchedDlUsers serves one downlink user: a pending retransmission with
// its original PRBs if any user has one, otherwise a new transmission
// over the widest free region.
func (s *TimeRR) SchedDlUsers(ues map[nr.Rnti]*SlotUe, alloc *BwpSlotAllocator) {
	rrCount := alloc.PdcchSlot().ToUint()

	retx := func(ue *SlotUe) bool {
		if !ue.DlActive || ue.HDl == nil || !ue.HDl.HasPendingRetx(alloc.RxSlot()) {
			return false
		}
		ssID := ue.Cfg().FindSsID(nr.DciFormat10)
		if ssID < 0 {
			return false
		}
		return alloc.AllocPdsch(ue, uint32(ssID), ue.HDl.Prbs()).Ok()
	}
	if roundRobinApply(ues, rrCount, retx) {
		return
	}

	newtx := func(ue *SlotUe) bool {
		if !ue.DlActive || ue.DlBytes == 0 || ue.HDl == nil || !ue.HDl.Empty() {
			return false
		}
		ssID := ue.Cfg().FindSsID(nr.DciFormat10)
		if ssID < 0 {
			return false
		}
		grant := FindOptimalDlGrant(alloc, ue, uint32(ssID))
		if grant.Prbs().Empty() {
			return false
		}
		return alloc.AllocPdsch(ue, uint32(ssID), grant).Ok()
	}
	roundRobinApply(ues, rrCount, newtx)
}

// SchedUlUsers serves one uplink user, retransmissions first.
func (s *TimeRR) SchedUlUsers(ues map[nr.Rnti]*SlotUe, alloc *BwpSlotAllocator) {
	rrCount := alloc.PdcchSlot().ToUint()

	retx := func(ue *SlotUe) bool {
		if !ue.UlActive || ue.HUl == nil || !ue.HUl.HasPendingRetx(alloc.RxSlot()) {
			return false
		}
		return alloc.AllocPusch(ue, ue.HUl.Prbs()).Ok()
	}
	if roundRobinApply(ues, rrCount, retx) {
		return
	}

	newtx := func(ue *SlotUe) bool {
		if !ue.UlActive || ue.UlBytes == 0 || ue.HUl == nil || !ue.HUl.Empty() {
			return false
		}
		grant := nr.GrantFromInterval(nr.NewPrbInterval(0, alloc.Cfg().Cfg.RbWidth))
		return alloc.AllocPusch(ue, grant).Ok()
	}
	roundRobinApply(ues, rrCount, newtx)
}
