package phy

import "github.com/gnbsched/gnbsched/nr"

// CsiRsPeriodicity is the slot period and offset of a CSI-RS resource.
type CsiRsPeriodicity struct {
	PeriodSlots uint32
	OffsetSlots uint32
}

// NzpCsiRsResource is one non-zero-power CSI reference signal resource.
type NzpCsiRsResource struct {
	ID          uint32
	Periodicity CsiRsPeriodicity
	StartRb     uint32
	NofRb       uint32
	Row         uint32
}

// NzpCsiRsSet groups NZP-CSI-RS resources configured together.
type NzpCsiRsSet struct {
	Resources []NzpCsiRsResource
}

// CsiRsSend reports whether a periodic CSI-RS resource is transmitted in
// the given slot.
func CsiRsSend(p CsiRsPeriodicity, sl nr.SlotPoint) bool {
	if p.PeriodSlots == 0 {
		return false
	}
	return sl.ToUint()%p.PeriodSlots == p.OffsetSlots%p.PeriodSlots
}
