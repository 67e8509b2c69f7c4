// Package sched implements the per-slot MAC scheduler core of a gNB cell:
// PDCCH/PDSCH/PUSCH resource allocation, HARQ management, random access
// and system information scheduling, and the event-driven top-level
// scheduler object.
package sched

// AllocResult is the closed set of outcomes an allocation attempt can
// produce. Success is the zero value.
type AllocResult uint8

const (
	// AllocSuccess means the allocation was performed.
	AllocSuccess AllocResult = iota
	// AllocNoCchSpace means the PDCCH DFS exhausted all CCE positions.
	AllocNoCchSpace
	// AllocNoSchSpace means the result list is full or the slot direction
	// does not admit the channel.
	AllocNoSchSpace
	// AllocSchCollision means the grant overlaps a previous allocation.
	AllocSchCollision
	// AllocInvalidCoderate means TBS and PRBs produce a code rate above
	// the cap.
	AllocInvalidCoderate
	// AllocInvalidGrantParams flags misuse of the allocation API.
	AllocInvalidGrantParams
	// AllocNoRntiOpportunity means the UE cannot be scheduled this slot
	// (not yet live, wrong BWP, no HARQ available).
	AllocNoRntiOpportunity
	// AllocNoGrantSpace means the uplink control capacity is exceeded.
	AllocNoGrantSpace
	// AllocOtherCause means a PHY helper rejected the grant.
	AllocOtherCause
)

// Ok reports whether the allocation succeeded.
func (r AllocResult) Ok() bool { return r == AllocSuccess }

func (r AllocResult) String() string {
	switch r {
	case AllocSuccess:
		return "success"
	case AllocNoCchSpace:
		return "no_cch_space"
	case AllocNoSchSpace:
		return "no_sch_space"
	case AllocSchCollision:
		return "sch_collision"
	case AllocInvalidCoderate:
		return "invalid_coderate"
	case AllocInvalidGrantParams:
		return "invalid_grant_params"
	case AllocNoRntiOpportunity:
		return "no_rnti_opportunity"
	case AllocNoGrantSpace:
		return "no_grant_space"
	case AllocOtherCause:
		return "other_cause"
	}
	return "unknown"
}
