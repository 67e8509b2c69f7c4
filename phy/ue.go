package phy

import "github.com/gnbsched/gnbsched/nr"

// ResourceAllocPolicy is the configured downlink/uplink frequency
// allocation type of a UE (higher-layer parameter resourceAllocation).
type ResourceAllocPolicy uint8

const (
	ResourceAllocType0 ResourceAllocPolicy = iota
	ResourceAllocType1
	ResourceAllocDynamic
)

// PdcchConfig holds the CORESETs and search spaces monitored on a BWP.
type PdcchConfig struct {
	Coresets     []nr.Coreset
	SearchSpaces []nr.SearchSpace

	RaSearchSpacePresent bool
	RaSearchSpaceID      uint32
}

// Coreset returns the CORESET with the given id, or nil.
func (p *PdcchConfig) Coreset(id uint32) *nr.Coreset {
	for i := range p.Coresets {
		if p.Coresets[i].ID == id {
			return &p.Coresets[i]
		}
	}
	return nil
}

// SearchSpace returns the search space with the given id, or nil.
func (p *PdcchConfig) SearchSpace(id uint32) *nr.SearchSpace {
	for i := range p.SearchSpaces {
		if p.SearchSpaces[i].ID == id {
			return &p.SearchSpaces[i]
		}
	}
	return nil
}

// RaSearchSpace returns the RA search space, or nil when not configured.
func (p *PdcchConfig) RaSearchSpace() *nr.SearchSpace {
	if !p.RaSearchSpacePresent {
		return nil
	}
	return p.SearchSpace(p.RaSearchSpaceID)
}

// HarqAckConfig maps a PDSCH slot to its HARQ-ACK feedback delay k1.
type HarqAckConfig struct {
	// DlDataToUlAck lists the candidate k1 values; the entry is selected
	// by pdsch_slot mod len.
	DlDataToUlAck []uint32
}

// K1 returns the PDSCH-to-ACK slot offset for a PDSCH slot.
func (h *HarqAckConfig) K1(pdschSlot nr.SlotPoint) uint32 {
	if len(h.DlDataToUlAck) == 0 {
		return 4
	}
	return h.DlDataToUlAck[pdschSlot.ToUint()%uint32(len(h.DlDataToUlAck))]
}

// SrConfig describes the scheduling-request opportunity pattern of a UE.
type SrConfig struct {
	PeriodSlots uint32
	OffsetSlots uint32
}

// Opportunity reports whether the slot carries an SR opportunity.
func (s *SrConfig) Opportunity(sl nr.SlotPoint) bool {
	if s.PeriodSlots == 0 {
		return false
	}
	return sl.ToUint()%s.PeriodSlots == s.OffsetSlots%s.PeriodSlots
}

// UeConfig is the semi-static PHY configuration of one UE on one BWP:
// everything the scheduler needs to pick search spaces, feedback slots
// and UCI resources for that UE.
type UeConfig struct {
	Pdcch      PdcchConfig
	PdschAlloc ResourceAllocPolicy
	PuschAlloc ResourceAllocPolicy
	HarqAck    HarqAckConfig
	Sr         SrConfig
	// PucchResources lists the configured PUCCH resources in selection
	// order; index 0 is used for plain HARQ-ACK feedback.
	PucchResources []PucchResource
	CqiTable       uint32

	BwpDlWidth uint32
	BwpUlWidth uint32
}

// DciConfig derives the DCI sizing quantities for this UE.
func (c *UeConfig) DciConfig() nr.DciConfig {
	cfg := nr.DciConfig{BwpDlWidth: c.BwpDlWidth, BwpUlWidth: c.BwpUlWidth}
	if cs0 := c.Pdcch.Coreset(0); cs0 != nil {
		cfg.Coreset0Bw = cs0.Bandwidth()
	}
	for i := range c.Pdcch.SearchSpaces {
		ss := &c.Pdcch.SearchSpaces[i]
		if ss.Type.IsCommon() && ss.HasFormat(nr.DciFormat00) {
			cfg.MonitorCommon01 = true
		}
	}
	return cfg
}

// K1 returns the PDSCH-to-ACK offset for this UE.
func (c *UeConfig) K1(pdschSlot nr.SlotPoint) uint32 { return c.HarqAck.K1(pdschSlot) }
