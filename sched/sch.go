package sched

import (
	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
	"github.com/gnbsched/gnbsched/phy"
)

// PdschAllocator validates and registers downlink shared channel grants
// for one slot, maintaining the accumulated DL PRB mask.
type PdschAllocator struct {
	bwp     *BwpParams
	slotIdx uint32
	logger  *log.Logger

	pdschs *[]Pdsch
	dlPrbs nr.BwpRbBitmap

	lastGrant nr.PrbGrant
}

// NewPdschAllocator builds the PDSCH allocator of one slot.
func NewPdschAllocator(bwp *BwpParams, slotIdx uint32, pdschs *[]Pdsch) *PdschAllocator {
	return &PdschAllocator{
		bwp:     bwp,
		slotIdx: slotIdx,
		logger:  bwp.Logger,
		pdschs:  pdschs,
		dlPrbs:  nr.NewBwpRbBitmap(bwp.Cfg.RbWidth, bwp.Cfg.StartRb, bwp.Cfg.RbgSizeCfg1),
	}
}

// Reset clears the slot's PDSCH allocations.
func (a *PdschAllocator) Reset() {
	*a.pdschs = (*a.pdschs)[:0]
	a.dlPrbs.Reset()
}

// OccupiedRbgs returns the RBG view of the occupied mask.
func (a *PdschAllocator) OccupiedRbgs() nr.RbgBitmap { return a.dlPrbs.Rbgs() }

// OccupiedPrbs returns the PRB view of the occupied mask. For DCI 1_0 in
// a common search space the coreset-excluded PRBs are folded in, so a
// caller searching for empty space never lands outside the usable region.
func (a *PdschAllocator) OccupiedPrbs(ssID uint32, dciFmt nr.DciFormat) nr.PrbBitmap {
	if dciFmt == nr.DciFormat10 {
		ss := a.bwp.GetSS(ssID)
		if ss == nil && a.bwp.RaSearchSpace() != nil && a.bwp.RaSearchSpace().ID == ssID {
			ss = a.bwp.RaSearchSpace()
		}
		if ss != nil && ss.Type.IsCommon() {
			if excluded, ok := a.bwp.Dci10ExcludedPrbs(ss.CoresetID); ok {
				merged := a.dlPrbs.Prbs().Clone()
				merged.Or(excluded)
				return merged
			}
		}
	}
	return a.dlPrbs.Prbs()
}

// ReservePrbs marks a PRB range as occupied without emitting a PDSCH.
// Used for the SSB region.
func (a *PdschAllocator) ReservePrbs(grant nr.PrbGrant) { a.dlPrbs.OrGrant(grant) }

func (a *PdschAllocator) isGrantValidCommon(ssType nr.SearchSpaceType, dciFmt nr.DciFormat, coresetID uint32, grant nr.PrbGrant) AllocResult {
	if !a.bwp.IsDl(a.slotIdx) {
		a.logger.Error("pdsch in non-DL slot", "slot_idx", a.slotIdx)
		return AllocNoSchSpace
	}
	if len(*a.pdschs) >= MaxGrants {
		a.logger.Warn("maximum number of PDSCHs reached", "max", MaxGrants)
		return AllocNoSchSpace
	}
	if grant.IsAllocType1() && grant.Prbs().Empty() {
		return AllocInvalidGrantParams
	}
	if grant.IsAllocType0() && grant.Rbgs().Count() == 0 {
		return AllocInvalidGrantParams
	}

	// TS 38.214, 5.1.2.2 - DCI format 1_0 implies allocation type 1.
	if dciFmt == nr.DciFormat10 && !grant.IsAllocType1() {
		a.logger.Warn("allocation type 1 required for DCI 1_0")
		return AllocInvalidGrantParams
	}

	// TS 38.214, 5.1.2.2.2 - DCI 1_0 in common SS is bounded by the
	// coreset PRB region.
	if dciFmt == nr.DciFormat10 && ssType.IsCommon() {
		if excluded, ok := a.bwp.Dci10ExcludedPrbs(coresetID); ok {
			if excluded.IntersectsInterval(grant.Prbs()) {
				a.logger.Debug("grant outside common coreset PRB boundaries",
					"grant", grant.String(), "coreset_id", coresetID)
				return AllocSchCollision
			}
		}
	}

	if a.dlPrbs.CollidesGrant(grant) {
		a.logger.Debug("grant collides with previous PDSCH allocations", "grant", grant.String())
		return AllocSchCollision
	}
	return AllocSuccess
}

// IsSiGrantValid verifies an SI allocation against search space and mask.
func (a *PdschAllocator) IsSiGrantValid(ssID uint32, grant nr.PrbGrant) AllocResult {
	ss := a.bwp.GetSS(ssID)
	if ss == nil {
		a.logger.Error("SI search space not configured", "ss_id", ssID)
		return AllocInvalidGrantParams
	}
	return a.isGrantValidCommon(ss.Type, nr.DciFormat10, ss.CoresetID, grant)
}

// IsRarGrantValid verifies a RAR allocation.
func (a *PdschAllocator) IsRarGrantValid(grant nr.PrbGrant) AllocResult {
	ss := a.bwp.RaSearchSpace()
	if ss == nil {
		return AllocInvalidGrantParams
	}
	return a.isGrantValidCommon(ss.Type, nr.DciFormat10, ss.CoresetID, grant)
}

// IsUeGrantValid verifies a UE allocation, including the configured
// resourceAllocation type of the UE.
func (a *PdschAllocator) IsUeGrantValid(ue *UeCarrierParams, ssID uint32, dciFmt nr.DciFormat, grant nr.PrbGrant) AllocResult {
	ss := ue.GetSS(ssID)
	if ss == nil {
		a.logger.Error("UE search space not configured", "rnti", ue.Rnti, "ss_id", ssID)
		return AllocInvalidGrantParams
	}
	if r := a.isGrantValidCommon(ss.Type, dciFmt, ss.CoresetID, grant); !r.Ok() {
		return r
	}

	// TS 38.214, 5.1.2.2 - grant type must match resourceAllocation.
	switch ue.Phy().PdschAlloc {
	case phy.ResourceAllocType0:
		if !grant.IsAllocType0() {
			a.logger.Warn("grant type does not match UE PDSCH RA type 0", "rnti", ue.Rnti)
			return AllocInvalidGrantParams
		}
	case phy.ResourceAllocType1:
		if !grant.IsAllocType1() {
			a.logger.Warn("grant type does not match UE PDSCH RA type 1", "rnti", ue.Rnti)
			return AllocInvalidGrantParams
		}
	}
	return AllocSuccess
}

// AllocSiPdsch validates and performs an SI allocation.
func (a *PdschAllocator) AllocSiPdsch(ssID uint32, grant nr.PrbGrant, dci *nr.DciDl) (*Pdsch, AllocResult) {
	if r := a.IsSiGrantValid(ssID, grant); !r.Ok() {
		return nil, r
	}
	ss := a.bwp.GetSS(ssID)
	return a.allocPdschUnchecked(ss.CoresetID, ss.Type, nr.DciFormat10, grant, dci), AllocSuccess
}

// AllocRarPdschUnchecked performs a RAR allocation already validated by
// IsRarGrantValid.
func (a *PdschAllocator) AllocRarPdschUnchecked(grant nr.PrbGrant, dci *nr.DciDl) *Pdsch {
	ss := a.bwp.RaSearchSpace()
	return a.allocPdschUnchecked(ss.CoresetID, ss.Type, nr.DciFormat10, grant, dci)
}

// AllocUePdschUnchecked performs a UE allocation already validated by
// IsUeGrantValid.
func (a *PdschAllocator) AllocUePdschUnchecked(ssID uint32, dciFmt nr.DciFormat, grant nr.PrbGrant, ue *UeCarrierParams, dci *nr.DciDl) *Pdsch {
	ss := ue.GetSS(ssID)
	return a.allocPdschUnchecked(ss.CoresetID, ss.Type, dciFmt, grant, dci)
}

// allocPdschUnchecked registers the grant and encodes the DCI frequency
// assignment: the RBG bitmap for type 0, the RIV for type 1. For common
// search spaces the RIV is computed over the effective span: the coreset
// start offsets the PRB index, and coreset#0 narrows the width.
func (a *PdschAllocator) allocPdschUnchecked(coresetID uint32, ssType nr.SearchSpaceType, dciFmt nr.DciFormat, grant nr.PrbGrant, dci *nr.DciDl) *Pdsch {
	*a.pdschs = append(*a.pdschs, Pdsch{})
	pdsch := &(*a.pdschs)[len(*a.pdschs)-1]

	a.dlPrbs.OrGrant(grant)
	a.lastGrant = grant

	dci.TimeDomainAssignment = 0
	if grant.IsAllocType0() {
		dci.FreqDomainAssignment = grant.Rbgs().ToUint64()
		return pdsch
	}
	rbStart := grant.Prbs().Start()
	nofPrb := a.bwp.NofPrb
	if ssType.IsCommon() {
		lims := a.bwp.CoresetPrbRange(coresetID)
		if dciFmt == nr.DciFormat10 && rbStart >= lims.Start() {
			rbStart -= lims.Start()
		}
		if coresetID == 0 {
			nofPrb = lims.Length()
		}
	}
	dci.FreqDomainAssignment = uint64(nr.RivType1(nofPrb, rbStart, grant.Prbs().Length()))
	return pdsch
}

// CancelLastPdsch reverts the most recent allocation, clearing its PRBs
// from the occupied mask.
func (a *PdschAllocator) CancelLastPdsch() {
	if len(*a.pdschs) == 0 {
		a.logger.Error("cancel of pdsch allocation that does not exist")
		return
	}
	*a.pdschs = (*a.pdschs)[:len(*a.pdschs)-1]
	a.dlPrbs.ClearGrant(a.lastGrant)
	a.lastGrant = nr.PrbGrant{}
}

// PuschAllocator is the uplink mirror of PdschAllocator.
type PuschAllocator struct {
	bwp     *BwpParams
	slotIdx uint32
	logger  *log.Logger

	puschs *[]Pusch
	ulPrbs nr.BwpRbBitmap

	lastGrant nr.PrbGrant
}

// NewPuschAllocator builds the PUSCH allocator of one slot.
func NewPuschAllocator(bwp *BwpParams, slotIdx uint32, puschs *[]Pusch) *PuschAllocator {
	return &PuschAllocator{
		bwp:     bwp,
		slotIdx: slotIdx,
		logger:  bwp.Logger,
		puschs:  puschs,
		ulPrbs:  nr.NewBwpRbBitmap(bwp.Cfg.RbWidth, bwp.Cfg.StartRb, bwp.Cfg.RbgSizeCfg1),
	}
}

// Reset clears the slot's PUSCH allocations.
func (a *PuschAllocator) Reset() {
	*a.puschs = (*a.puschs)[:0]
	a.ulPrbs.Reset()
}

// OccupiedRbgs returns the RBG view of the occupied mask.
func (a *PuschAllocator) OccupiedRbgs() nr.RbgBitmap { return a.ulPrbs.Rbgs() }

// OccupiedPrbs returns the PRB view of the occupied mask.
func (a *PuschAllocator) OccupiedPrbs() nr.PrbBitmap { return a.ulPrbs.Prbs() }

// HasGrantSpace checks slot direction and list capacity for nofGrants
// further allocations.
func (a *PuschAllocator) HasGrantSpace(nofGrants int) AllocResult {
	if !a.bwp.IsUl(a.slotIdx) {
		a.logger.Error("pusch in non-UL slot", "slot_idx", a.slotIdx)
		return AllocNoSchSpace
	}
	if len(*a.puschs)+nofGrants > MaxGrants {
		a.logger.Warn("maximum number of PUSCHs reached", "max", MaxGrants)
		return AllocNoSchSpace
	}
	return AllocSuccess
}

// IsGrantValid verifies an uplink grant against slot direction, list
// capacity, allocation-type rules and the occupied mask.
func (a *PuschAllocator) IsGrantValid(ssType nr.SearchSpaceType, grant nr.PrbGrant) AllocResult {
	if r := a.HasGrantSpace(1); !r.Ok() {
		return r
	}
	if grant.IsAllocType1() && grant.Prbs().Empty() {
		return AllocInvalidGrantParams
	}
	if ssType.IsCommon() && grant.IsAllocType0() {
		a.logger.Warn("allocation type 0 not allowed in common search space")
		return AllocInvalidGrantParams
	}
	if a.ulPrbs.CollidesGrant(grant) {
		a.logger.Debug("UL grant collides with previous allocations", "grant", grant.String())
		return AllocSchCollision
	}
	return AllocSuccess
}

// AllocPusch validates and performs an uplink allocation.
func (a *PuschAllocator) AllocPusch(ssType nr.SearchSpaceType, grant nr.PrbGrant, dci *nr.DciUl) (*Pusch, AllocResult) {
	if r := a.IsGrantValid(ssType, grant); !r.Ok() {
		return nil, r
	}
	return a.AllocPuschUnchecked(grant, dci), AllocSuccess
}

// AllocPuschUnchecked registers the grant and encodes the DCI frequency
// assignment over the full BWP.
func (a *PuschAllocator) AllocPuschUnchecked(grant nr.PrbGrant, dci *nr.DciUl) *Pusch {
	*a.puschs = append(*a.puschs, Pusch{})
	pusch := &(*a.puschs)[len(*a.puschs)-1]

	a.ulPrbs.OrGrant(grant)
	a.lastGrant = grant

	dci.TimeDomainAssignment = 0
	if grant.IsAllocType0() {
		dci.FreqDomainAssignment = grant.Rbgs().ToUint64()
	} else {
		dci.FreqDomainAssignment = uint64(nr.RivType1(a.bwp.NofPrb, grant.Prbs().Start(), grant.Prbs().Length()))
	}
	return pusch
}

// CancelLastPusch reverts the most recent allocation.
func (a *PuschAllocator) CancelLastPusch() {
	if len(*a.puschs) == 0 {
		a.logger.Error("cancel of pusch allocation that does not exist")
		return
	}
	*a.puschs = (*a.puschs)[:len(*a.puschs)-1]
	a.ulPrbs.ClearGrant(a.lastGrant)
	a.lastGrant = nr.PrbGrant{}
}
