package sched

import (
	"github.com/holiman/uint256"

	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
)

// cceMask returns the bitmap of the L contiguous CCEs starting at ncce.
func cceMask(ncce, aggrIdx uint32) uint256.Int {
	var m uint256.Int
	m.SetUint64(uint64(1)<<nr.AggrLevel(aggrIdx) - 1)
	m.Lsh(&m, uint(ncce))
	return m
}

// allocRecord describes one DCI whose CCE position the DFS maintains.
type allocRecord struct {
	aggrIdx  uint32
	ssID     uint32
	rnti     nr.Rnti
	rntiType nr.RntiType
	isDl     bool
	ue       *UeCarrierParams
	// dci points into the slot result list entry the record fills.
	dci *nr.DciCtx
}

// treeNode is one level of the PDCCH allocation DFS: the candidate chosen
// for the DCI at this depth plus the cumulative CCE occupancy.
type treeNode struct {
	// dciPosIdx is the index into the CCE candidate table.
	dciPosIdx uint32
	loc       nr.DciLocation
	rnti      nr.Rnti
	// current is the CCE mask of this DCI; total accumulates the masks
	// of every DCI up to and including this depth.
	current uint256.Int
	total   uint256.Int
}

// coresetRegion allocates CCE positions within one coreset of one slot
// with depth-first backtracking over the per-DCI candidate tables.
type coresetRegion struct {
	cfg     *nr.Coreset
	id      uint32
	slotIdx uint32
	bwp     *BwpParams

	dfsTree      []treeNode
	savedDfsTree []treeNode
	dciList      []allocRecord
}

func newCoresetRegion(bwp *BwpParams, csID, slotIdx uint32) *coresetRegion {
	return &coresetRegion{
		cfg:     bwp.Coreset(csID),
		id:      csID,
		slotIdx: slotIdx,
		bwp:     bwp,
	}
}

func (c *coresetRegion) nofCces() uint32 { return c.cfg.NofCces() }

func (c *coresetRegion) nofAllocs() int { return len(c.dciList) }

func (c *coresetRegion) reset() {
	c.dfsTree = c.dfsTree[:0]
	c.savedDfsTree = c.savedDfsTree[:0]
	c.dciList = c.dciList[:0]
}

// allocPdcch picks a CCE position for the record, retrying past
// allocations under different candidate permutations when the direct
// attempt collides. On failure the pre-call tree is restored.
func (c *coresetRegion) allocPdcch(record allocRecord) bool {
	c.savedDfsTree = c.savedDfsTree[:0]

	for {
		if c.allocDfsNode(&record, 0) {
			c.dciList = append(c.dciList, record)
			return true
		}
		if len(c.savedDfsTree) == 0 {
			c.savedDfsTree = append(c.savedDfsTree[:0], c.dfsTree...)
		}
		if !c.nextDfs() {
			break
		}
	}

	// Revert to the tree as it was before this allocation attempt.
	c.dfsTree = append(c.dfsTree[:0], c.savedDfsTree...)
	for i := range c.dciList {
		c.dciList[i].dci.Location = c.dfsTree[i].loc
	}
	return false
}

// remLastPdcch pops the most recent allocation.
func (c *coresetRegion) remLastPdcch() {
	if len(c.dciList) == 0 {
		return
	}
	c.dfsTree = c.dfsTree[:len(c.dfsTree)-1]
	c.dciList = c.dciList[:len(c.dciList)-1]
}

// nextDfs advances the tree to the next permutation of candidate choices
// for the already-allocated DCIs. Returns false once the root is passed.
func (c *coresetRegion) nextDfs() bool {
	for {
		if len(c.dfsTree) == 0 {
			return false
		}
		// Re-add the last node with a later candidate index.
		start := c.dfsTree[len(c.dfsTree)-1].dciPosIdx + 1
		c.dfsTree = c.dfsTree[:len(c.dfsTree)-1]
		for len(c.dfsTree) < len(c.dciList) && c.allocDfsNode(&c.dciList[len(c.dfsTree)], start) {
			start = 0
		}
		if len(c.dfsTree) == len(c.dciList) {
			return true
		}
	}
}

// allocDfsNode tries candidates of record starting at startIdx and pushes
// the first collision-free position.
func (c *coresetRegion) allocDfsNode(record *allocRecord, startIdx uint32) bool {
	cceLocs := c.cceLocTable(record)
	if startIdx >= uint32(len(cceLocs)) {
		return false
	}

	var node treeNode
	node.rnti = record.rnti
	node.loc.L = record.aggrIdx
	if len(c.dfsTree) > 0 {
		node.total = c.dfsTree[len(c.dfsTree)-1].total
	}

	for idx := startIdx; idx < uint32(len(cceLocs)); idx++ {
		ncce := cceLocs[idx]
		mask := cceMask(ncce, record.aggrIdx)
		var overlap uint256.Int
		if !overlap.And(&node.total, &mask).IsZero() {
			continue
		}
		node.dciPosIdx = idx
		node.loc.Ncce = ncce
		node.current = mask
		node.total.Or(&node.total, &mask)
		c.dfsTree = append(c.dfsTree, node)
		record.dci.Location = node.loc
		return true
	}
	return false
}

// cceLocTable picks the candidate table matching the record's identity.
func (c *coresetRegion) cceLocTable(record *allocRecord) []uint32 {
	switch record.rntiType {
	case nr.RntiTypeRA:
		return c.bwp.RarCceList[c.slotIdx][record.aggrIdx]
	case nr.RntiTypeSI:
		if t, ok := c.bwp.CommonCceList[record.ssID]; ok {
			return t[c.slotIdx][record.aggrIdx]
		}
		return nil
	default:
		if record.ue != nil {
			return record.ue.CcePosList(record.ssID, c.slotIdx, record.aggrIdx)
		}
		return nil
	}
}

// totalMask returns the cumulative CCE occupancy of the coreset.
func (c *coresetRegion) totalMask() uint256.Int {
	if len(c.dfsTree) == 0 {
		return uint256.Int{}
	}
	return c.dfsTree[len(c.dfsTree)-1].total
}

// BwpPdcchAllocator allocates DCI positions in the coresets of one BWP
// for one slot, filling the PDCCH lists of the slot result.
type BwpPdcchAllocator struct {
	bwp     *BwpParams
	slotIdx uint32
	logger  *log.Logger

	// pdcchDlList and pdcchUlList point into the slot result. The backing
	// arrays are pre-sized to MaxGrants so record DCI pointers stay valid.
	pdcchDlList *[]PdcchDl
	pdcchUlList *[]PdcchUl

	coresets map[uint32]*coresetRegion

	pendingDci *nr.DciCtx
}

// NewBwpPdcchAllocator builds the PDCCH allocator of one slot.
func NewBwpPdcchAllocator(bwp *BwpParams, slotIdx uint32, dl *[]PdcchDl, ul *[]PdcchUl) *BwpPdcchAllocator {
	a := &BwpPdcchAllocator{
		bwp:         bwp,
		slotIdx:     slotIdx,
		logger:      bwp.Logger,
		pdcchDlList: dl,
		pdcchUlList: ul,
		coresets:    make(map[uint32]*coresetRegion),
	}
	for i := range bwp.Cfg.Pdcch.Coresets {
		cs := &bwp.Cfg.Pdcch.Coresets[i]
		a.coresets[cs.ID] = newCoresetRegion(bwp, cs.ID, slotIdx)
	}
	return a
}

// Reset clears every allocation of the slot.
func (a *BwpPdcchAllocator) Reset() {
	a.pendingDci = nil
	*a.pdcchDlList = (*a.pdcchDlList)[:0]
	*a.pdcchUlList = (*a.pdcchUlList)[:0]
	for _, cs := range a.coresets {
		cs.reset()
	}
}

// NofAllocations returns the number of DCIs placed in the slot.
func (a *BwpPdcchAllocator) NofAllocations() int {
	n := 0
	for _, cs := range a.coresets {
		n += cs.nofAllocs()
	}
	return n
}

// NofCces returns the capacity of a coreset.
func (a *BwpPdcchAllocator) NofCces(csID uint32) uint32 {
	if cs, ok := a.coresets[csID]; ok {
		return cs.nofCces()
	}
	return 0
}

// CoresetMask returns the cumulative CCE occupancy of a coreset.
func (a *BwpPdcchAllocator) CoresetMask(csID uint32) uint256.Int {
	if cs, ok := a.coresets[csID]; ok {
		return cs.totalMask()
	}
	return uint256.Int{}
}

func fillDciCtxCommon(dci *nr.DciCtx, rntiType nr.RntiType, rnti nr.Rnti, ss *nr.SearchSpace, fmt nr.DciFormat, cs *nr.Coreset) {
	dci.SsID = ss.ID
	dci.SsType = ss.Type
	dci.CoresetID = ss.CoresetID
	if cs != nil {
		dci.CoresetStartRb = cs.StartRb()
	}
	dci.RntiType = rntiType
	dci.Rnti = rnti
	dci.Format = fmt
}

// AllocRarPdcch allocates the DCI of a RAR in the RA search space.
func (a *BwpPdcchAllocator) AllocRarPdcch(raRnti nr.Rnti, aggrIdx uint32) (*PdcchDl, AllocResult) {
	ss := a.bwp.RaSearchSpace()
	if ss == nil {
		return nil, AllocInvalidGrantParams
	}
	return a.allocDlPdcchCommon(nr.RntiTypeRA, raRnti, ss.ID, aggrIdx, nr.DciFormat10, nil)
}

// AllocSiPdcch allocates the DCI of an SI message.
func (a *BwpPdcchAllocator) AllocSiPdcch(ssID, aggrIdx uint32) (*PdcchDl, AllocResult) {
	return a.allocDlPdcchCommon(nr.RntiTypeSI, nr.SiRnti, ssID, aggrIdx, nr.DciFormat10, nil)
}

// AllocDlPdcch allocates a UE downlink DCI.
func (a *BwpPdcchAllocator) AllocDlPdcch(rntiType nr.RntiType, ssID, aggrIdx uint32, ue *UeCarrierParams) (*PdcchDl, AllocResult) {
	if rntiType != nr.RntiTypeC && rntiType != nr.RntiTypeTC {
		return nil, AllocInvalidGrantParams
	}
	return a.allocDlPdcchCommon(rntiType, ue.Rnti, ssID, aggrIdx, nr.DciFormat10, ue)
}

func (a *BwpPdcchAllocator) allocDlPdcchCommon(rntiType nr.RntiType, rnti nr.Rnti, ssID, aggrIdx uint32, dciFmt nr.DciFormat, ue *UeCarrierParams) (*PdcchDl, AllocResult) {
	if r := a.checkArgsValid(rntiType, rnti, ssID, aggrIdx, dciFmt, ue, true); !r.Ok() {
		return nil, r
	}
	ss := a.lookupSS(rntiType, ssID, ue)

	// Append a placeholder record to the slot result.
	*a.pdcchDlList = append(*a.pdcchDlList, PdcchDl{})
	pdcch := &(*a.pdcchDlList)[len(*a.pdcchDlList)-1]

	cs := a.coresets[ss.CoresetID]
	record := allocRecord{
		aggrIdx:  aggrIdx,
		ssID:     ssID,
		rnti:     rnti,
		rntiType: rntiType,
		isDl:     true,
		ue:       ue,
		dci:      &pdcch.Dci.Ctx,
	}
	if !cs.allocPdcch(record) {
		*a.pdcchDlList = (*a.pdcchDlList)[:len(*a.pdcchDlList)-1]
		a.logger.Debug("pdcch allocation failed: no CCE position",
			"rnti_type", rntiType, "rnti", rnti, "ss_id", ssID, "aggr_idx", aggrIdx)
		return nil, AllocNoCchSpace
	}

	a.fillDlDciFromCfg(&pdcch.Dci)
	fillDciCtxCommon(&pdcch.Dci.Ctx, rntiType, rnti, ss, dciFmt, a.bwp.Coreset(ss.CoresetID))
	if ue != nil {
		pdcch.DciCfg = ue.DciCfg()
	}
	a.pendingDci = &pdcch.Dci.Ctx
	return pdcch, AllocSuccess
}

// AllocUlPdcch allocates a UE uplink DCI.
func (a *BwpPdcchAllocator) AllocUlPdcch(ssID, aggrIdx uint32, ue *UeCarrierParams) (*PdcchUl, AllocResult) {
	if r := a.checkArgsValid(nr.RntiTypeC, ue.Rnti, ssID, aggrIdx, nr.DciFormat00, ue, false); !r.Ok() {
		return nil, r
	}
	ss := ue.GetSS(ssID)

	*a.pdcchUlList = append(*a.pdcchUlList, PdcchUl{})
	pdcch := &(*a.pdcchUlList)[len(*a.pdcchUlList)-1]

	cs := a.coresets[ss.CoresetID]
	record := allocRecord{
		aggrIdx:  aggrIdx,
		ssID:     ssID,
		rnti:     ue.Rnti,
		rntiType: nr.RntiTypeC,
		isDl:     false,
		ue:       ue,
		dci:      &pdcch.Dci.Ctx,
	}
	if !cs.allocPdcch(record) {
		*a.pdcchUlList = (*a.pdcchUlList)[:len(*a.pdcchUlList)-1]
		a.logger.Debug("ul pdcch allocation failed: no CCE position",
			"rnti", ue.Rnti, "ss_id", ssID, "aggr_idx", aggrIdx)
		return nil, AllocNoCchSpace
	}

	a.fillUlDciFromCfg(&pdcch.Dci)
	fillDciCtxCommon(&pdcch.Dci.Ctx, nr.RntiTypeC, ue.Rnti, ss, nr.DciFormat00, a.bwp.Coreset(ss.CoresetID))
	pdcch.DciCfg = ue.DciCfg()
	a.pendingDci = &pdcch.Dci.Ctx
	return pdcch, AllocSuccess
}

// CancelLastPdcch removes the most recent allocation, for callers whose
// downstream step failed after the PDCCH was placed.
func (a *BwpPdcchAllocator) CancelLastPdcch() {
	if a.pendingDci == nil {
		a.logger.Error("cancel of pdcch allocation that does not exist")
		return
	}
	csID := a.pendingDci.CoresetID
	switch {
	case len(*a.pdcchDlList) > 0 && &(*a.pdcchDlList)[len(*a.pdcchDlList)-1].Dci.Ctx == a.pendingDci:
		*a.pdcchDlList = (*a.pdcchDlList)[:len(*a.pdcchDlList)-1]
	case len(*a.pdcchUlList) > 0 && &(*a.pdcchUlList)[len(*a.pdcchUlList)-1].Dci.Ctx == a.pendingDci:
		*a.pdcchUlList = (*a.pdcchUlList)[:len(*a.pdcchUlList)-1]
	default:
		a.logger.Error("invalid DCI context provided for removal")
		return
	}
	if cs, ok := a.coresets[csID]; ok {
		cs.remLastPdcch()
	}
	a.pendingDci = nil
}

func (a *BwpPdcchAllocator) fillDlDciFromCfg(dci *nr.DciDl) {
	dci.Tpc = 1
	if a.bwp.Coreset(0) != nil {
		dci.Coreset0Bw = a.bwp.CoresetPrbRange(0).Length()
	}
}

func (a *BwpPdcchAllocator) fillUlDciFromCfg(dci *nr.DciUl) {
	dci.Tpc = 1
}

func (a *BwpPdcchAllocator) lookupSS(rntiType nr.RntiType, ssID uint32, ue *UeCarrierParams) *nr.SearchSpace {
	if ue != nil {
		return ue.GetSS(ssID)
	}
	if rntiType == nr.RntiTypeRA {
		return a.bwp.RaSearchSpace()
	}
	return a.bwp.GetSS(ssID)
}

func (a *BwpPdcchAllocator) checkArgsValid(rntiType nr.RntiType, rnti nr.Rnti, ssID, aggrIdx uint32, dciFmt nr.DciFormat, ue *UeCarrierParams, isDl bool) AllocResult {
	if aggrIdx >= nr.MaxNofAggrLevels {
		return AllocInvalidGrantParams
	}

	// DL must be active in the slot for any PDCCH.
	if !a.bwp.IsDl(a.slotIdx) {
		a.logger.Error("pdcch allocation in non-DL slot", "slot_idx", a.slotIdx, "rnti", rnti)
		return AllocNoCchSpace
	}

	ss := a.lookupSS(rntiType, ssID, ue)
	if ss == nil {
		a.logger.Error("search space not configured", "ss_id", ssID, "rnti", rnti)
		return AllocInvalidGrantParams
	}
	if ss.NofCandidates[aggrIdx] == 0 {
		a.logger.Warn("search space has no candidates for aggregation level",
			"ss_id", ssID, "aggr_idx", aggrIdx, "rnti", rnti)
		return AllocInvalidGrantParams
	}
	if !nr.RntiTypeAllowedInSearchSpace(rntiType, ss.Type) {
		a.logger.Warn("rnti type not allowed in search space",
			"ss_id", ssID, "ss_type", ss.Type, "rnti_type", rntiType, "rnti", rnti)
		return AllocInvalidGrantParams
	}
	if !ss.HasFormat(dciFmt) {
		a.logger.Warn("search space does not support dci format",
			"ss_id", ssID, "format", dciFmt, "rnti", rnti)
		return AllocInvalidGrantParams
	}
	if _, ok := a.coresets[ss.CoresetID]; !ok {
		a.logger.Error("search space maps to unconfigured coreset",
			"ss_id", ssID, "coreset_id", ss.CoresetID)
		return AllocInvalidGrantParams
	}

	if isDl {
		if len(*a.pdcchDlList) >= MaxGrants {
			a.logger.Warn("maximum number of DL PDCCH allocations reached", "max", MaxGrants)
			return AllocNoCchSpace
		}
	} else if len(*a.pdcchUlList) >= MaxGrants {
		a.logger.Warn("maximum number of UL PDCCH allocations reached", "max", MaxGrants)
		return AllocNoCchSpace
	}

	if ue != nil && ue.ActiveBwp().BwpID != a.bwp.BwpID {
		a.logger.Warn("UE active BWP mismatch", "rnti", rnti,
			"ue_bwp", ue.ActiveBwp().BwpID, "bwp", a.bwp.BwpID)
		return AllocNoRntiOpportunity
	}

	return AllocSuccess
}
