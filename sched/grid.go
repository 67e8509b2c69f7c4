package sched

import (
	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
	"github.com/gnbsched/gnbsched/phy"
)

// HarqAck is one pending HARQ-ACK awaiting UCI multiplexing in its slot.
type HarqAck struct {
	Res   phy.AckResource
	UePhy *phy.UeConfig
}

// BwpSlotGrid holds everything scheduled on one BWP for one slot: the
// three resource allocators, the pending HARQ-ACK list and the emitted
// DL/UL results.
type BwpSlotGrid struct {
	SlotIdx uint32
	Cfg     *BwpParams

	Dl DlResult
	Ul UlResult

	PendingAcks []HarqAck

	Pdcchs *BwpPdcchAllocator
	Pdschs *PdschAllocator
	Puschs *PuschAllocator

	RarSoftbuffer *TxSoftbuffer
}

// NewBwpSlotGrid builds one ring entry of the BWP resource grid.
func NewBwpSlotGrid(bwp *BwpParams, slotIdx uint32, pool *SoftbufferPool) *BwpSlotGrid {
	g := &BwpSlotGrid{
		SlotIdx:     slotIdx,
		Cfg:         bwp,
		Dl:          newDlResult(),
		Ul:          newUlResult(),
		PendingAcks: make([]HarqAck, 0, MaxGrants),
	}
	g.Pdcchs = NewBwpPdcchAllocator(bwp, slotIdx, &g.Dl.PdcchDl, &g.Dl.PdcchUl)
	g.Pdschs = NewPdschAllocator(bwp, slotIdx, &g.Dl.Pdsch)
	g.Puschs = NewPuschAllocator(bwp, slotIdx, &g.Ul.Pusch)
	g.RarSoftbuffer = pool.GetTx(bwp.Cfg.RbWidth)
	return g
}

// Reset clears the slot entry for reuse when it re-enters the TX window.
func (g *BwpSlotGrid) Reset() {
	g.Pdcchs.Reset()
	g.Pdschs.Reset()
	g.Puschs.Reset()
	g.Dl.reset()
	g.Ul.reset()
	g.PendingAcks = g.PendingAcks[:0]
}

// IsDl reports whether the slot admits downlink transmissions.
func (g *BwpSlotGrid) IsDl() bool { return g.Cfg.IsDl(g.SlotIdx) }

// IsUl reports whether the slot admits uplink transmissions.
func (g *BwpSlotGrid) IsUl() bool { return g.Cfg.IsUl(g.SlotIdx) }

// ReservePdsch marks PRBs as occupied ahead of data allocation.
func (g *BwpSlotGrid) ReservePdsch(grant nr.PrbGrant) { g.Pdschs.ReservePrbs(grant) }

// BwpResGrid is the ring of slot grids covering the TX window.
type BwpResGrid struct {
	cfg   *BwpParams
	slots []*BwpSlotGrid
}

// NewBwpResGrid builds the TtimodSz-deep ring of one BWP.
func NewBwpResGrid(bwp *BwpParams, pool *SoftbufferPool) *BwpResGrid {
	g := &BwpResGrid{cfg: bwp}
	for sl := uint32(0); sl < TtimodSz; sl++ {
		g.slots = append(g.slots, NewBwpSlotGrid(bwp, sl%bwp.NofSlots(), pool))
	}
	return g
}

// Slot returns the ring entry of a slot point.
func (g *BwpResGrid) Slot(sl nr.SlotPoint) *BwpSlotGrid {
	return g.slots[sl.ToUint()%TtimodSz]
}

// Cfg returns the BWP parameters of the grid.
func (g *BwpResGrid) Cfg() *BwpParams { return g.cfg }

// BwpSlotAllocator jointly fills the DL/UL results and the resource
// masks of the slots an allocation touches, keeping PDCCH, PDSCH, PUSCH
// and UCI consistent.
type BwpSlotAllocator struct {
	logger *log.Logger
	cfg    *BwpParams

	grid      *BwpResGrid
	pdcchSlot nr.SlotPoint
	slotUes   map[nr.Rnti]*SlotUe
}

// NewBwpSlotAllocator builds the allocator of one worker slot.
func NewBwpSlotAllocator(grid *BwpResGrid, pdcchSlot nr.SlotPoint, slotUes map[nr.Rnti]*SlotUe) *BwpSlotAllocator {
	return &BwpSlotAllocator{
		logger:    grid.cfg.Logger,
		cfg:       grid.cfg,
		grid:      grid,
		pdcchSlot: pdcchSlot,
		slotUes:   slotUes,
	}
}

// PdcchSlot returns the slot DCIs are transmitted in.
func (a *BwpSlotAllocator) PdcchSlot() nr.SlotPoint { return a.pdcchSlot }

// RxSlot returns the slot currently on air at the receiver.
func (a *BwpSlotAllocator) RxSlot() nr.SlotPoint { return a.pdcchSlot.Add(-TxEnbDelay) }

// Grid returns the underlying resource grid.
func (a *BwpSlotAllocator) Grid() *BwpResGrid { return a.grid }

// TxSlotGrid returns the grid entry of the PDCCH slot.
func (a *BwpSlotAllocator) TxSlotGrid() *BwpSlotGrid { return a.grid.Slot(a.pdcchSlot) }

// Cfg returns the BWP parameters.
func (a *BwpSlotAllocator) Cfg() *BwpParams { return a.cfg }

// OccupiedDlPrbs returns the DL occupancy of a slot for a given search
// space and DCI format.
func (a *BwpSlotAllocator) OccupiedDlPrbs(sl nr.SlotPoint, ssID uint32, dciFmt nr.DciFormat) nr.PrbBitmap {
	return a.grid.Slot(sl).Pdschs.OccupiedPrbs(ssID, dciFmt)
}

// OccupiedUlPrbs returns the UL occupancy of a slot.
func (a *BwpSlotAllocator) OccupiedUlPrbs(sl nr.SlotPoint) nr.PrbBitmap {
	return a.grid.Slot(sl).Puschs.OccupiedPrbs()
}

// AllocSi allocates the PDCCH and PDSCH of one SI message in search
// space #0 of coreset #0.
func (a *BwpSlotAllocator) AllocSi(aggrIdx, siIdx, siNtx uint32, prbs nr.PrbInterval, softbuffer *TxSoftbuffer) AllocResult {
	const ssID = 0
	const maxR = 0.95
	pdcchGrid := a.TxSlotGrid()

	grant := nr.GrantFromInterval(prbs)
	if r := pdcchGrid.Pdschs.IsSiGrantValid(ssID, grant); !r.Ok() {
		return r
	}

	pdcch, r := pdcchGrid.Pdcchs.AllocSiPdcch(ssID, aggrIdx)
	if !r.Ok() {
		a.logger.Warn("cannot allocate SIB: no PDCCH space", "si_idx", siIdx)
		return r
	}

	pdsch, _ := pdcchGrid.Pdschs.AllocSiPdsch(ssID, grant, &pdcch.Dci)
	if pdsch == nil {
		pdcchGrid.Pdcchs.CancelLastPdcch()
		return AllocOtherCause
	}

	pdcch.Dci.Mcs = 5
	pdcch.Dci.Rv = 0
	if siIdx == 0 {
		pdcch.Dci.Sii = 0
	} else {
		pdcch.Dci.Sii = 1
	}
	pdcch.DciCfg = nr.DciConfig{BwpDlWidth: a.cfg.NofPrb, Coreset0Bw: a.cfg.CoresetPrbRange(0).Length()}

	sch, err := phy.DlGrantToPdsch(a.cfg.Geometry(), &pdcch.Dci, grant)
	if err != nil {
		a.logger.Warn("error generating SIB PDSCH grant", "err", err)
		pdcchGrid.Pdcchs.CancelLastPdcch()
		pdcchGrid.Pdschs.CancelLastPdsch()
		return AllocOtherCause
	}
	if sch.Grant.RPrime >= maxR {
		pdcchGrid.Pdcchs.CancelLastPdcch()
		pdcchGrid.Pdschs.CancelLastPdsch()
		return AllocInvalidCoderate
	}
	pdsch.Sch = sch
	pdsch.Softbuffer = softbuffer

	pdcchGrid.Dl.SibIdxs = append(pdcchGrid.Dl.SibIdxs, siIdx)
	return AllocSuccess
}

// AllocRarAndMsg3 allocates a RAR PDCCH+PDSCH in the PDCCH slot together
// with one Msg3 PUSCH per pending RACH at pdcch_slot + msg3_delay. The
// operation is atomic: any sub-failure leaves no partial allocation.
func (a *BwpSlotAllocator) AllocRarAndMsg3(raRnti nr.Rnti, aggrIdx uint32, interv nr.PrbInterval, pendingRachs []RarInfo) AllocResult {
	const msg3NofPrbs = 3
	const msg3Mcs = 0
	const msg3MaxRetx = 4
	const maxR = 0.95

	pdcchGrid := a.TxSlotGrid()
	msg3Slot := a.pdcchSlot.Add(int(a.cfg.PuschRaList[0].Msg3Delay))
	msg3Grid := a.grid.Slot(msg3Slot)

	grant := nr.GrantFromInterval(interv)
	if r := pdcchGrid.Pdschs.IsRarGrantValid(grant); !r.Ok() {
		return r
	}
	for _, rach := range pendingRachs {
		if _, ok := a.slotUes[rach.TempCrnti]; !ok {
			a.logger.Info("postponing RAR allocation: UE object not yet created",
				"temp_crnti", rach.TempCrnti)
			return AllocNoRntiOpportunity
		}
	}
	if len(pdcchGrid.Dl.Rar) >= MaxGrants {
		return AllocNoSchSpace
	}
	if len(pdcchGrid.Dl.Ssb) > 0 {
		// Concurrent PDSCH and SSB not supported.
		a.logger.Debug("skipping RAR allocation: SSB in slot")
		return AllocNoSchSpace
	}

	// Verify Msg3 capacity: grant-list space plus a contiguous PRB region.
	if r := msg3Grid.Puschs.HasGrantSpace(len(pendingRachs)); !r.Ok() {
		return r
	}
	totalMsg3Prbs := uint32(msg3NofPrbs * len(pendingRachs))
	allMsg3Rbs := msg3Grid.Puschs.OccupiedPrbs().FindEmptyInterval(totalMsg3Prbs, 0)
	if allMsg3Rbs.Length() < totalMsg3Prbs {
		a.logger.Debug("no space in PUSCH for Msg3", "needed", totalMsg3Prbs)
		return AllocSchCollision
	}

	pdcch, r := pdcchGrid.Pdcchs.AllocRarPdcch(raRnti, aggrIdx)
	if !r.Ok() {
		return r
	}
	pdcch.Dci.Mcs = 5
	pdcch.DciCfg = a.slotUes[pendingRachs[0].TempCrnti].Cfg().DciCfg()

	pdsch := pdcchGrid.Pdschs.AllocRarPdschUnchecked(grant, &pdcch.Dci)
	sch, err := phy.DlGrantToPdsch(a.cfg.Geometry(), &pdcch.Dci, grant)
	if err != nil {
		a.logger.Warn("error generating RAR PDSCH grant", "err", err)
		pdcchGrid.Pdcchs.CancelLastPdcch()
		pdcchGrid.Pdschs.CancelLastPdsch()
		return AllocOtherCause
	}
	if sch.Grant.RPrime >= maxR {
		pdcchGrid.Pdcchs.CancelLastPdcch()
		pdcchGrid.Pdschs.CancelLastPdsch()
		return AllocInvalidCoderate
	}
	pdsch.Sch = sch
	pdsch.Softbuffer = pdcchGrid.RarSoftbuffer

	pdcchGrid.Dl.Rar = append(pdcchGrid.Dl.Rar, Rar{RaRnti: raRnti, Grants: make([]RarGrant, 0, len(pendingRachs))})
	rarOut := &pdcchGrid.Dl.Rar[len(pdcchGrid.Dl.Rar)-1]

	lastMsg3 := allMsg3Rbs.Start()
	for _, rach := range pendingRachs {
		ue := a.slotUes[rach.TempCrnti]

		rarOut.Grants = append(rarOut.Grants, RarGrant{Data: rach})
		rarGrant := &rarOut.Grants[len(rarOut.Grants)-1]

		msg3Dci := &rarGrant.Msg3Dci
		msg3Dci.Tpc = 1
		msg3Dci.Ctx.CoresetID = pdcch.Dci.Ctx.CoresetID
		msg3Dci.Ctx.RntiType = nr.RntiTypeTC
		msg3Dci.Ctx.Rnti = ue.Rnti()
		msg3Dci.Ctx.SsType = nr.SearchSpaceTypeRar
		msg3Dci.Ctx.Format = nr.DciFormatRar
		msg3Dci.Mcs = msg3Mcs

		msg3Interv := nr.NewPrbInterval(lastMsg3, lastMsg3+msg3NofPrbs)
		lastMsg3 += msg3NofPrbs
		msg3PrbGrant := nr.GrantFromInterval(msg3Interv)
		pusch := msg3Grid.Puschs.AllocPuschUnchecked(msg3PrbGrant, msg3Dci)

		hUl := ue.FindEmptyUlHarq()
		if hUl == nil {
			a.logger.Error("no empty UL HARQ for Msg3", "temp_crnti", ue.Rnti())
			return AllocOtherCause
		}
		if !hUl.NewTx(msg3Slot, msg3PrbGrant, msg3Mcs, msg3MaxRetx, msg3Dci, a.poolOf(ue), msg3NofPrbs) {
			a.logger.Error("failed to allocate Msg3 UL HARQ", "temp_crnti", ue.Rnti())
			return AllocOtherCause
		}
		ue.HUl = hUl

		schUl, err := phy.UlGrantToPusch(a.cfg.Geometry(), msg3Dci, msg3PrbGrant)
		if err != nil {
			a.logger.Error("error converting Msg3 DCI to PUSCH grant", "err", err)
			return AllocOtherCause
		}
		pusch.Pid = hUl.Pid()
		pusch.Sch = schUl
		pusch.Softbuffer = hUl.Softbuffer()
		hUl.SetTbs(schUl.Grant.TbsBytes)
	}

	return AllocSuccess
}

// AllocPdsch allocates the PDCCH+PDSCH of one UE grant, selects the MCS
// (with the code-rate backoff loop on first transmissions), books the
// HARQ process, builds the MAC PDU and registers the HARQ-ACK resource.
func (a *BwpSlotAllocator) AllocPdsch(ue *SlotUe, ssID uint32, dlGrant nr.PrbGrant) AllocResult {
	const aggrIdx = 2
	const dciFmt = nr.DciFormat10
	const rntiType = nr.RntiTypeC
	const minMcsCcch = 4
	const maxR = 0.95

	pdcchGrid := a.grid.Slot(ue.PdcchSlot)
	pdschGrid := a.grid.Slot(ue.PdschSlot)
	uciGrid := a.grid.Slot(ue.UciSlot)

	if r := pdcchGrid.Pdschs.IsUeGrantValid(ue.Cfg(), ssID, dciFmt, dlGrant); !r.Ok() {
		return r
	}
	if r := a.verifyUciSpace(uciGrid); !r.Ok() {
		return r
	}
	if ue.HDl == nil {
		a.logger.Warn("allocation attempt with no available DL HARQ", "rnti", ue.Rnti())
		return AllocNoRntiOpportunity
	}
	if len(pdschGrid.Dl.Ssb) > 0 {
		// Concurrent PDSCH and SSB not supported.
		a.logger.Debug("skipping PDSCH allocation: SSB in slot")
		return AllocNoSchSpace
	}

	pdcch, r := pdcchGrid.Pdcchs.AllocDlPdcch(rntiType, ssID, aggrIdx, ue.Cfg())
	if !r.Ok() {
		return r
	}
	pdcch.DciCfg = ue.Cfg().DciCfg()
	pdcch.Dci.PucchResource = 0
	var dai uint32
	for i := range uciGrid.PendingAcks {
		if uciGrid.PendingAcks[i].Res.Rnti == ue.Rnti() {
			dai++
		}
	}
	pdcch.Dci.Dai = dai % 4

	pdsch := pdcchGrid.Pdschs.AllocUePdschUnchecked(ssID, dciFmt, dlGrant, ue.Cfg(), &pdcch.Dci)

	// MCS selection and HARQ booking.
	mcs := ue.Cfg().FixedPdschMcs()
	isNewTx := ue.HDl.Empty()
	if isNewTx {
		if mcs < 0 {
			mcs = nr.CqiToMcs(ue.DlCqi())
			if mcs < 0 {
				a.logger.Warn("UE reported CQI=0, using MCS 0", "rnti", ue.Rnti())
				mcs = 0
			}
		}
		// CCCH cannot be segmented; raise the MCS floor while SRB0 bytes
		// are pending.
		if ue.PendingBytes(CcchLcid) > 0 && mcs < minMcsCcch {
			mcs = minMcsCcch
			a.logger.Info("MCS raised to floor for CCCH", "rnti", ue.Rnti(), "mcs", mcs)
		}
		pdcch.Dci.Mcs = mcs
		if !ue.HDl.NewTx(ue.PdschSlot, ue.UciSlot, dlGrant, mcs, 4, &pdcch.Dci, a.poolOf(ue), a.cfg.NofPrb) {
			a.logger.Error("failed to book DL HARQ", "rnti", ue.Rnti())
			pdcchGrid.Pdcchs.CancelLastPdcch()
			pdcchGrid.Pdschs.CancelLastPdsch()
			return AllocOtherCause
		}
	} else {
		if !ue.HDl.NewRetx(ue.PdschSlot, ue.UciSlot, dlGrant, &pdcch.Dci) {
			a.logger.Error("failed to book DL HARQ retx", "rnti", ue.Rnti())
			pdcchGrid.Pdcchs.CancelLastPdcch()
			pdcchGrid.Pdschs.CancelLastPdsch()
			return AllocOtherCause
		}
		mcs = ue.HDl.Mcs()
	}

	// Decrease the MCS while the first transmission's effective code
	// rate exceeds the cap (TS 38.214, 5.1.3).
	var sch phy.PdschCfg
	for {
		var err error
		sch, err = phy.DlGrantToPdsch(a.cfg.Geometry(), &pdcch.Dci, dlGrant)
		if err != nil {
			a.logger.Error("error converting DCI to PDSCH grant", "err", err)
			pdcchGrid.Pdcchs.CancelLastPdcch()
			pdcchGrid.Pdschs.CancelLastPdsch()
			return AllocOtherCause
		}
		if ue.HDl.NofRetx() != 0 && sch.Grant.TbsBytes != ue.HDl.Tbs() {
			a.logger.Error("TBS did not remain constant in retx", "rnti", ue.Rnti(),
				"tbs", sch.Grant.TbsBytes, "expected", ue.HDl.Tbs())
		}
		if ue.HDl.NofRetx() > 0 || sch.Grant.RPrime < maxR || mcs <= 0 ||
			(ue.PendingBytes(CcchLcid) > 0 && mcs <= minMcsCcch) {
			break
		}
		mcs--
		pdcch.Dci.Mcs = mcs
	}
	if sch.Grant.RPrime >= maxR && mcs == 0 {
		a.logger.Warn("no MCS yields code rate below cap", "rnti", ue.Rnti())
	}

	ue.HDl.SetMcs(mcs)
	ue.HDl.SetTbs(sch.Grant.TbsBytes)
	pdsch.Sch = sch
	pdsch.Softbuffer = ue.HDl.Softbuffer()

	// Select the scheduled LCIDs and update the UE buffer state.
	pdcchGrid.Dl.Data = append(pdcchGrid.Dl.Data, DlPdu{Subpdus: make([]uint32, 0, MaxSubPdus)})
	pdu := &pdcchGrid.Dl.Data[len(pdcchGrid.Dl.Data)-1]
	if !ue.BuildPdu(ue.HDl.Tbs(), pdu) {
		a.logger.Error("insufficient resources for unsegmented CCCH", "rnti", ue.Rnti())
	}

	// Register the HARQ-ACK resource in the UCI slot.
	ack, ok := ue.Phy().GetPdschAckResource(&pdcch.Dci, ue.PdschSlot)
	if !ok {
		a.logger.Error("error getting ack resource", "rnti", ue.Rnti())
		return AllocSuccess
	}
	uciGrid.PendingAcks = append(uciGrid.PendingAcks, HarqAck{Res: ack, UePhy: ue.Phy()})

	return AllocSuccess
}

// AllocPusch allocates the PDCCH+PUSCH of one UE uplink grant.
func (a *BwpSlotAllocator) AllocPusch(ue *SlotUe, ulGrant nr.PrbGrant) AllocResult {
	const aggrIdx = 2

	pdcchGrid := a.grid.Slot(ue.PdcchSlot)
	puschGrid := a.grid.Slot(ue.PuschSlot)

	if ue.HUl == nil {
		a.logger.Warn("allocation attempt with no available UL HARQ", "rnti", ue.Rnti())
		return AllocNoRntiOpportunity
	}

	ssCandidates := findSS(&ue.Phy().Pdcch, aggrIdx, nr.RntiTypeC,
		[]nr.DciFormat{nr.DciFormat01, nr.DciFormat00})
	if len(ssCandidates) == 0 {
		a.logger.Warn("no PDCCH candidates in any UE search space", "rnti", ue.Rnti())
		return AllocNoCchSpace
	}
	ss := ssCandidates[0]

	if r := puschGrid.Puschs.IsGrantValid(ss.Type, ulGrant); !r.Ok() {
		return r
	}

	pdcch, r := pdcchGrid.Pdcchs.AllocUlPdcch(ss.ID, aggrIdx, ue.Cfg())
	if !r.Ok() {
		return r
	}
	pdcch.DciCfg = ue.Cfg().DciCfg()

	pusch := puschGrid.Puschs.AllocPuschUnchecked(ulGrant, &pdcch.Dci)

	if ue.HUl.Empty() {
		mcs := ue.Cfg().FixedPuschMcs()
		pdcch.Dci.Mcs = mcs
		if !ue.HUl.NewTx(ue.PuschSlot, ulGrant, mcs, ue.Cfg().UeCfg().MaxHarqTx, &pdcch.Dci, a.poolOf(ue), a.cfg.NofPrb) {
			a.logger.Error("failed to book UL HARQ", "rnti", ue.Rnti())
			pdcchGrid.Pdcchs.CancelLastPdcch()
			puschGrid.Puschs.CancelLastPusch()
			return AllocOtherCause
		}
	} else {
		if !ue.HUl.NewRetx(ue.PuschSlot, ulGrant, &pdcch.Dci) {
			a.logger.Error("failed to book UL HARQ retx", "rnti", ue.Rnti())
			pdcchGrid.Pdcchs.CancelLastPdcch()
			puschGrid.Puschs.CancelLastPusch()
			return AllocOtherCause
		}
	}

	sch, err := phy.UlGrantToPusch(a.cfg.Geometry(), &pdcch.Dci, ulGrant)
	if err != nil {
		a.logger.Error("error converting DCI to PUSCH grant", "err", err)
		pdcchGrid.Pdcchs.CancelLastPdcch()
		puschGrid.Puschs.CancelLastPusch()
		return AllocOtherCause
	}
	pusch.Pid = ue.HUl.Pid()
	pusch.Sch = sch
	pusch.Softbuffer = ue.HUl.Softbuffer()
	if ue.HUl.NofRetx() == 0 {
		ue.HUl.SetTbs(sch.Grant.TbsBytes)
	} else if sch.Grant.TbsBytes != ue.HUl.Tbs() {
		a.logger.Error("UL TBS did not remain constant in retx", "rnti", ue.Rnti(),
			"tbs", sch.Grant.TbsBytes, "expected", ue.HUl.Tbs())
	}

	return AllocSuccess
}

func (a *BwpSlotAllocator) verifyUciSpace(uciGrid *BwpSlotGrid) AllocResult {
	if len(uciGrid.PendingAcks) >= MaxGrants {
		a.logger.Warn("no space for HARQ-ACK")
		return AllocNoGrantSpace
	}
	return AllocSuccess
}

func (a *BwpSlotAllocator) poolOf(ue *SlotUe) *SoftbufferPool {
	return ue.Carrier().cellParams.softbufferPool
}

// findSS collects the search spaces of a UE able to carry one of the
// given DCI formats at the aggregation index, UE-dedicated first.
func findSS(pdcch *phy.PdcchConfig, aggrIdx uint32, rntiType nr.RntiType, prioDcis []nr.DciFormat) []*nr.SearchSpace {
	var ret []*nr.SearchSpace

	containsFmt := func(ss *nr.SearchSpace) bool {
		if ss.NofCandidates[aggrIdx] == 0 {
			return false
		}
		for _, f := range prioDcis {
			if ss.HasFormat(f) {
				return true
			}
		}
		return false
	}
	commonAllowed := func(t nr.SearchSpaceType) bool {
		switch rntiType {
		case nr.RntiTypeC, nr.RntiTypeTC, nr.RntiTypeRA:
			return t == nr.SearchSpaceTypeCommon1 || t == nr.SearchSpaceTypeCommon3
		case nr.RntiTypeSI:
			return t == nr.SearchSpaceTypeCommon0
		}
		return false
	}

	if rntiType == nr.RntiTypeC {
		for i := range pdcch.SearchSpaces {
			ss := &pdcch.SearchSpaces[i]
			if ss.Type == nr.SearchSpaceTypeUE && containsFmt(ss) {
				ret = append(ret, ss)
			}
		}
	}
	for i := range pdcch.SearchSpaces {
		ss := &pdcch.SearchSpaces[i]
		if ss.Type.IsCommon() && commonAllowed(ss.Type) && containsFmt(ss) {
			ret = append(ret, ss)
		}
	}
	return ret
}

// FindOptimalDlGrant picks the widest free PRB interval of the PDSCH
// slot for a new transmission.
func FindOptimalDlGrant(alloc *BwpSlotAllocator, ue *SlotUe, ssID uint32) nr.PrbGrant {
	const dciFmt = nr.DciFormat10
	mask := alloc.OccupiedDlPrbs(ue.PdschSlot, ssID, dciFmt)
	interv := mask.FindEmptyInterval(mask.Size(), 0)
	return nr.GrantFromInterval(interv)
}
