package sched

import (
	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
	"github.com/gnbsched/gnbsched/phy"
)

// UeMetrics accumulates per-UE counters between metric snapshots.
type UeMetrics struct {
	TxBrate  uint64
	TxErrors uint64
	TxPkts   uint64
}

// ueContextCommon is the UE state shared by all carriers: the pending
// byte totals computed once per slot.
type ueContextCommon struct {
	pendingDlBytes uint32
	pendingUlBytes uint32
}

// UeCarrier is the per-carrier scheduling state of one UE: HARQ entity,
// derived parameters, channel quality and counters.
type UeCarrier struct {
	Rnti nr.Rnti
	CC   uint32

	HarqEnt *HarqEntity

	// DlCqi and UlCqi are the latest wideband channel quality reports.
	DlCqi uint32
	UlCqi uint32

	Metrics UeMetrics
	// AvgDlRate tracks a smoothed DL throughput estimate in bytes/slot.
	AvgDlRate float64

	params     *UeCarrierParams
	cellParams *CellParams
	pduBuilder PduBuilder
	commonCtxt *ueContextCommon
	logger     *log.Logger
}

const dlRateAlpha = 0.05

func newUeCarrier(rnti nr.Rnti, cfg *UeCfgManager, cell *CellParams, ctxt *ueContextCommon, builder PduBuilder) *UeCarrier {
	logger := cell.Logger.Module("sched").With("cc", cell.CC)
	return &UeCarrier{
		Rnti:       rnti,
		CC:         cell.CC,
		HarqEnt:    NewHarqEntity(rnti, MaxHarq, logger),
		DlCqi:      1,
		params:     NewUeCarrierParams(rnti, cell.Bwps[0], cfg),
		cellParams: cell,
		pduBuilder: builder,
		commonCtxt: ctxt,
		logger:     logger,
	}
}

// SetCfg re-derives the carrier parameters after a reconfiguration.
func (c *UeCarrier) SetCfg(cfg *UeCfgManager) {
	c.params = NewUeCarrierParams(c.Rnti, c.cellParams.Bwps[0], cfg)
}

// Params returns the derived carrier parameters.
func (c *UeCarrier) Params() *UeCarrierParams { return c.params }

// DlAckInfo applies DL HARQ feedback and updates the carrier counters.
// Returns the TBS in bytes, negative for an empty process.
func (c *UeCarrier) DlAckInfo(pid, tbIdx uint32, ack bool) int {
	tbs := c.HarqEnt.DlAckInfo(pid, tbIdx, ack)
	if tbs < 0 {
		c.logger.Warn("DL HARQ-ACK for empty process", "rnti", c.Rnti, "pid", pid)
		return tbs
	}
	if ack {
		c.Metrics.TxBrate += uint64(tbs)
		c.AvgDlRate = (1-dlRateAlpha)*c.AvgDlRate + dlRateAlpha*float64(tbs)
	} else {
		c.Metrics.TxErrors++
	}
	c.Metrics.TxPkts++
	return tbs
}

// UlCrcInfo applies a UL decode outcome.
func (c *UeCarrier) UlCrcInfo(pid uint32, crc bool) int {
	tbs := c.HarqEnt.UlCrcInfo(pid, crc)
	if tbs < 0 {
		c.logger.Warn("UL CRC for empty process", "rnti", c.Rnti, "cc", c.CC, "pid", pid)
	}
	return tbs
}

// Ue is the scheduler-side state of one user across carriers.
type Ue struct {
	Rnti nr.Rnti

	carriers [MaxCarriers]*UeCarrier

	cfg       *UeCfgManager
	buffers   *UeBufferManager
	common    ueContextCommon
	schedCfg  *SchedParams
	pool      *SoftbufferPool
	logger    *log.Logger

	lastTxSlot nr.SlotPoint
	lastSrSlot nr.SlotPoint
}

// rachUeCfg builds the basic UE configuration applied at RACH time.
func rachUeCfg(cc uint32, params *SchedParams) *UeCfgManager {
	m := NewUeCfgManager(cc)
	m.Phy = params.Cells[cc].DefaultUePhy
	return m
}

// NewUeAtRach creates the temporary-C-RNTI user object of a detected
// preamble.
func NewUeAtRach(rnti nr.Rnti, cc uint32, params *SchedParams, pool *SoftbufferPool, logger *log.Logger) *Ue {
	u := &Ue{
		Rnti:     rnti,
		cfg:      rachUeCfg(cc, params),
		buffers:  NewUeBufferManager(rnti, logger),
		schedCfg: params,
		pool:     pool,
		logger:   logger,
	}
	u.applyCarriers()
	return u
}

// NewUe creates a user from an upper-layer configuration.
func NewUe(rnti nr.Rnti, cfg *UeCfg, params *SchedParams, pool *SoftbufferPool, logger *log.Logger) *Ue {
	m := NewUeCfgManager(0)
	m.ApplyConfigRequest(cfg)
	u := &Ue{
		Rnti:     rnti,
		cfg:      m,
		buffers:  NewUeBufferManager(rnti, logger),
		schedCfg: params,
		pool:     pool,
		logger:   logger,
	}
	u.applyCarriers()
	return u
}

func (u *Ue) applyCarriers() {
	for _, cc := range u.cfg.Carriers {
		if !cc.Active || cc.CC >= uint32(len(u.schedCfg.Cells)) {
			continue
		}
		if u.carriers[cc.CC] == nil {
			u.carriers[cc.CC] = newUeCarrier(u.Rnti, u.cfg, u.schedCfg.Cells[cc.CC],
				&u.common, NewPduBuilder(cc.CC, u.buffers))
		} else {
			u.carriers[cc.CC].SetCfg(u.cfg)
		}
	}
	for lcid := uint32(0); lcid < MaxLcid; lcid++ {
		if u.cfg.Bearers[lcid].Direction != BearerDirNone {
			u.buffers.ConfigLcid(lcid, u.cfg.Bearers[lcid])
		}
	}
}

// SetCfg applies a reconfiguration request.
func (u *Ue) SetCfg(cfg *UeCfg) {
	u.cfg.ApplyConfigRequest(cfg)
	u.applyCarriers()
}

// Carrier returns the carrier object on cc, or nil.
func (u *Ue) Carrier(cc uint32) *UeCarrier {
	if cc >= MaxCarriers {
		return nil
	}
	return u.carriers[cc]
}

// Cfg returns the applied configuration.
func (u *Ue) Cfg() *UeCfgManager { return u.cfg }

// Buffers exposes the buffer manager (tests and metrics).
func (u *Ue) Buffers() *UeBufferManager { return u.buffers }

// HasCa reports whether the UE has more than one active carrier.
func (u *Ue) HasCa() bool {
	if len(u.cfg.Carriers) <= 1 {
		return false
	}
	n := 0
	for _, cc := range u.cfg.Carriers[1:] {
		if cc.Active {
			n++
		}
	}
	return n > 0
}

// PcellCC returns the primary cell index.
func (u *Ue) PcellCC() uint32 {
	if len(u.cfg.Carriers) == 0 {
		return 0
	}
	return u.cfg.Carriers[0].CC
}

// AddDlMacCe queues CE commands; CEs go out on the PCell.
func (u *Ue) AddDlMacCe(ceLcid, nofCmds uint32) {
	u.buffers.AddDlMacCe(ceLcid, u.PcellCC(), nofCmds)
}

// RlcBufferState applies an RLC buffer update.
func (u *Ue) RlcBufferState(lcid, newtx, priotx uint32) {
	u.buffers.DlBufferState(lcid, newtx, priotx)
}

// UlBsr applies a buffer status report.
func (u *Ue) UlBsr(lcg, bsr uint32) { u.buffers.UlBsr(lcg, bsr) }

// UlSrInfo records a scheduling request.
func (u *Ue) UlSrInfo() {
	if u.lastTxSlot.Valid() {
		u.lastSrSlot = u.lastTxSlot.Add(-TxEnbDelay)
	}
}

// NewSlot advances HARQ clocks and recomputes the pending byte totals
// for {rnti, pdcch_slot}.
func (u *Ue) NewSlot(pdcchSlot nr.SlotPoint) {
	u.lastTxSlot = pdcchSlot

	for _, cc := range u.carriers {
		if cc != nil {
			cc.HarqEnt.NewSlot(pdcchSlot.Add(-TxEnbDelay))
		}
	}

	if u.schedCfg.Args.AutoRefillBuffer {
		u.common.pendingDlBytes = 1000000
		u.common.pendingUlBytes = 1000000
		return
	}

	u.common.pendingDlBytes = u.buffers.GetDlTxTotal()
	u.common.pendingUlBytes = u.buffers.GetBsr()
	for _, ccCfg := range u.cfg.Carriers {
		cc := u.Carrier(ccCfg.CC)
		if cc == nil {
			continue
		}
		// Discount in-flight UL HARQ bytes from the BSR, and treat an SR
		// as answered once a UL grant postdates it.
		for pid := uint32(0); pid < uint32(cc.HarqEnt.NofUlHarqs()); pid++ {
			h := cc.HarqEnt.UlHarq(pid)
			if h.Empty() {
				continue
			}
			inFlight := h.Tbs()
			if inFlight > u.common.pendingUlBytes {
				inFlight = u.common.pendingUlBytes
			}
			u.common.pendingUlBytes -= inFlight
			if u.lastSrSlot.Valid() && h.TxSlot().After(u.lastSrSlot) {
				u.lastSrSlot.Clear()
			}
		}
	}
	if u.common.pendingUlBytes == 0 && u.lastSrSlot.Valid() {
		// An unanswered SR keeps the UE eligible for a small UL grant.
		u.common.pendingUlBytes = 512
	}
}

// MakeSlotUe builds the transient per-{slot, cc} scheduling handle.
// Returns an empty handle when the user has no carrier on cc.
func (u *Ue) MakeSlotUe(pdcchSlot nr.SlotPoint, cc uint32) SlotUe {
	carrier := u.Carrier(cc)
	if carrier == nil {
		return SlotUe{}
	}
	return newSlotUe(carrier, pdcchSlot)
}

// SlotUe is the transient handle of one UE for one {slot, cc}: mapped
// slots, chosen HARQ processes, cached pending bytes. Its lifetime is one
// worker slot.
type SlotUe struct {
	carrier *UeCarrier

	DlActive bool
	UlActive bool

	PdcchSlot nr.SlotPoint
	PdschSlot nr.SlotPoint
	UciSlot   nr.SlotPoint
	PuschSlot nr.SlotPoint

	HDl *DlHarqProc
	HUl *UlHarqProc

	DlBytes uint32
	UlBytes uint32
}

func newSlotUe(carrier *UeCarrier, pdcchSlot nr.SlotPoint) SlotUe {
	const k0 = 0
	su := SlotUe{carrier: carrier, PdcchSlot: pdcchSlot}
	su.PdschSlot = pdcchSlot.Add(k0)
	k1 := carrier.params.K1(su.PdschSlot)
	su.UciSlot = su.PdschSlot.Add(int(k1))
	bwp := carrier.params.ActiveBwp()
	k2 := bwp.PuschRaList[0].K
	su.PuschSlot = pdcchSlot.Add(int(k2))

	su.DlActive = bwp.IsDl(su.PdschSlot.SlotIdx())
	if su.DlActive {
		su.DlBytes = carrier.commonCtxt.pendingDlBytes
		su.HDl = carrier.HarqEnt.FindPendingDlRetx()
		if su.HDl == nil {
			su.HDl = carrier.HarqEnt.FindEmptyDlHarq()
		}
	}
	su.UlActive = bwp.IsUl(su.PuschSlot.SlotIdx())
	if su.UlActive {
		su.UlBytes = carrier.commonCtxt.pendingUlBytes
		su.HUl = carrier.HarqEnt.FindPendingUlRetx()
		if su.HUl == nil {
			su.HUl = carrier.HarqEnt.FindEmptyUlHarq()
		}
	}
	return su
}

// Empty reports whether the handle carries no usable carrier.
func (s *SlotUe) Empty() bool { return s.carrier == nil }

// Release detaches the handle from the carrier.
func (s *SlotUe) Release() { s.carrier = nil }

// Rnti returns the UE identity.
func (s *SlotUe) Rnti() nr.Rnti { return s.carrier.Rnti }

// Cfg returns the derived carrier parameters.
func (s *SlotUe) Cfg() *UeCarrierParams { return s.carrier.params }

// Phy returns the UE PHY configuration.
func (s *SlotUe) Phy() *phy.UeConfig { return s.carrier.params.Phy() }

// Carrier returns the owning carrier object.
func (s *SlotUe) Carrier() *UeCarrier { return s.carrier }

// FindEmptyUlHarq returns a free UL HARQ process.
func (s *SlotUe) FindEmptyUlHarq() *UlHarqProc { return s.carrier.HarqEnt.FindEmptyUlHarq() }

// BuildPdu fills the MAC subPDU list of a transport block of remBytes.
// Returns false when the CCCH payload could not fit unsegmented.
func (s *SlotUe) BuildPdu(remBytes uint32, pdu *DlPdu) bool {
	return s.carrier.pduBuilder.AllocSubpdus(remBytes, pdu)
}

// PendingBytes returns the pending DL bytes of one logical channel.
func (s *SlotUe) PendingBytes(lcid uint32) uint32 { return s.carrier.pduBuilder.PendingBytes(lcid) }

// DlCqi returns the latest DL channel quality report.
func (s *SlotUe) DlCqi() uint32 { return s.carrier.DlCqi }

// UlCqi returns the latest UL channel quality report.
func (s *SlotUe) UlCqi() uint32 { return s.carrier.UlCqi }
