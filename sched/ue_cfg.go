package sched

import (
	"github.com/gnbsched/gnbsched/nr"
	"github.com/gnbsched/gnbsched/phy"
)

// UeCcCfg activates one carrier for a UE.
type UeCcCfg struct {
	Active bool
	CC     uint32
}

// UeLcChCfg adds or reconfigures one bearer of a UE.
type UeLcChCfg struct {
	Lcid uint32
	Cfg  BearerConfig
}

// UeCfg is the upper-layer (re)configuration request of one UE.
type UeCfg struct {
	MaxHarqTx uint32
	Carriers  []UeCcCfg
	Phy       phy.UeConfig

	LcChToAdd []UeLcChCfg
	LcChToRem []uint32
}

// UeCfgManager is the applied configuration state of one UE.
type UeCfgManager struct {
	MaxHarqTx uint32
	Carriers  []UeCcCfg
	Bearers   [MaxLcid]BearerConfig
	Phy       phy.UeConfig
}

// NewUeCfgManager seeds the configuration of a UE created at RACH time on
// one carrier: bearer 0 bidirectional, everything else defaulted.
func NewUeCfgManager(cc uint32) *UeCfgManager {
	m := &UeCfgManager{MaxHarqTx: 4}
	m.Carriers = []UeCcCfg{{Active: true, CC: cc}}
	m.Bearers[0] = BearerConfig{Direction: BearerDirBoth}
	return m
}

// ApplyConfigRequest merges an upper-layer configuration request.
func (m *UeCfgManager) ApplyConfigRequest(req *UeCfg) {
	if req.MaxHarqTx > 0 {
		m.MaxHarqTx = req.MaxHarqTx
	}
	if len(req.Carriers) > 0 {
		m.Carriers = append([]UeCcCfg(nil), req.Carriers...)
	}
	m.Phy = req.Phy
	for _, lcid := range req.LcChToRem {
		if lcid > 0 && lcid < MaxLcid {
			m.Bearers[lcid] = BearerConfig{}
		}
	}
	for _, lc := range req.LcChToAdd {
		if lc.Lcid > 0 && lc.Lcid < MaxLcid {
			m.Bearers[lc.Lcid] = lc.Cfg
		}
	}
}

// UeCarrierParams is the semi-static, per-carrier derived state of one
// UE: cached CCE candidate tables per monitored search space and the DCI
// sizing config. Rebuilt on every reconfiguration.
type UeCarrierParams struct {
	Rnti nr.Rnti
	CC   uint32

	cfg *UeCfgManager
	bwp *BwpParams

	cceLists     map[uint32]cceTable
	cachedDciCfg nr.DciConfig
}

// NewUeCarrierParams derives the carrier parameters of a UE on a BWP.
func NewUeCarrierParams(rnti nr.Rnti, bwp *BwpParams, cfg *UeCfgManager) *UeCarrierParams {
	p := &UeCarrierParams{Rnti: rnti, CC: bwp.CC, cfg: cfg, bwp: bwp}
	p.cceLists = make(map[uint32]cceTable)
	nofSlots := bwp.NofSlots()
	for i := range cfg.Phy.Pdcch.SearchSpaces {
		ss := &cfg.Phy.Pdcch.SearchSpaces[i]
		cs := cfg.Phy.Pdcch.Coreset(ss.CoresetID)
		if cs == nil {
			bwp.Logger.Warn("search space references unknown coreset",
				"rnti", rnti, "ss_id", ss.ID, "coreset_id", ss.CoresetID)
			continue
		}
		p.cceLists[ss.ID] = buildCceTable(cs, ss, rnti, nofSlots)
	}
	p.cachedDciCfg = cfg.Phy.DciConfig()
	return p
}

// UeCfg returns the applied UE configuration.
func (p *UeCarrierParams) UeCfg() *UeCfgManager { return p.cfg }

// Phy returns the UE PHY configuration on this carrier.
func (p *UeCarrierParams) Phy() *phy.UeConfig { return &p.cfg.Phy }

// ActiveBwp returns the BWP the carrier operates in.
func (p *UeCarrierParams) ActiveBwp() *BwpParams { return p.bwp }

// GetSS returns the monitored search space with the given id, or nil.
func (p *UeCarrierParams) GetSS(ssID uint32) *nr.SearchSpace {
	return p.cfg.Phy.Pdcch.SearchSpace(ssID)
}

// CcePosList returns the cached CCE candidates of a search space for one
// (slot, aggregation index).
func (p *UeCarrierParams) CcePosList(ssID, slotIdx, aggrIdx uint32) []uint32 {
	t, ok := p.cceLists[ssID]
	if !ok || slotIdx >= uint32(len(t)) || aggrIdx >= nr.MaxNofAggrLevels {
		return nil
	}
	return t[slotIdx][aggrIdx]
}

// K1 returns the PDSCH-to-ACK offset of this UE for a PDSCH slot.
func (p *UeCarrierParams) K1(pdschSlot nr.SlotPoint) uint32 { return p.cfg.Phy.K1(pdschSlot) }

// FixedPdschMcs returns the configured fixed DL MCS (negative = dynamic).
func (p *UeCarrierParams) FixedPdschMcs() int { return p.bwp.SchedArgs.FixedDlMcs }

// FixedPuschMcs returns the configured fixed UL MCS.
func (p *UeCarrierParams) FixedPuschMcs() int { return p.bwp.SchedArgs.FixedUlMcs }

// DciCfg returns the cached DCI sizing config.
func (p *UeCarrierParams) DciCfg() nr.DciConfig { return p.cachedDciCfg }

// FindSsID picks the search space used for a UE DCI of the given format,
// preferring UE-dedicated search spaces over common ones. Returns -1 when
// no monitored search space fits.
func (p *UeCarrierParams) FindSsID(dciFmt nr.DciFormat) int {
	const aggrIdx = 2
	ssList := p.cfg.Phy.Pdcch.SearchSpaces

	for i := range ssList {
		ss := &ssList[i]
		if ss.Type == nr.SearchSpaceTypeUE && ss.NofCandidates[aggrIdx] > 0 &&
			ss.HasFormat(dciFmt) && nr.RntiTypeAllowedInSearchSpace(nr.RntiTypeC, ss.Type) {
			return int(ss.ID)
		}
	}
	for i := range ssList {
		ss := &ssList[i]
		if ss.Type.IsCommon() && ss.NofCandidates[aggrIdx] > 0 &&
			ss.HasFormat(dciFmt) && nr.RntiTypeAllowedInSearchSpace(nr.RntiTypeC, ss.Type) {
			return int(ss.ID)
		}
	}
	return -1
}
