package sched

import (
	"errors"
	"fmt"

	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
	"github.com/gnbsched/gnbsched/phy"
)

// Dimensioning constants of the scheduler core.
const (
	// MaxGrants bounds every per-slot result list.
	MaxGrants = 16
	// MaxHarq is the number of HARQ processes per UE per direction.
	MaxHarq = 16
	// MaxCarriers bounds the number of aggregated carriers per UE.
	MaxCarriers = 4
	// MaxBwpPerCell bounds the configured bandwidth parts per cell.
	MaxBwpPerCell = 2
	// MaxSubPdus bounds the MAC subPDUs packed into one PDSCH.
	MaxSubPdus = 8
	// MaxUes bounds the user table.
	MaxUes = 64
	// TxEnbDelay is the lead, in slots, between the slot being scheduled
	// and the slot on air.
	TxEnbDelay = 4
	// TtimodSz is the scheduling ring size: the farthest allocation in
	// the future (covers k1_max + k2_max plus margin).
	TtimodSz = 20
)

// SchedArgs are the global scheduler options.
type SchedArgs struct {
	PdschEnabled     bool
	PuschEnabled     bool
	AutoRefillBuffer bool
	// FixedDlMcs fixes the DL MCS; negative selects CQI-driven MCS.
	FixedDlMcs int
	// FixedUlMcs fixes the UL MCS; must be non-negative.
	FixedUlMcs int
}

// DefaultSchedArgs returns the standard scheduler options.
func DefaultSchedArgs() SchedArgs {
	return SchedArgs{PdschEnabled: true, PuschEnabled: true, FixedDlMcs: 28, FixedUlMcs: 28}
}

// TddPattern is a simplified TDD UL/DL slot pattern: within every period
// the first DlSlots slots are downlink, the last UlSlots are uplink.
type TddPattern struct {
	PeriodSlots uint32 `yaml:"period_slots"`
	DlSlots     uint32 `yaml:"dl_slots"`
	UlSlots     uint32 `yaml:"ul_slots"`
}

// SibConfig describes one SI message (index 0 is SIB1).
type SibConfig struct {
	Len         uint32 `yaml:"len"`
	PeriodRf    uint32 `yaml:"period_rf"`
	WindowSlots uint32 `yaml:"window_slots"`
}

// PuschTimeConfig is one row of the PUSCH time-domain allocation table.
type PuschTimeConfig struct {
	Msg3Delay uint32 `yaml:"msg3_delay"`
	K         uint32 `yaml:"k2"`
	S         uint32 `yaml:"s"`
	L         uint32 `yaml:"l"`
}

// BwpConfig is the upper-layer configuration of one bandwidth part.
type BwpConfig struct {
	StartRb       uint32 `yaml:"start_rb"`
	RbWidth       uint32 `yaml:"rb_width"`
	RbgSizeCfg1   bool   `yaml:"rbg_size_cfg_1"`
	NumerologyIdx uint8  `yaml:"numerology_idx"`
	// RarWindowSize is ra-ResponseWindow in slots (TS 38.331).
	RarWindowSize uint32 `yaml:"rar_window_size"`

	Pdcch       phy.PdcchConfig   `yaml:"-"`
	PuschTimeRa []PuschTimeConfig `yaml:"pusch_time_ra"`
}

// CellConfig is the upper-layer configuration of one cell.
type CellConfig struct {
	Pci              uint32  `yaml:"pci"`
	NofPrb           uint32  `yaml:"nof_prb"`
	SsbPeriodicityMs uint32  `yaml:"ssb_periodicity_ms"`
	DlCenterFreqHz   float64 `yaml:"dl_center_freq_hz"`
	SsbCenterFreqHz  float64 `yaml:"ssb_center_freq_hz"`

	Tdd  *TddPattern `yaml:"tdd"`
	Bwps []BwpConfig `yaml:"bwps"`
	Sibs []SibConfig `yaml:"sibs"`

	NzpCsiRsSets []phy.NzpCsiRsSet `yaml:"-"`

	// DefaultUePhy seeds the PHY configuration of users created at RACH
	// time. When left zero it is derived from the common BWP.
	DefaultUePhy *phy.UeConfig `yaml:"-"`
}

// Configuration validation errors.
var (
	ErrNoBwp           = errors.New("sched: cell has no BWP configured")
	ErrNoRaSearchSpace = errors.New("sched: BWP has no RA search space")
	ErrNoCoreset       = errors.New("sched: no coreset configured")
)

// slotCfg gives the transmission directions a slot admits.
type slotCfg struct {
	isDl bool
	isUl bool
}

// cceTable caches the CCE candidate positions of one search space for
// every (slot index, aggregation index) pair.
type cceTable [][nr.MaxNofAggrLevels][]uint32

func buildCceTable(cs *nr.Coreset, ss *nr.SearchSpace, rnti nr.Rnti, nofSlots uint32) cceTable {
	t := make(cceTable, nofSlots)
	for sl := uint32(0); sl < nofSlots; sl++ {
		for aggr := uint32(0); aggr < nr.MaxNofAggrLevels; aggr++ {
			t[sl][aggr] = nr.CceLocations(cs, ss, rnti, aggr, sl)
		}
	}
	return t
}

// coresetParams caches the per-coreset quantities used during allocation.
type coresetParams struct {
	// prbLimits is the contiguous PRB range of the coreset.
	prbLimits nr.PrbInterval
	// dci10PrbLimits is the PRB range usable by DCI 1_0 in a common
	// search space of this coreset (TS 38.214, 5.1.2.2).
	dci10PrbLimits nr.PrbInterval
	// usableCommonSsExcluded marks the PRBs a common-SS DCI 1_0 grant
	// must not touch.
	usableCommonSsExcluded nr.PrbBitmap
}

// BwpParams extends a BwpConfig with every derived quantity the per-slot
// allocators consult.
type BwpParams struct {
	BwpID uint32
	CC    uint32
	Cfg   BwpConfig

	Logger    *log.Logger
	SchedArgs *SchedArgs

	// P is the RBG size, NofRbg the RBG count, NofPrb the BWP width.
	P      uint32
	NofRbg uint32
	NofPrb uint32

	slots []slotCfg

	// PuschRaList resolves the PUSCH time-domain rows; row 0 drives Msg3.
	PuschRaList []PuschTimeConfig

	// RarCceList caches RA search-space candidates (Y_p = 0).
	RarCceList cceTable
	// CommonCceList caches candidates per search space of the BWP, keyed
	// by search-space id and hashed with the SI-RNTI.
	CommonCceList map[uint32]cceTable

	coresets map[uint32]*coresetParams

	// SsbReservation is the 20-PRB region data must keep clear when an
	// SSB is transmitted in the slot.
	SsbReservation nr.PrbInterval
}

func newBwpParams(cell *CellConfig, args *SchedArgs, cc, bwpID uint32, cfg BwpConfig, logger *log.Logger) (*BwpParams, error) {
	if cfg.Pdcch.RaSearchSpace() == nil {
		return nil, ErrNoRaSearchSpace
	}
	if len(cfg.Pdcch.Coresets) == 0 {
		return nil, ErrNoCoreset
	}

	p := &BwpParams{
		BwpID:     bwpID,
		CC:        cc,
		Cfg:       cfg,
		Logger:    logger,
		SchedArgs: args,
		P:      nr.RbgSize(cfg.RbWidth, cfg.RbgSizeCfg1),
		NofRbg: nr.NofRbgs(cfg.RbWidth, cfg.StartRb, cfg.RbgSizeCfg1),
		NofPrb: cfg.RbWidth,
	}

	// Per-coreset cached params.
	coreset0Present := cfg.Pdcch.Coreset(0) != nil
	p.coresets = make(map[uint32]*coresetParams)
	for i := range cfg.Pdcch.Coresets {
		cs := &cfg.Pdcch.Coresets[i]
		cp := &coresetParams{}
		rbStart := cs.StartRb()
		cp.prbLimits = nr.NewPrbInterval(rbStart, rbStart+cs.Bandwidth())
		cp.usableCommonSsExcluded = nr.NewPrbBitmap(cfg.RbWidth)
		cp.usableCommonSsExcluded.Fill(0, rbStart)
		cp.dci10PrbLimits = nr.NewPrbInterval(rbStart, cfg.RbWidth)
		if coreset0Present {
			cp.dci10PrbLimits = cp.prbLimits
			cp.usableCommonSsExcluded.Fill(cp.prbLimits.Stop(), cfg.RbWidth)
		}
		p.coresets[cs.ID] = cp
	}

	// Slot direction table.
	nofSlots := nr.SlotsPerFrame(cfg.NumerologyIdx)
	p.slots = make([]slotCfg, nofSlots)
	for sl := uint32(0); sl < nofSlots; sl++ {
		p.slots[sl] = slotDirection(cell.Tdd, sl)
	}

	// PUSCH time-domain rows.
	p.PuschRaList = cfg.PuschTimeRa
	if len(p.PuschRaList) == 0 {
		p.PuschRaList = []PuschTimeConfig{{Msg3Delay: 6, K: 4, S: 0, L: 14}}
	}

	// CCE candidate caches: RA search space with Y_p = 0, then every
	// search space of the BWP hashed with the SI-RNTI.
	raSS := cfg.Pdcch.RaSearchSpace()
	raCs := cfg.Pdcch.Coreset(raSS.CoresetID)
	if raCs == nil {
		return nil, fmt.Errorf("sched: RA search space %d references unknown coreset %d: %w",
			raSS.ID, raSS.CoresetID, ErrNoCoreset)
	}
	p.RarCceList = buildCceTable(raCs, raSS, 0, nofSlots)

	p.CommonCceList = make(map[uint32]cceTable)
	for i := range cfg.Pdcch.SearchSpaces {
		ss := &cfg.Pdcch.SearchSpaces[i]
		cs := cfg.Pdcch.Coreset(ss.CoresetID)
		if cs == nil {
			return nil, fmt.Errorf("sched: search space %d references unknown coreset %d: %w",
				ss.ID, ss.CoresetID, ErrNoCoreset)
		}
		p.CommonCceList[ss.ID] = buildCceTable(cs, ss, nr.SiRnti, nofSlots)
	}

	p.SsbReservation = ssbReservation(cell)

	return p, nil
}

func slotDirection(tdd *TddPattern, slotIdx uint32) slotCfg {
	if tdd == nil || tdd.PeriodSlots == 0 {
		// FDD: every slot carries both directions.
		return slotCfg{isDl: true, isUl: true}
	}
	pos := slotIdx % tdd.PeriodSlots
	return slotCfg{
		isDl: pos < tdd.DlSlots,
		isUl: pos >= tdd.PeriodSlots-tdd.UlSlots,
	}
}

// ssbReservation derives the 20-PRB region straddling the SSB from the
// SSB-to-carrier frequency offset, in 15 kHz RB units.
func ssbReservation(cell *CellConfig) nr.PrbInterval {
	offsetRb := int32(0)
	if cell.SsbCenterFreqHz != 0 && cell.DlCenterFreqHz != 0 {
		offHz := cell.SsbCenterFreqHz - cell.DlCenterFreqHz
		rb := offHz / (15000.0 * 12)
		offsetRb = int32(rb)
		if float64(offsetRb) < rb {
			offsetRb++
		}
	}
	start := int32(cell.NofPrb)/2 + offsetRb - 10
	if start < 0 {
		start = 0
	}
	stop := start + 20
	if uint32(stop) > cell.NofPrb {
		stop = int32(cell.NofPrb)
		if stop-20 >= 0 {
			start = stop - 20
		}
	}
	return nr.NewPrbInterval(uint32(start), uint32(stop))
}

// IsDl reports whether the slot index admits downlink transmissions.
func (p *BwpParams) IsDl(slotIdx uint32) bool { return p.slots[slotIdx%uint32(len(p.slots))].isDl }

// IsUl reports whether the slot index admits uplink transmissions.
func (p *BwpParams) IsUl(slotIdx uint32) bool { return p.slots[slotIdx%uint32(len(p.slots))].isUl }

// NofSlots returns the slot-table length (slots per frame).
func (p *BwpParams) NofSlots() uint32 { return uint32(len(p.slots)) }

// CoresetPrbRange returns the contiguous PRB range of a coreset.
func (p *BwpParams) CoresetPrbRange(csID uint32) nr.PrbInterval {
	if cp, ok := p.coresets[csID]; ok {
		return cp.prbLimits
	}
	return nr.PrbInterval{}
}

// Dci10PrbLimits returns the PRB range of a common-SS DCI 1_0 grant.
func (p *BwpParams) Dci10PrbLimits(csID uint32) nr.PrbInterval {
	if cp, ok := p.coresets[csID]; ok {
		return cp.dci10PrbLimits
	}
	return nr.PrbInterval{}
}

// Dci10ExcludedPrbs returns the PRBs a common-SS DCI 1_0 grant of the
// coreset must not touch.
func (p *BwpParams) Dci10ExcludedPrbs(csID uint32) (nr.PrbBitmap, bool) {
	if cp, ok := p.coresets[csID]; ok {
		return cp.usableCommonSsExcluded, true
	}
	return nr.PrbBitmap{}, false
}

// GetSS returns the search space with the given id, or nil.
func (p *BwpParams) GetSS(ssID uint32) *nr.SearchSpace { return p.Cfg.Pdcch.SearchSpace(ssID) }

// RaSearchSpace returns the BWP's RA search space.
func (p *BwpParams) RaSearchSpace() *nr.SearchSpace { return p.Cfg.Pdcch.RaSearchSpace() }

// Coreset returns the coreset with the given id, or nil.
func (p *BwpParams) Coreset(csID uint32) *nr.Coreset { return p.Cfg.Pdcch.Coreset(csID) }

// Geometry returns the BWP quantities the PHY conversion helpers need.
func (p *BwpParams) Geometry() phy.BwpGeometry {
	return phy.BwpGeometry{StartRb: p.Cfg.StartRb, RbWidth: p.Cfg.RbWidth, RbgP: p.P}
}

// CellParams packs one cell's config and its derived per-BWP parameters.
type CellParams struct {
	CC  uint32
	Cfg CellConfig

	Mib  phy.Mib
	Bwps []*BwpParams

	DefaultUePhy phy.UeConfig
	SchedArgs    *SchedArgs
	Logger       *log.Logger

	// softbufferPool is the shared pool injected at scheduler setup.
	softbufferPool *SoftbufferPool
}

// SetSoftbufferPool injects the shared softbuffer pool.
func (c *CellParams) SetSoftbufferPool(p *SoftbufferPool) { c.softbufferPool = p }

// SoftbufferPool returns the injected pool.
func (c *CellParams) SoftbufferPool() *SoftbufferPool { return c.softbufferPool }

func newCellParams(cc uint32, cell CellConfig, args *SchedArgs, logger *log.Logger) (*CellParams, error) {
	if len(cell.Bwps) == 0 {
		return nil, ErrNoBwp
	}
	if len(cell.Bwps) > MaxBwpPerCell {
		return nil, fmt.Errorf("sched: cell cc=%d has %d BWPs, max %d", cc, len(cell.Bwps), MaxBwpPerCell)
	}

	cp := &CellParams{CC: cc, Cfg: cell, SchedArgs: args, Logger: logger}
	for id, bwpCfg := range cell.Bwps {
		bwp, err := newBwpParams(&cell, args, cc, uint32(id), bwpCfg, logger)
		if err != nil {
			return nil, err
		}
		cp.Bwps = append(cp.Bwps, bwp)
	}

	cp.Mib = phy.Mib{ScsCommon15kHz: cell.Bwps[0].NumerologyIdx == 0, DmrsTypeAPosition2: true}

	if cell.DefaultUePhy != nil {
		cp.DefaultUePhy = *cell.DefaultUePhy
	} else {
		cp.DefaultUePhy = defaultUePhyFromBwp(&cell.Bwps[0])
	}
	return cp, nil
}

// defaultUePhyFromBwp builds the PHY config of a freshly-RACHed user from
// the common BWP: common search spaces only, type-1 allocations, one
// format-1 and one format-2 PUCCH resource and the k1=4 feedback rule.
func defaultUePhyFromBwp(bwp *BwpConfig) phy.UeConfig {
	return phy.UeConfig{
		Pdcch:      bwp.Pdcch,
		PdschAlloc: phy.ResourceAllocType1,
		PuschAlloc: phy.ResourceAllocType1,
		HarqAck:    phy.HarqAckConfig{DlDataToUlAck: []uint32{4}},
		Sr:         phy.SrConfig{PeriodSlots: 40},
		PucchResources: []phy.PucchResource{
			{ID: 0, Format: phy.PucchFormat1, StartPrb: 0, NofPrb: 1, MaxAckBits: 2},
			{ID: 1, Format: phy.PucchFormat2, StartPrb: 1, NofPrb: 1, MaxAckBits: 8},
		},
		BwpDlWidth: bwp.RbWidth,
		BwpUlWidth: bwp.RbWidth,
	}
}

// NofPrbCell returns the cell carrier width.
func (c *CellParams) NofPrbCell() uint32 { return c.Cfg.NofPrb }

// SchedParams packs the scheduler args and all cell configurations.
type SchedParams struct {
	Args  SchedArgs
	Cells []*CellParams
}

// NewSchedParams validates and derives the full scheduler configuration.
func NewSchedParams(args SchedArgs, cells []CellConfig, logger *log.Logger) (*SchedParams, error) {
	if args.FixedUlMcs < 0 {
		return nil, errors.New("sched: dynamic UL MCS not supported")
	}
	sp := &SchedParams{Args: args}
	for cc, cell := range cells {
		cp, err := newCellParams(uint32(cc), cell, &sp.Args, logger)
		if err != nil {
			return nil, fmt.Errorf("cell cc=%d: %w", cc, err)
		}
		sp.Cells = append(sp.Cells, cp)
	}
	return sp, nil
}
