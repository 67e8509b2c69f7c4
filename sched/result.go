package sched

import (
	"github.com/gnbsched/gnbsched/nr"
	"github.com/gnbsched/gnbsched/phy"
)

// RarInfo is the PRACH detection record delivered by the PHY.
type RarInfo struct {
	Msg3Size      uint32
	CC            uint32
	TempCrnti     nr.Rnti
	PrachSlot     nr.SlotPoint
	OfdmSymbolIdx uint32
	FreqIdx       uint32
	PreambleIdx   uint32
	TaCmd         uint32
}

// RaRnti computes the RA-RNTI of a PRACH occasion (TS 38.321, 5.1.3).
func (r RarInfo) RaRnti() nr.Rnti {
	return nr.Rnti(1 + r.OfdmSymbolIdx + 14*r.PrachSlot.SlotIdx() + 14*80*r.FreqIdx)
}

// RarGrant pairs one detected preamble with its Msg3 UL grant.
type RarGrant struct {
	Data    RarInfo
	Msg3Dci nr.DciUl
}

// Rar is the random access response emitted for one RA-RNTI.
type Rar struct {
	RaRnti nr.Rnti
	Grants []RarGrant
}

// PdcchDl is one allocated downlink DCI.
type PdcchDl struct {
	Dci    nr.DciDl
	DciCfg nr.DciConfig
}

// PdcchUl is one allocated uplink DCI.
type PdcchUl struct {
	Dci    nr.DciUl
	DciCfg nr.DciConfig
}

// Pdsch is one downlink shared channel allocation.
type Pdsch struct {
	Sch        phy.PdschCfg
	Softbuffer *TxSoftbuffer
}

// Pusch is one uplink shared channel allocation.
type Pusch struct {
	Pid        uint32
	Sch        phy.PuschCfg
	Softbuffer *RxSoftbuffer
}

// PucchCandidate is one (UCI config, resource) pair offered to the PHY.
type PucchCandidate struct {
	Uci      phy.UciCfg
	Resource phy.PucchResource
}

// Pucch is one uplink control allocation; a second candidate, when
// present, is the SR-negative fallback.
type Pucch struct {
	Candidates []PucchCandidate
}

// Ssb is one synchronization signal block transmission.
type Ssb struct {
	Pbch phy.PbchMsg
}

// DlPdu lists the MAC subPDU LCIDs packed into one PDSCH.
type DlPdu struct {
	Subpdus []uint32
}

// DlResult is the downlink scheduling decision of one {slot, cell}.
type DlResult struct {
	PdcchDl  []PdcchDl
	PdcchUl  []PdcchUl
	Pdsch    []Pdsch
	Ssb      []Ssb
	NzpCsiRs []phy.NzpCsiRsResource
	Rar      []Rar
	SibIdxs  []uint32
	// Data carries, per UE PDSCH in order, the MAC subPDU composition.
	Data []DlPdu
}

// UlResult is the uplink scheduling decision of one {slot, cell}.
type UlResult struct {
	Pusch []Pusch
	Pucch []Pucch
}

func newDlResult() DlResult {
	return DlResult{
		PdcchDl:  make([]PdcchDl, 0, MaxGrants),
		PdcchUl:  make([]PdcchUl, 0, MaxGrants),
		Pdsch:    make([]Pdsch, 0, MaxGrants),
		Ssb:      make([]Ssb, 0, 1),
		NzpCsiRs: make([]phy.NzpCsiRsResource, 0, 4),
		Rar:      make([]Rar, 0, MaxGrants),
		SibIdxs:  make([]uint32, 0, MaxGrants),
		Data:     make([]DlPdu, 0, MaxGrants),
	}
}

func newUlResult() UlResult {
	return UlResult{
		Pusch: make([]Pusch, 0, MaxGrants),
		Pucch: make([]Pucch, 0, MaxGrants),
	}
}

func (r *DlResult) reset() {
	r.PdcchDl = r.PdcchDl[:0]
	r.PdcchUl = r.PdcchUl[:0]
	r.Pdsch = r.Pdsch[:0]
	r.Ssb = r.Ssb[:0]
	r.NzpCsiRs = r.NzpCsiRs[:0]
	r.Rar = r.Rar[:0]
	r.SibIdxs = r.SibIdxs[:0]
	r.Data = r.Data[:0]
}

func (r *UlResult) reset() {
	r.Pusch = r.Pusch[:0]
	r.Pucch = r.Pucch[:0]
}
