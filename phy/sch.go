// Package phy implements the PHY-facing collaborator boundary of the MAC
// scheduler: transport block sizing, effective code rate, grant-to-shared
// channel config conversion, UCI assembly and PUCCH resource selection.
// The scheduler fills DCIs; this package turns them into the shared
// channel configurations handed to the physical layer.
package phy

import (
	"errors"

	"github.com/gnbsched/gnbsched/nr"
)

// dataREsPerPrb is the usable resource elements per PRB per slot after
// DM-RS and overhead (12 subcarriers x 14 symbols, capped at 156 per
// TS 38.214, 5.1.3.2).
const dataREsPerPrb = 144

var (
	// ErrZeroPrbs rejects grant conversion for an empty allocation.
	ErrZeroPrbs = errors.New("phy: grant with zero PRBs")
	// ErrBadMcs rejects an out-of-range MCS index.
	ErrBadMcs = errors.New("phy: invalid mcs index")
)

// TbsBytes returns the transport block size in bytes for an allocation of
// nofPrb PRBs at the given MCS.
func TbsBytes(nofPrb uint32, mcs int) uint32 {
	if nofPrb == 0 || mcs < 0 {
		return 0
	}
	e := nr.McsToEntry(mcs)
	nre := dataREsPerPrb * nofPrb
	ninfo := uint64(nre) * uint64(e.Qm) * uint64(e.R) / 1024
	return uint32(ninfo / 8)
}

// Coderate returns the effective code rate R' of a transport block of
// tbsBytes carried on nofPrb PRBs with modulation order qm.
func Coderate(tbsBytes, nofPrb, qm uint32) float64 {
	if nofPrb == 0 || qm == 0 {
		return 1.0
	}
	return float64(tbsBytes*8) / float64(dataREsPerPrb*nofPrb*qm)
}

// SchGrant is the resolved shared-channel grant: what the PHY transmits
// or receives for one transport block.
type SchGrant struct {
	Rnti     nr.Rnti
	RntiType nr.RntiType
	Prbs     nr.PrbGrant
	NofPrb   uint32
	Mcs      int
	Qm       uint32
	TbsBytes uint32
	RPrime   float64
	Rv       uint32
}

// PdschCfg is the PDSCH configuration emitted in the DL sched result.
type PdschCfg struct {
	Grant SchGrant
}

// PuschCfg is the PUSCH configuration emitted in the UL sched result.
type PuschCfg struct {
	Grant SchGrant
	Uci   UciCfg
	// HasUci marks that UCI is piggybacked on this PUSCH.
	HasUci bool
}

// BwpGeometry captures the BWP quantities grant conversion depends on.
type BwpGeometry struct {
	StartRb uint32
	RbWidth uint32
	RbgP    uint32
}

// DlGrantToPdsch resolves a DL DCI plus its PRB grant into a PDSCH
// configuration, computing TBS and effective code rate.
func DlGrantToPdsch(geom BwpGeometry, dci *nr.DciDl, grant nr.PrbGrant) (PdschCfg, error) {
	nofPrb := grant.NofPrbs(geom.StartRb, geom.RbWidth, geom.RbgP)
	if nofPrb == 0 {
		return PdschCfg{}, ErrZeroPrbs
	}
	if dci.Mcs < 0 || dci.Mcs > nr.MaxMcs {
		return PdschCfg{}, ErrBadMcs
	}
	e := nr.McsToEntry(dci.Mcs)
	tbs := TbsBytes(nofPrb, dci.Mcs)
	return PdschCfg{Grant: SchGrant{
		Rnti:     dci.Ctx.Rnti,
		RntiType: dci.Ctx.RntiType,
		Prbs:     grant,
		NofPrb:   nofPrb,
		Mcs:      dci.Mcs,
		Qm:       e.Qm,
		TbsBytes: tbs,
		RPrime:   Coderate(tbs, nofPrb, e.Qm),
		Rv:       dci.Rv,
	}}, nil
}

// UlGrantToPusch resolves a UL DCI plus its PRB grant into a PUSCH
// configuration.
func UlGrantToPusch(geom BwpGeometry, dci *nr.DciUl, grant nr.PrbGrant) (PuschCfg, error) {
	nofPrb := grant.NofPrbs(geom.StartRb, geom.RbWidth, geom.RbgP)
	if nofPrb == 0 {
		return PuschCfg{}, ErrZeroPrbs
	}
	if dci.Mcs < 0 || dci.Mcs > nr.MaxMcs {
		return PuschCfg{}, ErrBadMcs
	}
	e := nr.McsToEntry(dci.Mcs)
	tbs := TbsBytes(nofPrb, dci.Mcs)
	return PuschCfg{Grant: SchGrant{
		Rnti:     dci.Ctx.Rnti,
		RntiType: dci.Ctx.RntiType,
		Prbs:     grant,
		NofPrb:   nofPrb,
		Mcs:      dci.Mcs,
		Qm:       e.Qm,
		TbsBytes: tbs,
		RPrime:   Coderate(tbs, nofPrb, e.Qm),
		Rv:       dci.Rv,
	}}, nil
}
