package phy

import "github.com/gnbsched/gnbsched/nr"

// PucchFormat enumerates the PUCCH formats the scheduler selects among.
type PucchFormat uint8

const (
	PucchFormat0 PucchFormat = iota
	PucchFormat1
	PucchFormat2
)

// PucchResource is one configured PUCCH resource.
type PucchResource struct {
	ID       uint32
	Format   PucchFormat
	StartPrb uint32
	NofPrb   uint32
	// MaxAckBits is the UCI payload the resource can carry.
	MaxAckBits uint32
}

// AckResource identifies where a UE reports the HARQ-ACK of one PDSCH.
type AckResource struct {
	Rnti            nr.Rnti
	K1              uint32
	PucchResourceID uint32
}

// UciCfg aggregates the uplink control information one UE owes in a slot.
type UciCfg struct {
	Rnti nr.Rnti
	// AckCount is the number of HARQ-ACK bits.
	AckCount uint32
	// OSr is the number of SR opportunity bits (0 or 1).
	OSr uint32
	// NofCsi is the number of CSI reports.
	NofCsi            uint32
	SrPositivePresent bool
}

// Empty reports whether the UCI carries no information at all.
func (u UciCfg) Empty() bool { return u.AckCount == 0 && u.OSr == 0 && u.NofCsi == 0 }

// GetPdschAckResource selects the ACK feedback resource for a scheduled
// PDSCH. Returns false when the UE has no PUCCH resource configured.
func (c *UeConfig) GetPdschAckResource(dci *nr.DciDl, pdschSlot nr.SlotPoint) (AckResource, bool) {
	if len(c.PucchResources) == 0 {
		return AckResource{}, false
	}
	return AckResource{
		Rnti:            dci.Ctx.Rnti,
		K1:              c.K1(pdschSlot),
		PucchResourceID: dci.PucchResource,
	}, true
}

// GetUciCfg assembles the UCI content of a UE for one slot from its
// pending HARQ-ACK resources and SR configuration.
func (c *UeConfig) GetUciCfg(sl nr.SlotPoint, rnti nr.Rnti, pendingAcks []AckResource) (UciCfg, bool) {
	uci := UciCfg{Rnti: rnti, AckCount: uint32(len(pendingAcks))}
	if c.Sr.Opportunity(sl) {
		uci.OSr = 1
	}
	return uci, true
}

// GetPuschUciCfg piggybacks the UCI onto an existing PUSCH. The SR bit is
// dropped: a UE with an UL grant has nothing left to request.
func (c *UeConfig) GetPuschUciCfg(uci UciCfg, pusch *PuschCfg) bool {
	uci.OSr = 0
	uci.SrPositivePresent = false
	pusch.Uci = uci
	pusch.HasUci = true
	return true
}

// GetPucchUciCfg picks the PUCCH resource able to carry the UCI payload.
// Short payloads map onto format 0/1 resources, longer ones onto format 2.
func (c *UeConfig) GetPucchUciCfg(uci UciCfg, out *PucchResource) bool {
	if len(c.PucchResources) == 0 {
		return false
	}
	bits := uci.AckCount + uci.OSr
	for i := range c.PucchResources {
		r := &c.PucchResources[i]
		if r.MaxAckBits >= bits {
			*out = *r
			return true
		}
	}
	*out = c.PucchResources[len(c.PucchResources)-1]
	return true
}
