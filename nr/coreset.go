package nr

// CoresetFreqResources is the number of 6-PRB frequency-domain resource
// groups addressable by a CORESET configuration.
const CoresetFreqResources = 45

// CoresetDurationMax bounds the CORESET time-domain duration in symbols.
const CoresetDurationMax = 3

// Coreset describes a PDCCH control resource set.
type Coreset struct {
	ID uint32
	// OffsetRb is the lowest PRB of the region addressed by FreqResources.
	OffsetRb uint32
	// FreqResources marks the active 6-PRB groups of the CORESET.
	FreqResources [CoresetFreqResources]bool
	// Duration is the CORESET length in OFDM symbols (1..3).
	Duration uint32
}

// NofFreqResources returns the number of active 6-PRB groups.
func (c *Coreset) NofFreqResources() uint32 {
	var n uint32
	for _, active := range c.FreqResources {
		if active {
			n++
		}
	}
	return n
}

// StartRb returns the first PRB of the CORESET.
func (c *Coreset) StartRb() uint32 {
	for i, active := range c.FreqResources {
		if active {
			return c.OffsetRb + 6*uint32(i)
		}
	}
	return c.OffsetRb
}

// Bandwidth returns the CORESET width in PRBs.
func (c *Coreset) Bandwidth() uint32 { return 6 * c.NofFreqResources() }

// NofCces returns the CORESET capacity in control channel elements.
func (c *Coreset) NofCces() uint32 { return c.NofFreqResources() * c.Duration }

// ContiguousCoreset is a convenience constructor for a CORESET spanning
// nofPrb PRBs (rounded down to a 6-PRB multiple) from startRb.
func ContiguousCoreset(id, startRb, nofPrb, duration uint32) Coreset {
	cs := Coreset{ID: id, OffsetRb: startRb, Duration: duration}
	for i := uint32(0); i < nofPrb/6 && i < CoresetFreqResources; i++ {
		cs.FreqResources[i] = true
	}
	return cs
}

// MaxSearchSpaceCandidates caps the candidates per aggregation level.
const MaxSearchSpaceCandidates = 8

// MaxNofAggrLevels is the number of aggregation levels (1,2,4,8,16).
const MaxNofAggrLevels = 5

// SearchSpace describes a PDCCH search space configuration.
type SearchSpace struct {
	ID        uint32
	CoresetID uint32
	Type      SearchSpaceType
	// NofCandidates holds, per aggregation-level index, the number of
	// monitored PDCCH candidates.
	NofCandidates [MaxNofAggrLevels]uint32
	Formats       []DciFormat
}

// HasFormat reports whether the search space advertises the DCI format.
func (ss *SearchSpace) HasFormat(f DciFormat) bool {
	for _, sf := range ss.Formats {
		if sf == f {
			return true
		}
	}
	return false
}

// AggrLevel returns the aggregation level for an aggregation index.
func AggrLevel(aggrIdx uint32) uint32 { return 1 << aggrIdx }

// cce hashing coefficients per TS 38.213, 10.1.
var ccePdcchA = [3]uint32{39827, 39829, 39839}

const ccePdcchD = 65537

// CceLocations computes the CCE start indices of all PDCCH candidates of
// a search space at one aggregation level in one slot (TS 38.213, 10.1).
// For common search spaces Y_p is zero; for UE-dedicated search spaces it
// follows the per-slot RNTI-seeded recursion.
func CceLocations(cs *Coreset, ss *SearchSpace, rnti Rnti, aggrIdx, slotIdx uint32) []uint32 {
	l := AggrLevel(aggrIdx)
	nofCces := cs.NofCces()
	m := ss.NofCandidates[aggrIdx]
	if m == 0 || nofCces < l {
		return nil
	}
	if m > MaxSearchSpaceCandidates {
		m = MaxSearchSpaceCandidates
	}

	var y uint32
	if ss.Type == SearchSpaceTypeUE {
		y = uint32(rnti)
		a := ccePdcchA[cs.ID%3]
		for i := uint32(0); i <= slotIdx; i++ {
			y = (a * y) % ccePdcchD
		}
	}

	nCandidates := nofCces / l
	locs := make([]uint32, 0, m)
	for cand := uint32(0); cand < m; cand++ {
		ncce := l * ((y + (cand*nofCces)/(l*m)) % nCandidates)
		locs = append(locs, ncce)
	}
	return locs
}
