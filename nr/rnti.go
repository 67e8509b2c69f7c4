package nr

import "fmt"

// Rnti is a 16-bit radio network temporary identifier.
type Rnti uint16

// Reserved RNTI values.
const (
	InvalidRnti Rnti = 0
	SiRnti      Rnti = 0xFFFF
)

func (r Rnti) String() string { return fmt.Sprintf("0x%x", uint16(r)) }

// RntiType distinguishes the scheduling identities a DCI can address.
type RntiType uint8

const (
	RntiTypeC RntiType = iota
	RntiTypeTC
	RntiTypeRA
	RntiTypeSI
	RntiTypeP
	RntiTypeCS
	RntiTypeSpCsi
	RntiTypeMcsC
)

func (t RntiType) String() string {
	switch t {
	case RntiTypeC:
		return "c"
	case RntiTypeTC:
		return "tc"
	case RntiTypeRA:
		return "ra"
	case RntiTypeSI:
		return "si"
	case RntiTypeP:
		return "p"
	case RntiTypeCS:
		return "cs"
	case RntiTypeSpCsi:
		return "sp-csi"
	case RntiTypeMcsC:
		return "mcs-c"
	}
	return "unknown"
}

// SearchSpaceType classifies PDCCH search spaces per TS 38.213.
type SearchSpaceType uint8

const (
	SearchSpaceTypeCommon0 SearchSpaceType = iota
	SearchSpaceTypeCommon0A
	SearchSpaceTypeCommon1
	SearchSpaceTypeCommon2
	SearchSpaceTypeCommon3
	SearchSpaceTypeUE
	SearchSpaceTypeRar
)

// IsCommon reports whether the search space is a common search space.
func (t SearchSpaceType) IsCommon() bool { return t != SearchSpaceTypeUE }

func (t SearchSpaceType) String() string {
	switch t {
	case SearchSpaceTypeCommon0:
		return "common0"
	case SearchSpaceTypeCommon0A:
		return "common0A"
	case SearchSpaceTypeCommon1:
		return "common1"
	case SearchSpaceTypeCommon2:
		return "common2"
	case SearchSpaceTypeCommon3:
		return "common3"
	case SearchSpaceTypeUE:
		return "ue"
	case SearchSpaceTypeRar:
		return "rar"
	}
	return "unknown"
}

// RntiTypeAllowedInSearchSpace implements the TS 38.213, Section 10.1
// pairing rules between RNTI types and search-space types.
func RntiTypeAllowedInSearchSpace(rntiType RntiType, ssType SearchSpaceType) bool {
	switch ssType {
	case SearchSpaceTypeCommon0, SearchSpaceTypeCommon0A:
		return rntiType == RntiTypeSI
	case SearchSpaceTypeCommon1:
		return rntiType == RntiTypeRA || rntiType == RntiTypeTC || rntiType == RntiTypeC
	case SearchSpaceTypeCommon2:
		return rntiType == RntiTypeP
	case SearchSpaceTypeCommon3:
		return rntiType == RntiTypeC
	case SearchSpaceTypeUE:
		return rntiType == RntiTypeC || rntiType == RntiTypeCS || rntiType == RntiTypeSpCsi
	}
	return false
}
