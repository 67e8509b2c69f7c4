package sched

import (
	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
)

// Logical channel dimensioning.
const (
	// MaxLcid bounds the logical channel id space.
	MaxLcid = 32
	// MaxLcGroups bounds the uplink logical channel groups.
	MaxLcGroups = 8
	// CcchLcid is the common control channel (SRB0).
	CcchLcid = 0
)

// Well-known DL MAC control element LCIDs.
const (
	CeLcidConResID = 62
	CeLcidTaCmd    = 61
	CeLcidDrx      = 59
)

// SizeofCe returns the byte size of a DL MAC CE subPDU.
func SizeofCe(lcid uint32) uint32 {
	switch lcid {
	case CeLcidConResID:
		return 6
	case CeLcidTaCmd:
		return 1
	case CeLcidDrx:
		return 0
	default:
		return 1
	}
}

// BearerDirection restricts the directions a bearer is active in.
type BearerDirection uint8

const (
	BearerDirNone BearerDirection = iota
	BearerDirDl
	BearerDirUl
	BearerDirBoth
)

// BearerConfig is the scheduler-visible configuration of one bearer.
type BearerConfig struct {
	Direction BearerDirection
	Priority  uint32
	// Pbr is the prioritized bit rate in kB/s (-1 style cap unused here).
	Pbr uint32
	// Bsd is the bucket size duration in ms.
	Bsd uint32
	// Group is the uplink logical channel group the bearer reports in.
	Group uint32
}

// IsDl reports whether the bearer carries downlink traffic.
func (b BearerConfig) IsDl() bool { return b.Direction == BearerDirDl || b.Direction == BearerDirBoth }

// IsUl reports whether the bearer carries uplink traffic.
func (b BearerConfig) IsUl() bool { return b.Direction == BearerDirUl || b.Direction == BearerDirBoth }

// ceCmd is one queued MAC control element command, tagged with the
// carrier it must be transmitted on.
type ceCmd struct {
	lcid uint32
	cc   uint32
}

type lcidState struct {
	cfg BearerConfig
	// bufTx and bufPrio are the pending new-transmission and priority
	// (retx) byte counts reported by RLC.
	bufTx   uint32
	bufPrio uint32
}

// UeBufferManager tracks the per-logical-channel pending bytes, the
// uplink BSR counters and the queued MAC CE commands of one UE.
type UeBufferManager struct {
	rnti   nr.Rnti
	logger *log.Logger

	channels [MaxLcid]lcidState
	lcgBsr   [MaxLcGroups]uint32

	pendingCes []ceCmd
}

// NewUeBufferManager builds the buffer state of one UE.
func NewUeBufferManager(rnti nr.Rnti, logger *log.Logger) *UeBufferManager {
	return &UeBufferManager{rnti: rnti, logger: logger}
}

// ConfigLcid applies the bearer configuration of one logical channel.
func (m *UeBufferManager) ConfigLcid(lcid uint32, cfg BearerConfig) {
	if lcid >= MaxLcid {
		m.logger.Warn("invalid lcid in bearer config", "rnti", m.rnti, "lcid", lcid)
		return
	}
	m.channels[lcid].cfg = cfg
}

// DlBufferState replaces the DL pending counters of one logical channel.
func (m *UeBufferManager) DlBufferState(lcid, newtxBytes, prioBytes uint32) {
	if lcid >= MaxLcid {
		m.logger.Warn("dl_buffer_state for invalid lcid", "rnti", m.rnti, "lcid", lcid)
		return
	}
	m.channels[lcid].bufTx = newtxBytes
	m.channels[lcid].bufPrio = prioBytes
}

// UlBsr replaces the BSR counter of one logical channel group.
func (m *UeBufferManager) UlBsr(lcg, bytes uint32) {
	if lcg >= MaxLcGroups {
		m.logger.Warn("ul_bsr for invalid lcg", "rnti", m.rnti, "lcg", lcg)
		return
	}
	m.lcgBsr[lcg] = bytes
}

// AddDlMacCe queues nofCmds CE commands for the given CE lcid on cc.
func (m *UeBufferManager) AddDlMacCe(ceLcid, cc, nofCmds uint32) {
	for i := uint32(0); i < nofCmds; i++ {
		m.pendingCes = append(m.pendingCes, ceCmd{lcid: ceLcid, cc: cc})
	}
}

// GetDlTx returns the pending DL bytes of one logical channel.
func (m *UeBufferManager) GetDlTx(lcid uint32) uint32 {
	if lcid >= MaxLcid {
		return 0
	}
	return m.channels[lcid].bufTx + m.channels[lcid].bufPrio
}

// GetDlTxTotal sums all pending DL bytes plus the queued CE sizes.
func (m *UeBufferManager) GetDlTxTotal() uint32 {
	var total uint32
	for lcid := uint32(0); lcid < MaxLcid; lcid++ {
		total += m.GetDlTx(lcid)
	}
	for _, ce := range m.pendingCes {
		total += SizeofCe(ce.lcid)
	}
	return total
}

// GetBsr sums the uplink BSR counters across all groups.
func (m *UeBufferManager) GetBsr() uint32 {
	var total uint32
	for _, b := range m.lcgBsr {
		total += b
	}
	return total
}

// PduBuilder is the narrow interface of the buffer manager handed to the
// per-slot UE object of one carrier.
type PduBuilder struct {
	cc     uint32
	parent *UeBufferManager
}

// NewPduBuilder scopes the buffer manager to one carrier.
func NewPduBuilder(cc uint32, parent *UeBufferManager) PduBuilder {
	return PduBuilder{cc: cc, parent: parent}
}

// PendingBytes returns the pending DL bytes of one logical channel.
func (b PduBuilder) PendingBytes(lcid uint32) uint32 { return b.parent.GetDlTx(lcid) }

// AllocSubpdus selects the MAC CEs and logical channels filling a
// transport block of tbBytes. CEs queued for this carrier go first, while
// they fit; then LCIDs in ascending order, consuming their pending bytes.
// Returns false when the CCCH payload does not fit whole: SRB0 cannot be
// segmented, so the caller must inform the upper layer.
func (b PduBuilder) AllocSubpdus(tbBytes uint32, pdu *DlPdu) bool {
	rem := tbBytes

	kept := b.parent.pendingCes[:0]
	for i, ce := range b.parent.pendingCes {
		if ce.cc != b.cc {
			kept = append(kept, ce)
			continue
		}
		size := SizeofCe(ce.lcid)
		if size > rem || len(pdu.Subpdus) >= MaxSubPdus {
			// This CE and everything after it stays queued.
			kept = append(kept, b.parent.pendingCes[i:]...)
			break
		}
		rem -= size
		pdu.Subpdus = append(pdu.Subpdus, ce.lcid)
	}
	b.parent.pendingCes = kept

	for lcid := uint32(0); lcid < MaxLcid && rem > 0; lcid++ {
		pending := b.parent.GetDlTx(lcid)
		if lcid == CcchLcid && pending > rem {
			pdu.Subpdus = append(pdu.Subpdus, lcid)
			return false
		}
		if pending == 0 {
			continue
		}
		if pending > rem {
			pending = rem
		}
		rem -= pending
		pdu.Subpdus = append(pdu.Subpdus, lcid)
	}
	return true
}
