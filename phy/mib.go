package phy

import "github.com/gnbsched/gnbsched/nr"

// Mib is the master information block content carried on the PBCH.
type Mib struct {
	Sfn                uint32
	Hrf                bool
	SsbIdx             uint32
	ScsCommon15kHz     bool
	Coreset0Idx        uint32
	SearchSpace0Idx    uint32
	DmrsTypeAPosition2 bool
	CellBarred         bool
}

// PbchMsg is the packed PBCH payload handed to the PHY.
type PbchMsg struct {
	Payload [4]byte
	SsbIdx  uint32
}

// PackMib packs the MIB fields into the PBCH payload. The layout keeps
// the SFN, half-radio-frame bit and CORESET#0/searchSpace#0 indices in
// fixed positions so the receiver side of tests can unpack them.
func PackMib(m *Mib) PbchMsg {
	var msg PbchMsg
	sfn := m.Sfn % nr.NofSfnValues
	msg.Payload[0] = byte(sfn >> 2)
	msg.Payload[1] = byte(sfn&0x3) << 6
	if m.Hrf {
		msg.Payload[1] |= 1 << 5
	}
	if m.ScsCommon15kHz {
		msg.Payload[1] |= 1 << 4
	}
	msg.Payload[2] = byte(m.Coreset0Idx&0xF)<<4 | byte(m.SearchSpace0Idx&0xF)
	if m.DmrsTypeAPosition2 {
		msg.Payload[3] |= 1 << 1
	}
	if m.CellBarred {
		msg.Payload[3] |= 1
	}
	msg.SsbIdx = m.SsbIdx
	return msg
}

// UnpackMib inverts PackMib.
func UnpackMib(msg PbchMsg) Mib {
	var m Mib
	m.Sfn = uint32(msg.Payload[0])<<2 | uint32(msg.Payload[1])>>6
	m.Hrf = msg.Payload[1]&(1<<5) != 0
	m.ScsCommon15kHz = msg.Payload[1]&(1<<4) != 0
	m.Coreset0Idx = uint32(msg.Payload[2]) >> 4
	m.SearchSpace0Idx = uint32(msg.Payload[2]) & 0xF
	m.DmrsTypeAPosition2 = msg.Payload[3]&(1<<1) != 0
	m.CellBarred = msg.Payload[3]&1 != 0
	m.SsbIdx = msg.SsbIdx
	return m
}
