package nr

// DciFormat enumerates the DCI formats the scheduler emits.
type DciFormat uint8

const (
	DciFormat10 DciFormat = iota // DL format 1_0
	DciFormat11                  // DL format 1_1
	DciFormat00                  // UL format 0_0
	DciFormat01                  // UL format 0_1
	DciFormatRar                 // UL grant carried inside a RAR
)

func (f DciFormat) String() string {
	switch f {
	case DciFormat10:
		return "1_0"
	case DciFormat11:
		return "1_1"
	case DciFormat00:
		return "0_0"
	case DciFormat01:
		return "0_1"
	case DciFormatRar:
		return "rar"
	}
	return "unknown"
}

// IsDl reports whether the format schedules the downlink.
func (f DciFormat) IsDl() bool { return f == DciFormat10 || f == DciFormat11 }

// DciLocation is the CCE position chosen for a DCI.
type DciLocation struct {
	Ncce uint32
	// L is the aggregation-level index (level = 1 << L).
	L uint32
}

// DciCtx is the context header shared by all DCI formats: where the DCI
// lives and whom it addresses.
type DciCtx struct {
	CoresetID      uint32
	CoresetStartRb uint32
	SsID           uint32
	SsType         SearchSpaceType
	RntiType       RntiType
	Rnti           Rnti
	Format         DciFormat
	Location       DciLocation
}

// DciDl is a downlink scheduling DCI (formats 1_0 / 1_1).
type DciDl struct {
	Ctx DciCtx

	FreqDomainAssignment uint64
	TimeDomainAssignment uint32
	Mcs                  int
	Rv                   uint32
	Pid                  uint32
	Ndi                  bool
	Dai                  uint32
	Tpc                  uint32
	PucchResource        uint32
	// Sii distinguishes SIB1 (0) from other SI messages (1).
	Sii uint32
	// Coreset0Bw is the CORESET#0 bandwidth the UE assumes when
	// interpreting the frequency assignment of a common-SS DCI.
	Coreset0Bw uint32
}

// DciUl is an uplink scheduling DCI (formats 0_0 / 0_1 / RAR grant).
type DciUl struct {
	Ctx DciCtx

	FreqDomainAssignment uint64
	TimeDomainAssignment uint32
	Mcs                  int
	Rv                   uint32
	Pid                  uint32
	Ndi                  bool
	Tpc                  uint32
}

// DciConfig carries the semi-static quantities the PHY needs to size and
// pack a DCI payload for one UE.
type DciConfig struct {
	BwpDlWidth      uint32
	BwpUlWidth      uint32
	Coreset0Bw      uint32
	MonitorCommon01 bool
}
