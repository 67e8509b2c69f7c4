package nr

// McsEntry is one row of the PDSCH MCS index table: modulation order and
// target code rate (x1024).
type McsEntry struct {
	Qm uint32
	R  uint32
}

// mcsTable1 is TS 38.214, Table 5.1.3.1-1 (qam64).
var mcsTable1 = [29]McsEntry{
	{2, 120}, {2, 157}, {2, 193}, {2, 251}, {2, 308}, {2, 379}, {2, 449}, {2, 526},
	{2, 602}, {2, 679}, {4, 340}, {4, 378}, {4, 434}, {4, 490}, {4, 553}, {4, 616},
	{4, 658}, {6, 438}, {6, 466}, {6, 517}, {6, 567}, {6, 616}, {6, 666}, {6, 719},
	{6, 772}, {6, 822}, {6, 873}, {6, 910}, {6, 948},
}

// MaxMcs is the highest MCS index the scheduler assigns.
const MaxMcs = 28

// McsToEntry returns modulation order and target rate for an MCS index.
func McsToEntry(mcs int) McsEntry {
	if mcs < 0 {
		mcs = 0
	}
	if mcs > MaxMcs {
		mcs = MaxMcs
	}
	return mcsTable1[mcs]
}

// cqiToMcsTable1 maps a 4-bit wideband CQI to the largest MCS whose
// spectral efficiency does not exceed the CQI's (qam64 tables).
var cqiToMcsTable1 = [16]int{-1, 0, 0, 2, 4, 6, 8, 11, 13, 15, 18, 20, 22, 24, 26, 28}

// CqiToMcs maps a reported CQI to an MCS index. A CQI of zero is out of
// range and yields -1 so the caller can apply its fallback.
func CqiToMcs(cqi uint32) int {
	if cqi >= uint32(len(cqiToMcsTable1)) {
		return MaxMcs
	}
	return cqiToMcsTable1[cqi]
}
