package nr

import "testing"

func TestCoresetGeometry(t *testing.T) {
	cs := ContiguousCoreset(0, 0, 48, 1)
	if cs.NofFreqResources() != 8 || cs.Bandwidth() != 48 {
		t.Fatalf("freq res = %d, bw = %d", cs.NofFreqResources(), cs.Bandwidth())
	}
	if cs.NofCces() != 8 {
		t.Fatalf("nof cces = %d", cs.NofCces())
	}
	cs2 := ContiguousCoreset(1, 12, 24, 2)
	if cs2.StartRb() != 12 || cs2.NofCces() != 8 {
		t.Fatalf("start = %d, cces = %d", cs2.StartRb(), cs2.NofCces())
	}
}

func TestCceLocationsCommon(t *testing.T) {
	cs := ContiguousCoreset(0, 0, 48, 1) // 8 CCEs
	ss := &SearchSpace{ID: 0, CoresetID: 0, Type: SearchSpaceTypeCommon1,
		NofCandidates: [MaxNofAggrLevels]uint32{0, 2, 2, 0, 0}}

	// Common search space: Y = 0, candidates are deterministic.
	locs := CceLocations(&cs, ss, 0, 1, 3)
	if len(locs) != 2 {
		t.Fatalf("got %d candidates", len(locs))
	}
	for _, ncce := range locs {
		if ncce%2 != 0 || ncce+2 > cs.NofCces() {
			t.Fatalf("candidate %d not aligned or out of range", ncce)
		}
	}
	// Slot index must not change common candidates.
	locs2 := CceLocations(&cs, ss, 0, 1, 7)
	for i := range locs {
		if locs[i] != locs2[i] {
			t.Fatal("common candidates must be slot-independent")
		}
	}
}

func TestCceLocationsUeDedicated(t *testing.T) {
	cs := ContiguousCoreset(1, 0, 48, 2) // 16 CCEs
	ss := &SearchSpace{ID: 2, CoresetID: 1, Type: SearchSpaceTypeUE,
		NofCandidates: [MaxNofAggrLevels]uint32{0, 0, 2, 0, 0}}

	seen := make(map[uint32]bool)
	for slot := uint32(0); slot < 10; slot++ {
		locs := CceLocations(&cs, ss, 0x4601, 2, slot)
		if len(locs) != 2 {
			t.Fatalf("slot %d: got %d candidates", slot, len(locs))
		}
		for _, ncce := range locs {
			if ncce%4 != 0 || ncce+4 > cs.NofCces() {
				t.Fatalf("slot %d: candidate %d invalid", slot, ncce)
			}
			seen[ncce] = true
		}
		// Determinism per (rnti, slot).
		again := CceLocations(&cs, ss, 0x4601, 2, slot)
		for i := range locs {
			if locs[i] != again[i] {
				t.Fatal("candidate derivation must be deterministic")
			}
		}
	}
	if len(seen) < 2 {
		t.Fatal("hashing never moved the candidates")
	}
}

func TestCceLocationsTooSmallCoreset(t *testing.T) {
	cs := ContiguousCoreset(0, 0, 12, 1) // 2 CCEs
	ss := &SearchSpace{ID: 0, CoresetID: 0, Type: SearchSpaceTypeCommon1,
		NofCandidates: [MaxNofAggrLevels]uint32{0, 0, 1, 0, 0}}
	if locs := CceLocations(&cs, ss, 0, 2, 0); locs != nil {
		t.Fatalf("L=4 in a 2-CCE coreset must yield no candidates, got %v", locs)
	}
}

func TestRntiTypeSearchSpacePairing(t *testing.T) {
	cases := []struct {
		rnti RntiType
		ss   SearchSpaceType
		ok   bool
	}{
		{RntiTypeSI, SearchSpaceTypeCommon0, true},
		{RntiTypeSI, SearchSpaceTypeCommon1, false},
		{RntiTypeRA, SearchSpaceTypeCommon1, true},
		{RntiTypeTC, SearchSpaceTypeCommon1, true},
		{RntiTypeC, SearchSpaceTypeCommon1, true},
		{RntiTypeP, SearchSpaceTypeCommon2, true},
		{RntiTypeC, SearchSpaceTypeCommon2, false},
		{RntiTypeC, SearchSpaceTypeUE, true},
		{RntiTypeRA, SearchSpaceTypeUE, false},
	}
	for _, c := range cases {
		if got := RntiTypeAllowedInSearchSpace(c.rnti, c.ss); got != c.ok {
			t.Fatalf("RntiTypeAllowedInSearchSpace(%s, %s) = %v", c.rnti, c.ss, got)
		}
	}
}

func TestCqiToMcs(t *testing.T) {
	if CqiToMcs(0) != -1 {
		t.Fatal("CQI 0 must be out of range")
	}
	last := -1
	for cqi := uint32(1); cqi <= 15; cqi++ {
		mcs := CqiToMcs(cqi)
		if mcs < last {
			t.Fatalf("CQI->MCS must be monotonic, cqi=%d mcs=%d", cqi, mcs)
		}
		last = mcs
	}
	if CqiToMcs(15) != MaxMcs {
		t.Fatalf("CQI 15 must map to the top MCS")
	}
}
