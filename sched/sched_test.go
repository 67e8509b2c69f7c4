package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
)

func TestZeroUsersSlot(t *testing.T) {
	s := testScheduler(t, DefaultSchedArgs())
	defer s.Stop()

	res := runSlot(s, slot0())
	require.NotNil(t, res)
	require.Len(t, res.Ssb, 1, "SSB expected at slot 0")
	require.Len(t, res.SibIdxs, 1, "SIB1 expected at slot 0")
	for i := range res.PdcchDl {
		require.Equal(t, nr.RntiTypeSI, res.PdcchDl[i].Dci.Ctx.RntiType,
			"only SI PDCCHs expected with zero users")
	}
	require.Empty(t, res.PdcchUl)

	ul := s.GetULSched(slot0(), 0)
	require.NotNil(t, ul)
	require.Empty(t, ul.Pusch)
}

func TestUeCfgValidation(t *testing.T) {
	s := testScheduler(t, DefaultSchedArgs())
	defer s.Stop()

	bad := UeCfg{Carriers: []UeCcCfg{{Active: true, CC: 0}}}
	require.ErrorIs(t, s.UeCfg(0x4602, bad), ErrUeCfgInvalid)

	good := testUeCfg(testCellConfig())
	require.NoError(t, s.UeCfg(0x4602, good))
}

// Scenario: a DL new tx is NACKed; the retransmission reuses the PRB
// mask and TBS, with RV 2 and one retransmission counted.
func TestDlRetransmission(t *testing.T) {
	s := testScheduler(t, DefaultSchedArgs())
	defer s.Stop()

	rnti := nr.Rnti(0x4602)
	require.NoError(t, s.UeCfg(rnti, testUeCfg(testCellConfig())))
	s.DlBufferState(rnti, 4, 100, 0)

	// Slot 0.0 carries the SSB; the first data PDSCH lands at 0.1.
	runSlot(s, slot0())
	res := runSlot(s, slot0().Add(1))

	var first *PdcchDl
	for i := range res.PdcchDl {
		if res.PdcchDl[i].Dci.Ctx.Rnti == rnti {
			first = &res.PdcchDl[i]
		}
	}
	require.NotNil(t, first, "UE PDSCH expected at slot 0.1")
	require.Equal(t, uint32(0), first.Dci.Pid)
	require.Equal(t, uint32(0), first.Dci.Rv)
	require.Len(t, res.Pdsch, 1)
	firstGrant := res.Pdsch[0].Sch.Grant
	firstTbs := firstGrant.TbsBytes
	require.NotZero(t, firstTbs)

	// RLC reports the buffer drained; the PHY reports a NACK.
	s.DlBufferState(rnti, 4, 0, 0)
	s.DlAckInfo(rnti, 0, 0, 0, false)

	sl := slot0().Add(2)
	var retx *PdcchDl
	var retxRes *DlResult
	for i := 0; i < 12 && retx == nil; i++ {
		res = runSlot(s, sl)
		for j := range res.PdcchDl {
			if res.PdcchDl[j].Dci.Ctx.Rnti == rnti {
				retx = &res.PdcchDl[j]
				retxRes = res
			}
		}
		sl = sl.Add(1)
	}
	require.NotNil(t, retx, "retransmission never scheduled")
	require.Equal(t, uint32(0), retx.Dci.Pid)
	require.Equal(t, uint32(2), retx.Dci.Rv, "first retx must use RV 2")
	require.False(t, retx.Dci.Ndi)

	require.Len(t, retxRes.Pdsch, 1)
	retxGrant := retxRes.Pdsch[0].Sch.Grant
	require.Equal(t, firstGrant.Prbs.Prbs(), retxGrant.Prbs.Prbs(), "retx must reuse the PRB mask")
	require.Equal(t, firstTbs, retxGrant.TbsBytes, "retx must preserve the TBS")
}

// Scenario: pending CCCH bytes force the MCS floor.
func TestCcchMcsFloor(t *testing.T) {
	args := DefaultSchedArgs()
	args.FixedDlMcs = -1 // CQI-driven; default CQI=1 maps to MCS 0
	s := testScheduler(t, args)
	defer s.Stop()

	rnti := nr.Rnti(0x4603)
	require.NoError(t, s.UeCfg(rnti, testUeCfg(testCellConfig())))
	s.DlBufferState(rnti, CcchLcid, 400, 0)

	runSlot(s, slot0())
	res := runSlot(s, slot0().Add(1))

	var pdcch *PdcchDl
	for i := range res.PdcchDl {
		if res.PdcchDl[i].Dci.Ctx.Rnti == rnti {
			pdcch = &res.PdcchDl[i]
		}
	}
	require.NotNil(t, pdcch)
	require.Equal(t, 4, pdcch.Dci.Mcs, "CCCH bytes must raise the MCS floor")
	require.Len(t, res.Data, 1)
	require.Contains(t, res.Data[0].Subpdus, uint32(CcchLcid))
}

// Scenario: the HARQ-ACK of a PDSCH lands on PUCCH when the UE has no
// PUSCH in the feedback slot, and rides the PUSCH otherwise.
func TestUciMultiplexing(t *testing.T) {
	for _, withPusch := range []bool{false, true} {
		name := "pucch"
		if withPusch {
			name = "pusch"
		}
		t.Run(name, func(t *testing.T) {
			s := testScheduler(t, DefaultSchedArgs())
			defer s.Stop()

			rnti := nr.Rnti(0x4604)
			require.NoError(t, s.UeCfg(rnti, testUeCfg(testCellConfig())))
			s.DlBufferState(rnti, 4, 100, 0)

			runSlot(s, slot0())
			if withPusch {
				// Reported after slot 0.0 so the UL grant goes out at 0.1
				// and its PUSCH (k2 = 4) lands in the feedback slot 0.5.
				s.UlBsr(rnti, 0, 1000)
			}
			res := runSlot(s, slot0().Add(1)) // PDSCH at 0.1, ACK at 0.5
			require.NotEmpty(t, res.Pdsch)
			s.DlBufferState(rnti, 4, 0, 0)

			for i := 2; i <= 5; i++ {
				runSlot(s, slot0().Add(i))
			}
			ul := s.GetULSched(slot0().Add(5), 0)
			require.NotNil(t, ul)

			if withPusch {
				require.NotEmpty(t, ul.Pusch, "UL grant expected at the feedback slot")
				require.Empty(t, ul.Pucch, "no PUCCH when UCI rides the PUSCH")
				found := false
				for i := range ul.Pusch {
					if ul.Pusch[i].Sch.Grant.Rnti == rnti && ul.Pusch[i].Sch.HasUci {
						require.Equal(t, uint32(1), ul.Pusch[i].Sch.Uci.AckCount)
						found = true
					}
				}
				require.True(t, found, "PUSCH must carry the ACK bits")
			} else {
				require.Empty(t, ul.Pusch)
				require.Len(t, ul.Pucch, 1, "exactly one PUCCH expected")
				require.NotEmpty(t, ul.Pucch[0].Candidates)
				require.Equal(t, uint32(1), ul.Pucch[0].Candidates[0].Uci.AckCount)
			}
		})
	}
}

func TestFullHarqPoolBlocksNewTx(t *testing.T) {
	pool := NewSoftbufferPool(100, MaxHarq)
	params, err := NewSchedParams(DefaultSchedArgs(), []CellConfig{testCellConfig()}, log.Discard())
	require.NoError(t, err)
	params.Cells[0].SetSoftbufferPool(pool)

	u := NewUeAtRach(0x4605, 0, params, pool, log.Discard())
	u.NewSlot(slot0().Add(4))

	cc := u.Carrier(0)
	var dci nr.DciDl
	for {
		h := cc.HarqEnt.FindEmptyDlHarq()
		if h == nil {
			break
		}
		require.True(t, h.NewTx(slot0().Add(4), slot0().Add(8), testGrant(0, 5), 5, 4, &dci, pool, 100))
	}

	su := u.MakeSlotUe(slot0().Add(4), 0)
	require.False(t, su.Empty())
	require.Nil(t, su.HDl, "full HARQ pool must leave the slot UE without a DL process")
}

func TestMetricsRendezvous(t *testing.T) {
	s := testScheduler(t, DefaultSchedArgs())

	rnti := nr.Rnti(0x4606)
	require.NoError(t, s.UeCfg(rnti, testUeCfg(testCellConfig())))
	s.DlBufferState(rnti, 4, 100, 0)
	runSlot(s, slot0())
	runSlot(s, slot0().Add(1))
	s.DlAckInfo(rnti, 0, 0, 0, true)
	runSlot(s, slot0().Add(2))

	var out MacMetrics
	out.Ues = []UeMetric{{Rnti: rnti}}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.GetMetrics(&out)
	}()

	time.Sleep(10 * time.Millisecond)
	runSlot(s, slot0().Add(3)) // SaveMetrics fires inside SlotIndication
	wg.Wait()

	require.Equal(t, uint64(1), out.Ues[0].TxPkts)
	require.NotZero(t, out.Ues[0].TxBrate, "ACKed bytes must be counted")
	require.Zero(t, out.Ues[0].TxErrors)

	// After Stop, requests return immediately.
	s.Stop()
	var out2 MacMetrics
	out2.Ues = []UeMetric{{Rnti: rnti}}
	done := make(chan struct{})
	go func() {
		s.GetMetrics(&out2)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("GetMetrics must not block after Stop")
	}
	require.Zero(t, out2.Ues[0].TxPkts, "counters were reset by the first request")
}

func TestUeRemIdempotent(t *testing.T) {
	s := testScheduler(t, DefaultSchedArgs())
	defer s.Stop()

	rnti := nr.Rnti(0x4607)
	require.NoError(t, s.UeCfg(rnti, testUeCfg(testCellConfig())))
	runSlot(s, slot0())

	s.UeRem(rnti)
	s.UeRem(rnti)
	runSlot(s, slot0().Add(1))

	s.DlBufferState(rnti, 4, 100, 0)
	res := runSlot(s, slot0().Add(2))
	for i := range res.PdcchDl {
		require.NotEqual(t, rnti, res.PdcchDl[i].Dci.Ctx.Rnti, "removed UE must not be scheduled")
	}
}

// No two PDSCH grants of one slot may overlap, across SI, RAR and data.
func TestNoPdschPrbCollisions(t *testing.T) {
	s := testScheduler(t, DefaultSchedArgs())
	defer s.Stop()

	require.NoError(t, s.DlRachInfo(testRachInfo()))
	rnti := nr.Rnti(0x4608)
	require.NoError(t, s.UeCfg(rnti, testUeCfg(testCellConfig())))
	s.DlBufferState(rnti, 4, 5000, 0)
	s.UlBsr(rnti, 0, 5000)

	sl := slot0()
	for i := 0; i < 20; i++ {
		res := runSlot(s, sl)
		occupied := nr.NewPrbBitmap(100)
		for j := range res.Pdsch {
			prbs := res.Pdsch[j].Sch.Grant.Prbs.Prbs()
			require.False(t, occupied.IntersectsInterval(prbs),
				"PDSCH collision at %s: %s", sl, prbs)
			occupied.FillInterval(prbs)
		}
		ul := s.GetULSched(sl, 0)
		ulOccupied := nr.NewPrbBitmap(100)
		for j := range ul.Pusch {
			prbs := ul.Pusch[j].Sch.Grant.Prbs.Prbs()
			require.False(t, ulOccupied.IntersectsInterval(prbs),
				"PUSCH collision at %s: %s", sl, prbs)
			ulOccupied.FillInterval(prbs)
		}
		sl = sl.Add(1)
	}
}
