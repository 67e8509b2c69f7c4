package sched

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
)

func testGrant(lo, hi uint32) nr.PrbGrant {
	return nr.GrantFromInterval(nr.NewPrbInterval(lo, hi))
}

func TestDlHarqLifecycle(t *testing.T) {
	pool := NewSoftbufferPool(100, 2)
	e := NewHarqEntity(0x4601, MaxHarq, log.Discard())
	sl := slot0()
	e.NewSlot(sl)

	h := e.FindEmptyDlHarq()
	if h == nil || h.Pid() != 0 {
		t.Fatalf("expected pid 0, got %+v", h)
	}

	var dci nr.DciDl
	txSlot, ackSlot := sl.Add(4), sl.Add(8)
	if !h.NewTx(txSlot, ackSlot, testGrant(0, 20), 10, 4, &dci, pool, 100) {
		t.Fatal("NewTx failed on empty process")
	}
	if dci.Pid != 0 || dci.Rv != 0 || !dci.Ndi {
		t.Fatalf("dci not filled: %+v", dci)
	}
	if h.NewTx(txSlot, ackSlot, testGrant(0, 20), 10, 4, &dci, pool, 100) {
		t.Fatal("NewTx must fail on busy process")
	}
	h.SetTbs(1000)

	// Not yet pending: feedback slot not reached.
	if h.HasPendingRetx(sl.Add(6)) {
		t.Fatal("retx must not be pending before the ack slot")
	}
	if tbs := h.AckInfo(0, false); tbs != 1000 {
		t.Fatalf("AckInfo returned %d", tbs)
	}
	if !h.HasPendingRetx(ackSlot) {
		t.Fatal("NACKed process must be pending at the ack slot")
	}

	if !h.NewRetx(ackSlot.Add(2), ackSlot.Add(6), testGrant(0, 20), &dci) {
		t.Fatal("NewRetx failed")
	}
	if h.NofRetx() != 1 || dci.Rv != 2 || dci.Ndi {
		t.Fatalf("retx state wrong: nrtx=%d rv=%d ndi=%v", h.NofRetx(), dci.Rv, dci.Ndi)
	}
	if h.Tbs() != 1000 {
		t.Fatal("TBS must be preserved across retx")
	}

	if tbs := h.AckInfo(0, true); tbs != 1000 {
		t.Fatalf("ack returned %d", tbs)
	}
	if !h.Empty() {
		t.Fatal("ACK must empty the process")
	}
	if h.AckInfo(0, true) != -1 {
		t.Fatal("duplicate ack on empty process must return -1")
	}
	if pool.FreeTx() != 2 {
		t.Fatalf("softbuffer not returned, free=%d", pool.FreeTx())
	}
}

func TestRvSequence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pool := NewSoftbufferPool(100, 1)
		h := &DlHarqProc{}
		var dci nr.DciDl
		sl := slot0()
		nofRetx := rapid.IntRange(1, 8).Draw(t, "nof_retx")

		if !h.NewTx(sl, sl.Add(4), testGrant(0, 10), 5, uint32(nofRetx)+1, &dci, pool, 100) {
			t.Fatal("NewTx failed")
		}
		want := []uint32{0, 2, 3, 1}
		if dci.Rv != 0 {
			t.Fatalf("first tx rv = %d", dci.Rv)
		}
		for i := 1; i <= nofRetx; i++ {
			h.AckInfo(0, false)
			sl = sl.Add(8)
			if !h.NewRetx(sl, sl.Add(4), testGrant(0, 10), &dci) {
				t.Fatalf("retx %d failed", i)
			}
			if dci.Rv != want[i%4] {
				t.Fatalf("retx %d: rv = %d, want %d", i, dci.Rv, want[i%4])
			}
		}
	})
}

func TestHarqEntityDiscardsStuck(t *testing.T) {
	pool := NewSoftbufferPool(100, 1)
	e := NewHarqEntity(0x4601, 2, log.Discard())
	sl := slot0()
	e.NewSlot(sl)

	h := e.FindEmptyDlHarq()
	var dci nr.DciDl
	h.NewTx(sl, sl.Add(4), testGrant(0, 10), 5, 1, &dci, pool, 100)
	h.AckInfo(0, false)

	e.NewSlot(sl.Add(4))
	if e.FindPendingDlRetx() == nil {
		t.Fatal("expected a pending retx")
	}
	h.NewRetx(sl.Add(4), sl.Add(8), testGrant(0, 10), &dci)
	h.AckInfo(0, false)

	// Budget exhausted: the next slot discards the process.
	e.NewSlot(sl.Add(8))
	if e.FindPendingDlRetx() != nil {
		t.Fatal("stuck process must not be offered as retx")
	}
	if !h.Empty() {
		t.Fatal("stuck process must be emptied")
	}
	if pool.FreeTx() != 1 {
		t.Fatal("stuck discard must release the softbuffer")
	}
}

func TestUlHarqCrc(t *testing.T) {
	pool := NewSoftbufferPool(100, 1)
	e := NewHarqEntity(0x4601, MaxHarq, log.Discard())
	sl := slot0()
	e.NewSlot(sl)

	h := e.FindEmptyUlHarq()
	var dci nr.DciUl
	if !h.NewTx(sl.Add(4), testGrant(0, 3), 0, 4, &dci, pool, 3) {
		t.Fatal("UL NewTx failed")
	}
	h.SetTbs(7)

	if e.UlCrcInfo(h.Pid(), false) != 7 {
		t.Fatal("CRC false must report the TBS")
	}
	e.NewSlot(sl.Add(8))
	if e.FindPendingUlRetx() != h {
		t.Fatal("CRC failure must make the process pending")
	}
	if e.UlCrcInfo(h.Pid(), true) != 7 {
		t.Fatal("CRC true must report the TBS")
	}
	if !h.Empty() || pool.FreeRx() != 1 {
		t.Fatal("CRC success must empty and release")
	}
	if e.UlCrcInfo(99, true) != -1 {
		t.Fatal("out-of-range pid must return -1")
	}
}

func TestHarqPidUniqueness(t *testing.T) {
	pool := NewSoftbufferPool(100, 4)
	e := NewHarqEntity(0x4601, 4, log.Discard())
	e.NewSlot(slot0())

	seen := make(map[uint32]bool)
	var dci nr.DciDl
	for {
		h := e.FindEmptyDlHarq()
		if h == nil {
			break
		}
		if seen[h.Pid()] {
			t.Fatalf("pid %d issued twice", h.Pid())
		}
		seen[h.Pid()] = true
		h.NewTx(slot0(), slot0().Add(4), testGrant(0, 5), 5, 4, &dci, pool, 100)
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct pids, got %d", len(seen))
	}
}
