package sched

import (
	"testing"

	"github.com/gnbsched/gnbsched/log"
)

func TestBufferTotals(t *testing.T) {
	m := NewUeBufferManager(0x4601, log.Discard())
	m.DlBufferState(4, 100, 20)
	m.DlBufferState(5, 50, 0)
	m.AddDlMacCe(CeLcidConResID, 0, 1)
	m.AddDlMacCe(CeLcidTaCmd, 0, 2)

	// 170 SDU bytes + 6 (con-res) + 2x1 (TA).
	if got := m.GetDlTxTotal(); got != 178 {
		t.Fatalf("GetDlTxTotal = %d", got)
	}
	if got := m.GetDlTx(4); got != 120 {
		t.Fatalf("GetDlTx(4) = %d", got)
	}

	m.UlBsr(0, 100)
	m.UlBsr(3, 50)
	m.UlBsr(0, 70) // replaces, not accumulates
	if got := m.GetBsr(); got != 120 {
		t.Fatalf("GetBsr = %d", got)
	}
}

func TestAllocSubpdusCeFirst(t *testing.T) {
	m := NewUeBufferManager(0x4601, log.Discard())
	m.DlBufferState(4, 50, 0)
	m.AddDlMacCe(CeLcidConResID, 0, 1)
	m.AddDlMacCe(CeLcidTaCmd, 1, 1) // other carrier: must stay queued

	b := NewPduBuilder(0, m)
	var pdu DlPdu
	if !b.AllocSubpdus(100, &pdu) {
		t.Fatal("AllocSubpdus returned false")
	}
	if len(pdu.Subpdus) != 2 || pdu.Subpdus[0] != CeLcidConResID || pdu.Subpdus[1] != 4 {
		t.Fatalf("subpdus = %v", pdu.Subpdus)
	}
	if len(m.pendingCes) != 1 || m.pendingCes[0].cc != 1 {
		t.Fatalf("cross-carrier CE must stay queued: %+v", m.pendingCes)
	}
}

func TestAllocSubpdusCeTooBig(t *testing.T) {
	m := NewUeBufferManager(0x4601, log.Discard())
	m.AddDlMacCe(CeLcidConResID, 0, 1) // 6 bytes
	m.DlBufferState(4, 2, 0)

	b := NewPduBuilder(0, m)
	var pdu DlPdu
	if !b.AllocSubpdus(4, &pdu) {
		t.Fatal("AllocSubpdus returned false")
	}
	// CE does not fit: it stays queued, the SDU is scheduled.
	if len(m.pendingCes) != 1 {
		t.Fatal("oversized CE must stay queued")
	}
	if len(pdu.Subpdus) != 1 || pdu.Subpdus[0] != 4 {
		t.Fatalf("subpdus = %v", pdu.Subpdus)
	}
}

func TestAllocSubpdusCcchSegmentation(t *testing.T) {
	// Scenario: 400 bytes pending on CCCH, TB of 300 bytes. The CCCH
	// cannot be segmented: the builder flags it while still scheduling.
	m := NewUeBufferManager(0x4601, log.Discard())
	m.DlBufferState(CcchLcid, 400, 0)

	b := NewPduBuilder(0, m)
	var pdu DlPdu
	if b.AllocSubpdus(300, &pdu) {
		t.Fatal("expected segmentation flag (false)")
	}
	if len(pdu.Subpdus) != 1 || pdu.Subpdus[0] != CcchLcid {
		t.Fatalf("CCCH must still be listed: %v", pdu.Subpdus)
	}
}

func TestAllocSubpdusAscendingLcids(t *testing.T) {
	m := NewUeBufferManager(0x4601, log.Discard())
	m.DlBufferState(7, 10, 0)
	m.DlBufferState(4, 10, 0)
	m.DlBufferState(9, 10, 0)

	b := NewPduBuilder(0, m)
	var pdu DlPdu
	if !b.AllocSubpdus(25, &pdu) {
		t.Fatal("AllocSubpdus returned false")
	}
	// Ascending order, stopping when the budget runs out.
	if len(pdu.Subpdus) != 3 || pdu.Subpdus[0] != 4 || pdu.Subpdus[1] != 7 || pdu.Subpdus[2] != 9 {
		t.Fatalf("subpdus = %v", pdu.Subpdus)
	}
}
