package sched

import (
	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
)

// rvSeq is the redundancy version sequence applied across
// retransmissions of one transport block.
var rvSeq = [4]uint32{0, 2, 3, 1}

// harqProc is the state common to DL and UL HARQ processes: a small
// stop-and-wait machine keyed by process id.
type harqProc struct {
	pid uint32

	active      bool
	ackReceived bool

	txSlot  nr.SlotPoint
	ackSlot nr.SlotPoint

	prbs     nr.PrbGrant
	mcs      int
	tbsBytes uint32
	nofRetx  uint32
	maxRetx  uint32
}

// Empty reports whether the process carries no transport block.
func (h *harqProc) Empty() bool { return !h.active }

// Pid returns the process id.
func (h *harqProc) Pid() uint32 { return h.pid }

// Tbs returns the transport block size in bytes.
func (h *harqProc) Tbs() uint32 { return h.tbsBytes }

// SetTbs fixes the TBS once the PHY conversion resolved it.
func (h *harqProc) SetTbs(bytes uint32) { h.tbsBytes = bytes }

// Mcs returns the MCS of the current transmission.
func (h *harqProc) Mcs() int { return h.mcs }

// SetMcs overrides the MCS (coderate backoff on the first tx).
func (h *harqProc) SetMcs(mcs int) { h.mcs = mcs }

// Prbs returns the PRB grant of the current transmission.
func (h *harqProc) Prbs() nr.PrbGrant { return h.prbs }

// NofRetx returns the number of retransmissions performed.
func (h *harqProc) NofRetx() uint32 { return h.nofRetx }

// MaxRetx returns the configured retransmission cap.
func (h *harqProc) MaxRetx() uint32 { return h.maxRetx }

// Rv returns the redundancy version of the current transmission,
// following the 0, 2, 3, 1 sequence.
func (h *harqProc) Rv() uint32 { return rvSeq[h.nofRetx%4] }

// TxSlot returns the slot of the last transmission.
func (h *harqProc) TxSlot() nr.SlotPoint { return h.txSlot }

// AckSlot returns the slot feedback is expected in.
func (h *harqProc) AckSlot() nr.SlotPoint { return h.ackSlot }

// HasPendingRetx reports whether the process awaits a retransmission:
// feedback window elapsed, no ACK received, retx budget left.
func (h *harqProc) HasPendingRetx(cur nr.SlotPoint) bool {
	return h.active && !h.ackReceived && cur.AtOrAfter(h.ackSlot) && h.nofRetx < h.maxRetx
}

// newTx starts a fresh transport block. Fails when the process is busy.
func (h *harqProc) newTx(txSlot, ackSlot nr.SlotPoint, grant nr.PrbGrant, mcs int, maxRetx uint32) bool {
	if h.active {
		return false
	}
	h.active = true
	h.ackReceived = false
	h.txSlot = txSlot
	h.ackSlot = ackSlot
	h.prbs = grant
	h.mcs = mcs
	h.tbsBytes = 0
	h.nofRetx = 0
	h.maxRetx = maxRetx
	return true
}

// newRetx retransmits the held transport block. TBS is preserved; the
// redundancy version advances along rvSeq.
func (h *harqProc) newRetx(txSlot, ackSlot nr.SlotPoint, grant nr.PrbGrant) bool {
	if !h.active || h.ackReceived || h.nofRetx >= h.maxRetx {
		return false
	}
	h.txSlot = txSlot
	h.ackSlot = ackSlot
	h.prbs = grant
	h.nofRetx++
	return true
}

// ackInfo applies feedback. Returns the TBS in bytes, or -1 when the
// process was empty (duplicate or stray feedback).
func (h *harqProc) ackInfo(ack bool) int {
	if !h.active {
		return -1
	}
	tbs := int(h.tbsBytes)
	if ack {
		h.reset()
		return tbs
	}
	h.ackReceived = false
	return tbs
}

func (h *harqProc) reset() {
	h.active = false
	h.ackReceived = false
	h.nofRetx = 0
	h.tbsBytes = 0
}

// DlHarqProc is a downlink HARQ process; it snapshots the last DCI so a
// retransmission can reuse the original assignment.
type DlHarqProc struct {
	harqProc
	softbuffer *TxSoftbuffer
	lastDci    nr.DciDl
}

// NewTx starts a DL transport block and reserves a TX softbuffer.
func (h *DlHarqProc) NewTx(txSlot, ackSlot nr.SlotPoint, grant nr.PrbGrant, mcs int, maxRetx uint32, dci *nr.DciDl, pool *SoftbufferPool, nofPrb uint32) bool {
	if !h.newTx(txSlot, ackSlot, grant, mcs, maxRetx) {
		return false
	}
	if h.softbuffer == nil {
		h.softbuffer = pool.GetTx(nofPrb)
	}
	h.fillDci(dci)
	h.lastDci = *dci
	return true
}

// NewRetx retransmits the held DL transport block.
func (h *DlHarqProc) NewRetx(txSlot, ackSlot nr.SlotPoint, grant nr.PrbGrant, dci *nr.DciDl) bool {
	if !h.newRetx(txSlot, ackSlot, grant) {
		return false
	}
	dci.Mcs = h.mcs
	h.fillDci(dci)
	h.lastDci = *dci
	return true
}

// AckInfo applies DL feedback, releasing the softbuffer on ACK.
func (h *DlHarqProc) AckInfo(tbIdx uint32, ack bool) int {
	_ = tbIdx // single transport block per process
	tbs := h.ackInfo(ack)
	if tbs >= 0 && ack {
		h.releaseSoftbuffer()
	}
	return tbs
}

// Softbuffer returns the reserved TX softbuffer.
func (h *DlHarqProc) Softbuffer() *TxSoftbuffer { return h.softbuffer }

// LastDci returns the DCI snapshot of the current transmission.
func (h *DlHarqProc) LastDci() nr.DciDl { return h.lastDci }

func (h *DlHarqProc) fillDci(dci *nr.DciDl) {
	dci.Pid = h.pid
	dci.Rv = h.Rv()
	dci.Ndi = h.nofRetx == 0
}

func (h *DlHarqProc) releaseSoftbuffer() {
	if h.softbuffer != nil {
		h.softbuffer.Release()
		h.softbuffer = nil
	}
}

// discardStuck empties a process that exhausted its retx budget.
func (h *DlHarqProc) discardStuck() {
	h.reset()
	h.releaseSoftbuffer()
}

// UlHarqProc is an uplink HARQ process.
type UlHarqProc struct {
	harqProc
	softbuffer *RxSoftbuffer
	lastDci    nr.DciUl
}

// NewTx starts a UL transport block and reserves an RX softbuffer.
func (h *UlHarqProc) NewTx(txSlot nr.SlotPoint, grant nr.PrbGrant, mcs int, maxRetx uint32, dci *nr.DciUl, pool *SoftbufferPool, nofPrb uint32) bool {
	if !h.newTx(txSlot, txSlot.Add(TxEnbDelay), grant, mcs, maxRetx) {
		return false
	}
	if h.softbuffer == nil {
		h.softbuffer = pool.GetRx(nofPrb)
	}
	h.fillDci(dci)
	h.lastDci = *dci
	return true
}

// NewRetx retransmits the held UL transport block.
func (h *UlHarqProc) NewRetx(txSlot nr.SlotPoint, grant nr.PrbGrant, dci *nr.DciUl) bool {
	if !h.newRetx(txSlot, txSlot.Add(TxEnbDelay), grant) {
		return false
	}
	dci.Mcs = h.mcs
	h.fillDci(dci)
	h.lastDci = *dci
	return true
}

// CrcInfo applies the decode outcome of the UL transport block.
func (h *UlHarqProc) CrcInfo(crc bool) int {
	tbs := h.ackInfo(crc)
	if tbs >= 0 && crc {
		h.releaseSoftbuffer()
	}
	return tbs
}

// Softbuffer returns the reserved RX softbuffer.
func (h *UlHarqProc) Softbuffer() *RxSoftbuffer { return h.softbuffer }

// LastDci returns the DCI snapshot of the current transmission.
func (h *UlHarqProc) LastDci() nr.DciUl { return h.lastDci }

func (h *UlHarqProc) fillDci(dci *nr.DciUl) {
	dci.Pid = h.pid
	dci.Rv = h.Rv()
	dci.Ndi = h.nofRetx == 0
}

func (h *UlHarqProc) releaseSoftbuffer() {
	if h.softbuffer != nil {
		h.softbuffer.Release()
		h.softbuffer = nil
	}
}

func (h *UlHarqProc) discardStuck() {
	h.reset()
	h.releaseSoftbuffer()
}

// HarqEntity is the per-UE per-carrier array of DL and UL HARQ processes.
type HarqEntity struct {
	rnti   nr.Rnti
	logger *log.Logger

	dl []DlHarqProc
	ul []UlHarqProc

	slotRx nr.SlotPoint
}

// NewHarqEntity builds an entity with nofHarq processes per direction.
func NewHarqEntity(rnti nr.Rnti, nofHarq int, logger *log.Logger) *HarqEntity {
	e := &HarqEntity{rnti: rnti, logger: logger,
		dl: make([]DlHarqProc, nofHarq), ul: make([]UlHarqProc, nofHarq)}
	for i := range e.dl {
		e.dl[i].pid = uint32(i)
		e.ul[i].pid = uint32(i)
	}
	return e
}

// NewSlot advances the entity clock and discards stuck processes that
// exhausted their retransmission budget without an ACK.
func (e *HarqEntity) NewSlot(slotRx nr.SlotPoint) {
	e.slotRx = slotRx
	for i := range e.dl {
		h := &e.dl[i]
		if h.active && !h.ackReceived && slotRx.AtOrAfter(h.ackSlot) && h.nofRetx >= h.maxRetx {
			e.logger.Debug("discarding stuck DL harq", "rnti", e.rnti, "pid", h.pid, "nof_retx", h.nofRetx)
			h.discardStuck()
		}
	}
	for i := range e.ul {
		h := &e.ul[i]
		if h.active && !h.ackReceived && slotRx.AtOrAfter(h.ackSlot) && h.nofRetx >= h.maxRetx {
			e.logger.Debug("discarding stuck UL harq", "rnti", e.rnti, "pid", h.pid, "nof_retx", h.nofRetx)
			h.discardStuck()
		}
	}
}

// SlotRx returns the current entity clock.
func (e *HarqEntity) SlotRx() nr.SlotPoint { return e.slotRx }

// FindEmptyDlHarq returns a free DL process, or nil.
func (e *HarqEntity) FindEmptyDlHarq() *DlHarqProc {
	for i := range e.dl {
		if e.dl[i].Empty() {
			return &e.dl[i]
		}
	}
	return nil
}

// FindPendingDlRetx returns a DL process awaiting retransmission, or nil.
func (e *HarqEntity) FindPendingDlRetx() *DlHarqProc {
	for i := range e.dl {
		if e.dl[i].HasPendingRetx(e.slotRx) {
			return &e.dl[i]
		}
	}
	return nil
}

// FindEmptyUlHarq returns a free UL process, or nil.
func (e *HarqEntity) FindEmptyUlHarq() *UlHarqProc {
	for i := range e.ul {
		if e.ul[i].Empty() {
			return &e.ul[i]
		}
	}
	return nil
}

// FindPendingUlRetx returns a UL process awaiting retransmission, or nil.
func (e *HarqEntity) FindPendingUlRetx() *UlHarqProc {
	for i := range e.ul {
		if e.ul[i].HasPendingRetx(e.slotRx) {
			return &e.ul[i]
		}
	}
	return nil
}

// DlAckInfo applies DL feedback to a process by pid. Returns the TBS in
// bytes, or -1 for an unknown or empty pid.
func (e *HarqEntity) DlAckInfo(pid, tbIdx uint32, ack bool) int {
	if pid >= uint32(len(e.dl)) {
		return -1
	}
	return e.dl[pid].AckInfo(tbIdx, ack)
}

// UlCrcInfo applies a UL decode outcome to a process by pid.
func (e *HarqEntity) UlCrcInfo(pid uint32, crc bool) int {
	if pid >= uint32(len(e.ul)) {
		return -1
	}
	return e.ul[pid].CrcInfo(crc)
}

// NofDlHarqs returns the DL process count.
func (e *HarqEntity) NofDlHarqs() int { return len(e.dl) }

// NofUlHarqs returns the UL process count.
func (e *HarqEntity) NofUlHarqs() int { return len(e.ul) }

// DlHarq returns the DL process with the given pid.
func (e *HarqEntity) DlHarq(pid uint32) *DlHarqProc { return &e.dl[pid] }

// UlHarq returns the UL process with the given pid.
func (e *HarqEntity) UlHarq(pid uint32) *UlHarqProc { return &e.ul[pid] }
