package sched

import (
	"sync"

	"github.com/gnbsched/gnbsched/nr"
)

// UeMetric is the per-UE counter snapshot returned to the caller of
// GetMetrics.
type UeMetric struct {
	Rnti     nr.Rnti
	TxBrate  uint64
	TxErrors uint64
	TxPkts   uint64
}

// MacMetrics is filled in place: the caller lists the RNTIs it wants in
// Ues and the scheduler completes the counters.
type MacMetrics struct {
	Ues []UeMetric
}

// ueMetricsManager is the cross-thread metrics rendezvous: a requester
// blocks in GetMetrics until the scheduler thread reaches its
// once-per-slot SaveMetrics point.
type ueMetricsManager struct {
	ues map[nr.Rnti]*Ue

	mu      sync.Mutex
	cvar    *sync.Cond
	pending *MacMetrics
	stopped bool
}

func newUeMetricsManager(ues map[nr.Rnti]*Ue) *ueMetricsManager {
	m := &ueMetricsManager{ues: ues}
	m.cvar = sync.NewCond(&m.mu)
	return m
}

// Stop unblocks any pending requester; later requests are served
// immediately from the scheduler's last state.
func (m *ueMetricsManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		m.saveMetricsLocked()
		m.cvar.Broadcast()
	}
}

// GetMetrics blocks until the scheduler thread saves the counters.
func (m *ueMetricsManager) GetMetrics(out *MacMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = out
	if m.stopped {
		m.saveMetricsLocked()
		return
	}
	for m.pending != nil && !m.stopped {
		m.cvar.Wait()
	}
	if m.pending != nil {
		// Stopped while waiting; serve from current state.
		m.saveMetricsLocked()
	}
}

// SaveMetrics is called once per slot from inside slot_indication.
func (m *ueMetricsManager) SaveMetrics() {
	m.mu.Lock()
	m.saveMetricsLocked()
	m.mu.Unlock()
	m.cvar.Signal()
}

// saveMetricsLocked copies and resets the per-UE counters of the pcell
// carrier into the pending request.
func (m *ueMetricsManager) saveMetricsLocked() {
	if m.pending == nil {
		return
	}
	for i := range m.pending.Ues {
		um := &m.pending.Ues[i]
		u, ok := m.ues[um.Rnti]
		if !ok {
			continue
		}
		cc := u.Carrier(u.PcellCC())
		if cc == nil {
			continue
		}
		um.TxBrate = cc.Metrics.TxBrate
		um.TxErrors = cc.Metrics.TxErrors
		um.TxPkts = cc.Metrics.TxPkts
		cc.Metrics = UeMetrics{}
	}
	m.pending = nil
}
