package sched

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/nr"
)

// eventLogger accumulates the names of the events processed in one drain
// point and emits them as a single debug line.
type eventLogger struct {
	enabled bool
	cc      int
	logger  *log.Logger
	items   []string
}

func newEventLogger(cc int, logger *log.Logger) *eventLogger {
	return &eventLogger{enabled: logger.DebugEnabled(), cc: cc, logger: logger}
}

func (l *eventLogger) push(format string, args ...any) {
	if l.enabled {
		l.items = append(l.items, fmt.Sprintf(format, args...))
	}
}

func (l *eventLogger) flush() {
	if !l.enabled || len(l.items) == 0 {
		return
	}
	if l.cc < 0 {
		l.logger.Debug("slot events", "events", strings.Join(l.items, ", "))
	} else {
		l.logger.Debug("slot events", "cc", l.cc, "events", strings.Join(l.items, ", "))
	}
}

// event is a non-UE-specific action (user creation, removal).
type event struct {
	name     string
	callback func(*eventLogger)
}

// ueEvent is an action on one UE, applied at the drain point matching
// the UE's carrier-aggregation mode.
type ueEvent struct {
	rnti     nr.Rnti
	name     string
	callback func(*Ue, *eventLogger)
}

// ueCcEvent is cell-scoped feedback for one UE carrier.
type ueCcEvent struct {
	rnti     nr.Rnti
	cc       uint32
	name     string
	callback func(*UeCarrier, *eventLogger)
}

type ccEventQueue struct {
	mu      sync.Mutex
	next    []ueCcEvent
	current []ueCcEvent
}

// eventManager stores the asynchronously delivered feedback and config
// events, applying them synchronously inside the slot drain points.
type eventManager struct {
	logger *log.Logger

	mu           sync.Mutex
	nextEvents   []event
	nextUeEvents []ueEvent

	currentEvents   []event
	currentUeEvents []ueEvent
	// drainMu serializes the deferred common-event pass of concurrent
	// cell workers: they mark entries of currentUeEvents as consumed.
	drainMu sync.Mutex

	carriers []ccEventQueue
}

func newEventManager(nofCells int, logger *log.Logger) *eventManager {
	return &eventManager{logger: logger, carriers: make([]ccEventQueue, nofCells)}
}

// enqueueEvent queues an action that does not map onto a UE method.
func (m *eventManager) enqueueEvent(name string, cb func(*eventLogger)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEvents = append(m.nextEvents, event{name: name, callback: cb})
}

// enqueueUeEvent queues an action on one UE (SR, BSR, buffer state).
func (m *eventManager) enqueueUeEvent(name string, rnti nr.Rnti, cb func(*Ue, *eventLogger)) {
	if rnti == nr.InvalidRnti {
		m.logger.Warn("invalid rnti passed to event manager", "event", name)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUeEvents = append(m.nextUeEvents, ueEvent{rnti: rnti, name: name, callback: cb})
}

// enqueueUeCcFeedback queues cell-scoped feedback (ACK, CRC, CQI).
func (m *eventManager) enqueueUeCcFeedback(name string, rnti nr.Rnti, cc uint32, cb func(*UeCarrier, *eventLogger)) {
	if rnti == nr.InvalidRnti || int(cc) >= len(m.carriers) {
		m.logger.Warn("invalid rnti/cc passed to event manager", "event", name, "rnti", rnti, "cc", cc)
		return
	}
	q := &m.carriers[cc]
	q.mu.Lock()
	defer q.mu.Unlock()
	q.next = append(q.next, ueCcEvent{rnti: rnti, cc: cc, name: name, callback: cb})
}

// processCommon drains the common queue inside slot_indication. Events
// on CA-enabled UEs apply now; events on non-CA UEs are deferred to the
// cell drain point so they run inside the cell worker's goroutine.
func (m *eventManager) processCommon(ues map[nr.Rnti]*Ue) {
	m.mu.Lock()
	m.currentEvents, m.nextEvents = m.nextEvents, m.currentEvents[:0]
	m.currentUeEvents, m.nextUeEvents = m.nextUeEvents, m.currentUeEvents[:0]
	m.mu.Unlock()

	evl := newEventLogger(-1, m.logger)
	defer evl.flush()

	for i := range m.currentEvents {
		m.currentEvents[i].callback(evl)
	}

	for i := range m.currentUeEvents {
		ev := &m.currentUeEvents[i]
		u, ok := ues[ev.rnti]
		if !ok {
			m.logger.Warn("event for unknown rnti", "event", ev.name, "rnti", ev.rnti)
			ev.rnti = nr.InvalidRnti
		} else if u.HasCa() {
			ev.callback(u, evl)
			ev.rnti = nr.InvalidRnti
		}
	}
}

// processCcEvents drains the per-cell queue inside get_dl_sched, and
// applies the deferred common-queue events targeting non-CA UEs of cc.
func (m *eventManager) processCcEvents(ues map[nr.Rnti]*Ue, cc uint32) {
	evl := newEventLogger(int(cc), m.logger)
	defer evl.flush()

	q := &m.carriers[cc]
	q.mu.Lock()
	q.current, q.next = q.next, q.current[:0]
	q.mu.Unlock()

	m.drainMu.Lock()
	for i := range m.currentUeEvents {
		ev := &m.currentUeEvents[i]
		if ev.rnti == nr.InvalidRnti {
			continue
		}
		u, ok := ues[ev.rnti]
		if !ok {
			m.logger.Warn("event for unknown rnti", "event", ev.name, "rnti", ev.rnti)
			ev.rnti = nr.InvalidRnti
		} else if !u.HasCa() && u.Carrier(cc) != nil {
			ev.callback(u, evl)
			ev.rnti = nr.InvalidRnti
		}
	}
	m.drainMu.Unlock()

	for i := range q.current {
		ev := &q.current[i]
		u, ok := ues[ev.rnti]
		if ok && u.Carrier(ev.cc) != nil {
			ev.callback(u.Carrier(ev.cc), evl)
		} else {
			m.logger.Warn("feedback for unknown rnti", "event", ev.name, "rnti", ev.rnti, "cc", ev.cc)
		}
	}
}
