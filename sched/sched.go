package sched

import (
	"errors"
	"sync/atomic"

	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/metrics"
	"github.com/gnbsched/gnbsched/nr"
)

// Configuration-time errors.
var (
	ErrNotConfigured = errors.New("sched: Config must be called first")
	ErrUeCfgInvalid  = errors.New("sched: UE configuration has no coreset")
)

// Scheduler is the top-level gNB MAC scheduler: it owns the user table,
// the per-cell workers and the event queues, and serializes all feedback
// into the per-slot drain points.
//
// Concurrency contract: SlotIndication is called exactly once per slot
// by the driver thread before any GetDLSched of that slot; GetDLSched
// calls for different cells may run concurrently. All other entry points
// are safe to call from any thread at any time.
type Scheduler struct {
	cfg    *SchedParams
	logger *log.Logger

	currentSlotTx nr.SlotPoint
	workerCount   atomic.Int32

	ccWorkers []*CcWorker

	ueDb map[nr.Rnti]*Ue
	pool *SoftbufferPool

	pendingEvents  *eventManager
	metricsHandler *ueMetricsManager

	registry      *metrics.Registry
	slotsRun      *metrics.Counter
	schedDlGrants *metrics.Counter
	activeUes     *metrics.Gauge
}

// New creates an unconfigured scheduler. Config must be called before
// any other operation.
func New(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	s := &Scheduler{
		logger:   logger.Module("sched"),
		ueDb:     make(map[nr.Rnti]*Ue),
		registry: metrics.NewRegistry(),
	}
	s.slotsRun = s.registry.Counter("sched_slots_total")
	s.schedDlGrants = s.registry.Counter("sched_dl_grants_total")
	s.activeUes = s.registry.Gauge("sched_active_ues")
	s.metricsHandler = newUeMetricsManager(s.ueDb)
	return s
}

// Registry exposes the process-wide scheduler counters.
func (s *Scheduler) Registry() *metrics.Registry { return s.registry }

// Stop unblocks any pending GetMetrics call.
func (s *Scheduler) Stop() {
	s.metricsHandler.Stop()
}

// Config initializes the global args and per-cell derived parameters.
// Must precede everything else.
func (s *Scheduler) Config(args SchedArgs, cells []CellConfig) error {
	cfg, err := NewSchedParams(args, cells, s.logger)
	if err != nil {
		return err
	}
	s.cfg = cfg

	var maxPrb uint32
	for _, cell := range cfg.Cells {
		if cell.NofPrbCell() > maxPrb {
			maxPrb = cell.NofPrbCell()
		}
	}
	s.pool = NewSoftbufferPool(maxPrb, 4*MaxUes)
	for _, cell := range cfg.Cells {
		cell.SetSoftbufferPool(s.pool)
	}

	s.pendingEvents = newEventManager(len(cfg.Cells), s.logger)
	s.ccWorkers = s.ccWorkers[:0]
	for _, cell := range cfg.Cells {
		s.ccWorkers = append(s.ccWorkers, NewCcWorker(cell, s.pool))
	}
	return nil
}

// UeCfg adds or reconfigures a user. A configuration without any coreset
// is rejected.
func (s *Scheduler) UeCfg(rnti nr.Rnti, cfg UeCfg) error {
	if s.cfg == nil {
		return ErrNotConfigured
	}
	if len(cfg.Phy.Pdcch.Coresets) == 0 {
		s.logger.Warn("UE configuration without coreset", "rnti", rnti)
		return ErrUeCfgInvalid
	}
	cfgCopy := cfg
	s.pendingEvents.enqueueEvent("ue_cfg", func(evl *eventLogger) {
		if err := s.ueCfgImpl(rnti, &cfgCopy); err == nil {
			evl.push("ue_cfg(%s)", rnti)
		} else {
			s.logger.Warn("failed to create UE object", "rnti", rnti, "err", err)
		}
	})
	return nil
}

// UeRem removes a user. Idempotent.
func (s *Scheduler) UeRem(rnti nr.Rnti) {
	if s.cfg == nil {
		return
	}
	s.pendingEvents.enqueueEvent("ue_rem", func(evl *eventLogger) {
		delete(s.ueDb, rnti)
		s.logger.Info("removed user", "rnti", rnti)
		evl.push("ue_rem(%s)", rnti)
	})
}

func (s *Scheduler) addUeImpl(rnti nr.Rnti, u *Ue) error {
	if len(s.ueDb) >= MaxUes {
		return errors.New("sched: user table full")
	}
	s.ueDb[rnti] = u
	s.logger.Info("new user", "rnti", rnti, "cc", u.PcellCC())
	return nil
}

func (s *Scheduler) ueCfgImpl(rnti nr.Rnti, cfg *UeCfg) error {
	if u, ok := s.ueDb[rnti]; ok {
		u.SetCfg(cfg)
		return nil
	}
	return s.addUeImpl(rnti, NewUe(rnti, cfg, s.cfg, s.pool, s.logger))
}

// DlRachInfo enqueues a detected PRACH: the TC-RNTI user is created and
// an RAR queued on its cell.
func (s *Scheduler) DlRachInfo(info RarInfo) error {
	if s.cfg == nil {
		return ErrNotConfigured
	}
	if int(info.CC) >= len(s.ccWorkers) {
		return errors.New("sched: invalid cc in rach info")
	}
	// The user object is built outside the scheduler thread; insertion
	// and RACH handling happen at the next drain point.
	u := NewUeAtRach(info.TempCrnti, info.CC, s.cfg, s.pool, s.logger)
	s.pendingEvents.enqueueEvent("dl_rach_info", func(evl *eventLogger) {
		if err := s.addUeImpl(info.TempCrnti, u); err != nil {
			s.logger.Warn("failed to create UE object", "rnti", info.TempCrnti, "err", err)
			return
		}
		evl.push("dl_rach_info(temp c-rnti=%s)", info.TempCrnti)
		if err := s.ccWorkers[info.CC].DlRachInfo(info); err != nil {
			s.logger.Warn("failed to enqueue RAR", "rnti", info.TempCrnti, "err", err)
		}
	})
	return nil
}

// DlAckInfo reports DL HARQ feedback.
func (s *Scheduler) DlAckInfo(rnti nr.Rnti, cc, pid, tbIdx uint32, ack bool) {
	if s.cfg == nil {
		return
	}
	s.pendingEvents.enqueueUeCcFeedback("dl_ack_info", rnti, cc, func(ueCc *UeCarrier, evl *eventLogger) {
		if ueCc.DlAckInfo(pid, tbIdx, ack) >= 0 {
			evl.push("%s: dl_ack_info(pid=%d, ack=%v)", ueCc.Rnti, pid, ack)
		}
	})
}

// UlCrcInfo reports a UL decode outcome.
func (s *Scheduler) UlCrcInfo(rnti nr.Rnti, cc, pid uint32, crc bool) {
	if s.cfg == nil {
		return
	}
	s.pendingEvents.enqueueUeCcFeedback("ul_crc_info", rnti, cc, func(ueCc *UeCarrier, evl *eventLogger) {
		if ueCc.UlCrcInfo(pid, crc) >= 0 {
			evl.push("%s: ul_crc_info(pid=%d, crc=%v)", ueCc.Rnti, pid, crc)
		}
	})
}

// UlSrInfo reports a scheduling request.
func (s *Scheduler) UlSrInfo(rnti nr.Rnti) {
	if s.cfg == nil {
		return
	}
	s.pendingEvents.enqueueUeEvent("ul_sr_info", rnti, func(u *Ue, evl *eventLogger) {
		u.UlSrInfo()
		evl.push("%s: ul_sr_info()", u.Rnti)
	})
}

// UlBsr reports a buffer status report.
func (s *Scheduler) UlBsr(rnti nr.Rnti, lcg, bsr uint32) {
	if s.cfg == nil {
		return
	}
	s.pendingEvents.enqueueUeEvent("ul_bsr", rnti, func(u *Ue, evl *eventLogger) {
		u.UlBsr(lcg, bsr)
		evl.push("%s: ul_bsr(lcg=%d, bsr=%d)", u.Rnti, lcg, bsr)
	})
}

// DlMacCe enqueues a MAC CE command.
func (s *Scheduler) DlMacCe(rnti nr.Rnti, ceLcid uint32) {
	if s.cfg == nil {
		return
	}
	s.pendingEvents.enqueueUeEvent("dl_mac_ce", rnti, func(u *Ue, evl *eventLogger) {
		u.AddDlMacCe(ceLcid, 1)
		evl.push("%s: dl_mac_ce(lcid=%d)", u.Rnti, ceLcid)
	})
}

// DlBufferState applies an RLC buffer state update.
func (s *Scheduler) DlBufferState(rnti nr.Rnti, lcid, newtx, retx uint32) {
	if s.cfg == nil {
		return
	}
	s.pendingEvents.enqueueUeEvent("dl_buffer_state", rnti, func(u *Ue, evl *eventLogger) {
		u.RlcBufferState(lcid, newtx, retx)
		evl.push("%s: dl_buffer_state(lcid=%d, bs=%d,%d)", u.Rnti, lcid, newtx, retx)
	})
}

// DlCqiInfo applies a channel quality update.
func (s *Scheduler) DlCqiInfo(rnti nr.Rnti, cc, cqi uint32) {
	if s.cfg == nil {
		return
	}
	s.pendingEvents.enqueueUeCcFeedback("dl_cqi_info", rnti, cc, func(ueCc *UeCarrier, evl *eventLogger) {
		ueCc.DlCqi = cqi
		evl.push("%s: dl_cqi_info(cqi=%d)", ueCc.Rnti, cqi)
	})
}

// SlotIndication advances the per-slot state and processes the common
// event queue. Called exactly once per slot by the driver thread, before
// any GetDLSched of the slot.
func (s *Scheduler) SlotIndication(slotTx nr.SlotPoint) {
	if s.cfg == nil {
		return
	}
	if s.workerCount.Load() != 0 {
		s.logger.Error("slot_indication while previous slot workers still running")
	}
	s.currentSlotTx = slotTx
	s.workerCount.Store(int32(len(s.cfg.Cells)))
	s.slotsRun.Inc()
	s.activeUes.Set(int64(len(s.ueDb)))

	// Drain common events; CA-enabled UEs update now, non-CA UEs are
	// deferred to the per-cell drain points for parallelism.
	s.pendingEvents.processCommon(s.ueDb)

	for _, u := range s.ueDb {
		if u.HasCa() {
			u.NewSlot(slotTx)
		}
	}

	s.metricsHandler.SaveMetrics()
}

// GetDLSched runs cell cc for the slot and returns its downlink result.
// The result stays valid until the slot leaves the TX window.
func (s *Scheduler) GetDLSched(slotTx nr.SlotPoint, cc uint32) *DlResult {
	if s.cfg == nil || int(cc) >= len(s.ccWorkers) {
		return nil
	}
	if !slotTx.Equal(s.currentSlotTx) {
		s.logger.Error("unexpected slot in get_dl_sched",
			"slot", slotTx.String(), "expected", s.currentSlotTx.String())
	}

	s.pendingEvents.processCcEvents(s.ueDb, cc)

	for _, u := range s.ueDb {
		if !u.HasCa() && u.Carrier(cc) != nil {
			u.NewSlot(s.currentSlotTx)
		}
	}

	ret := s.ccWorkers[cc].RunSlot(slotTx, s.ueDb)
	s.schedDlGrants.Add(int64(len(ret.Pdsch)))

	if rem := s.workerCount.Add(-1); rem < 0 {
		s.logger.Error("invalid number of get_dl_sched calls for slot", "slot", slotTx.String())
	}
	return ret
}

// GetULSched returns the already-scheduled uplink result of a slot
// inside the TX window.
func (s *Scheduler) GetULSched(sl nr.SlotPoint, cc uint32) *UlResult {
	if s.cfg == nil || int(cc) >= len(s.ccWorkers) {
		return nil
	}
	return s.ccWorkers[cc].GetUlSched(sl)
}

// GetMetrics blocks until the scheduler thread saves the counters of the
// requested UEs into out.
func (s *Scheduler) GetMetrics(out *MacMetrics) {
	s.metricsHandler.GetMetrics(out)
}
