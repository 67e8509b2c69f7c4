// Command gnbsched runs the MAC scheduler against a YAML cell
// configuration, driving the slot loop for a configurable number of
// slots and serving the scheduler counters over HTTP.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/gnbsched/gnbsched/config"
	"github.com/gnbsched/gnbsched/log"
	"github.com/gnbsched/gnbsched/metrics"
	"github.com/gnbsched/gnbsched/nr"
	"github.com/gnbsched/gnbsched/sched"
)

func main() {
	var (
		cfgPath     = pflag.StringP("config", "c", "gnbsched.yaml", "path to the YAML configuration")
		nofSlots    = pflag.Uint("slots", 1000, "number of slots to run (0 = forever)")
		slotPeriod  = pflag.Duration("slot-period", time.Millisecond, "wall-clock duration of one slot")
		metricsAddr = pflag.String("metrics-addr", "", "address to serve /metrics on (empty = disabled)")
		logLevel    = pflag.String("log-level", "info", "log level: debug, info, warn, error")
		logFormat   = pflag.String("log-format", "console", "log format: console or json")
	)
	pflag.Parse()

	if err := run(*cfgPath, *nofSlots, *slotPeriod, *metricsAddr, *logLevel, *logFormat); err != nil {
		fmt.Fprintln(os.Stderr, "gnbsched:", err)
		os.Exit(1)
	}
}

func run(cfgPath string, nofSlots uint, slotPeriod time.Duration, metricsAddr, logLevel, logFormat string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	level := log.LevelFromString(logLevel)
	var logger *log.Logger
	if logFormat == "json" {
		logger = log.New(level)
	} else {
		logger = log.NewWithHandler(log.NewConsoleHandler(os.Stderr, level))
	}
	log.SetDefault(logger)

	s := sched.New(logger)
	cells, err := cfg.CellConfigs()
	if err != nil {
		return err
	}
	if err := s.Config(cfg.SchedArgs(), cells); err != nil {
		return err
	}
	defer s.Stop()

	if metricsAddr != "" {
		exporter := metrics.NewPrometheusExporter(s.Registry(), metrics.DefaultPrometheusConfig())
		go func() {
			if err := http.ListenAndServe(metricsAddr, exporter.Handler()); err != nil {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
		logger.Info("serving metrics", "addr", metricsAddr)
	}

	mu := uint8(0)
	if len(cfg.Cells) > 0 && len(cfg.Cells[0].Bwps) > 0 {
		mu = cfg.Cells[0].Bwps[0].NumerologyIdx
	}
	slot := nr.NewSlotPoint(mu, 0, 0)

	ticker := time.NewTicker(slotPeriod)
	defer ticker.Stop()

	for i := uint(0); nofSlots == 0 || i < nofSlots; i++ {
		<-ticker.C
		s.SlotIndication(slot)

		// One worker per cell; the scheduler contract allows the cell
		// calls of one slot to run concurrently.
		var g errgroup.Group
		for cc := range cells {
			cc := uint32(cc)
			g.Go(func() error {
				res := s.GetDLSched(slot, cc)
				if res != nil && (len(res.Pdsch) > 0 || len(res.Rar) > 0 || len(res.SibIdxs) > 0) {
					logger.Debug("dl sched", "slot", slot.String(), "cc", cc,
						"pdsch", len(res.Pdsch), "rar", len(res.Rar), "sib", len(res.SibIdxs))
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		slot = slot.Add(1)
	}

	logger.Info("slot loop finished", "slots", nofSlots)
	return nil
}
