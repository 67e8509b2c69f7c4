// Package config loads the gnbsched scheduler and cell configuration
// from YAML files and converts it into the scheduler's own types.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gnbsched/gnbsched/nr"
	"github.com/gnbsched/gnbsched/sched"
)

// Config is the top-level configuration file layout.
type Config struct {
	Sched SchedConfig  `yaml:"sched"`
	Log   LogConfig    `yaml:"log"`
	Cells []CellConfig `yaml:"cells"`
}

// SchedConfig mirrors sched.SchedArgs in YAML form.
type SchedConfig struct {
	PdschEnabled     *bool `yaml:"pdsch_enabled"`
	PuschEnabled     *bool `yaml:"pusch_enabled"`
	AutoRefillBuffer bool  `yaml:"auto_refill_buffer"`
	FixedDlMcs       *int  `yaml:"fixed_dl_mcs"`
	FixedUlMcs       *int  `yaml:"fixed_ul_mcs"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CoresetConfig is the YAML shape of one CORESET.
type CoresetConfig struct {
	ID       uint32 `yaml:"id"`
	StartRb  uint32 `yaml:"start_rb"`
	NofPrb   uint32 `yaml:"nof_prb"`
	Duration uint32 `yaml:"duration"`
}

// SearchSpaceConfig is the YAML shape of one search space.
type SearchSpaceConfig struct {
	ID         uint32   `yaml:"id"`
	CoresetID  uint32   `yaml:"coreset_id"`
	Type       string   `yaml:"type"`
	Candidates []uint32 `yaml:"candidates"`
	Formats    []string `yaml:"formats"`
}

// BwpConfig is the YAML shape of one bandwidth part.
type BwpConfig struct {
	StartRb       uint32 `yaml:"start_rb"`
	RbWidth       uint32 `yaml:"rb_width"`
	RbgSizeCfg1   *bool  `yaml:"rbg_size_cfg_1"`
	NumerologyIdx uint8  `yaml:"numerology_idx"`
	RarWindowSize uint32 `yaml:"rar_window_size"`

	Coresets        []CoresetConfig         `yaml:"coresets"`
	SearchSpaces    []SearchSpaceConfig     `yaml:"search_spaces"`
	RaSearchSpaceID *uint32                 `yaml:"ra_search_space"`
	PuschTimeRa     []sched.PuschTimeConfig `yaml:"pusch_time_ra"`
}

// CellConfig is the YAML shape of one cell.
type CellConfig struct {
	Pci              uint32            `yaml:"pci"`
	NofPrb           uint32            `yaml:"nof_prb"`
	SsbPeriodicityMs uint32            `yaml:"ssb_periodicity_ms"`
	DlCenterFreqHz   float64           `yaml:"dl_center_freq_hz"`
	SsbCenterFreqHz  float64           `yaml:"ssb_center_freq_hz"`
	Tdd              *sched.TddPattern `yaml:"tdd"`
	Bwps             []BwpConfig       `yaml:"bwps"`
	Sibs             []sched.SibConfig `yaml:"sibs"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Cells) == 0 {
		return fmt.Errorf("config: no cells configured")
	}
	for i, cell := range c.Cells {
		if cell.NofPrb == 0 {
			return fmt.Errorf("config: cell %d: nof_prb must be positive", i)
		}
		if len(cell.Bwps) == 0 {
			return fmt.Errorf("config: cell %d: at least one BWP required", i)
		}
		for j, bwp := range cell.Bwps {
			if bwp.RbWidth == 0 {
				return fmt.Errorf("config: cell %d bwp %d: rb_width must be positive", i, j)
			}
			if len(bwp.Coresets) == 0 {
				return fmt.Errorf("config: cell %d bwp %d: at least one coreset required", i, j)
			}
			for _, ss := range bwp.SearchSpaces {
				if _, err := parseSsType(ss.Type); err != nil {
					return fmt.Errorf("config: cell %d bwp %d ss %d: %w", i, j, ss.ID, err)
				}
				for _, f := range ss.Formats {
					if _, err := parseDciFormat(f); err != nil {
						return fmt.Errorf("config: cell %d bwp %d ss %d: %w", i, j, ss.ID, err)
					}
				}
			}
		}
	}
	return nil
}

// SchedArgs converts the YAML scheduler options, applying defaults for
// omitted fields.
func (c *Config) SchedArgs() sched.SchedArgs {
	args := sched.DefaultSchedArgs()
	if c.Sched.PdschEnabled != nil {
		args.PdschEnabled = *c.Sched.PdschEnabled
	}
	if c.Sched.PuschEnabled != nil {
		args.PuschEnabled = *c.Sched.PuschEnabled
	}
	args.AutoRefillBuffer = c.Sched.AutoRefillBuffer
	if c.Sched.FixedDlMcs != nil {
		args.FixedDlMcs = *c.Sched.FixedDlMcs
	}
	if c.Sched.FixedUlMcs != nil {
		args.FixedUlMcs = *c.Sched.FixedUlMcs
	}
	return args
}

// CellConfigs converts the YAML cells into scheduler cell configs.
func (c *Config) CellConfigs() ([]sched.CellConfig, error) {
	var out []sched.CellConfig
	for i, cell := range c.Cells {
		sc := sched.CellConfig{
			Pci:              cell.Pci,
			NofPrb:           cell.NofPrb,
			SsbPeriodicityMs: cell.SsbPeriodicityMs,
			DlCenterFreqHz:   cell.DlCenterFreqHz,
			SsbCenterFreqHz:  cell.SsbCenterFreqHz,
			Tdd:              cell.Tdd,
			Sibs:             cell.Sibs,
		}
		for j, bwp := range cell.Bwps {
			sb, err := bwp.toSched()
			if err != nil {
				return nil, fmt.Errorf("config: cell %d bwp %d: %w", i, j, err)
			}
			sc.Bwps = append(sc.Bwps, sb)
		}
		out = append(out, sc)
	}
	return out, nil
}

func (b *BwpConfig) toSched() (sched.BwpConfig, error) {
	sb := sched.BwpConfig{
		StartRb:       b.StartRb,
		RbWidth:       b.RbWidth,
		RbgSizeCfg1:   true,
		NumerologyIdx: b.NumerologyIdx,
		RarWindowSize: b.RarWindowSize,
		PuschTimeRa:   b.PuschTimeRa,
	}
	if b.RbgSizeCfg1 != nil {
		sb.RbgSizeCfg1 = *b.RbgSizeCfg1
	}
	if sb.RarWindowSize == 0 {
		sb.RarWindowSize = 10
	}

	for _, cs := range b.Coresets {
		sb.Pdcch.Coresets = append(sb.Pdcch.Coresets,
			nr.ContiguousCoreset(cs.ID, cs.StartRb, cs.NofPrb, max32(cs.Duration, 1)))
	}
	for _, ss := range b.SearchSpaces {
		ssType, err := parseSsType(ss.Type)
		if err != nil {
			return sched.BwpConfig{}, err
		}
		nss := nr.SearchSpace{ID: ss.ID, CoresetID: ss.CoresetID, Type: ssType}
		for k, n := range ss.Candidates {
			if k < nr.MaxNofAggrLevels {
				nss.NofCandidates[k] = n
			}
		}
		for _, f := range ss.Formats {
			df, err := parseDciFormat(f)
			if err != nil {
				return sched.BwpConfig{}, err
			}
			nss.Formats = append(nss.Formats, df)
		}
		sb.Pdcch.SearchSpaces = append(sb.Pdcch.SearchSpaces, nss)
	}
	if b.RaSearchSpaceID != nil {
		sb.Pdcch.RaSearchSpacePresent = true
		sb.Pdcch.RaSearchSpaceID = *b.RaSearchSpaceID
	}
	return sb, nil
}

func parseSsType(s string) (nr.SearchSpaceType, error) {
	switch s {
	case "common0":
		return nr.SearchSpaceTypeCommon0, nil
	case "common0A":
		return nr.SearchSpaceTypeCommon0A, nil
	case "common1":
		return nr.SearchSpaceTypeCommon1, nil
	case "common2":
		return nr.SearchSpaceTypeCommon2, nil
	case "common3":
		return nr.SearchSpaceTypeCommon3, nil
	case "ue":
		return nr.SearchSpaceTypeUE, nil
	default:
		return 0, fmt.Errorf("unknown search space type %q", s)
	}
}

func parseDciFormat(s string) (nr.DciFormat, error) {
	switch s {
	case "1_0":
		return nr.DciFormat10, nil
	case "1_1":
		return nr.DciFormat11, nil
	case "0_0":
		return nr.DciFormat00, nil
	case "0_1":
		return nr.DciFormat01, nil
	default:
		return 0, fmt.Errorf("unknown dci format %q", s)
	}
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
