package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gnbsched/gnbsched/nr"
)

const sampleYaml = `
sched:
  fixed_dl_mcs: -1
  auto_refill_buffer: false
log:
  level: debug
cells:
  - pci: 1
    nof_prb: 100
    ssb_periodicity_ms: 10
    tdd:
      period_slots: 10
      dl_slots: 6
      ul_slots: 3
    bwps:
      - rb_width: 100
        rar_window_size: 10
        coresets:
          - {id: 0, start_rb: 0, nof_prb: 48, duration: 1}
        search_spaces:
          - {id: 0, coreset_id: 0, type: common0, candidates: [0, 2, 1, 0, 0], formats: ["1_0"]}
          - {id: 1, coreset_id: 0, type: common1, candidates: [0, 2, 2, 0, 0], formats: ["1_0", "0_0"]}
        ra_search_space: 1
        pusch_time_ra:
          - {msg3_delay: 6, k2: 4, s: 0, l: 14}
    sibs:
      - {len: 41, period_rf: 16, window_slots: 20}
`

func TestParseSample(t *testing.T) {
	cfg, err := Parse([]byte(sampleYaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	args := cfg.SchedArgs()
	if args.FixedDlMcs != -1 {
		t.Fatalf("fixed_dl_mcs = %d", args.FixedDlMcs)
	}
	if !args.PdschEnabled || !args.PuschEnabled {
		t.Fatal("channel enables must default to true")
	}
	if args.FixedUlMcs != 28 {
		t.Fatalf("fixed_ul_mcs default = %d", args.FixedUlMcs)
	}

	cells, err := cfg.CellConfigs()
	if err != nil {
		t.Fatalf("CellConfigs: %v", err)
	}
	if len(cells) != 1 {
		t.Fatalf("cells = %d", len(cells))
	}
	cell := cells[0]
	if cell.NofPrb != 100 || cell.Tdd == nil || cell.Tdd.DlSlots != 6 {
		t.Fatalf("cell conversion wrong: %+v", cell)
	}
	bwp := cell.Bwps[0]
	if !bwp.Pdcch.RaSearchSpacePresent || bwp.Pdcch.RaSearchSpaceID != 1 {
		t.Fatal("RA search space not converted")
	}
	if len(bwp.Pdcch.Coresets) != 1 || bwp.Pdcch.Coresets[0].NofCces() != 8 {
		t.Fatalf("coreset conversion wrong: %+v", bwp.Pdcch.Coresets)
	}
	ss1 := bwp.Pdcch.SearchSpace(1)
	if ss1 == nil || ss1.Type != nr.SearchSpaceTypeCommon1 || !ss1.HasFormat(nr.DciFormat00) {
		t.Fatalf("search space conversion wrong: %+v", ss1)
	}
	if ss1.NofCandidates[2] != 2 {
		t.Fatalf("candidates wrong: %v", ss1.NofCandidates)
	}
	if len(cell.Sibs) != 1 || cell.Sibs[0].WindowSlots != 20 {
		t.Fatalf("sibs wrong: %+v", cell.Sibs)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gnbsched.yaml")
	if err := os.WriteFile(path, []byte(sampleYaml), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file must error")
	}
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no cells", `cells: []`},
		{"zero prbs", `
cells:
  - pci: 1
    nof_prb: 0
    bwps: [{rb_width: 10, coresets: [{id: 0, nof_prb: 6, duration: 1}]}]`},
		{"no bwp", `
cells:
  - pci: 1
    nof_prb: 50
    bwps: []`},
		{"no coreset", `
cells:
  - pci: 1
    nof_prb: 50
    bwps: [{rb_width: 50, coresets: []}]`},
		{"bad ss type", `
cells:
  - pci: 1
    nof_prb: 50
    bwps:
      - rb_width: 50
        coresets: [{id: 0, nof_prb: 6, duration: 1}]
        search_spaces: [{id: 0, coreset_id: 0, type: bogus}]`},
		{"bad dci format", `
cells:
  - pci: 1
    nof_prb: 50
    bwps:
      - rb_width: 50
        coresets: [{id: 0, nof_prb: 6, duration: 1}]
        search_spaces: [{id: 0, coreset_id: 0, type: common0, formats: ["9_9"]}]`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Parse([]byte(c.yaml)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
