package cake

import (
	"fmt"
	"time"
)

// DiffservMode selects one of the four preset tin layouts (C9). Per-knob
// configurability of the class tree beyond these presets is a non-goal
// (spec.md §1).
type DiffservMode uint8

const (
	ModeDiffserv4 DiffservMode = iota // default
	ModeBestEffort
	ModePrecedence
	ModeDiffserv8
)

func (m DiffservMode) String() string {
	switch m {
	case ModeBestEffort:
		return "besteffort"
	case ModePrecedence:
		return "precedence"
	case ModeDiffserv8:
		return "diffserv8"
	case ModeDiffserv4:
		return "diffserv4"
	default:
		return fmt.Sprintf("diffserv_mode(%d)", uint8(m))
	}
}

// ParseDiffservMode maps a config-file string onto a DiffservMode.
func ParseDiffservMode(s string) (DiffservMode, error) {
	switch s {
	case "", "diffserv4":
		return ModeDiffserv4, nil
	case "besteffort":
		return ModeBestEffort, nil
	case "precedence":
		return ModePrecedence, nil
	case "diffserv8":
		return ModeDiffserv8, nil
	default:
		return 0, fmt.Errorf("%w: unknown diffserv_mode %q", ErrInvalidConfig, s)
	}
}

// ParseFlowMode maps a config-file string onto a FlowMode.
func ParseFlowMode(s string) (FlowMode, error) {
	switch s {
	case "", "flows":
		return FlowFlows, nil
	case "none":
		return FlowNone, nil
	case "src-ip":
		return FlowSrcIP, nil
	case "dst-ip":
		return FlowDstIP, nil
	case "hosts":
		return FlowHosts, nil
	case "dual-src":
		return FlowDualSrc, nil
	case "dual-dst":
		return FlowDualDst, nil
	case "dual":
		return FlowDual, nil
	default:
		return 0, fmt.Errorf("%w: unknown flow_mode %q", ErrInvalidConfig, s)
	}
}

// Config is the parameter block accepted by NewDiscipline/Change, mirroring
// spec.md §6's configuration table.
type Config struct {
	BaseRate        uint64 // bytes/sec shaping rate; 0 = unlimited
	DiffservMode    DiffservMode
	FlowMode        FlowMode
	ATM             bool
	Wash            bool
	AutorateIngress bool // accepted, no behavioral effect (spec.md §9)
	Overhead        int32
	Interval        Clock // CoDel interval ("rtt" in spec.md's table)
	Target          Clock // CoDel target
	Memory          uint32 // explicit buffer_limit bytes; 0 = derive from rate*interval

	// FlowsPerTin sizes each tin's flow table. Not a spec.md §6 knob (the
	// spec fixes it at "suggested 1024"); exposed so tests can shrink the
	// table without allocating 1024 flows per tin.
	FlowsPerTin uint32

	// Seed drives the per-tin hash perturbation (original_source/
	// sch_cake.c reseeds each tin from prandom_u32() at cake_init time).
	// 0 selects a fixed default so a discipline built with a zero-value
	// Config is reproducible rather than depending on host entropy.
	Seed uint64
}

// DefaultConfig returns the configuration cake_init applies before any
// change() call: diffserv4, flow-keyed flows, 100ms interval, 5ms target,
// unlimited rate.
func DefaultConfig() Config {
	return Config{
		DiffservMode: ModeDiffserv4,
		FlowMode:     FlowFlows,
		Interval:     100 * time.Millisecond,
		Target:       5 * time.Millisecond,
		FlowsPerTin:  DefaultFlowsPerTin,
	}
}

func (c Config) validate() error {
	if c.DiffservMode > ModeDiffserv8 {
		return fmt.Errorf("%w: diffserv_mode out of range", ErrInvalidConfig)
	}
	if c.FlowMode > FlowDual {
		return fmt.Errorf("%w: flow_mode out of range", ErrInvalidConfig)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.Target <= 0 {
		return fmt.Errorf("%w: target must be positive", ErrInvalidConfig)
	}
	if c.Target > c.Interval {
		return fmt.Errorf("%w: target must not exceed interval", ErrInvalidConfig)
	}
	return nil
}

func (c Config) flowsPerTin() uint32 {
	if c.FlowsPerTin == 0 {
		return DefaultFlowsPerTin
	}
	return c.FlowsPerTin
}

// buildTins dispatches to one of the four presets (C9) and returns the
// configured tins plus the 64-entry DSCP->tin map.
func buildTins(c Config, seedPerturbation func() uint32) ([]*Tin, [64]uint8, error) {
	switch c.DiffservMode {
	case ModeBestEffort:
		return configBesteffort(c, seedPerturbation)
	case ModePrecedence:
		return configPrecedence(c, seedPerturbation)
	case ModeDiffserv8:
		return configDiffserv8(c, seedPerturbation)
	case ModeDiffserv4:
		return configDiffserv4(c, seedPerturbation)
	default:
		return nil, [64]uint8{}, fmt.Errorf("%w: diffserv_mode %v", ErrInvalidConfig, c.DiffservMode)
	}
}

func setRate(t *Tin, rateBps uint64) {
	t.quantum = quantumFor(rateBps)
	t.rateNs, t.rateShift = computeRate(rateBps)
	t.rateBps = rateBps
}

func newPresetTin(c Config, seedPerturbation func() uint32) *Tin {
	return newTin(c.flowsPerTin(), seedPerturbation())
}

// configBesteffort: one tin, all DSCPs map to it, equal prio/band weights
// (spec.md §4.9).
func configBesteffort(c Config, seed func() uint32) ([]*Tin, [64]uint8, error) {
	var dscpTin [64]uint8
	t := newPresetTin(c, seed)
	setRate(t, c.BaseRate)
	t.quantumPrio = 65535
	t.quantumBand = 65535
	return []*Tin{t}, dscpTin, nil
}

// configPrecedence: 8 tins indexed by the DSCP's top 3 bits, rate stepping
// down by 7/8 each tier and prio/band weights growing/decaying geometrically
// (spec.md §4.9).
func configPrecedence(c Config, seed func() uint32) ([]*Tin, [64]uint8, error) {
	const tinCnt = 8
	var dscpTin [64]uint8
	for i := 0; i < 64; i++ {
		idx := i >> 3
		if idx > tinCnt {
			idx = tinCnt
		}
		dscpTin[i] = uint8(idx)
	}

	tins := make([]*Tin, tinCnt)
	rate := c.BaseRate
	quantum1, quantum2 := uint32(256), uint32(256)
	for i := 0; i < tinCnt; i++ {
		t := newPresetTin(c, seed)
		setRate(t, rate)
		t.quantumPrio = int64(max32(1, quantum1))
		t.quantumBand = int64(max32(1, quantum2))
		tins[i] = t

		rate = rate * 7 >> 3
		quantum1 = quantum1 * 3 >> 1
		quantum2 = quantum2 * 7 >> 3
	}
	return tins, dscpTin, nil
}

// dscpCodepoint groups (name, codepoint) pairs for the diffserv8/diffserv4
// tin tables below, named after the well-known Diffserv codepoints listed
// in original_source/sch_cake.c's cake_config_diffserv8 comment block.
const (
	cpCS1 = 0x08
	cpTOS1 = 0x01
	cpTOS2 = 0x02
	cpTOS4 = 0x04
	cpCS2 = 0x10
	cpCS3 = 0x18
	cpCS4 = 0x20
	cpCS5 = 0x28
	cpCS6 = 0x30
	cpCS7 = 0x38
	cpVA  = 0x2c
	cpEF  = 0x2e
)

// configDiffserv8 builds the 8-tin code-point table from spec.md §4.9: CS1
// -> 0, AF1x -> 1, CS0/default best-effort -> 2, CS3+AF3x+AF4x -> 3,
// TOS4+AF2x -> 4, TOS1+CS2 -> 5, CS4+CS5+VA+EF -> 6, CS6+CS7 -> 7.
func configDiffserv8(c Config, seed func() uint32) ([]*Tin, [64]uint8, error) {
	const tinCnt = 8
	var dscpTin [64]uint8
	for i := range dscpTin {
		dscpTin[i] = 2 // default: best-effort
	}
	dscpTin[cpCS1] = 0
	dscpTin[cpTOS2] = 1
	dscpTin[cpCS3] = 3
	dscpTin[cpTOS4] = 4
	dscpTin[cpTOS1] = 5
	dscpTin[cpCS2] = 5
	dscpTin[cpCS4] = 6
	dscpTin[cpCS5] = 6
	dscpTin[cpVA] = 6
	dscpTin[cpEF] = 6
	dscpTin[cpCS6] = 7
	dscpTin[cpCS7] = 7
	for i := 2; i <= 6; i += 2 {
		dscpTin[cpCS1+i] = 1 // AF1x
		dscpTin[cpCS2+i] = 4 // AF2x
		dscpTin[cpCS3+i] = 3 // AF3x
		dscpTin[cpCS4+i] = 3 // AF4x
	}

	tins := make([]*Tin, tinCnt)
	rate := c.BaseRate
	quantum1, quantum2 := uint32(256), uint32(256)
	for i := 0; i < tinCnt; i++ {
		t := newPresetTin(c, seed)
		setRate(t, rate)
		t.quantumPrio = int64(max32(1, quantum1))
		t.quantumBand = int64(max32(1, quantum2))
		tins[i] = t

		rate = rate * 7 >> 3
		quantum1 = quantum1 * 3 >> 1
		quantum2 = quantum2 * 7 >> 3
	}
	return tins, dscpTin, nil
}

// configDiffserv4 builds the 4-tin layout: background (CS1), best-effort
// (default + AF1x), video/bulk (CS3, AF2x/3x/4x, CS2, TOS1, TOS4), latency
// (CS4+, EF, VA, CS6, CS7). Rates are full/15-16ths/3-4ths/1-4th; priority
// weights bias toward the latency tin. Bandwidth weights are 1/16, 3/16,
// 1/2 and 1/4 of the 256-byte base quantum for tins 0-3, so the video/bulk
// tin, not best-effort, has the largest bandwidth weight (spec.md §4.9).
func configDiffserv4(c Config, seed func() uint32) ([]*Tin, [64]uint8, error) {
	const tinCnt = 4
	var dscpTin [64]uint8
	for i := range dscpTin {
		dscpTin[i] = 1 // default: best-effort
	}
	dscpTin[cpCS1] = 0

	dscpTin[cpCS3] = 2
	dscpTin[cpTOS4] = 2
	dscpTin[cpTOS1] = 2
	dscpTin[cpCS2] = 2

	dscpTin[cpCS4] = 3
	dscpTin[cpCS5] = 3
	dscpTin[cpVA] = 3
	dscpTin[cpEF] = 3
	dscpTin[cpCS6] = 3
	dscpTin[cpCS7] = 3

	for i := 2; i <= 6; i += 2 {
		dscpTin[cpCS2+i] = 2 // AF2x
		dscpTin[cpCS3+i] = 2 // AF3x
		dscpTin[cpCS4+i] = 2 // AF4x
	}

	tins := make([]*Tin, tinCnt)
	for i := range tins {
		tins[i] = newPresetTin(c, seed)
	}

	rate := c.BaseRate
	setRate(tins[0], rate)
	setRate(tins[1], rate-(rate>>4))
	setRate(tins[2], rate-(rate>>2))
	setRate(tins[3], rate>>2)

	const quantum = 256
	tins[0].quantumPrio = quantum >> 4
	tins[1].quantumPrio = quantum
	tins[2].quantumPrio = quantum << 2
	tins[3].quantumPrio = quantum << 4

	tins[0].quantumBand = quantum >> 4
	tins[1].quantumBand = (quantum >> 3) + (quantum >> 4)
	tins[2].quantumBand = quantum >> 1
	tins[3].quantumBand = quantum >> 2

	return tins, dscpTin, nil
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
