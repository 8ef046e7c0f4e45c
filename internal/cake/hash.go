package cake

// FlowMode selects which fields of a packet's flow-key descriptor
// participate in the hash (spec.md §4.3). Flow-key extraction from packet
// headers happens on the host side, out of scope here (spec.md §1); the
// host folds the selected fields into Packet.FlowKey before calling
// Enqueue, and FlowMode only still matters to C3 for the CAKE_FLOW_NONE
// short-circuit and as a knob the configurator exposes.
type FlowMode uint8

const (
	FlowNone FlowMode = iota
	FlowSrcIP
	FlowDstIP
	FlowHosts // = FlowSrcIP | FlowDstIP
	FlowFlows
	FlowDualSrc // = FlowSrcIP | FlowFlows
	FlowDualDst // = FlowDstIP | FlowFlows
	FlowDual    // = FlowHosts | FlowFlows
)

const jhashInitval = 0xdeadbeef

func rol32(x uint32, n uint) uint32 {
	return (x << n) | (x >> (32 - n))
}

// jhash3Words is the Linux kernel's jhash_3words/jhash mix, used unchanged
// (spec.md §4.3: "a 32-bit Jenkins-style hash... with the perturbation
// seed"). It is a well-known public-domain mixing function, not tied to any
// retrieved example file; CAKE's own cake_hash (original_source/sch_cake.c)
// calls the equivalent jhash_3words on the dissected flow fields.
func jhash3Words(a, b, c, initval uint32) uint32 {
	initval += jhashInitval + (3 << 2)
	a += initval
	b += initval
	c += initval

	c ^= b
	c -= rol32(b, 14)
	a ^= c
	a -= rol32(c, 11)
	b ^= a
	b -= rol32(a, 25)
	c ^= b
	c -= rol32(b, 16)
	a ^= c
	a -= rol32(c, 4)
	b ^= a
	b -= rol32(a, 14)
	c ^= b
	c -= rol32(b, 24)

	return c
}

// reciprocalScale reduces a 32-bit hash into [0, n) without a hot-path
// divide, per spec.md §4.3 ("reduced to the flow-table size by a
// reciprocal multiply (hash * n >> 32)").
func reciprocalScale(hash, n uint32) uint32 {
	return uint32((uint64(hash) * uint64(n)) >> 32)
}

// hashFlow reduces a packet's pre-folded flow key to a slot in
// [0, flowsCnt) within one tin, per C3. mode == FlowNone always yields 0.
func hashFlow(key uint64, perturbation uint32, mode FlowMode, flowsCnt uint32) uint32 {
	if mode == FlowNone || flowsCnt == 0 {
		return 0
	}
	h := jhash3Words(uint32(key), uint32(key>>32), 0, perturbation)
	return reciprocalScale(h, flowsCnt)
}
