package cake

// DefaultFlowsPerTin is the suggested flow-table size from spec.md §3 ("a
// power-of-two-multiple of set-associative ways — suggested 1024"). The
// set-associative refinement (CAKE_SET_WAYS) itself is reserved, per
// spec.md §9's open question, so the table below is direct-mapped.
const DefaultFlowsPerTin = 1024

// Tin holds one traffic class's flow table, backlog bookkeeping, and
// per-tin byte-clock/DRR state (C5). It is a container: the new/old flow
// lists are intrusive, implemented as stable indices into flows rather than
// pointers, per spec.md §9's design note.
type Tin struct {
	flows        []Flow
	flowsCnt     uint32
	perturbation uint32

	newHead, newTail int32
	oldHead, oldTail int32

	quantum     int64 // DRR quantum granted per flow turn, C4/§4.7
	quantumPrio int64 // tin-level DRR replenishment while under-rate, C6
	quantumBand int64 // tin-level DRR replenishment while over-rate, C6
	tinDeficit  int64

	timeNextPacket Clock
	rateNs         uint64
	rateShift      uint8
	rateBps        uint64

	backlog       uint32 // Σ flow backlogs in this tin, bytes
	dropped       uint64
	ecnMarked     uint64
	packets       uint64
	bytes         uint64
	dropOverlimit uint64
	bulkFlowCount uint32
}

// newTin allocates a tin's flow table. flowsCnt is normally
// DefaultFlowsPerTin; tests use smaller tables to keep fixtures readable.
func newTin(flowsCnt uint32, perturbation uint32) *Tin {
	t := &Tin{
		flows:        make([]Flow, flowsCnt),
		flowsCnt:     flowsCnt,
		perturbation: perturbation,
		newHead:      noFlow,
		newTail:      noFlow,
		oldHead:      noFlow,
		oldTail:      noFlow,
	}
	for i := range t.flows {
		t.flows[i] = newFlow()
	}
	return t
}

// --- intrusive new/old list operations -------------------------------

func (t *Tin) pushNewTail(idx uint32) {
	t.pushTail(idx, listNew)
}

func (t *Tin) pushOldTail(idx uint32) {
	t.pushTail(idx, listOld)
}

func (t *Tin) pushTail(idx uint32, which flowList) {
	f := &t.flows[idx]
	f.membership = which
	f.prev = t.tail(which)
	f.next = noFlow
	if f.prev == noFlow {
		t.setHead(which, int32(idx))
	} else {
		t.flows[f.prev].next = int32(idx)
	}
	t.setTail(which, int32(idx))
}

// remove detaches idx from whichever list it currently belongs to.
func (t *Tin) remove(idx uint32) {
	f := &t.flows[idx]
	if f.membership == listNone {
		return
	}
	if f.prev != noFlow {
		t.flows[f.prev].next = f.next
	} else {
		t.setHead(f.membership, f.next)
	}
	if f.next != noFlow {
		t.flows[f.next].prev = f.prev
	} else {
		t.setTail(f.membership, f.prev)
	}
	f.prev, f.next = noFlow, noFlow
	f.membership = listNone
}

// moveToOldTail relocates idx (assumed currently on new_flows or detached)
// to the tail of old_flows.
func (t *Tin) moveToOldTail(idx uint32) {
	t.remove(idx)
	t.pushOldTail(idx)
}

func (t *Tin) head(which flowList) int32 {
	if which == listNew {
		return t.newHead
	}
	return t.oldHead
}

func (t *Tin) tail(which flowList) int32 {
	if which == listNew {
		return t.newTail
	}
	return t.oldTail
}

func (t *Tin) setHead(which flowList, idx int32) {
	if which == listNew {
		t.newHead = idx
	} else {
		t.oldHead = idx
	}
}

func (t *Tin) setTail(which flowList, idx int32) {
	if which == listNew {
		t.newTail = idx
	} else {
		t.oldTail = idx
	}
}

func (t *Tin) newEmpty() bool { return t.newHead == noFlow }
func (t *Tin) oldEmpty() bool { return t.oldHead == noFlow }

// activeFlowCount counts flows currently linked onto either list, for
// statistics snapshots (spec.md §6's per-tin "bulk-flow count" neighbour).
func (t *Tin) activeFlowCount() uint32 {
	var n uint32
	for idx := t.newHead; idx != noFlow; idx = t.flows[idx].next {
		n++
	}
	for idx := t.oldHead; idx != noFlow; idx = t.flows[idx].next {
		n++
	}
	return n
}

// drainAll discards every packet in every flow of the tin (reset()'s C5
// half) and clears both intrusive lists, leaving the flow table itself
// (and its perturbation seed) intact.
func (t *Tin) drainAll(release func(*Packet)) {
	for idx := t.newHead; idx != noFlow; {
		next := t.flows[idx].next
		t.flows[idx].drain(release)
		idx = next
	}
	for idx := t.oldHead; idx != noFlow; {
		next := t.flows[idx].next
		t.flows[idx].drain(release)
		idx = next
	}
	for i := range t.flows {
		t.flows[i].membership = listNone
		t.flows[i].prev, t.flows[i].next = noFlow, noFlow
	}
	t.newHead, t.newTail = noFlow, noFlow
	t.oldHead, t.oldTail = noFlow, noFlow
	t.backlog = 0
	t.tinDeficit = 0
	t.bulkFlowCount = 0
}

// --- enqueue/dequeue bookkeeping (C5) ----------------------------------

// hashTo reduces a packet's flow key to a slot within this tin (C3).
func (t *Tin) hashTo(key uint64, mode FlowMode) uint32 {
	return hashFlow(key, t.perturbation, mode, t.flowsCnt)
}

// enqueue adds p to the flow at idx, refreshing the tin's byte clock if it
// had gone idle, and linking the flow onto new_flows if it just became
// active (spec.md §4.5 and the enqueue-time flowchain logic in
// original_source/sch_cake.c's cake_enqueue).
func (t *Tin) enqueue(idx uint32, p *Packet, now Clock) {
	if t.backlog == 0 && t.timeNextPacket < now {
		t.timeNextPacket = now
	}

	f := &t.flows[idx]
	wasEmpty := f.empty()
	f.pushTail(p, now)

	t.backlog += p.Len
	t.packets++
	t.bytes += uint64(p.Len)

	if wasEmpty && f.membership == listNone {
		f.deficit = t.quantum
		f.dropped = 0
		t.pushNewTail(idx)
	}
}

// dequeueFromFlow runs C1 against the flow at idx, folding in the
// bookkeeping spec.md §4.5 assigns to the tin (backlog decrement mirrors
// enqueue's increment) for every packet physically removed, whether it is
// ultimately returned, marked, or discarded.
func (t *Tin) dequeueFromFlow(idx uint32, params CodelParams, now Clock, overloaded bool, discard func(*Packet)) *Packet {
	f := &t.flows[idx]
	before := f.backlog
	pkt := codelDequeue(f, params, now, overloaded, func(p *Packet) {
		t.dropped++
		if discard != nil {
			discard(p)
		}
	})
	removed := before - f.backlog
	// pkt itself, if returned, was already subtracted from f.backlog by
	// popHead; account the same byte delta against the tin's running total.
	t.backlog -= removed
	if pkt != nil {
		drops, marks := f.resetCycleCounters()
		t.ecnMarked += uint64(marks)
		_ = drops // already folded into t.dropped via the discard callback
	}
	return pkt
}
