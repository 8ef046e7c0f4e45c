package cake

// listNone/listNew/listOld record which of a tin's two intrusive lists (if
// any) a flow currently belongs to (spec.md §3: "a flow is on at most one
// of the parent tin's two intrusive lists").
type flowList uint8

const (
	listNone flowList = iota
	listNew
	listOld
)

// noFlow is the sentinel "no index" value used by the intrusive list links
// below, following the design note in spec.md §9: flows are owned by the
// tin's flow table at a stable slot, and list membership is a relation
// (prev/next indices into that same table), not a second ownership.
const noFlow int32 = -1

// CodelVars is the per-flow CoDel controller state (spec.md §3): the count
// of consecutive drop-inducing intervals, the scheduled time of the next
// drop, the dropping-mode flag, the running first-above-time estimate, and
// the mark/drop counters for the flow's current dequeue cycle.
type CodelVars struct {
	count          int
	lastCount      int
	dropping       bool
	dropNext       Clock
	firstAbove     Clock
	haveFirstAbove bool

	ecnMark   int
	dropCount int
}

// Flow is a FIFO queue of packets belonging to one hashed flow within a tin
// (C2). Deficit accounting is driven externally by the tin's DRR scheduler;
// Flow itself only tracks the byte backlog needed by CoDel's MTU-threshold
// check and by the tin's backlog bookkeeping.
type Flow struct {
	head, tail *Packet
	backlog    uint32 // bytes currently queued for this flow
	deficit    int64  // signed DRR deficit counter, bytes
	dropped    int    // packets dropped (CoDel or overflow) since the flow last became active

	cvars CodelVars

	membership flowList
	prev, next int32 // indices into the owning tin's flow table
}

func newFlow() Flow {
	return Flow{prev: noFlow, next: noFlow}
}

// empty reports whether the flow currently holds no packets.
func (f *Flow) empty() bool {
	return f.head == nil
}

// pushTail appends p to the flow's queue, stamping its enqueue time.
func (f *Flow) pushTail(p *Packet, now Clock) {
	p.enqueued = now
	p.next = nil
	if f.tail == nil {
		f.head = p
	} else {
		f.tail.next = p
	}
	f.tail = p
	f.backlog += p.Len
}

// popHead removes and returns the packet at the head of the flow's queue,
// or nil if the flow is empty.
func (f *Flow) popHead() *Packet {
	p := f.head
	if p == nil {
		return nil
	}
	f.head = p.next
	if f.head == nil {
		f.tail = nil
	}
	p.next = nil
	f.backlog -= p.Len
	return p
}

// drain discards every packet currently queued on the flow and resets its
// CoDel state, returning the number of packets and bytes discarded. release,
// if non-nil, is invoked for each discarded packet so the caller can hand it
// back to the host.
func (f *Flow) drain(release func(*Packet)) (packets int, bytes uint32) {
	for p := f.popHead(); p != nil; p = f.popHead() {
		packets++
		bytes += p.Len
		if release != nil {
			release(p)
		}
	}
	f.cvars = CodelVars{}
	f.deficit = 0
	f.dropped = 0
	return packets, bytes
}

// resetCycleCounters clears the per-cycle drop/mark counters that the tin
// reads after each codelDequeue call (spec.md §4.1's "current dequeue
// cycle" counters).
func (f *Flow) resetCycleCounters() (drops, marks int) {
	drops, marks = f.cvars.dropCount, f.cvars.ecnMark
	f.cvars.dropCount = 0
	f.cvars.ecnMark = 0
	return
}
