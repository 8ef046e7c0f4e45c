// Package cake implements the CAKE enqueue/dequeue engine: a combined
// traffic shaper, active queue management and fair queueing discipline.
//
// The package owns no goroutines and performs no I/O. A host integration
// drives it by calling Enqueue/Dequeue/Peek under its own lock and acting on
// the wake-up deadline Dequeue passes to the injected Watchdog.
package cake

import "time"

// Clock is a monotonic instant or interval expressed as nanoseconds, the
// same representation the original discipline uses for ktime_get_ns(). A
// single type stands in for both, matching the kernel's codel_time_t.
type Clock = time.Duration

// Packet is a host-owned record handed to the engine at Enqueue and handed
// back at Dequeue, Peek or Drop. The engine never inspects or copies
// payload; Handle is an opaque identifier the host uses to recover its own
// buffer (e.g. an *sk_buff) once the packet re-emerges.
type Packet struct {
	Handle   uintptr // opaque host identifier
	Len      uint32  // wire length
	Truesize uint32  // memory footprint charged against the buffer budget
	DSCP     uint8   // 6-bit Diffserv code point, already extracted
	ECT      bool    // ECN-capable transport

	// FlowKey is the host-precomputed flow-key descriptor (hash input);
	// flow-key extraction from packet headers is out of scope (spec.md
	// §1), so the host supplies this and the engine only reduces it to a
	// table index (C3).
	FlowKey uint64

	enqueued Clock
	next     *Packet // intrusive single-link chain, owned by the flow queue
}

// EnqueuedAt returns the Clock value recorded when the packet was pushed
// onto its flow queue.
func (p *Packet) EnqueuedAt() Clock {
	return p.enqueued
}
