package cake

import "math"

// CodelParams holds the CoDel control parameters shared by every flow in
// the discipline (spec.md §3: "CoDel parameters (target, interval) shared
// across flows").
type CodelParams struct {
	Target   Clock
	Interval Clock
	MTU      uint32 // small-backlog threshold, spec.md §4.1 ("at most MTU")
}

// codelDoDequeue pops the flow's head packet and reports whether its
// sojourn time is grounds for dropping, following the control law
// structure the retrieved pack implements in other_examples'
// MarcoPolo-simnet codel.go (itself RFC 8289's dodequeue()): a packet is
// "ok to drop" once the sojourn has been persistently above target for a
// full interval.
func codelDoDequeue(f *Flow, params CodelParams, now Clock) (pkt *Packet, okToDrop bool) {
	pkt = f.popHead()
	if pkt == nil {
		f.cvars.haveFirstAbove = false
		return nil, false
	}

	sojourn := now - pkt.enqueued
	if sojourn < params.Target || f.backlog < params.MTU {
		f.cvars.haveFirstAbove = false
		return pkt, false
	}

	if !f.cvars.haveFirstAbove {
		f.cvars.firstAbove = now + params.Interval
		f.cvars.haveFirstAbove = true
		return pkt, false
	}
	return pkt, now >= f.cvars.firstAbove
}

// controlLaw schedules the next drop/mark at interval/sqrt(count) past t,
// the integer^H^H^Hfloating-point inverse-sqrt approximation spec.md §4.1
// calls for. Grounded in other_examples' MarcoPolo-simnet codel.go, which
// uses math.Sqrt over the float64 seconds representation rather than the
// kernel's fixed-point Newton step (see DESIGN.md's Open Question entry).
func controlLaw(t Clock, interval Clock, count int) Clock {
	return t + Clock(float64(interval)/math.Sqrt(float64(count)))
}

// codelDequeue implements C1: it pulls packets from the flow's head until
// one is acceptable to pass through, or the flow drains. While in
// "dropping" mode it repeatedly drops/marks at the scheduled cadence.
//
// A droppable packet is marked rather than dropped when it is ECN-capable,
// unless overloaded is set (buffer_used > ¾·buffer_limit), in which case
// marking is suppressed so backlog sheds via hard drops instead.
//
// onDiscard is invoked for every packet actually discarded (dropped, never
// for a marked pass-through), so the caller can release it back to the
// host and update its own counters; it is not invoked for the packet
// ultimately returned.
func codelDequeue(f *Flow, params CodelParams, now Clock, overloaded bool, onDiscard func(*Packet)) *Packet {
	pkt, okToDrop := codelDoDequeue(f, params, now)

	if f.cvars.dropping {
		if !okToDrop {
			f.cvars.dropping = false
		} else {
			for f.cvars.dropping && now >= f.cvars.dropNext {
				if marked := codelMarkOrDrop(f, pkt, overloaded, onDiscard); marked {
					f.cvars.count++
					f.cvars.dropNext = controlLaw(f.cvars.dropNext, params.Interval, f.cvars.count)
					return pkt
				}
				f.cvars.count++
				pkt, okToDrop = codelDoDequeue(f, params, now)
				if !okToDrop {
					f.cvars.dropping = false
				} else {
					f.cvars.dropNext = controlLaw(f.cvars.dropNext, params.Interval, f.cvars.count)
				}
			}
		}
	} else if okToDrop {
		if marked := codelMarkOrDrop(f, pkt, overloaded, onDiscard); !marked {
			pkt, _ = codelDoDequeue(f, params, now)
		}
		f.cvars.dropping = true

		// If the sojourn went back above target shortly after the last
		// drop episode ended, resume at roughly the drop rate that was
		// controlling the queue last cycle instead of restarting at 1.
		delta := f.cvars.count - f.cvars.lastCount
		f.cvars.count = 1
		if delta > 1 && now-f.cvars.dropNext < 16*params.Interval {
			f.cvars.count = delta
		}
		f.cvars.dropNext = controlLaw(now, params.Interval, f.cvars.count)
		f.cvars.lastCount = f.cvars.count
	}

	return pkt
}

// codelMarkOrDrop applies the mark/drop decision to pkt, which has already
// been popped from the flow. It returns true if pkt was marked (and should
// therefore be returned to the caller as the passing packet), false if it
// was dropped (discarded via onDiscard, and the dequeue loop should
// continue with the next packet).
func codelMarkOrDrop(f *Flow, pkt *Packet, overloaded bool, onDiscard func(*Packet)) bool {
	if pkt == nil {
		return false
	}
	if pkt.ECT && !overloaded {
		f.cvars.ecnMark++
		return true
	}
	f.cvars.dropCount++
	f.dropped++
	if onDiscard != nil {
		onDiscard(pkt)
	}
	return false
}
