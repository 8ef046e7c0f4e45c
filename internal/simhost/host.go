package simhost

import (
	"context"
	"time"

	"github.com/fbegyn/cake-shaper/internal/cake"
)

// Host feeds a Generator's packets into a cake.Discipline on a wall-clock
// cadence and hands whatever the shaper releases to Sink, standing in for
// the NIC driver and qdisc glue a real deployment would supply. It owns no
// locking of its own: Discipline is not safe for concurrent use, and Host
// only ever touches it from the goroutine running Run.
type Host struct {
	Disc *cake.Discipline
	Gen  Generator

	// Sink receives every packet the discipline dequeues, in dequeue order.
	// A nil Sink just drops them, useful for soak-testing the engine alone.
	Sink func(*cake.Packet)

	handle uintptr
}

// RunStats summarizes one Run call.
type RunStats struct {
	Sent    int // packets accepted by Enqueue
	Dropped int // Enqueue calls that triggered an overflow eviction
	Emitted int // packets handed to Sink
}

// Run drives the generator for duration (or until ctx is canceled),
// enqueuing each packet and draining the discipline after every enqueue so
// paced packets leave as soon as the shaper gate allows. It blocks for
// roughly duration, sleeping the generator's per-packet delay between
// enqueues.
func (h *Host) Run(ctx context.Context, duration time.Duration) RunStats {
	var stats RunStats
	deadline := time.Now().Add(duration)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return stats
		default:
		}

		p, delay := h.Gen.Next()
		h.handle++
		pkt := &cake.Packet{
			Handle:   h.handle,
			Len:      p.Len,
			Truesize: p.Truesize,
			DSCP:     p.DSCP,
			ECT:      p.ECT,
			FlowKey:  p.FlowKey,
		}

		accepted, dropped := h.Disc.Enqueue(pkt)
		if accepted {
			stats.Sent++
		}
		if dropped {
			stats.Dropped++
		}

		for out := h.Disc.Dequeue(); out != nil; out = h.Disc.Dequeue() {
			stats.Emitted++
			if h.Sink != nil {
				h.Sink(out)
			}
		}

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return stats
			}
		}
	}
	return stats
}
