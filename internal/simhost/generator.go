package simhost

import "time"

// Generator produces one Packet at a time along with how long the host
// should wait before asking for the next one. Next must be safe to call
// repeatedly from a single goroutine; Host never calls it concurrently.
type Generator interface {
	Next() (Packet, time.Duration)
}

// FlowProfile describes one synthetic flow a SyntheticGenerator round-robins
// across: a fixed packet size and DSCP marking sent at a steady rate.
type FlowProfile struct {
	Key           uint64
	PacketsPerSec float64
	Len           uint32
	DSCP          uint8
	ECT           bool
}

// SyntheticGenerator round-robins across a fixed set of flows, each paced at
// its own rate, enough to drive the isolation and overflow scenarios spec.md
// §8 describes without a real network underneath. It holds no randomness and
// no wall-clock reads itself; Host supplies the clock by sleeping the
// returned delay.
type SyntheticGenerator struct {
	flows  []FlowProfile
	cursor int
}

// NewSyntheticGenerator builds a generator over flows. An empty flow set is
// valid and simply never produces a packet worth enqueuing (Next still
// returns, just with a parked delay, so Host's loop doesn't spin).
func NewSyntheticGenerator(flows []FlowProfile) *SyntheticGenerator {
	return &SyntheticGenerator{flows: flows}
}

func (g *SyntheticGenerator) Next() (Packet, time.Duration) {
	if len(g.flows) == 0 {
		return Packet{}, time.Second
	}
	f := g.flows[g.cursor]
	g.cursor = (g.cursor + 1) % len(g.flows)

	pkt := Packet{
		FlowKey:  f.Key,
		Len:      f.Len,
		Truesize: f.Len,
		DSCP:     f.DSCP,
		ECT:      f.ECT,
	}
	rate := f.PacketsPerSec
	if rate <= 0 {
		rate = 1
	}
	delay := time.Duration(float64(time.Second) / rate)
	return pkt, delay
}
