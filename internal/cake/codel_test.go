package cake

import "testing"

func loadFlow(n int, ect bool) *Flow {
	f := newFlow()
	for i := 0; i < n; i++ {
		p := &Packet{Handle: uintptr(i + 1), Len: 1500, Truesize: 1500, ECT: ect}
		f.pushTail(p, 0)
	}
	return &f
}

func TestCodelDoDequeueEmptyFlow(t *testing.T) {
	f := newFlow()
	params := CodelParams{Target: 5_000_000, Interval: 100_000_000, MTU: 1514}
	pkt, okToDrop := codelDoDequeue(&f, params, 0)
	if pkt != nil || okToDrop {
		t.Fatalf("codelDoDequeue on empty flow = (%v, %v), want (nil, false)", pkt, okToDrop)
	}
}

func TestCodelDoDequeueBelowTargetNeverDrops(t *testing.T) {
	f := loadFlow(3, true)
	params := CodelParams{Target: 5_000_000, Interval: 100_000_000, MTU: 1514}
	// sojourn of 1ms is well below the 5ms target.
	pkt, okToDrop := codelDoDequeue(f, params, 1_000_000)
	if pkt == nil {
		t.Fatal("expected a packet back")
	}
	if okToDrop {
		t.Error("sojourn below target must never be ok-to-drop")
	}
}

func TestCodelDequeueMarksWhenNotOverloaded(t *testing.T) {
	f := loadFlow(5, true)
	params := CodelParams{Target: 5_000_000, Interval: 100_000_000, MTU: 1514} // 5ms / 100ms

	var discarded []*Packet
	discard := func(p *Packet) { discarded = append(discarded, p) }

	// First call: sojourn (200ms) already above target but this is the
	// first observation, so codelDoDequeue only arms first_above_time; it
	// is not yet ok-to-drop.
	p1 := codelDequeue(f, params, 200_000_000, false, discard)
	if p1 == nil || p1.Handle != 1 {
		t.Fatalf("first packet = %v, want handle 1", p1)
	}

	// Second call, after the interval has elapsed past first_above_time:
	// now ok-to-drop, and since the packet is ECN-capable and the queue is
	// not overloaded, it should be marked and passed through rather than
	// dropped.
	p2 := codelDequeue(f, params, 310_000_000, false, discard)
	if p2 == nil || p2.Handle != 2 {
		t.Fatalf("second packet = %v, want handle 2", p2)
	}
	if len(discarded) != 0 {
		t.Errorf("expected no discards while marking, got %d", len(discarded))
	}
	if f.cvars.ecnMark != 1 {
		t.Errorf("ecnMark = %d, want 1", f.cvars.ecnMark)
	}
	if f.cvars.dropCount != 0 {
		t.Errorf("dropCount = %d, want 0", f.cvars.dropCount)
	}
	if f.dropped != 0 {
		t.Errorf("f.dropped = %d, want 0 (marking must not count as a drop)", f.dropped)
	}
}

func TestCodelDequeueDropsWhenOverloaded(t *testing.T) {
	f := loadFlow(5, true)
	params := CodelParams{Target: 5_000_000, Interval: 100_000_000, MTU: 1514}

	var discarded []*Packet
	discard := func(p *Packet) { discarded = append(discarded, p) }

	if p1 := codelDequeue(f, params, 200_000_000, true, discard); p1 == nil || p1.Handle != 1 {
		t.Fatalf("first packet = %v, want handle 1", p1)
	}

	// Same timing as the marking test, but overloaded=true: the packet
	// that becomes ok-to-drop must be hard-dropped (even though it is
	// ECN-capable) and the next packet in the flow returned instead.
	p2 := codelDequeue(f, params, 310_000_000, true, discard)
	if len(discarded) != 1 || discarded[0].Handle != 2 {
		t.Fatalf("discarded = %v, want exactly handle 2", discarded)
	}
	if p2 == nil || p2.Handle != 3 {
		t.Fatalf("second returned packet = %v, want handle 3", p2)
	}
	if f.cvars.ecnMark != 0 {
		t.Errorf("ecnMark = %d, want 0", f.cvars.ecnMark)
	}
	if f.cvars.dropCount != 1 {
		t.Errorf("dropCount = %d, want 1", f.cvars.dropCount)
	}
	if f.dropped != 1 {
		t.Errorf("f.dropped = %d, want 1", f.dropped)
	}
	if !f.cvars.dropping {
		t.Error("flow should have entered dropping mode after a hard drop")
	}
}

func TestCodelDequeueSmallBacklogBypass(t *testing.T) {
	// A single packet below the MTU threshold is never ok-to-drop,
	// regardless of how stale it is: spec.md §4.1's small-backlog bypass.
	f := newFlow()
	p := &Packet{Handle: 1, Len: 100, Truesize: 100, ECT: true}
	f.pushTail(p, 0)

	params := CodelParams{Target: 5_000_000, Interval: 100_000_000, MTU: 1514}
	var discarded []*Packet
	got := codelDequeue(&f, params, 500_000_000, true, func(p *Packet) { discarded = append(discarded, p) })
	if got == nil || got.Handle != 1 {
		t.Fatalf("got %v, want the only packet back undropped", got)
	}
	if len(discarded) != 0 {
		t.Errorf("small-backlog packet must never be dropped, got %d discards", len(discarded))
	}
}

func TestControlLawAdvancesFasterWithHigherCount(t *testing.T) {
	interval := Clock(100_000_000)
	t1 := controlLaw(0, interval, 1)
	t4 := controlLaw(0, interval, 4)
	if t4 >= t1 {
		t.Errorf("controlLaw(count=4) = %v should schedule sooner than controlLaw(count=1) = %v", t4, t1)
	}
}
