package cake

import "testing"

// TestDequeueOneNewOldInterleaving exercises the two-list DRR discipline
// directly (bypassing CoDel drop/mark decisions via a CoDel target far
// above the test's time scale): a flow enqueued first runs its quantum
// (here good for two 1000-byte packets before going negative), then yields
// to the next flow on new_flows, with draining flows folding onto
// old_flows rather than vanishing mid-round.
func TestDequeueOneNewOldInterleaving(t *testing.T) {
	tin := newTin(8, 1)
	tin.quantum = 1500

	const flowA, flowB = uint32(0), uint32(1)
	identity := func(l uint32) int64 { return int64(l) }
	var discarded []*Packet
	discard := func(p *Packet) { discarded = append(discarded, p) }
	params := CodelParams{Target: 10 * Clock(1_000_000_000), Interval: 20 * Clock(1_000_000_000), MTU: 1514}

	for i := 0; i < 3; i++ {
		tin.enqueue(flowA, &Packet{Handle: uintptr(100 + i), Len: 1000, Truesize: 1000}, 0)
	}
	tin.enqueue(flowB, &Packet{Handle: 200, Len: 1000, Truesize: 1000}, 0)

	var got []uintptr
	for i := 0; i < 5; i++ {
		pkt := tin.dequeueOne(params, 0, false, identity, discard)
		if pkt == nil {
			got = append(got, 0)
			continue
		}
		got = append(got, pkt.Handle)
	}

	want := []uintptr{100, 101, 200, 102, 0}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dequeue #%d = %d, want %d (full sequence got=%v want=%v)", i, got[i], want[i], got, want)
		}
	}

	if len(discarded) != 0 {
		t.Errorf("expected no CoDel discards, got %d", len(discarded))
	}
	if tin.bulkFlowCount != 0 {
		t.Errorf("bulkFlowCount = %d, want 0 once every flow has drained", tin.bulkFlowCount)
	}
	if !tin.newEmpty() || !tin.oldEmpty() {
		t.Error("both new_flows and old_flows should be empty once drained")
	}
}

func TestDequeueOneNoFlowOnBothLists(t *testing.T) {
	tin := newTin(4, 1)
	tin.quantum = 1500
	identity := func(l uint32) int64 { return int64(l) }

	tin.enqueue(0, &Packet{Handle: 1, Len: 1000, Truesize: 1000}, 0)
	if tin.flows[0].membership != listNew {
		t.Fatalf("flow should be on new_flows after its first packet")
	}

	params := CodelParams{Target: 10 * Clock(1_000_000_000), Interval: 20 * Clock(1_000_000_000), MTU: 1514}

	// First call drains the flow's only packet; removal from new_flows is
	// deferred until the next turn finds the flow empty.
	if pkt := tin.dequeueOne(params, 0, false, identity, func(*Packet) {}); pkt == nil {
		t.Fatal("expected the flow's single packet back")
	}
	if tin.flows[0].membership != listNew {
		t.Fatalf("flow should still be linked right after draining, got membership %v", tin.flows[0].membership)
	}

	if pkt := tin.dequeueOne(params, 0, false, identity, func(*Packet) {}); pkt != nil {
		t.Fatalf("expected nil once the only flow is drained, got %v", pkt)
	}
	if tin.flows[0].membership != listNone {
		t.Errorf("drained flow should be unlinked from every list, got membership %v", tin.flows[0].membership)
	}
}
