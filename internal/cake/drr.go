package cake

// dequeueOne implements C4, the flow-level deficit round-robin scheduler
// within a single tin, with the new/old two-list discipline: new_flows are
// serviced ahead of old_flows so a flow that has just become active gets a
// quick turn before settling into ordinary round-robin rotation.
//
// overhead computes a packet's overhead-corrected length (C7) for deficit
// charging; discard releases a packet CoDel decided to drop.
func (t *Tin) dequeueOne(params CodelParams, now Clock, overloaded bool, overhead func(uint32) int64, discard func(*Packet)) *Packet {
	for {
		which := listNew
		cur := t.newHead
		if cur == noFlow {
			which = listOld
			cur = t.oldHead
			if cur == noFlow {
				// Should not happen while tin_backlog > 0; nothing left
				// to serve (original_source/sch_cake.c's WARN_ON branch).
				t.backlog = 0
				return nil
			}
		}
		idx := uint32(cur)
		f := &t.flows[idx]

		if f.deficit <= 0 {
			f.deficit += t.quantum
			wasNew := which == listNew
			t.moveToOldTail(idx)
			if wasNew {
				t.bulkFlowCount++
			}
			continue
		}

		pkt := t.dequeueFromFlow(idx, params, now, overloaded, discard)
		if pkt == nil {
			if which == listNew && !t.oldEmpty() {
				t.moveToOldTail(idx)
				t.bulkFlowCount++
			} else {
				t.remove(idx)
				if which == listOld {
					t.bulkFlowCount--
				}
			}
			continue
		}

		charged := overhead(pkt.Len)
		f.deficit -= charged
		t.tinDeficit -= charged
		return pkt
	}
}
