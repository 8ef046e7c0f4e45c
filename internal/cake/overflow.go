package cake

// dropFattestFlow implements C8: scans every active flow in every tin,
// identifies the one with the largest backlog in bytes, and discards its
// head packet. Called repeatedly from Enqueue while buffer_used exceeds
// buffer_limit (spec.md §4.8); this punishes the flow causing memory
// pressure rather than whichever flow happened to be enqueuing.
//
// It returns false if there was nothing left to drop (every tin empty),
// which should not occur while buffer_used > 0.
func (d *Discipline) dropFattestFlow() (tinIdx int, flowIdx uint32, ok bool) {
	var maxBacklog uint32
	found := false

	for ti, tin := range d.tins {
		for idx32 := tin.oldHead; idx32 != noFlow; idx32 = tin.flows[idx32].next {
			if b := tin.flows[idx32].backlog; b > maxBacklog || !found {
				maxBacklog, tinIdx, flowIdx, found = b, ti, uint32(idx32), true
			}
		}
		for idx32 := tin.newHead; idx32 != noFlow; idx32 = tin.flows[idx32].next {
			if b := tin.flows[idx32].backlog; b > maxBacklog || !found {
				maxBacklog, tinIdx, flowIdx, found = b, ti, uint32(idx32), true
			}
		}
	}

	if !found {
		return 0, 0, false
	}

	tin := d.tins[tinIdx]
	f := &tin.flows[flowIdx]
	pkt := f.popHead()
	if pkt == nil {
		return tinIdx, flowIdx, false
	}

	d.bufferUsed -= pkt.Truesize
	tin.backlog -= pkt.Len
	tin.dropped++
	tin.dropOverlimit++
	f.dropped++
	d.qlen--

	d.releasePacket(pkt)
	return tinIdx, flowIdx, true
}
