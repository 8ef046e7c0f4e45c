package cake

// selectTin implements C6, the hybrid priority/bandwidth DRR across tins.
// Starting at the current cursor, it walks tins (wrapping around) until one
// has both backlog and a positive deficit. Every tin it passes over on the
// way is replenished: quantum_prio if that tin's own shaper gate is open
// (it is currently under its configured rate), quantum_band otherwise. High
// -priority tins get outsized turns while within their rate allocation and
// collapse to ordinary bandwidth sharing once they exceed it.
func (d *Discipline) selectTin(now Clock) (int, bool) {
	if len(d.tins) == 0 {
		return 0, false
	}
	idx := d.curTin
	t := d.tins[idx]
	for t.backlog == 0 || t.tinDeficit <= 0 {
		if t.tinDeficit <= 0 {
			if t.timeNextPacket > now {
				t.tinDeficit += t.quantumBand
			} else {
				t.tinDeficit += t.quantumPrio
			}
		}
		idx++
		if idx >= len(d.tins) {
			idx = 0
		}
		t = d.tins[idx]
	}
	d.curTin = idx
	return idx, true
}

// chargeShaper advances the picked tin's byte clock, every lower-priority
// tin's byte clock (index <= tinIdx — a higher-priority tin using the wire
// is charged against tins below it too, so they cannot "catch up" while a
// higher tin is active), and the global shaper, all by the same
// overhead-corrected packet length (spec.md §4.6-4.7).
func (d *Discipline) chargeShaper(tinIdx int, length uint32) {
	for i := tinIdx; i >= 0; i-- {
		t := d.tins[i]
		t.timeNextPacket = advance(t.timeNextPacket, length, t.rateNs, t.rateShift)
	}
	d.timeNextPacket = advance(d.timeNextPacket, length, d.rateNs, d.rateShift)
}
