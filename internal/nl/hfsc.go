package nl

import "github.com/florianl/go-tc"

// SetSC sets both the real-time and link-share service curves to the same
// shape, mirroring `tc class add ... hfsc sc rate R`. Matches the teacher's
// convention: bandwidth in bits/sec, burst allowance in bytes, delay in ms.
func SetSC(hfsc *tc.Hfsc, burst, delayMs, rateBps uint32) {
	hfsc.Rsc = &tc.ServiceCurve{M1: burst, D: delayMs, M2: rateBps}
	hfsc.Fsc = &tc.ServiceCurve{M1: burst, D: delayMs, M2: rateBps}
}

// SetUL sets the upper-limit curve, capping how fast a class may ever send
// regardless of how much link-share credit it has banked.
func SetUL(hfsc *tc.Hfsc, burst, delayMs, rateBps uint32) {
	hfsc.Usc = &tc.ServiceCurve{M1: burst, D: delayMs, M2: rateBps}
}

// SetLS sets only the link-share curve, leaving any real-time guarantee
// already on Rsc untouched.
func SetLS(hfsc *tc.Hfsc, burst, delayMs, rateBps uint32) {
	hfsc.Fsc = &tc.ServiceCurve{M1: burst, D: delayMs, M2: rateBps}
}

// SetRT sets only the real-time curve, the guaranteed-latency half of an
// HFSC class.
func SetRT(hfsc *tc.Hfsc, burst, delayMs, rateBps uint32) {
	hfsc.Rsc = &tc.ServiceCurve{M1: burst, D: delayMs, M2: rateBps}
}

// bpsToBits converts the engine's bytes/sec rate into the bits/sec HFSC
// expects on the wire.
func bpsToBits(rateBps uint64) uint32 {
	bits := rateBps * 8
	if bits > 0xffffffff {
		return 0xffffffff
	}
	return uint32(bits)
}
