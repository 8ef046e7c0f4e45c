// Package simhost drives the cake engine without a kernel or a NIC. It
// stands in for the host integration spec.md §1 leaves out of scope: a
// Generator produces Packets on its own schedule, a Host feeds them into a
// cake.Discipline and drains whatever the shaper releases, so the engine
// can be exercised end to end from a single binary (cmd/cake-shaper).
//
// Grounded in the packet/flow shapes of MarcoPolo-simnet's fqCoDel
// implementation and heistp-scim's Packet type, simplified down to the
// fields the cake engine actually consumes.
package simhost

// Packet is a host-side description of a frame, translated to a
// cake.Packet at the Host/Discipline boundary. It carries nothing the
// engine needs to derive itself (spec.md §1's flow-key-extraction
// non-goal): FlowKey and DSCP are assumed already resolved by whatever
// classifies real traffic.
type Packet struct {
	FlowKey  uint64
	Len      uint32
	Truesize uint32
	DSCP     uint8
	ECT      bool
}
