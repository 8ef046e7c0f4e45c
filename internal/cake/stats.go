package cake

// TinStats is one tin's slice of a DumpStats() snapshot (spec.md §6).
type TinStats struct {
	Tin           int
	Packets       uint64
	Bytes         uint64
	Dropped       uint64
	ECNMarked     uint64
	DropOverlimit uint64
	BacklogBytes  uint32
	BacklogFlows  uint32
	BulkFlowCount uint32
	RateBps       uint64
	TargetUs      uint32
	IntervalUs    uint32
}

// Stats is the full DumpStats() snapshot: global memory/queue counters plus
// one TinStats per configured tin, per spec.md §6's statistics table.
type Stats struct {
	BufferUsed  uint32
	BufferLimit uint32
	MemoryUsed  uint32
	QLen        uint32
	Tins        []TinStats
}
