package cake

import (
	"math/rand"
	"time"
)

// Watchdog is the injected one-shot timer capability spec.md §9 calls for.
// Dequeue arms it via ScheduleAt when it finds nothing ready because the
// shaper gate is still closed, and cancels it once a packet is released. internal/watchdog provides a real
// timer-backed implementation and a deterministic fake for tests; neither
// is imported here, so any type satisfying this interface works.
type Watchdog interface {
	ScheduleAt(Clock)
	Cancel()
}

// Discipline is the top-level CAKE enqueue/dequeue engine (C10 plus the
// wiring that ties C1-C9 together). It holds no goroutines and does no I/O;
// the host drives Enqueue/Dequeue/Peek/Drop one at a time under its own
// lock, per spec.md §5's single-threaded cooperative model.
type Discipline struct {
	tins    []*Tin
	dscpTin [64]uint8

	mode            DiffservMode
	flowMode        FlowMode
	atm             bool
	wash            bool
	autorateIngress bool
	overhead        int32

	codelParams CodelParams

	timeNextPacket Clock
	rateNs         uint64
	rateShift      uint8
	rateBps        uint64
	curTin         int

	qlen              uint32
	bufferUsed        uint32
	bufferLimit       uint32
	bufferConfigLimit uint32

	cfg         Config
	initialized bool

	clock    func() Clock
	watchdog Watchdog
	release  func(*Packet)

	peeked *Packet
}

// Option configures a Discipline at construction time.
type Option func(*Discipline)

// WithClock overrides the time source Dequeue/Enqueue read "now" from.
// Tests supply a manually-advanced fake; production leaves this unset and
// gets wall-clock time.
func WithClock(clock func() Clock) Option {
	return func(d *Discipline) { d.clock = clock }
}

// WithWatchdog injects the one-shot wake-up timer Dequeue arms when the
// shaper gate is closed.
func WithWatchdog(w Watchdog) Option {
	return func(d *Discipline) { d.watchdog = w }
}

// WithRelease registers the callback invoked for every packet the engine
// discards (CoDel drops, overflow evictions). Without one, dropped packets
// are simply forgotten; a host that owns packet memory should supply one to
// reclaim it.
func WithRelease(release func(*Packet)) Option {
	return func(d *Discipline) { d.release = release }
}

// NewDiscipline builds a Discipline from cfg (C10's init). Equivalent to
// constructing a zero Discipline, applying opts, and calling Change(cfg).
func NewDiscipline(cfg Config, opts ...Option) (*Discipline, error) {
	d := &Discipline{
		curTin: 0,
		clock:  func() Clock { return Clock(time.Now().UnixNano()) },
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.Change(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

func seedOrDefault(seed uint64) int64 {
	if seed == 0 {
		return 1
	}
	return int64(seed)
}

// Change re-reads the parameter block and reconfigures the discipline (C10's
// change/reconfigure). Reapplying the config currently in effect is a no-op
// that leaves every counter, backlog, and flow mapping untouched (spec.md
// §8's reconfigure-idempotence invariant); any other change drains every
// tin (discarding whatever was queued, releasing packets to the host) and
// rebuilds the tin set from scratch via C9. Migrating individual flows'
// backlogs across an arbitrary rate/weight change is out of scope here, per
// spec.md §1's non-goal of per-knob configurability beyond the four preset
// modes.
func (d *Discipline) Change(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if d.initialized && cfg == d.cfg {
		return nil
	}

	rng := rand.New(rand.NewSource(seedOrDefault(cfg.Seed)))
	tins, dscpTin, err := buildTins(cfg, func() uint32 { return rng.Uint32() })
	if err != nil {
		return err
	}

	d.releaseAllQueued()

	d.tins = tins
	d.dscpTin = dscpTin
	d.mode = cfg.DiffservMode
	d.flowMode = cfg.FlowMode
	d.atm = cfg.ATM
	d.wash = cfg.Wash
	d.autorateIngress = cfg.AutorateIngress
	d.overhead = cfg.Overhead
	d.codelParams = CodelParams{Target: cfg.Target, Interval: cfg.Interval, MTU: 1514}
	d.rateBps = cfg.BaseRate
	d.rateNs, d.rateShift = computeRate(cfg.BaseRate)
	d.bufferConfigLimit = cfg.Memory
	d.bufferLimit = bufferLimitFor(cfg.Memory, cfg.BaseRate, cfg.Interval)
	d.curTin = 0
	d.qlen = 0
	d.bufferUsed = 0
	d.timeNextPacket = d.clock()
	d.cfg = cfg
	d.initialized = true
	return nil
}

// Reset drops every queued packet but keeps the current configuration (C10).
func (d *Discipline) Reset() {
	d.releaseAllQueued()
	d.qlen = 0
	d.bufferUsed = 0
	d.curTin = 0
	if len(d.tins) > 0 {
		d.timeNextPacket = d.clock()
		for _, t := range d.tins {
			t.timeNextPacket = d.timeNextPacket
		}
	}
}

func (d *Discipline) releaseAllQueued() {
	for _, t := range d.tins {
		t.drainAll(d.releasePacket)
	}
}

// releasePacket hands a discarded packet back to the host, if a release
// hook was registered.
func (d *Discipline) releasePacket(p *Packet) {
	if d.release != nil {
		d.release(p)
	}
}

// classify maps a packet onto a tin index via the DSCP->tin table C9 built
// (C9's classify half of "classify (C9 table) → hash (C3)"), then applies
// the wash flag to the packet's own DSCP field. besteffort mode always maps
// to tin 0 regardless of the 64-entry table (which is all zero for it
// anyway, but we skip the lookup to make the intent explicit).
func (d *Discipline) classify(p *Packet) int {
	dscp := p.DSCP & 0x3f
	tinIdx := 0
	if d.mode != ModeBestEffort {
		tinIdx = int(d.dscpTin[dscp])
		if tinIdx >= len(d.tins) {
			tinIdx = 0
		}
	}
	if d.wash && dscp != 0 {
		p.DSCP = 0
	}
	return tinIdx
}

// Enqueue implements the producer API's enqueue(): classify, hash into a
// flow, enqueue, then evict from the fattest flow until buffer_used is back
// within budget (spec.md §4.8, §6).
func (d *Discipline) Enqueue(p *Packet) (accepted, dropped bool) {
	if len(d.tins) == 0 {
		return false, false
	}
	now := d.clock()

	tinIdx := d.classify(p)
	tin := d.tins[tinIdx]
	flowIdx := tin.hashTo(p.FlowKey, d.flowMode)

	wasGloballyEmpty := d.qlen == 0
	tin.enqueue(flowIdx, p, now)
	if wasGloballyEmpty && d.timeNextPacket < now {
		d.timeNextPacket = now
	}

	d.bufferUsed += p.Truesize
	d.qlen++
	accepted = true

	if d.bufferLimit > 0 {
		for d.bufferUsed > d.bufferLimit {
			if _, _, ok := d.dropFattestFlow(); !ok {
				break
			}
			dropped = true
		}
	}
	return accepted, dropped
}

// Dequeue implements the producer API's dequeue(): the global shaper gate,
// then C6's tin selection, C4's flow DRR, and C1's CoDel decision, charging
// C7's byte clocks on every packet that makes it out (spec.md §4, §6).
func (d *Discipline) Dequeue() *Packet {
	if d.peeked != nil {
		p := d.peeked
		d.peeked = nil
		return p
	}
	return d.dequeue()
}

func (d *Discipline) dequeue() *Packet {
	for {
		if d.qlen == 0 {
			return nil
		}
		now := d.clock()
		if d.timeNextPacket > now {
			if d.watchdog != nil {
				d.watchdog.ScheduleAt(d.timeNextPacket)
			}
			return nil
		}

		tinIdx, ok := d.selectTin(now)
		if !ok {
			return nil
		}
		tin := d.tins[tinIdx]

		threshold := (d.bufferLimit >> 1) + (d.bufferLimit >> 2)
		overloaded := d.bufferLimit > 0 && d.bufferUsed > threshold

		pkt := tin.dequeueOne(d.codelParams, now, overloaded,
			func(length uint32) int64 {
				return int64(overheadCorrect(length, d.overhead, d.atm))
			},
			func(discarded *Packet) {
				d.qlen--
				d.bufferUsed -= discarded.Truesize
				d.releasePacket(discarded)
			},
		)
		if pkt == nil {
			// Every packet CoDel looked at in this tin was dropped, or the
			// tin's lists were both empty despite a stale backlog count;
			// either way there is nothing to charge the shaper for. Loop
			// back to the top so a now-empty discipline returns nil instead
			// of spinning on selectTin forever.
			continue
		}

		d.qlen--
		d.bufferUsed -= pkt.Truesize
		length := overheadCorrect(pkt.Len, d.overhead, d.atm)
		d.chargeShaper(tinIdx, length)
		if d.watchdog != nil {
			d.watchdog.Cancel()
		}
		return pkt
	}
}

// Peek implements the producer API's peek(): dequeue-and-cache, so a second
// call returns the same packet a following Dequeue would otherwise consume.
func (d *Discipline) Peek() *Packet {
	if d.peeked == nil {
		d.peeked = d.dequeue()
	}
	return d.peeked
}

// Drop implements the producer API's drop(): the eviction hook a host under
// memory pressure can call directly, independent of any particular
// enqueue. Delegates to C8.
func (d *Discipline) Drop() (tinIdx int, flowIdx uint32, ok bool) {
	return d.dropFattestFlow()
}

// Destroy implements the producer API's destroy(): releases every queued
// packet and cancels the watchdog. The Discipline itself is left valid but
// empty; calling Change again reinitializes it.
func (d *Discipline) Destroy() {
	d.releaseAllQueued()
	d.qlen = 0
	d.bufferUsed = 0
	d.peeked = nil
	if d.watchdog != nil {
		d.watchdog.Cancel()
	}
}

// Dump implements the producer API's dump(): the configuration currently in
// effect.
func (d *Discipline) Dump() Config {
	return d.cfg
}

// DumpStats implements the producer API's dump_stats(): a snapshot of every
// counter spec.md §6 lists, global and per-tin.
func (d *Discipline) DumpStats() Stats {
	tins := make([]TinStats, len(d.tins))
	for i, t := range d.tins {
		tins[i] = TinStats{
			Tin:           i,
			Packets:       t.packets,
			Bytes:         t.bytes,
			Dropped:       t.dropped,
			ECNMarked:     t.ecnMarked,
			DropOverlimit: t.dropOverlimit,
			BacklogBytes:  t.backlog,
			BacklogFlows:  t.activeFlowCount(),
			BulkFlowCount: t.bulkFlowCount,
			RateBps:       t.rateBps,
			TargetUs:      uint32(d.codelParams.Target / time.Microsecond),
			IntervalUs:    uint32(d.codelParams.Interval / time.Microsecond),
		}
	}
	return Stats{
		BufferUsed:  d.bufferUsed,
		BufferLimit: d.bufferLimit,
		MemoryUsed:  d.bufferUsed,
		QLen:        d.qlen,
		Tins:        tins,
	}
}
