// Command cake-shaper loads a CAKE configuration from config.toml, runs it
// against a synthetic traffic generator, and optionally installs an
// approximation of it on a real interface via netlink. Installation is
// opt-in through -install; without it the binary only ever exercises the
// in-memory engine, matching the teacher's own dry-run-by-default caution
// around touching live qdiscs.
package main

import (
	"context"
	"flag"
	"hash/fnv"
	"net"
	"time"

	"github.com/spf13/viper"
	"within.website/ln"
	"within.website/ln/opname"

	cakeshaper "github.com/fbegyn/cake-shaper"
	"github.com/fbegyn/cake-shaper/internal/cake"
	"github.com/fbegyn/cake-shaper/internal/nl"
	"github.com/fbegyn/cake-shaper/internal/simhost"
)

// FlowProfileConfig is one [[sim.flows]] table entry.
type FlowProfileConfig struct {
	Name          string
	PacketsPerSec float64
	Len           uint32
	DSCP          string
	ECT           bool
}

// Config mirrors config.toml's shape.
type Config struct {
	Interface string
	Install   bool

	Shaper struct {
		BaseRate     uint64
		DiffservMode string
		FlowMode     string
		ATM          bool
		Wash         bool
		Overhead     int32
		TargetMs     int64
		IntervalMs   int64
		Memory       uint32
		Seed         uint64
	}

	Sim struct {
		DurationS      int64
		StatsIntervalS int64
		Flows          []FlowProfileConfig
	}
}

func buildCakeConfig(c Config) (cake.Config, error) {
	mode, err := cake.ParseDiffservMode(c.Shaper.DiffservMode)
	if err != nil {
		return cake.Config{}, err
	}
	flowMode, err := cake.ParseFlowMode(c.Shaper.FlowMode)
	if err != nil {
		return cake.Config{}, err
	}

	cfg := cake.DefaultConfig()
	cfg.BaseRate = c.Shaper.BaseRate
	cfg.DiffservMode = mode
	cfg.FlowMode = flowMode
	cfg.ATM = c.Shaper.ATM
	cfg.Wash = c.Shaper.Wash
	cfg.Overhead = c.Shaper.Overhead
	cfg.Memory = c.Shaper.Memory
	cfg.Seed = c.Shaper.Seed
	if c.Shaper.TargetMs > 0 {
		cfg.Target = time.Duration(c.Shaper.TargetMs) * time.Millisecond
	}
	if c.Shaper.IntervalMs > 0 {
		cfg.Interval = time.Duration(c.Shaper.IntervalMs) * time.Millisecond
	}
	return cfg, nil
}

// flowKey derives a stable synthetic flow identifier from a config-file
// name, since real flow-key extraction from packet headers is out of scope
// here and the host is expected to supply one.
func flowKey(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}

func buildGenerator(flows []FlowProfileConfig) (*simhost.SyntheticGenerator, error) {
	profiles := make([]simhost.FlowProfile, len(flows))
	for i, f := range flows {
		dscp, err := cakeshaper.ParseDSCP(f.DSCP)
		if err != nil {
			return nil, err
		}
		profiles[i] = simhost.FlowProfile{
			Key:           flowKey(f.Name),
			PacketsPerSec: f.PacketsPerSec,
			Len:           f.Len,
			DSCP:          dscp,
			ECT:           f.ECT,
		}
	}
	return simhost.NewSyntheticGenerator(profiles), nil
}

func main() {
	ctx := opname.With(context.Background(), "main")
	install := flag.Bool("install", false, "push the resulting qdisc tree to the kernel via netlink (default: dry run)")
	configPath := flag.String("config", "./", "directory containing config.toml")
	flag.Parse()

	ln.Log(ctx, ln.Action("initializing cake-shaper"))

	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(*configPath)
	if err := viper.ReadInConfig(); err != nil {
		ln.FatalErr(ctx, err)
	}

	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		ln.FatalErr(ctx, err)
	}
	conf.Install = conf.Install || *install

	cakeCfg, err := buildCakeConfig(conf)
	if err != nil {
		ln.FatalErr(ctx, err)
	}

	// The simulated host polls Dequeue once per generator tick rather than
	// waiting on an event-driven wake-up, so no Watchdog is wired here; see
	// internal/watchdog for the real-timer implementation a host with its
	// own I/O loop would plug in instead.
	disc, err := cake.NewDiscipline(cakeCfg)
	if err != nil {
		ln.FatalErr(ctx, err)
	}

	gen, err := buildGenerator(conf.Sim.Flows)
	if err != nil {
		ln.FatalErr(ctx, err)
	}

	ln.Log(ctx, ln.Action("running synthetic traffic through the shaper"))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	statsInterval := time.Duration(conf.Sim.StatsIntervalS) * time.Second
	if statsInterval <= 0 {
		statsInterval = 5 * time.Second
	}
	go logStatsPeriodically(runCtx, disc, statsInterval)

	duration := time.Duration(conf.Sim.DurationS) * time.Second
	if duration <= 0 {
		duration = 30 * time.Second
	}
	host := &simhost.Host{Disc: disc, Gen: gen}
	stats := host.Run(runCtx, duration)
	cancel()

	ln.Log(ctx, ln.Info("simulation complete: sent=%d emitted=%d dropped=%d", stats.Sent, stats.Emitted, stats.Dropped))

	interf, err := net.InterfaceByName(conf.Interface)
	if err != nil {
		ln.FatalErr(ctx, err)
	}

	final := disc.DumpStats()
	rates := make([]uint64, len(final.Tins))
	for i, t := range final.Tins {
		rates[i] = t.RateBps
	}

	installer := nl.NewInstaller(uint32(interf.Index))
	tree, err := installer.Build(cakeCfg, rates)
	if err != nil {
		ln.FatalErr(ctx, err)
	}

	if !conf.Install {
		ln.Log(ctx, ln.Info("dry run: built a %d-tin qdisc tree for %s, not installing (pass -install to apply)", len(rates), conf.Interface))
		return
	}

	ln.Log(ctx, ln.Action("installing qdisc tree"))
	if err := nl.Install(tree); err != nil {
		ln.FatalErr(ctx, err)
	}
	ln.Log(ctx, ln.Info("installed %d-tin qdisc tree on %s", len(rates), conf.Interface))
}

func logStatsPeriodically(ctx context.Context, disc *cake.Discipline, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := disc.DumpStats()
			ln.Log(ctx, ln.Info("qlen=%d buffer_used=%d/%d", s.QLen, s.BufferUsed, s.BufferLimit))
		}
	}
}
