// Command cake-dump loads the same config.toml cake-shaper reads, builds
// the discipline and the netlink tree it would install, and prints both as
// JSON without touching the kernel. Useful for validating a config change
// before handing it to cake-shaper -install.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net"
	"os"
	"time"

	"github.com/spf13/viper"
	"within.website/ln"
	"within.website/ln/opname"

	"github.com/fbegyn/cake-shaper/internal/cake"
	"github.com/fbegyn/cake-shaper/internal/nl"
)

// Config mirrors the [shaper] table of cake-shaper's config.toml; the sim
// traffic profile isn't relevant to a dump, so it's left unparsed here.
type Config struct {
	Interface string
	Shaper    struct {
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
}

func main() {
	ctx := opname.With(context.Background(), "main")
	configPath := flag.String("config", "./", "directory containing config.toml")
	flag.Parse()

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

	mode, err := cake.ParseDiffservMode(conf.Shaper.DiffservMode)
	if err != nil {
		ln.FatalErr(ctx, err)
	}
	flowMode, err := cake.ParseFlowMode(conf.Shaper.FlowMode)
	if err != nil {
		ln.FatalErr(ctx, err)
	}

	cfg := cake.DefaultConfig()
	cfg.BaseRate = conf.Shaper.BaseRate
	cfg.DiffservMode = mode
	cfg.FlowMode = flowMode
	cfg.ATM = conf.Shaper.ATM
	cfg.Wash = conf.Shaper.Wash
	cfg.Overhead = conf.Shaper.Overhead
	cfg.Memory = conf.Shaper.Memory
	cfg.Seed = conf.Shaper.Seed
	if conf.Shaper.TargetMs > 0 {
		cfg.Target = time.Duration(conf.Shaper.TargetMs) * time.Millisecond
	}
	if conf.Shaper.IntervalMs > 0 {
		cfg.Interval = time.Duration(conf.Shaper.IntervalMs) * time.Millisecond
	}

	disc, err := cake.NewDiscipline(cfg)
	if err != nil {
		ln.FatalErr(ctx, err)
	}

	interf, err := net.InterfaceByName(conf.Interface)
	if err != nil {
		ln.FatalErr(ctx, err)
	}

	stats := disc.DumpStats()
	rates := make([]uint64, len(stats.Tins))
	for i, t := range stats.Tins {
		rates[i] = t.RateBps
	}

	installer := nl.NewInstaller(uint32(interf.Index))
	tree, err := installer.Build(cfg, rates)
	if err != nil {
		ln.FatalErr(ctx, err)
	}

	out := struct {
		Config cake.Config `json:"config"`
		Stats  cake.Stats  `json:"stats"`
		Tree   *nl.Node    `json:"tree"`
	}{
		Config: disc.Dump(),
		Stats:  stats,
		Tree:   tree,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		ln.FatalErr(ctx, err)
	}
}
