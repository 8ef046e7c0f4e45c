// Package nl translates a configured cake engine into a real netlink qdisc
// tree. The kernel has no native CAKE qdisc exposed through go-tc's object
// model, so the installer approximates the same tin/flow split with
// primitives go-tc does carry: an HFSC root dividing bandwidth across
// classes the way cake's tins do, and one fq_codel leaf per class doing the
// per-flow AQM cake's own flow queue does internally. Grounded in the
// teacher's qos.go/config_class.go (HFSC curve helpers, tc.Object shapes)
// and tree.go/nodes.go (the Node tree and its Apply/Delete walk).
package nl

import (
	"fmt"

	"github.com/florianl/go-tc"
	"github.com/florianl/go-tc/core"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"

	"github.com/fbegyn/cake-shaper/internal/cake"
)

// Installer builds and optionally applies the qdisc tree standing in for a
// cake.Discipline on a given interface.
type Installer struct {
	Ifindex uint32
}

// NewInstaller targets the interface at ifindex (net.Interface.Index).
func NewInstaller(ifindex uint32) *Installer {
	return &Installer{Ifindex: uint32(ifindex)}
}

// Build constructs the tree without touching netlink: a root HFSC qdisc,
// one HFSC class per tin sized by tinRates (bytes/sec, as DumpStats()
// reports per tin), each carrying an fq_codel leaf tuned from cfg's CoDel
// parameters. Callers that only want to inspect or print the tree (the
// default dry-run path, without -install) stop here.
func (ins *Installer) Build(cfg cake.Config, tinRates []uint64) (*Node, error) {
	if len(tinRates) == 0 {
		return nil, fmt.Errorf("nl: at least one tin is required to build a tree")
	}
	if len(tinRates) > 0xfff {
		return nil, fmt.Errorf("nl: %d tins exceeds the minor-handle space", len(tinRates))
	}

	root := NewNode("qdisc", tc.Object{
		Msg: tc.Msg{
			Family:  unix.AF_UNSPEC,
			Ifindex: ins.Ifindex,
			Handle:  core.BuildHandle(0x1, 0x0),
			Parent:  tc.HandleRoot,
		},
		Attribute: tc.Attribute{
			Kind:     "hfsc",
			HfscQOpt: &tc.HfscQOpt{DefCls: 1},
		},
	})

	targetUs := uint32(cfg.Target.Microseconds())
	intervalUs := uint32(cfg.Interval.Microseconds())
	ecn := uint32(0)
	limit := uint32(10240)
	flows := uint32(1024)
	if cfg.ATM {
		// ATM cell framing inflates effective packet size; give fq_codel
		// more headroom so cell rounding alone doesn't trip the limit.
		limit *= 2
	}

	for i, rate := range tinRates {
		minor := uint32(i + 1)

		class := NewNode("class", tc.Object{
			Msg: tc.Msg{
				Family:  unix.AF_UNSPEC,
				Ifindex: ins.Ifindex,
				Handle:  core.BuildHandle(0x1, minor),
				Parent:  core.BuildHandle(0x1, 0x0),
			},
			Attribute: tc.Attribute{
				Kind: "hfsc",
				Hfsc: &tc.Hfsc{},
			},
		})
		SetSC(class.Object.Attribute.Hfsc, 0, 0, bpsToBits(rate))
		root.addChild(class)

		leaf := NewNode("qdisc", tc.Object{
			Msg: tc.Msg{
				Family:  unix.AF_UNSPEC,
				Ifindex: ins.Ifindex,
				Handle:  core.BuildHandle(0x10+minor, 0x0),
				Parent:  core.BuildHandle(0x1, minor),
			},
			Attribute: tc.Attribute{
				Kind: "fq_codel",
				FqCodel: &tc.FqCodel{
					Target:   &targetUs,
					Interval: &intervalUs,
					ECN:      &ecn,
					Limit:    &limit,
					Flows:    &flows,
				},
			},
		})
		class.addChild(leaf)
	}

	return root, nil
}

// Install opens a netlink route/tc socket, applies tree, and closes the
// socket again. Left unused unless the host explicitly asks to go beyond a
// dry run: nothing in this package calls it on its own.
func Install(tree *Node) error {
	rtnl, err := tc.Open(&tc.Config{})
	if err != nil {
		return fmt.Errorf("nl: open netlink socket: %w", err)
	}
	defer rtnl.Close()

	if err := rtnl.SetOption(netlink.ExtendedAcknowledge, true); err != nil {
		return fmt.Errorf("nl: enable extended acks: %w", err)
	}
	return tree.ApplyNode(rtnl)
}

// Uninstall opens a netlink socket and deletes tree's root, and with it
// every class and leaf qdisc hung off it.
func Uninstall(tree *Node) error {
	rtnl, err := tc.Open(&tc.Config{})
	if err != nil {
		return fmt.Errorf("nl: open netlink socket: %w", err)
	}
	defer rtnl.Close()

	return tree.DeleteNode(rtnl)
}
