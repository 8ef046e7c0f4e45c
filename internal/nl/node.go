package nl

import (
	"fmt"

	"github.com/florianl/go-tc"
)

// Node is one qdisc, class, or filter in the tree the installer builds for
// an interface: an HFSC root shaping the link as a whole, one HFSC class
// per cake tin dividing its bandwidth, and one fq_codel leaf qdisc per tin
// doing the actual per-flow queuing and AQM that class carries.
type Node struct {
	Type     string // "qdisc" or "class"; ApplyNode/DeleteNode reject any other type
	Object   tc.Object
	Children []*Node
}

// NewNode wraps a tc.Object as a tree node of the given type.
func NewNode(typ string, object tc.Object) *Node {
	return &Node{Type: typ, Object: object}
}

func (tr *Node) addChild(n *Node) {
	tr.Children = append(tr.Children, n)
}

// isChild reports whether n's parent handle is tr's own handle.
func (tr Node) isChild(n Node) bool {
	return n.Object.Msg.Parent == tr.Object.Msg.Handle
}

// FindChildren splits nodes into tr's direct children and everything else.
func (tr *Node) FindChildren(nodes []*Node) (children, leftover []*Node, hasChild bool) {
	for _, v := range nodes {
		if tr.isChild(*v) {
			hasChild = true
			children = append(children, v)
			continue
		}
		leftover = append(leftover, v)
	}
	return children, leftover, hasChild
}

// ComposeChildren recursively attaches nodes to tr wherever their parent
// handle matches, returning whatever never found a home in the tree.
func (tr *Node) ComposeChildren(nodes []*Node) (leftover []*Node) {
	children, leftover, hasChild := tr.FindChildren(nodes)
	if hasChild {
		for _, c := range children {
			tr.addChild(c)
		}
	}
	for _, child := range tr.Children {
		leftover = child.ComposeChildren(leftover)
	}
	return leftover
}

// FindRootNode returns the node whose parent handle is tc.HandleRoot.
func FindRootNode(nodes []*Node) (root *Node, index int) {
	for i, v := range nodes {
		if v.Object.Msg.Parent == tc.HandleRoot {
			return v, i
		}
	}
	return nil, -1
}

// ComposeTree finds the root among nodes and attaches everything else under
// it by parent handle.
func ComposeTree(nodes []*Node) (*Node, error) {
	root, index := FindRootNode(nodes)
	if root == nil {
		return nil, fmt.Errorf("nl: no node with parent tc.HandleRoot")
	}
	rest := append(append([]*Node{}, nodes[:index]...), nodes[index+1:]...)
	root.ComposeChildren(rest)
	return root, nil
}

// ApplyNode replaces (or creates) the tc object this node carries, then
// recurses into its children. A qdisc must exist before its classes can be
// attached, and a class before its own leaf qdisc, so children are always
// applied after their parent.
func (tr *Node) ApplyNode(tcnl *tc.Tc) error {
	switch tr.Type {
	case "qdisc":
		if err := tcnl.Qdisc().Replace(&tr.Object); err != nil {
			return fmt.Errorf("nl: replace qdisc on ifindex %d: %w", tr.Object.Ifindex, err)
		}
	case "class":
		if err := tcnl.Class().Replace(&tr.Object); err != nil {
			return fmt.Errorf("nl: replace class on ifindex %d: %w", tr.Object.Ifindex, err)
		}
	default:
		return fmt.Errorf("nl: unknown node type %q", tr.Type)
	}
	for _, child := range tr.Children {
		if err := child.ApplyNode(tcnl); err != nil {
			return err
		}
	}
	return nil
}

// DeleteNode removes the tc object this node carries, after first removing
// every child (the kernel refuses to delete a qdisc or class with live
// children).
func (tr *Node) DeleteNode(tcnl *tc.Tc) error {
	for _, child := range tr.Children {
		if err := child.DeleteNode(tcnl); err != nil {
			return err
		}
	}
	switch tr.Type {
	case "qdisc":
		if err := tcnl.Qdisc().Delete(&tr.Object); err != nil {
			return fmt.Errorf("nl: delete qdisc on ifindex %d: %w", tr.Object.Ifindex, err)
		}
	case "class":
		if err := tcnl.Class().Delete(&tr.Object); err != nil {
			return fmt.Errorf("nl: delete class on ifindex %d: %w", tr.Object.Ifindex, err)
		}
	default:
		return fmt.Errorf("nl: unknown node type %q", tr.Type)
	}
	return nil
}
