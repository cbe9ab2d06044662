// Package loadorder owns the ordered category/mod tree behind the load-order
// editor. All structural mutation goes through the Model so that sibling
// indices stay dense and zero-based after every operation.
package loadorder

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"losort/internal/domain"
)

// UnsortedName is the reserved category holding entries that have not been
// bucketed yet. It is the only valid source set for recommendation input.
const UnsortedName = "UNSORTED"

// Append as an index places a node after the current last child.
const Append = -1

var (
	ErrCyclicMove  = errors.New("cannot move a node into its own subtree")
	ErrUnknownNode = errors.New("unknown node")
	ErrNotCategory = errors.New("node is not a category")
)

type FoldState int

const (
	Expanded FoldState = iota
	Collapsed
)

type node struct {
	id          string
	name        string
	kind        domain.NodeKind
	description string
	fold        FoldState
	// parent is a non-owning id reference; children slices own their nodes.
	parent   string
	index    int
	children []*node
}

// NodeView is a read-only snapshot of one node. Engines work on views so the
// tree is never mutated behind the Model's back.
type NodeView struct {
	ID          string
	Name        string
	Kind        domain.NodeKind
	Description string
	Fold        FoldState
	ParentID    string
	Index       int
}

// Model is the root owner of the load order tree. It is not safe for
// concurrent mutation; callers serialize access (see app.Session).
type Model struct {
	root  *node
	nodes map[string]*node
}

func New() *Model {
	return &Model{
		root:  &node{kind: domain.KindCategory},
		nodes: make(map[string]*node),
	}
}

// LoadFromRecords rebuilds a whole tree from the flat persistence shape.
// The records' Index fields decide sibling order; gaps are tolerated on load
// and renumbered densely. The returned model is complete or the error leaves
// nothing half-built.
func LoadFromRecords(records []domain.Record) (*Model, error) {
	m := New()
	for _, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("record %q has empty id", r.Name)
		}
		if _, ok := m.nodes[r.ID]; ok {
			return nil, fmt.Errorf("duplicate record id %s", r.ID)
		}
		if r.Kind != domain.KindMod && r.Kind != domain.KindCategory {
			return nil, fmt.Errorf("record %s has unknown kind %q", r.ID, r.Kind)
		}
		m.nodes[r.ID] = &node{
			id:          r.ID,
			name:        r.Name,
			kind:        r.Kind,
			description: r.Description,
			parent:      r.ParentID,
			index:       r.Index,
		}
	}
	for _, r := range records {
		n := m.nodes[r.ID]
		parent := m.root
		if r.ParentID != "" {
			p, ok := m.nodes[r.ParentID]
			if !ok {
				return nil, fmt.Errorf("record %s references missing parent %s", r.ID, r.ParentID)
			}
			if p.kind != domain.KindCategory {
				return nil, fmt.Errorf("record %s has mod parent %s", r.ID, r.ParentID)
			}
			parent = p
		}
		parent.children = append(parent.children, n)
	}
	m.sortLoadedChildren(m.root)
	return m, nil
}

func (m *Model) sortLoadedChildren(n *node) {
	sort.SliceStable(n.children, func(i, j int) bool {
		return n.children[i].index < n.children[j].index
	})
	m.renumber(n)
	for _, c := range n.children {
		m.sortLoadedChildren(c)
	}
}

// ExportToRecords flattens the tree back into the persistence shape,
// pre-order, parents before children.
func (m *Model) ExportToRecords() []domain.Record {
	var out []domain.Record
	var walk func(n *node)
	walk = func(n *node) {
		for _, c := range n.children {
			out = append(out, domain.Record{
				ID:          c.id,
				Name:        c.name,
				Kind:        c.kind,
				ParentID:    c.parent,
				Index:       c.index,
				Description: c.description,
			})
			walk(c)
		}
	}
	walk(m.root)
	return out
}

// Insert creates a new node under parentID (empty for root) at the given
// index and returns its generated id.
func (m *Model) Insert(name string, kind domain.NodeKind, parentID string, index int) (string, error) {
	parent, err := m.category(parentID)
	if err != nil {
		return "", err
	}
	n := &node{
		id:     uuid.NewString(),
		name:   name,
		kind:   kind,
		parent: parentID,
	}
	m.nodes[n.id] = n
	m.insertAt(parent, []*node{n}, index)
	return n.id, nil
}

// Remove detaches nodeID and destroys its entire subtree.
func (m *Model) Remove(nodeID string) error {
	n, ok := m.nodes[nodeID]
	if !ok {
		return fmt.Errorf("remove %s: %w", nodeID, ErrUnknownNode)
	}
	parent := m.parentOf(n)
	m.detach(parent, n)
	m.renumber(parent)
	m.forget(n)
	return nil
}

// Move relocates a single node. See MoveRange for index semantics.
func (m *Model) Move(nodeID, newParentID string, newIndex int) error {
	return m.MoveRange([]string{nodeID}, newParentID, newIndex)
}

// MoveRange atomically relocates a set of nodes under newParentID, preserving
// their current relative order regardless of the order ids are passed in.
// newIndex is the position within the target's children after the moved nodes
// have been detached; Append places them last. Either every named node moves
// or the tree is left untouched.
func (m *Model) MoveRange(nodeIDs []string, newParentID string, newIndex int) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	parent, err := m.category(newParentID)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(nodeIDs))
	moving := make([]*node, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if seen[id] {
			return fmt.Errorf("move range: duplicate id %s", id)
		}
		seen[id] = true
		n, ok := m.nodes[id]
		if !ok {
			return fmt.Errorf("move %s: %w", id, ErrUnknownNode)
		}
		if n.id == newParentID || m.isDescendant(parent, n) {
			return fmt.Errorf("move %s into %s: %w", id, newParentID, ErrCyclicMove)
		}
		moving = append(moving, n)
	}

	// Normalize to the nodes' current relative order in the tree.
	pos := m.positions()
	sort.SliceStable(moving, func(i, j int) bool {
		return pos[moving[i].id] < pos[moving[j].id]
	})

	touched := map[*node]bool{}
	for _, n := range moving {
		p := m.parentOf(n)
		m.detach(p, n)
		touched[p] = true
	}
	m.insertAt(parent, moving, newIndex)
	for p := range touched {
		m.renumber(p)
	}
	return nil
}

// SetFold records whether a category's children are visible in the flattened
// view. Mods cannot fold.
func (m *Model) SetFold(categoryID string, state FoldState) error {
	n, ok := m.nodes[categoryID]
	if !ok {
		return fmt.Errorf("set fold %s: %w", categoryID, ErrUnknownNode)
	}
	if n.kind != domain.KindCategory {
		return fmt.Errorf("set fold %s: %w", categoryID, ErrNotCategory)
	}
	n.fold = state
	return nil
}

// SetDescription stamps extracted description text onto a node.
func (m *Model) SetDescription(nodeID, text string) error {
	n, ok := m.nodes[nodeID]
	if !ok {
		return fmt.Errorf("set description %s: %w", nodeID, ErrUnknownNode)
	}
	n.description = text
	return nil
}

// ChildrenOf returns the ordered direct children of a category, or of the
// root when nodeID is empty.
func (m *Model) ChildrenOf(nodeID string) ([]NodeView, error) {
	parent, err := m.category(nodeID)
	if err != nil {
		return nil, err
	}
	out := make([]NodeView, 0, len(parent.children))
	for _, c := range parent.children {
		out = append(out, m.view(c))
	}
	return out, nil
}

// Get returns a snapshot of one node.
func (m *Model) Get(nodeID string) (NodeView, bool) {
	n, ok := m.nodes[nodeID]
	if !ok {
		return NodeView{}, false
	}
	return m.view(n), true
}

// Position returns the node's place in the pre-order walk of the whole tree.
// Used to order batch operations by the entries' current relative order.
func (m *Model) Position(nodeID string) (int, bool) {
	p, ok := m.positions()[nodeID]
	return p, ok
}

// VisibleOrder flattens the tree the way the editor shows it: collapsed
// categories contribute themselves but none of their children. Shift-range
// selection is computed over this ordering.
func (m *Model) VisibleOrder() []NodeView {
	var out []NodeView
	var walk func(n *node)
	walk = func(n *node) {
		for _, c := range n.children {
			out = append(out, m.view(c))
			if c.kind == domain.KindCategory && c.fold == Collapsed {
				continue
			}
			walk(c)
		}
	}
	walk(m.root)
	return out
}

// Unsorted returns the reserved UNSORTED category if present among the root
// children.
func (m *Model) Unsorted() (NodeView, bool) {
	for _, c := range m.root.children {
		if c.kind == domain.KindCategory && c.name == UnsortedName {
			return m.view(c), true
		}
	}
	return NodeView{}, false
}

// EnsureUnsorted returns the UNSORTED category id, creating the category at
// the end of the root sequence if it does not exist yet.
func (m *Model) EnsureUnsorted() string {
	if v, ok := m.Unsorted(); ok {
		return v.ID
	}
	id, _ := m.Insert(UnsortedName, domain.KindCategory, "", Append)
	return id
}

func (m *Model) view(n *node) NodeView {
	return NodeView{
		ID:          n.id,
		Name:        n.name,
		Kind:        n.kind,
		Description: n.description,
		Fold:        n.fold,
		ParentID:    n.parent,
		Index:       n.index,
	}
}

func (m *Model) category(id string) (*node, error) {
	if id == "" {
		return m.root, nil
	}
	n, ok := m.nodes[id]
	if !ok {
		return nil, fmt.Errorf("parent %s: %w", id, ErrUnknownNode)
	}
	if n.kind != domain.KindCategory {
		return nil, fmt.Errorf("parent %s: %w", id, ErrNotCategory)
	}
	return n, nil
}

func (m *Model) parentOf(n *node) *node {
	if n.parent == "" {
		return m.root
	}
	return m.nodes[n.parent]
}

// isDescendant reports whether candidate sits inside ancestor's subtree.
func (m *Model) isDescendant(candidate, ancestor *node) bool {
	for p := candidate; p != nil && p != m.root; p = m.nodes[p.parent] {
		if p == ancestor {
			return true
		}
		if p.parent == "" {
			return false
		}
	}
	return false
}

func (m *Model) detach(parent, n *node) {
	for i, c := range parent.children {
		if c == n {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			return
		}
	}
}

func (m *Model) insertAt(parent *node, block []*node, index int) {
	if index == Append || index > len(parent.children) {
		index = len(parent.children)
	}
	if index < 0 {
		index = 0
	}
	rest := append([]*node{}, parent.children[index:]...)
	parent.children = append(parent.children[:index], block...)
	parent.children = append(parent.children, rest...)
	parentID := parent.id
	for _, n := range block {
		n.parent = parentID
	}
	m.renumber(parent)
}

// renumber restores the dense zero-based index invariant for one sibling
// sequence.
func (m *Model) renumber(parent *node) {
	for i, c := range parent.children {
		c.index = i
	}
}

func (m *Model) forget(n *node) {
	delete(m.nodes, n.id)
	for _, c := range n.children {
		m.forget(c)
	}
}

func (m *Model) positions() map[string]int {
	pos := make(map[string]int, len(m.nodes))
	i := 0
	var walk func(n *node)
	walk = func(n *node) {
		for _, c := range n.children {
			pos[c.id] = i
			i++
			walk(c)
		}
	}
	walk(m.root)
	return pos
}
