// Package selection turns discrete user gestures into selection state and
// load-order mutations. Gestures are immutable values so the reordering
// logic stays independent of any widget toolkit or event loop.
package selection

import (
	"errors"
	"sort"

	"losort/internal/loadorder"
)

// Gesture is one user interaction on the flattened load-order view.
type Gesture interface {
	isGesture()
}

// Click replaces the selection with the clicked node and re-anchors there.
type Click struct{ ID string }

// CtrlClick toggles membership of the clicked node without moving the anchor.
type CtrlClick struct{ ID string }

// ShiftClick selects the contiguous visible range between the anchor and the
// clicked node.
type ShiftClick struct{ ID string }

// Drop ends a drag: the whole selection moves under TargetParentID at
// TargetIndex (position after the dragged nodes are detached). OriginID is
// the node the drag started on and must be part of the selection.
type Drop struct {
	OriginID       string
	TargetParentID string
	TargetIndex    int
}

// MoveUp and MoveDown are the keyboard reorder gestures: shift the selection
// one position within its sibling sequence, clamped at the ends.
type MoveUp struct{}
type MoveDown struct{}

func (Click) isGesture()      {}
func (CtrlClick) isGesture()  {}
func (ShiftClick) isGesture() {}
func (Drop) isGesture()       {}
func (MoveUp) isGesture()     {}
func (MoveDown) isGesture()   {}

// Engine holds transient selection state over one model. Selection is never
// persisted; ids that vanish from the model are pruned lazily.
type Engine struct {
	model    *loadorder.Model
	selected map[string]bool
	anchor   string
}

func New(model *loadorder.Model) *Engine {
	return &Engine{model: model, selected: make(map[string]bool)}
}

// Selected returns the selected ids in their current tree order. Nodes
// hidden by a collapsed ancestor stay selected; visibility only matters for
// shift-range computation.
func (e *Engine) Selected() []string {
	e.prune()
	out := make([]string, 0, len(e.selected))
	for id := range e.selected {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, _ := e.model.Position(out[i])
		pj, _ := e.model.Position(out[j])
		return pi < pj
	})
	return out
}

// Anchor returns the shift-range anchor id, empty when nothing is anchored.
func (e *Engine) Anchor() string {
	e.prune()
	return e.anchor
}

// Apply consumes one gesture. Gestures referencing ids that no longer exist
// are ignored silently; only structural errors from the model (cyclic moves)
// surface to the caller.
func (e *Engine) Apply(g Gesture) error {
	e.prune()
	switch g := g.(type) {
	case Click:
		if _, ok := e.model.Get(g.ID); !ok {
			return nil
		}
		e.selected = map[string]bool{g.ID: true}
		e.anchor = g.ID
	case CtrlClick:
		if _, ok := e.model.Get(g.ID); !ok {
			return nil
		}
		if e.selected[g.ID] {
			delete(e.selected, g.ID)
		} else {
			e.selected[g.ID] = true
		}
	case ShiftClick:
		e.applyShiftClick(g.ID)
	case Drop:
		return e.applyDrop(g)
	case MoveUp:
		return e.applyKeyboardMove(-1)
	case MoveDown:
		return e.applyKeyboardMove(+1)
	}
	return nil
}

func (e *Engine) applyShiftClick(id string) {
	if _, ok := e.model.Get(id); !ok {
		return
	}
	if e.anchor == "" {
		e.selected = map[string]bool{id: true}
		e.anchor = id
		return
	}
	visible := e.model.VisibleOrder()
	anchorPos, clickPos := -1, -1
	for i, v := range visible {
		if v.ID == e.anchor {
			anchorPos = i
		}
		if v.ID == id {
			clickPos = i
		}
	}
	if anchorPos == -1 || clickPos == -1 {
		// Anchor or target hidden by a collapsed ancestor; fall back to a
		// plain click on the target.
		e.selected = map[string]bool{id: true}
		e.anchor = id
		return
	}
	lo, hi := anchorPos, clickPos
	if lo > hi {
		lo, hi = hi, lo
	}
	e.selected = make(map[string]bool, hi-lo+1)
	for _, v := range visible[lo : hi+1] {
		e.selected[v.ID] = true
	}
}

func (e *Engine) applyDrop(g Drop) error {
	ids := e.Selected()
	if len(ids) == 0 || !e.selected[g.OriginID] {
		return nil
	}
	err := e.model.MoveRange(ids, g.TargetParentID, g.TargetIndex)
	if errors.Is(err, loadorder.ErrUnknownNode) {
		return nil
	}
	return err
}

// applyKeyboardMove shifts the selection one slot within its sibling
// sequence. The whole gesture is a no-op when the selection spans parents or
// already touches the boundary.
func (e *Engine) applyKeyboardMove(dir int) error {
	ids := e.Selected()
	if len(ids) == 0 {
		return nil
	}
	parentID := ""
	first, last := -1, -1
	for i, id := range ids {
		v, ok := e.model.Get(id)
		if !ok {
			return nil
		}
		if i == 0 {
			parentID = v.ParentID
			first, last = v.Index, v.Index
			continue
		}
		if v.ParentID != parentID {
			return nil
		}
		if v.Index < first {
			first = v.Index
		}
		if v.Index > last {
			last = v.Index
		}
	}
	siblings, err := e.model.ChildrenOf(parentID)
	if err != nil {
		return nil
	}
	var target int
	if dir < 0 {
		if first == 0 {
			return nil
		}
		target = first - 1
	} else {
		if last == len(siblings)-1 {
			return nil
		}
		target = last + 2 - len(ids)
	}
	err = e.model.MoveRange(ids, parentID, target)
	if errors.Is(err, loadorder.ErrUnknownNode) {
		return nil
	}
	return err
}

func (e *Engine) prune() {
	for id := range e.selected {
		if _, ok := e.model.Get(id); !ok {
			delete(e.selected, id)
		}
	}
	if e.anchor != "" {
		if _, ok := e.model.Get(e.anchor); !ok {
			e.anchor = ""
		}
	}
}
