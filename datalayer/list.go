// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: list.go — lock-free contains/insert/delete over the global chain
//
// Purpose:
//   - Implements the three data-layer primitives from sl_traverse_data /
//     sl_finish_contains / sl_finish_delete / sl_finish_insert, plus the
//     marker-splice physical unlink from node_remove.
//   - The entry point into this list (the predecessor node to start
//     walking from) always comes from the caller's per-enclave index
//     traversal; this package walks forward from there, stepping back
//     through prev only when it stands on a marker.
//
// Notes on an Open Question this package resolves (see DESIGN.md): the
// retrieved node_remove guard compares the target's value against its own
// address (node->val != node), which would make it a no-op for every
// known call site — the source tree mixes multiple revisions of this
// file. This package implements the guard against the logically-deleted
// state (value == nil) instead, which is what the function body (install
// a marker, then splice prev past it) and the doc comment ("the node we
// are attempting to delete") both actually require, and what spec.md's
// own state-machine narrative describes.
// ─────────────────────────────────────────────────────────────────────────────

package datalayer

import (
	"unsafe"

	"hosk/arena"
)

// OpType selects which of the three data-layer primitives a traversal
// finishes with.
type OpType int

const (
	OpContains OpType = iota
	OpDelete
	OpInsert
)

// List is the globally shared sorted doubly-linked chain. One List exists
// per run; every enclave traverses the same chain, entering it at
// whatever predecessor its private index resolved to.
type List struct {
	sentinel *Node
}

// NewList builds a List whose sentinel occupies slot. The sentinel holds
// no value and sits at the left end of the chain: Key 0, no prev.
func NewList(slot *Node) *List {
	return &List{sentinel: newNode(slot, markerKey, nil, nil, 0)}
}

// Sentinel returns the list's left-most node, the universal starting
// point for a traversal that has no better index-supplied entry point.
func (l *List) Sentinel() *Node { return l.sentinel }

// Size walks the chain from the sentinel and counts nodes currently
// holding a live value, skipping markers and logically deleted nodes.
// A concurrent run can observe a moving target; the coordinator only
// calls this at a quiescent point (pre-run, post-teardown). Mirrors
// data_layer_size called with its "exclude deleted" flag set.
func (l *List) Size() int {
	count := 0
	for n := l.sentinel.Next(); n != nil; n = n.Next() {
		if _, ok := n.Present(); ok {
			count++
		}
	}
	return count
}

// ResetLevels zeroes the raised-index height recorded on the sentinel
// and every live node in the chain. The coordinator calls this once
// between the population phase and the timed run, discarding the
// skewed per-node heights population's helper threads raised before
// every enclave rebuilds its index from a clean slate. Mirrors the
// call site of reset_node_levels in test.cpp's main().
func (l *List) ResetLevels() {
	l.sentinel.SetLevel(0)
	for n := l.sentinel.Next(); n != nil; n = n.Next() {
		n.SetLevel(0)
	}
}

// Do performs one data-layer operation, starting the walk at entry (which
// must have key <= target key, normally the node an index traversal
// resolved to). arn services any node allocation the operation needs and
// must be the calling enclave's data-layer arena. Returns:
//
//	OpContains: 1 found, 0 not found.
//	OpDelete:   1 deleted, 0 already absent.
//	OpInsert:   1 inserted/undeleted, 0 already present; outNode is the
//	            live node the caller should publish on its op channel.
func (l *List) Do(entry *Node, key uint64, val any, optype OpType, arn *arena.Arena[Node], enclave uint32) (result int, outNode *Node) {
	node := entry
	for {
		for node.loadVal() == unsafe.Pointer(node) {
			node = node.Prev()
		}
		nodeVal := node.loadVal()
		next := node.Next()
		if next != nil {
			nextVal := next.loadVal()
			if nextVal == nil || nextVal == unsafe.Pointer(next) {
				l.Retire(node, next, arn, enclave)
				continue
			}
		}
		if next == nil || next.Key > key {
			switch optype {
			case OpContains:
				result = finishContains(key, node, nodeVal)
			case OpDelete:
				result = finishDelete(key, node, nodeVal)
			case OpInsert:
				result, outNode = l.finishInsert(key, val, node, nodeVal, next, arn, enclave)
			}
			if result != -1 {
				break
			}
			continue
		}
		node = next
	}
	return result, outNode
}

// Contains is a thin OpContains wrapper. arn/enclave are still required:
// a read can incidentally discover a logically deleted successor and
// trigger Retire, which allocates a marker from the calling enclave's
// own arena.
func (l *List) Contains(entry *Node, key uint64, arn *arena.Arena[Node], enclave uint32) bool {
	result, _ := l.Do(entry, key, nil, OpContains, arn, enclave)
	return result == 1
}

// Delete logically deletes key, returning false if it was already absent.
func (l *List) Delete(entry *Node, key uint64, arn *arena.Arena[Node], enclave uint32) bool {
	result, _ := l.Do(entry, key, nil, OpDelete, arn, enclave)
	return result == 1
}

// Insert inserts or undeletes key with value val, returning the live node
// and true on success, or (nil, false) if key was already present.
func (l *List) Insert(entry *Node, key uint64, val any, arn *arena.Arena[Node], enclave uint32) (*Node, bool) {
	result, n := l.Do(entry, key, val, OpInsert, arn, enclave)
	return n, result == 1
}

func finishContains(key uint64, node *Node, nodeVal unsafe.Pointer) int {
	if node.Key == key && nodeVal != nil {
		return 1
	}
	return 0
}

func finishDelete(key uint64, node *Node, nodeVal unsafe.Pointer) int {
	if node.Key != key {
		return 0
	}
	if nodeVal == nil {
		return 0
	}
	for {
		v := node.loadVal()
		if v == nil || v == unsafe.Pointer(node) {
			return 0
		}
		if node.casVal(v, nil) {
			return 1
		}
	}
}

func (l *List) finishInsert(key uint64, val any, node *Node, nodeVal unsafe.Pointer, next *Node, arn *arena.Arena[Node], enclave uint32) (int, *Node) {
	if node.Key == key {
		if nodeVal != nil {
			return 0, nil
		}
		boxed := unsafe.Pointer(&boxedValue{v: val})
		if node.casVal(nil, boxed) {
			return 1, node
		}
		return -1, nil
	}

	slot := arn.Alloc()
	created := Live(slot, key, val, node, next, enclave)
	if node.casNext(next, created) {
		if next != nil {
			next.storePrev(created)
		}
		return 1, created
	}
	arn.Free(slot)
	return -1, nil
}

// Retire attempts to physically unlink node, a position found to be
// logically deleted (or already marked) while prev was being examined as
// its predecessor. It is safe to call speculatively on an already-marked
// node: the guard below makes that a no-op.
//
// Ground truth: helper.cpp's node_remove, with the value-identity guard
// corrected per the Open Question note above.
func (l *List) Retire(prev, node *Node, arn *arena.Arena[Node], enclave uint32) {
	if node.loadVal() != nil || node.Key == markerKey {
		return
	}

	ptr := node.Next()
	for ptr == nil || ptr.Key != markerKey {
		slot := arn.Alloc()
		marker := Marker(slot, node, ptr, enclave)
		if node.casNext(ptr, marker) {
			ptr = marker
			break
		}
		arn.Free(slot)
		ptr = node.Next()
	}

	if prev.Next() != node || prev.isNonSentinelMarker() {
		return
	}
	prev.casNext(node, ptr.Next())
}
