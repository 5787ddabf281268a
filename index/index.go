// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: index.go — per-enclave private index maintenance
//
// Purpose:
//   - Owns one enclave's private view of the data layer: an
//     intermediate Mnode chain mirroring every data node the enclave
//     has heard about via its opchan.Ring, topped by zero or more
//     raised Inode levels that let Lookup skip over long non-deleted
//     runs instead of walking the intermediate chain one entry at a
//     time.
//   - Every write in this file runs on one goroutine (the enclave's
//     helper): Apply drains the op channel and folds each record into
//     the intermediate layer, MaintenanceTick then periodically
//     re-derives the raised levels from it. Lookup is the one read
//     path, called from the enclave's application goroutine. There is
//     no locking and no atomic access on either side.
//
// Ground truth: helper.cpp's update_intermediate_layer,
// bg_trav_mnodes/bg_mremove, bg_raise_mlevel, bg_raise_ilevel,
// bg_lower_ilevel, update_index_layer; application.cpp's
// sl_traverse_index for Lookup.
// ─────────────────────────────────────────────────────────────────────────────

package index

import (
	"hosk/arena"
	"hosk/datalayer"
	"hosk/opchan"
)

// MaxLevels bounds how many raised index levels a single enclave will
// ever build. The original bounds this at 128; a run-length has to be
// astronomically large before a binary-ish raise schedule needs more
// than a few dozen, so this is generous headroom, not a tight budget.
const MaxLevels = 32

// LowerThresholdRatio is the tall-deleted to non-deleted ratio that
// triggers dropping the lowest raised index level, matching
// update_index_layer's obj->tall_del > obj->non_del * 10.
const LowerThresholdRatio = 10

// Index is one enclave's private index. Construct with New, drain an
// opchan.Ring into it with Apply, and periodically call MaintenanceTick
// from the same goroutine.
type Index struct {
	sentinel   *Inode
	nonDel     int
	tallDel    int
	mnodeArena *arena.Arena[Mnode]
	inodeArena *arena.Arena[Inode]
}

// New builds an empty index whose sentinel intermediate node mirrors
// dataSentinel. mnodeArn and inodeArn must be this enclave's own
// index-layer arenas; Index never touches another enclave's.
func New(dataSentinel *datalayer.Node, mnodeArn *arena.Arena[Mnode], inodeArn *arena.Arena[Inode]) *Index {
	sentinelMnode := newMnode(mnodeArn.Alloc(), nil, dataSentinel, dataSentinel.Key)
	sentinelMnode.Level = 1
	sentinelInode := newInode(inodeArn.Alloc(), nil, nil, sentinelMnode)
	return &Index{
		sentinel:   sentinelInode,
		mnodeArena: mnodeArn,
		inodeArena: inodeArn,
	}
}

// Level reports the current height of the raised index, the sentinel's
// own intermediate-layer level. The coordinator polls this during the
// post-population startup handshake, waiting for it to climb to roughly
// log2 of the enclave's share of the initial population before letting
// the timed run begin.
func (x *Index) Level() uint32 {
	return x.sentinel.Intermed.Level
}

// Lookup returns the best entry point this enclave's index can offer
// for a data-layer traversal toward key: the data node of key itself if
// it has been raised, else of its nearest predecessor on the bottom
// raised level. Only raised Inode levels are searched; intermediate
// entries that have not been raised are not consulted, so with nothing
// raised Lookup returns the sentinel's data node. The caller still has
// to walk the data layer itself from there — this only shortens that walk.
func (x *Index) Lookup(key uint64) *datalayer.Node {
	item := x.sentinel
	for {
		next := item.Right
		if next == nil || next.Key > key {
			down := item.Down
			if down == nil {
				return item.Intermed.Data
			}
			item = down
			continue
		}
		if next.Key == key {
			return next.Intermed.Data
		}
		item = next
	}
}

// Apply folds one op-channel record into the intermediate layer: a
// live node records an insert (or clears a pending mark left by an
// earlier delete of the same key), a nil node records a delete.
//
// Ground truth: update_intermediate_layer.
func (x *Index) Apply(op opchan.Op) {
	item := x.sentinel
	var mnode *Mnode
	for {
		next := item.Right
		if next == nil || next.Key > op.Key {
			down := item.Down
			if down == nil {
				mnode = item.Intermed
				break
			}
			item = down
			continue
		}
		if next.Key == op.Key {
			mnode = item.Intermed
			break
		}
		item = next
	}

	for {
		next := mnode.next
		if next == nil || next.Key > op.Key {
			if op.Node != nil {
				if mnode.Key == op.Key {
					mnode.Marked = false
				} else {
					mnode.next = newMnode(x.mnodeArena.Alloc(), next, op.Node, op.Key)
				}
			} else if mnode.Key == op.Key {
				mnode.Marked = true
			}
			return
		}
		mnode = next
	}
}

// traverseMnodes walks the intermediate chain, physically dropping any
// bottom-level (never raised) node still marked, and tallying how many
// live non-deleted vs. tall-and-deleted nodes remain — the input to
// MaintenanceTick's lower-level decision.
//
// Ground truth: bg_trav_mnodes / bg_mremove.
func (x *Index) traverseMnodes() {
	x.nonDel = 0
	x.tallDel = 0
	prev := x.sentinel.Intermed
	node := prev.next
	for node != nil {
		if node.Level == 0 && node.Marked {
			prev.next = node.next
			node = prev.next
			continue
		}
		if !node.Marked {
			x.nonDel++
		} else if node.Level >= 1 {
			x.tallDel++
		}
		prev = node
		node = node.next
	}
}

// raiseBottomLevel promotes eligible level-0 runs of three consecutive
// non-deleted intermediate nodes into a new bottom Inode level.
//
// Ground truth: bg_raise_mlevel.
func (x *Index) raiseBottomLevel(startMnode *Mnode, startInode *Inode) bool {
	raised := false
	above := startInode
	abovePrev := startInode

	entryMarked := startMnode.Marked
	prev := startMnode
	node := prev.next
	if node == nil {
		return false
	}
	next := node.next
	for next != nil {
		if !entryMarked {
			if prev.Level == 0 && node.Level == 0 && next.Level == 0 {
				raised = true

				for above != nil && above.Intermed.Key < node.Key {
					above = above.Right
					if above != startInode.Right {
						abovePrev = abovePrev.Right
					}
				}

				inew := newInode(x.inodeArena.Alloc(), abovePrev.Right, nil, node)
				abovePrev.Right = inew
				node.Level = 1
				if node.Data.Level() < 1 {
					node.Data.SetLevel(1)
				}
				abovePrev, above = inew, inew
				startInode = inew
			}
		}
		prev = node
		node = next
		next = next.next
	}
	return raised
}

// raiseLevel promotes eligible runs of the level `height` raised index
// into a new level `height+1`, skipping (and unlinking) any node whose
// intermediate entry has since been marked for deletion.
//
// Ground truth: bg_raise_ilevel.
func (x *Index) raiseLevel(iprev, iprevTall *Inode, height int) bool {
	raised := false
	above := iprevTall
	abovePrev := iprevTall

	index := iprev.Right
	for index != nil {
		inext := index.Right
		if inext == nil {
			break
		}
		for index.Intermed.Marked {
			iprev.Right = inext
			if inext == nil {
				break
			}
			index = inext
			inext = index.Right
		}
		if inext == nil {
			break
		}
		if int(iprev.Intermed.Level) <= height && int(index.Intermed.Level) <= height && int(inext.Intermed.Level) <= height {
			raised = true

			for above != nil && above.Intermed.Key < index.Intermed.Key {
				above = above.Right
				if above != iprevTall.Right {
					abovePrev = abovePrev.Right
				}
			}

			inew := newInode(x.inodeArena.Alloc(), abovePrev.Right, index, index.Intermed)
			abovePrev.Right = inew
			index.Intermed.Level = uint32(height + 1)
			if index.Intermed.Data.Level() < uint32(height+1) {
				index.Intermed.Data.SetLevel(uint32(height + 1))
			}
			abovePrev, above, iprevTall = inew, inew, inew
		}
		iprev = index
		index = inext
	}
	return raised
}

// lowerLevel drops the raised index level directly beneath newLow,
// decrementing the level counter on every intermediate/data node that
// level had raised and passing each dropped Inode to the arena's Free,
// which reclaims only the most recent allocation; the others stay
// allocated until the arena is reset.
//
// Ground truth: bg_lower_ilevel.
func (x *Index) lowerLevel(newLow *Inode) {
	oldLow := newLow.Down
	for n := newLow; n != nil; n = n.Right {
		n.Down = nil
		n.Intermed.Level--
		if n.Intermed.Data.Level() > 0 {
			n.Intermed.Data.SetLevel(n.Intermed.Data.Level() - 1)
		}
	}
	for n := oldLow; n != nil; {
		next := n.Right
		x.inodeArena.Free(n)
		n = next
	}
}

// MaintenanceTick runs one full index-layer maintenance pass: physical
// intermediate-layer cleanup, then raise-from-the-bottom, then raise
// each level above it, adding a new top level whenever a raise reaches
// the current ceiling, then dropping the bottom raised level if
// deletions have accumulated too heavily beneath it.
//
// Ground truth: update_index_layer.
func (x *Index) MaintenanceTick() {
	var levels [MaxLevels]*Inode

	x.traverseMnodes()

	sentinel := x.sentinel
	inode := sentinel
	for i := int(sentinel.Intermed.Level) - 1; i >= 0; i-- {
		levels[i] = inode
		inode = inode.Down
	}

	raised := x.raiseBottomLevel(levels[0].Intermed, levels[0])
	if raised && sentinel.Intermed.Level == 1 {
		sentinel = newInode(x.inodeArena.Alloc(), nil, sentinel, sentinel.Intermed)
		sentinel.Intermed.Level++
		if sentinel.Intermed.Data.Level() < sentinel.Intermed.Level {
			sentinel.Intermed.Data.SetLevel(sentinel.Intermed.Level)
		}
		levels[1] = sentinel
		x.sentinel = sentinel
	}

	for i := 0; i < int(sentinel.Intermed.Level)-1; i++ {
		raised = x.raiseLevel(levels[i], levels[i+1], i+1)
	}

	if raised {
		sentinel = newInode(x.inodeArena.Alloc(), nil, sentinel, sentinel.Intermed)
		sentinel.Intermed.Level++
		if sentinel.Intermed.Data.Level() < sentinel.Intermed.Level {
			sentinel.Intermed.Data.SetLevel(sentinel.Intermed.Level)
		}
		x.sentinel = sentinel
	}

	if x.tallDel > x.nonDel*LowerThresholdRatio && levels[1] != nil {
		x.lowerLevel(levels[1])
	}
}
