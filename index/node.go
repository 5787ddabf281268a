// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: node.go — per-enclave private index node shapes
//
// Purpose:
//   - Defines the two node shapes that make up an enclave's private
//     index: Mnode, the intermediate layer laid directly over the
//     data layer (one Mnode per non-deleted data node this enclave
//     has observed), and Inode, the raised skip-list-style index
//     built on top of it.
//
// Notes:
//   - Unlike datalayer.Node, neither shape has atomic accessors: an
//     enclave's index is written only by that enclave's own helper
//     thread (see helper.cpp's own comment on bg_mremove: "since this
//     operates on the intermediate layer alone, no synchronization
//     techniques are needed"). The application thread's Index.Lookup
//     reads Inode fields with plain loads as well.
// ─────────────────────────────────────────────────────────────────────────────

package index

import "hosk/datalayer"

// Mnode is one intermediate-layer entry: a private mirror of a single
// data-layer node, extended with the marked-for-deletion bit the
// helper flips before physically unlinking it from the intermediate
// chain (bg_mremove).
type Mnode struct {
	next   *Mnode
	Data   *datalayer.Node
	Key    uint64
	Marked bool
	Level  uint32
	_      [32]byte // pad to a 64-byte cache line
}

func newMnode(slot *Mnode, next *Mnode, data *datalayer.Node, key uint64) *Mnode {
	slot.next = next
	slot.Data = data
	slot.Key = key
	slot.Marked = false
	slot.Level = 0
	return slot
}

// Inode is one raised-index-layer entry: Right links along its own
// level, Down links to the entry directly beneath it (either another
// Inode level or, at the bottom, nothing — the bottom level's search
// terminates at Intermed directly).
type Inode struct {
	Right    *Inode
	Down     *Inode
	Intermed *Mnode
	Key      uint64
	_        [32]byte // pad to a 64-byte cache line
}

func newInode(slot *Inode, right, down *Inode, intermed *Mnode) *Inode {
	slot.Right = right
	slot.Down = down
	slot.Intermed = intermed
	slot.Key = intermed.Key
	return slot
}
