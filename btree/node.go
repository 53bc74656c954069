// Package btree implements a persistent B+ tree map: keys and values are
// both uint64, nodes are fixed-size records stored through an
// objectstore.ObjectStore, and put/remove/compareAndSet descend top-down,
// performing preparatory splits or merges on the child about to be entered
// so that no backtracking is ever required.
package btree

import (
	"context"

	"github.com/blockengine/blockengine/objectstore"
)

// KeyNull is the sentinel "absent" key/value/child, matching
// objectstore.KeyNull so handles and keys share one "nothing here" value.
const KeyNull uint64 = 0xFFFFFFFFFFFFFFFF

// DefaultRate is the tree's occupancy parameter N: a leaf or internal node
// holds at most 2N keys before a preparatory split is triggered, and at
// least N before a preparatory merge/redistribute is considered.
const DefaultRate = 15

const nodeHeaderSize = 12 // u64 parent_handle (reserved) + u16 leaf_flag + u16 key_count
const slotSize = 16       // u64 key + u64 value_or_child

// slotCount is 2N+2: room for up to 2N+1 real entries, plus the slot at
// index keyCount whose key is unused and whose value is the fallback
// child/right-neighbour pointer.
func slotCount(n int) int { return 2*n + 2 }

// nodeSize is the fixed on-disk record size for a tree with rate n.
func nodeSize(n int) int { return nodeHeaderSize + slotCount(n)*slotSize }

// slot is one {key, value_or_child} pair.
type slot struct {
	key   uint64
	value uint64
}

// node is the in-memory decoding of one fixed-size tree record.
type node struct {
	leaf     bool
	keyCount int
	slots    []slot // len == slotCount(n); slots[keyCount] is the fallback/right-neighbour slot
}

func newEmptyNode(n int, leaf bool) *node {
	nd := &node{leaf: leaf, keyCount: 0, slots: make([]slot, slotCount(n))}
	for i := range nd.slots {
		nd.slots[i] = slot{key: KeyNull, value: KeyNull}
	}
	return nd
}

// fallback returns the node's last slot, holding either the "keys greater
// than all present" child pointer (internal) or the right-neighbour leaf
// handle (leaf).
func (nd *node) fallback() uint64 { return nd.slots[nd.keyCount].value }

func (nd *node) setFallback(v uint64) { nd.slots[nd.keyCount].value = v }

func (t *Tree) readNode(ctx context.Context, handle uint64) (*node, error) {
	a, err := t.store.Access(ctx, handle, false)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	if _, err := a.ReadUint64(); err != nil { // parent_handle, reserved
		return nil, err
	}
	leafFlag, err := a.ReadChar()
	if err != nil {
		return nil, err
	}
	keyCount, err := a.ReadChar()
	if err != nil {
		return nil, err
	}
	nd := &node{leaf: leafFlag == 1, keyCount: int(keyCount), slots: make([]slot, slotCount(t.n))}
	for i := range nd.slots {
		k, err := a.ReadUint64()
		if err != nil {
			return nil, err
		}
		v, err := a.ReadUint64()
		if err != nil {
			return nil, err
		}
		nd.slots[i] = slot{key: k, value: v}
	}
	return nd, nil
}

func (t *Tree) writeNode(ctx context.Context, handle uint64, nd *node) error {
	a, err := t.store.Access(ctx, handle, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.WriteUint64(KeyNull); err != nil { // parent_handle, reserved
		return err
	}
	leafFlag := uint16(0)
	if nd.leaf {
		leafFlag = 1
	}
	if err := a.WriteChar(leafFlag); err != nil {
		return err
	}
	if err := a.WriteChar(uint16(nd.keyCount)); err != nil {
		return err
	}
	for _, s := range nd.slots {
		if err := a.WriteUint64(s.key); err != nil {
			return err
		}
		if err := a.WriteUint64(s.value); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) allocateNode(ctx context.Context, nd *node) (uint64, error) {
	handle, err := t.store.AllocateDirect(ctx, nodeSize(t.n))
	if err != nil {
		return 0, err
	}
	if err := t.writeNode(ctx, handle, nd); err != nil {
		return 0, err
	}
	return handle, nil
}

func (t *Tree) freeNode(ctx context.Context, handle uint64) error {
	return t.store.Free(ctx, handle)
}

// Tree is a persistent uint64->uint64 B+ tree map.
type Tree struct {
	store *objectstore.ObjectStore
	n     int
	root  uint64
}

// New allocates a fresh, empty tree (a single empty leaf as root) with the
// given rate N (DefaultRate if n <= 0) and returns it along with the
// persistent handle of its root record; callers wanting the tree to survive
// a restart should register this handle as a named root via
// objectstore.Register.
func New(ctx context.Context, store *objectstore.ObjectStore, n int) (*Tree, uint64, error) {
	if n <= 0 {
		n = DefaultRate
	}
	t := &Tree{store: store, n: n}
	root := newEmptyNode(n, true)
	root.setFallback(KeyNull)
	handle, err := t.allocateNode(ctx, root)
	if err != nil {
		return nil, 0, err
	}
	t.root = handle
	return t, handle, nil
}

// Open attaches to an existing tree rooted at rootHandle.
func Open(store *objectstore.ObjectStore, n int, rootHandle uint64) *Tree {
	if n <= 0 {
		n = DefaultRate
	}
	return &Tree{store: store, n: n, root: rootHandle}
}

// Root returns the tree's persistent root handle.
func (t *Tree) Root() uint64 { return t.root }
