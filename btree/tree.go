package btree

import "context"

// Get returns the value stored under key, or KeyNull if key is absent.
func (t *Tree) Get(ctx context.Context, key uint64) (uint64, error) {
	handle := t.root
	for {
		nd, err := t.readNode(ctx, handle)
		if err != nil {
			return KeyNull, err
		}
		if nd.leaf {
			for i := 0; i < nd.keyCount; i++ {
				if nd.slots[i].key == key {
					return nd.slots[i].value, nil
				}
			}
			return KeyNull, nil
		}
		handle = nd.slots[childSlotIndex(nd, key)].value
	}
}

// Put unconditionally sets key to val, inserting it if absent.
func (t *Tree) Put(ctx context.Context, key, val uint64) error {
	_, err := t.mutate(ctx, key, nil, val)
	return err
}

// Remove deletes key if present, reporting whether anything was removed.
func (t *Tree) Remove(ctx context.Context, key uint64) (bool, error) {
	return t.mutate(ctx, key, nil, KeyNull)
}

// TryPut inserts key only if it is currently absent.
func (t *Tree) TryPut(ctx context.Context, key, val uint64) (bool, error) {
	absent := KeyNull
	return t.mutate(ctx, key, &absent, val)
}

// TryRemove deletes key only if its current value equals expected.
func (t *Tree) TryRemove(ctx context.Context, key, expected uint64) (bool, error) {
	return t.mutate(ctx, key, &expected, KeyNull)
}

// CompareAndSet conditionally updates key: if newVal == KeyNull this is a
// conditional removal; if expected == KeyNull this is a conditional fresh
// insert; otherwise it is a conditional replace.
func (t *Tree) CompareAndSet(ctx context.Context, key, expected, newVal uint64) (bool, error) {
	return t.mutate(ctx, key, &expected, newVal)
}

// mutate is the shared top-down engine behind Put/Remove/TryPut/TryRemove/
// CompareAndSet: expected == nil means "no condition" (blind put/remove);
// newVal == KeyNull means the operation is a removal.
func (t *Tree) mutate(ctx context.Context, key uint64, expected *uint64, newVal uint64) (bool, error) {
	inserting := newVal != KeyNull

	root, err := t.readNode(ctx, t.root)
	if err != nil {
		return false, err
	}
	// Merging the root's last two children leaves an internal root with no
	// separators and only a fallback child; pull that child's contents up
	// into the root record so the tree height actually shrinks.
	for !root.leaf && root.keyCount == 0 {
		childHandle := root.fallback()
		child, err := t.readNode(ctx, childHandle)
		if err != nil {
			return false, err
		}
		if err := t.writeNode(ctx, t.root, child); err != nil {
			return false, err
		}
		if err := t.freeNode(ctx, childHandle); err != nil {
			return false, err
		}
		root = child
	}
	if inserting && root.keyCount >= 2*t.n {
		if err := t.splitRoot(ctx, root); err != nil {
			return false, err
		}
		root, err = t.readNode(ctx, t.root)
		if err != nil {
			return false, err
		}
	}

	currentHandle := t.root
	current := root
	for !current.leaf {
		idx := childSlotIndex(current, key)
		childHandle := current.slots[idx].value
		child, err := t.readNode(ctx, childHandle)
		if err != nil {
			return false, err
		}

		switch {
		case inserting && child.keyCount >= 2*t.n:
			if err := t.splitChild(ctx, currentHandle, current, idx, childHandle, child); err != nil {
				return false, err
			}
		case !inserting && child.keyCount <= t.n:
			if err := t.mergeOrRedistribute(ctx, currentHandle, current, idx); err != nil {
				return false, err
			}
		default:
			currentHandle, current = childHandle, child
			continue
		}

		// The parent was rewritten in place; reload it and recompute which
		// child to follow since indices may have shifted.
		current, err = t.readNode(ctx, currentHandle)
		if err != nil {
			return false, err
		}
		idx = childSlotIndex(current, key)
		childHandle = current.slots[idx].value
		child, err = t.readNode(ctx, childHandle)
		if err != nil {
			return false, err
		}
		currentHandle, current = childHandle, child
	}

	return t.mutateLeaf(ctx, currentHandle, current, key, expected, newVal)
}

func (t *Tree) mutateLeaf(ctx context.Context, handle uint64, leaf *node, key uint64, expected *uint64, newVal uint64) (bool, error) {
	found := -1
	for i := 0; i < leaf.keyCount; i++ {
		if leaf.slots[i].key == key {
			found = i
			break
		}
	}
	current := KeyNull
	if found >= 0 {
		current = leaf.slots[found].value
	}
	if expected != nil && *expected != current {
		return false, nil
	}

	if newVal == KeyNull {
		if found < 0 {
			return false, nil
		}
		for j := found; j < leaf.keyCount; j++ { // also moves the right-neighbour slot down
			leaf.slots[j] = leaf.slots[j+1]
		}
		leaf.keyCount--
		return true, t.writeNode(ctx, handle, leaf)
	}

	if found >= 0 {
		leaf.slots[found].value = newVal
		return true, t.writeNode(ctx, handle, leaf)
	}

	insertAt := leaf.keyCount
	for i := 0; i < leaf.keyCount; i++ {
		if leaf.slots[i].key > key {
			insertAt = i
			break
		}
	}
	for j := leaf.keyCount + 1; j > insertAt; j-- { // also moves the right-neighbour slot up
		leaf.slots[j] = leaf.slots[j-1]
	}
	leaf.slots[insertAt] = slot{key: key, value: newVal}
	leaf.keyCount++
	return true, t.writeNode(ctx, handle, leaf)
}

// Clear frees every node except the root, rewriting the root record in
// place as an empty leaf.
func (t *Tree) Clear(ctx context.Context) error {
	if err := t.clearSubtree(ctx, t.root, true); err != nil {
		return err
	}
	root := newEmptyNode(t.n, true)
	root.setFallback(KeyNull)
	return t.writeNode(ctx, t.root, root)
}

func (t *Tree) clearSubtree(ctx context.Context, handle uint64, isHead bool) error {
	nd, err := t.readNode(ctx, handle)
	if err != nil {
		return err
	}
	if !nd.leaf {
		for i := 0; i < nd.keyCount; i++ {
			if err := t.clearSubtree(ctx, nd.slots[i].value, false); err != nil {
				return err
			}
		}
		if err := t.clearSubtree(ctx, nd.fallback(), false); err != nil {
			return err
		}
	}
	if isHead {
		return nil
	}
	return t.freeNode(ctx, handle)
}

// Entry is one key/value pair yielded by Iterate.
type Entry struct {
	Key   uint64
	Value uint64
}

// Iterate walks the tree in ascending key order via the leaf chain, starting
// at the leftmost leaf. Behaviour under concurrent structural change is
// undefined: entries may be skipped or repeated.
func (t *Tree) Iterate(ctx context.Context, yield func(Entry) bool) error {
	handle := t.root
	for {
		nd, err := t.readNode(ctx, handle)
		if err != nil {
			return err
		}
		if nd.leaf {
			break
		}
		if nd.keyCount > 0 {
			handle = nd.slots[0].value
		} else {
			handle = nd.fallback()
		}
	}

	for handle != KeyNull {
		leaf, err := t.readNode(ctx, handle)
		if err != nil {
			return err
		}
		for i := 0; i < leaf.keyCount; i++ {
			if !yield(Entry{Key: leaf.slots[i].key, Value: leaf.slots[i].value}) {
				return nil
			}
		}
		handle = leaf.fallback()
	}
	return nil
}
