package btree

import "context"

// removeChildAt drops the slot at rightIdx from parent and repoints the
// slot immediately before it (or the fallback, if rightIdx was itself the
// fallback) at mergedHandle -- the inverse of insertChildSeparator, used
// once two children have been merged into one.
func removeChildAt(parent *node, rightIdx int, mergedHandle uint64) {
	if rightIdx == parent.keyCount {
		parent.keyCount--
		parent.setFallback(mergedHandle)
		return
	}
	parent.slots[rightIdx-1] = slot{key: parent.slots[rightIdx].key, value: mergedHandle}
	for j := rightIdx; j < parent.keyCount; j++ {
		parent.slots[j] = parent.slots[j+1]
	}
	parent.keyCount--
}

func mergeLeaf(left, right *node) {
	for i := 0; i < right.keyCount; i++ {
		left.slots[left.keyCount+i] = right.slots[i]
	}
	left.keyCount += right.keyCount
	left.setFallback(right.fallback())
}

func mergeInternal(left, right *node, sepKey uint64) {
	left.slots[left.keyCount] = slot{key: sepKey, value: left.fallback()}
	left.keyCount++
	for i := 0; i < right.keyCount; i++ {
		left.slots[left.keyCount+i] = right.slots[i]
	}
	left.keyCount += right.keyCount
	left.setFallback(right.fallback())
}

// transferOneRightToLeft moves right's smallest entry to the end of left,
// adjusting the parent separator at leftIdx to right's new smallest key.
func transferOneRightToLeft(parent *node, leftIdx int, left, right *node) {
	if left.leaf {
		rightNeighbour := left.fallback()
		left.slots[left.keyCount] = right.slots[0]
		left.keyCount++
		left.setFallback(rightNeighbour)
		for j := 0; j < right.keyCount; j++ {
			right.slots[j] = right.slots[j+1]
		}
		right.keyCount--
		parent.slots[leftIdx].key = right.slots[0].key
		return
	}
	sepKey := parent.slots[leftIdx].key
	promoted := left.fallback()
	left.slots[left.keyCount] = slot{key: sepKey, value: promoted}
	left.keyCount++
	child0 := right.slots[0].value
	newSepKey := right.slots[0].key
	left.setFallback(child0)
	for j := 0; j < right.keyCount; j++ {
		right.slots[j] = right.slots[j+1]
	}
	right.keyCount--
	parent.slots[leftIdx].key = newSepKey
}

// transferOneLeftToRight moves left's largest entry to the front of right,
// adjusting the parent separator at leftIdx to match.
func transferOneLeftToRight(parent *node, leftIdx int, left, right *node) {
	if left.leaf {
		moved := left.slots[left.keyCount-1]
		for j := right.keyCount + 1; j > 0; j-- {
			right.slots[j] = right.slots[j-1]
		}
		right.slots[0] = moved
		right.keyCount++
		rightNeighbour := left.fallback()
		left.keyCount--
		left.setFallback(rightNeighbour)
		parent.slots[leftIdx].key = moved.key
		return
	}
	oldSepKey := parent.slots[leftIdx].key
	movedChild := left.fallback()
	movedKey := left.slots[left.keyCount-1].key
	for j := right.keyCount + 1; j > 0; j-- {
		right.slots[j] = right.slots[j-1]
	}
	right.slots[0] = slot{key: oldSepKey, value: movedChild}
	right.keyCount++
	newLeftFallback := left.slots[left.keyCount-1].value
	left.keyCount--
	left.setFallback(newLeftFallback)
	parent.slots[leftIdx].key = movedKey
}

// mergeOrRedistribute is the preparatory remove-side restructuring, called
// when the child about to be entered at parent.slots[childIdx] has at most
// N keys. It merges the child with an adjacent sibling if their combined
// size fits in one node (<=2N), otherwise it transfers entries from the
// richer side so the child ends up with more than N keys.
func (t *Tree) mergeOrRedistribute(ctx context.Context, parentHandle uint64, parent *node, childIdx int) error {
	var leftIdx int
	if childIdx < parent.keyCount {
		leftIdx = childIdx // prefer the right sibling
	} else if childIdx > 0 {
		leftIdx = childIdx - 1 // fall back to the left sibling
	} else {
		return nil // only child, nothing to merge or borrow from
	}
	rightIdx := leftIdx + 1

	leftHandle := parent.slots[leftIdx].value
	var rightHandle uint64
	if rightIdx == parent.keyCount {
		rightHandle = parent.fallback()
	} else {
		rightHandle = parent.slots[rightIdx].value
	}

	left, err := t.readNode(ctx, leftHandle)
	if err != nil {
		return err
	}
	right, err := t.readNode(ctx, rightHandle)
	if err != nil {
		return err
	}

	combined := left.keyCount + right.keyCount
	if combined <= 2*t.n {
		if left.leaf {
			mergeLeaf(left, right)
		} else {
			mergeInternal(left, right, parent.slots[leftIdx].key)
		}
		if err := t.writeNode(ctx, leftHandle, left); err != nil {
			return err
		}
		if err := t.freeNode(ctx, rightHandle); err != nil {
			return err
		}
		removeChildAt(parent, rightIdx, leftHandle)
		return t.writeNode(ctx, parentHandle, parent)
	}

	if childIdx == leftIdx {
		transferCount := t.n + 1 - left.keyCount
		if transferCount < 1 {
			transferCount = 1
		}
		for i := 0; i < transferCount; i++ {
			transferOneRightToLeft(parent, leftIdx, left, right)
		}
	} else {
		transferCount := t.n + 1 - right.keyCount
		if transferCount < 1 {
			transferCount = 1
		}
		for i := 0; i < transferCount; i++ {
			transferOneLeftToRight(parent, leftIdx, left, right)
		}
	}
	if err := t.writeNode(ctx, leftHandle, left); err != nil {
		return err
	}
	if err := t.writeNode(ctx, rightHandle, right); err != nil {
		return err
	}
	return t.writeNode(ctx, parentHandle, parent)
}
