package segment

// indexEntry is one sparse-index row: the first key of a block, and the
// byte offset (from the start of the segment file) at which that block's
// framed first_key begins.
type indexEntry struct {
	key    string
	offset int64
}

// closestBefore returns the index entry with the greatest key <= target,
// or (zero, false) if the index is empty or every key exceeds target. It
// is a binary-search port of original_source's closest_element_before:
// the index is sorted ascending by construction, so the answer is the
// rightmost entry whose key does not exceed target.
func closestBefore(target string, index []indexEntry) (indexEntry, bool) {
	if len(index) == 0 || index[0].key > target {
		return indexEntry{}, false
	}

	lo, hi := 0, len(index)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if index[mid].key <= target {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	return index[lo], true
}
