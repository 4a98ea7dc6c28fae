// Package compact implements the multi-way merge from spec.md §4.5: fold
// several immutable segments into one, keeping only the highest-sequence
// value for any key that appears in more than one input.
//
// Grounded directly on original_source/src/segment_store.rs's compact and
// InterIterator: the output sequence number is the minimum across inputs,
// and duplicate keys across segments resolve to the value from whichever
// input segment has the greatest sequence number.
package compact

import (
	"iter"

	"github.com/flashdb/flashkv/kverrors"
	"github.com/flashdb/flashkv/segment"
)

// cursor tracks one input segment's current position during the merge.
type cursor struct {
	key   string
	value string
	seq   uint64
	ok    bool
	next  func() (string, string, bool)
	stop  func()
}

// Compact merges segments (in any order) into a single new segment file at
// outputPath. The output's sequence number is the minimum sequence number
// across all inputs. segments must be non-empty.
func Compact(outputPath string, segments []*segment.Store, opts ...segment.Option) (*segment.Store, error) {
	if len(segments) == 0 {
		return nil, kverrors.NewInternalError("compact requires at least one input segment")
	}

	minSeq := segments[0].SequenceNumber()
	cursors := make([]*cursor, 0, len(segments))
	for _, s := range segments {
		if s.SequenceNumber() < minSeq {
			minSeq = s.SequenceNumber()
		}

		next, stop := iter.Pull2(s.Scan())
		k, v, ok := next()
		cursors = append(cursors, &cursor{key: k, value: v, seq: s.SequenceNumber(), ok: ok, next: next, stop: stop})
	}
	defer func() {
		for _, c := range cursors {
			c.stop()
		}
	}()

	return segment.Create(outputPath, minSeq, merge(cursors), opts...)
}

// merge produces the ascending, duplicate-resolved stream that feeds the
// output segment's writer.
func merge(cursors []*cursor) iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for {
			var winner *cursor
			for _, c := range cursors {
				if !c.ok {
					continue
				}
				switch {
				case winner == nil, c.key < winner.key:
					winner = c
				case c.key == winner.key && c.seq > winner.seq:
					winner = c
				}
			}
			if winner == nil {
				return
			}

			if !yield(winner.key, winner.value) {
				return
			}

			minKey := winner.key
			for _, c := range cursors {
				if c.ok && c.key == minKey {
					k, v, ok := c.next()
					c.key, c.value, c.ok = k, v, ok
				}
			}
		}
	}
}
