package replay

import "sort"

// SeekTimestamp returns the byte offset of the last index entry at or
// before tsNs, so a reader can jump into a segment without scanning every
// frame from the start. entries must be sorted ascending by TimestampNs,
// which Encoder guarantees since frames are written in arrival order.
// ok is false if tsNs precedes every entry.
func SeekTimestamp(entries []IndexEntry, tsNs int64) (offset uint64, ok bool) {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].TimestampNs > tsNs
	})
	if i == 0 {
		return 0, false
	}
	return entries[i-1].FileOffset, true
}
