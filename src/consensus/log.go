package consensus

import "github.com/mosaicnetworks/hive/src/wire"

// raftLog is a 1-based in-memory log. Index 0 is a sentinel with term 0 so
// that an empty log matches PreviousLogIndex 0.
type raftLog struct {
	entries []wire.Entry
}

func (l *raftLog) lastIndex() uint32 {
	return uint32(len(l.entries))
}

func (l *raftLog) lastTerm() uint32 {
	return l.term(l.lastIndex())
}

// term returns the term of the entry at index, or 0 for the sentinel and for
// indexes beyond the end of the log.
func (l *raftLog) term(index uint32) uint32 {
	if index == 0 || index > l.lastIndex() {
		return 0
	}
	return l.entries[index-1].Term
}

func (l *raftLog) append(e ...wire.Entry) {
	l.entries = append(l.entries, e...)
}

// truncate drops every entry after index.
func (l *raftLog) truncate(index uint32) {
	if index < l.lastIndex() {
		l.entries = l.entries[:index]
	}
}

// slice returns the entries from index (inclusive), limited to what fits in
// budget bytes once encoded. At least one entry is returned when available.
func (l *raftLog) slice(index uint32, budget int) []wire.Entry {
	if index == 0 || index > l.lastIndex() {
		return nil
	}

	var res []wire.Entry
	size := 4
	for _, e := range l.entries[index-1:] {
		size += entryOverhead + len(e.Data)
		if size > budget && len(res) > 0 {
			break
		}
		res = append(res, e)
	}
	return res
}

func (l *raftLog) get(index uint32) (wire.Entry, bool) {
	if index == 0 || index > l.lastIndex() {
		return wire.Entry{}, false
	}
	return l.entries[index-1], true
}

// upToDate reports whether a candidate log described by (lastTerm, lastIndex)
// is at least as recent as this log.
func (l *raftLog) upToDate(lastTerm, lastIndex uint32) bool {
	myTerm := l.lastTerm()
	if lastTerm != myTerm {
		return lastTerm > myTerm
	}
	return lastIndex >= l.lastIndex()
}
