package wire

// Entry is a single log entry. Entries travel inside the AppendEntries blob.
type Entry struct {
	Term uint32
	Data []byte
}

// EncodeEntries packs entries as count:u32 followed by term:u32, len:u32 and
// the data of every entry.
func EncodeEntries(entries []Entry) []byte {
	if len(entries) == 0 {
		return nil
	}
	size := 4
	for _, e := range entries {
		size += 8 + len(e.Data)
	}
	buf := make([]byte, 0, size)
	buf = appendUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = appendUint32(buf, e.Term)
		buf = appendUint32(buf, uint32(len(e.Data)))
		buf = append(buf, e.Data...)
	}
	return buf
}

// DecodeEntries parses the output of EncodeEntries. An empty blob is an empty
// list.
func DecodeEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	r := reader{kind: KindAppendEntries, data: data}

	count := r.uint32()
	// every entry takes at least 8 bytes
	if r.err == nil && uint64(count)*8 > uint64(len(data)-r.off) {
		return nil, decodeErr(KindAppendEntries, "entry count %d overruns payload", count)
	}

	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count && r.err == nil; i++ {
		term := r.uint32()
		d := r.bytes()
		entries = append(entries, Entry{Term: term, Data: d})
	}

	if err := r.finish(); err != nil {
		return nil, err
	}
	return entries, nil
}
