package biff

import (
	"io"
)

// LogicalRecord is a record with CONTINUE fragments coalesced into a single
// logical payload, plus the physical fragment boundaries (byte offsets into
// Data where each physical BIFF8 fragment began) so that callers decoding
// strings can detect a UTF-16 code-unit split across a CONTINUE boundary.
type LogicalRecord struct {
	ID   int
	Data []byte

	// FragmentStarts holds the offset into Data of each physical fragment's
	// first byte, in stored order. Always has at least one entry (0) for a
	// non-empty logical record. Only meaningful for BIFF8 coalesced records;
	// BIFF12 records are never split, so it is always [0] there.
	FragmentStarts []int

	// FragmentHasHighByte records, per fragment, the restated fHighByte
	// option bit from that fragment's leading option-flags byte (BIFF8
	// CONTINUE fragments of string-bearing records begin with a redeclared
	// option byte; bit 0 is fHighByte). Only populated by
	// NewBiff8LogicalIter when the record ID is in coalesceSet.
	FragmentHasHighByte []bool
}

// coalesceSet is the BIFF8 record-ID whitelist for CONTINUE coalescing
// (coalescing CONTINUE fragments for whitelisted record ids, e.g. SST).
// Records not in this set are never followed by CONTINUE in
// well-formed files, but if a stray CONTINUE does appear it is still
// coalesced defensively -- a CONTINUE record has no meaning on its own.
var coalesceSet = map[int]bool{
	Biff8Sst:    true,
	Biff8ExtSst: true,
}

// Biff8LogicalIter iterates BIFF8 logical records, coalescing CONTINUE
// (0x003C) fragments into the preceding non-CONTINUE record.
type Biff8LogicalIter struct {
	phys *Biff8Reader
	// pending holds a physical record read ahead of the logical record it
	// will start, when the previous Next() call had to peek one record to
	// discover it was not a CONTINUE.
	pendingID   int
	pendingData []byte
	hasPending  bool
	done        bool
}

// NewBiff8LogicalIter wraps a Biff8Reader for logical-record iteration.
func NewBiff8LogicalIter(r *Biff8Reader) *Biff8LogicalIter {
	return &Biff8LogicalIter{phys: r}
}

func (it *Biff8LogicalIter) readPhysical() (int, []byte, error) {
	if it.hasPending {
		it.hasPending = false
		return it.pendingID, it.pendingData, nil
	}
	return it.phys.Next()
}

// Next returns the next logical record, with CONTINUE fragments coalesced.
func (it *Biff8LogicalIter) Next() (*LogicalRecord, error) {
	if it.done {
		return nil, io.EOF
	}

	id, data, err := it.readPhysical()
	if err != nil {
		if err == io.EOF {
			it.done = true
		}
		return nil, err
	}

	rec := &LogicalRecord{
		ID:             id,
		Data:           append([]byte(nil), data...),
		FragmentStarts: []int{0},
	}
	if coalesceSet[id] && len(data) > 0 {
		rec.FragmentHasHighByte = []bool{data[0]&0x01 != 0}
	}

	for {
		nextID, nextData, err := it.phys.Next()
		if err != nil {
			if err == io.EOF {
				it.done = true
				return rec, nil
			}
			return nil, err
		}
		if nextID != Biff8Continue {
			// Not a continuation: stash it for the next logical Next() call.
			it.pendingID, it.pendingData, it.hasPending = nextID, nextData, true
			return rec, nil
		}
		rec.FragmentStarts = append(rec.FragmentStarts, len(rec.Data))
		if coalesceSet[id] && len(nextData) > 0 {
			rec.FragmentHasHighByte = append(rec.FragmentHasHighByte, nextData[0]&0x01 != 0)
		}
		rec.Data = append(rec.Data, nextData...)
	}
}

// Biff12LogicalIter adapts a Biff12Reader to the same LogicalRecord shape.
// BIFF12 records are never split across CONTINUE fragments (the varint
// length prefix can express any payload up to the 10 MiB guard), so each
// logical record is exactly one physical record.
type Biff12LogicalIter struct {
	r *Biff12Reader
}

func NewBiff12LogicalIter(r *Biff12Reader) *Biff12LogicalIter {
	return &Biff12LogicalIter{r: r}
}

func (it *Biff12LogicalIter) Next() (*LogicalRecord, error) {
	id, data, err := it.r.Next()
	if err != nil {
		return nil, err
	}
	return &LogicalRecord{ID: id, Data: data, FragmentStarts: []int{0}}, nil
}
