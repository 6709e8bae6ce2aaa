package sst

import (
	"fmt"

	"github.com/wilson-anysphere/formula-sub015/biff"
)

// recordRange marks one physical record's byte span within a Writer's
// original byte buffer, split into header and payload so the BrtSST
// header's counters can be patched in place without touching anything else.
type recordRange struct {
	start, payloadStart, payloadEnd, end int
}

// Writer patches an existing xl/sharedStrings.bin byte stream, preserving
// every existing record byte-for-byte (rich/phonetic entries included)
// except for the BrtSST header's two counters, while supporting interning
// of new plain strings. Grounded directly on the reference
// shared_strings_write.rs patcher algorithm.
type Writer struct {
	original []byte
	records  []recordRange

	sstRecordIdx int
	insertIdx    int

	totalCount  uint32
	uniqueCount uint32
	origTotal   uint32
	origUnique  uint32

	plainToIndex map[string]uint32
	baseSICount  uint32
	appended     []string
}

// NewWriter parses an existing sharedStrings.bin byte stream for patching.
func NewWriter(original []byte) (*Writer, error) {
	w := &Writer{
		original:     append([]byte(nil), original...),
		plainToIndex: make(map[string]uint32),
	}

	sstIdx := -1
	sstEndIdx := -1
	lastSIIdx := -1
	seenEnd := false
	siIndex := uint32(0)

	pos := 0
	for pos < len(w.original) {
		start := pos
		id, payloadStart, payloadEnd, consumed, err := readRecordHeader(w.original, pos)
		if err != nil {
			return nil, fmt.Errorf("sst: writer: %w", err)
		}
		pos = consumed

		recIdx := len(w.records)
		w.records = append(w.records, recordRange{start: start, payloadStart: payloadStart, payloadEnd: payloadEnd, end: pos})

		switch id {
		case biff.Sst:
			sstIdx = recIdx
			payload := w.original[payloadStart:payloadEnd]
			if len(payload) < 8 {
				return nil, fmt.Errorf("sst: writer: BrtSST payload too short")
			}
			w.totalCount = le32(payload[0:4])
			w.uniqueCount = le32(payload[4:8])
		case biff.Si:
			if !seenEnd {
				if text, ok := parsePlainSIText(w.original[payloadStart:payloadEnd]); ok {
					if _, exists := w.plainToIndex[text]; !exists {
						w.plainToIndex[text] = siIndex
					}
				}
				lastSIIdx = recIdx
				siIndex++
			}
		case biff.SstEnd:
			if !seenEnd {
				sstEndIdx = recIdx
				seenEnd = true
			}
		}
	}

	if sstIdx < 0 {
		return nil, fmt.Errorf("sst: writer: missing BrtSST record")
	}
	if sstEndIdx < 0 {
		return nil, fmt.Errorf("sst: writer: missing BrtSSTEnd record")
	}

	insertAfter := sstIdx
	if lastSIIdx >= 0 {
		insertAfter = lastSIIdx
	}
	insertIdx := insertAfter + 1
	if insertIdx > sstEndIdx {
		insertIdx = sstEndIdx
	}

	w.sstRecordIdx = sstIdx
	w.insertIdx = insertIdx
	w.origTotal = w.totalCount
	w.origUnique = w.uniqueCount
	w.baseSICount = siIndex
	return w, nil
}

// InternPlain interns a plain string, returning its isst index. A
// previously interned (or pre-existing plain) string returns the same
// index every time within the writer's session.
func (w *Writer) InternPlain(s string) (uint32, error) {
	if idx, ok := w.plainToIndex[s]; ok {
		return idx, nil
	}
	idx := w.baseSICount + uint32(len(w.appended))
	w.plainToIndex[s] = idx
	w.appended = append(w.appended, s)
	w.uniqueCount = w.baseSICount + uint32(len(w.appended))
	return idx, nil
}

// NoteTotalRefDelta adjusts the BrtSST total reference count (cstTotal) by a
// signed delta, with overflow/underflow checking.
func (w *Writer) NoteTotalRefDelta(delta int64) error {
	if delta == 0 {
		return nil
	}
	updated := int64(w.totalCount) + delta
	if updated < 0 || updated > int64(^uint32(0)) {
		return fmt.Errorf("sst: writer: totalCount out of range after delta %d", delta)
	}
	w.totalCount = uint32(updated)
	w.uniqueCount = w.baseSICount + uint32(len(w.appended))
	return nil
}

// IntoBytes produces the patched byte stream. If nothing changed it returns
// the original bytes unmodified (byte-for-byte preservation invariant).
func (w *Writer) IntoBytes() ([]byte, error) {
	if len(w.appended) == 0 && w.totalCount == w.origTotal && w.uniqueCount == w.origUnique {
		return w.original, nil
	}

	out := make([]byte, 0, len(w.original)+len(w.appended)*16)
	for idx, rec := range w.records {
		if idx == w.insertIdx {
			appendPlainSIRecords(&out, w.appended)
		}
		if idx == w.sstRecordIdx {
			out = append(out, w.original[rec.start:rec.payloadStart]...)
			payload := append([]byte(nil), w.original[rec.payloadStart:rec.payloadEnd]...)
			if len(payload) < 8 {
				return nil, fmt.Errorf("sst: writer: BrtSST payload too short")
			}
			putLE32(payload[0:4], w.totalCount)
			putLE32(payload[4:8], w.uniqueCount)
			out = append(out, payload...)
		} else {
			out = append(out, w.original[rec.start:rec.end]...)
		}
	}
	if w.insertIdx == len(w.records) {
		appendPlainSIRecords(&out, w.appended)
	}
	return out, nil
}

func appendPlainSIRecords(out *[]byte, strings []string) {
	for _, s := range strings {
		writePlainSIRecord(out, s)
	}
}

func writePlainSIRecord(out *[]byte, s string) {
	units := utf16Units(s)
	cch := uint32(len(units))
	payloadLen := 1 + 4 + int(cch)*2

	var idWriter byteSliceWriter
	biff.WriteRecordID(&idWriter, biff.Si)
	biff.WriteRecordLen(&idWriter, payloadLen)
	*out = append(*out, idWriter.buf...)

	*out = append(*out, 0) // flags = 0 (plain)
	var cchBuf [4]byte
	putLE32(cchBuf[:], cch)
	*out = append(*out, cchBuf[:]...)
	for _, u := range units {
		*out = append(*out, byte(u), byte(u>>8))
	}
}

// byteSliceWriter is a minimal io.Writer over a growable byte slice, used to
// reuse biff.WriteRecordID/WriteRecordLen without pulling in bytes.Buffer
// for this small hot path.
type byteSliceWriter struct{ buf []byte }

func (w *byteSliceWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func utf16Units(s string) []uint16 {
	var units []uint16
	for _, r := range s {
		if r <= 0xFFFF {
			units = append(units, uint16(r))
			continue
		}
		r -= 0x10000
		units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	return units
}

func parsePlainSIText(payload []byte) (string, bool) {
	if len(payload) == 0 || payload[0] != 0 {
		return "", false
	}
	if len(payload) < 5 {
		return "", false
	}
	cch := le32(payload[1:5])
	byteLen := int(cch) * 2
	if len(payload) < 5+byteLen {
		return "", false
	}
	s, err := biff.NewRecordReader(payload[1:]).ReadString()
	if err != nil {
		return "", false
	}
	return s, true
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// readRecordHeader reads a BIFF12 varint id+length header at pos and returns
// the record id, payload start/end offsets, and the position just past the
// payload.
func readRecordHeader(b []byte, pos int) (id, payloadStart, payloadEnd, next int, err error) {
	id, n1, err := readVarintID(b, pos)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	length, n2, err := readVarintLen(b, pos+n1)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	payloadStart = pos + n1 + n2
	payloadEnd = payloadStart + length
	if payloadEnd > len(b) {
		return 0, 0, 0, 0, fmt.Errorf("record payload overruns buffer")
	}
	return id, payloadStart, payloadEnd, payloadEnd, nil
}

func readVarintID(b []byte, pos int) (id, consumed int, err error) {
	var v uint32
	for i := 0; i < 4; i++ {
		if pos+i >= len(b) {
			return 0, 0, fmt.Errorf("truncated record id")
		}
		byt := uint32(b[pos+i])
		v += byt << (8 * i)
		if byt&0x80 == 0 {
			return int(v), i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("record id continuation bit set on 4th byte")
}

func readVarintLen(b []byte, pos int) (length, consumed int, err error) {
	var v uint32
	for i := 0; i < 4; i++ {
		if pos+i >= len(b) {
			return 0, 0, fmt.Errorf("truncated record length")
		}
		byt := uint32(b[pos+i])
		v += (byt & 0x7F) << (7 * uint32(i))
		if byt&0x80 == 0 {
			return int(v), i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("record length continuation bit set on 4th byte")
}
