// Package sst implements the shared shared-string table (SST) for BIFF12
// (`xl/sharedStrings.bin`) workbooks: a reader that decodes
// XLUnicodeRichExtendedString entries, and a writer that patches an existing
// table byte-for-byte while interning new plain strings.
//
// Entries are BrtSI records: flags(1) [crun(4) if fRichStr] [extSize(4) if
// fExtStr] XLWideString. Rich (fRichStr, nonzero crun) or phonetic (fExtStr,
// nonzero extSize) entries are never reused as plain-string targets -- their
// formatting/phonetic payload would be silently discarded by a blind reuse.
package sst

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/wilson-anysphere/formula-sub015/biff"
)

// Entry is one decoded shared-string table slot.
type Entry struct {
	Text         string
	FRichStr     bool
	FExtStr      bool
	RunCount     uint32 // valid iff FRichStr
	ExtByteSize  uint32 // valid iff FExtStr
	RawExtBytes  []byte // the raw ExtRst payload, if captured (best effort)
}

// IsEffectivelyPlain reports whether e can be safely reused as an
// intern_plain target: either it carries no rich/phonetic flags at all, or
// it carries the flag but zero run/ext bytes.
func (e Entry) IsEffectivelyPlain() bool {
	if e.FRichStr && e.RunCount != 0 {
		return false
	}
	if e.FExtStr && e.ExtByteSize != 0 {
		return false
	}
	return true
}

// Table holds the shared strings parsed from xl/sharedStrings.bin.
type Table struct {
	entries []Entry
}

// New reads all shared string entries from r. r must be positioned at the
// start of the SST record stream (the BrtSST header itself is optional --
// callers that have already consumed it may start at the first BrtSI).
func New(r io.ReadSeeker) (*Table, error) {
	t := &Table{}
	rdr := biff.NewBiff12Reader(r)
	for {
		recID, data, err := rdr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sst: %w", err)
		}

		switch recID {
		case biff.Si:
			e, err := parseSI(data)
			if err != nil {
				// Best-effort: malformed SI becomes an empty plain entry
				// rather than aborting the whole table.
				e = Entry{}
			}
			t.entries = append(t.entries, e)
		case biff.SstEnd:
			return t, nil
		}
	}
	return t, nil
}

// NewFromBytes is a convenience wrapper for building a Table from an
// in-memory byte slice (used in tests).
func NewFromBytes(b []byte) (*Table, error) {
	return New(bytes.NewReader(b))
}

// parseSI decodes a single SI (string instance) record payload.
//
// BrtSI layout:
//
//	flags   uint8   -- bit 0: fRichStr, bit 1: fExtStr
//	[crun   uint32] -- present iff fRichStr
//	[extSz  uint32] -- present iff fExtStr
//	text    XLWideString -- 4-byte char count + UTF-16LE
//
// Rich-run records and the ExtRst payload follow in the record stream, not
// inside this record's own payload, so only their declared sizes are read
// here; the raw trailing bytes (if this payload happens to carry them
// inline, as some writers do) are best-effort captured into RawExtBytes.
func parseSI(data []byte) (Entry, error) {
	if len(data) == 0 {
		return Entry{}, nil
	}
	rr := biff.NewRecordReader(data)

	flags, err := rr.ReadUint8()
	if err != nil {
		return Entry{}, nil
	}
	e := Entry{
		FRichStr: flags&0x01 != 0,
		FExtStr:  flags&0x02 != 0,
	}

	if e.FRichStr {
		crun, err := rr.ReadUint32()
		if err != nil {
			return Entry{}, fmt.Errorf("sst: parseSI: read crun: %w", err)
		}
		e.RunCount = crun
	}
	if e.FExtStr {
		sz, err := rr.ReadUint32()
		if err != nil {
			return Entry{}, fmt.Errorf("sst: parseSI: read extStr size: %w", err)
		}
		e.ExtByteSize = sz
	}

	s, err := rr.ReadString()
	if err != nil {
		return Entry{}, fmt.Errorf("sst: parseSI: %w", err)
	}
	e.Text = s
	if e.FExtStr {
		// Bytes after the XLWideString are an inline ExtRst payload.
		pos := 1 + 4
		if e.FRichStr {
			pos += 4
		}
		if end := pos + 4 + 2*int(binary.LittleEndian.Uint32(data[pos:pos+4])); end < len(data) {
			e.RawExtBytes = append([]byte(nil), data[end:]...)
		}
	}
	return e, nil
}

// Get returns the shared string at index idx. Panics on out-of-range idx,
// matching slice semantics.
func (t *Table) Get(idx int) string { return t.entries[idx].Text }

// Entry returns the full decoded entry at idx (flags included).
func (t *Table) Entry(idx int) Entry { return t.entries[idx] }

// Len returns the total number of shared strings loaded.
func (t *Table) Len() int { return len(t.entries) }

// NewFromEntries builds a Table directly from already-decoded entries,
// bypassing the BrtSI record stream. Used by callers reconstituting a table
// from a serialized cache (see workbook.LoadDerivedCache) rather than
// re-parsing xl/sharedStrings.bin.
func NewFromEntries(entries []Entry) *Table {
	return &Table{entries: entries}
}

// ExtractPhonetic attempts a best-effort extraction of the phonetic text
// embedded in an entry's ExtRst payload (captured in RawExtBytes, when the
// caller populated it). The ExtRst is a sequence of TLV records keyed by
// `rt`; PhoneticInfo is rt=0x0001. Returns ("", false) on any parse failure
// rather than propagating an error -- phonetic extraction is explicitly
// best-effort.
func ExtractPhonetic(extRst []byte) (string, bool) {
	const maxExtRstSize = 1 << 20 // 1 MiB cap, guards against a corrupt or hostile declared size
	if len(extRst) == 0 || len(extRst) > maxExtRstSize {
		return "", false
	}
	buf := bytes.NewReader(extRst)
	for buf.Len() >= 6 {
		var rt uint16
		var length uint32
		if err := binary.Read(buf, binary.LittleEndian, &rt); err != nil {
			return "", false
		}
		if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
			return "", false
		}
		if int(length) > buf.Len() {
			return "", false
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(buf, payload); err != nil {
			return "", false
		}
		if rt == 0x0001 {
			// PhoneticInfo payload: best-effort scan for a length-prefixed
			// UTF-16LE string (4-byte char count, matching XLWideString).
			if len(payload) < 4 {
				continue
			}
			cch := binary.LittleEndian.Uint32(payload[0:4])
			if cch > (1<<20) || int(cch)*2+4 > len(payload) {
				continue
			}
			rr := biff.NewRecordReader(payload)
			if _, err := rr.ReadUint32(); err != nil {
				continue
			}
			s, err := func() (string, error) {
				// ReadString expects its own 4-byte count prefix again, so
				// reconstruct a standalone XLWideString buffer.
				b := payload[0:]
				return biff.NewRecordReader(b).ReadString()
			}()
			if err == nil {
				return s, true
			}
		}
	}
	return "", false
}
