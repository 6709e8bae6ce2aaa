package xls

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf16"

	"github.com/wilson-anysphere/formula-sub015/biff"
)

// readUnicodeString decodes a full XLUnicodeString (MS-XLS 2.5.294): a
// 2-byte character count, a 1-byte option flags byte (bit 0 is fHighByte),
// then cch characters at 1 or 2 bytes each. Used for FORMAT and LABEL
// records, which are never CONTINUE-coalesced by this reader (only SST/
// ExtSst are in biff's coalesce whitelist) — long FORMAT/LABEL strings that
// span a CONTINUE boundary in a real file are a known limitation.
func readUnicodeString(rr *biff.RecordReader) (string, error) {
	cch, err := rr.ReadUint16()
	if err != nil {
		return "", fmt.Errorf("xls: unicode string: cch: %w", err)
	}
	grbit, err := rr.ReadUint8()
	if err != nil {
		return "", fmt.Errorf("xls: unicode string: grbit: %w", err)
	}
	highByte := grbit&0x01 != 0
	return readCharsFrom(rr, int(cch), highByte)
}

// readShortUnicodeString decodes a ShortXLUnicodeString (MS-XLS 2.5.240.2)
// given a character count already read by the caller (BoundSheet8's cch
// precedes the shared grbit/rgb pair, unlike the full form above).
func readShortUnicodeString(rr *biff.RecordReader, cch int) (string, error) {
	grbit, err := rr.ReadUint8()
	if err != nil {
		return "", fmt.Errorf("xls: short unicode string: grbit: %w", err)
	}
	highByte := grbit&0x01 != 0
	return readCharsFrom(rr, cch, highByte)
}

func readCharsFrom(rr *biff.RecordReader, cch int, highByte bool) (string, error) {
	width := 1
	if highByte {
		width = 2
	}
	buf := make([]byte, cch*width)
	if err := rr.Read(buf); err != nil {
		return "", fmt.Errorf("xls: reading %d characters: %w", cch, err)
	}
	if !highByte {
		units := make([]uint16, cch)
		for i, b := range buf {
			units[i] = uint16(b)
		}
		return string(utf16.Decode(units)), nil
	}
	units := make([]uint16, cch)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(buf[i*2:])
	}
	return string(utf16.Decode(units)), nil
}

// sstDecoder walks a coalesced SST LogicalRecord's Data, consuming the
// restated grbit (fHighByte) byte that Excel writes at the start of any
// CONTINUE fragment that splits an Unicode string's character array
// mid-string. Runs and ExtRst payloads never restate this byte even when a
// CONTINUE boundary falls inside them, so boundary checks only apply while
// reading characters — a documented simplification shared by the major
// open-source BIFF8 readers this reader follows in spirit.
type sstDecoder struct {
	data       []byte
	pos        int
	fragStarts []int
	fragIdx    int
	highByte   bool
}

func newSSTDecoder(rec *biff.LogicalRecord) *sstDecoder {
	return &sstDecoder{data: rec.Data, fragStarts: rec.FragmentStarts, fragIdx: 1}
}

func (d *sstDecoder) consumeRestateBoundaries() error {
	for d.fragIdx < len(d.fragStarts) && d.fragStarts[d.fragIdx] == d.pos {
		if d.pos >= len(d.data) {
			return io.ErrUnexpectedEOF
		}
		d.highByte = d.data[d.pos]&0x01 != 0
		d.pos++
		d.fragIdx++
	}
	return nil
}

func (d *sstDecoder) readByte() (byte, error) {
	if d.pos+1 > len(d.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v := d.data[d.pos]
	d.pos++
	return v, nil
}

func (d *sstDecoder) readUint16() (uint16, error) {
	if d.pos+2 > len(d.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *sstDecoder) readUint32() (uint32, error) {
	if d.pos+4 > len(d.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *sstDecoder) skip(n int) error {
	if d.pos+n > len(d.data) {
		return io.ErrUnexpectedEOF
	}
	d.pos += n
	return nil
}

func (d *sstDecoder) readChars(cch int) (string, error) {
	units := make([]uint16, 0, cch)
	for i := 0; i < cch; i++ {
		if err := d.consumeRestateBoundaries(); err != nil {
			return "", err
		}
		if d.highByte {
			if d.pos+2 > len(d.data) {
				return "", io.ErrUnexpectedEOF
			}
			units = append(units, binary.LittleEndian.Uint16(d.data[d.pos:]))
			d.pos += 2
		} else {
			if d.pos+1 > len(d.data) {
				return "", io.ErrUnexpectedEOF
			}
			units = append(units, uint16(d.data[d.pos]))
			d.pos++
		}
	}
	return string(utf16.Decode(units)), nil
}

// decodeSSTStrings decodes a coalesced BIFF8 SST LogicalRecord's payload:
// cstTotal(4) cstUnique(4) followed by cstUnique XLUnicodeRichExtendedString
// entries (MS-XLS 2.4.268 SST, 2.5.293 Unicode string). Rich-text run
// arrays and ExtRst (phonetic) payloads are skipped over, not decoded — this
// reader only recovers cached plain text, matching package sst's level of
// fidelity for the BIFF12 case. Best-effort: returns whatever strings were
// successfully decoded before the first error, never failing the whole
// workbook open over a malformed SST.
func decodeSSTStrings(rec *biff.LogicalRecord) []string {
	d := newSSTDecoder(rec)
	if _, err := d.readUint32(); err != nil { // cstTotal
		return nil
	}
	cstUnique, err := d.readUint32()
	if err != nil {
		return nil
	}

	out := make([]string, 0, cstUnique)
	for i := uint32(0); i < cstUnique; i++ {
		cch, err := d.readUint16()
		if err != nil {
			return out
		}
		grbit, err := d.readByte()
		if err != nil {
			return out
		}
		d.highByte = grbit&0x01 != 0
		fExt := grbit&0x04 != 0
		fRich := grbit&0x08 != 0

		var crun uint16
		if fRich {
			if crun, err = d.readUint16(); err != nil {
				return out
			}
		}
		var extSz uint32
		if fExt {
			if extSz, err = d.readUint32(); err != nil {
				return out
			}
		}

		s, err := d.readChars(int(cch))
		if err != nil {
			return out
		}
		if fRich {
			if err := d.skip(int(crun) * 4); err != nil {
				return append(out, s)
			}
		}
		if fExt {
			if err := d.skip(int(extSz)); err != nil {
				return append(out, s)
			}
		}
		out = append(out, s)
	}
	return out
}
