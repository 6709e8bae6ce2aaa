package biff

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Biff8 record type IDs relevant to workbook/worksheet parsing and CONTINUE
// coalescing. Only the small subset this module needs is defined; the
// legacy .xls reader in package xls adds the rest (sheet, style and cell
// records).
const (
	Biff8Continue = 0x003C
	Biff8Bof      = 0x0809
	Biff8Eof      = 0x000A
	Biff8Sst      = 0x00FC
	Biff8ExtSst   = 0x00FF
)

// Biff8Reader reads fixed-length BIFF8 records: a 2-byte little-endian ID,
// a 2-byte little-endian length, and that many payload bytes. Unlike
// BIFF12, no record exceeds 65,535 bytes; logically longer values are split
// across CONTINUE (0x003C) records which Biff8Reader surfaces as distinct
// physical records -- coalescing is Biff8LogicalIter's job.
type Biff8Reader struct {
	r io.ReadSeeker
}

// NewBiff8Reader wraps an io.ReadSeeker for BIFF8 physical-record iteration.
func NewBiff8Reader(r io.ReadSeeker) *Biff8Reader {
	return &Biff8Reader{r: r}
}

func (r *Biff8Reader) Tell() (int64, error) { return r.r.Seek(0, io.SeekCurrent) }

func (r *Biff8Reader) Seek(offset int64, whence int) (int64, error) {
	return r.r.Seek(offset, whence)
}

// Next reads the next physical BIFF8 record. Returns io.EOF cleanly at the
// end of stream; a record header with no payload bytes available is a
// truncation error, not EOF.
func (r *Biff8Reader) Next() (recID int, data []byte, err error) {
	var hdr [4]byte
	_, err = io.ReadFull(r.r, hdr[:])
	if err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("biff: reading BIFF8 record header: %w", err)
	}
	id := binary.LittleEndian.Uint16(hdr[0:2])
	length := binary.LittleEndian.Uint16(hdr[2:4])
	if length == 0 {
		return int(id), nil, nil
	}
	data = make([]byte, length)
	if _, err = io.ReadFull(r.r, data); err != nil {
		return 0, nil, fmt.Errorf("biff: reading %d payload bytes for BIFF8 ID 0x%X: %w", length, id, err)
	}
	return int(id), data, nil
}

// WriteBiff8Record writes a fixed-length BIFF8 record header + payload.
// Payloads longer than 65,535 bytes must be pre-split into CONTINUE
// fragments by the caller (see SplitIntoContinueFragments).
func WriteBiff8Record(w io.Writer, id int, payload []byte) error {
	if len(payload) > 0xFFFF {
		return fmt.Errorf("biff: BIFF8 payload of %d bytes exceeds 65535-byte record limit, split into CONTINUE fragments first", len(payload))
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(id))
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// SplitIntoContinueFragments splits a logically long record's payload into a
// first fragment (under the owning record ID) and zero or more CONTINUE
// fragments, each at most maxLen bytes (default 8224, Excel's conventional
// CONTINUE boundary for string-bearing records so that UTF-16 pairs are not
// split -- callers that know their payload is not UTF-16 text may pass a
// larger maxLen up to 65535).
func SplitIntoContinueFragments(payload []byte, maxLen int) [][]byte {
	if maxLen <= 0 {
		maxLen = 8224
	}
	if len(payload) <= maxLen {
		return [][]byte{payload}
	}
	var out [][]byte
	for len(payload) > 0 {
		n := maxLen
		if n > len(payload) {
			n = len(payload)
		}
		out = append(out, payload[:n])
		payload = payload[n:]
	}
	return out
}
