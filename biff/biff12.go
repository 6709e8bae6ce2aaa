// Package biff provides low-level record-stream parsing for both BIFF12
// (the `.xlsb` binary record format) and BIFF8 (the legacy `.xls` record
// format), plus a logical-record iterator that coalesces BIFF8 CONTINUE
// fragments and BIFF12 long-record splits into single logical payloads.
package biff

import (
	"fmt"
	"io"
)

// Biff12Reader iterates over BIFF12 records from an io.ReadSeeker.  Each call
// to Next returns the record type ID, the raw payload bytes, and any error.
//
// Record IDs and lengths are both variable-length encoded:
//   - ID:  up to 4 continuation bytes; the MSB of each byte signals more bytes.
//   - Len: up to 4 bytes of 7-bit little-endian chunks (standard LEB-128).
type Biff12Reader struct {
	r io.ReadSeeker
}

// NewBiff12Reader wraps an io.ReadSeeker for BIFF12 record iteration.
func NewBiff12Reader(r io.ReadSeeker) *Biff12Reader {
	return &Biff12Reader{r: r}
}

// Tell returns the current byte offset within the underlying stream.
func (r *Biff12Reader) Tell() (int64, error) {
	return r.r.Seek(0, io.SeekCurrent)
}

// Seek repositions the stream.  whence follows the io.Seek* constants.
func (r *Biff12Reader) Seek(offset int64, whence int) (int64, error) {
	return r.r.Seek(offset, whence)
}

// readID reads a variable-length record type ID (1-4 bytes). The
// continuation bit is the MSB (bit 7) of each byte; once a byte has bit 7
// clear, reading stops. Each byte contributes its 8 bits at increasing byte
// positions (simple byte-shift accumulation, NOT 7-bit stripping). Returns
// an error if the 4th byte still has the continuation bit set.
func (r *Biff12Reader) readID() (int, error) {
	buf := [1]byte{}
	var v uint32
	for i := range 4 {
		_, err := io.ReadFull(r.r, buf[:])
		if err != nil {
			return 0, err
		}
		b := uint32(buf[0])
		v += b << (8 * i)
		if b&0x80 == 0 {
			return int(v), nil
		}
		if i == 3 {
			return 0, fmt.Errorf("biff: BIFF12 ID continuation bit set on 4th byte (stream corrupt)")
		}
	}
	panic("biff: readID: unreachable")
}

// readLen reads a variable-length record length (1-4 bytes) encoded as 7-bit
// little-endian chunks (LEB-128 without sign extension).
func (r *Biff12Reader) readLen() (int, error) {
	buf := [1]byte{}
	var v uint32
	for i := range 4 {
		_, err := io.ReadFull(r.r, buf[:])
		if err != nil {
			return 0, err
		}
		b := uint32(buf[0])
		v += (b & 0x7F) << (7 * uint32(i))
		if b&0x80 == 0 {
			return int(v), nil
		}
		if i == 3 {
			return 0, fmt.Errorf("biff: BIFF12 length continuation bit set on 4th byte (stream corrupt)")
		}
	}
	panic("biff: readLen: unreachable")
}

// maxRecordLen guards against corrupt length fields causing multi-hundred-MB
// allocations. No legitimate BIFF12 or BIFF8-CONTINUE-coalesced record
// exceeds this.
const maxRecordLen = 10 * 1024 * 1024 // 10 MiB

// Next reads the next record from the stream.
// Returns (recID, data, nil) on success, or (0, nil, io.EOF) at end of stream.
func (r *Biff12Reader) Next() (recID int, data []byte, err error) {
	recID, err = r.readID()
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("biff: reading BIFF12 ID: %w", err)
	}

	recLen, err := r.readLen()
	if err != nil {
		return 0, nil, fmt.Errorf("biff: reading length after ID 0x%X: %w", recID, err)
	}

	if recLen > maxRecordLen {
		return 0, nil, fmt.Errorf("biff: payload length %d for ID 0x%X exceeds %d byte limit (stream corrupt)", recLen, recID, maxRecordLen)
	}
	if recLen == 0 {
		return recID, nil, nil
	}

	data = make([]byte, recLen)
	if _, err = io.ReadFull(r.r, data); err != nil {
		return 0, nil, fmt.Errorf("biff: reading %d payload bytes for ID 0x%X: %w", recLen, recID, err)
	}
	return recID, data, nil
}

// WriteRecordID writes a BIFF12 varint record ID (byte-shift encoding, not
// 7-bit LEB128 -- mirrors readID's accumulation exactly in reverse).
func WriteRecordID(w io.Writer, id int) error {
	u := uint32(id)
	var buf []byte
	switch {
	case u < 0x80:
		buf = []byte{byte(u)}
	case u < 0x8000:
		buf = []byte{byte(u) | 0x80, byte(u >> 8)}
	default:
		return fmt.Errorf("biff: record ID %d out of supported range", id)
	}
	_, err := w.Write(buf)
	return err
}

// WriteRecordLen writes a BIFF12 varint record length (standard 7-bit LEB128).
func WriteRecordLen(w io.Writer, n int) error {
	if n < 0 {
		return fmt.Errorf("biff: negative record length %d", n)
	}
	u := uint32(n)
	var buf []byte
	for {
		b := byte(u & 0x7F)
		u >>= 7
		if u != 0 {
			buf = append(buf, b|0x80)
			continue
		}
		buf = append(buf, b)
		break
	}
	_, err := w.Write(buf)
	return err
}
