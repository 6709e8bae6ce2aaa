package workbook

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/wilson-anysphere/formula-sub015/fstore"
	"github.com/wilson-anysphere/formula-sub015/sst"
	"github.com/wilson-anysphere/formula-sub015/styles"
	"github.com/wilson-anysphere/formula-sub015/xlerr"
)

// maxDerivedCacheEntries caps the style/string counts decoded from a
// derived-cache payload, mirroring the declared-size guards the BIFF12
// readers apply elsewhere in this module (e.g. worksheet.parseRowRecord's
// maxRowIndex): a cache is untrusted input once it has round-tripped through
// disk, even though it is AEAD-sealed.
const maxDerivedCacheEntries = 1 << 20

// SaveDerivedCache seals the workbook's already-resolved style table and
// shared-string table into an FSTORAGE container (package fstore), sealed
// under kr's current key. This lets a caller skip re-parsing
// xl/styles.bin/xl/sharedStrings.bin on a subsequent open of the same
// workbook bytes, at the cost of needing to re-validate the cache still
// matches (callers are expected to key their cache storage by a content hash
// of the source file; this package only handles the seal/open half).
func (wb *Workbook) SaveDerivedCache(kr *fstore.KeyRing) ([]byte, error) {
	plaintext := encodeDerivedCache(wb.Styles, wb.stringTable)
	out, err := fstore.EncryptBytes(plaintext, kr)
	if err != nil {
		return nil, fmt.Errorf("workbook: save derived cache: %w", err)
	}
	return out, nil
}

// LoadDerivedCache opens a container produced by SaveDerivedCache and
// reconstructs the style table and shared-string table it held, without
// touching any zip part.
func LoadDerivedCache(data []byte, kr *fstore.KeyRing) (styles.StyleTable, *sst.Table, error) {
	plaintext, err := fstore.DecryptBytes(data, kr)
	if err != nil {
		return nil, nil, fmt.Errorf("workbook: load derived cache: %w", err)
	}
	st, entries, err := decodeDerivedCache(plaintext)
	if err != nil {
		return nil, nil, fmt.Errorf("workbook: load derived cache: %w", err)
	}
	return st, sst.NewFromEntries(entries), nil
}

func encodeDerivedCache(st styles.StyleTable, table *sst.Table) []byte {
	var buf bytes.Buffer

	writeUint32(&buf, uint32(len(st)))
	for _, xf := range st {
		writeUint32(&buf, uint32(int32(xf.NumFmtID)))
		writeString(&buf, xf.FormatStr)
	}

	n := 0
	if table != nil {
		n = table.Len()
	}
	writeUint32(&buf, uint32(n))
	for i := 0; i < n; i++ {
		e := table.Entry(i)
		var flags byte
		if e.FRichStr {
			flags |= 0x01
		}
		if e.FExtStr {
			flags |= 0x02
		}
		buf.WriteByte(flags)
		writeUint32(&buf, e.RunCount)
		writeUint32(&buf, e.ExtByteSize)
		writeString(&buf, e.Text)
	}

	return buf.Bytes()
}

func decodeDerivedCache(data []byte) (styles.StyleTable, []sst.Entry, error) {
	r := bytes.NewReader(data)

	styleCount, err := readUint32(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: style count: %v", xlerr.ErrTruncated, err)
	}
	if styleCount > maxDerivedCacheEntries {
		return nil, nil, fmt.Errorf("%w: %d styles", xlerr.ErrDeclaredSizeExceedsMax, styleCount)
	}
	st := make(styles.StyleTable, styleCount)
	for i := range st {
		numFmtID, err := readUint32(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: numFmtId: %v", xlerr.ErrTruncated, err)
		}
		formatStr, err := readString(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: format string: %v", xlerr.ErrTruncated, err)
		}
		st[i] = styles.XFStyle{NumFmtID: int(int32(numFmtID)), FormatStr: formatStr}
	}

	entryCount, err := readUint32(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: string count: %v", xlerr.ErrTruncated, err)
	}
	if entryCount > maxDerivedCacheEntries {
		return nil, nil, fmt.Errorf("%w: %d strings", xlerr.ErrDeclaredSizeExceedsMax, entryCount)
	}
	entries := make([]sst.Entry, entryCount)
	for i := range entries {
		var flags [1]byte
		if _, err := io.ReadFull(r, flags[:]); err != nil {
			return nil, nil, fmt.Errorf("%w: entry flags: %v", xlerr.ErrTruncated, err)
		}
		runCount, err := readUint32(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: run count: %v", xlerr.ErrTruncated, err)
		}
		extSize, err := readUint32(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: ext size: %v", xlerr.ErrTruncated, err)
		}
		text, err := readString(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: entry text: %v", xlerr.ErrTruncated, err)
		}
		entries[i] = sst.Entry{
			Text:        text,
			FRichStr:    flags[0]&0x01 != 0,
			FExtStr:     flags[0]&0x02 != 0,
			RunCount:    runCount,
			ExtByteSize: extSize,
		}
	}

	return st, entries, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if n > maxDerivedCacheEntries<<6 { // generous per-string cap, same guard family
		return "", fmt.Errorf("%w: string length %d", xlerr.ErrDeclaredSizeExceedsMax, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
