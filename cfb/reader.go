// Package cfb implements random-access reading and writing of OLE2/CFB
// compound file streams: the container format used by legacy .xls
// workbooks and by EncryptionInfo/EncryptedPackage wrappers around
// encrypted OOXML packages.
package cfb

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

const (
	sigHeaderSize = 512
	dirEntrySize  = 128

	endOfChain  = -2
	freeSector  = -1
	satSector   = -3
	msatSector  = -4
	invalidSect = -5
)

var signature = [8]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

const (
	entryEmpty   = 0
	entryStorage = 1
	entryStream  = 2
	entryRoot    = 5
)

// entry is one directory entry in the compound file's red-black tree.
type entry struct {
	name      string
	etype     int
	left      int
	right     int
	root      int // for storages/root: DID of child tree root
	firstSect int
	size      int

	parent   int
	children []int
}

// Reader provides random-access lookup of named streams within a parsed
// OLE2 compound file image.
type Reader struct {
	data []byte

	sectorSize      int
	shortSectorSize int
	miniCutoff      int

	sat  []int // sector allocation table, sector units
	ssat []int // short sector allocation table, short-sector units
	ministream []byte

	entries []entry
}

// Open parses an OLE2 compound document image held fully in memory.
func Open(data []byte) (*Reader, error) {
	if len(data) < sigHeaderSize {
		return nil, fmt.Errorf("cfb: open: file too short (%d bytes)", len(data))
	}
	if string(data[:8]) != string(signature[:]) {
		return nil, fmt.Errorf("cfb: open: bad signature")
	}
	if data[28] != 0xFE || data[29] != 0xFF {
		return nil, fmt.Errorf("cfb: open: not little-endian byte order")
	}

	ssz := int(binary.LittleEndian.Uint16(data[30:32]))
	sssz := int(binary.LittleEndian.Uint16(data[32:34]))
	if ssz > 20 {
		ssz = 9
	}
	if sssz > ssz {
		sssz = 6
	}

	r := &Reader{
		data:            data,
		sectorSize:      1 << ssz,
		shortSectorSize: 1 << sssz,
	}

	dirFirstSect := int(int32(binary.LittleEndian.Uint32(data[48:52])))
	r.miniCutoff = int(binary.LittleEndian.Uint32(data[56:60]))
	ssatFirstSect := int(int32(binary.LittleEndian.Uint32(data[60:64])))
	ssatTotSects := int(binary.LittleEndian.Uint32(data[64:68]))
	msatExtFirst := int(int32(binary.LittleEndian.Uint32(data[68:72])))
	msatExtTot := int(binary.LittleEndian.Uint32(data[72:76]))

	dataLen := len(data) - sigHeaderSize
	numDataSects := (dataLen + r.sectorSize - 1) / r.sectorSize

	msat := make([]int, 109)
	for i := range msat {
		msat[i] = int(int32(binary.LittleEndian.Uint32(data[76+i*4 : 80+i*4])))
	}

	nent := r.sectorSize / 4
	if msatExtTot > 0 && msatExtFirst >= 0 {
		sid := msatExtFirst
		for i := 0; i < msatExtTot && sid >= 0 && sid < numDataSects; i++ {
			off := sigHeaderSize + sid*r.sectorSize
			if off+r.sectorSize > len(data) {
				break
			}
			ext := make([]int, nent)
			for j := range ext {
				ext[j] = int(int32(binary.LittleEndian.Uint32(data[off+j*4 : off+(j+1)*4])))
			}
			msat = append(msat, ext[:len(ext)-1]...)
			sid = ext[len(ext)-1]
		}
	}

	r.sat = make([]int, 0, len(msat)*nent)
	for _, msid := range msat {
		if msid == freeSector || msid == endOfChain || msid < 0 || msid >= numDataSects {
			continue
		}
		off := sigHeaderSize + msid*r.sectorSize
		if off+r.sectorSize > len(data) {
			continue
		}
		sector := make([]int, nent)
		for i := range sector {
			sector[i] = int(int32(binary.LittleEndian.Uint32(data[off+i*4 : off+(i+1)*4])))
		}
		r.sat = append(r.sat, sector...)
	}

	dirBytes, err := r.readChain(dirFirstSect, -1)
	if err != nil {
		return nil, fmt.Errorf("cfb: open: directory stream: %w", err)
	}

	for pos := 0; pos+dirEntrySize <= len(dirBytes); pos += dirEntrySize {
		dent := dirBytes[pos : pos+dirEntrySize]
		cbufsize := int(binary.LittleEndian.Uint16(dent[64:66]))
		etype := int(dent[66])
		left := int(int32(binary.LittleEndian.Uint32(dent[68:72])))
		right := int(int32(binary.LittleEndian.Uint32(dent[72:76])))
		root := int(int32(binary.LittleEndian.Uint32(dent[76:80])))
		firstSect := int(int32(binary.LittleEndian.Uint32(dent[116:120])))
		size := int(int32(binary.LittleEndian.Uint32(dent[120:124])))

		var name string
		if cbufsize >= 2 && cbufsize <= 64 {
			raw := dent[0 : cbufsize-2]
			if len(raw)%2 == 0 {
				units := make([]uint16, len(raw)/2)
				for i := range units {
					units[i] = binary.LittleEndian.Uint16(raw[i*2 : i*2+2])
				}
				name = string(utf16.Decode(units))
			}
		}

		r.entries = append(r.entries, entry{
			name: name, etype: etype, left: left, right: right,
			root: root, firstSect: firstSect, size: size, parent: -1,
		})
	}

	if len(r.entries) > 0 {
		r.buildTree(0, r.entries[0].root)

		root := r.entries[0]
		if root.firstSect >= 0 && root.size > 0 {
			r.ministream, err = r.readChain(root.firstSect, root.size)
			if err != nil {
				return nil, fmt.Errorf("cfb: open: ministream: %w", err)
			}
		}

		if ssatTotSects > 0 && len(r.ministream) > 0 {
			r.ssat = make([]int, 0, ssatTotSects*nent)
			sid := ssatFirstSect
			for n := 0; n < ssatTotSects && sid >= 0 && sid < len(r.sat); n++ {
				off := sigHeaderSize + sid*r.sectorSize
				if off+r.sectorSize > len(data) {
					break
				}
				sector := make([]int, nent)
				for i := range sector {
					sector[i] = int(int32(binary.LittleEndian.Uint32(data[off+i*4 : off+(i+1)*4])))
				}
				r.ssat = append(r.ssat, sector...)
				sid = r.sat[sid]
			}
		}
	}

	return r, nil
}

func (r *Reader) buildTree(parent, child int) {
	if child < 0 || child >= len(r.entries) {
		return
	}
	r.buildTree(parent, r.entries[child].left)
	r.entries[parent].children = append(r.entries[parent].children, child)
	r.entries[child].parent = parent
	r.buildTree(parent, r.entries[child].right)
	if r.entries[child].etype == entryStorage || r.entries[child].etype == entryRoot {
		r.buildTree(child, r.entries[child].root)
	}
}

// readChain follows a normal (non-mini) sector chain starting at sid,
// returning up to expectedSize bytes (or the full chain if expectedSize<0).
func (r *Reader) readChain(sid int, expectedSize int) ([]byte, error) {
	var out []byte
	seen := make(map[int]bool)
	for sid >= 0 {
		if seen[sid] {
			return nil, fmt.Errorf("cfb: sector chain cycle at %d", sid)
		}
		seen[sid] = true
		off := sigHeaderSize + sid*r.sectorSize
		if off+r.sectorSize > len(r.data) {
			break
		}
		out = append(out, r.data[off:off+r.sectorSize]...)
		if expectedSize >= 0 && len(out) >= expectedSize {
			return out[:expectedSize], nil
		}
		if sid >= len(r.sat) {
			break
		}
		sid = r.sat[sid]
	}
	if expectedSize >= 0 && len(out) < expectedSize {
		return nil, fmt.Errorf("cfb: sector chain shorter than expected size %d (got %d)", expectedSize, len(out))
	}
	return out, nil
}

// readMiniChain follows a mini-sector chain within the ministream.
func (r *Reader) readMiniChain(sid int, size int) ([]byte, error) {
	out := make([]byte, 0, size)
	seen := make(map[int]bool)
	for sid >= 0 && len(out) < size {
		if seen[sid] {
			return nil, fmt.Errorf("cfb: mini sector chain cycle at %d", sid)
		}
		seen[sid] = true
		off := sid * r.shortSectorSize
		if off+r.shortSectorSize > len(r.ministream) {
			break
		}
		grab := r.shortSectorSize
		if remain := size - len(out); grab > remain {
			grab = remain
		}
		out = append(out, r.ministream[off:off+grab]...)
		if sid >= len(r.ssat) {
			break
		}
		sid = r.ssat[sid]
	}
	if len(out) < size {
		return nil, fmt.Errorf("cfb: mini sector chain shorter than expected size %d (got %d)", size, len(out))
	}
	return out, nil
}

func normalizeStreamPath(name string) []string {
	name = strings.TrimPrefix(name, "/")
	parts := strings.Split(name, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *Reader) find(path []string, storageDID int) *entry {
	if len(path) == 0 || storageDID < 0 || storageDID >= len(r.entries) {
		return nil
	}
	head := strings.ToLower(path[0])
	for _, child := range r.entries[storageDID].children {
		e := &r.entries[child]
		if strings.ToLower(e.name) != head {
			continue
		}
		if e.etype == entryStream {
			if len(path) == 1 {
				return e
			}
			return nil
		}
		if e.etype == entryStorage {
			if len(path) == 1 {
				return nil
			}
			return r.find(path[1:], child)
		}
	}
	return nil
}

// Stream returns the bytes of the named stream. Name is matched
// case-insensitively, with or without a leading slash, resolving
// storage/stream path components separated by "/".
func (r *Reader) Stream(name string) ([]byte, error) {
	path := normalizeStreamPath(name)
	if len(r.entries) == 0 {
		return nil, fmt.Errorf("cfb: stream %q: not found", name)
	}
	e := r.find(path, 0)
	if e == nil {
		return nil, fmt.Errorf("cfb: stream %q: not found", name)
	}
	if e.size >= r.miniCutoff {
		return r.readChain(e.firstSect, e.size)
	}
	return r.readMiniChain(e.firstSect, e.size)
}

// Streams lists all stream names in the container, in directory order,
// with full "/"-joined paths rooted at the package root.
func (r *Reader) Streams() []string {
	if len(r.entries) == 0 {
		return nil
	}
	var out []string
	var walk func(did int, prefix string)
	walk = func(did int, prefix string) {
		for _, child := range r.entries[did].children {
			e := &r.entries[child]
			full := prefix + e.name
			switch e.etype {
			case entryStream:
				out = append(out, full)
			case entryStorage:
				walk(child, full+"/")
			}
		}
	}
	walk(0, "")
	return out
}

// HasStream reports whether the named stream exists.
func (r *Reader) HasStream(name string) bool {
	if len(r.entries) == 0 {
		return false
	}
	return r.find(normalizeStreamPath(name), 0) != nil
}
