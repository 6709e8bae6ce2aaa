package vba

import (
	"fmt"

	"github.com/wilson-anysphere/formula-sub015/cfb"
)

// MS-OVBA dir-record stream-element ids this package cares about (section
// 2.3.4.2 PROJECTINFORMATION / 2.3.4.3 PROJECTMODULES record types).
const (
	recProjectSysKind        = 0x0001
	recProjectLcid           = 0x0002
	recProjectCodepage       = 0x0003
	recProjectName           = 0x0004
	recProjectDocString      = 0x0005
	recProjectHelpFilePath   = 0x0006
	recProjectHelpContext    = 0x0007
	recProjectLibFlags       = 0x0008
	recProjectVersion        = 0x0009
	recProjectConstants      = 0x000C
	recProjectNameUnicode    = 0x0040
	recProjectDocStringU     = 0x0041
	recProjectHelpFilePathU  = 0x0042
	recProjectConstantsU     = 0x0043
	recModuleName            = 0x0019
	recModuleStreamName      = 0x001A
	recModuleDocString       = 0x001B
	recModuleHelpFilePath    = 0x001D
	recModuleNameUnicode     = 0x0047
	recModuleStreamNameU     = 0x0048
	recModuleDocStringU      = 0x0049
	recModuleHelpFilePathU   = 0x004A // also PROJECTCOMPATVERSION before the first module group
)

// projectUnicodePresence tracks, for a project, which project-level fields
// have a Unicode record variant present in the dir stream (in which case
// the corresponding ANSI record is omitted from the normalized transcript).
type projectUnicodePresence struct {
	name           bool
	docString      bool
	helpFilePath   bool
	constants      bool
}

// moduleUnicodePresence is the same tracking, scoped to one module record
// group (started by a MODULENAME record).
type moduleUnicodePresence struct {
	name         bool
	streamName   bool
	docString    bool
	helpFilePath bool
}

// ProjectNormalizedDataV3DirRecords builds a dir-record-only v3
// project/module metadata transcript from a vbaProject.bin OLE container's
// VBA/dir stream (MS-OVBA 2.4.2.6), for use as one input to ContentsHashV3 /
// \x05DigitalSignatureExt binding verification.
//
// This does not include v3 module source normalization (V3ContentNormalizedData)
// or designer storage bytes (FormsNormalizedData) — both require walking
// module source streams and designer storages this package does not parse.
//
// Records are processed in the stream's stored order. Only normalized
// record *data* is concatenated; the 6-byte id+len header is never
// included. Where a field has both ANSI and Unicode record variants, the
// Unicode record is preferred when present and the ANSI record is omitted.
func ProjectNormalizedDataV3DirRecords(vbaProjectBin []byte) ([]byte, error) {
	r, err := cfb.Open(vbaProjectBin)
	if err != nil {
		return nil, fmt.Errorf("vba: open OLE container: %w", err)
	}
	if !r.HasStream("VBA/dir") {
		return nil, fmt.Errorf("vba: OLE container has no VBA/dir stream")
	}
	dirRaw, err := r.Stream("VBA/dir")
	if err != nil {
		return nil, fmt.Errorf("vba: read VBA/dir: %w", err)
	}
	dir, err := Decompress(dirRaw)
	if err != nil {
		return nil, fmt.Errorf("vba: decompress VBA/dir: %w", err)
	}

	projectUnicode, modulesUnicode, err := scanUnicodePresence(dir)
	if err != nil {
		return nil, err
	}

	var out []byte
	offset := 0
	moduleIdx := 0
	var currentModuleUnicode moduleUnicodePresence

	for offset < len(dir) {
		id, data, next, err := readDirRecord(dir, offset)
		if err != nil {
			return nil, err
		}
		offset = next

		switch id {
		case recProjectSysKind, recProjectLcid, recProjectCodepage,
			recProjectHelpContext, recProjectLibFlags, recProjectVersion:
			out = append(out, data...)

		case recProjectName:
			if !projectUnicode.name {
				out = append(out, data...)
			}
		case recProjectDocString:
			if !projectUnicode.docString {
				out = append(out, data...)
			}
		case recProjectHelpFilePath:
			if !projectUnicode.helpFilePath {
				out = append(out, data...)
			}
		case recProjectConstants:
			if !projectUnicode.constants {
				out = append(out, data...)
			}

		case recProjectNameUnicode, recProjectDocStringU, recProjectHelpFilePathU, recProjectConstantsU:
			payload, err := unicodeRecordPayload(data)
			if err != nil {
				return nil, err
			}
			out = append(out, payload...)

		case recModuleName:
			if moduleIdx < len(modulesUnicode) {
				currentModuleUnicode = modulesUnicode[moduleIdx]
			} else {
				currentModuleUnicode = moduleUnicodePresence{}
			}
			moduleIdx++
			if !currentModuleUnicode.name {
				out = append(out, data...)
			}

		case recModuleStreamName:
			if !currentModuleUnicode.streamName {
				out = append(out, trimReservedU16(data)...)
			}
		case recModuleDocString:
			if !currentModuleUnicode.docString {
				out = append(out, data...)
			}
		case recModuleHelpFilePath:
			// 0x001D is the MODULEHELPFILEPATH ANSI record, distinct from
			// the 0x004A id collision handled below.
			if !currentModuleUnicode.helpFilePath {
				out = append(out, data...)
			}

		case 0x001E, 0x0021, 0x0025, 0x0028:
			out = append(out, data...)

		case recModuleNameUnicode, recModuleStreamNameU, recModuleDocStringU:
			payload, err := unicodeRecordPayload(data)
			if err != nil {
				return nil, err
			}
			out = append(out, payload...)

		case recModuleHelpFilePathU:
			// 0x004A collides between PROJECTCOMPATVERSION (project-level,
			// appears before any module group) and MODULEHELPFILEPATHUNICODE
			// (module-level). Only the module variant is part of V3.
			if moduleIdx != 0 {
				payload, err := unicodeRecordPayload(data)
				if err != nil {
					return nil, err
				}
				out = append(out, payload...)
			}

		default:
			// All other records (references, offsets, cookie, ...) are
			// excluded from V3 ProjectNormalizedData.
		}
	}

	return out, nil
}

func scanUnicodePresence(dir []byte) (projectUnicodePresence, []moduleUnicodePresence, error) {
	var project projectUnicodePresence
	var modules []moduleUnicodePresence
	currentModule := -1

	offset := 0
	for offset < len(dir) {
		id, _, next, err := readDirRecord(dir, offset)
		if err != nil {
			return project, nil, err
		}
		offset = next

		switch id {
		case recModuleName:
			currentModule = len(modules)
			modules = append(modules, moduleUnicodePresence{})

		case recProjectNameUnicode:
			project.name = true
		case recProjectDocStringU:
			project.docString = true
		case recProjectHelpFilePathU:
			project.helpFilePath = true
		case recProjectConstantsU:
			project.constants = true

		case recModuleNameUnicode:
			if currentModule >= 0 {
				modules[currentModule].name = true
			}
		case recModuleStreamNameU:
			if currentModule >= 0 {
				modules[currentModule].streamName = true
			}
		case recModuleDocStringU:
			if currentModule >= 0 {
				modules[currentModule].docString = true
			}
		case recModuleHelpFilePathU:
			if currentModule >= 0 {
				modules[currentModule].helpFilePath = true
			}
		}
	}
	return project, modules, nil
}

// readDirRecord reads one MS-OVBA dir-record TLV at offset: a 2-byte LE id,
// a 4-byte LE length, then that many bytes of data.
func readDirRecord(buf []byte, offset int) (id uint16, data []byte, next int, err error) {
	if offset+6 > len(buf) {
		return 0, nil, 0, fmt.Errorf("vba: truncated dir record at offset %d", offset)
	}
	id = uint16(buf[offset]) | uint16(buf[offset+1])<<8
	length := uint32(buf[offset+2]) | uint32(buf[offset+3])<<8 | uint32(buf[offset+4])<<16 | uint32(buf[offset+5])<<24
	dataStart := offset + 6
	dataEnd := dataStart + int(length)
	if dataEnd > len(buf) || dataEnd < dataStart {
		return 0, nil, 0, fmt.Errorf("vba: dir record 0x%04x at offset %d has invalid length %d", id, offset, length)
	}
	return id, buf[dataStart:dataEnd], dataEnd, nil
}

// trimReservedU16 drops a trailing reserved 0x0000 u16 from an ANSI
// MODULESTREAMNAME record's data when present.
func trimReservedU16(data []byte) []byte {
	if len(data) >= 2 && data[len(data)-2] == 0 && data[len(data)-1] == 0 {
		return data[:len(data)-2]
	}
	return data
}

// unicodeRecordPayload strips a Unicode dir-record's internal u32 length
// prefix, returning only its UTF-16LE payload bytes. The length is usually a
// UTF-16 code-unit count, but some producers write a byte count instead;
// this accepts whichever interpretation exactly consumes the record,
// preferring the code-unit interpretation when both would fit.
func unicodeRecordPayload(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("vba: unicode record payload truncated")
	}
	n := int(uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24)
	remaining := len(data) - 4

	bytesByUnits := n * 2
	if n != 0 && bytesByUnits/2 != n {
		bytesByUnits = -1 // overflow guard; n is already bounded by the record length in practice
	}

	if bytesByUnits == remaining {
		return data[4 : 4+bytesByUnits], nil
	}
	if n == remaining {
		return data[4 : 4+n], nil
	}
	if bytesByUnits >= 0 && bytesByUnits <= remaining {
		return data[4 : 4+bytesByUnits], nil
	}
	if n <= remaining {
		return data[4 : 4+n], nil
	}
	return nil, fmt.Errorf("vba: unicode record payload length %d exceeds record size %d", n, remaining)
}
