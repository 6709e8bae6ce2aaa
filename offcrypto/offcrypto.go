// Package offcrypto implements [MS-OFFCRYPTO] encryption framing for OOXML
// packages: the Agile (XML-descriptor) and Standard/CryptoAPI (binary
// header) EncryptionInfo variants, EncryptedPackage segment decryption, and
// password verification. Cryptographic primitives (AES, RC4, the hash
// functions) come from crypto/aes, crypto/cipher, crypto/rc4, and the
// offcrypto/keyderive helpers built on crypto/md5, crypto/sha1,
// crypto/sha256, crypto/sha512 — never reimplemented here.
package offcrypto

import (
	"encoding/binary"
	"fmt"

	"github.com/wilson-anysphere/formula-sub015/xlerr"
)

// Version identifies the EncryptionInfo stream's major/minor version pair,
// read from its first 4 bytes.
type Version struct {
	Major uint16
	Minor uint16
}

// Agile is the (4, 4) version pair.
var Agile = Version{Major: 4, Minor: 4}

func readVersion(data []byte) (Version, error) {
	if len(data) < 8 {
		return Version{}, fmt.Errorf("offcrypto: EncryptionInfo: %w", xlerr.ErrTruncated)
	}
	return Version{
		Major: binary.LittleEndian.Uint16(data[0:2]),
		Minor: binary.LittleEndian.Uint16(data[2:4]),
	}, nil
}

// DecryptPackage dispatches on the EncryptionInfo stream's version header
// and decrypts encryptedPackage using either the Agile or Standard
// (CryptoAPI) scheme, returning the recovered ZIP/OPC package bytes.
func DecryptPackage(encryptionInfo, encryptedPackage []byte, password string) ([]byte, *xlerr.Warnings, error) {
	v, err := readVersion(encryptionInfo)
	if err != nil {
		return nil, nil, err
	}

	var warnings xlerr.Warnings
	switch {
	case v == Agile:
		info, err := ParseAgileEncryptionInfo(encryptionInfo)
		if err != nil {
			return nil, &warnings, err
		}
		out, err := DecryptAgilePackage(info, encryptedPackage, password, &warnings)
		return out, &warnings, err
	case v.Major == 2 || v.Major == 3 || v.Major == 4:
		// Standard / Extensible encryption share the same binary
		// EncryptionHeader/EncryptionVerifier layout for our purposes.
		info, err := ParseStandardEncryptionInfo(encryptionInfo)
		if err != nil {
			return nil, &warnings, err
		}
		out, err := DecryptStandardPackage(info, encryptedPackage, password, &warnings)
		return out, &warnings, err
	default:
		return nil, &warnings, fmt.Errorf("offcrypto: EncryptionInfo version %d.%d: %w", v.Major, v.Minor, xlerr.ErrUnsupportedOoxmlEncryption)
	}
}

// stripPackageSizePrefix removes and returns the 8-byte little-endian
// original-package-size prefix from a decrypted EncryptedPackage stream,
// parsed defensively as lo=u32le, hi=u32le, size = lo | (hi<<32), tolerating
// producers that only ever populate the low DWORD.
func stripPackageSizePrefix(decrypted []byte) ([]byte, error) {
	if len(decrypted) < 8 {
		return nil, fmt.Errorf("offcrypto: decrypted package: %w", xlerr.ErrTruncated)
	}
	lo := binary.LittleEndian.Uint32(decrypted[0:4])
	hi := binary.LittleEndian.Uint32(decrypted[4:8])
	size := uint64(lo) | (uint64(hi) << 32)
	body := decrypted[8:]
	if size > uint64(len(body)) {
		return nil, fmt.Errorf("offcrypto: declared package size %d exceeds decrypted payload %d: %w", size, len(body), xlerr.ErrDeclaredSizeExceedsPayload)
	}
	return body[:size], nil
}
