// Package keyderive implements the MS-OFFCRYPTO password-to-key derivation
// primitives shared by the Agile and Standard (CryptoAPI) encryption modes:
// password hashing, spin iteration, segment IV derivation, and CryptoAPI's
// CryptDeriveKey byte expansion. It builds exclusively on stdlib hash
// implementations (crypto/md5, crypto/sha1, crypto/sha256, crypto/sha512);
// MS-OFFCRYPTO never requires anything beyond those four digests.
package keyderive

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"unicode/utf16"
)

// HashAlg identifies one of the digest algorithms MS-OFFCRYPTO permits for
// key derivation.
type HashAlg int

const (
	MD5 HashAlg = iota
	SHA1
	SHA256
	SHA384
	SHA512
)

// New returns a fresh hash.Hash for the algorithm.
func (a HashAlg) New() hash.Hash {
	switch a {
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	case SHA384:
		return sha512.New384()
	case SHA512:
		return sha512.New()
	default:
		panic(fmt.Sprintf("keyderive: unknown hash algorithm %d", a))
	}
}

// Size returns the digest length in bytes.
func (a HashAlg) Size() int {
	return a.New().Size()
}

// HashAlgFromName maps an EncryptionInfo hashAlgorithm/algIdHash attribute
// value (e.g. "SHA512", "SHA1") to a HashAlg.
func HashAlgFromName(name string) (HashAlg, error) {
	switch name {
	case "MD5":
		return MD5, nil
	case "SHA1", "SHA-1":
		return SHA1, nil
	case "SHA256", "SHA-256":
		return SHA256, nil
	case "SHA384", "SHA-384":
		return SHA384, nil
	case "SHA512", "SHA-512":
		return SHA512, nil
	default:
		return 0, fmt.Errorf("keyderive: unsupported hash algorithm %q", name)
	}
}

// PasswordUTF16LE encodes password as UTF-16LE bytes with no BOM and no NUL
// terminator, the encoding MS-OFFCRYPTO hashes password material in.
func PasswordUTF16LE(password string) []byte {
	units := utf16.Encode([]rune(password))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], u)
	}
	return out
}

func le32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

// IteratedHash runs the Agile/Standard spin loop:
//
//	H0 = Hash(salt || passwordUTF16LE)
//	Hi = Hash(LE32(i) || H(i-1))  for i in 0..spinCount
//
// returning the final digest H(spinCount-1). The Standard (CryptoAPI) mode
// always calls this with spinCount == 50000; Agile mode uses the spin count
// recorded in the EncryptionInfo XML.
func IteratedHash(salt, passwordUTF16LE []byte, spinCount int, alg HashAlg) []byte {
	h := alg.New()
	h.Write(salt)
	h.Write(passwordUTF16LE)
	sum := h.Sum(nil)

	for i := 0; i < spinCount; i++ {
		h.Reset()
		h.Write(le32(uint32(i)))
		h.Write(sum)
		sum = h.Sum(nil)
	}
	return sum
}

// HashPasswordFixedSpin is IteratedHash with the Standard (CryptoAPI) mode's
// fixed 50,000-iteration spin count, which (unlike Agile) is never stored in
// the file.
func HashPasswordFixedSpin(passwordUTF16LE, salt []byte, alg HashAlg) []byte {
	return IteratedHash(salt, passwordUTF16LE, 50000, alg)
}

// FinalHash computes Hash(h || LE32(block)), the Standard-mode per-block key
// material used before CryptDeriveKey expansion.
func FinalHash(h []byte, block uint32, alg HashAlg) []byte {
	hasher := alg.New()
	hasher.Write(h)
	hasher.Write(le32(block))
	return hasher.Sum(nil)
}

// CryptDeriveKey reproduces Windows CryptoAPI's CryptDeriveKey byte
// expansion used by MS-OFFCRYPTO Standard encryption: an HMAC-like
// ipad/opad construction over the digest, not a direct truncation.
// keyLenBytes must be <= 2*hash_len (the expansion only ever produces
// hashLen*2 bytes of key material).
func CryptDeriveKey(hashValue []byte, keyLenBytes int, alg HashAlg) []byte {
	hashLen := alg.Size()
	if len(hashValue) != hashLen {
		panic("keyderive: CryptDeriveKey: hashValue length mismatch")
	}
	if keyLenBytes > hashLen*2 {
		panic(fmt.Sprintf("keyderive: CryptDeriveKey: requested %d bytes exceeds the %d-byte limit for this hash", keyLenBytes, hashLen*2))
	}

	var buf [64]byte
	copy(buf[:], hashValue)

	var ipad, opad [64]byte
	for i := range buf {
		ipad[i] = buf[i] ^ 0x36
		opad[i] = buf[i] ^ 0x5C
	}

	key := make([]byte, hashLen*2)
	h1 := alg.New()
	h1.Write(ipad[:])
	copy(key[:hashLen], h1.Sum(nil))

	h2 := alg.New()
	h2.Write(opad[:])
	copy(key[hashLen:], h2.Sum(nil))

	return key[:keyLenBytes]
}

// Agile block-key constants from [MS-OFFCRYPTO] §2.3.4.11/§2.3.4.13: fixed
// 8-byte values appended to the final spin hash before the last hashing
// pass that derives each purpose-specific key.
var (
	BlockKeyVerifierHashInput = []byte{0xFE, 0xA7, 0xD2, 0x76, 0x3B, 0x4B, 0x9E, 0x79}
	BlockKeyVerifierHashValue = []byte{0xD7, 0xAA, 0x0F, 0x6D, 0x30, 0x61, 0x34, 0x4E}
	BlockKeyEncryptedKeyValue = []byte{0x14, 0x6E, 0x0B, 0xE7, 0xAB, 0xAC, 0xD0, 0xD6}
	BlockKeyHMACKey           = []byte{0x5F, 0xB2, 0xAD, 0x01, 0x0C, 0xB9, 0xE1, 0xF6}
	BlockKeyHMACValue         = []byte{0xA0, 0x67, 0x7F, 0x02, 0xB2, 0x2C, 0x84, 0x33}
)

// DeriveAgileKey computes Hash(hFinal || blockBytes) and pads (with 0x36) or
// truncates the digest to keyBytes, per MS-OFFCRYPTO's Agile-mode key
// generation rule (hash too short: pad; hash too long: truncate).
func DeriveAgileKey(hFinal, blockBytes []byte, alg HashAlg, keyBytes int) []byte {
	h := alg.New()
	h.Write(hFinal)
	h.Write(blockBytes)
	sum := h.Sum(nil)

	if len(sum) >= keyBytes {
		return sum[:keyBytes]
	}
	out := make([]byte, keyBytes)
	copy(out, sum)
	for i := len(sum); i < keyBytes; i++ {
		out[i] = 0x36
	}
	return out
}

// SegmentIV derives the per-segment IV used to encrypt/decrypt one 4096-byte
// EncryptedPackage segment in Agile mode:
//
//	iv_i = Truncate(blockSize, Hash(saltValue || LE32(i)))
func SegmentIV(saltValue []byte, segmentIndex uint32, alg HashAlg, blockSize int) []byte {
	h := alg.New()
	h.Write(saltValue)
	h.Write(le32(segmentIndex))
	sum := h.Sum(nil)
	if blockSize <= len(sum) {
		return sum[:blockSize]
	}
	out := make([]byte, blockSize)
	copy(out, sum)
	return out
}
