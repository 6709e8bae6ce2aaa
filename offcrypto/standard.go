package offcrypto

import (
	"crypto/aes"
	"crypto/rc4"
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/wilson-anysphere/formula-sub015/offcrypto/keyderive"
	"github.com/wilson-anysphere/formula-sub015/xlerr"
)

// Standard/CryptoAPI algorithm identifiers, [MS-OFFCRYPTO] §2.3.2.
const (
	calgRC4    = 0x6801
	calgAES128 = 0x660E
	calgAES192 = 0x660F
	calgAES256 = 0x6610

	calgMD5  = 0x8003
	calgSHA1 = 0x8004

	flagCryptoAPI = 0x04
	flagAES       = 0x20
)

// StandardEncryptionInfo is the parsed binary EncryptionHeader +
// EncryptionVerifier pair that follows the version/flags header of a
// Standard (CryptoAPI) EncryptionInfo stream.
type StandardEncryptionInfo struct {
	AlgID       uint32
	AlgIDHash   uint32
	KeyBits     uint32
	ProviderType uint32
	CSPName     string

	Salt                  []byte
	EncryptedVerifier     []byte
	VerifierHashSize      uint32
	EncryptedVerifierHash []byte
}

// ParseStandardEncryptionInfo parses a Standard/CryptoAPI EncryptionInfo
// stream: 8-byte version+flags header, 4-byte EncryptionHeader size, the
// EncryptionHeader itself, then the EncryptionVerifier.
func ParseStandardEncryptionInfo(data []byte) (*StandardEncryptionInfo, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("offcrypto: Standard EncryptionInfo: %w", xlerr.ErrTruncated)
	}
	headerSize := binary.LittleEndian.Uint32(data[8:12])
	pos := 12
	if pos+int(headerSize) > len(data) {
		return nil, fmt.Errorf("offcrypto: Standard EncryptionInfo: header size %d exceeds stream: %w", headerSize, xlerr.ErrTruncated)
	}
	header := data[pos : pos+int(headerSize)]
	pos += int(headerSize)

	if len(header) < 32 {
		return nil, fmt.Errorf("offcrypto: Standard EncryptionHeader: %w", xlerr.ErrTruncated)
	}
	info := &StandardEncryptionInfo{
		AlgID:        binary.LittleEndian.Uint32(header[8:12]),
		AlgIDHash:    binary.LittleEndian.Uint32(header[12:16]),
		KeyBits:      binary.LittleEndian.Uint32(header[16:20]),
		ProviderType: binary.LittleEndian.Uint32(header[20:24]),
	}
	if len(header) > 32 {
		info.CSPName = decodeUTF16LEZ(header[32:])
	}

	if pos+4 > len(data) {
		return nil, fmt.Errorf("offcrypto: Standard EncryptionVerifier: %w", xlerr.ErrTruncated)
	}
	saltSize := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if pos+saltSize > len(data) {
		return nil, fmt.Errorf("offcrypto: Standard EncryptionVerifier salt: %w", xlerr.ErrTruncated)
	}
	info.Salt = data[pos : pos+saltSize]
	pos += saltSize

	const encryptedVerifierSize = 16
	if pos+encryptedVerifierSize > len(data) {
		return nil, fmt.Errorf("offcrypto: Standard EncryptionVerifier: %w", xlerr.ErrTruncated)
	}
	info.EncryptedVerifier = data[pos : pos+encryptedVerifierSize]
	pos += encryptedVerifierSize

	if pos+4 > len(data) {
		return nil, fmt.Errorf("offcrypto: Standard EncryptionVerifier hash size: %w", xlerr.ErrTruncated)
	}
	info.VerifierHashSize = binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4

	remaining := len(data) - pos
	if remaining < int(info.VerifierHashSize) {
		return nil, fmt.Errorf("offcrypto: Standard EncryptionVerifier hash: %w", xlerr.ErrTruncated)
	}
	info.EncryptedVerifierHash = data[pos:]

	return info, nil
}

func decodeUTF16LEZ(b []byte) string {
	var units []uint16
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i : i+2])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

func (info *StandardEncryptionInfo) hashAlg() (keyderive.HashAlg, error) {
	switch info.AlgIDHash {
	case calgMD5:
		return keyderive.MD5, nil
	case calgSHA1:
		return keyderive.SHA1, nil
	default:
		return 0, fmt.Errorf("offcrypto: Standard: unsupported AlgIDHash 0x%08X: %w", info.AlgIDHash, xlerr.ErrUnsupportedOoxmlEncryption)
	}
}

func (info *StandardEncryptionInfo) keyLenBytes() int {
	if info.KeyBits == 0 {
		return 5 // RC4 40-bit default when KeyBits is unset
	}
	return int(info.KeyBits) / 8
}

// deriveKey runs the fixed-50000-spin password hash and CryptDeriveKey
// expansion that both RC4 and AES Standard-mode decryption share.
func (info *StandardEncryptionInfo) deriveKey(password string) ([]byte, error) {
	alg, err := info.hashAlg()
	if err != nil {
		return nil, err
	}
	pw := keyderive.PasswordUTF16LE(password)
	h := keyderive.HashPasswordFixedSpin(pw, info.Salt, alg)
	return keyderive.CryptDeriveKey(h, info.keyLenBytes(), alg), nil
}

// aesECBDecrypt decrypts ciphertext block-by-block with no chaining, the
// mode [MS-OFFCRYPTO] Standard encryption uses for both the verifier and
// the EncryptedPackage stream. crypto/aes provides only the block cipher
// primitive; ECB is a trivial per-block loop, not a chaining mode stdlib
// exposes directly.
func aesECBDecrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("offcrypto: aes.NewCipher: %w", err)
	}
	bs := block.BlockSize()
	if len(ciphertext)%bs != 0 {
		return nil, fmt.Errorf("offcrypto: ciphertext not a multiple of the block size: %w", xlerr.ErrInvalid)
	}
	out := make([]byte, len(ciphertext))
	for off := 0; off < len(ciphertext); off += bs {
		block.Decrypt(out[off:off+bs], ciphertext[off:off+bs])
	}
	return out, nil
}

// VerifyStandardPassword checks a password against a Standard/CryptoAPI
// EncryptionInfo's verifier, using the AlgID to select AES or RC4.
func VerifyStandardPassword(info *StandardEncryptionInfo, password string) error {
	key, err := info.deriveKey(password)
	if err != nil {
		return err
	}
	alg, _ := info.hashAlg()

	var verifier, verifierHash []byte
	switch info.AlgID {
	case calgAES128, calgAES192, calgAES256:
		verifier, err = aesECBDecrypt(key, info.EncryptedVerifier)
		if err != nil {
			return fmt.Errorf("offcrypto: Standard: decrypting verifier: %w", err)
		}
		verifierHash, err = aesECBDecrypt(key, info.EncryptedVerifierHash)
		if err != nil {
			return fmt.Errorf("offcrypto: Standard: decrypting verifier hash: %w", err)
		}
	case calgRC4:
		c, err := rc4.NewCipher(key)
		if err != nil {
			return fmt.Errorf("offcrypto: rc4.NewCipher: %w", err)
		}
		verifier = make([]byte, len(info.EncryptedVerifier))
		c.XORKeyStream(verifier, info.EncryptedVerifier)
		verifierHash = make([]byte, len(info.EncryptedVerifierHash))
		c.XORKeyStream(verifierHash, info.EncryptedVerifierHash)
	default:
		return fmt.Errorf("offcrypto: Standard: unsupported AlgID 0x%08X: %w", info.AlgID, xlerr.ErrUnsupportedOoxmlEncryption)
	}

	h := alg.New()
	h.Write(verifier)
	computed := h.Sum(nil)
	if len(verifierHash) < len(computed) {
		return fmt.Errorf("offcrypto: Standard: verifier hash too short: %w", xlerr.ErrInvalid)
	}
	for i := range computed {
		if computed[i] != verifierHash[i] {
			return xlerr.ErrWrongPassword
		}
	}
	return nil
}

// DecryptStandardPackage verifies the password and decrypts the
// EncryptedPackage stream as a single AES-ECB or RC4 ciphertext (Standard
// mode, unlike Agile, does not segment the package or vary the key/IV per
// block for AES; RC4-CryptoAPI rekeys every 0x200 bytes, handled below).
func DecryptStandardPackage(info *StandardEncryptionInfo, encryptedPackage []byte, password string, warnings *xlerr.Warnings) ([]byte, error) {
	if err := VerifyStandardPassword(info, password); err != nil {
		return nil, fmt.Errorf("offcrypto: Standard: %w", err)
	}
	key, err := info.deriveKey(password)
	if err != nil {
		return nil, err
	}

	var plain []byte
	switch info.AlgID {
	case calgAES128, calgAES192, calgAES256:
		plain, err = aesECBDecrypt(key, encryptedPackage)
		if err != nil {
			return nil, fmt.Errorf("offcrypto: Standard: decrypting package: %w", err)
		}
	case calgRC4:
		plain, err = rc4CryptoAPIDecrypt(info, password, encryptedPackage)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("offcrypto: Standard: unsupported AlgID 0x%08X: %w", info.AlgID, xlerr.ErrUnsupportedOoxmlEncryption)
	}

	return stripPackageSizePrefix(plain)
}

const rc4CryptoAPIBlockSize = 0x200

// rc4CryptoAPIDecrypt decrypts a CryptoAPI RC4-encrypted package, which
// rekeys every 0x200-byte block: block N's key is
// CryptDeriveKey(Hash(H || LE32(N)), keyLen), independently re-deriving RC4
// state per block rather than running one stream cipher across the whole
// package.
func rc4CryptoAPIDecrypt(info *StandardEncryptionInfo, password string, ciphertext []byte) ([]byte, error) {
	alg, err := info.hashAlg()
	if err != nil {
		return nil, err
	}
	pw := keyderive.PasswordUTF16LE(password)
	h := keyderive.HashPasswordFixedSpin(pw, info.Salt, alg)

	out := make([]byte, len(ciphertext))
	for off := 0; off < len(ciphertext); off += rc4CryptoAPIBlockSize {
		end := off + rc4CryptoAPIBlockSize
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		blockNum := uint32(off / rc4CryptoAPIBlockSize)
		blockHash := keyderive.FinalHash(h, blockNum, alg)
		blockKey := keyderive.CryptDeriveKey(blockHash, info.keyLenBytes(), alg)
		c, err := rc4.NewCipher(blockKey)
		if err != nil {
			return nil, fmt.Errorf("offcrypto: rc4.NewCipher: %w", err)
		}
		c.XORKeyStream(out[off:end], ciphertext[off:end])
	}
	return out, nil
}
