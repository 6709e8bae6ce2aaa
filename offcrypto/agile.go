package offcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"encoding/base64"
	"encoding/xml"
	"fmt"

	"github.com/wilson-anysphere/formula-sub015/offcrypto/keyderive"
	"github.com/wilson-anysphere/formula-sub015/xlerr"
)

const agileSegmentSize = 4096

// AgileEncryptionInfo is the parsed <encryption> XML descriptor that
// follows the 8-byte version/flags header of an Agile EncryptionInfo
// stream.
type AgileEncryptionInfo struct {
	XMLName xml.Name `xml:"encryption"`

	KeyData struct {
		SaltSize        int    `xml:"saltSize,attr"`
		BlockSize       int    `xml:"blockSize,attr"`
		KeyBits         int    `xml:"keyBits,attr"`
		HashSize        int    `xml:"hashSize,attr"`
		CipherAlgorithm string `xml:"cipherAlgorithm,attr"`
		CipherChaining  string `xml:"cipherChaining,attr"`
		HashAlgorithm   string `xml:"hashAlgorithm,attr"`
		SaltValue       string `xml:"saltValue,attr"`
	} `xml:"keyData"`

	DataIntegrity struct {
		EncryptedHmacKey   string `xml:"encryptedHmacKey,attr"`
		EncryptedHmacValue string `xml:"encryptedHmacValue,attr"`
	} `xml:"dataIntegrity"`

	KeyEncryptors struct {
		KeyEncryptor []struct {
			URI          string              `xml:"uri,attr"`
			EncryptedKey agileEncryptedKeyXML `xml:"encryptedKey"`
		} `xml:"keyEncryptor"`
	} `xml:"keyEncryptors"`
}

// agileEncryptedKeyXML is the password <keyEncryptor>'s <p:encryptedKey>
// element: the spin count, salt, and the three encrypted fields password
// verification and key unwrap depend on.
type agileEncryptedKeyXML struct {
	SpinCount                  int    `xml:"spinCount,attr"`
	SaltSize                   int    `xml:"saltSize,attr"`
	BlockSize                  int    `xml:"blockSize,attr"`
	KeyBits                    int    `xml:"keyBits,attr"`
	HashSize                   int    `xml:"hashSize,attr"`
	CipherAlgorithm            string `xml:"cipherAlgorithm,attr"`
	CipherChaining             string `xml:"cipherChaining,attr"`
	HashAlgorithm              string `xml:"hashAlgorithm,attr"`
	SaltValue                  string `xml:"saltValue,attr"`
	EncryptedVerifierHashInput string `xml:"encryptedVerifierHashInput,attr"`
	EncryptedVerifierHashValue string `xml:"encryptedVerifierHashValue,attr"`
	EncryptedKeyValue          string `xml:"encryptedKeyValue,attr"`
}

const passwordKeyEncryptorURI = "http://schemas.microsoft.com/office/2006/keyEncryptor/password"

// ParseAgileEncryptionInfo parses the 8-byte header + XML descriptor of an
// Agile EncryptionInfo stream.
func ParseAgileEncryptionInfo(data []byte) (*AgileEncryptionInfo, error) {
	v, err := readVersion(data)
	if err != nil {
		return nil, err
	}
	if v != Agile {
		return nil, fmt.Errorf("offcrypto: ParseAgileEncryptionInfo: version %d.%d is not Agile: %w", v.Major, v.Minor, xlerr.ErrUnsupportedOoxmlEncryption)
	}
	var info AgileEncryptionInfo
	if err := xml.Unmarshal(data[8:], &info); err != nil {
		return nil, fmt.Errorf("offcrypto: ParseAgileEncryptionInfo: %w: %v", xlerr.ErrInvalid, err)
	}
	return &info, nil
}

func b64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// passwordEncryptor returns the first password-based <keyEncryptor>, the
// only kind this module supports (certificate-based key encryptors are
// out of scope; no IRM/DRM support is provided).
func (info *AgileEncryptionInfo) passwordEncryptor() (*agileEncryptedKeyXML, error) {
	for i := range info.KeyEncryptors.KeyEncryptor {
		ke := &info.KeyEncryptors.KeyEncryptor[i]
		if ke.URI == passwordKeyEncryptorURI {
			return &ke.EncryptedKey, nil
		}
	}
	return nil, fmt.Errorf("offcrypto: Agile: no password key encryptor present: %w", xlerr.ErrUnsupportedOoxmlEncryption)
}

func cbcDecryptNoPadding(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("offcrypto: aes.NewCipher: %w", err)
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("offcrypto: ciphertext not a multiple of the block size: %w", xlerr.ErrInvalid)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// AgileDerivedKeys holds the password-encryptor-derived intermediate hash
// used to verify the password and to unwrap the package key.
type AgileDerivedKeys struct {
	hFinal  []byte
	alg     keyderive.HashAlg
	keyBits int
}

// DeriveAgileKeys runs the password spin loop for the password key
// encryptor and returns the derived-key handle, without yet verifying the
// password or unwrapping the package key.
func DeriveAgileKeys(info *AgileEncryptionInfo, password string) (*AgileDerivedKeys, error) {
	enc, err := info.passwordEncryptor()
	if err != nil {
		return nil, err
	}
	alg, err := keyderive.HashAlgFromName(enc.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("offcrypto: Agile: %w", err)
	}
	salt, err := b64(enc.SaltValue)
	if err != nil {
		return nil, fmt.Errorf("offcrypto: Agile: saltValue: %w: %v", xlerr.ErrInvalid, err)
	}
	pw := keyderive.PasswordUTF16LE(password)
	hFinal := keyderive.IteratedHash(salt, pw, enc.SpinCount, alg)
	return &AgileDerivedKeys{hFinal: hFinal, alg: alg, keyBits: enc.KeyBits}, nil
}

// VerifyPassword checks the derived keys against the encryptedVerifierHash
// pair, returning xlerr.ErrWrongPassword on mismatch.
func (k *AgileDerivedKeys) VerifyPassword(info *AgileEncryptionInfo) error {
	enc, err := info.passwordEncryptor()
	if err != nil {
		return err
	}
	encVerifierInput, err := b64(enc.EncryptedVerifierHashInput)
	if err != nil {
		return fmt.Errorf("offcrypto: Agile: encryptedVerifierHashInput: %w", xlerr.ErrInvalid)
	}
	encVerifierHash, err := b64(enc.EncryptedVerifierHashValue)
	if err != nil {
		return fmt.Errorf("offcrypto: Agile: encryptedVerifierHashValue: %w", xlerr.ErrInvalid)
	}

	keyVerifierInput := keyderive.DeriveAgileKey(k.hFinal, keyderive.BlockKeyVerifierHashInput, k.alg, k.keyBits/8)
	saltIV, err := b64(enc.SaltValue)
	if err != nil {
		return fmt.Errorf("offcrypto: Agile: saltValue: %w", xlerr.ErrInvalid)
	}

	verifierInput, err := cbcDecryptNoPadding(keyVerifierInput, saltIV, encVerifierInput)
	if err != nil {
		return fmt.Errorf("offcrypto: Agile: decrypting verifier input: %w", err)
	}
	h := k.alg.New()
	h.Write(verifierInput)
	computedHash := h.Sum(nil)

	keyVerifierHash := keyderive.DeriveAgileKey(k.hFinal, keyderive.BlockKeyVerifierHashValue, k.alg, k.keyBits/8)
	verifierHash, err := cbcDecryptNoPadding(keyVerifierHash, saltIV, encVerifierHash)
	if err != nil {
		return fmt.Errorf("offcrypto: Agile: decrypting verifier hash: %w", err)
	}

	if !hmac.Equal(computedHash, verifierHash[:len(computedHash)]) {
		return xlerr.ErrWrongPassword
	}
	return nil
}

// UnwrapPackageKey decrypts the intermediate key material's encryptedKeyValue
// to recover the package key used to decrypt EncryptedPackage.
func (k *AgileDerivedKeys) UnwrapPackageKey(info *AgileEncryptionInfo) ([]byte, error) {
	enc, err := info.passwordEncryptor()
	if err != nil {
		return nil, err
	}
	encKeyValue, err := b64(enc.EncryptedKeyValue)
	if err != nil {
		return nil, fmt.Errorf("offcrypto: Agile: encryptedKeyValue: %w", xlerr.ErrInvalid)
	}
	saltIV, err := b64(enc.SaltValue)
	if err != nil {
		return nil, fmt.Errorf("offcrypto: Agile: saltValue: %w", xlerr.ErrInvalid)
	}
	keyEncryptKey := keyderive.DeriveAgileKey(k.hFinal, keyderive.BlockKeyEncryptedKeyValue, k.alg, k.keyBits/8)
	return cbcDecryptNoPadding(keyEncryptKey, saltIV, encKeyValue)
}

// DecryptAgilePackage verifies the password, unwraps the package key, and
// decrypts the EncryptedPackage stream segment-by-segment (4096-byte
// plaintext segments, each with its own IV derived from keyData/@saltValue
// and the segment index), returning the recovered ZIP/OPC bytes with the
// 8-byte size prefix stripped.
func DecryptAgilePackage(info *AgileEncryptionInfo, encryptedPackage []byte, password string, warnings *xlerr.Warnings) ([]byte, error) {
	keys, err := DeriveAgileKeys(info, password)
	if err != nil {
		return nil, err
	}
	if err := keys.VerifyPassword(info); err != nil {
		return nil, fmt.Errorf("offcrypto: Agile: %w", err)
	}
	packageKey, err := keys.UnwrapPackageKey(info)
	if err != nil {
		return nil, fmt.Errorf("offcrypto: Agile: unwrapping package key: %w", err)
	}

	keyDataSalt, err := b64(info.KeyData.SaltValue)
	if err != nil {
		return nil, fmt.Errorf("offcrypto: Agile: keyData saltValue: %w", xlerr.ErrInvalid)
	}
	keyDataAlg, err := keyderive.HashAlgFromName(info.KeyData.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("offcrypto: Agile: keyData: %w", err)
	}

	var plain bytes.Buffer
	for segIdx := 0; segIdx*agileSegmentSize < len(encryptedPackage); segIdx++ {
		start := segIdx * agileSegmentSize
		end := start + agileSegmentSize
		if end > len(encryptedPackage) {
			end = len(encryptedPackage)
		}
		seg := encryptedPackage[start:end]
		if len(seg)%info.KeyData.BlockSize != 0 {
			if warnings != nil {
				warnings.Add("offcrypto", "EncryptedPackage segment %d length %d is not a multiple of the block size; truncating", segIdx, len(seg))
			}
			seg = seg[:len(seg)-len(seg)%info.KeyData.BlockSize]
		}
		iv := keyderive.SegmentIV(keyDataSalt, uint32(segIdx), keyDataAlg, info.KeyData.BlockSize)
		dec, err := cbcDecryptNoPadding(packageKey, iv, seg)
		if err != nil {
			return nil, fmt.Errorf("offcrypto: Agile: decrypting segment %d: %w", segIdx, err)
		}
		plain.Write(dec)
	}

	return stripPackageSizePrefix(plain.Bytes())
}
