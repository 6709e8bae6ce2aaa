// Package fstore implements the FSTORAGE container: an AES-256-GCM sealed
// box used to persist derived-artifact caches (resolved style tables, shared
// string indexes, and similar recomputable state) between runs without
// storing them in plaintext on disk.
//
// Wire format (all integers big-endian except where noted):
//
//	magic       [8]byte  "FSTORAGE"
//	version     byte     currently 1
//	keyVersion  uint32
//	nonce       [12]byte
//	tag         [16]byte
//	ciphertext  []byte
//
// The additional authenticated data is magic||version||keyVersion, binding
// the header to the ciphertext so a container cannot be replayed under a
// different key version.
package fstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/wilson-anysphere/formula-sub015/xlerr"
)

const (
	keyLen   = 32
	nonceLen = 12
	tagLen   = 16

	containerVersion = 1
	headerLen        = 8 + 1 + 4 + nonceLen + tagLen
)

var containerMagic = [8]byte{'F', 'S', 'T', 'O', 'R', 'A', 'G', 'E'}

// ErrMissingKey is returned when a KeyRing has no key for the requested
// version, because the ring never generated a key at that version.
var ErrMissingKey = errors.New("fstore: missing key for version")

// IsEncryptedContainer reports whether data begins with the FSTORAGE magic.
func IsEncryptedContainer(data []byte) bool {
	return len(data) >= len(containerMagic) && string(data[:len(containerMagic)]) == string(containerMagic[:])
}

// KeyRing holds a set of AES-256 keys indexed by monotonically increasing
// version number, plus the version new containers are sealed under.
// KeyRing itself is not safe for concurrent use; KeyProvider implementations
// that share one across goroutines must guard it (see InMemoryKeyProvider).
type KeyRing struct {
	CurrentVersion uint32
	Keys           map[uint32][keyLen]byte
}

// NewRandomKeyRing generates a fresh single-key ring at version 1.
func NewRandomKeyRing() (*KeyRing, error) {
	var key [keyLen]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("fstore: generating key: %w", err)
	}
	return NewKeyRingFromKey(1, key), nil
}

// NewKeyRingFromKey builds a ring containing a single key at the given
// version, marked current.
func NewKeyRingFromKey(version uint32, key [keyLen]byte) *KeyRing {
	return &KeyRing{
		CurrentVersion: version,
		Keys:           map[uint32][keyLen]byte{version: key},
	}
}

// Clone returns a deep copy, so callers can hand a snapshot to a KeyProvider
// without it observing later in-place mutation.
func (kr *KeyRing) Clone() *KeyRing {
	cp := &KeyRing{CurrentVersion: kr.CurrentVersion, Keys: make(map[uint32][keyLen]byte, len(kr.Keys))}
	for v, k := range kr.Keys {
		cp.Keys[v] = k
	}
	return cp
}

// InsertKey adds or replaces the key at version, advancing CurrentVersion if
// version is newer than what the ring already tracks.
func (kr *KeyRing) InsertKey(version uint32, key [keyLen]byte) {
	if kr.Keys == nil {
		kr.Keys = make(map[uint32][keyLen]byte)
	}
	kr.Keys[version] = key
	if version > kr.CurrentVersion {
		kr.CurrentVersion = version
	}
}

// Rotate generates a new random key at CurrentVersion+1 and makes it current,
// retaining all previously issued keys so containers sealed under them can
// still be opened.
func (kr *KeyRing) Rotate() error {
	var key [keyLen]byte
	if _, err := rand.Read(key[:]); err != nil {
		return fmt.Errorf("fstore: rotating key: %w", err)
	}
	kr.InsertKey(kr.CurrentVersion+1, key)
	return nil
}

// CurrentKey returns the version and key bytes new containers should be
// sealed with.
func (kr *KeyRing) CurrentKey() (uint32, [keyLen]byte, error) {
	key, ok := kr.Keys[kr.CurrentVersion]
	if !ok {
		return 0, [keyLen]byte{}, fmt.Errorf("%w %d", ErrMissingKey, kr.CurrentVersion)
	}
	return kr.CurrentVersion, key, nil
}

// Key looks up the key for a specific version, as needed to open containers
// sealed before the most recent rotation.
func (kr *KeyRing) Key(version uint32) ([keyLen]byte, bool) {
	k, ok := kr.Keys[version]
	return k, ok
}

// KeyProvider is the consumer-supplied hook for loading and persisting a
// KeyRing. Platform-specific keychain integration belongs in the consumer,
// not in this package.
type KeyProvider interface {
	LoadKeyRing() (*KeyRing, error)
	StoreKeyRing(kr *KeyRing) error
}

// InMemoryKeyProvider is a KeyProvider backed by an in-process, mutex-guarded
// KeyRing. Useful in tests and as the degenerate case for callers that don't
// need durable key storage.
type InMemoryKeyProvider struct {
	mu sync.Mutex
	kr *KeyRing
}

// NewInMemoryKeyProvider wraps an optional initial KeyRing (nil means empty).
func NewInMemoryKeyProvider(kr *KeyRing) *InMemoryKeyProvider {
	return &InMemoryKeyProvider{kr: kr}
}

func (p *InMemoryKeyProvider) LoadKeyRing() (*KeyRing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.kr == nil {
		return nil, nil
	}
	return p.kr.Clone(), nil
}

func (p *InMemoryKeyProvider) StoreKeyRing(kr *KeyRing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kr = kr.Clone()
	return nil
}

// LoadOrCreateKeyRing loads the provider's ring, generating and persisting a
// fresh one if none exists and createIfMissing is set.
func LoadOrCreateKeyRing(provider KeyProvider, createIfMissing bool) (*KeyRing, error) {
	kr, err := provider.LoadKeyRing()
	if err != nil {
		return nil, fmt.Errorf("fstore: loading key ring: %w", err)
	}
	if kr != nil {
		return kr, nil
	}
	if !createIfMissing {
		return nil, fmt.Errorf("fstore: %w", ErrMissingKey)
	}
	kr, err = NewRandomKeyRing()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKeyRing(kr); err != nil {
		return nil, fmt.Errorf("fstore: storing new key ring: %w", err)
	}
	return kr, nil
}

// EncryptBytes seals plaintext under the ring's current key, returning a
// complete FSTORAGE container.
func EncryptBytes(plaintext []byte, kr *KeyRing) ([]byte, error) {
	version, key, err := kr.CurrentKey()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("fstore: %w: %v", xlerr.ErrInvalid, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceLen)
	if err != nil {
		return nil, fmt.Errorf("fstore: %w: %v", xlerr.ErrInvalid, err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("fstore: generating nonce: %w", err)
	}

	aad := aadForKeyVersion(version)
	sealed := gcm.Seal(nil, nonce, plaintext, aad) // ciphertext || tag

	ct := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]

	out := make([]byte, 0, headerLen+len(ct))
	out = append(out, containerMagic[:]...)
	out = append(out, containerVersion)
	out = append(out, beUint32(version)...)
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return out, nil
}

// DecryptBytes opens an FSTORAGE container produced by EncryptBytes,
// looking up the key version recorded in the header.
func DecryptBytes(container []byte, kr *KeyRing) ([]byte, error) {
	p, err := parseContainer(container)
	if err != nil {
		return nil, err
	}
	key, ok := kr.Key(p.keyVersion)
	if !ok {
		return nil, fmt.Errorf("fstore: %w %d", ErrMissingKey, p.keyVersion)
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("fstore: %w: %v", xlerr.ErrInvalid, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceLen)
	if err != nil {
		return nil, fmt.Errorf("fstore: %w: %v", xlerr.ErrInvalid, err)
	}

	aad := aadForKeyVersion(p.keyVersion)
	sealed := append(append([]byte{}, p.ciphertext...), p.tag...)
	plaintext, err := gcm.Open(nil, p.nonce, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("fstore: %w: %v", xlerr.ErrIntegrityFailure, err)
	}
	return plaintext, nil
}

type parsedContainer struct {
	keyVersion uint32
	nonce      []byte
	tag        []byte
	ciphertext []byte
}

func parseContainer(data []byte) (parsedContainer, error) {
	if len(data) < headerLen {
		return parsedContainer{}, fmt.Errorf("fstore: %w: container shorter than header", xlerr.ErrTruncated)
	}
	if string(data[:8]) != string(containerMagic[:]) {
		return parsedContainer{}, fmt.Errorf("fstore: %w: bad magic", xlerr.ErrInvalid)
	}
	version := data[8]
	if version != containerVersion {
		return parsedContainer{}, fmt.Errorf("fstore: %w: %d", xlerr.ErrUnsupportedContainerVersion, version)
	}
	keyVersion := binary.BigEndian.Uint32(data[9:13])
	nonce := data[13 : 13+nonceLen]
	tag := data[13+nonceLen : headerLen]
	return parsedContainer{
		keyVersion: keyVersion,
		nonce:      nonce,
		tag:        tag,
		ciphertext: data[headerLen:],
	}, nil
}

func aadForKeyVersion(version uint32) []byte {
	aad := make([]byte, 0, 13)
	aad = append(aad, containerMagic[:]...)
	aad = append(aad, containerVersion)
	aad = append(aad, beUint32(version)...)
	return aad
}

func beUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
