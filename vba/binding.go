package vba

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
)

// BindingResult is the outcome of checking a VBA project's digital signature
// against its own normalized project data. There is no single named
// function for this in the reference corpus this package is grounded on —
// the corpus only extracts the signed digest (ExtractSignedDigest) and the
// normalized transcript (ProjectNormalizedDataV3DirRecords) as separate
// primitives. Tying them together into a single pass/fail check is this
// package's own synthesis, not a port.
type BindingResult struct {
	// Matches is true if the signed digest equals the locally computed
	// digest of the project's normalized data under DigestAlgorithmOID.
	Matches bool
	// SignedDigest is the digest extracted from the signature stream.
	SignedDigest SignedDigest
	// ComputedDigest is this project's normalized data hashed with the same
	// algorithm the signature claims to use.
	ComputedDigest []byte
}

// VerifyProjectBinding checks whether signatureStream's signed digest
// matches the hash of vbaProjectBin's own V3 dir-record normalized data,
// i.e. whether the signature actually covers this project rather than some
// other one. It does not perform certificate chain or trust validation —
// only the digest-binding check MS-OVBA's ContentsHashV3 describes.
func VerifyProjectBinding(vbaProjectBin, signatureStream []byte) (BindingResult, error) {
	signed, ok, err := ExtractSignedDigest(signatureStream)
	if err != nil {
		return BindingResult{}, fmt.Errorf("vba: extract signed digest: %w", err)
	}
	if !ok {
		return BindingResult{}, fmt.Errorf("vba: no PKCS#7 SignedData found in signature stream")
	}

	normalized, err := ProjectNormalizedDataV3DirRecords(vbaProjectBin)
	if err != nil {
		return BindingResult{}, fmt.Errorf("vba: normalize project data: %w", err)
	}

	computed, err := hashWithAlgorithmOID(signed.DigestAlgorithmOID, normalized)
	if err != nil {
		return BindingResult{}, err
	}

	matches := len(computed) == len(signed.Digest)
	if matches {
		for i := range computed {
			if computed[i] != signed.Digest[i] {
				matches = false
				break
			}
		}
	}

	return BindingResult{
		Matches:        matches,
		SignedDigest:   signed,
		ComputedDigest: computed,
	}, nil
}

func hashWithAlgorithmOID(oid string, data []byte) ([]byte, error) {
	switch oid {
	case "1.2.840.113549.2.5":
		sum := md5.Sum(data)
		return sum[:], nil
	case "1.3.14.3.2.26":
		sum := sha1.Sum(data)
		return sum[:], nil
	case "2.16.840.1.101.3.4.2.1":
		sum := sha256.Sum256(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("vba: unsupported digest algorithm OID %q", oid)
	}
}
