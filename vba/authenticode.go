// Package vba normalizes VBA project metadata for digital-signature binding
// verification: MS-OVBA "dir" stream normalization (ProjectNormalizedData),
// the CompressedContainer RLE codec VBA streams are stored under, and
// Authenticode digest extraction from a VBA \x05DigitalSignature* stream.
package vba

import (
	"encoding/asn1"
	"fmt"

	"go.mozilla.org/pkcs7"
)

// SignedDigest is the digest extracted from the signed Authenticode
// SpcIndirectDataContent — in MS-OVBA terms, the "project digest" binding
// value stored inside a VBA digital signature stream.
type SignedDigest struct {
	// DigestAlgorithmOID is the digest algorithm's dotted OID string, e.g.
	// "1.3.14.3.2.26" (SHA-1) or "2.16.840.1.101.3.4.2.1" (SHA-256).
	DigestAlgorithmOID string
	Digest             []byte
}

// spcIndirectDataContent is the Authenticode SpcIndirectDataContent
// structure (not an OOXML/MS-OVBA type; Microsoft's proprietary Authenticode
// ASN.1 schema). Only the messageDigest field is modeled; data
// (SpcAttributeTypeAndOptionalValue) is read as a raw element and discarded.
type spcIndirectDataContent struct {
	Data          asn1.RawValue
	MessageDigest digestInfo
}

type digestInfo struct {
	DigestAlgorithm algorithmIdentifier
	Digest          []byte
}

// algorithmIdentifier mirrors crypto/x509/pkix.AlgorithmIdentifier's shape
// locally rather than importing crypto/x509/pkix, since this package has no
// other use for that package and a two-field struct isn't worth the import
// for its own sake.
type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

// ExtractSignedDigest locates a PKCS#7/CMS SignedData blob within a raw VBA
// \x05DigitalSignature* stream and extracts the Authenticode digest from its
// encapsulated SpcIndirectDataContent.
//
// Returns (digest, true, nil) if a SignedData blob and SpcIndirectDataContent
// were found and parsed, (SignedDigest{}, false, nil) if no PKCS#7 SignedData
// could be located in the stream at all (the stream may still be a valid
// legacy V2 DigSigInfoSerialized the caller should fall back to parsing some
// other way), and a non-nil error if a candidate SignedData was located but
// its contents were malformed.
func ExtractSignedDigest(signatureStream []byte) (SignedDigest, bool, error) {
	loc := locatePKCS7SignedData(signatureStream)
	if loc < 0 {
		return SignedDigest{}, false, nil
	}

	p7, err := pkcs7.Parse(signatureStream[loc:])
	if err != nil {
		return SignedDigest{}, false, fmt.Errorf("vba: parse PKCS#7 SignedData: %w", err)
	}

	signedContent := p7.Content
	if len(signedContent) == 0 && loc > 0 {
		// Detached signature: the signed content is whatever preceded the
		// SignedData blob in the stream (the DigSigInfoSerialized layout
		// places the project name/cert-store bytes before the signature).
		signedContent = signatureStream[:loc]
	}
	if len(signedContent) == 0 {
		return SignedDigest{}, false, fmt.Errorf("vba: PKCS#7 SignedData is detached but no detached content was found")
	}

	var spc spcIndirectDataContent
	if _, err := asn1.Unmarshal(signedContent, &spc); err != nil {
		return SignedDigest{}, false, fmt.Errorf("vba: parse SpcIndirectDataContent: %w", err)
	}

	digest := spc.MessageDigest.Digest
	// The V2 SpcIndirectDataContent variant (MS-OSHARED 2.3.2.4.3.2) stores a
	// DER-encoded SigDataV1Serialized structure in the digest field instead
	// of a raw hash; its real "source hash" is the last top-level OCTET
	// STRING child of that nested SEQUENCE.
	if nested, ok := lastNestedOctetString(digest); ok {
		digest = nested
	}

	return SignedDigest{
		DigestAlgorithmOID: spc.MessageDigest.DigestAlgorithm.Algorithm.String(),
		Digest:             digest,
	}, true, nil
}

// lastNestedOctetString reports whether raw itself parses as a DER SEQUENCE,
// and if so returns the Bytes of the last top-level OCTET STRING element
// within it (false if raw doesn't parse as a SEQUENCE, or no OCTET STRING
// child is found).
func lastNestedOctetString(raw []byte) ([]byte, bool) {
	var outer asn1.RawValue
	if _, err := asn1.Unmarshal(raw, &outer); err != nil {
		return nil, false
	}
	if outer.Class != asn1.ClassUniversal || outer.Tag != asn1.TagSequence {
		return nil, false
	}

	rest := outer.Bytes
	var last []byte
	found := false
	for len(rest) > 0 {
		var elem asn1.RawValue
		remaining, err := asn1.Unmarshal(rest, &elem)
		if err != nil {
			break
		}
		if elem.Class == asn1.ClassUniversal && elem.Tag == asn1.TagOctetString {
			last = elem.Bytes
			found = true
		}
		rest = remaining
	}
	return last, found
}

// locatePKCS7SignedData scans signatureStream for the start of a DER
// SEQUENCE (tag 0x30) that parses as a PKCS#7 SignedData ContentInfo,
// returning its byte offset, or -1 if none is found. A VBA signature stream
// wraps the PKCS#7 blob in a DigSigInfoSerialized header (MS-OSHARED
// section 2.3.2.2) of variable, version-dependent shape, so scanning for the tag
// byte is simpler and more robust than modeling that header here.
func locatePKCS7SignedData(signatureStream []byte) int {
	for offset := 0; offset < len(signatureStream); offset++ {
		if signatureStream[offset] != 0x30 {
			continue
		}
		end := derSequenceEnd(signatureStream, offset)
		if end < 0 {
			continue
		}
		if looksLikePKCS7SignedData(signatureStream[offset:end]) {
			return offset
		}
	}
	return -1
}

// derSequenceEnd returns the byte offset one past the end of the DER TLV
// starting at offset (which must hold tag 0x30), or -1 if the length is
// malformed or runs past the end of data.
func derSequenceEnd(data []byte, offset int) int {
	if offset+2 > len(data) {
		return -1
	}
	lenByte := data[offset+1]
	headerLen := 2
	var contentLen int
	if lenByte&0x80 == 0 {
		contentLen = int(lenByte)
	} else {
		numBytes := int(lenByte & 0x7F)
		if numBytes == 0 || numBytes > 4 || offset+2+numBytes > len(data) {
			return -1
		}
		headerLen = 2 + numBytes
		for _, b := range data[offset+2 : offset+2+numBytes] {
			contentLen = contentLen<<8 | int(b)
		}
	}
	end := offset + headerLen + contentLen
	if end > len(data) || end < offset {
		return -1
	}
	return end
}

// looksLikePKCS7SignedData reports whether candidate parses as a
// ContentInfo{contentType: signedData (1.2.840.113549.1.7.2), ...}. It
// delegates the actual shape validation to pkcs7.Parse, discarding any
// error — this function exists only to distinguish "not a SignedData at
// all" from "is one, but malformed" so locatePKCS7SignedData doesn't pick a
// 0x30 tag that merely happens to occur inside unrelated signature bytes.
func looksLikePKCS7SignedData(candidate []byte) bool {
	_, err := pkcs7.Parse(candidate)
	return err == nil
}
