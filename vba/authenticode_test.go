package vba

import (
	"bytes"
	"testing"
)

func TestDerSequenceEnd(t *testing.T) {
	// SEQUENCE { OCTET STRING "hi" } followed by trailing junk the scanner
	// must not include.
	seq := []byte{0x30, 0x04, 0x04, 0x02, 'h', 'i'}
	data := append(append([]byte{}, seq...), 0xFF, 0xFF)

	end := derSequenceEnd(data, 0)
	if end != len(seq) {
		t.Fatalf("derSequenceEnd = %d, want %d", end, len(seq))
	}
}

func TestDerSequenceEndLongForm(t *testing.T) {
	value := bytes.Repeat([]byte{0x01}, 200)
	// Long-form length: 0x81 0xC8 (200 in one length byte).
	seq := append([]byte{0x30, 0x81, 0xC8}, value...)

	end := derSequenceEnd(seq, 0)
	if end != len(seq) {
		t.Fatalf("derSequenceEnd = %d, want %d", end, len(seq))
	}
}

func TestDerSequenceEndTruncated(t *testing.T) {
	data := []byte{0x30, 0x10, 0x01, 0x02} // claims 16 bytes of content, has 2
	if end := derSequenceEnd(data, 0); end != -1 {
		t.Fatalf("derSequenceEnd = %d, want -1 for truncated input", end)
	}
}

func TestLastNestedOctetStringSingleElement(t *testing.T) {
	source := []byte{0xCA, 0xFE, 0xBE, 0xEF}
	seq := []byte{0x30, byte(2 + len(source)), 0x04, byte(len(source))}
	seq = append(seq, source...)

	got, ok := lastNestedOctetString(seq)
	if !ok {
		t.Fatal("lastNestedOctetString: expected ok=true")
	}
	if !bytes.Equal(got, source) {
		t.Fatalf("lastNestedOctetString = %x, want %x", got, source)
	}
}

func TestLastNestedOctetStringPicksLastOfMultiple(t *testing.T) {
	first := []byte{0x01, 0x02}
	second := []byte{0x03, 0x04, 0x05}
	inner := append([]byte{0x04, byte(len(first))}, first...)
	inner = append(inner, 0x04, byte(len(second)))
	inner = append(inner, second...)
	seq := append([]byte{0x30, byte(len(inner))}, inner...)

	got, ok := lastNestedOctetString(seq)
	if !ok {
		t.Fatal("lastNestedOctetString: expected ok=true")
	}
	if !bytes.Equal(got, second) {
		t.Fatalf("lastNestedOctetString = %x, want %x (the last OCTET STRING)", got, second)
	}
}

func TestLastNestedOctetStringNotASequence(t *testing.T) {
	// A plain OCTET STRING, not a SEQUENCE: should report ok=false so callers
	// fall back to treating the bytes as a raw digest.
	raw := []byte{0x04, 0x02, 0xAA, 0xBB}
	if _, ok := lastNestedOctetString(raw); ok {
		t.Fatal("lastNestedOctetString: expected ok=false for a non-SEQUENCE value")
	}
}
