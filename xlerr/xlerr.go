// Package xlerr defines the sentinel error kinds shared across this module's
// packages. Call sites wrap a sentinel with context via
// fmt.Errorf("pkg: context: %w", Kind), matching the error-wrapping idiom
// used throughout this codebase (e.g. workbook.Open's
// `"workbook: open %q: %w"`).
package xlerr

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Use errors.Is(err, xlerr.WrongPassword) etc. to
// classify a returned error; every exported function that can fail for one
// of these reasons wraps the sentinel rather than inventing a new message.
var (
	ErrIo                         = errors.New("xlerr: io failure")
	ErrUnsupportedOoxmlEncryption = errors.New("xlerr: recognized as encrypted but no decryptor matches")
	ErrWrongPassword              = errors.New("xlerr: wrong password")
	ErrUnsupportedContainerVersion = errors.New("xlerr: unsupported container version")
	ErrMissingPart                = errors.New("xlerr: missing part")
	ErrMissingRelationship        = errors.New("xlerr: missing relationship")
	ErrMissingRequiredStream      = errors.New("xlerr: missing required stream")
	ErrTruncated                  = errors.New("xlerr: truncated")
	ErrUnexpectedEOF              = errors.New("xlerr: unexpected eof")
	ErrInvalid                    = errors.New("xlerr: invalid structure")
	ErrIntegrityFailure           = errors.New("xlerr: integrity check failed")
	ErrFormulaParse               = errors.New("xlerr: formula could not be parsed")
	ErrDeclaredSizeExceedsMax     = errors.New("xlerr: declared size exceeds configured maximum")
	ErrDeclaredSizeExceedsPayload = errors.New("xlerr: declared size exceeds available payload")
)

// Warning is a non-fatal finding from a best-effort subsystem (phonetic text
// extraction, rich-data index resolution, unknown DrawingML preservation,
// Agile/Standard defensive parsing). Best-effort subsystems never fail the
// whole read; they append a Warning and continue.
type Warning struct {
	Component string // e.g. "offcrypto", "richdata", "vba"
	Message   string
}

func (w Warning) String() string {
	return w.Component + ": " + w.Message
}

// Warnings is an accumulator passed down into best-effort subsystems.
type Warnings []Warning

// Add appends a warning.
func (w *Warnings) Add(component, format string, args ...any) {
	*w = append(*w, Warning{Component: component, Message: sprintf(format, args...)})
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
