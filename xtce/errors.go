package xtce

import "errors"

// Sentinel errors returned while loading or validating an XTCE document.
// A load-time error is always fatal; there is no warning-level outcome for
// a malformed dictionary.
var (
	// ErrUnsupportedEncoding is returned when a data encoding names a
	// scheme this implementation does not decode (e.g. a float size other
	// than 16/32/64 bits, or MIL-1750A at a size other than 32 bits).
	ErrUnsupportedEncoding = errors.New("xtce: unsupported encoding")

	// ErrDanglingReference is returned when a parameterRef, typeRef, or
	// containerRef names an entity not present in the document.
	ErrDanglingReference = errors.New("xtce: dangling reference")

	// ErrCyclicInheritance is returned when a sequence container's
	// baseContainer chain cycles back on itself.
	ErrCyclicInheritance = errors.New("xtce: cyclic inheritance")

	// ErrDuplicateName is returned when two entities of the same kind
	// declare the same qualified name.
	ErrDuplicateName = errors.New("xtce: duplicate name")

	// ErrMalformedDocument is returned for structural XML problems: a
	// required attribute missing, an element appearing where none is
	// expected, or content that cannot be parsed as XTCE at all.
	ErrMalformedDocument = errors.New("xtce: malformed document")
)
