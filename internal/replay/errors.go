package replay

import "errors"

// Fatal dataset and determinism violations. Any of these aborts the run
// with a non-zero exit; everything else surfaces in the report's errors
// section and the run continues.
var (
	// ErrDuplicateSignature is returned when two dataset records carry the
	// same transaction signature.
	ErrDuplicateSignature = errors.New("duplicate signature in dataset")

	// ErrAmbiguousOrder is returned when a slot holds more than one event
	// and at least one of them has no txIndex, making total ordering
	// undecidable.
	ErrAmbiguousOrder = errors.New("ambiguous event order")

	// ErrUnknownPool is returned when an entry fill finds no recorded pool
	// history, which must not happen on a well-formed dataset.
	ErrUnknownPool = errors.New("no pool history for fill")
)
