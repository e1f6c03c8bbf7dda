package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a core error per spec §7. Callers should read it with
// KindOf rather than by type-asserting the error directly, since the
// returned error may be wrapped via pkg/errors.
type ErrorKind int

const (
	ErrKindUnknownMeasurementType ErrorKind = iota
	ErrKindUnknownParameter
	ErrKindSingularMatrix
	ErrKindInsufficientSatellites
	ErrKindEphemerisMissing
	ErrKindBadObservation
	ErrKindInvalidConfig
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindUnknownMeasurementType:
		return "UnknownMeasurementType"
	case ErrKindUnknownParameter:
		return "UnknownParameter"
	case ErrKindSingularMatrix:
		return "SingularMatrix"
	case ErrKindInsufficientSatellites:
		return "InsufficientSatellites"
	case ErrKindEphemerisMissing:
		return "EphemerisMissing"
	case ErrKindBadObservation:
		return "BadObservation"
	case ErrKindInvalidConfig:
		return "InvalidConfig"
	default:
		return "Unknown"
	}
}

// EstimatorError is the concrete error type returned by this package. Kind
// supports programmatic dispatch (e.g. telling a SingularMatrix epoch apart
// from an InsufficientSatellites one); the wrapped
// cause carries the human-readable detail and preserves a stack trace via
// pkg/errors, matching the rest of the example pack's error-wrapping idiom.
type EstimatorError struct {
	Kind ErrorKind
	Sat  *SatID // optional: the satellite the error concerns, if any
	Err  error
}

func (e *EstimatorError) Error() string {
	if e.Sat != nil {
		return fmt.Sprintf("%s: sat=%s: %v", e.Kind, e.Sat, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *EstimatorError) Unwrap() error { return e.Err }

func newErr(kind ErrorKind, format string, args ...interface{}) error {
	return &EstimatorError{Kind: kind, Err: errors.Errorf(format, args...)}
}

func wrapErr(kind ErrorKind, err error, format string, args ...interface{}) error {
	return &EstimatorError{Kind: kind, Err: errors.Wrapf(err, format, args...)}
}

// KindOf extracts the ErrorKind from err, if err (or a cause in its chain)
// is an *EstimatorError. ok is false for errors foreign to this package.
func KindOf(err error) (kind ErrorKind, ok bool) {
	var ee *EstimatorError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return 0, false
}
