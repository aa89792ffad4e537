package domain

import (
	"errors"
	"fmt"
)

// Sentinel kinds for the recoverable error taxonomy. Wrap them with
// fmt.Errorf("...: %w", ErrX) so callers can errors.Is against the kind.
var (
	// ErrFormatNotAvailable indicates the requested media, quality or
	// resource is absent or inaccessible. Recoverable: skip the item.
	ErrFormatNotAvailable = errors.New("format not available")

	// ErrFormatNotSupported indicates a recognized but intentionally
	// unimplemented delivery mechanism or provider type.
	ErrFormatNotSupported = errors.New("format not supported")

	// ErrParameterExtraction indicates expected fields were missing from a
	// parsed page or response, usually an upstream format change.
	ErrParameterExtraction = errors.New("parameter extraction failed")

	// ErrArgument indicates invalid caller-supplied input.
	ErrArgument = errors.New("invalid argument")

	// ErrAuthentication indicates a failed login or rejected session cookie.
	ErrAuthentication = errors.New("authentication failed")
)

// Recoverable reports whether the per-item loop should log the error and
// move on to the next item instead of aborting the batch.
func Recoverable(err error) bool {
	return errors.Is(err, ErrFormatNotAvailable) ||
		errors.Is(err, ErrFormatNotSupported) ||
		errors.Is(err, ErrParameterExtraction)
}

// FormatNotAvailablef builds a wrapped ErrFormatNotAvailable.
func FormatNotAvailablef(format string, v ...any) error {
	return fmt.Errorf(format+": %w", append(v, ErrFormatNotAvailable)...)
}

// ParameterExtractionf builds a wrapped ErrParameterExtraction.
func ParameterExtractionf(format string, v ...any) error {
	return fmt.Errorf(format+": %w", append(v, ErrParameterExtraction)...)
}
