package media

import "errors"

// Error classes surfaced by the resolution pipeline. Call sites wrap them
// with fmt.Errorf("%w: ...") so callers can classify with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrUpstream      = errors.New("upstream error")
	ErrNotFound      = errors.New("not found")
	ErrIntegrity     = errors.New("integrity error")
	ErrConfiguration = errors.New("configuration error")
)

// Error kind codes used by the HTTP and gRPC surfaces.
const (
	KindCodeValidation    = "VALIDATION"
	KindCodeUpstream      = "UPSTREAM"
	KindCodeNotFound      = "NOT_FOUND"
	KindCodeIntegrity     = "INTEGRITY"
	KindCodeConfiguration = "CONFIGURATION"
	KindCodeInternal      = "INTERNAL"
)

// KindOf returns the stable code for the first error class err wraps.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindCodeValidation
	case errors.Is(err, ErrNotFound):
		return KindCodeNotFound
	case errors.Is(err, ErrConfiguration):
		return KindCodeConfiguration
	case errors.Is(err, ErrIntegrity):
		return KindCodeIntegrity
	case errors.Is(err, ErrUpstream):
		return KindCodeUpstream
	default:
		return KindCodeInternal
	}
}
