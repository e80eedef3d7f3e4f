package deal

import "github.com/cockroachdb/errors"

// Failure classes. Concrete errors are marked with one of these so callers
// can classify them with errors.Is without caring about the wrapped cause.
var (
	ErrMalformedRecord     = errors.New("malformed record")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrPersistenceFailure  = errors.New("persistence failure")
	ErrTransportFailure    = errors.New("transport failure")
)

// Malformed builds an error classified as ErrMalformedRecord.
func Malformed(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrMalformedRecord)
}

// MarkMalformed classifies err as ErrMalformedRecord, adding msg as context.
func MarkMalformed(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrMalformedRecord)
}

// ProviderUnavailable classifies a fetch failure of provider.
func ProviderUnavailable(provider string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, "provider %s", provider), ErrProviderUnavailable)
}

// PersistenceFailure classifies a reconciliation write failure.
func PersistenceFailure(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrPersistenceFailure)
}

// TransportFailure classifies a failed outbound send.
func TransportFailure(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrTransportFailure)
}
