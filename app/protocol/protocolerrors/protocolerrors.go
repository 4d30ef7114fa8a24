package protocolerrors

import "github.com/pkg/errors"

// ProtocolError is an error that signifies a violation of the intercom
// protocol by a peer. A peer whose error ShouldBan is excluded from the
// queries of the current round.
type ProtocolError struct {
	ShouldBan bool
	Cause     error
}

func (e *ProtocolError) Error() string {
	return e.Cause.Error()
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// Errorf returns a ProtocolError with a formatted cause that records the
// stack trace at the point it was called.
func Errorf(shouldBan bool, format string, args ...interface{}) error {
	return &ProtocolError{
		ShouldBan: shouldBan,
		Cause:     errors.Errorf(format, args...),
	}
}

// Wrapf returns a ProtocolError whose cause annotates err.
func Wrapf(shouldBan bool, err error, format string, args ...interface{}) error {
	return &ProtocolError{
		ShouldBan: shouldBan,
		Cause:     errors.Wrapf(err, format, args...),
	}
}

// ShouldBan returns whether err, or any error it wraps, is a ProtocolError
// that requires the peer to be excluded.
func ShouldBan(err error) bool {
	var protocolErr *ProtocolError
	return errors.As(err, &protocolErr) && protocolErr.ShouldBan
}
