package facade

import "errors"

var (
	ErrNilParameter = errors.New("nil parameter")
	ErrNilClient    = errors.New("factory returned a nil client")
	ErrClosed       = errors.New("client is closed")
)
