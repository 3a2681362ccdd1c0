// Package exception holds shared error values for the pkg/ layer.
package exception

import "github.com/yanun0323/errors"

// UDS errors
var (
	// ErrEmptyPathUDS is returned when a socket path is empty.
	ErrEmptyPathUDS = errors.New("uds: empty path")

	// ErrNilClientUDS is returned when a nil client receiver is used.
	ErrNilClientUDS = errors.New("uds: nil client")
)
