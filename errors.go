// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import "errors"

// Errors visible at the library boundary. Underlying socket I/O errors
// are returned as-is; use [ErrClassifier] for categorical labels.
var (
	// ErrAddressInvalid means the address list was empty, the URL scheme
	// was not recognized, or the address did not parse.
	ErrAddressInvalid = errors.New("natsmux: invalid server address")

	// ErrConnectionReset means the stream ended in the middle of a frame.
	ErrConnectionReset = errors.New("natsmux: connection reset mid-frame")

	// ErrHandshakeUnexpected means the first frame was not INFO.
	ErrHandshakeUnexpected = errors.New("natsmux: expected INFO as first frame")

	// ErrTLSUpgradeFailed means we could not upgrade the stream to TLS.
	ErrTLSUpgradeFailed = errors.New("natsmux: TLS upgrade failed")

	// ErrProtocolMalformed means an inbound frame did not parse.
	ErrProtocolMalformed = errors.New("natsmux: malformed frame")

	// ErrEnqueueFailed means the command queue is closed because the
	// event loop has terminated or the client has been closed.
	ErrEnqueueFailed = errors.New("natsmux: command queue closed")

	// ErrNoReply means a request's subscription ended without delivering
	// any message.
	ErrNoReply = errors.New("natsmux: did not receive any message")
)
