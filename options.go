// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import (
	"crypto/tls"
	"time"
)

// ConnectOptions configures a single connection.
//
// Construct via [NewConnectOptions] and override fields before passing
// the options to [ConnectWithOptions]. Fields must not be mutated once
// the connect is in flight.
type ConnectOptions struct {
	// Config holds the ambient configuration (dialer, error
	// classifier, clock).
	//
	// Set by [NewConnectOptions] to [NewConfig].
	Config *Config

	// Logger is the [SLogger] used by every connection subsystem.
	//
	// Set by [NewConnectOptions] to [DefaultSLogger].
	Logger SLogger

	// Name is the optional client name sent in the CONNECT frame.
	Name string

	// TLSRequired forces a TLS upgrade even when neither the server
	// nor the address scheme demands one.
	TLSRequired bool

	// TLSConfig is the opaque TLS configuration used for the upgrade.
	// When nil, an empty [*tls.Config] (system roots) is used.
	TLSConfig *tls.Config

	// PingInterval is how often the background keepalive task
	// enqueues a PING.
	//
	// Set by [NewConnectOptions] to 60 seconds.
	PingInterval time.Duration

	// FlushInterval is how often the background task drains the write
	// buffer.
	//
	// Set by [NewConnectOptions] to 1 millisecond.
	FlushInterval time.Duration

	// InboxFunc generates unique inbox subjects for request/reply.
	//
	// Set by [NewConnectOptions] to [NewInbox].
	InboxFunc func() string

	// User is the connection username, forwarded into CONNECT.
	User string

	// Pass is the connection password, forwarded into CONNECT.
	Pass string

	// AuthToken is the authorization token, forwarded into CONNECT.
	AuthToken string

	// UserJWT is the user's JWT, forwarded into CONNECT.
	UserJWT string

	// NKey is the public nkey, forwarded into CONNECT.
	NKey string

	// Signature is the signed nonce, forwarded into CONNECT.
	Signature string
}

// NewConnectOptions creates a [*ConnectOptions] with sensible defaults.
func NewConnectOptions() *ConnectOptions {
	return &ConnectOptions{
		Config:        NewConfig(),
		Logger:        DefaultSLogger(),
		PingInterval:  60 * time.Second,
		FlushInterval: time.Millisecond,
		InboxFunc:     NewInbox,
	}
}
