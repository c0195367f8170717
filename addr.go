// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// defaultPort is the port assumed when the address does not name one.
const defaultPort = 4222

// ServerAddr is the address of a server.
//
// Accepted forms are a bare `host[:port]`, which assumes the `nats`
// scheme, or a URL with scheme `nats` (plain TCP) or `tls` (TLS
// required). An optional `user:pass@` component is recognized and
// forwarded into the CONNECT frame when the options carry no
// credentials of their own.
type ServerAddr struct {
	u *url.URL
}

// ParseServerAddr parses a single server address.
//
// Failures return an error wrapping [ErrAddressInvalid].
func ParseServerAddr(input string) (*ServerAddr, error) {
	s := input
	if !strings.Contains(s, "://") {
		s = "nats://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAddressInvalid, err)
	}
	if u.Scheme != "nats" && u.Scheme != "tls" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrAddressInvalid, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrAddressInvalid, input)
	}
	if p := u.Port(); p != "" {
		if _, err := strconv.ParseUint(p, 10, 16); err != nil {
			return nil, fmt.Errorf("%w: invalid port %q", ErrAddressInvalid, p)
		}
	}
	return &ServerAddr{u: u}, nil
}

// parseServerAddrs parses a comma-separated list of server addresses,
// skipping empty entries. An empty list is an error.
func parseServerAddrs(input string) ([]*ServerAddr, error) {
	var out []*ServerAddr
	for _, entry := range strings.Split(input, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		addr, err := ParseServerAddr(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty address list", ErrAddressInvalid)
	}
	return out, nil
}

// TLSRequired reports whether the address scheme demands TLS.
func (a *ServerAddr) TLSRequired() bool {
	return a.u.Scheme == "tls"
}

// Host returns the host.
func (a *ServerAddr) Host() string {
	return a.u.Hostname()
}

// Port returns the port, defaulting to 4222.
func (a *ServerAddr) Port() uint16 {
	p := a.u.Port()
	if p == "" {
		return defaultPort
	}
	// Validated by ParseServerAddr.
	port, _ := strconv.ParseUint(p, 10, 16)
	return uint16(port)
}

// HostPort returns the dialable "host:port" form of the address.
func (a *ServerAddr) HostPort() string {
	return net.JoinHostPort(a.Host(), strconv.Itoa(int(a.Port())))
}

// Username returns the username embedded in the address, or "".
func (a *ServerAddr) Username() string {
	if a.u.User == nil {
		return ""
	}
	return a.u.User.Username()
}

// Password returns the password embedded in the address, or "".
func (a *ServerAddr) Password() string {
	if a.u.User == nil {
		return ""
	}
	pass, _ := a.u.User.Password()
	return pass
}

// String returns the URL form of the address.
func (a *ServerAddr) String() string {
	return a.u.String()
}
