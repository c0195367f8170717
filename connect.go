// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

const (
	// libName is the client name sent in CONNECT when the options do
	// not carry one.
	libName = "natsmux"

	// libLang is the implementation language tag sent in CONNECT.
	libLang = "go"

	// libVersion is the client version sent in CONNECT.
	libVersion = "0.1.0"
)

// Connect connects to the server at addrs with default options.
//
// The addrs argument is a comma-separated list of addresses in the
// format accepted by [ParseServerAddr]; only the first entry is used.
//
// Returns a copyable [*Client]. The ctx argument bounds the connect
// handshake only: the established connection lives until
// [Client.Close] or until the server ends the stream.
func Connect(ctx context.Context, addrs string) (*Client, error) {
	return ConnectWithOptions(ctx, addrs, NewConnectOptions())
}

// handshake carries the connection state across the establishment
// pipeline stages: the raw stream, the framed view of it, and the
// server's INFO.
type handshake struct {
	conn net.Conn
	fc   *Connection
	info *ServerInfo
}

// ConnectWithOptions connects to the server at addrs using options.
//
// The establishment is a composed pipeline: dial the first address,
// read the INFO frame, optionally upgrade to TLS. Then the orchestrator
// spawns the event loop and the keepalive and flush tasks. The CONNECT
// and initial PING frames are enqueued without awaiting the server's
// response: the caller may begin publishing immediately and frames are
// pipelined in order.
func ConnectWithOptions(ctx context.Context, addrs string, options *ConnectOptions) (*Client, error) {
	list, err := parseServerAddrs(addrs)
	if err != nil {
		return nil, err
	}
	addr := list[0]
	cfg, logger := options.Config, options.Logger

	// The steady-state connection outlives the connect context, so the
	// context is bound to the socket only while the handshake runs: the
	// readInfo stage arms the watcher and this defer disarms it.
	var stopWatch func() bool
	defer func() {
		if stopWatch != nil {
			stopWatch()
		}
	}()

	readInfo := FuncAdapter[net.Conn, *handshake](func(ctx context.Context, conn net.Conn) (*handshake, error) {
		stopWatch = context.AfterFunc(ctx, func() { conn.Close() })
		fc := newConnection(conn, cfg, logger)
		op, err := fc.ReadOp()
		if err != nil {
			conn.Close()
			return nil, err
		}
		infoOp, ok := op.(ServerInfoOp)
		if !ok {
			conn.Close()
			if op == nil {
				return nil, fmt.Errorf("%w: got nothing", ErrHandshakeUnexpected)
			}
			return nil, fmt.Errorf("%w: got %s", ErrHandshakeUnexpected, frameName(op))
		}
		return &handshake{conn: conn, fc: fc, info: infoOp.Info}, nil
	})

	upgrade := FuncAdapter[*handshake, *handshake](func(ctx context.Context, hs *handshake) (*handshake, error) {
		if !tlsRequired(options, hs.info, addr) {
			return hs, nil
		}
		tlsConfig := options.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		}
		tlsConfig = tlsConfig.Clone()
		if tlsConfig.ServerName == "" {
			serverName := chooseServerName(hs.info.Host, addr.Host())
			if serverName == "" {
				hs.conn.Close()
				return nil, fmt.Errorf("%w: cannot determine server name", ErrTLSUpgradeFailed)
			}
			tlsConfig.ServerName = serverName
		}
		tconn, err := NewTLSHandshakeFunc(cfg, tlsConfig, logger).Call(ctx, hs.conn)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTLSUpgradeFailed, err)
		}
		// Any bytes buffered before the upgrade belong to the plain
		// stream and are discarded with it.
		return &handshake{conn: tconn, fc: newConnection(tconn, cfg, logger), info: hs.info}, nil
	})

	establish := Compose3[string, net.Conn, *handshake, *handshake](
		NewDialFunc(cfg, logger), readInfo, upgrade)
	hs, err := establish.Call(ctx, addr.HostPort())
	if err != nil {
		return nil, err
	}
	fc := hs.fc

	registry := newSubscriptionRegistry()
	core := &clientCore{
		commands:  make(chan ClientOp, commandQueueSize),
		registry:  registry,
		done:      make(chan struct{}),
		closing:   make(chan struct{}),
		inboxFunc: options.InboxFunc,
	}
	if core.inboxFunc == nil {
		core.inboxFunc = NewInbox
	}
	client := &Client{core: core}

	loop := newConnector(fc, registry, cfg, logger)
	go func() {
		defer close(core.done)
		// The terminal error has already been logged as loopDone.
		loop.process(core.commands, core.closing)
	}()

	name := options.Name
	if name == "" {
		name = libName
	}
	user, pass := options.User, options.Pass
	if user == "" && pass == "" {
		user, pass = addr.Username(), addr.Password()
	}
	connectInfo := ConnectInfo{
		Verbose:      false,
		Pedantic:     false,
		UserJWT:      options.UserJWT,
		NKey:         options.NKey,
		Signature:    options.Signature,
		Name:         name,
		Echo:         true,
		Lang:         libLang,
		Version:      libVersion,
		Protocol:     ProtocolDynamic,
		TLSRequired:  options.TLSRequired,
		User:         user,
		Pass:         pass,
		AuthToken:    options.AuthToken,
		Headers:      true,
		NoResponders: true,
	}
	if err := core.enqueue(ctx, ClientConnect{Info: connectInfo}); err != nil {
		return nil, err
	}
	if err := core.enqueue(ctx, ClientPing{}); err != nil {
		return nil, err
	}

	// Keepalive: enqueue a PING on every tick until the loop is gone.
	go func() {
		for {
			select {
			case <-time.After(options.PingInterval):
				if err := core.enqueue(context.Background(), ClientPing{}); err != nil {
					return
				}
			case <-core.done:
				return
			}
		}
	}()

	// Flusher: drain the write buffer on every tick until the loop is gone.
	go func() {
		for {
			select {
			case <-time.After(options.FlushInterval):
				if err := core.enqueue(context.Background(), ClientTryFlush{}); err != nil {
					return
				}
			case <-core.done:
				return
			}
		}
	}()

	return client, nil
}

// tlsRequired reports whether any party demands a TLS upgrade: the
// caller's options, the server's INFO, or the address scheme.
func tlsRequired(options *ConnectOptions, info *ServerInfo, addr *ServerAddr) bool {
	return options.TLSRequired || info.TLSRequired || addr.TLSRequired()
}
