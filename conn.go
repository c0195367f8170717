// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"
)

// readChunkSize is the size of each read from the underlying stream.
const readChunkSize = 4096

// Connection is a framed connection: a byte stream plus a growable read
// buffer on the inbound side and a buffered writer on the outbound side.
//
// The stream may be a plain TCP connection or a TLS-wrapped one. The
// event loop exclusively owns the Connection; no other task reads from
// or writes to the stream.
type Connection struct {
	// stream is the owned byte stream.
	stream net.Conn

	// wr buffers outbound frames until a flush.
	wr *bufio.Writer

	// buffer accumulates inbound bytes until a full frame is available.
	buffer []byte

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the SLogger to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time

	// laddr, raddr, and protocol memoize the log fields.
	laddr, raddr, protocol string
}

// newConnection wraps stream into a [*Connection].
//
// The cfg argument contains the common configuration for natsmux
// operations and the logger argument is the [SLogger] to use.
func newConnection(stream net.Conn, cfg *Config, logger SLogger) *Connection {
	return &Connection{
		stream:        stream,
		wr:            bufio.NewWriter(stream),
		buffer:        nil,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
		laddr:         safeconn.LocalAddr(stream),
		raddr:         safeconn.RemoteAddr(stream),
		protocol:      safeconn.Network(stream),
	}
}

// Close closes the underlying stream.
func (c *Connection) Close() error {
	return c.stream.Close()
}

// Flush flushes the buffered writer.
func (c *Connection) Flush() error {
	return c.wr.Flush()
}

// ReadOp reads from the stream until one complete frame is available
// and returns the parsed [ServerOp].
//
// A clean end-of-stream with an empty read buffer returns (nil, nil).
// An end-of-stream with a partial frame buffered returns
// [ErrConnectionReset]. Other read failures are returned as-is and a
// frame that cannot parse returns an error wrapping
// [ErrProtocolMalformed].
func (c *Connection) ReadOp() (ServerOp, error) {
	for {
		op, n, err := tryParseOp(c.buffer)
		if err != nil {
			return nil, err
		}
		if op != nil {
			c.buffer = c.buffer[n:]
			c.logReadOp(op)
			return op, nil
		}

		chunk := make([]byte, readChunkSize)
		count, err := c.stream.Read(chunk)
		if count > 0 {
			c.buffer = append(c.buffer, chunk[:count]...)
			continue
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(c.buffer) == 0 {
				return nil, nil
			}
			return nil, ErrConnectionReset
		}
		return nil, err
	}
}

// WriteOp emits the frame for op on the buffered writer, applying the
// per-op flush policy: SUB, PING, and PONG flush the writer; CONNECT,
// PUB, and UNSUB leave the bytes buffered for a later flush.
// [ClientFlush] and [ClientTryFlush] write no frame and flush whatever
// is buffered.
//
// For [ClientFlush], the flush result is delivered through the op's
// Result channel rather than returned.
func (c *Connection) WriteOp(op ClientOp) error {
	switch op := op.(type) {
	case ClientFlush:
		op.Result <- c.wr.Flush()
		return nil

	case ClientTryFlush:
		return c.wr.Flush()

	default:
		flush, err := encodeOp(c.wr, op)
		if err != nil {
			c.logWriteOp(op, err)
			return err
		}
		if flush {
			err = c.wr.Flush()
		}
		c.logWriteOp(op, err)
		return err
	}
}

func (c *Connection) logReadOp(op ServerOp) {
	c.Logger.Debug(
		"readOp",
		slog.String("frame", frameName(op)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", c.TimeNow()),
	)
}

func (c *Connection) logWriteOp(op ClientOp, err error) {
	c.Logger.Debug(
		"writeOp",
		slog.Any("err", err),
		slog.String("errClass", c.ErrClassifier.Classify(err)),
		slog.String("frame", frameName(op)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", c.TimeNow()),
	)
}

// frameName maps an op to the wire verb used in log events.
func frameName(op any) string {
	switch op.(type) {
	case ServerOK:
		return "+OK"
	case ServerInfoOp:
		return "INFO"
	case ServerPing, ClientPing:
		return "PING"
	case ServerPong, ClientPong:
		return "PONG"
	case ServerMsg:
		return "MSG"
	case ClientConnect:
		return "CONNECT"
	case ClientPublish:
		return "PUB"
	case ClientSubscribe:
		return "SUB"
	case ClientUnsubscribe:
		return "UNSUB"
	case ClientFlush, ClientTryFlush:
		return "FLUSH"
	default:
		return "UNKNOWN"
	}
}
