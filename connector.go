// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import (
	"log/slog"
	"time"
)

// connector is the event loop: a single long-running task that owns the
// framed [*Connection], holds a shared handle to the subscription
// registry, and multiplexes client commands and server frames over the
// one shared socket.
type connector struct {
	// conn is the exclusively-owned framed connection.
	conn *Connection

	// registry is the shared subscription registry.
	registry *subscriptionRegistry

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the SLogger to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

// newConnector returns a [*connector] owning conn and sharing registry.
func newConnector(conn *Connection, registry *subscriptionRegistry, cfg *Config, logger SLogger) *connector {
	return &connector{
		conn:          conn,
		registry:      registry,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// readResult is one outcome of [*Connection.ReadOp]: an op, a clean
// end-of-stream (both fields nil), or a read error.
type readResult struct {
	op  ServerOp
	err error
}

// process runs the event loop until closing fires and the buffered
// commands drain, or until the server stream ends. On termination it
// flushes the write buffer, closes the stream, and closes every
// remaining delivery channel so subscribers observe the end of their
// message sequence.
//
// The returned error is the terminal read error, or nil when the loop
// terminated cleanly.
func (c *connector) process(commands <-chan ClientOp, closing <-chan struct{}) error {
	defer c.registry.closeAll()

	// A dedicated goroutine turns the blocking ReadOp into a channel so
	// that a single select multiplexes both sources fairly. It parks
	// after each frame until the loop consumes it, so the server cannot
	// starve the command queue, nor vice versa.
	serverOps := make(chan readResult)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		for {
			op, err := c.conn.ReadOp()
			select {
			case serverOps <- readResult{op: op, err: err}:
			case <-quit:
				return
			}
			if op == nil || err != nil {
				return
			}
		}
	}()

	t0 := c.TimeNow()
	c.logLoopStart(t0)
	for {
		select {
		case op := <-commands:
			c.handleCommand(op)

		case <-closing:
			// The client was closed: drain the commands already
			// accepted into the queue, then terminate.
			for {
				select {
				case op := <-commands:
					c.handleCommand(op)
				default:
					return c.finish(t0, nil)
				}
			}

		case res := <-serverOps:
			if res.err != nil {
				return c.finish(t0, res.err)
			}
			if res.op == nil {
				// Clean end of stream.
				return c.finish(t0, nil)
			}
			c.handleServerOp(res.op)
		}
	}
}

// handleCommand writes one client op to the wire. Unsubscribe commands
// carry a user-facing identifier: resolve it to the wire sid under the
// registry lock first, dropping the command silently when the
// subscription is already gone.
//
// Write failures are logged and the loop continues: the op was already
// acknowledged into the queue, so there is no caller left to notify.
func (c *connector) handleCommand(op ClientOp) {
	if unsub, ok := op.(ClientUnsubscribe); ok {
		sid, ok := c.registry.resolveRemove(unsub.ID)
		if !ok {
			return
		}
		if err := c.conn.WriteOp(ClientUnsubscribe{ID: sid}); err != nil {
			c.logSendFailed(err)
		}
		return
	}
	if err := c.conn.WriteOp(op); err != nil {
		c.logSendFailed(err)
	}
}

// handleServerOp reacts to one inbound frame: PING gets a PONG, MSG is
// routed through the registry, everything else is consumed silently
// (INFO frames received after the handshake are not propagated).
func (c *connector) handleServerOp(op ServerOp) {
	switch op := op.(type) {
	case ServerPing:
		if err := c.conn.WriteOp(ClientPong{}); err != nil {
			c.logSendFailed(err)
		}

	case ServerMsg:
		msg := &Message{Subject: op.Subject, Reply: op.Reply, Payload: op.Payload}
		switch c.registry.deliver(op.SID, msg) {
		case deliverOK, deliverUnknown:
			// nothing

		case deliverFull:
			// Slow consumer: evict the subscription and tell the
			// server to stop sending for this sid.
			c.registry.removeAndClose(op.SID)
			c.logSlowConsumer(op.SID)
			if err := c.conn.WriteOp(ClientUnsubscribe{ID: op.SID}); err != nil {
				c.logSendFailed(err)
				return
			}
			if err := c.conn.Flush(); err != nil {
				c.logSendFailed(err)
			}
		}

	default:
		// ServerPong, ServerOK, post-handshake ServerInfoOp.
	}
}

// finish flushes the write buffer, closes the stream, and logs loop
// termination. Closing the stream also unblocks the reader goroutine.
func (c *connector) finish(t0 time.Time, err error) error {
	if ferr := c.conn.Flush(); ferr != nil {
		c.logSendFailed(ferr)
	}
	c.conn.Close()
	c.logLoopDone(t0, err)
	return err
}

func (c *connector) logLoopStart(t0 time.Time) {
	c.Logger.Info(
		"loopStart",
		slog.String("localAddr", c.conn.laddr),
		slog.String("protocol", c.conn.protocol),
		slog.String("remoteAddr", c.conn.raddr),
		slog.Time("t", t0),
	)
}

func (c *connector) logLoopDone(t0 time.Time, err error) {
	c.Logger.Info(
		"loopDone",
		slog.Any("err", err),
		slog.String("errClass", c.ErrClassifier.Classify(err)),
		slog.String("localAddr", c.conn.laddr),
		slog.String("protocol", c.conn.protocol),
		slog.String("remoteAddr", c.conn.raddr),
		slog.Time("t0", t0),
		slog.Time("t", c.TimeNow()),
	)
}

func (c *connector) logSendFailed(err error) {
	c.Logger.Info(
		"sendFailed",
		slog.Any("err", err),
		slog.String("errClass", c.ErrClassifier.Classify(err)),
		slog.String("localAddr", c.conn.laddr),
		slog.String("protocol", c.conn.protocol),
		slog.String("remoteAddr", c.conn.raddr),
		slog.Time("t", c.TimeNow()),
	)
}

func (c *connector) logSlowConsumer(sid uint64) {
	c.Logger.Info(
		"slowConsumer",
		slog.Uint64("sid", sid),
		slog.String("localAddr", c.conn.laddr),
		slog.String("protocol", c.conn.protocol),
		slog.String("remoteAddr", c.conn.raddr),
		slog.Time("t", c.TimeNow()),
	)
}
