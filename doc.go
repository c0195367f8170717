// SPDX-License-Identifier: GPL-3.0-or-later

// Package natsmux implements the connection core of an asynchronous
// NATS client: one multiplexed connection shared by many goroutines.
//
// # Core Abstraction
//
// The package funnels every operation through a single long-running
// event loop that exclusively owns the socket:
//
//	Client ──▶ command queue ──▶ event loop ──▶ framed connection ──▶ wire
//	wire ──▶ framed connection ──▶ event loop ──▶ registry ──▶ Subscriber
//
// A [Client] is a cheaply copyable handle holding the sender end of a
// bounded command queue; copies share one connection. Inbound MSG
// frames are demultiplexed through a subscription registry to bounded
// per-subscription channels, each consumed by one [*Subscriber].
//
// This design makes frame ordering, back-pressure, and socket
// ownership simple to reason about: the server sees frames in the
// exact order the event loop writes them, a full command queue blocks
// publishers, and no task other than the event loop touches the socket.
//
// # Connection Establishment
//
// [Connect] and [ConnectWithOptions] dial the first configured server
// address, require an INFO frame, optionally upgrade the stream to TLS
// (when the caller, the server, or the `tls` address scheme demands
// it), then spawn the event loop plus periodic keepalive and flush
// tasks. The CONNECT and initial PING frames are pipelined: the caller
// may publish immediately without awaiting the server's response.
//
// The establishment stages follow a common shape:
//
//	type Func[A, B any] interface {
//		Call(ctx context.Context, input A) (B, error)
//	}
//
// The orchestrator composes its dial, INFO-read, and TLS-upgrade stages
// via [Compose3]; [*DialFunc] and [*TLSHandshakeFunc] are the reusable
// stages, and [FuncAdapter] lifts the in-between glue. Callers building
// custom establishment pipelines can compose the same pieces via
// [Compose2] and [Compose3].
//
// # Subscriptions
//
// [Client.Subscribe] yields a [*Subscriber]: a lazy sequence of
// messages consumed with [Subscriber.Next]. Delivery channels are
// bounded at 16 messages; a subscriber that stops consuming while
// messages keep arriving is evicted (the event loop sends UNSUB and
// ends the sequence). [Subscriber.Unsubscribe] is fire-and-forget and
// safe to call from any goroutine.
//
// # Lifecycle and Cancellation
//
// The connect context bounds only the handshake. The established
// connection lives until [Client.Close] — which lets the already
// accepted commands drain, then terminates the loop — or until the
// server ends the stream, after which every client operation fails
// with [ErrEnqueueFailed]. Request/reply timeouts are the caller's
// responsibility via [context.WithTimeout].
//
// # Observability
//
// All subsystems support structured logging via [SLogger] (compatible
// with [log/slog]). By default, logging is disabled. Lifecycle events
// (connectStart/Done, tlsHandshakeStart/Done, loopStart/Done,
// slowConsumer, sendFailed) are emitted at [slog.LevelInfo];
// per-frame I/O events (readOp, writeOp) at [slog.LevelDebug]. Events
// share a common set of fields: localAddr, remoteAddr, protocol, and t
// (timestamp); completion events additionally include t0, err, and
// errClass. Error classification is configurable via [ErrClassifier].
//
// # Design Boundaries
//
// This package intentionally implements only the connection core. The
// following are out of scope and should be implemented by higher-level
// packages:
//
//   - Automatic reconnection and failover across servers
//   - Durable subscriptions and persistence
//   - Message headers and status codes
//   - Back-pressure propagation from slow subscribers to publishers
package natsmux
