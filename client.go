// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import (
	"context"
	"errors"
	"io"
	"sync"
)

// commandQueueSize is the capacity of the bounded command queue between
// client handles and the event loop. Sending on a full queue blocks:
// this is the back-pressure mechanism bounding publish rate.
const commandQueueSize = 128

// Client is a cheaply copyable handle to one connection.
//
// All copies of a Client share the same command queue and subscription
// registry: copying the value is the way to hand the connection to
// another goroutine. Construct via [Connect] or [ConnectWithOptions].
type Client struct {
	core *clientCore
}

// clientCore is the state shared by every copy of a [Client].
type clientCore struct {
	// commands is the bounded queue feeding the event loop. It is
	// never closed: shutdown is signaled through closing and done, so
	// late senders fail with [ErrEnqueueFailed] instead of panicking.
	commands chan ClientOp

	// registry is the shared subscription registry.
	registry *subscriptionRegistry

	// done is closed when the event loop has terminated.
	done chan struct{}

	// closing is closed by [Client.Close] to ask the event loop to
	// drain the queue and terminate.
	closing chan struct{}

	// closeOnce guards closing.
	closeOnce sync.Once

	// inboxFunc generates unique inbox subjects for request/reply.
	inboxFunc func() string
}

// enqueue places op on the command queue, blocking while the queue is
// full. It fails with [ErrEnqueueFailed] once the client is closed or
// the event loop has terminated, and with the context error when ctx
// is done first.
func (c *clientCore) enqueue(ctx context.Context, op ClientOp) error {
	select {
	case <-c.done:
		return ErrEnqueueFailed
	case <-c.closing:
		return ErrEnqueueFailed
	default:
	}
	select {
	case c.commands <- op:
		return nil
	case <-c.done:
		return ErrEnqueueFailed
	case <-c.closing:
		return ErrEnqueueFailed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueueAsync places op on the command queue without blocking the
// caller: when the queue is momentarily full the send moves to its own
// goroutine. Failures are silently dropped; the event loop's own
// liveness checks clean up after lost commands.
func (c *clientCore) enqueueAsync(op ClientOp) {
	select {
	case c.commands <- op:
	case <-c.done:
	case <-c.closing:
	default:
		go func() {
			select {
			case c.commands <- op:
			case <-c.done:
			case <-c.closing:
			}
		}()
	}
}

// Publish publishes payload to the given subject.
//
// The call returns once the operation is accepted into the command
// queue; the frame itself is written and flushed asynchronously by the
// event loop.
func (c *Client) Publish(ctx context.Context, subject string, payload []byte) error {
	return c.core.enqueue(ctx, ClientPublish{Subject: subject, Payload: payload})
}

// PublishWithReply publishes payload to the given subject, asking the
// receiver to respond on the reply subject.
func (c *Client) PublishWithReply(ctx context.Context, subject, reply string, payload []byte) error {
	return c.core.enqueue(ctx, ClientPublish{Subject: subject, Reply: reply, Payload: payload})
}

// Subscribe registers interest in a subject and returns a
// [*Subscriber] yielding the matching messages.
//
// The subscription is registered before the SUB frame is enqueued, so
// the event loop can never receive a matching MSG for an unknown sid.
func (c *Client) Subscribe(ctx context.Context, subject string) (*Subscriber, error) {
	sub := &subscription{messages: make(chan *Message, subscriptionBufferSize)}
	sid := c.core.registry.insert(sub)
	if err := c.core.enqueue(ctx, ClientSubscribe{SID: sid, Subject: subject}); err != nil {
		c.core.registry.removeAndClose(sid)
		return nil, err
	}
	return &Subscriber{
		uid:      sid,
		core:     c.core,
		messages: sub.messages,
	}, nil
}

// Request publishes payload to the given subject with a freshly
// generated inbox as the reply subject, and awaits a single message on
// that inbox.
//
// Returns [ErrNoReply] when the inbox subscription ends without
// delivering any message. The caller bounds the wait through ctx.
func (c *Client) Request(ctx context.Context, subject string, payload []byte) (*Message, error) {
	inbox := c.NewInbox()
	sub, err := c.Subscribe(ctx, inbox)
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()
	if err := c.PublishWithReply(ctx, subject, inbox, payload); err != nil {
		return nil, err
	}
	if err := c.Flush(ctx); err != nil {
		return nil, err
	}
	msg, err := sub.Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil, ErrNoReply
	}
	return msg, err
}

// Flush asks the event loop to flush the buffered writer and awaits
// the result, surfacing either the enqueue error or the flush error.
func (c *Client) Flush(ctx context.Context) error {
	result := make(chan error, 1)
	if err := c.core.enqueue(ctx, ClientFlush{Result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-c.core.done:
		return ErrEnqueueFailed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewInbox returns a new unique subject usable as a reply address.
func (c *Client) NewInbox() string {
	return c.core.inboxFunc()
}

// Close asks the event loop to terminate once the commands already
// accepted into the queue have drained. Subsequent operations on any
// copy of this client fail with [ErrEnqueueFailed]. Close is
// idempotent and safe to call from any goroutine.
func (c *Client) Close() {
	c.core.closeOnce.Do(func() {
		close(c.core.closing)
	})
}
