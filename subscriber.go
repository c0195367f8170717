// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import (
	"context"
	"io"
	"sync"
)

// Subscriber consumes the messages of a single subscription as a lazy
// sequence, in the order the server sent them.
//
// Construct via [Client.Subscribe]. A Subscriber that stops consuming
// while messages keep arriving is evicted by the event loop once its
// delivery buffer fills up; it then observes the end of its sequence.
type Subscriber struct {
	// uid is the user-facing identifier of the subscription.
	uid uint64

	// core is the shared client state, used to enqueue the
	// unsubscribe command on teardown.
	core *clientCore

	// messages is the receive side of the delivery channel. The send
	// side is owned by the registry entry.
	messages <-chan *Message

	// unsubOnce guards the unsubscribe command.
	unsubOnce sync.Once
}

// Next blocks until the next message is available and returns it.
//
// It returns [io.EOF] when the subscription has ended (explicit
// unsubscribe, slow-consumer eviction, or connection teardown) and the
// buffered messages have been drained, and ctx.Err() when the context
// is done first.
func (s *Subscriber) Next(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-s.messages:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe tears down the subscription.
//
// The unsubscribe command is fired and forgotten: enqueue failures are
// ignored because the event loop cleans up broken subscriptions on its
// own. The event loop closes the delivery channel, so a concurrent
// [Subscriber.Next] observes the end of the sequence after draining
// any messages already delivered. Unsubscribe is idempotent.
func (s *Subscriber) Unsubscribe() {
	s.unsubOnce.Do(func() {
		s.core.enqueueAsync(ClientUnsubscribe{ID: s.uid})
	})
}
