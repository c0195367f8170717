// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import "sync"

// subscriptionBufferSize is the capacity of a subscription's delivery
// channel. When the channel is full the subscriber is considered slow
// and the event loop evicts it.
const subscriptionBufferSize = 16

// subscription is the delivery endpoint of one subscription.
type subscription struct {
	// messages is the bounded channel feeding the [*Subscriber]. The
	// registry owns the send side. The event loop closes it, except that
	// [Client.Subscribe] closes it when its SUB cannot be enqueued.
	messages chan *Message
}

// deliverResult is the outcome of a delivery attempt.
type deliverResult int

const (
	// deliverOK means the message was handed to the delivery channel.
	deliverOK = deliverResult(iota)

	// deliverUnknown means no subscription exists for the sid.
	deliverUnknown

	// deliverFull means the delivery channel was full (slow consumer).
	deliverFull
)

// subscriptionRegistry maps wire subscription identifiers (sid) to
// delivery endpoints and user-facing identifiers (uid) to sids.
//
// The registry is shared between client handles (which insert, and
// remove their own entry when the SUB cannot be enqueued) and the event
// loop (which delivers and removes). A single mutex serializes
// all access; critical sections perform O(1) map operations plus at
// most one non-blocking channel send.
//
// Identifiers start at 1 and are never reused within the lifetime of a
// client. In the current design each insert allocates sid == uid.
type subscriptionRegistry struct {
	// mu serializes all registry access.
	mu sync.Mutex

	// nextSID is the next wire subscription identifier.
	nextSID uint64

	// nextUID is the next user-facing identifier.
	nextUID uint64

	// bySID maps sid to its subscription.
	bySID map[uint64]*subscription

	// uidToSID maps uid to sid. Entries are not removed on
	// unsubscribe: identifiers are never reused, so a stale entry can
	// only resolve to a sid absent from bySID.
	uidToSID map[uint64]uint64
}

// newSubscriptionRegistry returns an empty registry with both counters
// starting at 1.
func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		nextSID:  1,
		nextUID:  1,
		bySID:    make(map[uint64]*subscription),
		uidToSID: make(map[uint64]uint64),
	}
}

// insert atomically allocates a (sid, uid) pair, registers sub under
// both, and returns the sid.
func (r *subscriptionRegistry) insert(sub *subscription) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid := r.nextSID
	uid := r.nextUID
	r.nextSID++
	r.nextUID++
	r.bySID[sid] = sub
	r.uidToSID[uid] = sid
	return sid
}

// deliver attempts a non-blocking delivery of msg to the subscription
// registered under sid.
func (r *subscriptionRegistry) deliver(sid uint64, msg *Message) deliverResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.bySID[sid]
	if !ok {
		return deliverUnknown
	}
	select {
	case sub.messages <- msg:
		return deliverOK
	default:
		return deliverFull
	}
}

// resolveRemove resolves uid to its sid and, when the subscription is
// still registered, removes it and closes its delivery channel. The
// second return value reports whether an UNSUB frame should be sent.
func (r *subscriptionRegistry) resolveRemove(uid uint64) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid, ok := r.uidToSID[uid]
	if !ok {
		return 0, false
	}
	sub, ok := r.bySID[sid]
	if !ok {
		return 0, false
	}
	delete(r.bySID, sid)
	close(sub.messages)
	return sid, true
}

// removeAndClose removes the sid entry and closes its delivery channel,
// reporting whether the entry existed.
func (r *subscriptionRegistry) removeAndClose(sid uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.bySID[sid]
	if !ok {
		return false
	}
	delete(r.bySID, sid)
	close(sub.messages)
	return true
}

// sidForUID resolves a user-facing identifier to its wire sid.
func (r *subscriptionRegistry) sidForUID(uid uint64) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid, ok := r.uidToSID[uid]
	return sid, ok
}

// closeAll closes every remaining delivery channel and empties the
// registry. The event loop calls it exactly once, on termination, so
// subscribers observe the end of their message sequence.
func (r *subscriptionRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sid, sub := range r.bySID {
		close(sub.messages)
		delete(r.bySID, sid)
	}
}
