// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// inboxPrefix prefixes every generated inbox subject.
const inboxPrefix = "_INBOX."

// NewInbox returns a globally unique subject usable as a reply address
// for request/reply.
//
// The unique part is a UUIDv7, which is time-ordered, so inboxes
// generated by one process sort by creation time.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewInbox() string {
	return inboxPrefix + runtimex.PanicOnError1(uuid.NewV7()).String()
}
