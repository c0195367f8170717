// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import "context"

// Func is a generic connection-establishment operation that accepts an
// input and returns a result.
//
// Func instances can be composed using [Compose2] and [Compose3] to
// create type-safe pipelines where the output of one operation flows to
// the input of the next. The connect orchestrator is itself a fixed
// pipeline of such operations: dial, read INFO, optionally upgrade to TLS.
//
// Resource cleanup contract: when a Func receives a closeable resource as input
// and returns an error, it is responsible for closing that resource before returning.
// This ensures that composed pipelines do not leak resources on partial failure.
// See [TLSHandshakeFunc] for an example of this pattern.
type Func[A, B any] interface {
	Call(ctx context.Context, input A) (B, error)
}

// FuncAdapter wraps a function as a [Func] implementation.
//
// Use this to create ad-hoc [Func] instances from closures when you need
// custom behavior that doesn't fit the existing primitives.
type FuncAdapter[A, B any] func(ctx context.Context, input A) (B, error)

// Call implements [Func].
func (f FuncAdapter[A, B]) Call(ctx context.Context, input A) (B, error) {
	return f(ctx, input)
}
