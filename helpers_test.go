// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
	"github.com/bassosimone/tlsstub"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// newMockTLSEngine returns a [*tlsstub.FuncTLSEngine] that wraps the given
// [TLSConn]. The engine's ClientFunc returns the conn and NameFunc returns
// "mock".
func newMockTLSEngine(conn TLSConn) *tlsstub.FuncTLSEngine[TLSConn] {
	return &tlsstub.FuncTLSEngine[TLSConn]{
		ClientFunc: func(c net.Conn, config *tls.Config) TLSConn {
			return conn
		},
		NameFunc: func() string {
			return "mock"
		},
		ParrotFunc: func() string {
			return ""
		},
	}
}

// newMinimalConn returns a [*netstub.FuncConn] with only LocalAddrFunc and
// RemoteAddrFunc set. This is the minimum needed for code that calls
// [safeconn.LocalAddr], [safeconn.RemoteAddr], and [safeconn.Network]
// during construction.
func newMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
	}
}

// scriptedConn is a [net.Conn] replaying a fixed sequence of read
// chunks and capturing everything written to it. Once the script is
// exhausted, reads return [io.EOF].
type scriptedConn struct {
	*netstub.FuncConn
	mu     sync.Mutex
	reads  [][]byte
	writes bytes.Buffer
}

// newScriptedConn returns a [*scriptedConn] replaying the given chunks.
func newScriptedConn(reads ...[]byte) *scriptedConn {
	sc := &scriptedConn{reads: reads}
	sc.FuncConn = &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
		CloseFunc:      func() error { return nil },
		ReadFunc: func(b []byte) (int, error) {
			sc.mu.Lock()
			defer sc.mu.Unlock()
			if len(sc.reads) == 0 {
				return 0, io.EOF
			}
			chunk := sc.reads[0]
			count := copy(b, chunk)
			if count < len(chunk) {
				sc.reads[0] = chunk[count:]
			} else {
				sc.reads = sc.reads[1:]
			}
			return count, nil
		},
		WriteFunc: func(b []byte) (int, error) {
			sc.mu.Lock()
			defer sc.mu.Unlock()
			sc.writes.Write(b)
			return len(b), nil
		},
	}
	return sc
}

// written returns everything written to the connection so far.
func (sc *scriptedConn) written() string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.writes.String()
}

// newHangingScriptedConn is like [newScriptedConn] except that, once
// the script is exhausted, reads block until the connection is closed
// instead of returning [io.EOF]. This models a live server that has
// nothing more to say.
func newHangingScriptedConn(reads ...[]byte) *scriptedConn {
	sc := newScriptedConn(reads...)
	closed := make(chan struct{})
	var closeOnce sync.Once
	inner := sc.FuncConn.ReadFunc
	sc.FuncConn.ReadFunc = func(b []byte) (int, error) {
		sc.mu.Lock()
		exhausted := len(sc.reads) == 0
		sc.mu.Unlock()
		if exhausted {
			<-closed
			return 0, io.EOF
		}
		return inner(b)
	}
	sc.FuncConn.CloseFunc = func() error {
		closeOnce.Do(func() { close(closed) })
		return nil
	}
	return sc
}
