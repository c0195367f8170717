// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// stubServer is a minimal in-process server for end-to-end tests: it
// sends INFO on accept, answers PING with PONG, records SUB/UNSUB, and
// echoes every PUB back as a MSG to each matching subscription.
type stubServer struct {
	t        testing.TB
	listener net.Listener

	// mu protects conns and unsubs.
	mu     sync.Mutex
	conns  []net.Conn
	unsubs map[uint64]int
}

// newStubServer starts a stub server on a random localhost port. The
// server stops when the test ends.
func newStubServer(t testing.TB) *stubServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &stubServer{
		t:        t,
		listener: listener,
		unsubs:   make(map[uint64]int),
	}
	go srv.acceptLoop()
	t.Cleanup(srv.stop)
	return srv
}

// url returns the address clients should connect to.
func (s *stubServer) url() string {
	return "nats://" + s.listener.Addr().String()
}

// unsubCount returns how many UNSUB frames arrived for the given sid.
func (s *stubServer) unsubCount(sid uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubs[sid]
}

func (s *stubServer) stop() {
	s.listener.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
}

func (s *stubServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.handle(conn)
	}
}

func (s *stubServer) handle(conn net.Conn) {
	defer conn.Close()
	rd := bufio.NewReader(conn)
	wr := bufio.NewWriter(conn)

	fmt.Fprintf(wr, "INFO {\"server_id\":\"stub\",\"host\":\"127.0.0.1\",\"max_payload\":1048576}\r\n")
	if wr.Flush() != nil {
		return
	}

	// subject -> subscribed sids, in subscription order.
	subs := make(map[string][]uint64)
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(strings.TrimSuffix(line, "\r\n"))
		if len(fields) == 0 {
			continue
		}

		switch strings.ToUpper(fields[0]) {
		case "CONNECT", "PONG", "+OK":
			// nothing

		case "PING":
			wr.WriteString("PONG\r\n")
			if wr.Flush() != nil {
				return
			}

		case "SUB":
			if len(fields) != 3 {
				return
			}
			sid, err := strconv.ParseUint(fields[2], 10, 64)
			if err != nil {
				return
			}
			subs[fields[1]] = append(subs[fields[1]], sid)

		case "UNSUB":
			if len(fields) != 2 {
				return
			}
			sid, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return
			}
			for subject, sids := range subs {
				kept := sids[:0]
				for _, cand := range sids {
					if cand != sid {
						kept = append(kept, cand)
					}
				}
				subs[subject] = kept
			}
			s.mu.Lock()
			s.unsubs[sid]++
			s.mu.Unlock()

		case "PUB":
			var subject, reply, nbytes string
			switch len(fields) {
			case 3:
				subject, nbytes = fields[1], fields[2]
			case 4:
				subject, reply, nbytes = fields[1], fields[2], fields[3]
			default:
				return
			}
			count, err := strconv.Atoi(nbytes)
			if err != nil {
				return
			}
			payload := make([]byte, count+2)
			if _, err := io.ReadFull(rd, payload); err != nil {
				return
			}
			payload = payload[:count]
			for _, sid := range subs[subject] {
				if reply != "" {
					fmt.Fprintf(wr, "MSG %s %d %s %d\r\n", subject, sid, reply, count)
				} else {
					fmt.Fprintf(wr, "MSG %s %d %d\r\n", subject, sid, count)
				}
				wr.Write(payload)
				wr.WriteString("\r\n")
			}
			if wr.Flush() != nil {
				return
			}
		}
	}
}
