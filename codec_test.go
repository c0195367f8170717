// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tryParseOp recognizes the control frames and stalls on incomplete input.
func TestTryParseOpControlFrames(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// input is the buffered bytes.
		input string

		// wantOp is the expected op, nil for need-more-data.
		wantOp ServerOp

		// wantN is the expected number of consumed bytes.
		wantN int
	}{
		{
			name:   "+OK frame",
			input:  "+OK\r\n",
			wantOp: ServerOK{},
			wantN:  5,
		},

		{
			name:   "PING frame",
			input:  "PING\r\n",
			wantOp: ServerPing{},
			wantN:  6,
		},

		{
			name:   "PONG frame",
			input:  "PONG\r\n",
			wantOp: ServerPong{},
			wantN:  6,
		},

		{
			name:   "frame followed by more data",
			input:  "PING\r\nPONG\r\n",
			wantOp: ServerPing{},
			wantN:  6,
		},

		{
			name:   "empty buffer",
			input:  "",
			wantOp: nil,
			wantN:  0,
		},

		{
			name:   "incomplete control frame",
			input:  "+OK\r",
			wantOp: nil,
			wantN:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, n, err := tryParseOp([]byte(tt.input))

			require.NoError(t, err)
			assert.Equal(t, tt.wantOp, op)
			assert.Equal(t, tt.wantN, n)
		})
	}
}

// tryParseOp parses the INFO payload into a ServerInfo.
func TestTryParseOpInfo(t *testing.T) {
	t.Run("valid INFO", func(t *testing.T) {
		input := `INFO {"server_id":"a1","host":"127.0.0.1","port":4222,` +
			`"tls_required":true,"max_payload":1048576}` + "\r\n"

		op, n, err := tryParseOp([]byte(input))

		require.NoError(t, err)
		require.Equal(t, len(input), n)
		info, ok := op.(ServerInfoOp)
		require.True(t, ok)
		assert.Equal(t, "a1", info.Info.ServerID)
		assert.Equal(t, "127.0.0.1", info.Info.Host)
		assert.Equal(t, uint16(4222), info.Info.Port)
		assert.True(t, info.Info.TLSRequired)
		assert.Equal(t, 1048576, info.Info.MaxPayload)
	})

	t.Run("INFO without terminator needs more data", func(t *testing.T) {
		op, n, err := tryParseOp([]byte(`INFO {"host":"x"}`))

		require.NoError(t, err)
		assert.Nil(t, op)
		assert.Zero(t, n)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, _, err := tryParseOp([]byte("INFO {not-json}\r\n"))

		require.ErrorIs(t, err, ErrProtocolMalformed)
	})

	t.Run("invalid UTF-8 header", func(t *testing.T) {
		_, _, err := tryParseOp([]byte("INFO \xff\xfe\r\n"))

		require.ErrorIs(t, err, ErrProtocolMalformed)
	})
}

// tryParseOp parses MSG frames with and without a reply subject.
func TestTryParseOpMsg(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// input is the buffered bytes.
		input string

		// want is the expected message.
		want ServerMsg
	}{
		{
			name:  "without reply",
			input: "MSG foo 7 4\r\ndata\r\n",
			want:  ServerMsg{SID: 7, Subject: "foo", Payload: []byte("data")},
		},

		{
			name:  "with reply",
			input: "MSG foo 7 bar 4\r\ndata\r\n",
			want:  ServerMsg{SID: 7, Subject: "foo", Reply: "bar", Payload: []byte("data")},
		},

		{
			name:  "empty payload",
			input: "MSG foo 1 0\r\n\r\n",
			want:  ServerMsg{SID: 1, Subject: "foo", Payload: []byte{}},
		},

		{
			name:  "payload containing CRLF",
			input: "MSG foo 1 6\r\nda\r\nta\r\n",
			want:  ServerMsg{SID: 1, Subject: "foo", Payload: []byte("da\r\nta")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, n, err := tryParseOp([]byte(tt.input))

			require.NoError(t, err)
			require.Equal(t, len(tt.input), n)
			assert.Equal(t, tt.want, op)
		})
	}
}

// A MSG is only emitted once the declared payload and its trailing CRLF
// are fully buffered; shorter buffers consume nothing.
func TestTryParseOpMsgPayloadBoundary(t *testing.T) {
	frame := "MSG foo 7 bar 4\r\ndata\r\n"

	for cut := 0; cut < len(frame); cut++ {
		op, n, err := tryParseOp([]byte(frame[:cut]))

		require.NoError(t, err, "cut=%d", cut)
		assert.Nil(t, op, "cut=%d", cut)
		assert.Zero(t, n, "cut=%d", cut)
	}

	op, n, err := tryParseOp([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)
	assert.Equal(t, ServerMsg{SID: 7, Subject: "foo", Reply: "bar", Payload: []byte("data")}, op)
}

// Malformed MSG headers fail with ErrProtocolMalformed.
func TestTryParseOpMsgMalformed(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// input is the buffered bytes.
		input string
	}{
		{
			name:  "too few arguments",
			input: "MSG foo\r\n",
		},

		{
			name:  "too many arguments",
			input: "MSG a b c d e\r\n",
		},

		{
			name:  "sid is not an integer",
			input: "MSG foo abc 4\r\ndata\r\n",
		},

		{
			name:  "payload length is not an integer",
			input: "MSG foo 1 four\r\ndata\r\n",
		},

		{
			name:  "negative payload length",
			input: "MSG foo 1 -4\r\ndata\r\n",
		},

		{
			name:  "invalid UTF-8 header",
			input: "MSG \xff\xfe 1 4\r\ndata\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tryParseOp([]byte(tt.input))

			require.ErrorIs(t, err, ErrProtocolMalformed)
		})
	}
}

// Feeding any valid frame one byte at a time yields need-more-data for
// every proper prefix and exactly one op on the final byte.
func TestPartialFrameTolerance(t *testing.T) {
	frames := []string{
		"+OK\r\n",
		"PING\r\n",
		"PONG\r\n",
		"INFO {\"host\":\"example.com\",\"tls_required\":false}\r\n",
		"MSG foo 1 4\r\ndata\r\n",
		"MSG foo 1 bar 4\r\ndata\r\n",
	}

	for _, frame := range frames {
		for cut := 0; cut < len(frame); cut++ {
			op, n, err := tryParseOp([]byte(frame[:cut]))

			require.NoError(t, err, "frame=%q cut=%d", frame, cut)
			require.Nil(t, op, "frame=%q cut=%d", frame, cut)
			require.Zero(t, n, "frame=%q cut=%d", frame, cut)
		}

		op, n, err := tryParseOp([]byte(frame))
		require.NoError(t, err, "frame=%q", frame)
		require.NotNil(t, op, "frame=%q", frame)
		require.Equal(t, len(frame), n, "frame=%q", frame)
	}
}

// encodeOp emits the exact wire bytes and the per-op flush demand.
func TestEncodeOp(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// op is the client op to encode.
		op ClientOp

		// want is the expected wire encoding.
		want string

		// wantFlush indicates whether the op demands a flush.
		wantFlush bool
	}{
		{
			name:      "PUB without reply",
			op:        ClientPublish{Subject: "foo", Payload: []byte("data")},
			want:      "PUB foo 4\r\ndata\r\n",
			wantFlush: false,
		},

		{
			name:      "PUB with reply",
			op:        ClientPublish{Subject: "foo", Reply: "bar", Payload: []byte("data")},
			want:      "PUB foo bar 4\r\ndata\r\n",
			wantFlush: false,
		},

		{
			name:      "PUB with empty payload",
			op:        ClientPublish{Subject: "foo"},
			want:      "PUB foo 0\r\n\r\n",
			wantFlush: false,
		},

		{
			name:      "SUB",
			op:        ClientSubscribe{SID: 11, Subject: "foo"},
			want:      "SUB foo 11\r\n",
			wantFlush: true,
		},

		{
			name:      "UNSUB",
			op:        ClientUnsubscribe{ID: 11},
			want:      "UNSUB 11\r\n",
			wantFlush: false,
		},

		{
			name:      "PING",
			op:        ClientPing{},
			want:      "PING\r\n",
			wantFlush: true,
		},

		{
			name:      "PONG",
			op:        ClientPong{},
			want:      "PONG\r\n",
			wantFlush: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := bufio.NewWriter(&buf)

			flush, err := encodeOp(w, tt.op)

			require.NoError(t, err)
			require.NoError(t, w.Flush())
			assert.Equal(t, tt.want, buf.String())
			assert.Equal(t, tt.wantFlush, flush)
		})
	}
}

// encodeOp serializes the CONNECT payload as JSON on a single line.
func TestEncodeOpConnect(t *testing.T) {
	info := ConnectInfo{
		Name:         "natsmux",
		Echo:         true,
		Lang:         "go",
		Version:      "0.1.0",
		Protocol:     ProtocolDynamic,
		TLSRequired:  true,
		User:         "joe",
		Pass:         "secret",
		Headers:      true,
		NoResponders: true,
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	flush, err := encodeOp(w, ClientConnect{Info: info})
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	assert.False(t, flush)

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "CONNECT {"))
	require.True(t, strings.HasSuffix(out, "}\r\n"))

	var parsed ConnectInfo
	require.NoError(t, jsonAPI.Unmarshal([]byte(out[8:len(out)-2]), &parsed))
	assert.Equal(t, info, parsed)

	// Empty optionals are omitted from the payload.
	assert.NotContains(t, out, "auth_token")
	assert.NotContains(t, out, "nkey")
}

// For every encoded client frame with a server counterpart, the decoder
// yields the equivalent server op: PING and PONG round-trip unchanged,
// while a PUB becomes the MSG the server would fan it out as.
func TestFrameRoundTrip(t *testing.T) {
	t.Run("PING", func(t *testing.T) {
		var buf bytes.Buffer
		w := bufio.NewWriter(&buf)
		_, err := encodeOp(w, ClientPing{})
		require.NoError(t, err)
		require.NoError(t, w.Flush())

		op, n, err := tryParseOp(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, buf.Len(), n)
		assert.Equal(t, ServerPing{}, op)
	})

	t.Run("PONG", func(t *testing.T) {
		var buf bytes.Buffer
		w := bufio.NewWriter(&buf)
		_, err := encodeOp(w, ClientPong{})
		require.NoError(t, err)
		require.NoError(t, w.Flush())

		op, n, err := tryParseOp(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, buf.Len(), n)
		assert.Equal(t, ServerPong{}, op)
	})

	t.Run("PUB becomes MSG", func(t *testing.T) {
		pubs := []ClientPublish{
			{Subject: "foo", Payload: []byte("data")},
			{Subject: "foo", Reply: "bar", Payload: []byte("data")},
			{Subject: "a.b.c", Payload: []byte{}},
			{Subject: "bin", Payload: []byte("da\r\nta")},
		}
		for _, pub := range pubs {
			var buf bytes.Buffer
			w := bufio.NewWriter(&buf)
			_, err := encodeOp(w, pub)
			require.NoError(t, err)
			require.NoError(t, w.Flush())

			// A server echoing the PUB to subscription 9 rewrites the
			// verb and inserts the sid after the subject.
			echoed := strings.Replace(buf.String(),
				"PUB "+pub.Subject, "MSG "+pub.Subject+" 9", 1)

			op, n, err := tryParseOp([]byte(echoed))
			require.NoError(t, err)
			require.Equal(t, len(echoed), n)
			msg, ok := op.(ServerMsg)
			require.True(t, ok)
			assert.Equal(t, uint64(9), msg.SID)
			assert.Equal(t, pub.Subject, msg.Subject)
			assert.Equal(t, pub.Reply, msg.Reply)
			assert.Equal(t, pub.Payload, msg.Payload)
		}
	})
}
