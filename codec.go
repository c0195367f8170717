// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bassosimone/runtimex"
	jsoniter "github.com/json-iterator/go"
)

// jsonAPI is the JSON codec used for INFO and CONNECT payloads.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// crlf terminates every frame.
var crlf = []byte("\r\n")

// tryParseOp attempts to parse a single server frame from the front of buf.
//
// On success it returns the parsed [ServerOp] and the number of bytes
// consumed. When buf does not yet contain a complete frame it returns
// (nil, 0, nil) and the caller should read more bytes; in that case no
// bytes are consumed. A frame that cannot parse returns an error
// wrapping [ErrProtocolMalformed].
//
// For MSG, the frame is only complete once the declared payload and its
// trailing CRLF are fully buffered.
func tryParseOp(buf []byte) (ServerOp, int, error) {
	if bytes.HasPrefix(buf, []byte("+OK\r\n")) {
		return ServerOK{}, 5, nil
	}

	if bytes.HasPrefix(buf, []byte("PING\r\n")) {
		return ServerPing{}, 6, nil
	}

	if bytes.HasPrefix(buf, []byte("PONG\r\n")) {
		return ServerPong{}, 6, nil
	}

	if bytes.HasPrefix(buf, []byte("INFO ")) {
		idx := bytes.Index(buf, crlf)
		if idx < 0 {
			return nil, 0, nil
		}
		line := buf[5:idx]
		if !utf8.Valid(line) {
			return nil, 0, fmt.Errorf("%w: INFO header is not valid UTF-8", ErrProtocolMalformed)
		}
		info := &ServerInfo{}
		if err := jsonAPI.Unmarshal(line, info); err != nil {
			return nil, 0, fmt.Errorf("%w: INFO payload: %v", ErrProtocolMalformed, err)
		}
		return ServerInfoOp{Info: info}, idx + 2, nil
	}

	if bytes.HasPrefix(buf, []byte("MSG ")) {
		idx := bytes.Index(buf, crlf)
		if idx < 0 {
			return nil, 0, nil
		}
		if !utf8.Valid(buf[4:idx]) {
			return nil, 0, fmt.Errorf("%w: MSG header is not valid UTF-8", ErrProtocolMalformed)
		}

		// Syntax: MSG <subject> <sid> [reply-to] <#bytes>
		args := strings.Fields(string(buf[4:idx]))
		var subject, reply, nbytes string
		var sid string
		switch len(args) {
		case 3:
			subject, sid, nbytes = args[0], args[1], args[2]
		case 4:
			subject, sid, reply, nbytes = args[0], args[1], args[2], args[3]
		default:
			return nil, 0, fmt.Errorf("%w: invalid number of arguments after MSG", ErrProtocolMalformed)
		}

		sidnum, err := strconv.ParseUint(sid, 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: MSG sid: %v", ErrProtocolMalformed, err)
		}
		payloadLen, err := strconv.ParseUint(nbytes, 10, 32)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: MSG payload length: %v", ErrProtocolMalformed, err)
		}

		// Only consume once the whole payload and trailing CRLF arrived.
		total := idx + 2 + int(payloadLen) + 2
		if len(buf) < total {
			return nil, 0, nil
		}

		payload := make([]byte, payloadLen)
		copy(payload, buf[idx+2:])
		return ServerMsg{
			SID:     sidnum,
			Subject: subject,
			Reply:   reply,
			Payload: payload,
		}, total, nil
	}

	return nil, 0, nil
}

// encodeOp writes the wire encoding of op to w without flushing and
// reports whether the op demands an immediate flush of w.
//
// SUB, PING, and PONG demand a flush; CONNECT, PUB, and UNSUB are left
// in the buffer for a later flush. The flush-carrying ops [ClientFlush]
// and [ClientTryFlush] never reach this function: the framed connection
// handles them directly.
func encodeOp(w *bufio.Writer, op ClientOp) (flush bool, err error) {
	switch op := op.(type) {
	case ClientConnect:
		data, err := jsonAPI.Marshal(&op.Info)
		if err != nil {
			return false, err
		}
		w.WriteString("CONNECT ")
		w.Write(data)
		_, err = w.Write(crlf)
		return false, err

	case ClientPublish:
		w.WriteString("PUB ")
		w.WriteString(op.Subject)
		w.WriteByte(' ')
		if op.Reply != "" {
			w.WriteString(op.Reply)
			w.WriteByte(' ')
		}
		w.WriteString(strconv.Itoa(len(op.Payload)))
		w.Write(crlf)
		w.Write(op.Payload)
		_, err := w.Write(crlf)
		return false, err

	case ClientSubscribe:
		w.WriteString("SUB ")
		w.WriteString(op.Subject)
		w.WriteByte(' ')
		w.WriteString(strconv.FormatUint(op.SID, 10))
		_, err := w.Write(crlf)
		return true, err

	case ClientUnsubscribe:
		w.WriteString("UNSUB ")
		w.WriteString(strconv.FormatUint(op.ID, 10))
		_, err := w.Write(crlf)
		return false, err

	case ClientPing:
		_, err := w.WriteString("PING\r\n")
		return true, err

	case ClientPong:
		_, err := w.WriteString("PONG\r\n")
		return true, err

	default:
		runtimex.Assert(false)
		return false, nil
	}
}
