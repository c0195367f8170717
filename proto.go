// SPDX-License-Identifier: GPL-3.0-or-later

package natsmux

// ServerInfo is the handshake descriptor carried by the INFO frame. The
// server sends it as the first frame on a new connection and may send it
// again later. The connection core only acts on TLSRequired and Host; the
// remaining fields are parsed and retained for the caller.
type ServerInfo struct {
	// ServerID is the unique identifier of the server.
	ServerID string `json:"server_id"`

	// ServerName is the generated server name.
	ServerName string `json:"server_name"`

	// Host is the host the server believes it is reachable at. When
	// valid, it is preferred as the TLS server name.
	Host string `json:"host"`

	// Port is the port the server is listening on.
	Port uint16 `json:"port"`

	// Version is the server version.
	Version string `json:"version"`

	// AuthRequired indicates that the client must authenticate.
	AuthRequired bool `json:"auth_required"`

	// TLSRequired indicates that the server demands a TLS connection.
	TLSRequired bool `json:"tls_required"`

	// MaxPayload is the maximum payload size the server accepts.
	MaxPayload int `json:"max_payload"`

	// Proto is the protocol version in use.
	Proto int8 `json:"proto"`

	// ClientID is the server-assigned client identifier.
	ClientID uint64 `json:"client_id"`

	// Go is the golang version the server was built with.
	Go string `json:"go"`

	// Nonce is the nonce used for nkeys.
	Nonce string `json:"nonce"`

	// ConnectURLs lists alternative server URLs a client may use.
	ConnectURLs []string `json:"connect_urls"`

	// ClientIP is the client IP as observed by the server.
	ClientIP string `json:"client_ip"`

	// Headers indicates whether the server supports headers.
	Headers bool `json:"headers"`

	// LameDuckMode indicates the server is shutting down gracefully.
	LameDuckMode bool `json:"lame_duck_mode"`
}

// Protocol is the protocol level advertised in the CONNECT frame.
type Protocol uint8

const (
	// ProtocolOriginal is the original client protocol.
	ProtocolOriginal = Protocol(0)

	// ProtocolDynamic additionally accepts asynchronous INFO frames
	// carrying cluster topology updates.
	ProtocolDynamic = Protocol(1)
)

// ConnectInfo is the JSON payload of the CONNECT frame.
//
// Optional string fields serialize as omitted when empty.
type ConnectInfo struct {
	// Verbose turns on +OK protocol acknowledgements.
	Verbose bool `json:"verbose"`

	// Pedantic turns on additional strict format checking, e.g. for
	// properly formed subjects.
	Pedantic bool `json:"pedantic"`

	// UserJWT is the user's JWT.
	UserJWT string `json:"user_jwt,omitempty"`

	// NKey is the public nkey.
	NKey string `json:"nkey,omitempty"`

	// Signature is the signed nonce, encoded to Base64URL.
	Signature string `json:"signature,omitempty"`

	// Name is the optional client name.
	Name string `json:"name,omitempty"`

	// Echo, when false, asks the server not to send messages originating
	// from this connection back to its own subscriptions.
	Echo bool `json:"echo"`

	// Lang is the implementation language of the client.
	Lang string `json:"lang"`

	// Version is the version of the client.
	Version string `json:"version"`

	// Protocol is the protocol level supported by the client.
	Protocol Protocol `json:"protocol"`

	// TLSRequired indicates whether the client requires TLS.
	TLSRequired bool `json:"tls_required"`

	// User is the connection username.
	User string `json:"user,omitempty"`

	// Pass is the connection password.
	Pass string `json:"pass,omitempty"`

	// AuthToken is the client authorization token.
	AuthToken string `json:"auth_token,omitempty"`

	// Headers indicates whether the client supports headers.
	Headers bool `json:"headers"`

	// NoResponders indicates whether the client supports no_responders.
	NoResponders bool `json:"no_responders"`
}

// Message is a single message delivered to a [*Subscriber].
type Message struct {
	// Subject is the subject the message was published to.
	Subject string

	// Reply is the optional reply subject ("" when absent).
	Reply string

	// Payload is the raw message payload.
	Payload []byte
}

// ServerOp is one frame received from the server.
//
// The concrete types are [ServerOK], [ServerInfoOp], [ServerPing],
// [ServerPong], and [ServerMsg].
type ServerOp interface {
	serverOp()
}

// ServerOK is the +OK acknowledgement frame.
type ServerOK struct{}

// ServerInfoOp is an INFO frame with its parsed [*ServerInfo].
type ServerInfoOp struct {
	Info *ServerInfo
}

// ServerPing is a PING frame sent by the server.
type ServerPing struct{}

// ServerPong is a PONG frame sent by the server.
type ServerPong struct{}

// ServerMsg is a MSG frame carrying one message for subscription SID.
type ServerMsg struct {
	SID     uint64
	Subject string
	Reply   string
	Payload []byte
}

func (ServerOK) serverOp()     {}
func (ServerInfoOp) serverOp() {}
func (ServerPing) serverOp()   {}
func (ServerPong) serverOp()   {}
func (ServerMsg) serverOp()    {}

// ClientOp is one operation flowing from client handles to the event
// loop through the command queue.
//
// The concrete types are [ClientConnect], [ClientPublish],
// [ClientSubscribe], [ClientUnsubscribe], [ClientPing], [ClientPong],
// [ClientFlush], and [ClientTryFlush].
type ClientOp interface {
	clientOp()
}

// ClientConnect emits a CONNECT frame.
type ClientConnect struct {
	Info ConnectInfo
}

// ClientPublish emits a PUB frame.
type ClientPublish struct {
	Subject string
	Reply   string
	Payload []byte
}

// ClientSubscribe emits a SUB frame for the given wire sid.
type ClientSubscribe struct {
	SID     uint64
	Subject string
}

// ClientUnsubscribe asks the event loop to tear down a subscription.
//
// ID is the user-facing identifier held by the [*Subscriber]; the event
// loop resolves it to the wire sid before emitting UNSUB.
type ClientUnsubscribe struct {
	ID uint64
}

// ClientPing emits a PING frame.
type ClientPing struct{}

// ClientPong emits a PONG frame.
type ClientPong struct{}

// ClientFlush flushes the buffered writer and reports the result on
// Result, which must have capacity for one send.
type ClientFlush struct {
	Result chan<- error
}

// ClientTryFlush flushes the buffered writer without reporting back.
type ClientTryFlush struct{}

func (ClientConnect) clientOp()     {}
func (ClientPublish) clientOp()     {}
func (ClientSubscribe) clientOp()   {}
func (ClientUnsubscribe) clientOp() {}
func (ClientPing) clientOp()        {}
func (ClientPong) clientOp()        {}
func (ClientFlush) clientOp()       {}
func (ClientTryFlush) clientOp()    {}
