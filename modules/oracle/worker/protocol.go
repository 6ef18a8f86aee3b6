package worker

import (
	"encoding/json"
	"time"

	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/oracle"
)

// MessageType identifies the kind of WebSocket message in the worker protocol.
type MessageType string

// Protocol message types exchanged over the WebSocket connection.
const (
	MsgHello        MessageType = "hello"
	MsgHelloAck     MessageType = "hello_ack"
	MsgInitialize   MessageType = "initialize"
	MsgReady        MessageType = "ready"
	MsgQuery        MessageType = "query"
	MsgAnswer       MessageType = "answer"
	MsgHeartbeat    MessageType = "heartbeat"
	MsgHeartbeatAck MessageType = "heartbeat_ack"
	MsgError        MessageType = "error"
)

// Envelope is the wire format for all WebSocket messages.
type Envelope struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Hello is sent by the worker to authenticate.
type Hello struct {
	Token   string `json:"token"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// HelloAck is the server's reply to Hello.
type HelloAck struct {
	Accepted bool   `json:"accepted"`
	WorkerID string `json:"worker_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Initialize carries the knowledge base a worker answers from.
type Initialize struct {
	Base   *knowledge.Base `json:"knowledge_base"`
	Config oracle.Config   `json:"config"`
}

// Ready acknowledges Initialize.
type Ready struct {
	Topics int `json:"topics"`
}

// ErrorPayload is the body of an error envelope.
type ErrorPayload struct {
	Message string `json:"message"`
}

// encode builds an envelope with a JSON payload. A nil payload is omitted.
func encode(typ MessageType, id string, payload any) ([]byte, error) {
	env := Envelope{Type: typ, ID: id, Timestamp: time.Now()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

func decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// remoteError converts an error envelope into a Go error.
func remoteError(env Envelope) error {
	var p ErrorPayload
	_ = json.Unmarshal(env.Payload, &p)
	if p.Message == "" {
		p.Message = "unspecified"
	}
	return &RemoteError{Message: p.Message}
}

// RemoteError is an error reported by the peer.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "worker: remote error: " + e.Message }

// Is makes errors.Is(err, ErrRemote) match.
func (e *RemoteError) Is(target error) bool { return target == ErrRemote }
