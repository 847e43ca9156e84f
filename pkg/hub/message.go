// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
//
// Each overlay layer gets its own hub. A hub remembers the last message it
// broadcast and replays it to clients as they connect, so a new viewer sees
// the current layer immediately.
package hub

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded message, sent as a text frame
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data (JPEG or PNG frames)
	BinaryMessage
)

// Message represents a message to be broadcast to clients
type Message struct {
	Type MessageType
	Data []byte
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
