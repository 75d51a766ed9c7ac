// Package protocol defines the JSON messages exchanged between the slot hub
// and its websocket clients.
package protocol

// MessageType names a hub message.
type MessageType string

const (
	// Client to hub.
	TypeHello MessageType = "hello"
	TypeGet   MessageType = "get"
	TypeSet   MessageType = "set"

	// Hub to client.
	TypeResult MessageType = "result"
	TypeChange MessageType = "change"
)

// Message is the single frame shape used in both directions. Value fields
// are not omitempty: a JSON null means "absent", which must stay distinct
// from an empty value.
type Message struct {
	ID    string      `json:"id,omitempty"`
	Type  MessageType `json:"type"`
	Key   string      `json:"key,omitempty"`
	Name  string      `json:"name,omitempty"`
	Value []byte      `json:"value"`
	Old   []byte      `json:"old"`

	// Result fields.
	OK    bool   `json:"ok,omitempty"`
	Found bool   `json:"found,omitempty"`
	Error string `json:"error,omitempty"`
}

// Result builds the reply to request id.
func Result(id string) Message {
	return Message{ID: id, Type: TypeResult, OK: true}
}

// Failure builds an error reply to request id.
func Failure(id string, err error) Message {
	return Message{ID: id, Type: TypeResult, Error: err.Error()}
}
