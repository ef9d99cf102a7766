package amqp

import (
	"encoding/json"
	"time"

	"soldi/internal/core"
)

// WriteMessage is the wire form of one synchronized write. The consumer on
// the other side applies it to the system of record.
type WriteMessage struct {
	Op          string            `json:"op"`
	Collection  string            `json:"collection"`
	EntityID    string            `json:"entity_id"`
	Entity      *core.Transaction `json:"entity,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
}

func newWriteMessage(op core.WriteOp, collection string, tx *core.Transaction, id string) *WriteMessage {
	return &WriteMessage{
		Op:          string(op),
		Collection:  collection,
		EntityID:    id,
		Entity:      tx,
		PublishedAt: time.Now().UTC(),
	}
}

func (m *WriteMessage) toJSON() ([]byte, error) {
	return json.Marshal(m)
}

// WriteMessageFromJSON decodes a message published by this client.
func WriteMessageFromJSON(data []byte) (*WriteMessage, error) {
	var msg WriteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
