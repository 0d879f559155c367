package amqp

import (
	"encoding/json"
	"time"
)

// ChangeMessage announces that a collection root reached a new revision.
// It carries no transaction data; consumers reload the root themselves.
type ChangeMessage struct {
	Root      string    `json:"root"`
	Revision  int64     `json:"revision"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeMessage(root string, revision int64) *ChangeMessage {
	return &ChangeMessage{
		Root:      root,
		Revision:  revision,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
