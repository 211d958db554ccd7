package amqp

import (
	"encoding/json"
	"time"
)

// Account event actions.
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionDeleted  = "deleted"
	ActionRestored = "restored"
)

// AccountEventMessage announces a change to one account. Consumers fetch the
// current account state themselves; the message only carries the id and what
// happened to it.
type AccountEventMessage struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func NewAccountEventMessage(id int64, action string) *AccountEventMessage {
	return &AccountEventMessage{
		ID:        id,
		Action:    action,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *AccountEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AccountEventMessageFromJSON creates a message from JSON bytes
func AccountEventMessageFromJSON(data []byte) (*AccountEventMessage, error) {
	var msg AccountEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
