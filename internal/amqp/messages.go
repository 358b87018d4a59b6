package amqp

import (
	"encoding/json"
	"time"
)

// TransactionRecordedMessage is the lightweight event published after a
// transaction commits. It carries only identifiers; the worker fetches the
// full ledger entry from the database.
type TransactionRecordedMessage struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTransactionRecordedMessage creates an event for a freshly committed
// ledger entry.
func NewTransactionRecordedMessage(id, userID int64) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		ID:        id,
		UserID:    userID,
		Version:   1,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionRecordedMessageFromJSON creates a message from JSON bytes
func TransactionRecordedMessageFromJSON(data []byte) (*TransactionRecordedMessage, error) {
	var msg TransactionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
