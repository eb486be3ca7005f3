package amqp

import (
	"encoding/json"
	"time"
)

// LedgerChangedMessage tells the export worker that a mutation
// committed. It carries only the operation and the transfer id: the
// worker rebuilds the whole summary from the database, so the payload
// is for logging and debouncing, not for replaying the change.
type LedgerChangedMessage struct {
	Op         string    `json:"op"` // add, update, delete
	TransferID int64     `json:"transfer_id"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewLedgerChangedMessage(op string, transferID int64) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		Op:         op,
		TransferID: transferID,
		Timestamp:  time.Now(),
	}
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
