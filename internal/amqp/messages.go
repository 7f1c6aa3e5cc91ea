package amqp

import (
	"encoding/json"
	"time"

	"conti/internal/ledger"
)

// LedgerEventMessage carries one committed ledger event. Consumers reload the
// referenced transactions from the store instead of trusting a payload copy.
type LedgerEventMessage struct {
	ledger.Event
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(e ledger.Event) *LedgerEventMessage {
	return &LedgerEventMessage{Event: e, Timestamp: time.Now()}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
