package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// RecordAppendedMessage announces a record that was durably appended to the
// primary store. Fields use the canonical textual row encoding.
type RecordAppendedMessage struct {
	ID          string    `json:"id"`
	Date        string    `json:"date"`
	Amount      string    `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRecordAppendedMessage creates a message with a fresh event id.
func NewRecordAppendedMessage(r core.Record) *RecordAppendedMessage {
	return &RecordAppendedMessage{
		ID:          uuid.NewString(),
		Date:        r.Date.String(),
		Amount:      r.Amount.String(),
		Category:    r.Category.String(),
		Description: r.Description,
		Timestamp:   time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordAppendedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Record decodes the carried record with the same strict rules as the stores.
func (m *RecordAppendedMessage) Record() (core.Record, error) {
	date, err := core.ParseDate(m.Date)
	if err != nil {
		return core.Record{}, fmt.Errorf("message %s: %w", m.ID, err)
	}
	amount, err := core.ParseAmount(m.Amount)
	if err != nil {
		return core.Record{}, fmt.Errorf("message %s: %w", m.ID, err)
	}
	category, err := core.ParseCategory(m.Category)
	if err != nil {
		return core.Record{}, fmt.Errorf("message %s: %w", m.ID, err)
	}
	return core.Record{Date: date, Amount: amount, Category: category, Description: m.Description}, nil
}

// RecordAppendedMessageFromJSON parses a message body.
func RecordAppendedMessageFromJSON(data []byte) (*RecordAppendedMessage, error) {
	var msg RecordAppendedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(msg.ID); err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", msg.ID, err)
	}
	return &msg, nil
}
