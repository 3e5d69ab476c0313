package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event lifecycle: pending -> broadcast (clients notified, broker still
// owed) -> completed.
const (
	EventStatusPending   = "pending"
	EventStatusBroadcast = "broadcast"
	EventStatusCompleted = "completed"
)

// Event is a persisted record of an entity mutation, written in the same
// transaction as the mutation itself and dispatched to the broker afterwards.
type Event struct {
	ID           uuid.UUID       `gorm:"primaryKey" json:"id"`
	Event        string          `gorm:"not null" json:"event"`
	Version      int             `gorm:"not null" json:"version"`
	Entity       string          `gorm:"not null" json:"entity"`
	Operation    string          `gorm:"not null" json:"operation"`
	Timestamp    time.Time       `gorm:"not null" json:"timestamp"`
	Data         json.RawMessage `gorm:"type:text;not null" json:"data"`
	Status       string          `gorm:"not null;default:'pending'" json:"status"`
	Dispatched   bool            `gorm:"not null;default:false" json:"dispatched"`
	DispatchedAt *time.Time      `json:"dispatched_at,omitempty"`
}

func NewEvent(event, entity, operation string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Event:     event,
		Version:   1,
		Entity:    entity,
		Operation: operation,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
		Status:    EventStatusPending,
	}, nil
}
