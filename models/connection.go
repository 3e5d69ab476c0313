package models

import (
	"time"
)

type ConnectionDirection string

const (
	DirectionNone          ConnectionDirection = "none"
	DirectionBidirectional ConnectionDirection = "bidirectional"
	DirectionForward       ConnectionDirection = "forward"
	DirectionBackward      ConnectionDirection = "backward"
)

// ValidDirection reports whether d is one of the accepted direction values.
func ValidDirection(d ConnectionDirection) bool {
	switch d {
	case DirectionNone, DirectionBidirectional, DirectionForward, DirectionBackward:
		return true
	}
	return false
}

// NoteConnection is a user-drawn edge between two cards on the notes canvas.
// Endpoints reference card ids; at most one connection exists per ordered
// (book, from, to) triple.
type NoteConnection struct {
	ID          string              `gorm:"primaryKey" json:"id"`
	BookID      string              `gorm:"column:book_id;not null;index" json:"book_id"`
	FromCardID  string              `gorm:"column:from_card_id;not null" json:"from_card_id"`
	ToCardID    string              `gorm:"column:to_card_id;not null" json:"to_card_id"`
	Direction   ConnectionDirection `gorm:"not null;default:none" json:"direction"`
	Description string              `json:"description,omitempty"`
	CreatedAt   time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"not null" json:"updated_at"`
}

func (NoteConnection) TableName() string {
	return "note_connections"
}
