package models

import (
	"time"
)

// Default card geometry assigned when a caller supplies none.
const (
	DefaultCardWidth  = 200.0
	DefaultCardHeight = 120.0
)

// CardPosition is the card's placement on the infinite notes canvas.
type CardPosition struct {
	X float64 `gorm:"column:x" json:"x"`
	Y float64 `gorm:"column:y" json:"y"`
}

// Card is the visual representation of one annotation on the notes canvas.
// At most one card exists per annotation; the card id is the canonical node
// key in the canvas layer.
type Card struct {
	ID           string       `gorm:"primaryKey" json:"id"`
	AnnotationID string       `gorm:"column:annotation_id;not null;index" json:"annotation_id"`
	Position     CardPosition `gorm:"embedded;embeddedPrefix:position_" json:"position"`
	Width        float64      `json:"width"`
	Height       float64      `json:"height"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

// StaggeredPosition returns the default placement for the i-th card laid
// out on a fresh canvas.
func StaggeredPosition(i int) CardPosition {
	return CardPosition{X: 50 + float64(i)*200, Y: 50 + float64(i)*150}
}
