package models

import (
	"encoding/json"
	"time"
)

// Default highlight color applied when the reader creates an annotation
// without picking one.
const (
	DefaultColorRGBA     = "rgba(255, 255, 0, 0.4)"
	DefaultColorCategory = "default"
)

// AnnotationColor is the highlight color of an annotation. RGBA is the
// painted value, Category the user-facing color group it belongs to.
type AnnotationColor struct {
	RGBA     string `gorm:"column:rgba" json:"rgba"`
	Category string `gorm:"column:category" json:"category"`
}

// Annotation is a highlight anchored to a position inside a rendered book.
// CfiRange and Text are an immutable snapshot of the selection; the range
// identifier is opaque to this layer and interpreted only by the document
// viewer.
type Annotation struct {
	ID        string          `gorm:"primaryKey" json:"id"`
	BookID    string          `gorm:"column:book_id;not null;index" json:"book_id"`
	CfiRange  string          `gorm:"column:cfi_range;not null" json:"cfi_range"`
	Text      string          `gorm:"not null" json:"text"`
	Title     string          `json:"title"`
	Note      string          `json:"note"`
	Color     AnnotationColor `gorm:"embedded;embeddedPrefix:color_" json:"color"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (a *Annotation) FromJSON(data []byte) error {
	return json.Unmarshal(data, a)
}

func (a *Annotation) ToJSON() ([]byte, error) {
	return json.Marshal(a)
}
