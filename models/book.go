package models

import (
	"encoding/json"
	"time"
)

type Book struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	Title           string    `gorm:"not null" json:"title"`
	CoverPath       string    `gorm:"column:cover_path" json:"cover_path,omitempty"`
	FilePath        string    `gorm:"column:file_path;not null;unique" json:"file_path"`
	Author          string    `json:"author,omitempty"`
	Description     string    `json:"description,omitempty"`
	Topic           string    `json:"topic,omitempty"`
	ReadingProgress string    `gorm:"column:reading_progress" json:"reading_progress,omitempty"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

func (b *Book) FromJSON(data []byte) error {
	return json.Unmarshal(data, b)
}

func (b *Book) ToJSON() ([]byte, error) {
	return json.Marshal(b)
}
