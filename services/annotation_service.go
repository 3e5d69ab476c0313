package services

import (
	"errors"

	"marginalia-reader/marginalia/broker"
	"marginalia-reader/marginalia/database"
	"marginalia-reader/marginalia/models"

	"gorm.io/gorm"
)

type AnnotationServiceInterface interface {
	GetAnnotationsByBookId(db *database.Database, bookID string) ([]models.Annotation, error)
	CreateAnnotation(db *database.Database, bookID string, annotationData map[string]interface{}) (models.Annotation, error)
	UpdateAnnotation(db *database.Database, id string, updatedData map[string]interface{}) (models.Annotation, error)
	DeleteAnnotation(db *database.Database, id string) error
}

type AnnotationService struct{}

// GetAnnotationsByBookId returns the book's annotations oldest first, the
// canonical display order.
func (s *AnnotationService) GetAnnotationsByBookId(db *database.Database, bookID string) ([]models.Annotation, error) {
	var annotations []models.Annotation
	if err := db.DB.Where("book_id = ?", bookID).Order("created_at ASC").Find(&annotations).Error; err != nil {
		return nil, err
	}
	return annotations, nil
}

func (s *AnnotationService) CreateAnnotation(db *database.Database, bookID string, annotationData map[string]interface{}) (models.Annotation, error) {
	cfiRange, ok := annotationData["cfi_range"].(string)
	if !ok || cfiRange == "" {
		return models.Annotation{}, ErrInvalidInput
	}
	text, ok := annotationData["text"].(string)
	if !ok {
		return models.Annotation{}, ErrInvalidInput
	}

	tx := db.DB.Begin()
	if tx.Error != nil {
		return models.Annotation{}, tx.Error
	}

	var bookCount int64
	if err := tx.Model(&models.Book{}).Where("id = ?", bookID).Count(&bookCount).Error; err != nil {
		tx.Rollback()
		return models.Annotation{}, err
	}
	if bookCount == 0 {
		tx.Rollback()
		return models.Annotation{}, ErrBookNotFound
	}

	annotation := models.Annotation{
		ID:       models.NewID(),
		BookID:   bookID,
		CfiRange: cfiRange,
		Text:     text,
		Color: models.AnnotationColor{
			RGBA:     models.DefaultColorRGBA,
			Category: models.DefaultColorCategory,
		},
	}
	if title, ok := annotationData["title"].(string); ok {
		annotation.Title = title
	}
	if note, ok := annotationData["note"].(string); ok {
		annotation.Note = note
	}
	if color, ok := annotationData["color"].(map[string]interface{}); ok {
		if rgba, ok := color["rgba"].(string); ok && rgba != "" {
			annotation.Color.RGBA = rgba
		}
		if category, ok := color["category"].(string); ok && category != "" {
			annotation.Color.Category = category
		}
	}

	if err := tx.Create(&annotation).Error; err != nil {
		tx.Rollback()
		return models.Annotation{}, err
	}

	event, err := models.NewEvent(
		string(broker.AnnotationCreated),
		"annotation",
		"create",
		map[string]interface{}{
			"annotation_id": annotation.ID,
			"book_id":       annotation.BookID,
			"cfi_range":     annotation.CfiRange,
		},
	)
	if err != nil {
		tx.Rollback()
		return models.Annotation{}, err
	}
	if err := tx.Create(event).Error; err != nil {
		tx.Rollback()
		return models.Annotation{}, err
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return models.Annotation{}, err
	}

	return annotation, nil
}

// UpdateAnnotation patches the mutable fields: note, title and color. The
// cfi_range and text snapshot are immutable once created.
func (s *AnnotationService) UpdateAnnotation(db *database.Database, id string, updatedData map[string]interface{}) (models.Annotation, error) {
	updates := make(map[string]interface{})
	if note, ok := updatedData["note"]; ok {
		updates["note"] = note
	}
	if title, ok := updatedData["title"]; ok {
		updates["title"] = title
	}
	if color, ok := updatedData["color"].(map[string]interface{}); ok {
		if rgba, ok := color["rgba"]; ok {
			updates["color_rgba"] = rgba
		}
		if category, ok := color["category"]; ok {
			updates["color_category"] = category
		}
	}
	if len(updates) == 0 {
		return models.Annotation{}, ErrInvalidInput
	}

	tx := db.DB.Begin()
	if tx.Error != nil {
		return models.Annotation{}, tx.Error
	}

	var annotation models.Annotation
	if err := tx.First(&annotation, "id = ?", id).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Annotation{}, ErrAnnotationNotFound
		}
		return models.Annotation{}, err
	}

	if err := tx.Model(&annotation).Updates(updates).Error; err != nil {
		tx.Rollback()
		return models.Annotation{}, err
	}

	event, err := models.NewEvent(
		string(broker.AnnotationUpdated),
		"annotation",
		"update",
		map[string]interface{}{
			"annotation_id": annotation.ID,
			"book_id":       annotation.BookID,
		},
	)
	if err != nil {
		tx.Rollback()
		return models.Annotation{}, err
	}
	if err := tx.Create(event).Error; err != nil {
		tx.Rollback()
		return models.Annotation{}, err
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return models.Annotation{}, err
	}

	return annotation, nil
}

func (s *AnnotationService) DeleteAnnotation(db *database.Database, id string) error {
	tx := db.DB.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	var annotation models.Annotation
	if err := tx.First(&annotation, "id = ?", id).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAnnotationNotFound
		}
		return err
	}

	// ON DELETE CASCADE removes the annotation's card, and the card cascade
	// removes any connection touching it, all in this transaction.
	if err := tx.Delete(&annotation).Error; err != nil {
		tx.Rollback()
		return err
	}

	event, err := models.NewEvent(
		string(broker.AnnotationDeleted),
		"annotation",
		"delete",
		map[string]interface{}{
			"annotation_id": annotation.ID,
			"book_id":       annotation.BookID,
		},
	)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Create(event).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// NewAnnotationService creates a new instance of AnnotationService
func NewAnnotationService() AnnotationServiceInterface {
	return &AnnotationService{}
}

var AnnotationServiceInstance AnnotationServiceInterface
