package services

import (
	"errors"
	"log"

	"marginalia-reader/marginalia/broker"
	"marginalia-reader/marginalia/database"
	"marginalia-reader/marginalia/models"

	"gorm.io/gorm"
)

type CardServiceInterface interface {
	GetCardsByAnnotationIds(db *database.Database, annotationIDs []string) ([]models.Card, error)
	CreateCard(db *database.Database, annotationID string, cardData map[string]interface{}) (models.Card, error)
	UpdateCard(db *database.Database, id string, updatedData map[string]interface{}) (models.Card, error)
	BatchUpsertCards(db *database.Database, cards []models.Card) (BatchResult, error)
	DeleteCardsByAnnotationId(db *database.Database, annotationID string) error
	DeleteCards(db *database.Database, ids []string) error
}

type CardService struct{}

// GetCardsByAnnotationIds bulk-fetches the cards owned by the given
// annotations. Empty input returns an empty result without touching the
// store.
func (s *CardService) GetCardsByAnnotationIds(db *database.Database, annotationIDs []string) ([]models.Card, error) {
	cards := []models.Card{}
	if len(annotationIDs) == 0 {
		return cards, nil
	}
	if err := db.DB.Where("annotation_id IN ?", annotationIDs).Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *CardService) CreateCard(db *database.Database, annotationID string, cardData map[string]interface{}) (models.Card, error) {
	tx := db.DB.Begin()
	if tx.Error != nil {
		return models.Card{}, tx.Error
	}

	var annotationCount int64
	if err := tx.Model(&models.Annotation{}).Where("id = ?", annotationID).Count(&annotationCount).Error; err != nil {
		tx.Rollback()
		return models.Card{}, err
	}
	if annotationCount == 0 {
		tx.Rollback()
		return models.Card{}, ErrAnnotationNotFound
	}

	card := models.Card{
		ID:           models.NewID(),
		AnnotationID: annotationID,
		Width:        models.DefaultCardWidth,
		Height:       models.DefaultCardHeight,
	}
	if position, ok := cardData["position"].(map[string]interface{}); ok {
		if x, ok := position["x"].(float64); ok {
			card.Position.X = x
		}
		if y, ok := position["y"].(float64); ok {
			card.Position.Y = y
		}
	}
	if width, ok := cardData["width"].(float64); ok && width > 0 {
		card.Width = width
	}
	if height, ok := cardData["height"].(float64); ok && height > 0 {
		card.Height = height
	}

	if err := tx.Create(&card).Error; err != nil {
		tx.Rollback()
		return models.Card{}, err
	}

	event, err := models.NewEvent(
		string(broker.CardCreated),
		"card",
		"create",
		map[string]interface{}{
			"card_id":       card.ID,
			"annotation_id": card.AnnotationID,
		},
	)
	if err != nil {
		tx.Rollback()
		return models.Card{}, err
	}
	if err := tx.Create(event).Error; err != nil {
		tx.Rollback()
		return models.Card{}, err
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return models.Card{}, err
	}

	return card, nil
}

func (s *CardService) UpdateCard(db *database.Database, id string, updatedData map[string]interface{}) (models.Card, error) {
	updates := make(map[string]interface{})
	if position, ok := updatedData["position"].(map[string]interface{}); ok {
		if x, ok := position["x"].(float64); ok {
			updates["position_x"] = x
		}
		if y, ok := position["y"].(float64); ok {
			updates["position_y"] = y
		}
	}
	if width, ok := updatedData["width"].(float64); ok {
		updates["width"] = width
	}
	if height, ok := updatedData["height"].(float64); ok {
		updates["height"] = height
	}
	if len(updates) == 0 {
		return models.Card{}, ErrInvalidInput
	}

	var card models.Card
	if err := db.DB.First(&card, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Card{}, ErrCardNotFound
		}
		return models.Card{}, err
	}

	if err := db.DB.Model(&card).Updates(updates).Error; err != nil {
		return models.Card{}, err
	}

	return card, nil
}

// BatchUpsertCards saves a batch of card geometries in one transaction,
// upserting by annotation id rather than card id: the same payload replayed
// twice yields the same stored rows, and a card the UI invented before its
// annotation committed simply lands as an insert. Items whose annotation no
// longer exists are skipped with a warning; one bad entry never discards the
// position data of the rest.
func (s *CardService) BatchUpsertCards(db *database.Database, cards []models.Card) (BatchResult, error) {
	result := BatchResult{}
	if len(cards) == 0 {
		return result, nil
	}

	tx := db.DB.Begin()
	if tx.Error != nil {
		return result, tx.Error
	}

	for _, card := range cards {
		if card.AnnotationID == "" {
			result.fail(card.ID, "missing annotation id")
			continue
		}

		var annotationCount int64
		if err := tx.Model(&models.Annotation{}).Where("id = ?", card.AnnotationID).Count(&annotationCount).Error; err != nil {
			tx.Rollback()
			return BatchResult{}, err
		}
		if annotationCount == 0 {
			log.Printf("Skipping card save for missing annotation %s", card.AnnotationID)
			result.fail(card.AnnotationID, "annotation not found")
			continue
		}

		width := card.Width
		if width <= 0 {
			width = models.DefaultCardWidth
		}
		height := card.Height
		if height <= 0 {
			height = models.DefaultCardHeight
		}

		res := tx.Model(&models.Card{}).Where("annotation_id = ?", card.AnnotationID).Updates(map[string]interface{}{
			"position_x": card.Position.X,
			"position_y": card.Position.Y,
			"width":      width,
			"height":     height,
		})
		if res.Error != nil {
			result.fail(card.AnnotationID, res.Error.Error())
			continue
		}
		if res.RowsAffected == 0 {
			id := card.ID
			if id == "" {
				id = models.NewID()
			}
			newCard := models.Card{
				ID:           id,
				AnnotationID: card.AnnotationID,
				Position:     card.Position,
				Width:        width,
				Height:       height,
			}
			if err := tx.Create(&newCard).Error; err != nil {
				result.fail(card.AnnotationID, err.Error())
				continue
			}
		}
		result.succeed(card.AnnotationID)
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return BatchResult{}, err
	}

	return result, nil
}

func (s *CardService) DeleteCardsByAnnotationId(db *database.Database, annotationID string) error {
	return db.DB.Where("annotation_id = ?", annotationID).Delete(&models.Card{}).Error
}

func (s *CardService) DeleteCards(db *database.Database, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.DB.Where("id IN ?", ids).Delete(&models.Card{}).Error
}

// NewCardService creates a new instance of CardService
func NewCardService() CardServiceInterface {
	return &CardService{}
}

var CardServiceInstance CardServiceInterface
