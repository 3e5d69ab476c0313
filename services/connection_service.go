package services

import (
	"errors"
	"log"

	"marginalia-reader/marginalia/broker"
	"marginalia-reader/marginalia/database"
	"marginalia-reader/marginalia/models"

	"gorm.io/gorm"
)

type ConnectionServiceInterface interface {
	GetConnectionsByBookId(db *database.Database, bookID string) ([]models.NoteConnection, error)
	CreateConnection(db *database.Database, draft models.NoteConnection) (models.NoteConnection, error)
	UpdateConnection(db *database.Database, id string, updatedData map[string]interface{}) (models.NoteConnection, error)
	DeleteConnection(db *database.Database, id string) error
	DeleteConnectionsByBookId(db *database.Database, bookID string) error
	ReplaceForBook(db *database.Database, bookID string, connections []models.NoteConnection) (BatchResult, error)
}

type ConnectionService struct{}

func (s *ConnectionService) GetConnectionsByBookId(db *database.Database, bookID string) ([]models.NoteConnection, error) {
	connections := []models.NoteConnection{}
	if err := db.DB.Where("book_id = ?", bookID).Find(&connections).Error; err != nil {
		return nil, err
	}
	return connections, nil
}

// CreateConnection registers an edge between two cards. Creation is
// find-or-return-existing on the ordered (book, from, to) triple, never a
// blind insert, so a repeated connect gesture cannot produce parallel edges.
func (s *ConnectionService) CreateConnection(db *database.Database, draft models.NoteConnection) (models.NoteConnection, error) {
	if draft.BookID == "" || draft.FromCardID == "" || draft.ToCardID == "" {
		return models.NoteConnection{}, ErrInvalidInput
	}
	if draft.Direction == "" {
		draft.Direction = models.DirectionNone
	}
	if !models.ValidDirection(draft.Direction) {
		return models.NoteConnection{}, ErrInvalidInput
	}

	tx := db.DB.Begin()
	if tx.Error != nil {
		return models.NoteConnection{}, tx.Error
	}

	var existing models.NoteConnection
	err := tx.Where("book_id = ? AND from_card_id = ? AND to_card_id = ?",
		draft.BookID, draft.FromCardID, draft.ToCardID).First(&existing).Error
	if err == nil {
		tx.Rollback()
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tx.Rollback()
		return models.NoteConnection{}, err
	}

	var endpointCount int64
	if err := tx.Model(&models.Card{}).Where("id IN ?", []string{draft.FromCardID, draft.ToCardID}).Count(&endpointCount).Error; err != nil {
		tx.Rollback()
		return models.NoteConnection{}, err
	}
	expected := int64(2)
	if draft.FromCardID == draft.ToCardID {
		expected = 1
	}
	if endpointCount < expected {
		tx.Rollback()
		return models.NoteConnection{}, ErrCardNotFound
	}

	connection := models.NoteConnection{
		ID:          models.NewID(),
		BookID:      draft.BookID,
		FromCardID:  draft.FromCardID,
		ToCardID:    draft.ToCardID,
		Direction:   draft.Direction,
		Description: draft.Description,
	}
	if err := tx.Create(&connection).Error; err != nil {
		tx.Rollback()
		return models.NoteConnection{}, err
	}

	event, err := models.NewEvent(
		string(broker.ConnectionCreated),
		"connection",
		"create",
		map[string]interface{}{
			"connection_id": connection.ID,
			"book_id":       connection.BookID,
			"from_card_id":  connection.FromCardID,
			"to_card_id":    connection.ToCardID,
		},
	)
	if err != nil {
		tx.Rollback()
		return models.NoteConnection{}, err
	}
	if err := tx.Create(event).Error; err != nil {
		tx.Rollback()
		return models.NoteConnection{}, err
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return models.NoteConnection{}, err
	}

	return connection, nil
}

func (s *ConnectionService) UpdateConnection(db *database.Database, id string, updatedData map[string]interface{}) (models.NoteConnection, error) {
	updates := make(map[string]interface{})
	if direction, ok := updatedData["direction"].(string); ok {
		if !models.ValidDirection(models.ConnectionDirection(direction)) {
			return models.NoteConnection{}, ErrInvalidInput
		}
		updates["direction"] = direction
	}
	if description, ok := updatedData["description"]; ok {
		updates["description"] = description
	}
	if len(updates) == 0 {
		return models.NoteConnection{}, ErrInvalidInput
	}

	var connection models.NoteConnection
	if err := db.DB.First(&connection, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NoteConnection{}, ErrConnectionNotFound
		}
		return models.NoteConnection{}, err
	}

	if err := db.DB.Model(&connection).Updates(updates).Error; err != nil {
		return models.NoteConnection{}, err
	}

	return connection, nil
}

func (s *ConnectionService) DeleteConnection(db *database.Database, id string) error {
	result := db.DB.Where("id = ?", id).Delete(&models.NoteConnection{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

func (s *ConnectionService) DeleteConnectionsByBookId(db *database.Database, bookID string) error {
	return db.DB.Where("book_id = ?", bookID).Delete(&models.NoteConnection{}).Error
}

// ReplaceForBook swaps the book's entire connection set for the given list in
// one transaction: full replacement, not a merge. Items referencing cards
// that no longer exist are skipped with a warning, best-effort like the card
// batch. Callers that merely have nothing to say yet must not call this with
// an empty list; the canvas layer guards against that.
func (s *ConnectionService) ReplaceForBook(db *database.Database, bookID string, connections []models.NoteConnection) (BatchResult, error) {
	result := BatchResult{}
	if bookID == "" {
		return result, ErrInvalidInput
	}

	tx := db.DB.Begin()
	if tx.Error != nil {
		return result, tx.Error
	}

	if err := tx.Where("book_id = ?", bookID).Delete(&models.NoteConnection{}).Error; err != nil {
		tx.Rollback()
		return BatchResult{}, err
	}

	for _, connection := range connections {
		if connection.FromCardID == "" || connection.ToCardID == "" {
			result.fail(connection.ID, "missing endpoint")
			continue
		}
		if connection.Direction == "" {
			connection.Direction = models.DirectionNone
		}

		var endpointCount int64
		if err := tx.Model(&models.Card{}).Where("id IN ?", []string{connection.FromCardID, connection.ToCardID}).Count(&endpointCount).Error; err != nil {
			tx.Rollback()
			return BatchResult{}, err
		}
		expected := int64(2)
		if connection.FromCardID == connection.ToCardID {
			expected = 1
		}
		if endpointCount < expected {
			log.Printf("Skipping connection %s: endpoint card missing", connection.ID)
			result.fail(connection.ID, "endpoint card not found")
			continue
		}

		connection.BookID = bookID
		if connection.ID == "" {
			connection.ID = models.NewID()
		}
		if err := tx.Create(&connection).Error; err != nil {
			result.fail(connection.ID, err.Error())
			continue
		}
		result.succeed(connection.ID)
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return BatchResult{}, err
	}

	return result, nil
}

// NewConnectionService creates a new instance of ConnectionService
func NewConnectionService() ConnectionServiceInterface {
	return &ConnectionService{}
}

var ConnectionServiceInstance ConnectionServiceInterface
