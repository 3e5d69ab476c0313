package services

import (
	"errors"
	"strings"

	"marginalia-reader/marginalia/broker"
	"marginalia-reader/marginalia/database"
	"marginalia-reader/marginalia/models"

	"gorm.io/gorm"
)

type BookServiceInterface interface {
	GetAllBooks(db *database.Database) ([]models.Book, error)
	GetBookById(db *database.Database, id string) (models.Book, error)
	CreateBook(db *database.Database, bookData map[string]interface{}) (models.Book, error)
	UpdateBook(db *database.Database, id string, updatedData map[string]interface{}) (models.Book, error)
	DeleteBook(db *database.Database, id string) error
	UpdateReadingProgress(db *database.Database, id string, progress string) error
	GetDatabaseStats(db *database.Database) (map[string]int64, error)
}

type BookService struct{}

func (s *BookService) GetAllBooks(db *database.Database) ([]models.Book, error) {
	var books []models.Book
	if err := db.DB.Order("created_at DESC").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (s *BookService) GetBookById(db *database.Database, id string) (models.Book, error) {
	var book models.Book
	if err := db.DB.First(&book, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Book{}, ErrBookNotFound
		}
		return models.Book{}, err
	}
	return book, nil
}

func (s *BookService) CreateBook(db *database.Database, bookData map[string]interface{}) (models.Book, error) {
	title, ok := bookData["title"].(string)
	if !ok || title == "" {
		return models.Book{}, ErrInvalidInput
	}
	filePath, ok := bookData["file_path"].(string)
	if !ok || filePath == "" {
		return models.Book{}, ErrInvalidInput
	}

	tx := db.DB.Begin()
	if tx.Error != nil {
		return models.Book{}, tx.Error
	}

	// The id is generated here; a client-supplied id is never trusted.
	book := models.Book{
		ID:       models.NewBookID(filePath),
		Title:    title,
		FilePath: filePath,
	}
	if coverPath, ok := bookData["cover_path"].(string); ok {
		book.CoverPath = coverPath
	}
	if author, ok := bookData["author"].(string); ok {
		book.Author = author
	}
	if description, ok := bookData["description"].(string); ok {
		book.Description = description
	}
	if topic, ok := bookData["topic"].(string); ok {
		book.Topic = topic
	}
	if progress, ok := bookData["reading_progress"].(string); ok {
		book.ReadingProgress = progress
	}

	if err := tx.Create(&book).Error; err != nil {
		tx.Rollback()
		// The unique constraint on file_path rejects re-imports of the
		// same file.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return models.Book{}, ErrBookExists
		}
		return models.Book{}, err
	}

	event, err := models.NewEvent(
		string(broker.BookCreated),
		"book",
		"create",
		map[string]interface{}{
			"book_id":   book.ID,
			"title":     book.Title,
			"file_path": book.FilePath,
		},
	)
	if err != nil {
		tx.Rollback()
		return models.Book{}, err
	}
	if err := tx.Create(event).Error; err != nil {
		tx.Rollback()
		return models.Book{}, err
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return models.Book{}, err
	}

	return book, nil
}

// UpdateBook applies a sparse patch: only fields present in updatedData are
// written, absent fields keep their prior values.
func (s *BookService) UpdateBook(db *database.Database, id string, updatedData map[string]interface{}) (models.Book, error) {
	updates := make(map[string]interface{})
	for _, field := range []string{"title", "cover_path", "file_path", "author", "description", "topic", "reading_progress"} {
		if value, ok := updatedData[field]; ok {
			updates[field] = value
		}
	}
	if len(updates) == 0 {
		return models.Book{}, ErrInvalidInput
	}

	tx := db.DB.Begin()
	if tx.Error != nil {
		return models.Book{}, tx.Error
	}

	var book models.Book
	if err := tx.First(&book, "id = ?", id).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Book{}, ErrBookNotFound
		}
		return models.Book{}, err
	}

	if err := tx.Model(&book).Updates(updates).Error; err != nil {
		tx.Rollback()
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return models.Book{}, ErrBookExists
		}
		return models.Book{}, err
	}

	event, err := models.NewEvent(
		string(broker.BookUpdated),
		"book",
		"update",
		map[string]interface{}{
			"book_id": book.ID,
			"title":   book.Title,
		},
	)
	if err != nil {
		tx.Rollback()
		return models.Book{}, err
	}
	if err := tx.Create(event).Error; err != nil {
		tx.Rollback()
		return models.Book{}, err
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return models.Book{}, err
	}

	return book, nil
}

func (s *BookService) DeleteBook(db *database.Database, id string) error {
	tx := db.DB.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	var book models.Book
	if err := tx.First(&book, "id = ?", id).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBookNotFound
		}
		return err
	}

	// ON DELETE CASCADE removes the book's annotations, their cards and any
	// connection touching those cards.
	if err := tx.Delete(&book).Error; err != nil {
		tx.Rollback()
		return err
	}

	event, err := models.NewEvent(
		string(broker.BookDeleted),
		"book",
		"delete",
		map[string]interface{}{
			"book_id": book.ID,
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

// UpdateReadingProgress persists the reader's position token. This runs on
// every navigation event, so it is a single UPDATE with no read-before-write
// and no event row.
func (s *BookService) UpdateReadingProgress(db *database.Database, id string, progress string) error {
	result := db.DB.Exec(
		"UPDATE books SET reading_progress = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		progress, id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

func (s *BookService) GetDatabaseStats(db *database.Database) (map[string]int64, error) {
	stats := make(map[string]int64)

	var books int64
	if err := db.DB.Model(&models.Book{}).Count(&books).Error; err != nil {
		return nil, err
	}
	var annotations int64
	if err := db.DB.Model(&models.Annotation{}).Count(&annotations).Error; err != nil {
		return nil, err
	}

	stats["books"] = books
	stats["annotations"] = annotations
	return stats, nil
}

// NewBookService creates a new instance of BookService
func NewBookService() BookServiceInterface {
	return &BookService{}
}

var BookServiceInstance BookServiceInterface
