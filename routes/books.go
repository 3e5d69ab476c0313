package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"marginalia-reader/marginalia/database"
	"marginalia-reader/marginalia/services"
)

func RegisterBookRoutes(group *gin.RouterGroup, db *database.Database, bookService services.BookServiceInterface) {
	group.GET("/books", func(c *gin.Context) { GetBooks(c, db, bookService) })
	group.POST("/books", func(c *gin.Context) { CreateBook(c, db, bookService) })
	group.GET("/books/:id", func(c *gin.Context) { GetBookById(c, db, bookService) })
	group.PUT("/books/:id", func(c *gin.Context) { UpdateBook(c, db, bookService) })
	group.DELETE("/books/:id", func(c *gin.Context) { DeleteBook(c, db, bookService) })
	group.PUT("/books/:id/progress", func(c *gin.Context) { UpdateReadingProgress(c, db, bookService) })
	group.GET("/stats", func(c *gin.Context) { GetDatabaseStats(c, db, bookService) })
}

func GetBooks(c *gin.Context, db *database.Database, bookService services.BookServiceInterface) {
	books, err := bookService.GetAllBooks(db)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, books)
}

func CreateBook(c *gin.Context, db *database.Database, bookService services.BookServiceInterface) {
	var bookData map[string]interface{}
	if err := c.ShouldBindJSON(&bookData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	createdBook, err := bookService.CreateBook(db, bookData)
	if err != nil {
		if errors.Is(err, services.ErrBookExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Book already exists for this file"})
			return
		}
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title and file_path are required"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, createdBook)
}

func GetBookById(c *gin.Context, db *database.Database, bookService services.BookServiceInterface) {
	id := c.Param("id")
	book, err := bookService.GetBookById(db, id)
	if err != nil {
		if errors.Is(err, services.ErrBookNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, book)
}

func UpdateBook(c *gin.Context, db *database.Database, bookService services.BookServiceInterface) {
	id := c.Param("id")
	var bookData map[string]interface{}
	if err := c.ShouldBindJSON(&bookData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updatedBook, err := bookService.UpdateBook(db, id, bookData)
	if err != nil {
		if errors.Is(err, services.ErrBookNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
			return
		}
		if errors.Is(err, services.ErrBookExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Another book already uses this file"})
			return
		}
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No updatable fields supplied"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updatedBook)
}

func DeleteBook(c *gin.Context, db *database.Database, bookService services.BookServiceInterface) {
	id := c.Param("id")
	if err := bookService.DeleteBook(db, id); err != nil {
		if errors.Is(err, services.ErrBookNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusNoContent, gin.H{})
}

// UpdateReadingProgress stores the reader's position token. Called on every
// page turn, so it takes the fast single-statement path in the service.
func UpdateReadingProgress(c *gin.Context, db *database.Database, bookService services.BookServiceInterface) {
	id := c.Param("id")
	var body struct {
		Progress string `json:"progress"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := bookService.UpdateReadingProgress(db, id, body.Progress); err != nil {
		if errors.Is(err, services.ErrBookNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "progress": body.Progress})
}

func GetDatabaseStats(c *gin.Context, db *database.Database, bookService services.BookServiceInterface) {
	stats, err := bookService.GetDatabaseStats(db)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
