package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"marginalia-reader/marginalia/database"
	"marginalia-reader/marginalia/models"
	"marginalia-reader/marginalia/services"
)

func RegisterConnectionRoutes(group *gin.RouterGroup, db *database.Database, connectionService services.ConnectionServiceInterface) {
	group.GET("/books/:id/connections", func(c *gin.Context) { GetConnectionsByBook(c, db, connectionService) })
	group.POST("/books/:id/connections", func(c *gin.Context) { CreateConnection(c, db, connectionService) })
	group.PUT("/books/:id/connections", func(c *gin.Context) { ReplaceConnections(c, db, connectionService) })
	group.PUT("/connections/:id", func(c *gin.Context) { UpdateConnection(c, db, connectionService) })
	group.DELETE("/connections/:id", func(c *gin.Context) { DeleteConnection(c, db, connectionService) })
}

func GetConnectionsByBook(c *gin.Context, db *database.Database, connectionService services.ConnectionServiceInterface) {
	bookID := c.Param("id")
	connections, err := connectionService.GetConnectionsByBookId(db, bookID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, connections)
}

func CreateConnection(c *gin.Context, db *database.Database, connectionService services.ConnectionServiceInterface) {
	bookID := c.Param("id")
	var draft models.NoteConnection
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	draft.BookID = bookID

	connection, err := connectionService.CreateConnection(db, draft)
	if err != nil {
		if errors.Is(err, services.ErrCardNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint card not found"})
			return
		}
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from_card_id and to_card_id are required"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, connection)
}

// ReplaceConnections swaps the book's entire edge set for the posted list.
func ReplaceConnections(c *gin.Context, db *database.Database, connectionService services.ConnectionServiceInterface) {
	bookID := c.Param("id")
	var connections []models.NoteConnection
	if err := c.ShouldBindJSON(&connections); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := connectionService.ReplaceForBook(db, bookID, connections)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "book id is required"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func UpdateConnection(c *gin.Context, db *database.Database, connectionService services.ConnectionServiceInterface) {
	id := c.Param("id")
	var connectionData map[string]interface{}
	if err := c.ShouldBindJSON(&connectionData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updatedConnection, err := connectionService.UpdateConnection(db, id, connectionData)
	if err != nil {
		if errors.Is(err, services.ErrConnectionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Connection not found"})
			return
		}
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No updatable fields supplied"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updatedConnection)
}

func DeleteConnection(c *gin.Context, db *database.Database, connectionService services.ConnectionServiceInterface) {
	id := c.Param("id")
	if err := connectionService.DeleteConnection(db, id); err != nil {
		if errors.Is(err, services.ErrConnectionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Connection not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusNoContent, gin.H{})
}
