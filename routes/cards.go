package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"marginalia-reader/marginalia/database"
	"marginalia-reader/marginalia/models"
	"marginalia-reader/marginalia/services"
)

func RegisterCardRoutes(group *gin.RouterGroup, db *database.Database, cardService services.CardServiceInterface) {
	group.POST("/cards/query", func(c *gin.Context) { GetCardsByAnnotations(c, db, cardService) })
	group.POST("/annotations/:id/cards", func(c *gin.Context) { CreateCard(c, db, cardService) })
	group.PUT("/cards/:id", func(c *gin.Context) { UpdateCard(c, db, cardService) })
	group.PUT("/cards", func(c *gin.Context) { BatchUpsertCards(c, db, cardService) })
	group.DELETE("/cards", func(c *gin.Context) { DeleteCards(c, db, cardService) })
}

// GetCardsByAnnotations is a bulk lookup: the canvas asks for the cards of
// every annotation it is about to draw in one round trip.
func GetCardsByAnnotations(c *gin.Context, db *database.Database, cardService services.CardServiceInterface) {
	var body struct {
		AnnotationIDs []string `json:"annotation_ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cards, err := cardService.GetCardsByAnnotationIds(db, body.AnnotationIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cards)
}

func CreateCard(c *gin.Context, db *database.Database, cardService services.CardServiceInterface) {
	annotationID := c.Param("id")
	var cardData map[string]interface{}
	if err := c.ShouldBindJSON(&cardData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	createdCard, err := cardService.CreateCard(db, annotationID, cardData)
	if err != nil {
		if errors.Is(err, services.ErrAnnotationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Annotation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, createdCard)
}

func UpdateCard(c *gin.Context, db *database.Database, cardService services.CardServiceInterface) {
	id := c.Param("id")
	var cardData map[string]interface{}
	if err := c.ShouldBindJSON(&cardData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updatedCard, err := cardService.UpdateCard(db, id, cardData)
	if err != nil {
		if errors.Is(err, services.ErrCardNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Card not found"})
			return
		}
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No updatable fields supplied"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updatedCard)
}

// BatchUpsertCards saves a whole canvas worth of card geometry at once.
// Per-item failures come back in the result body with a 200, not an error
// status; only a transaction-level failure is a 500.
func BatchUpsertCards(c *gin.Context, db *database.Database, cardService services.CardServiceInterface) {
	var cards []models.Card
	if err := c.ShouldBindJSON(&cards); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := cardService.BatchUpsertCards(db, cards)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func DeleteCards(c *gin.Context, db *database.Database, cardService services.CardServiceInterface) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := cardService.DeleteCards(db, body.IDs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusNoContent, gin.H{})
}
