package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"marginalia-reader/marginalia/database"
	"marginalia-reader/marginalia/services"
)

func RegisterAnnotationRoutes(group *gin.RouterGroup, db *database.Database, annotationService services.AnnotationServiceInterface) {
	group.GET("/books/:id/annotations", func(c *gin.Context) { GetAnnotationsByBook(c, db, annotationService) })
	group.POST("/books/:id/annotations", func(c *gin.Context) { CreateAnnotation(c, db, annotationService) })
	group.PUT("/annotations/:id", func(c *gin.Context) { UpdateAnnotation(c, db, annotationService) })
	group.DELETE("/annotations/:id", func(c *gin.Context) { DeleteAnnotation(c, db, annotationService) })
}

func GetAnnotationsByBook(c *gin.Context, db *database.Database, annotationService services.AnnotationServiceInterface) {
	bookID := c.Param("id")
	annotations, err := annotationService.GetAnnotationsByBookId(db, bookID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, annotations)
}

func CreateAnnotation(c *gin.Context, db *database.Database, annotationService services.AnnotationServiceInterface) {
	bookID := c.Param("id")
	var annotationData map[string]interface{}
	if err := c.ShouldBindJSON(&annotationData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	createdAnnotation, err := annotationService.CreateAnnotation(db, bookID, annotationData)
	if err != nil {
		if errors.Is(err, services.ErrBookNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
			return
		}
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cfi_range and text are required"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, createdAnnotation)
}

func UpdateAnnotation(c *gin.Context, db *database.Database, annotationService services.AnnotationServiceInterface) {
	id := c.Param("id")
	var annotationData map[string]interface{}
	if err := c.ShouldBindJSON(&annotationData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updatedAnnotation, err := annotationService.UpdateAnnotation(db, id, annotationData)
	if err != nil {
		if errors.Is(err, services.ErrAnnotationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Annotation not found"})
			return
		}
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No updatable fields supplied"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updatedAnnotation)
}

func DeleteAnnotation(c *gin.Context, db *database.Database, annotationService services.AnnotationServiceInterface) {
	id := c.Param("id")
	if err := annotationService.DeleteAnnotation(db, id); err != nil {
		if errors.Is(err, services.ErrAnnotationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Annotation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusNoContent, gin.H{})
}
