package routes

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"marginalia-reader/marginalia/database"
	"marginalia-reader/marginalia/models"
	"marginalia-reader/marginalia/services"
)

type MockCardService struct{}

func (m *MockCardService) GetCardsByAnnotationIds(db *database.Database, annotationIDs []string) ([]models.Card, error) {
	cards := []models.Card{}
	for _, annotationID := range annotationIDs {
		if annotationID == "ann1" {
			cards = append(cards, models.Card{ID: "card1", AnnotationID: "ann1", Width: 200, Height: 120})
		}
	}
	return cards, nil
}

func (m *MockCardService) CreateCard(db *database.Database, annotationID string, cardData map[string]interface{}) (models.Card, error) {
	if annotationID != "ann1" {
		return models.Card{}, services.ErrAnnotationNotFound
	}
	return models.Card{ID: "card-new", AnnotationID: annotationID, Width: 200, Height: 120}, nil
}

func (m *MockCardService) UpdateCard(db *database.Database, id string, updatedData map[string]interface{}) (models.Card, error) {
	if id != "card1" {
		return models.Card{}, services.ErrCardNotFound
	}
	return models.Card{ID: id, AnnotationID: "ann1"}, nil
}

func (m *MockCardService) BatchUpsertCards(db *database.Database, cards []models.Card) (services.BatchResult, error) {
	result := services.BatchResult{}
	for _, card := range cards {
		if card.AnnotationID == "deleted" {
			result.Failed = append(result.Failed, services.BatchFailure{ID: card.AnnotationID, Reason: "annotation not found"})
			continue
		}
		result.Succeeded = append(result.Succeeded, card.AnnotationID)
	}
	return result, nil
}

func (m *MockCardService) DeleteCardsByAnnotationId(db *database.Database, annotationID string) error {
	return nil
}

func (m *MockCardService) DeleteCards(db *database.Database, ids []string) error {
	return nil
}

func setupCardRouter() *gin.Engine {
	router := gin.Default()
	apiGroup := router.Group("/api/v1")
	RegisterCardRoutes(apiGroup, &database.Database{}, &MockCardService{})
	return router
}

func TestGetCardsByAnnotations(t *testing.T) {
	router := setupCardRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/cards/query", bytes.NewBuffer([]byte(`{"annotation_ids":["ann1","ann2"]}`)))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "card1")
}

func TestCreateCard(t *testing.T) {
	router := setupCardRouter()

	t.Run("Annotation Not Found", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/annotations/missing/cards", bytes.NewBuffer([]byte(`{}`)))
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Created", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/annotations/ann1/cards", bytes.NewBuffer([]byte(`{"position":{"x":10,"y":20}}`)))
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "card-new")
	})
}

func TestBatchUpsertCards(t *testing.T) {
	router := setupCardRouter()

	t.Run("Invalid JSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/cards", bytes.NewBuffer([]byte(`{"not":"a list"}`)))
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Mixed Result", func(t *testing.T) {
		body := `[
			{"annotation_id":"ann1","position":{"x":1,"y":2}},
			{"annotation_id":"deleted","position":{"x":3,"y":4}}
		]`
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/cards", bytes.NewBuffer([]byte(body)))
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"succeeded":["ann1"]`)
		assert.Contains(t, w.Body.String(), "annotation not found")
	})
}

func TestUpdateCard(t *testing.T) {
	router := setupCardRouter()

	t.Run("Not Found", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/cards/missing", bytes.NewBuffer([]byte(`{"width":300}`)))
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Updated", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/cards/card1", bytes.NewBuffer([]byte(`{"width":300}`)))
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestDeleteCards(t *testing.T) {
	router := setupCardRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/v1/cards", bytes.NewBuffer([]byte(`{"ids":["card1"]}`)))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
