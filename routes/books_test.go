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

type MockBookService struct{}

func (m *MockBookService) GetAllBooks(db *database.Database) ([]models.Book, error) {
	return []models.Book{
		{ID: models.NewBookID("/library/walden.epub"), Title: "Walden", FilePath: "/library/walden.epub"},
		{ID: models.NewBookID("/library/emerson.epub"), Title: "Essays", FilePath: "/library/emerson.epub"},
	}, nil
}

func (m *MockBookService) GetBookById(db *database.Database, id string) (models.Book, error) {
	if id == "missing" {
		return models.Book{}, services.ErrBookNotFound
	}
	return models.Book{ID: id, Title: "Walden", FilePath: "/library/walden.epub"}, nil
}

func (m *MockBookService) CreateBook(db *database.Database, bookData map[string]interface{}) (models.Book, error) {
	title, _ := bookData["title"].(string)
	filePath, _ := bookData["file_path"].(string)
	if title == "" || filePath == "" {
		return models.Book{}, services.ErrInvalidInput
	}
	if filePath == "/library/duplicate.epub" {
		return models.Book{}, services.ErrBookExists
	}
	return models.Book{ID: "new", Title: title, FilePath: filePath}, nil
}

func (m *MockBookService) UpdateBook(db *database.Database, id string, updatedData map[string]interface{}) (models.Book, error) {
	if id != "known" {
		return models.Book{}, services.ErrBookNotFound
	}
	title, _ := updatedData["title"].(string)
	return models.Book{ID: id, Title: title}, nil
}

func (m *MockBookService) DeleteBook(db *database.Database, id string) error {
	if id != "known" {
		return services.ErrBookNotFound
	}
	return nil
}

func (m *MockBookService) UpdateReadingProgress(db *database.Database, id string, progress string) error {
	if id != "known" {
		return services.ErrBookNotFound
	}
	return nil
}

func (m *MockBookService) GetDatabaseStats(db *database.Database) (map[string]int64, error) {
	return map[string]int64{"books": 2, "annotations": 7}, nil
}

func setupBookRouter() *gin.Engine {
	router := gin.Default()
	apiGroup := router.Group("/api/v1")
	RegisterBookRoutes(apiGroup, &database.Database{}, &MockBookService{})
	return router
}

func TestGetBooks(t *testing.T) {
	router := setupBookRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/books", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Walden")
	assert.Contains(t, w.Body.String(), "Essays")
}

func TestCreateBook(t *testing.T) {
	router := setupBookRouter()

	t.Run("Invalid JSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/books", bytes.NewBuffer([]byte("not json")))
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Missing File Path", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/books", bytes.NewBuffer([]byte(`{"title":"No Path"}`)))
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Duplicate File", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/books", bytes.NewBuffer([]byte(`{"title":"Again","file_path":"/library/duplicate.epub"}`)))
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Created", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/books", bytes.NewBuffer([]byte(`{"title":"Walden","file_path":"/library/walden.epub"}`)))
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusCreated, w.Code)
	})
}

func TestGetBookById(t *testing.T) {
	router := setupBookRouter()

	t.Run("Not Found", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/books/missing", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Found", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/books/known", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Walden")
	})

	// A generated id embeds the file path; the route must still match it as
	// a single path segment.
	t.Run("Generated Id", func(t *testing.T) {
		id := models.NewBookID("/library/authors/thoreau/walden.epub")
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/books/"+id, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), id)
	})
}

func TestUpdateBook(t *testing.T) {
	router := setupBookRouter()

	t.Run("Not Found", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/books/missing", bytes.NewBuffer([]byte(`{"title":"Renamed"}`)))
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Updated", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/books/known", bytes.NewBuffer([]byte(`{"title":"Renamed"}`)))
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Renamed")
	})
}

func TestDeleteBook(t *testing.T) {
	router := setupBookRouter()

	t.Run("Not Found", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/api/v1/books/missing", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Deleted", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/api/v1/books/known", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestUpdateReadingProgress(t *testing.T) {
	router := setupBookRouter()

	t.Run("Not Found", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/books/missing/progress", bytes.NewBuffer([]byte(`{"progress":"cfi"}`)))
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Updated", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/books/known/progress", bytes.NewBuffer([]byte(`{"progress":"epubcfi(/6/14!/4/2)"}`)))
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestGetDatabaseStats(t *testing.T) {
	router := setupBookRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/stats", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"books":2`)
	assert.Contains(t, w.Body.String(), `"annotations":7`)
}
