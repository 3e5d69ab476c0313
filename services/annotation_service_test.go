package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marginalia-reader/marginalia/models"
	"marginalia-reader/marginalia/testutils"
)

func TestCreateAnnotation_Defaults(t *testing.T) {
	db := testutils.SetupTestDB(t)
	annotationService := &AnnotationService{}

	book := createTestBook(t, db, "/library/ann.epub")
	annotation, err := annotationService.CreateAnnotation(db, book.ID, map[string]interface{}{
		"cfi_range": "epubcfi(/6/4!/4/2)",
		"text":      "a memorable line",
	})
	require.NoError(t, err)

	assert.Equal(t, book.ID, annotation.BookID)
	assert.Equal(t, models.DefaultColorRGBA, annotation.Color.RGBA)
	assert.Equal(t, models.DefaultColorCategory, annotation.Color.Category)
	assert.Empty(t, annotation.Note)
}

func TestCreateAnnotation_CustomColor(t *testing.T) {
	db := testutils.SetupTestDB(t)
	annotationService := &AnnotationService{}

	book := createTestBook(t, db, "/library/color.epub")
	annotation, err := annotationService.CreateAnnotation(db, book.ID, map[string]interface{}{
		"cfi_range": "epubcfi(/6/4!/4/4)",
		"text":      "green passage",
		"color": map[string]interface{}{
			"rgba":     "rgba(0, 255, 0, 0.4)",
			"category": "green",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "rgba(0, 255, 0, 0.4)", annotation.Color.RGBA)
	assert.Equal(t, "green", annotation.Color.Category)
}

func TestCreateAnnotation_Invalid(t *testing.T) {
	db := testutils.SetupTestDB(t)
	annotationService := &AnnotationService{}

	book := createTestBook(t, db, "/library/invalid.epub")

	_, err := annotationService.CreateAnnotation(db, book.ID, map[string]interface{}{"text": "no range"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = annotationService.CreateAnnotation(db, "missing-book", map[string]interface{}{
		"cfi_range": "cfi", "text": "x",
	})
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestGetAnnotationsByBookId_DisplayOrder(t *testing.T) {
	db := testutils.SetupTestDB(t)
	annotationService := &AnnotationService{}

	book := createTestBook(t, db, "/library/order.epub")
	first := createTestAnnotation(t, db, book.ID)
	require.NoError(t, db.DB.Exec("UPDATE annotations SET created_at = datetime('now', '-1 hour') WHERE id = ?", first.ID).Error)
	second := createTestAnnotation(t, db, book.ID)

	annotations, err := annotationService.GetAnnotationsByBookId(db, book.ID)
	require.NoError(t, err)
	require.Len(t, annotations, 2)
	assert.Equal(t, first.ID, annotations[0].ID)
	assert.Equal(t, second.ID, annotations[1].ID)
}

func TestUpdateAnnotation(t *testing.T) {
	db := testutils.SetupTestDB(t)
	annotationService := &AnnotationService{}

	book := createTestBook(t, db, "/library/update.epub")
	annotation := createTestAnnotation(t, db, book.ID)

	_, err := annotationService.UpdateAnnotation(db, annotation.ID, map[string]interface{}{
		"note":  "my thought",
		"title": "key idea",
		"color": map[string]interface{}{"rgba": "rgba(0, 0, 255, 0.4)", "category": "blue"},
	})
	require.NoError(t, err)

	stored, err := annotationService.GetAnnotationsByBookId(db, book.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "my thought", stored[0].Note)
	assert.Equal(t, "key idea", stored[0].Title)
	assert.Equal(t, "blue", stored[0].Color.Category)
	// The selection snapshot is immutable.
	assert.Equal(t, annotation.CfiRange, stored[0].CfiRange)
	assert.Equal(t, annotation.Text, stored[0].Text)
}

func TestUpdateAnnotation_Invalid(t *testing.T) {
	db := testutils.SetupTestDB(t)
	annotationService := &AnnotationService{}

	book := createTestBook(t, db, "/library/noop.epub")
	annotation := createTestAnnotation(t, db, book.ID)

	// cfi_range is not an updatable field, so this patch carries nothing.
	_, err := annotationService.UpdateAnnotation(db, annotation.ID, map[string]interface{}{"cfi_range": "other"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = annotationService.UpdateAnnotation(db, "missing", map[string]interface{}{"note": "x"})
	assert.ErrorIs(t, err, ErrAnnotationNotFound)
}

func TestDeleteAnnotation_CascadesToCardAndConnections(t *testing.T) {
	db := testutils.SetupTestDB(t)
	annotationService := &AnnotationService{}
	cardService := &CardService{}
	connectionService := &ConnectionService{}

	book := createTestBook(t, db, "/library/delete.epub")
	ann1 := createTestAnnotation(t, db, book.ID)
	ann2 := createTestAnnotation(t, db, book.ID)
	card1, err := cardService.CreateCard(db, ann1.ID, map[string]interface{}{})
	require.NoError(t, err)
	card2, err := cardService.CreateCard(db, ann2.ID, map[string]interface{}{})
	require.NoError(t, err)
	_, err = connectionService.CreateConnection(db, models.NoteConnection{
		BookID: book.ID, FromCardID: card1.ID, ToCardID: card2.ID,
	})
	require.NoError(t, err)

	require.NoError(t, annotationService.DeleteAnnotation(db, ann1.ID))

	cards, err := cardService.GetCardsByAnnotationIds(db, []string{ann1.ID, ann2.ID})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, ann2.ID, cards[0].AnnotationID)

	connections, err := connectionService.GetConnectionsByBookId(db, book.ID)
	require.NoError(t, err)
	assert.Empty(t, connections)
}
