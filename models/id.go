package models

import (
	"encoding/base64"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID generates a storage identifier of the form <unix-millis>_<suffix>.
// Ids sort by creation time, which the annotation display order relies on.
func NewID() string {
	return fmt.Sprintf("%d_%s", time.Now().UnixMilli(), randomSuffix(9))
}

// NewBookID appends the book's file path to the generated id so two books
// imported in the same millisecond can never collide. The path is encoded
// with the url-safe base64 alphabet: book ids travel as URL path segments,
// where a raw "/" would split the segment.
func NewBookID(filePath string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(filePath))
	return fmt.Sprintf("%d_%s_%s", time.Now().UnixMilli(), randomSuffix(9), encoded)
}

// BookFilePath recovers the file path embedded in a book id.
func BookFilePath(bookID string) (string, bool) {
	parts := strings.SplitN(bookID, "_", 3)
	if len(parts) != 3 {
		return "", false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return string(b)
}
