package services

import "errors"

// Common errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrBookNotFound       = errors.New("book not found")
	ErrAnnotationNotFound = errors.New("annotation not found")
	ErrCardNotFound       = errors.New("card not found")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrBookExists         = errors.New("a book already exists for this file path")
	ErrInvalidInput       = errors.New("invalid input")
	ErrSessionClosed      = errors.New("canvas session closed")
	ErrInternal           = errors.New("internal error")
)
