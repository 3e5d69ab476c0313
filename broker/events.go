package broker

type EventType string

const (
	// Standardized event types in format: <resource>.<action>
	BookCreated EventType = "book.created"
	BookUpdated EventType = "book.updated"
	BookDeleted EventType = "book.deleted"

	AnnotationCreated EventType = "annotation.created"
	AnnotationUpdated EventType = "annotation.updated"
	AnnotationDeleted EventType = "annotation.deleted"

	CardCreated EventType = "card.created"
	CardUpdated EventType = "card.updated"
	CardDeleted EventType = "card.deleted"

	ConnectionCreated EventType = "connection.created"
	ConnectionUpdated EventType = "connection.updated"
	ConnectionDeleted EventType = "connection.deleted"
)
