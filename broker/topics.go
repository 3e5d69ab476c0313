package broker

const (
	BookEventsSubject       = "marginalia.events.book"
	AnnotationEventsSubject = "marginalia.events.annotation"
	CardEventsSubject       = "marginalia.events.card"
	ConnectionEventsSubject = "marginalia.events.connection"
)

// SubjectForEntity maps an entity name to its event subject. Unknown
// entities fall back to the book subject.
func SubjectForEntity(entity string) string {
	switch entity {
	case "book":
		return BookEventsSubject
	case "annotation":
		return AnnotationEventsSubject
	case "card":
		return CardEventsSubject
	case "connection":
		return ConnectionEventsSubject
	}
	return BookEventsSubject
}
