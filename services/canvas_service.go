package services

import (
	"log"
	"sync"
	"time"

	"marginalia-reader/marginalia/config"
	"marginalia-reader/marginalia/database"
	"marginalia-reader/marginalia/models"
)

// CanvasNode is one annotation's card as the canvas sees it. Nodes are keyed
// by card id everywhere; the annotation id rides along as payload.
type CanvasNode struct {
	CardID       string                 `json:"card_id"`
	AnnotationID string                 `json:"annotation_id"`
	Position     models.CardPosition    `json:"position"`
	Width        float64                `json:"width"`
	Height       float64                `json:"height"`
	Title        string                 `json:"title,omitempty"`
	Text         string                 `json:"text,omitempty"`
	Color        models.AnnotationColor `json:"color"`
}

type CanvasServiceInterface interface {
	OpenSession(db *database.Database, bookID string) (*CanvasSession, error)
}

// CanvasService opens canvas sessions, one per book the reader has on screen.
type CanvasService struct {
	cards       CardServiceInterface
	connections ConnectionServiceInterface

	cardDebounce time.Duration
	edgeDebounce time.Duration
	maxWait      time.Duration
}

func NewCanvasService(cfg config.Config, cards CardServiceInterface, connections ConnectionServiceInterface) CanvasServiceInterface {
	return &CanvasService{
		cards:        cards,
		connections:  connections,
		cardDebounce: cfg.CardSaveDebounce,
		edgeDebounce: cfg.ConnectionSaveDebounce,
		maxWait:      cfg.CanvasSaveMaxWait,
	}
}

var CanvasServiceInstance CanvasServiceInterface

// OpenSession loads the book's canvas graph and returns a live session.
// Annotations that have no card yet get one materialized at the staggered
// default layout, so every node the session hands out is backed by a stored
// card.
func (s *CanvasService) OpenSession(db *database.Database, bookID string) (*CanvasSession, error) {
	if bookID == "" {
		return nil, ErrInvalidInput
	}

	session := &CanvasSession{
		db:           db,
		bookID:       bookID,
		cards:        s.cards,
		connections:  s.connections,
		nodes:        make(map[string]*CanvasNode),
		byAnnotation: make(map[string]string),
		edges:        make(map[string]models.NoteConnection),
		dirtyCards:   make(map[string]bool),
	}
	session.cardWriter = newDebouncedWriter(s.cardDebounce, s.maxWait, session.flushCards)
	session.edgeWriter = newDebouncedWriter(s.edgeDebounce, s.maxWait, session.flushEdges)

	if err := session.loadGraph(); err != nil {
		session.cardWriter.Stop()
		session.edgeWriter.Stop()
		return nil, err
	}
	return session, nil
}

// CanvasSession holds the in-memory canvas graph for one open book and
// reconciles it against the store. Gesture methods apply optimistically and
// schedule debounced writes; one writer per collection keeps per-collection
// commit order equal to gesture order.
type CanvasSession struct {
	db          *database.Database
	bookID      string
	cards       CardServiceInterface
	connections ConnectionServiceInterface

	mu           sync.Mutex
	nodes        map[string]*CanvasNode
	byAnnotation map[string]string
	edges        map[string]models.NoteConnection
	dirtyCards   map[string]bool
	edgesDirty   bool
	edgesLoaded  bool
	closed       bool

	cardWriter *debouncedWriter
	edgeWriter *debouncedWriter
}

func (c *CanvasSession) BookID() string {
	return c.bookID
}

func (c *CanvasSession) loadGraph() error {
	annotations := []models.Annotation{}
	if err := c.db.DB.Where("book_id = ?", c.bookID).Order("created_at ASC").Find(&annotations).Error; err != nil {
		return err
	}

	annotationIDs := make([]string, 0, len(annotations))
	for _, annotation := range annotations {
		annotationIDs = append(annotationIDs, annotation.ID)
	}
	cards, err := c.cards.GetCardsByAnnotationIds(c.db, annotationIDs)
	if err != nil {
		return err
	}
	cardsByAnnotation := make(map[string]models.Card, len(cards))
	for _, card := range cards {
		cardsByAnnotation[card.AnnotationID] = card
	}

	// Annotations without a card get one at the staggered default, indexed
	// by their display position so a fresh canvas fans out instead of
	// stacking at the origin.
	missing := []models.Card{}
	for i, annotation := range annotations {
		if _, ok := cardsByAnnotation[annotation.ID]; ok {
			continue
		}
		missing = append(missing, models.Card{
			ID:           models.NewID(),
			AnnotationID: annotation.ID,
			Position:     models.StaggeredPosition(i),
			Width:        models.DefaultCardWidth,
			Height:       models.DefaultCardHeight,
		})
	}
	if len(missing) > 0 {
		if _, err := c.cards.BatchUpsertCards(c.db, missing); err != nil {
			return err
		}
		created, err := c.cards.GetCardsByAnnotationIds(c.db, annotationIDs)
		if err != nil {
			return err
		}
		cardsByAnnotation = make(map[string]models.Card, len(created))
		for _, card := range created {
			cardsByAnnotation[card.AnnotationID] = card
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, annotation := range annotations {
		card, ok := cardsByAnnotation[annotation.ID]
		if !ok {
			continue
		}
		c.nodes[card.ID] = &CanvasNode{
			CardID:       card.ID,
			AnnotationID: annotation.ID,
			Position:     card.Position,
			Width:        card.Width,
			Height:       card.Height,
			Title:        annotation.Title,
			Text:         annotation.Text,
			Color:        annotation.Color,
		}
		c.byAnnotation[annotation.ID] = card.ID
	}

	connections, err := c.connections.GetConnectionsByBookId(c.db, c.bookID)
	if err != nil {
		return err
	}
	for _, connection := range connections {
		if c.nodes[connection.FromCardID] == nil || c.nodes[connection.ToCardID] == nil {
			continue
		}
		c.edges[connection.ID] = connection
	}
	c.edgesLoaded = true
	return nil
}

// Nodes returns a snapshot of the session's nodes.
func (c *CanvasSession) Nodes() []CanvasNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	nodes := make([]CanvasNode, 0, len(c.nodes))
	for _, node := range c.nodes {
		nodes = append(nodes, *node)
	}
	return nodes
}

// Edges returns a snapshot of the session's edges.
func (c *CanvasSession) Edges() []models.NoteConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	edges := make([]models.NoteConnection, 0, len(c.edges))
	for _, edge := range c.edges {
		edges = append(edges, edge)
	}
	return edges
}

// MoveNode updates a node's position in memory and schedules a card write.
func (c *CanvasSession) MoveNode(cardID string, x, y float64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	node, ok := c.nodes[cardID]
	if !ok {
		c.mu.Unlock()
		return ErrCardNotFound
	}
	node.Position = models.CardPosition{X: x, Y: y}
	c.dirtyCards[cardID] = true
	c.mu.Unlock()

	c.cardWriter.Trigger()
	return nil
}

// ResizeNode updates a node's size in memory and schedules a card write.
func (c *CanvasSession) ResizeNode(cardID string, width, height float64) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidInput
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	node, ok := c.nodes[cardID]
	if !ok {
		c.mu.Unlock()
		return ErrCardNotFound
	}
	node.Width = width
	node.Height = height
	c.dirtyCards[cardID] = true
	c.mu.Unlock()

	c.cardWriter.Trigger()
	return nil
}

// ConnectNodes draws an edge between two live nodes. A repeated gesture on
// the same ordered pair returns the existing edge instead of stacking a
// duplicate. The edge is persisted immediately so it owns a stable id.
func (c *CanvasSession) ConnectNodes(fromCardID, toCardID string, direction models.ConnectionDirection) (models.NoteConnection, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.NoteConnection{}, ErrSessionClosed
	}
	if c.nodes[fromCardID] == nil || c.nodes[toCardID] == nil {
		c.mu.Unlock()
		return models.NoteConnection{}, ErrCardNotFound
	}
	for _, edge := range c.edges {
		if edge.FromCardID == fromCardID && edge.ToCardID == toCardID {
			c.mu.Unlock()
			return edge, nil
		}
	}
	c.mu.Unlock()

	connection, err := c.connections.CreateConnection(c.db, models.NoteConnection{
		BookID:     c.bookID,
		FromCardID: fromCardID,
		ToCardID:   toCardID,
		Direction:  direction,
	})
	if err != nil {
		return models.NoteConnection{}, err
	}

	c.mu.Lock()
	c.edges[connection.ID] = connection
	c.mu.Unlock()
	return connection, nil
}

// DisconnectEdge removes an edge in memory and schedules an edge write.
func (c *CanvasSession) DisconnectEdge(edgeID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if _, ok := c.edges[edgeID]; !ok {
		c.mu.Unlock()
		return ErrConnectionNotFound
	}
	delete(c.edges, edgeID)
	c.edgesDirty = true
	c.mu.Unlock()

	c.edgeWriter.Trigger()
	return nil
}

// UpdateEdge patches an edge's direction or description in memory and
// schedules an edge write.
func (c *CanvasSession) UpdateEdge(edgeID string, direction models.ConnectionDirection, description *string) error {
	if direction != "" && !models.ValidDirection(direction) {
		return ErrInvalidInput
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	edge, ok := c.edges[edgeID]
	if !ok {
		c.mu.Unlock()
		return ErrConnectionNotFound
	}
	if direction != "" {
		edge.Direction = direction
	}
	if description != nil {
		edge.Description = *description
	}
	c.edges[edgeID] = edge
	c.edgesDirty = true
	c.mu.Unlock()

	c.edgeWriter.Trigger()
	return nil
}

// ReconcileAnnotations aligns the session with the reader's current
// annotation list: new annotations gain a node with a lazily created card,
// vanished ones lose their node and any edge touching it. The store-side
// delete of vanished annotations is the repository cascade's job; here the
// graph only stops showing them.
func (c *CanvasSession) ReconcileAnnotations(current []models.Annotation) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}

	currentIDs := make(map[string]models.Annotation, len(current))
	for _, annotation := range current {
		currentIDs[annotation.ID] = annotation
	}

	added := []models.Annotation{}
	for _, annotation := range current {
		if _, ok := c.byAnnotation[annotation.ID]; !ok {
			added = append(added, annotation)
		}
	}

	removedCards := map[string]bool{}
	for annotationID, cardID := range c.byAnnotation {
		if _, ok := currentIDs[annotationID]; ok {
			continue
		}
		removedCards[cardID] = true
		delete(c.nodes, cardID)
		delete(c.byAnnotation, annotationID)
		delete(c.dirtyCards, cardID)
	}
	for edgeID, edge := range c.edges {
		if removedCards[edge.FromCardID] || removedCards[edge.ToCardID] {
			delete(c.edges, edgeID)
		}
	}
	index := len(c.nodes)
	c.mu.Unlock()

	if len(added) == 0 {
		return nil
	}

	newCards := make([]models.Card, 0, len(added))
	for i, annotation := range added {
		newCards = append(newCards, models.Card{
			ID:           models.NewID(),
			AnnotationID: annotation.ID,
			Position:     models.StaggeredPosition(index + i),
			Width:        models.DefaultCardWidth,
			Height:       models.DefaultCardHeight,
		})
	}
	if _, err := c.cards.BatchUpsertCards(c.db, newCards); err != nil {
		return err
	}
	addedIDs := make([]string, 0, len(added))
	for _, annotation := range added {
		addedIDs = append(addedIDs, annotation.ID)
	}
	stored, err := c.cards.GetCardsByAnnotationIds(c.db, addedIDs)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, card := range stored {
		annotation := currentIDs[card.AnnotationID]
		c.nodes[card.ID] = &CanvasNode{
			CardID:       card.ID,
			AnnotationID: annotation.ID,
			Position:     card.Position,
			Width:        card.Width,
			Height:       card.Height,
			Title:        annotation.Title,
			Text:         annotation.Text,
			Color:        annotation.Color,
		}
		c.byAnnotation[annotation.ID] = card.ID
	}
	return nil
}

func (c *CanvasSession) flushCards() {
	c.mu.Lock()
	if len(c.dirtyCards) == 0 {
		c.mu.Unlock()
		return
	}
	batch := make([]models.Card, 0, len(c.dirtyCards))
	for cardID := range c.dirtyCards {
		node, ok := c.nodes[cardID]
		if !ok {
			continue
		}
		batch = append(batch, models.Card{
			ID:           node.CardID,
			AnnotationID: node.AnnotationID,
			Position:     node.Position,
			Width:        node.Width,
			Height:       node.Height,
		})
	}
	c.dirtyCards = make(map[string]bool)
	c.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	result, err := c.cards.BatchUpsertCards(c.db, batch)
	if err != nil {
		log.Printf("Canvas card flush failed for book %s: %v", c.bookID, err)
		return
	}
	for _, failure := range result.Failed {
		log.Printf("Canvas card flush skipped %s: %s", failure.ID, failure.Reason)
	}
}

func (c *CanvasSession) flushEdges() {
	c.mu.Lock()
	// Never replace the stored edge set before the load has populated it:
	// an early flush would wipe every connection of the book.
	if !c.edgesLoaded || !c.edgesDirty {
		c.mu.Unlock()
		return
	}
	edges := make([]models.NoteConnection, 0, len(c.edges))
	for _, edge := range c.edges {
		edges = append(edges, edge)
	}
	c.edgesDirty = false
	c.mu.Unlock()

	result, err := c.connections.ReplaceForBook(c.db, c.bookID, edges)
	if err != nil {
		log.Printf("Canvas edge flush failed for book %s: %v", c.bookID, err)
		return
	}
	for _, failure := range result.Failed {
		log.Printf("Canvas edge flush skipped %s: %s", failure.ID, failure.Reason)
	}
}

// Flush forces both pending writes through immediately.
func (c *CanvasSession) Flush() {
	c.cardWriter.Flush()
	c.edgeWriter.Flush()
}

// Close ends the session: gestures stop being accepted, pending timers are
// cancelled and the outstanding state is written one last time. A timer that
// already fired concurrently finds nothing dirty and exits.
func (c *CanvasSession) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cardWriter.Stop()
	c.edgeWriter.Stop()
	c.flushCards()
	c.flushEdges()
}
