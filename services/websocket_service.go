package services

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"marginalia-reader/marginalia/database"
	"marginalia-reader/marginalia/models"
)

// WebSocketServiceInterface defines the operations provided by the WebSocket service
type WebSocketServiceInterface interface {
	Start()
	Stop()
	BroadcastMessage(message []byte)
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
}

// Client represents a connected reader window
type Client struct {
	ID      string
	Hub     *WebSocketService
	Conn    *websocket.Conn
	Send    chan []byte
	BookID  string
	session *CanvasSession
}

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type    string          `json:"type"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// WebSocketService manages reader connections and their canvas sessions.
// Sessions are shared per book: two windows showing the same canvas drive
// the same session and see each other's gestures.
type WebSocketService struct {
	clients      map[string]*Client
	register     chan *Client
	unregister   chan *Client
	broadcast    chan []byte
	clientsMutex sync.RWMutex

	upgrader websocket.Upgrader
	db       *database.Database
	canvas   CanvasServiceInterface

	sessionsMutex sync.Mutex
	sessions      map[string]*CanvasSession
	sessionRefs   map[string]int

	isRunning bool
	stopChan  chan struct{}
}

// NewWebSocketService creates a new WebSocket service
func NewWebSocketService(db *database.Database, canvas CanvasServiceInterface) WebSocketServiceInterface {
	return &WebSocketService{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),

		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Local single-user app; the API is bound to loopback.
				return true
			},
		},
		db:     db,
		canvas: canvas,

		sessions:    make(map[string]*CanvasSession),
		sessionRefs: make(map[string]int),

		isRunning: false,
		stopChan:  make(chan struct{}),
	}
}

func (ws *WebSocketService) Start() {
	if ws.isRunning {
		return
	}
	ws.isRunning = true
	go ws.run()
}

// Stop gracefully shuts down the service, closing every open canvas session
// so pending card and edge writes land before exit.
func (ws *WebSocketService) Stop() {
	if !ws.isRunning {
		return
	}
	ws.isRunning = false
	close(ws.stopChan)

	ws.clientsMutex.Lock()
	for _, client := range ws.clients {
		if client != nil && client.Conn != nil {
			client.Conn.Close()
		}
	}
	ws.clientsMutex.Unlock()

	ws.sessionsMutex.Lock()
	for bookID, session := range ws.sessions {
		session.Close()
		delete(ws.sessions, bookID)
		delete(ws.sessionRefs, bookID)
	}
	ws.sessionsMutex.Unlock()

	log.Println("WebSocket service stopped")
}

// BroadcastMessage sends a message to all connected clients
func (ws *WebSocketService) BroadcastMessage(message []byte) {
	if !ws.isRunning {
		return
	}
	ws.broadcast <- message
}

func (ws *WebSocketService) run() {
	for {
		select {
		case <-ws.stopChan:
			return

		case client := <-ws.register:
			ws.clientsMutex.Lock()
			ws.clients[client.ID] = client
			ws.clientsMutex.Unlock()
			log.Printf("Client connected: %s", client.ID)

		case client := <-ws.unregister:
			ws.clientsMutex.Lock()
			if _, ok := ws.clients[client.ID]; ok {
				delete(ws.clients, client.ID)
				close(client.Send)
				log.Printf("Client disconnected: %s", client.ID)
			}
			ws.clientsMutex.Unlock()
			ws.releaseSession(client)

		case message := <-ws.broadcast:
			// Full lock: stalled clients get dropped from the map here.
			ws.clientsMutex.Lock()
			for id, client := range ws.clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(ws.clients, id)
				}
			}
			ws.clientsMutex.Unlock()
		}
	}
}

// acquireSession opens the book's canvas session, or joins the one an
// earlier client already opened.
func (ws *WebSocketService) acquireSession(bookID string) (*CanvasSession, error) {
	ws.sessionsMutex.Lock()
	defer ws.sessionsMutex.Unlock()

	if session, ok := ws.sessions[bookID]; ok {
		ws.sessionRefs[bookID]++
		return session, nil
	}
	session, err := ws.canvas.OpenSession(ws.db, bookID)
	if err != nil {
		return nil, err
	}
	ws.sessions[bookID] = session
	ws.sessionRefs[bookID] = 1
	return session, nil
}

func (ws *WebSocketService) releaseSession(client *Client) {
	if client.session == nil {
		return
	}
	bookID := client.session.BookID()
	client.session = nil

	ws.sessionsMutex.Lock()
	defer ws.sessionsMutex.Unlock()
	ws.sessionRefs[bookID]--
	if ws.sessionRefs[bookID] > 0 {
		return
	}
	if session, ok := ws.sessions[bookID]; ok {
		session.Close()
	}
	delete(ws.sessions, bookID)
	delete(ws.sessionRefs, bookID)
}

// HandleWebSocket upgrades the HTTP connection and starts the client pumps.
func (ws *WebSocketService) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		Hub:  ws,
		Conn: conn,
		Send: make(chan []byte, 256),
	}

	ws.register <- client

	go client.readPump()
	go client.writePump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Error reading from WebSocket: %v", err)
			}
			break
		}
		c.processMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) processMessage(msg []byte) {
	var clientMsg ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		log.Printf("Error parsing client message: %v", err)
		return
	}

	switch clientMsg.Type {
	case "subscribe":
		c.handleSubscribe(clientMsg)
	case "canvas":
		c.handleCanvasGesture(clientMsg)
	case "ping":
		// Keepalive, no response needed.
	default:
		log.Printf("Unknown message type: %s", clientMsg.Type)
	}
}

// handleSubscribe attaches the client to a book's canvas session and replies
// with the full graph snapshot.
func (c *Client) handleSubscribe(msg ClientMessage) {
	var payload struct {
		BookID string `json:"book_id"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.BookID == "" {
		c.sendError("subscribe requires book_id")
		return
	}

	if c.session != nil {
		c.Hub.releaseSession(c)
	}

	session, err := c.Hub.acquireSession(payload.BookID)
	if err != nil {
		log.Printf("Error opening canvas session for book %s: %v", payload.BookID, err)
		c.sendError("failed to open canvas session")
		return
	}
	c.session = session
	c.BookID = payload.BookID

	c.sendMessage(models.NewStandardMessage(models.CanvasMessage, "canvas.loaded", map[string]interface{}{
		"book_id": payload.BookID,
		"nodes":   session.Nodes(),
		"edges":   session.Edges(),
	}))
}

// handleCanvasGesture routes a gesture to the client's session. Gestures on
// a book the client never subscribed to are rejected.
func (c *Client) handleCanvasGesture(msg ClientMessage) {
	if c.session == nil {
		c.sendError("no canvas session, subscribe first")
		return
	}

	switch msg.Action {
	case "node.moved":
		var payload struct {
			CardID string  `json:"card_id"`
			X      float64 `json:"x"`
			Y      float64 `json:"y"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("invalid node.moved payload")
			return
		}
		if err := c.session.MoveNode(payload.CardID, payload.X, payload.Y); err != nil {
			c.sendError("move failed: " + err.Error())
		}

	case "node.resized":
		var payload struct {
			CardID string  `json:"card_id"`
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("invalid node.resized payload")
			return
		}
		if err := c.session.ResizeNode(payload.CardID, payload.Width, payload.Height); err != nil {
			c.sendError("resize failed: " + err.Error())
		}

	case "edge.connected":
		var payload struct {
			FromCardID string `json:"from_card_id"`
			ToCardID   string `json:"to_card_id"`
			Direction  string `json:"direction"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("invalid edge.connected payload")
			return
		}
		edge, err := c.session.ConnectNodes(payload.FromCardID, payload.ToCardID, models.ConnectionDirection(payload.Direction))
		if err != nil {
			c.sendError("connect failed: " + err.Error())
			return
		}
		c.sendMessage(models.NewStandardMessage(models.CanvasMessage, "edge.connected", map[string]interface{}{
			"edge": edge,
		}))

	case "edge.disconnected":
		var payload struct {
			ConnectionID string `json:"connection_id"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("invalid edge.disconnected payload")
			return
		}
		if err := c.session.DisconnectEdge(payload.ConnectionID); err != nil {
			c.sendError("disconnect failed: " + err.Error())
		}

	case "edge.updated":
		var payload struct {
			ConnectionID string  `json:"connection_id"`
			Direction    string  `json:"direction"`
			Description  *string `json:"description"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("invalid edge.updated payload")
			return
		}
		if err := c.session.UpdateEdge(payload.ConnectionID, models.ConnectionDirection(payload.Direction), payload.Description); err != nil {
			c.sendError("edge update failed: " + err.Error())
		}

	case "annotations.changed":
		var payload struct {
			Annotations []models.Annotation `json:"annotations"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("invalid annotations.changed payload")
			return
		}
		if err := c.session.ReconcileAnnotations(payload.Annotations); err != nil {
			c.sendError("reconcile failed: " + err.Error())
			return
		}
		c.sendMessage(models.NewStandardMessage(models.CanvasMessage, "canvas.reconciled", map[string]interface{}{
			"book_id": c.BookID,
			"nodes":   c.session.Nodes(),
			"edges":   c.session.Edges(),
		}))

	default:
		log.Printf("Unknown canvas action: %s", msg.Action)
	}
}

func (c *Client) sendMessage(message *models.StandardMessage) {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return
	}
	select {
	case c.Send <- jsonData:
	default:
	}
}

func (c *Client) sendError(reason string) {
	c.sendMessage(models.NewStandardMessage(models.ErrorMessage, "error", map[string]interface{}{
		"message": reason,
	}))
}

// Global instance
var WebSocketServiceInstance WebSocketServiceInterface
