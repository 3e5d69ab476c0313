package services

import (
	"encoding/json"
	"log"
	"time"

	"marginalia-reader/marginalia/broker"
	"marginalia-reader/marginalia/database"
	"marginalia-reader/marginalia/models"
)

type EventDispatcherInterface interface {
	Start()
	Stop()
	ProcessPendingEvents()
	SetBroadcastFunc(fn func(message []byte))
}

// EventDispatcher drains pending event rows on a ticker. Each row is
// broadcast to websocket clients once, then held until a broker accepts it;
// only a successful publish marks it dispatched, so events queue up while
// NATS is unreachable. Rows written in the same transaction as their
// mutation survive a crash and are picked up on the next run.
type EventDispatcher struct {
	db        *database.Database
	isRunning bool
	ticker    *time.Ticker
	broadcast func(message []byte)
}

func NewEventDispatcher(db *database.Database) EventDispatcherInterface {
	return &EventDispatcher{
		db:        db,
		isRunning: false,
		ticker:    time.NewTicker(1 * time.Second),
	}
}

// SetBroadcastFunc wires the websocket fan-out. Optional; without it events
// still flow to the broker.
func (s *EventDispatcher) SetBroadcastFunc(fn func(message []byte)) {
	s.broadcast = fn
}

func (s *EventDispatcher) Start() {
	if s.isRunning {
		return
	}
	s.isRunning = true
	go s.ProcessPendingEvents()
}

func (s *EventDispatcher) Stop() {
	if !s.isRunning {
		return
	}
	s.isRunning = false
	s.ticker.Stop()
}

func (s *EventDispatcher) ProcessPendingEvents() {
	for range s.ticker.C {
		if !s.isRunning {
			return
		}

		var events []models.Event
		if err := s.db.DB.Where("dispatched = ?", false).Order("timestamp ASC").Find(&events).Error; err != nil {
			log.Printf("Error fetching events: %v", err)
			continue
		}

		for _, event := range events {
			if err := s.dispatchEvent(event); err != nil {
				log.Printf("Error dispatching event %s: %v", event.ID, err)
				continue
			}
		}
	}
}

func (s *EventDispatcher) dispatchEvent(event models.Event) error {
	var dataMap map[string]interface{}
	if err := json.Unmarshal(event.Data, &dataMap); err != nil {
		log.Printf("Warning: could not unmarshal event data: %v", err)
		dataMap = make(map[string]interface{})
	}

	payload := map[string]interface{}{
		"event_id":  event.ID.String(),
		"timestamp": event.Timestamp,
		"type":      event.Event,
		"entity":    event.Entity,
		"data":      dataMap,
	}
	// Promote the entity id so clients can route without digging into data.
	for _, key := range []string{"book_id", "annotation_id", "card_id", "connection_id"} {
		if id, ok := dataMap[key]; ok {
			payload[key] = id
		}
	}

	message := models.NewStandardMessage(models.EventMessage, event.Event, payload)
	jsonData, err := json.Marshal(message)
	if err != nil {
		return err
	}

	// Clients hear about the mutation exactly once; broker retries must not
	// replay it at them.
	if event.Status == models.EventStatusPending {
		if s.broadcast != nil {
			s.broadcast(jsonData)
		}
		if err := s.db.DB.Model(&event).Update("status", models.EventStatusBroadcast).Error; err != nil {
			return err
		}
	}

	// The event stays queued until a broker is reachable and accepts it.
	if !broker.IsConnected() {
		return nil
	}
	subject := broker.SubjectForEntity(event.Entity)
	if err := broker.PublishMessage(subject, event.Event, string(jsonData)); err != nil {
		return err
	}

	now := time.Now()
	return s.db.DB.Model(&event).Updates(map[string]interface{}{
		"dispatched":    true,
		"dispatched_at": now,
		"status":        models.EventStatusCompleted,
	}).Error
}

var EventDispatcherInstance EventDispatcherInterface
