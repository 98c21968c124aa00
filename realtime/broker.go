// Package realtime pushes ingest and alert events to SSE subscribers.
package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	models "form4-sentinel/database/models_pkg"
)

// Event names emitted over the /insider/events stream.
const (
	EventTransactions = "insider_transactions"
	EventAlert        = "insider_alert"
)

// Broker fans events out to connected SSE clients.
type Broker struct {
	clients    map[chan []byte]bool
	register   chan chan []byte
	unregister chan chan []byte
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.RWMutex
}

// NewBroker creates a new SSE broker
func NewBroker() *Broker {
	return &Broker{
		clients:    make(map[chan []byte]bool),
		register:   make(chan chan []byte),
		unregister: make(chan chan []byte),
		broadcast:  make(chan []byte, 1000),
		done:       make(chan struct{}),
	}
}

// Run starts the broker loop. Returns when Stop is called.
func (b *Broker) Run() {
	for {
		select {
		case <-b.done:
			b.mu.Lock()
			for client := range b.clients {
				delete(b.clients, client)
				close(client)
			}
			b.mu.Unlock()
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
			log.Printf("SSE client connected. Total: %d", len(b.clients))

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
				log.Printf("SSE client disconnected. Total: %d", len(b.clients))
			}
			b.mu.Unlock()

		case msg := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- msg:
				default:
					// Skip if client buffer is full to prevent blocking
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Stop shuts the broker down and disconnects all clients.
func (b *Broker) Stop() {
	close(b.done)
}

// ServeHTTP handles the SSE endpoint
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientChan := make(chan []byte, 10)
	select {
	case b.register <- clientChan:
	case <-b.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	notify := r.Context().Done()

	for {
		select {
		case <-notify:
			select {
			case b.unregister <- clientChan:
			case <-b.done:
			}
			return
		case msg, ok := <-clientChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			w.(http.Flusher).Flush()
		}
	}
}

// publish sends a named event to all connected clients.
func (b *Broker) publish(event string, payload interface{}) {
	data := map[string]interface{}{
		"event":   event,
		"payload": payload,
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		log.Printf("Error marshalling broadcast message: %v", err)
		return
	}

	select {
	case b.broadcast <- jsonBytes:
	default:
		// Drop if broadcast buffer full
	}
}

// BroadcastTransactions announces newly ingested filings.
func (b *Broker) BroadcastTransactions(txns []models.InsiderTransaction) {
	b.publish(EventTransactions, map[string]interface{}{
		"count":        len(txns),
		"transactions": txns,
	})
}

// BroadcastAlert announces a newly promoted alert.
func (b *Broker) BroadcastAlert(alert models.InsiderAlert) {
	b.publish(EventAlert, alert)
}
