package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConnectionEvent is the first event every subscriber receives.
const ConnectionEvent = "connection"

const defaultBuffer = 16

type (
	// Event is one server-sent message.
	Event struct {
		Type      string      `json:"type"`
		Message   string      `json:"message,omitempty"`
		Data      interface{} `json:"data,omitempty"`
		Timestamp time.Time   `json:"timestamp"`
	}

	// Client receives the events broadcast after it subscribed.
	Client struct {
		ID     string
		Events <-chan Event
		ch     chan Event
	}

	// Broker fans events out to subscribed clients.
	// A client whose buffer is full is dropped rather than blocking the broadcast.
	Broker struct {
		mu      sync.RWMutex
		clients map[string]*Client
		buffer  int
		closed  bool
	}
)

func NewBroker() *Broker {
	return &Broker{clients: make(map[string]*Client), buffer: defaultBuffer}
}

// Subscribe registers a new client and queues the connection event for it.
func (b *Broker) Subscribe() *Client {
	ch := make(chan Event, b.buffer)
	c := &Client{ID: uuid.New().String(), Events: ch, ch: ch}
	ch <- Event{Type: ConnectionEvent, Message: "Connected to real-time updates", Timestamp: time.Now().UTC()}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return c
	}
	b.clients[c.ID] = c
	return c
}

// Unsubscribe removes the client and closes its channel. Safe to call more than once.
func (b *Broker) Unsubscribe(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(c.ID)
}

// caller must hold the write lock
func (b *Broker) remove(id string) {
	if c, ok := b.clients[id]; ok {
		delete(b.clients, id)
		close(c.ch)
	}
}

// Broadcast sends an event of the given type to every client.
func (b *Broker) Broadcast(eventType string, data interface{}) {
	b.Publish(Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()})
}

// Publish sends evt to every client, dropping those that cannot keep up.
func (b *Broker) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, c := range b.clients {
		select {
		case c.ch <- evt:
		default:
			b.remove(id)
		}
	}
}

// Count is the number of subscribed clients.
func (b *Broker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close drops every client; later subscribers get a closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.clients {
		b.remove(id)
	}
	b.closed = true
}
