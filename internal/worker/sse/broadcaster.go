// Package sse streams live memory events to subscribed clients over
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// subscriberBuffer bounds how far a slow reader may fall behind before it
// is dropped.
const subscriberBuffer = 16

type subscriber struct {
	ch chan []byte
	id int
}

// Broadcaster fans events out to all connected SSE clients. Each client
// gets a buffered channel; a client that stops draining is disconnected
// rather than allowed to stall the rest.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*subscriber)}
}

// Broadcast marshals data once and queues it to every subscriber.
// Subscribers whose buffers are full are dropped.
func (b *Broadcaster) Broadcast(data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("marshal sse event")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- payload:
		default:
			delete(b.subs, id)
			close(sub.ch)
			log.Debug().Int("clientId", id).Msg("sse subscriber too slow, dropped")
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) subscribe() *subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &subscriber{id: b.nextID, ch: make(chan []byte, subscriberBuffer)}
	b.subs[sub.id] = sub
	log.Debug().Int("clientId", sub.id).Int("totalClients", len(b.subs)).Msg("sse client connected")
	return sub
}

func (b *Broadcaster) unsubscribe(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
	log.Debug().Int("clientId", sub.id).Int("totalClients", len(b.subs)).Msg("sse client disconnected")
}

// HandleSSE serves one SSE connection until the client goes away.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sub := b.subscribe()
	defer b.unsubscribe(sub)

	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"clientId\":\"client-%d\"}\n\n", sub.id)
	flusher.Flush()

	for {
		select {
		case payload, ok := <-sub.ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
