// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package websocket fans dispatched alerts out to live subscribers.
// The hub is a read-only feed: clients receive every alert the
// notifier successfully dispatches, but nothing a client sends (beyond
// keepalive pings) affects the pipeline.
package websocket

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"

	"github.com/icewatch/icewatch/internal/logging"
	"github.com/icewatch/icewatch/internal/metrics"
)

// Message types pushed to subscribers.
const (
	MessageTypeAlert = "alert"
	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
)

// Message is the envelope for every frame sent to a client.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of connected clients and broadcasts alerts to
// them. All client-map mutation happens on the Serve goroutine.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client

	// count mirrors len(clients) for readers outside the Serve
	// goroutine.
	count atomic.Int64

	// done is closed when Serve shuts down and replaced when it
	// starts, so client teardown never blocks on a hub with no
	// receiver.
	mu   sync.Mutex
	done chan struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// String names the service in supervisor logs.
func (h *Hub) String() string { return "websocket-hub" }

// Serve runs the hub until the context is canceled, then closes every
// client so the supervisor can restart it without orphaned
// connections. Lifecycle events are drained before broadcasts so the
// client set is consistent when a message fans out.
func (h *Hub) Serve(ctx context.Context) error {
	h.mu.Lock()
	h.done = make(chan struct{})
	h.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.drop(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.drop(client)
		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// Broadcast queues a dispatched alert payload for all subscribers.
// Never blocks: when the hub is saturated the frame is dropped, since
// the webhook remains the delivery channel of record.
func (h *Hub) Broadcast(payload []byte) {
	var data json.RawMessage = payload
	select {
	case h.broadcast <- Message{Type: MessageTypeAlert, Data: data}:
	default:
		logging.Warn().Msg("hub broadcast channel full, dropping alert frame")
	}
}

func (h *Hub) add(client *Client) {
	h.clients[client] = true
	h.count.Store(int64(len(h.clients)))
	metrics.WSClientsConnected.Set(float64(len(h.clients)))
	logging.Info().Int("total_clients", len(h.clients)).Msg("websocket client connected")
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.count.Store(int64(len(h.clients)))
	metrics.WSClientsConnected.Set(float64(len(h.clients)))
	logging.Info().Int("total_clients", len(h.clients)).Msg("websocket client disconnected")
}

// fanOut delivers a message to every client in stable ID order.
// Clients with a full send buffer are disconnected rather than allowed
// to stall the feed for everyone else.
func (h *Hub) fanOut(message Message) {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			h.drop(client)
		}
	}
}

// unregister hands a client back to the Serve loop, or drops it on the
// floor when the hub has already shut down and closed every client.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()

	select {
	case h.Unregister <- client:
	case <-done:
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	close(h.done)
	h.mu.Unlock()

	closed := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.count.Store(0)
	metrics.WSClientsConnected.Set(0)

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", closed).
		Msg("websocket hub stopped")
}

// ClientCount returns the number of connected clients. The value may
// be stale by the time it is read; use for observability only.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}
