// Package pubsub groups connected guardian sessions into per-vault rooms
// and broadcasts signing-plane events to them (spec.md §4.5 "pub/sub
// fabric grouping sessions by vault_id").
package pubsub

import "sync"

// Subscriber receives broadcast events. transport.Session implements this;
// tests can supply a simpler fake.
type Subscriber interface {
	ID() string
	Send(event string, payload interface{}) error
}

// Hub holds the in-memory index of connected sessions, rebuildable on
// restart (spec.md §5 "Shared resources" — the session index is soft
// state, unlike the persistence store).
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Subscriber // vaultID -> subscriberID -> subscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[string]Subscriber)}
}

// Join adds sub to vaultID's room.
func (h *Hub) Join(vaultID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[vaultID]
	if !ok {
		room = make(map[string]Subscriber)
		h.rooms[vaultID] = room
	}
	room[sub.ID()] = sub
}

// Leave removes sub from vaultID's room.
func (h *Hub) Leave(vaultID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[vaultID]
	if !ok {
		return
	}
	delete(room, sub.ID())
	if len(room) == 0 {
		delete(h.rooms, vaultID)
	}
}

// Broadcast sends event/payload to every subscriber currently joined to
// vaultID's room. A send failure to one subscriber does not prevent
// delivery to the rest — signing-round progress must reach every guardian
// it can.
func (h *Hub) Broadcast(vaultID string, event string, payload interface{}) []error {
	h.mu.RLock()
	room := h.rooms[vaultID]
	subs := make([]Subscriber, 0, len(room))
	for _, s := range room {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := s.Send(event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// RoomSize reports how many subscribers are currently joined to vaultID's
// room (diagnostic / test helper).
func (h *Hub) RoomSize(vaultID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[vaultID])
}
