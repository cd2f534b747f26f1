package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"messaging-service/internal/models"
)

// Subscriber is one receiver of room fan-outs. Deliver must never block:
// implementations enqueue onto a bounded buffer and drop on overflow so a
// slow subscriber cannot stall delivery to the rest of the room.
type Subscriber interface {
	ID() string
	Deliver(payload []byte)
}

// Registry maps room keys to their current subscribers. Rooms are created
// lazily on first join and evicted when the last subscriber leaves;
// re-creation on the next join is transparent.
type Registry struct {
	mu    sync.RWMutex
	rooms map[models.RoomKey]map[string]Subscriber
	log   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		rooms: make(map[models.RoomKey]map[string]Subscriber),
		log:   log,
	}
}

// Join subscribes sub to the room.
func (r *Registry) Join(key models.RoomKey, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[key]; !ok {
		r.rooms[key] = make(map[string]Subscriber)
	}
	r.rooms[key][sub.ID()] = sub
}

// Leave unsubscribes sub from the room, evicting the room when it empties.
func (r *Registry) Leave(key models.RoomKey, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs, ok := r.rooms[key]; ok {
		delete(subs, sub.ID())
		if len(subs) == 0 {
			delete(r.rooms, key)
		}
	}
}

// Publish delivers the event to a snapshot of the room's subscribers taken at
// call time. Delivery to each subscriber is independent; a full or failed
// subscriber never blocks the others.
func (r *Registry) Publish(key models.RoomKey, event models.ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.log.Error().Err(err).Str("room", string(key)).Msg("marshal fan-out event")
		return
	}

	r.mu.RLock()
	subs := make([]Subscriber, 0, len(r.rooms[key]))
	for _, sub := range r.rooms[key] {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		sub.Deliver(payload)
	}
}

// Subscribers reports how many subscribers the room currently holds.
func (r *Registry) Subscribers(key models.RoomKey) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[key])
}

// HasSubscriber reports whether the room holds a subscriber with the id.
func (r *Registry) HasSubscriber(key models.RoomKey, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs, ok := r.rooms[key]
	if !ok {
		return false
	}
	_, ok = subs[id]
	return ok
}
