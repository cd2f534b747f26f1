package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

// stubSubscriber records everything delivered to it.
type stubSubscriber struct {
	id string

	mu       sync.Mutex
	payloads [][]byte
}

func newStubSubscriber(id string) *stubSubscriber {
	return &stubSubscriber{id: id}
}

func (s *stubSubscriber) ID() string { return s.id }

func (s *stubSubscriber) Deliver(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
}

func (s *stubSubscriber) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.payloads))
	copy(out, s.payloads)
	return out
}

func TestRegistryJoinLeaveEvictsEmptyRoom(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	key := models.ConversationRoom(7)

	a := newStubSubscriber("a")
	b := newStubSubscriber("b")

	reg.Join(key, a)
	reg.Join(key, b)
	assert.Equal(t, 2, reg.Subscribers(key))
	assert.True(t, reg.HasSubscriber(key, "a"))

	reg.Leave(key, a)
	assert.Equal(t, 1, reg.Subscribers(key))
	assert.False(t, reg.HasSubscriber(key, "a"))

	reg.Leave(key, b)
	assert.Equal(t, 0, reg.Subscribers(key))

	// Re-join after eviction is transparent.
	reg.Join(key, a)
	assert.Equal(t, 1, reg.Subscribers(key))
}

func TestRegistryLeaveUnknownRoomIsNoop(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Leave(models.GroupRoom(99), newStubSubscriber("x"))
	assert.Equal(t, 0, reg.Subscribers(models.GroupRoom(99)))
}

func TestRegistryPublishDeliversToEverySubscriberOnce(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	key := models.GroupRoom(3)

	subs := make([]*stubSubscriber, 5)
	for i := range subs {
		subs[i] = newStubSubscriber(fmt.Sprintf("sub-%d", i))
		reg.Join(key, subs[i])
	}

	outsider := newStubSubscriber("outsider")
	reg.Join(models.GroupRoom(4), outsider)

	reg.Publish(key, models.ServerEvent{Type: models.EventTyping, UserID: 11, IsTyping: true})

	for _, sub := range subs {
		got := sub.received()
		require.Len(t, got, 1, "subscriber %s", sub.id)

		var ev models.ServerEvent
		require.NoError(t, json.Unmarshal(got[0], &ev))
		assert.Equal(t, models.EventTyping, ev.Type)
		assert.Equal(t, 11, ev.UserID)
		assert.True(t, ev.IsTyping)
	}
	assert.Empty(t, outsider.received())
}

func TestRegistryPublishToEmptyRoomIsNoop(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Publish(models.ConversationRoom(1), models.ServerEvent{Type: models.EventTyping})
	assert.Equal(t, 0, reg.Subscribers(models.ConversationRoom(1)))
}

func TestRegistryConcurrentJoinsAndPublishes(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	key := models.ConversationRoom(42)

	const nEarly = 8
	const nLate = 8
	const nPublishes = 50

	early := make([]*stubSubscriber, nEarly)
	for i := range early {
		early[i] = newStubSubscriber(fmt.Sprintf("early-%d", i))
		reg.Join(key, early[i])
	}

	late := make([]*stubSubscriber, nLate)
	for i := range late {
		late[i] = newStubSubscriber(fmt.Sprintf("late-%d", i))
	}

	// Joins race the publishes; the registry must stay consistent throughout.
	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, sub := range late {
		wg.Add(1)
		go func(s *stubSubscriber) {
			defer wg.Done()
			<-start
			reg.Join(key, s)
		}(sub)
	}
	for i := 0; i < nPublishes; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			reg.Publish(key, models.ServerEvent{Type: models.EventTyping, UserID: n})
		}(i)
	}
	close(start)
	wg.Wait()

	countByPublish := func(sub *stubSubscriber) map[int]int {
		counts := make(map[int]int)
		for _, data := range sub.received() {
			var ev models.ServerEvent
			require.NoError(t, json.Unmarshal(data, &ev))
			counts[ev.UserID]++
		}
		return counts
	}

	// Subscribers joined before any publish see every publish exactly once.
	for _, sub := range early {
		counts := countByPublish(sub)
		require.Len(t, counts, nPublishes, "subscriber %s", sub.id)
		for n, c := range counts {
			assert.Equal(t, 1, c, "subscriber %s publish %d", sub.id, n)
		}
	}

	// Subscribers joining mid-flight may miss publishes that snapshotted the
	// room before their join, but never see one twice.
	for _, sub := range late {
		assert.True(t, reg.HasSubscriber(key, sub.id))
		for n, c := range countByPublish(sub) {
			assert.Equal(t, 1, c, "subscriber %s publish %d", sub.id, n)
		}
	}
}
