package events

import (
	"log/slog"
	"sync"
)

// Hub fans events out to viewer subscribers and to individually addressed
// judge subscribers.
type Hub struct {
	mu      sync.RWMutex
	nextID  int
	viewers map[int]chan Event
	judges  map[string]chan Event
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		viewers: make(map[int]chan Event),
		judges:  make(map[string]chan Event),
		logger:  logger,
	}
}

// SubscribeViewer registers a viewer channel with the given buffer. The
// returned cancel func removes the subscription and closes the channel.
func (h *Hub) SubscribeViewer(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.viewers[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.viewers[id]; ok {
			delete(h.viewers, id)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// SubscribeJudge registers the channel for one judge, replacing any
// previous subscription for the same judge id.
func (h *Hub) SubscribeJudge(judgeID string, buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	h.mu.Lock()
	if old, ok := h.judges[judgeID]; ok {
		close(old)
	}
	h.judges[judgeID] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if cur, ok := h.judges[judgeID]; ok && cur == ch {
			delete(h.judges, judgeID)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every viewer subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.viewers {
		select {
		case ch <- ev:
		default:
			if h.logger != nil {
				h.logger.Warn("dropping event for slow viewer", "subject", ev.Subject, "subscriber", id)
			}
		}
	}
}

// PublishToJudge delivers the event to one judge without blocking.
func (h *Hub) PublishToJudge(judgeID string, ev Event) {
	h.mu.RLock()
	ch, ok := h.judges[judgeID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case ch <- ev:
	default:
		if h.logger != nil {
			h.logger.Warn("dropping event for slow judge", "subject", ev.Subject, "judge_id", judgeID)
		}
	}
}
