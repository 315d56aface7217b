package service

import "sync"

const subscriberBufferSize = 16

// hub fans values out to buffered subscriber channels grouped by key. Slow
// subscribers miss values instead of blocking the publisher.
type hub[K comparable, V any] struct {
	mu          sync.RWMutex
	subscribers map[K]map[chan V]struct{}
}

func newHub[K comparable, V any]() *hub[K, V] {
	return &hub[K, V]{subscribers: make(map[K]map[chan V]struct{})}
}

func (h *hub[K, V]) subscribe(key K) chan V {
	ch := make(chan V, subscriberBufferSize)

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.subscribers[key]; !exists {
		h.subscribers[key] = make(map[chan V]struct{})
	}
	h.subscribers[key][ch] = struct{}{}
	return ch
}

func (h *hub[K, V]) unsubscribe(key K, ch chan V) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subscribers, ok := h.subscribers[key]; ok {
		if _, member := subscribers[ch]; !member {
			return
		}
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(h.subscribers, key)
		}
	}
}

func (h *hub[K, V]) broadcast(key K, value V) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for ch := range h.subscribers[key] {
		select {
		case ch <- value:
			delivered++
		default:
		}
	}
	return delivered
}
