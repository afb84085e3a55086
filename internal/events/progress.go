package events

import (
	"sync"
	"time"
)

// ProgressSnapshot is a domain event describing accumulation progress.
// Uses string fields to avoid float precision issues when consumed by web/UI layers.
type ProgressSnapshot struct {
	Timestamp    time.Time `json:"ts"`
	Pair         string    `json:"pair"`
	Acquired     string    `json:"acquired"`
	Remaining    string    `json:"remaining"`
	Target       string    `json:"target"`
	AveragePrice string    `json:"avg_price,omitempty"`
	TotalCost    string    `json:"total_cost,omitempty"`
	Balance      string    `json:"balance,omitempty"`
	OpenOrders   int       `json:"open_orders"`
}

// ProgressBroadcaster fans out snapshots to all subscribers via buffered channels.
// It keeps the API intentionally small so call sites can stay straightforward.
type ProgressBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan ProgressSnapshot]struct{}
	buffer int
}

// NewProgressBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewProgressBroadcaster(buffer int) *ProgressBroadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &ProgressBroadcaster{
		subs:   make(map[chan ProgressSnapshot]struct{}),
		buffer: buffer,
	}
}

// Publish sends the snapshot to all subscribers, dropping if a reader is slow.
func (b *ProgressBroadcaster) Publish(s ProgressSnapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- s:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives snapshots until Unsubscribe is called.
func (b *ProgressBroadcaster) Subscribe() chan ProgressSnapshot {
	ch := make(chan ProgressSnapshot, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *ProgressBroadcaster) Unsubscribe(ch chan ProgressSnapshot) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
