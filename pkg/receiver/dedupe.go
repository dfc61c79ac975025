package receiver

import (
	"sync"
	"time"

	"github.com/norasector/samedec/pkg/same/message"
)

// Dedupe suppresses a message heard again within a window, typically the
// same station picked up on more than one channel.
type Dedupe struct {
	window time.Duration
	seen   map[string]time.Time
	mu     sync.Mutex
}

func NewDedupe(window time.Duration) *Dedupe {
	return &Dedupe{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

// Seen records msg at time at and reports whether it was already recorded
// within the window. End of message markers are never suppressed.
func (d *Dedupe) Seen(msg message.Message, at time.Time) bool {
	if msg.Kind == message.EndOfMessage || d.window <= 0 {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for key, last := range d.seen {
		if at.Sub(last) >= d.window {
			delete(d.seen, key)
		}
	}

	key := msg.String()
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = at
	return false
}

func (d *Dedupe) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
