// Package dedupe tracks recently seen frame IDs so a retried frame upload
// is applied at most once.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen frame keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so the frame can be resubmitted, e.g. after the
	// queue refused it.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// inMemoryDeduper keeps a bounded FIFO window of keys: once full, the oldest
// key is forgotten first. maxSize <= 0 keeps every key.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	ring    []string
	next    int
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{})
	if d.maxSize > 0 {
		d.ring = make([]string, 0, min(d.maxSize, 4096))
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}

	if d.maxSize <= 0 {
		return false
	}
	if len(d.ring) < d.maxSize {
		d.ring = append(d.ring, key)
		return false
	}
	// Full: overwrite the oldest slot. Slots emptied by Unrecord hold "".
	if old := d.ring[d.next]; old != "" {
		delete(d.seen, old)
	}
	d.ring[d.next] = key
	d.next = (d.next + 1) % d.maxSize
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; !ok {
		return
	}
	delete(d.seen, key)
	for i := range d.ring {
		if d.ring[i] == key {
			d.ring[i] = ""
			break
		}
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
