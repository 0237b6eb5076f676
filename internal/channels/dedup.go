package channels

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	dedupCacheSize = 2048
	dedupTTL       = 10 * time.Minute
)

// Dedup suppresses duplicate message ids across poll cycles so one inbound
// message is converted into at most one task.
type Dedup struct {
	cache *expirable.LRU[string, struct{}]
}

// NewDedup creates a dedup window with the default size and TTL.
func NewDedup() *Dedup {
	return &Dedup{cache: expirable.NewLRU[string, struct{}](dedupCacheSize, nil, dedupTTL)}
}

// Contains reports whether id is in the window, without recording it.
// Adapters use this on receive so a message is only remembered once it has
// actually been processed; a failed hand-off stays retryable.
func (d *Dedup) Contains(id string) bool {
	_, ok := d.cache.Get(id)
	return ok
}

// Mark records id in the window.
func (d *Dedup) Mark(id string) {
	d.cache.Add(id, struct{}{})
}

// Seen records id and reports whether it was already present.
func (d *Dedup) Seen(id string) bool {
	if d.Contains(id) {
		return true
	}
	d.Mark(id)
	return false
}
