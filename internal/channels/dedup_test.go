package channels

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupSuppressesRepeatIDs(t *testing.T) {
	d := NewDedup()

	assert.False(t, d.Seen("chat_100"))
	assert.True(t, d.Seen("chat_100"))
	assert.False(t, d.Seen("chat_101"))
	assert.True(t, d.Seen("chat_100"), "repeats stay suppressed across cycles")
}

func TestDedupContainsDoesNotMark(t *testing.T) {
	d := NewDedup()
	assert.False(t, d.Contains("chat_5"))
	assert.False(t, d.Contains("chat_5"), "checking must not record")
	d.Mark("chat_5")
	assert.True(t, d.Contains("chat_5"))
}

func TestDedupEvictsOldestWhenFull(t *testing.T) {
	d := NewDedup()
	d.Seen("first")
	for i := 0; i < dedupCacheSize; i++ {
		d.Seen(fmt.Sprintf("filler_%d", i))
	}

	// The window is bounded: once the LRU rolls over, an old id reads as new.
	assert.False(t, d.Seen("first"))
}
