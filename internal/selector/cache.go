package selector

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"
)

// fingerprint computes a stable digest over the last windowSize messages,
// the prompt, and the recognized config options that affect selection
// output, so identical turns within the TTL reuse the prior result.
func fingerprint(messages []models.Message, prompt string, windowSize int, topK, recentN int, minScore float64, modelID string) string {
	start := len(messages) - windowSize
	if start < 0 {
		start = 0
	}

	var sb strings.Builder
	for _, m := range messages[start:] {
		sb.WriteString(m.ID)
		sb.WriteByte('|')
		sb.WriteString(string(m.Role))
		sb.WriteByte('|')
		sb.WriteString(m.Content)
		sb.WriteByte('\n')
	}
	sb.WriteString("prompt:")
	sb.WriteString(prompt)
	fmt.Fprintf(&sb, "|topK=%d|recentN=%d|minScore=%.4f|model=%s", topK, recentN, minScore, modelID)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

type resultCacheEntry struct {
	key       string
	messages  []models.Message
	expiresAt time.Time
}

// resultCache holds the selector's final per-turn output keyed by
// fingerprint, evicted by TTL and bounded by a max entry count.
type resultCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

func newResultCache(capacity int, ttl time.Duration) *resultCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &resultCache{
		ttl:      ttl,
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

func (c *resultCache) get(key string) ([]models.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*resultCacheEntry)
	if c.now().After(entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.messages, true
}

func (c *resultCache) put(key string, messages []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*resultCacheEntry).messages = messages
		el.Value.(*resultCacheEntry).expiresAt = c.now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}

	entry := &resultCacheEntry{key: key, messages: messages, expiresAt: c.now().Add(c.ttl)}
	el := c.ll.PushFront(entry)
	c.items[key] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*resultCacheEntry).key)
	}
}
