// Package thread detects topic shifts across a conversation by tracking an
// exponential moving average of message embeddings and flagging messages
// whose cosine similarity to the running average drops below threshold.
//
// Grounded on the reference agent runtime's cosine-similarity helper
// (internal/memory/backend/sqlitevec, reused via internal/scorer) with a
// from-scratch EMA tracker, since the teacher has no topic-segmentation
// logic of its own.
package thread

import (
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/scorer"
)

// Defaults per the thread-detection spec.
const (
	DefaultSimilarityThreshold = 0.7
	DefaultMaxGap              = 5
	DefaultWindowSize          = 3
)

// Config tunes thread-boundary detection.
type Config struct {
	SimilarityThreshold float32
	MaxGap              int
	WindowSize          int
}

// DefaultConfig returns the spec's default thresholds.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: DefaultSimilarityThreshold,
		MaxGap:              DefaultMaxGap,
		WindowSize:          DefaultWindowSize,
	}
}

// Message is the minimal shape the detector needs: an embedding and a
// monotonically increasing sequence position.
type Message struct {
	ID        string
	Embedding []float32
	Position  int
}

// Thread is a contiguous run of messages sharing a topic.
type Thread struct {
	ID         int
	MessageIDs []string
	StartPos   int
	EndPos     int
	topic      []float32
	count      int
}

// Detector segments a message stream into threads via EMA topic tracking.
type Detector struct {
	cfg     Config
	threads []*Thread
	current *Thread
	lastPos int
}

// NewDetector builds a Detector with cfg, falling back to defaults for
// unset fields.
func NewDetector(cfg Config) *Detector {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.MaxGap <= 0 {
		cfg.MaxGap = DefaultMaxGap
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	return &Detector{cfg: cfg}
}

// Add feeds the next message into the detector, starting a new thread when
// the message's embedding diverges from the current thread's EMA topic by
// more than threshold, or when the gap since the last message exceeds
// MaxGap. Returns the thread the message was assigned to.
func (d *Detector) Add(msg Message) *Thread {
	if d.current == nil {
		return d.startThread(msg)
	}

	gap := msg.Position - d.lastPos
	if gap > d.cfg.MaxGap {
		return d.startThread(msg)
	}

	sim := scorer.CosineSimilarity(msg.Embedding, d.current.topic)
	if sim < d.cfg.SimilarityThreshold {
		d.mergeIfShort(d.current)
		return d.startThread(msg)
	}

	d.current.MessageIDs = append(d.current.MessageIDs, msg.ID)
	d.current.EndPos = msg.Position
	d.lastPos = msg.Position
	d.updateTopic(d.current, msg.Embedding)
	return d.current
}

func (d *Detector) startThread(msg Message) *Thread {
	t := &Thread{
		ID:         len(d.threads),
		MessageIDs: []string{msg.ID},
		StartPos:   msg.Position,
		EndPos:     msg.Position,
		topic:      append([]float32(nil), msg.Embedding...),
		count:      1,
	}
	d.threads = append(d.threads, t)
	d.current = t
	d.lastPos = msg.Position
	return t
}

// updateTopic folds embedding into t's running topic via EMA with
// alpha = 2/(n+1), n being the thread's message count after this addition.
func (d *Detector) updateTopic(t *Thread, embedding []float32) {
	t.count++
	if len(t.topic) == 0 || len(embedding) != len(t.topic) {
		t.topic = append([]float32(nil), embedding...)
		return
	}
	alpha := float32(2.0 / float64(t.count+1))
	for i := range t.topic {
		t.topic[i] = alpha*embedding[i] + (1-alpha)*t.topic[i]
	}
}

// mergeIfShort folds a thread shorter than WindowSize messages into the
// previous thread instead of leaving a noisy one-off segment, per the
// short-thread merge rule.
func (d *Detector) mergeIfShort(t *Thread) {
	if len(t.MessageIDs) >= d.cfg.WindowSize || len(d.threads) < 2 {
		return
	}
	prev := d.threads[len(d.threads)-2]
	prev.MessageIDs = append(prev.MessageIDs, t.MessageIDs...)
	prev.EndPos = t.EndPos
	d.threads = d.threads[:len(d.threads)-1]
}

// Threads returns every thread detected so far, in order.
func (d *Detector) Threads() []*Thread {
	return d.threads
}

// Current returns the thread the most recently added message belongs to.
func (d *Detector) Current() *Thread {
	return d.current
}
