// Package chat relays user messages to the backend's chat endpoint and keeps
// the running transcript.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kbdesk/backend/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultCopyFeedback is how long an entry stays flagged after Copy.
const DefaultCopyFeedback = 2 * time.Second

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrOutOfRange   = errors.New("transcript index out of range")
)

// Backend is the subset of the backend client the relay needs.
type Backend interface {
	Chat(ctx context.Context, message, knowledgeBase string) (string, error)
	SwitchVectorDB(ctx context.Context, dbName string) error
}

// Options tune a Relay.
type Options struct {
	CopyFeedback time.Duration
	Now          func() time.Time
	// KnowledgeBase preselects the chat selector.
	KnowledgeBase string
}

// Relay holds the transcript and the knowledge-base selector.
type Relay struct {
	mu         sync.Mutex
	backend    Backend
	entries    []models.ChatEntry
	current    string
	known      map[string]struct{}
	copyTimers map[int]copyTimer
	copySeq    int
	feedback   time.Duration
	now        func() time.Time

	subMu       sync.Mutex
	subscribers []func([]models.ChatEntry)
}

// NewRelay creates an empty relay.
func NewRelay(b Backend, opts Options) *Relay {
	if opts.CopyFeedback <= 0 {
		opts.CopyFeedback = DefaultCopyFeedback
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Relay{
		backend:    b,
		known:      make(map[string]struct{}),
		copyTimers: make(map[int]copyTimer),
		feedback:   opts.CopyFeedback,
		now:        opts.Now,
	}
	if kb := strings.TrimSpace(opts.KnowledgeBase); kb != "" {
		r.current = kb
		r.known[kb] = struct{}{}
	}
	return r
}

// Subscribe registers fn to receive the transcript after every change.
func (r *Relay) Subscribe(fn func([]models.ChatEntry)) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// Send relays text to the backend. The user entry is appended before the
// call; the reply, or an error entry, after it.
func (r *Relay) Send(ctx context.Context, text string) (models.ChatEntry, error) {
	message := strings.TrimSpace(text)
	if message == "" {
		return models.ChatEntry{}, ErrEmptyMessage
	}

	r.mu.Lock()
	r.appendLocked(models.RoleUser, message)
	kb := r.current
	r.mu.Unlock()
	r.publish()

	reply, err := r.backend.Chat(ctx, message, kb)

	r.mu.Lock()
	var entry models.ChatEntry
	if err != nil {
		entry = r.appendLocked(models.RoleError, "Error: "+err.Error())
	} else {
		entry = r.appendLocked(models.RoleBot, reply)
	}
	r.mu.Unlock()
	r.publish()

	if err != nil {
		log.Error().Err(err).Str("kb", kb).Msg("[chat] message failed")
		return entry, fmt.Errorf("sending message: %w", err)
	}
	return entry, nil
}

func (r *Relay) appendLocked(role models.Role, content string) models.ChatEntry {
	entry := models.ChatEntry{Role: role, Content: content, CreatedAt: r.now()}
	r.entries = append(r.entries, entry)
	return entry
}

// Transcript returns a copy of the conversation so far.
func (r *Relay) Transcript() []models.ChatEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ChatEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Reset clears the transcript.
func (r *Relay) Reset() {
	r.mu.Lock()
	r.entries = nil
	for i, ct := range r.copyTimers {
		ct.timer.Stop()
		delete(r.copyTimers, i)
	}
	r.mu.Unlock()
	r.publish()
}

// Copy returns the entry's text and flags it as copied for a short while.
func (r *Relay) Copy(index int) (string, error) {
	r.mu.Lock()
	if index < 0 || index >= len(r.entries) {
		n := len(r.entries)
		r.mu.Unlock()
		return "", fmt.Errorf("copy %d of %d: %w", index, n, ErrOutOfRange)
	}
	r.entries[index].Copied = true
	content := r.entries[index].Content
	if ct, ok := r.copyTimers[index]; ok {
		ct.timer.Stop()
	}
	r.copySeq++
	seq := r.copySeq
	r.copyTimers[index] = copyTimer{
		timer: time.AfterFunc(r.feedback, func() { r.uncopy(index, seq) }),
		seq:   seq,
	}
	r.mu.Unlock()

	r.publish()
	return content, nil
}

// copyTimer reverts one Copied flag. seq identifies the Copy call that armed
// it, so a timer that already fired cannot clear a newer copy.
type copyTimer struct {
	timer *time.Timer
	seq   int
}

// uncopy is a no-op unless the timer for seq is still the armed one for index.
func (r *Relay) uncopy(index, seq int) {
	r.mu.Lock()
	ct, ok := r.copyTimers[index]
	if !ok || ct.seq != seq || index >= len(r.entries) {
		r.mu.Unlock()
		return
	}
	r.entries[index].Copied = false
	delete(r.copyTimers, index)
	r.mu.Unlock()
	r.publish()
}

// KnowledgeBase returns the current selector, empty when none is chosen.
func (r *Relay) KnowledgeBase() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// UseKnowledgeBase changes the local selector without calling the backend.
func (r *Relay) UseKnowledgeBase(name string) {
	name = strings.TrimSpace(name)
	r.mu.Lock()
	r.current = name
	if name != "" {
		r.known[name] = struct{}{}
	}
	r.mu.Unlock()
}

// SwitchKnowledgeBase asks the backend to load name, then selects it.
func (r *Relay) SwitchKnowledgeBase(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("knowledge base name is empty")
	}
	if err := r.backend.SwitchVectorDB(ctx, name); err != nil {
		return fmt.Errorf("switching to %s: %w", name, err)
	}
	r.UseKnowledgeBase(name)
	log.Info().Str("kb", name).Msg("[chat] switched knowledge base")
	return nil
}

// Remember adds name to the known bases and makes it current, mirroring the
// backend which loads a freshly built base straight away.
func (r *Relay) Remember(name string) {
	r.UseKnowledgeBase(name)
}

// KnowledgeBases lists known bases alphabetically with the current one flagged.
func (r *Relay) KnowledgeBases() []models.KnowledgeBase {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.KnowledgeBase, 0, len(r.known))
	for name := range r.known {
		out = append(out, models.KnowledgeBase{Name: name, Current: name == r.current})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close stops pending copy timers.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ct := range r.copyTimers {
		ct.timer.Stop()
	}
}

func (r *Relay) publish() {
	r.subMu.Lock()
	subs := make([]func([]models.ChatEntry), len(r.subscribers))
	copy(subs, r.subscribers)
	r.subMu.Unlock()

	if len(subs) == 0 {
		return
	}
	transcript := r.Transcript()
	for _, fn := range subs {
		fn(transcript)
	}
}
