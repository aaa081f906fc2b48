// Package events implements the orchestrator's append-only per-creature
// event log, a bounded in-memory tail, and a live fan-out subscription bus
// (spec.md §4.1). It is the single writer for the event log; readers take
// point-in-time snapshots.
package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

// DefaultTailSize is the default bound on the in-memory recent-events tail
// per creature (spec.md §4.1).
const DefaultTailSize = 500

// Store is the append-only event log plus live subscriber bus. One Store
// instance is owned exclusively by the orchestrator process (spec.md §3
// Ownership).
type Store struct {
	creaturesDir string
	tailSize     int
	log          zerolog.Logger

	mu   sync.Mutex // serializes append() per the single-writer rule
	tail map[string][]models.Event

	subMu sync.RWMutex
	subs  map[int]*subscriber
	nextSubID int
}

type subscriber struct {
	queue  chan models.Event
	handler func(models.Event)
}

// subscriberQueueSize bounds the per-handler queue; overflow drops the
// oldest queued event (spec.md §4.1 "bounded per-handler queue; drop-oldest
// on overflow").
const subscriberQueueSize = 256

// New creates a Store rooted at creaturesDir. tailSize <= 0 uses
// DefaultTailSize.
func New(creaturesDir string, tailSize int, log zerolog.Logger) *Store {
	if tailSize <= 0 {
		tailSize = DefaultTailSize
	}
	return &Store{
		creaturesDir: creaturesDir,
		tailSize:     tailSize,
		log:          log.With().Str("component", "events").Logger(),
		tail:         make(map[string][]models.Event),
		subs:         make(map[int]*subscriber),
	}
}

func (s *Store) eventsPath(creature string) string {
	return filepath.Join(s.creaturesDir, creature, ".sys", "events.jsonl")
}

// Append stamps event with an ISO timestamp if absent, appends it to
// `<creaturesDir>/<creature>/.sys/events.jsonl`, updates the bounded tail,
// and notifies subscribers. A durability failure (disk error) is logged and
// swallowed — Append never fails the caller (spec.md §4.1, §7).
func (s *Store) Append(creature string, evt models.Event) models.Event {
	evt.Creature = creature
	evt = evt.WithTimestamp(time.Now())

	s.mu.Lock()
	s.writeLine(creature, evt)
	t := append(s.tail[creature], evt)
	if len(t) > s.tailSize {
		t = t[len(t)-s.tailSize:]
	}
	s.tail[creature] = t
	s.mu.Unlock()

	s.publish(evt)
	return evt
}

func (s *Store) writeLine(creature string, evt models.Event) {
	path := s.eventsPath(creature)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.log.Warn().Err(err).Str("creature", creature).Msg("failed to create .sys directory")
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.log.Warn().Err(err).Str("creature", creature).Msg("failed to open events.jsonl")
		return
	}
	defer f.Close()

	b, err := json.Marshal(evt)
	if err != nil {
		s.log.Warn().Err(err).Str("creature", creature).Msg("failed to marshal event")
		return
	}
	b = append(b, '\n')
	if _, err := f.Write(b); err != nil {
		s.log.Warn().Err(err).Str("creature", creature).Msg("failed to append event")
	}
}

// ReadRecent returns the last n events for a creature, newest last. It
// serves from the in-memory tail when it is fresher/sufficient, otherwise
// re-reads the file. A missing file returns an empty slice, never an error.
func (s *Store) ReadRecent(creature string, n int) []models.Event {
	if n <= 0 {
		return nil
	}

	s.mu.Lock()
	tail := s.tail[creature]
	if len(tail) >= n || (len(tail) > 0 && len(tail) == s.tailSize) {
		out := make([]models.Event, len(tail))
		copy(out, tail)
		s.mu.Unlock()
		if len(out) > n {
			out = out[len(out)-n:]
		}
		return out
	}
	s.mu.Unlock()

	return s.readFromDisk(creature, n)
}

func (s *Store) readFromDisk(creature string, n int) []models.Event {
	f, err := os.Open(s.eventsPath(creature))
	if err != nil {
		return []models.Event{}
	}
	defer f.Close()

	var all []models.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var evt models.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			continue
		}
		all = append(all, evt)
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	if all == nil {
		all = []models.Event{}
	}
	return all
}

// Handler is invoked for every event appended across all creatures, in the
// order each was appended per-creature (spec.md §4.1). Declared as an
// alias so callers that take a bare `func(models.Event)` (pkg/narrator's
// Store seam, pkg/api's SSE subscriber) are satisfied without importing
// this package just to name the type.
type Handler = func(models.Event)

// Subscribe registers handler for every subsequent append. The returned
// function unsubscribes. Handlers run on a dedicated goroutine per
// subscriber fed by a bounded queue so a slow handler never blocks
// publishers (spec.md §4.1, §5).
func (s *Store) Subscribe(handler Handler) (unsubscribe func()) {
	sub := &subscriber{
		queue:   make(chan models.Event, subscriberQueueSize),
		handler: handler,
	}

	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = sub
	s.subMu.Unlock()

	go s.drain(sub)

	return func() {
		s.subMu.Lock()
		if cur, ok := s.subs[id]; ok && cur == sub {
			delete(s.subs, id)
			close(sub.queue)
		}
		s.subMu.Unlock()
	}
}

func (s *Store) drain(sub *subscriber) {
	for evt := range sub.queue {
		sub.handler(evt)
	}
}

func (s *Store) publish(evt models.Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, sub := range s.subs {
		select {
		case sub.queue <- evt:
		default:
			// Drop-oldest: make room by discarding one queued event, then
			// retry once. If the queue drained concurrently this still
			// succeeds; if it's still full (pathological handler) the event
			// is dropped and logged.
			select {
			case <-sub.queue:
			default:
			}
			select {
			case sub.queue <- evt:
			default:
				s.log.Warn().Str("creature", evt.Creature).Msg("subscriber queue overflow, dropping event")
			}
		}
	}
}
