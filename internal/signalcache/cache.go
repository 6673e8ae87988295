// Package signalcache holds the current published snapshot of signals.
//
// A Snapshot is immutable once published. Publication swaps a single
// pointer, so readers see either the previous cycle or the next one in
// full, never a mix.
package signalcache

import (
	"io"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"trading-signalsv1/internal/model"
)

// Entry is everything published for one pair.
type Entry struct {
	Signal     model.Signal         `json:"signal"`
	Risk       model.RiskAssessment `json:"risk"`
	Indicators model.IndicatorSet   `json:"indicators"`
}

// Snapshot is the output of one scheduler cycle. Failures maps pairs that
// produced no entry to the error kind (model.ErrorKind) that stopped them.
type Snapshot struct {
	ID          string
	GeneratedAt time.Time
	Entries     map[model.Key]Entry
	Failures    map[model.Key]string
}

// Get returns the entry for key.
func (s *Snapshot) Get(key model.Key) (Entry, bool) {
	e, ok := s.Entries[key]
	return e, ok
}

// Failure returns the recorded failure kind for key.
func (s *Snapshot) Failure(key model.Key) (string, bool) {
	k, ok := s.Failures[key]
	return k, ok
}

// Keys returns the published pairs sorted by symbol, then timeframe rank.
func (s *Snapshot) Keys() []model.Key { return sortedKeys(s.Entries) }

// FailedKeys returns the pairs that failed, in the same order as Keys.
func (s *Snapshot) FailedKeys() []model.Key { return sortedKeys(s.Failures) }

func sortedKeys[V any](m map[model.Key]V) []model.Key {
	keys := make([]model.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b model.Key) int {
		if c := strings.Compare(a.Symbol, b.Symbol); c != 0 {
			return c
		}
		return a.Timeframe.Rank() - b.Timeframe.Rank()
	})
	return keys
}

// Cache publishes snapshots and fans them out to subscribers.
type Cache struct {
	cur atomic.Pointer[Snapshot]

	mu      sync.Mutex
	entropy io.Reader
	subs    map[int]chan *Snapshot
	nextSub int
}

// New returns a cache holding an empty snapshot.
func New() *Cache {
	c := &Cache{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		subs:    make(map[int]chan *Snapshot),
	}
	c.cur.Store(&Snapshot{Entries: map[model.Key]Entry{}, Failures: map[model.Key]string{}})
	return c
}

// NewSnapshot assembles a snapshot with a fresh ULID. The maps are owned by
// the snapshot afterwards and must not be modified.
func (c *Cache) NewSnapshot(at time.Time, entries map[model.Key]Entry, failures map[model.Key]string) *Snapshot {
	if entries == nil {
		entries = map[model.Key]Entry{}
	}
	if failures == nil {
		failures = map[model.Key]string{}
	}
	c.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(at.UTC()), c.entropy)
	c.mu.Unlock()
	return &Snapshot{ID: id.String(), GeneratedAt: at, Entries: entries, Failures: failures}
}

// Publish makes s current and notifies subscribers. A subscriber that has
// not consumed the previous notification gets only the newest one.
func (c *Cache) Publish(s *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur.Store(s)
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

// Current returns the latest snapshot. Never nil.
func (c *Cache) Current() *Snapshot {
	return c.cur.Load()
}

// Get looks key up in the current snapshot.
func (c *Cache) Get(key model.Key) (Entry, bool) {
	return c.Current().Get(key)
}

// Subscribe returns a channel receiving each published snapshot and a
// cancel func that must be called to release it.
func (c *Cache) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}
