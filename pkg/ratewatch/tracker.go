// Package ratewatch tracks per-client request frequency over sliding time
// windows. It powers the advisory monitoring layer; it never decides
// whether a request is admitted.
package ratewatch

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	defaultIdleEviction    = 30 * time.Minute
	defaultCleanupInterval = 5 * time.Minute
	initialWindowCapacity  = 16
)

// Tracker owns one sliding window of event timestamps per client
// identifier. Windows are created lazily on first Record and evicted
// wholesale once a client has been idle longer than the configured TTL.
// The client registry is a sync.Map so new clients never contend with
// established ones.
type Tracker struct {
	windows  sync.Map // client id -> *window
	idleTTL  time.Duration
	interval time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// Options tune tracker housekeeping. The zero value selects defaults.
type Options struct {
	// IdleEviction is how long a client may stay silent before its entry
	// is removed entirely.
	IdleEviction time.Duration
	// CleanupInterval is how often the eviction sweep runs.
	CleanupInterval time.Duration
	Logger          *slog.Logger
}

// NewTracker creates a tracker and starts its background eviction loop.
// Callers must Stop it during shutdown.
func NewTracker(opts Options) *Tracker {
	if opts.IdleEviction <= 0 {
		opts.IdleEviction = defaultIdleEviction
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	t := &Tracker{
		idleTTL:  opts.IdleEviction,
		interval: opts.CleanupInterval,
		logger:   opts.Logger,
		stop:     make(chan struct{}),
	}
	go t.evictionLoop()
	return t
}

// Record appends an event timestamp to the client's window, creating the
// window on first use. Timestamps are expected in non-decreasing order
// per client; out-of-order stamps within clock-skew range are tolerated
// by insertion at the tail.
func (t *Tracker) Record(clientID string, now time.Time) {
	w := t.acquire(clientID)
	defer w.mu.Unlock()
	w.record(now)
	w.lastAccess = now
}

// Prune drops all entries strictly older than cutoff from the client's
// window. Unknown clients are a no-op.
func (t *Tracker) Prune(clientID string, cutoff time.Time) {
	w, ok := t.lookup(clientID)
	if !ok {
		return
	}
	defer w.mu.Unlock()
	w.prune(cutoff)
}

// CountSince counts entries at or after since. Unknown clients count zero.
func (t *Tracker) CountSince(clientID string, since time.Time) int {
	w, ok := t.lookup(clientID)
	if !ok {
		return 0
	}
	defer w.mu.Unlock()
	return w.countSince(since)
}

// Clients returns the number of tracked client identifiers.
func (t *Tracker) Clients() int {
	n := 0
	t.windows.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Stop terminates the eviction loop. Safe to call more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// acquire returns the client's window with its mutex held, creating it if
// needed. A window marked dead by the eviction sweep is replaced.
func (t *Tracker) acquire(clientID string) *window {
	for {
		v, _ := t.windows.LoadOrStore(clientID, newWindow())
		w := v.(*window)
		w.mu.Lock()
		if !w.dead {
			return w
		}
		w.mu.Unlock()
		t.windows.CompareAndDelete(clientID, v)
	}
}

// lookup returns an existing live window with its mutex held.
func (t *Tracker) lookup(clientID string) (*window, bool) {
	v, ok := t.windows.Load(clientID)
	if !ok {
		return nil, false
	}
	w := v.(*window)
	w.mu.Lock()
	if w.dead {
		w.mu.Unlock()
		return nil, false
	}
	return w, true
}

func (t *Tracker) evictionLoop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.evictIdle(time.Now())
		case <-t.stop:
			return
		}
	}
}

// evictIdle removes whole entries for clients idle longer than the TTL,
// not just their timestamps, so the registry cannot grow without bound
// under many ephemeral client identifiers.
func (t *Tracker) evictIdle(now time.Time) {
	removed := 0
	t.windows.Range(func(key, v any) bool {
		w := v.(*window)
		w.mu.Lock()
		if !w.dead && now.Sub(w.lastAccess) > t.idleTTL {
			w.dead = true
			w.mu.Unlock()
			t.windows.CompareAndDelete(key, v)
			removed++
			return true
		}
		w.mu.Unlock()
		return true
	})

	if removed > 0 {
		t.logger.Debug("evicted idle rate windows",
			"removed", removed,
			"remaining", t.Clients(),
		)
	}
}

// window is a growable ring buffer of event timestamps, kept in ascending
// order. head indexes the oldest entry; count is the number of live
// entries.
type window struct {
	mu         sync.Mutex
	buf        []time.Time
	head       int
	count      int
	lastAccess time.Time
	dead       bool
}

func newWindow() *window {
	return &window{buf: make([]time.Time, initialWindowCapacity)}
}

func (w *window) record(t time.Time) {
	if w.count == len(w.buf) {
		w.grow()
	}
	w.buf[(w.head+w.count)%len(w.buf)] = t
	w.count++
}

// grow doubles the ring, unrolling it so the oldest entry lands at
// index zero.
func (w *window) grow() {
	next := make([]time.Time, len(w.buf)*2)
	for i := 0; i < w.count; i++ {
		next[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	w.buf = next
	w.head = 0
}

func (w *window) prune(cutoff time.Time) {
	for w.count > 0 && w.buf[w.head].Before(cutoff) {
		w.head = (w.head + 1) % len(w.buf)
		w.count--
	}
}

func (w *window) countSince(since time.Time) int {
	// Entries are sorted ascending, so the first index at or after
	// `since` determines the count.
	first := sort.Search(w.count, func(i int) bool {
		return !w.buf[(w.head+i)%len(w.buf)].Before(since)
	})
	return w.count - first
}
