package reactive

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Debouncer delays fn until calls have stopped for d. Use it to coalesce
// bursts of user edits into one ledger write. It does not serialize writes
// against each other; the store's transaction does that.
type Debouncer struct {
	d  time.Duration
	fn func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool

	running sync.Mutex // held while fn runs
}

// Debounce returns a Debouncer for fn.
func Debounce(d time.Duration, fn func()) *Debouncer {
	return &Debouncer{d: d, fn: fn}
}

// Call (re)starts the quiet period. Ignored after Stop.
func (db *Debouncer) Call() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.stopped {
		return
	}
	if db.timer != nil {
		db.timer.Stop()
	}
	db.timer = time.AfterFunc(db.d, db.run)
}

func (db *Debouncer) run() {
	db.running.Lock()
	defer db.running.Unlock()
	db.mu.Lock()
	stopped := db.stopped
	db.mu.Unlock()
	if !stopped {
		db.fn()
	}
}

// Flush runs a pending call now. Reports whether one was pending.
func (db *Debouncer) Flush() bool {
	db.mu.Lock()
	pending := db.timer != nil && db.timer.Stop()
	db.timer = nil
	db.mu.Unlock()
	if pending {
		db.run()
	}
	return pending
}

// Stop drops a pending call and waits for one already running. Later calls
// are ignored. Must not be called from fn.
func (db *Debouncer) Stop() {
	db.mu.Lock()
	db.stopped = true
	if db.timer != nil {
		db.timer.Stop()
		db.timer = nil
	}
	db.mu.Unlock()

	db.running.Lock()
	db.running.Unlock()
}

// Throttler runs fn at most once per interval; extra calls are dropped.
type Throttler struct {
	limiter *rate.Limiter
	fn      func()
}

// Throttle returns a Throttler for fn.
func Throttle(every time.Duration, fn func()) *Throttler {
	return &Throttler{limiter: rate.NewLimiter(rate.Every(every), 1), fn: fn}
}

// Call runs fn if the interval has elapsed. Reports whether it ran.
func (t *Throttler) Call() bool {
	if !t.limiter.Allow() {
		return false
	}
	t.fn()
	return true
}
