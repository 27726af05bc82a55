package score

import (
	"sync"
	"time"
)

// DefaultBestKey is the preference key the best score is stored under.
const DefaultBestKey = "best_score"

// Store is the host's persistent integer store. Only the best score lives here.
type Store interface {
	GetInt(key string, def int) int
	SetInt(key string, value int)
}

// Clock returns a monotonic timestamp in seconds.
type Clock interface {
	Now() float64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() float64

func (f ClockFunc) Now() float64 { return f() }

type systemClock struct {
	base  float64
	start time.Time
}

// SystemClock returns a clock that is monotonic within the process and anchored to the
// Unix epoch, so timestamps written by one process still compare against another's.
func SystemClock() Clock {
	now := time.Now()
	return &systemClock{base: float64(now.UnixNano()) / 1e9, start: now}
}

func (c *systemClock) Now() float64 {
	return c.base + time.Since(c.start).Seconds()
}

// Config holds scoring parameters.
type Config struct {
	BasePoints  int
	ComboWindow time.Duration
	BestKey     string
}

// DefaultConfig returns the standard scoring parameters.
func DefaultConfig() Config {
	return Config{BasePoints: 100, ComboWindow: 3 * time.Second, BestKey: DefaultBestKey}
}

// State is the externally visible score state.
type State struct {
	Current   int     `json:"score"`
	Best      int     `json:"highScore"`
	Combo     int     `json:"combo"`
	LastMatch float64 `json:"lastComboTime"`
}

// Engine tracks the current score, best score and combo counter.
// It has no internal locking; the owner serializes calls. SaveBest is the exception: it
// only touches the store and may run while other calls are in progress.
type Engine struct {
	cfg     Config
	store   Store
	state   State
	pending bool
}

// bestMu serializes the read-compare-write of the stored best across every engine
// sharing a store in this process.
var bestMu sync.Mutex

// NewEngine creates a score engine. The best score is read from store when one is given.
func NewEngine(cfg Config, store Store) *Engine {
	if cfg.BestKey == "" {
		cfg.BestKey = DefaultBestKey
	}
	e := &Engine{cfg: cfg, store: store}
	if store != nil {
		e.state.Best = store.GetInt(cfg.BestKey, 0)
	}
	return e
}

// Config returns the engine's parameters.
func (e *Engine) Config() Config { return e.cfg }

// State returns a copy of the current state.
func (e *Engine) State() State { return e.state }

// OnMatch records a match at time now and returns the points earned. A new best is
// held in State and reported by TakePendingBest; it is not written to the store here.
// A match within the combo window of the previous one extends the combo; anything else
// starts a new one at 1. A combo of 0 (fresh or after a mismatch) always restarts at 1.
func (e *Engine) OnMatch(now float64) int {
	if now-e.state.LastMatch <= e.cfg.ComboWindow.Seconds() {
		e.state.Combo++
	} else {
		e.state.Combo = 1
	}
	e.state.LastMatch = now
	earned := e.cfg.BasePoints * e.state.Combo
	e.state.Current += earned
	e.raiseBest()
	return earned
}

// OnMismatch breaks the combo and applies the mismatch penalty.
func (e *Engine) OnMismatch() {
	e.state.Combo = 0
	e.state.Current = max(0, e.state.Current-e.cfg.BasePoints/4)
}

// OnGameOver reconciles the best score one final time.
func (e *Engine) OnGameOver() {
	e.raiseBest()
}

// Reset clears the current score and combo. The best score survives.
func (e *Engine) Reset() {
	e.state.Current = 0
	e.state.Combo = 0
}

// Load replaces the state with s verbatim. Nothing is written to the store.
func (e *Engine) Load(s State) {
	e.state = s
	e.pending = false
}

func (e *Engine) raiseBest() {
	if e.state.Current <= e.state.Best {
		return
	}
	e.state.Best = e.state.Current
	e.pending = true
}

// TakePendingBest returns the best score raised since the last call, if any.
func (e *Engine) TakePendingBest() (int, bool) {
	if !e.pending {
		return 0, false
	}
	e.pending = false
	return e.state.Best, true
}

// SaveBest raises the stored best to best unless the store already holds more, and
// returns the stored value. The stored best never decreases.
func (e *Engine) SaveBest(best int) int {
	if e.store == nil {
		return best
	}
	bestMu.Lock()
	defer bestMu.Unlock()
	stored := e.store.GetInt(e.cfg.BestKey, 0)
	if best <= stored {
		return stored
	}
	e.store.SetInt(e.cfg.BestKey, best)
	return best
}

// ObserveBest lifts the in-memory best to a value seen in the store.
func (e *Engine) ObserveBest(best int) {
	e.state.Best = max(e.state.Best, best)
}

// Flush writes a pending best to the store. It is for owners that call the engine from
// a single goroutine; the match engine does the same steps around its own lock.
func (e *Engine) Flush() {
	if best, ok := e.TakePendingBest(); ok {
		e.ObserveBest(e.SaveBest(best))
	}
}
