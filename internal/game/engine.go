package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pairs/internal/layout"
	"pairs/internal/score"
	"pairs/internal/snapshot"
)

// Engine runs one board of the pairs game.
//
// All board, queue and score mutation happens under mu. Timed waits (reveal and hide
// effects, the settle delay, the mismatch delay) happen in goroutines outside the lock.
// Every goroutine carries the generation it was started in and drops its work once a new
// board has replaced that generation.
type Engine struct {
	opts     Options
	log      zerolog.Logger
	score    *score.Engine
	clock    score.Clock
	effects  EffectPlayer
	sounds   SoundPlayer
	listener Listener

	mu     sync.Mutex
	picker *layout.Picker
	layout layout.Layout
	cards  []*Card
	queue  []*Card
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	over   bool
	closed bool
	wg     sync.WaitGroup
}

// New wires an engine to its collaborators. No board exists until StartNewGame,
// NewRandomGame or Restore is called.
func New(opts Options) *Engine {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		opts:     opts,
		log:      opts.Logger.With().Str("component", "engine").Logger(),
		score:    opts.Score,
		clock:    opts.Clock,
		effects:  opts.Effects,
		sounds:   opts.Sounds,
		listener: opts.Listener,
		picker:   layout.NewPicker(opts.Layouts, opts.Rand),
		layout:   opts.Layout,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// StartNewGame discards the current board, including anything in flight, and deals a
// fresh cols x rows board.
func (e *Engine) StartNewGame(cols, rows int) error {
	l := layout.Layout{Cols: cols, Rows: rows}
	if !l.Valid() {
		return fmt.Errorf("%w: %dx%d", ErrInvalidLayout, cols, rows)
	}
	if !l.Even() {
		return fmt.Errorf("%w: %dx%d", ErrOddLayout, cols, rows)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	pairs := l.Cells() / 2
	ids := make([]int, 0, l.Cells())
	for i := 0; i < pairs; i++ {
		ids = append(ids, i, i)
	}
	if e.opts.Shuffle {
		e.opts.Rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	}

	e.resetLocked(l)
	e.buildLocked(ids)
	e.score.Reset()
	e.picker.Remember(l)

	e.log.Info().
		Uint64("generation", e.gen).
		Int("cols", cols).
		Int("rows", rows).
		Msg("new game")
	return nil
}

// NewRandomGame starts a game on a layout picked from Options.Layouts.
func (e *Engine) NewRandomGame() (layout.Layout, error) {
	e.mu.Lock()
	l := e.picker.Pick(e.opts.Layout)
	e.mu.Unlock()
	return l, e.StartNewGame(l.Cols, l.Rows)
}

// SelectCard reveals the card at index. It returns false, changing nothing, when the
// index is out of range or the card is locked, face up or matched. It never blocks.
func (e *Engine) SelectCard(index int) bool {
	e.mu.Lock()
	if e.closed || index < 0 || index >= len(e.cards) {
		e.mu.Unlock()
		return false
	}
	c := e.cards[index]
	if !c.selectable() {
		e.mu.Unlock()
		return false
	}
	c.beginReveal()
	gen, ctx := e.gen, e.ctx
	e.wg.Add(1)
	e.mu.Unlock()

	e.sounds.PlaySound(SoundFlip)
	done := e.effects.Play(ctx, Effect{Card: index, Kind: EffectReveal, Duration: e.opts.FlipDuration})
	go e.reveal(ctx, gen, c, done)
	return true
}

func (e *Engine) reveal(ctx context.Context, gen uint64, c *Card, done <-chan struct{}) {
	defer e.wg.Done()
	select {
	case <-done:
	case <-ctx.Done():
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		e.log.Debug().Uint64("generation", gen).Int("card", c.index).Msg("discarding stale reveal")
		return
	}
	c.completeReveal()
	e.enqueueLocked(c)
}

// enqueueLocked appends c to the selection queue and starts a resolution for every
// complete pair at its head.
func (e *Engine) enqueueLocked(c *Card) {
	e.queue = append(e.queue, c)
	for len(e.queue) >= 2 {
		a, b := e.queue[0], e.queue[1]
		e.queue = e.queue[2:]
		e.wg.Add(1)
		go e.resolve(e.ctx, e.gen, a, b)
	}
}

func (e *Engine) resolve(ctx context.Context, gen uint64, a, b *Card) {
	defer e.wg.Done()

	e.mu.Lock()
	if gen != e.gen || a.matched || b.matched {
		e.mu.Unlock()
		e.log.Debug().Uint64("generation", gen).Int("a", a.index).Int("b", b.index).Msg("aborting stale pair")
		return
	}
	a.beginResolve()
	b.beginResolve()
	e.mu.Unlock()

	if !sleep(ctx, e.opts.settleDelay()) {
		return
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	if a.id == b.id {
		e.resolveMatchLocked(ctx, a, b)
		return
	}
	carried := a.restored && b.restored
	if !carried {
		e.score.OnMismatch()
	}
	st := e.score.State()
	e.mu.Unlock()

	if carried {
		e.log.Debug().Int("a", a.index).Int("b", b.index).Msg("hiding restored mismatch")
	} else {
		e.sounds.PlaySound(SoundMismatch)
		e.listener.OnMismatch(a.index, b.index, st)
	}

	if !sleep(ctx, e.opts.MismatchDelay) {
		return
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	a.beginHide()
	b.beginHide()
	e.mu.Unlock()

	hideA := e.effects.Play(ctx, Effect{Card: a.index, Kind: EffectHide, Duration: e.opts.FlipDuration})
	hideB := e.effects.Play(ctx, Effect{Card: b.index, Kind: EffectHide, Duration: e.opts.FlipDuration})
	for _, done := range []<-chan struct{}{hideA, hideB} {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return
	}
	a.completeHide()
	b.completeHide()
}

// resolveMatchLocked is entered with mu held and releases it.
func (e *Engine) resolveMatchLocked(ctx context.Context, a, b *Card) {
	a.markMatched()
	b.markMatched()
	earned := e.score.OnMatch(e.clock.Now())
	st := e.score.State()

	finished := !e.over && e.allMatchedLocked()
	var final score.State
	if finished {
		e.over = true
		e.score.OnGameOver()
		final = e.score.State()
	}
	best, raised := e.score.TakePendingBest()
	gen := e.gen
	e.mu.Unlock()

	if raised {
		// store I/O stays outside the engine lock
		stored := e.score.SaveBest(best)
		st.Best = max(st.Best, stored)
		final.Best = max(final.Best, stored)
		e.mu.Lock()
		e.score.ObserveBest(stored)
		e.mu.Unlock()
	}

	// removal is fire-and-forget
	e.effects.Play(ctx, Effect{Card: a.index, Kind: EffectRemove, Duration: e.opts.FlipDuration})
	e.effects.Play(ctx, Effect{Card: b.index, Kind: EffectRemove, Duration: e.opts.FlipDuration})

	e.sounds.PlaySound(SoundMatch)
	e.listener.OnMatch(a.index, b.index, st)
	e.log.Debug().Int("a", a.index).Int("b", b.index).Int("earned", earned).Int("combo", st.Combo).Msg("match")

	if finished {
		e.sounds.PlaySound(SoundGameOver)
		e.listener.OnGameOver(final)
		e.log.Info().Uint64("generation", gen).Int("score", final.Current).Int("best", final.Best).Msg("game over")
	}
}

// Snapshot captures the board and score.
func (e *Engine) Snapshot() snapshot.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	cards := make([]snapshot.Card, len(e.cards))
	for i, c := range e.cards {
		cards[i] = snapshot.Card{ID: c.id, FaceUp: c.faceUp, Matched: c.matched}
	}
	return snapshot.Capture(e.layout.Cols, e.layout.Rows, cards, e.score.State())
}

// Restore replaces the board and score with s. A malformed snapshot is rejected before
// anything changes. Face-up unmatched cards are queued again in index order so their
// pairs resolve as usual, except that two restored cards that do not match are hidden
// without a second penalty.
func (e *Engine) Restore(s snapshot.Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	l := layout.Layout{Cols: s.Cols, Rows: s.Rows}
	e.resetLocked(l)
	e.buildLocked(s.CardOrder)
	for i, c := range s.Cards() {
		e.cards[i].restore(c.FaceUp, c.Matched)
	}
	e.score.Load(s.ScoreState())
	e.over = e.allMatchedLocked()
	e.picker.Remember(l)

	for _, c := range e.cards {
		if c.faceUp && !c.matched {
			e.enqueueLocked(c)
		}
	}

	e.log.Info().
		Uint64("generation", e.gen).
		Int("cols", s.Cols).
		Int("rows", s.Rows).
		Int("matched", len(s.MatchedIndices)).
		Msg("restored game")
	return nil
}

// Close cancels everything in flight and waits for it to stop.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.gen++
	e.cancel()
	e.mu.Unlock()
	e.wg.Wait()
}

// Cards returns a copy of every card in board order.
func (e *Engine) Cards() []CardView {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]CardView, len(e.cards))
	for i, c := range e.cards {
		out[i] = c.view()
	}
	return out
}

// CardOrder returns the pair id at every position.
func (e *Engine) CardOrder() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int, len(e.cards))
	for i, c := range e.cards {
		out[i] = c.id
	}
	return out
}

// MatchedIndices returns the positions of matched cards.
func (e *Engine) MatchedIndices() []int {
	return e.indices(func(c *Card) bool { return c.matched })
}

// FaceUpIndices returns the positions of face-up cards that are not matched.
func (e *Engine) FaceUpIndices() []int {
	return e.indices(func(c *Card) bool { return c.faceUp && !c.matched })
}

func (e *Engine) indices(keep func(*Card) bool) []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := []int{}
	for i, c := range e.cards {
		if keep(c) {
			out = append(out, i)
		}
	}
	return out
}

// Layout returns the current grid shape.
func (e *Engine) Layout() layout.Layout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layout
}

// Layouts returns the layouts NewRandomGame chooses from.
func (e *Engine) Layouts() []layout.Layout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.picker.Layouts()
}

// CardSize returns the rendered card size for the current layout.
func (e *Engine) CardSize() layout.Size {
	e.mu.Lock()
	defer e.mu.Unlock()
	return layout.CardSize(e.opts.Area, e.layout.Cols, e.layout.Rows, e.opts.Spacing, e.opts.CardAspect)
}

// Score returns the current score state.
func (e *Engine) Score() score.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score.State()
}

// GameOver reports whether every card on the board is matched.
func (e *Engine) GameOver() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.over
}

// Generation identifies the current board.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

// Pending returns the number of face-up cards waiting for a partner.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// resetLocked invalidates the current board and everything still running against it.
func (e *Engine) resetLocked(l layout.Layout) {
	e.cancel()
	e.gen++
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.layout = l
	e.cards = nil
	e.queue = nil
	e.over = false
}

func (e *Engine) buildLocked(ids []int) {
	pairs := len(ids) / 2
	if n := len(e.opts.Faces); n > 0 && n < pairs {
		e.log.Warn().Int("faces", n).Int("pairs", pairs).Msg("not enough faces; faces will repeat")
	}
	positions := layout.Positions(e.opts.Area, e.layout.Cols, e.layout.Rows, e.opts.Spacing)
	e.cards = make([]*Card, len(ids))
	for i, id := range ids {
		e.cards[i] = newCard(i, id, e.faceFor(id), positions[i])
	}
}

func (e *Engine) faceFor(id int) string {
	if len(e.opts.Faces) == 0 {
		return ""
	}
	return e.opts.Faces[id%len(e.opts.Faces)]
}

func (e *Engine) allMatchedLocked() bool {
	if len(e.cards) == 0 {
		return false
	}
	for _, c := range e.cards {
		if !c.matched {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
