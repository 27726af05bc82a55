package game

import (
	"context"
	"errors"
	"time"

	"pairs/internal/score"
)

var (
	// ErrInvalidLayout means a grid dimension is not positive or the grid exceeds
	// layout.MaxCells.
	ErrInvalidLayout = errors.New("layout dimensions must be positive and within the card limit")
	// ErrOddLayout means the grid cannot be filled with pairs.
	ErrOddLayout = errors.New("layout has an odd number of cells")
	// ErrClosed is returned once the engine has been closed.
	ErrClosed = errors.New("engine closed")
)

// EffectKind names a timed card effect.
type EffectKind string

const (
	EffectReveal EffectKind = "reveal"
	EffectHide   EffectKind = "hide"
	EffectRemove EffectKind = "remove"
)

// Effect is one timed effect on one card.
type Effect struct {
	Card     int           `json:"card"`
	Kind     EffectKind    `json:"kind"`
	Duration time.Duration `json:"duration"`
}

// EffectPlayer plays timed effects. The returned channel is closed when the effect has
// finished or ctx is done, whichever comes first.
type EffectPlayer interface {
	Play(ctx context.Context, e Effect) <-chan struct{}
}

// TimedEffects completes every effect after its duration. It is the effect player when
// nothing renders the board.
type TimedEffects struct{}

func (TimedEffects) Play(ctx context.Context, e Effect) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTimer(e.Duration)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}()
	return done
}

// Sound is a discrete sound cue.
type Sound string

const (
	SoundFlip     Sound = "flip"
	SoundMatch    Sound = "match"
	SoundMismatch Sound = "mismatch"
	SoundGameOver Sound = "gameover"
)

// SoundPlayer triggers sound cues. Calls must not block.
type SoundPlayer interface {
	PlaySound(s Sound)
}

// Listener receives engine notifications. Calls are made without the engine lock held,
// so a listener may call back into the engine.
type Listener interface {
	OnMatch(a, b int, st score.State)
	OnMismatch(a, b int, st score.State)
	OnGameOver(st score.State)
}

type nopSounds struct{}

func (nopSounds) PlaySound(Sound) {}

type nopListener struct{}

func (nopListener) OnMatch(int, int, score.State)    {}
func (nopListener) OnMismatch(int, int, score.State) {}
func (nopListener) OnGameOver(score.State)           {}
