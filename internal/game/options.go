package game

import (
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"pairs/internal/layout"
	"pairs/internal/score"
)

// Options configures an Engine and wires its collaborators.
//
// New fills in Layout, Area, FlipDuration and every nil collaborator from
// DefaultOptions or a no-op. Spacing, CardAspect, SettleDelay and MismatchDelay keep
// a zero value, and negative Spacing and delays are raised to zero. Shuffle is taken
// as given.
type Options struct {
	Layout     layout.Layout   // fallback when Layouts has no even entry
	Layouts    []layout.Layout // choices for NewRandomGame
	Area       layout.Size
	Spacing    float64
	CardAspect float64

	FlipDuration  time.Duration
	SettleDelay   time.Duration // capped at FlipDuration
	MismatchDelay time.Duration
	Shuffle       bool
	Faces         []string

	Rand     *rand.Rand
	Score    *score.Engine
	Clock    score.Clock
	Effects  EffectPlayer
	Sounds   SoundPlayer
	Listener Listener
	Logger   *zerolog.Logger
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		Layout: layout.Layout{Cols: 4, Rows: 3},
		Layouts: []layout.Layout{
			{Cols: 2, Rows: 2}, {Cols: 2, Rows: 3}, {Cols: 3, Rows: 4},
			{Cols: 4, Rows: 4}, {Cols: 5, Rows: 4}, {Cols: 5, Rows: 6},
		},
		Area:          layout.Size{W: 800, H: 600},
		Spacing:       6,
		CardAspect:    0.75,
		FlipDuration:  250 * time.Millisecond,
		SettleDelay:   120 * time.Millisecond,
		MismatchDelay: 800 * time.Millisecond,
		Shuffle:       true,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if !o.Layout.Valid() || !o.Layout.Even() {
		o.Layout = d.Layout
	}
	if o.Area.W <= 0 || o.Area.H <= 0 {
		o.Area = d.Area
	}
	if o.Spacing < 0 {
		o.Spacing = 0
	}
	if o.FlipDuration <= 0 {
		o.FlipDuration = d.FlipDuration
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.MismatchDelay < 0 {
		o.MismatchDelay = 0
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if o.Score == nil {
		o.Score = score.NewEngine(score.DefaultConfig(), nil)
	}
	if o.Clock == nil {
		o.Clock = score.SystemClock()
	}
	if o.Effects == nil {
		o.Effects = TimedEffects{}
	}
	if o.Sounds == nil {
		o.Sounds = nopSounds{}
	}
	if o.Listener == nil {
		o.Listener = nopListener{}
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	return o
}

func (o Options) settleDelay() time.Duration {
	return min(o.SettleDelay, o.FlipDuration)
}
