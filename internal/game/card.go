package game

import "pairs/internal/layout"

// CardState is where a card is in its lifecycle.
type CardState string

const (
	StateHidden    CardState = "hidden"
	StateRevealing CardState = "revealing"
	StateFaceUp    CardState = "faceUp"
	StateResolving CardState = "resolving"
	StateHiding    CardState = "hiding"
	StateRemoved   CardState = "removed"
)

// Card is one position on the board. Its fields are guarded by the owning engine's lock.
//
// Invariants: matched implies faceUp, and a card is only selectable when it is neither
// locked, face up nor matched.
type Card struct {
	index   int
	id      int
	face    string
	pos     layout.Point
	faceUp  bool
	matched bool
	locked  bool
	state   CardState

	// restored marks a face-up card carried over from a snapshot. Its earlier pairing
	// was already scored, so a mismatch between two such cards costs nothing.
	restored bool
}

func newCard(index, id int, face string, pos layout.Point) *Card {
	return &Card{index: index, id: id, face: face, pos: pos, state: StateHidden}
}

func (c *Card) selectable() bool {
	return !c.locked && !c.faceUp && !c.matched
}

// beginReveal locks the card for its reveal effect.
func (c *Card) beginReveal() {
	c.locked = true
	c.state = StateRevealing
}

// completeReveal turns the card face up. It stays locked until its pair resolves.
func (c *Card) completeReveal() {
	c.faceUp = true
	c.state = StateFaceUp
}

func (c *Card) beginResolve() {
	c.locked = true
	c.state = StateResolving
}

func (c *Card) markMatched() {
	c.faceUp = true
	c.matched = true
	c.locked = false
	c.restored = false
	c.state = StateRemoved
}

func (c *Card) beginHide() {
	c.state = StateHiding
}

func (c *Card) completeHide() {
	c.faceUp = false
	c.locked = false
	c.restored = false
	c.state = StateHidden
}

// restore applies saved flags without any effect. Restored cards are never locked.
func (c *Card) restore(faceUp, matched bool) {
	c.locked = false
	switch {
	case matched:
		c.faceUp, c.matched, c.state = true, true, StateRemoved
	case faceUp:
		c.faceUp, c.restored, c.state = true, true, StateFaceUp
	}
}

// CardView is a read-only copy of a card.
type CardView struct {
	Index    int          `json:"index"`
	ID       int          `json:"id"`
	Face     string       `json:"face"`
	Position layout.Point `json:"position"`
	FaceUp   bool         `json:"faceUp"`
	Matched  bool         `json:"matched"`
	Locked   bool         `json:"locked"`
	State    CardState    `json:"state"`
}

func (c *Card) view() CardView {
	return CardView{
		Index:    c.index,
		ID:       c.id,
		Face:     c.face,
		Position: c.pos,
		FaceUp:   c.faceUp,
		Matched:  c.matched,
		Locked:   c.locked,
		State:    c.state,
	}
}
