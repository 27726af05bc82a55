package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"pairs/internal/layout"
	"pairs/internal/score"
)

var (
	// ErrNoSnapshot means there is nothing to restore. Callers start fresh.
	ErrNoSnapshot = errors.New("no saved game")
	// ErrMalformed rejects a snapshot as a whole.
	ErrMalformed = errors.New("malformed snapshot")
)

// Snapshot is a point-in-time record of a board and its score.
// The JSON form is the persisted save-slot format.
type Snapshot struct {
	Cols           int     `json:"cols"`
	Rows           int     `json:"rows"`
	Score          int     `json:"score"`
	HighScore      int     `json:"highScore"`
	Combo          int     `json:"combo"`
	LastComboTime  float64 `json:"lastComboTime"`
	CardOrder      []int   `json:"cardOrder"`
	MatchedIndices []int   `json:"matchedIndices"`
	FaceUpIndices  []int   `json:"faceUpIndices"`
}

// Card is the per-position state a snapshot carries.
type Card struct {
	ID      int
	FaceUp  bool
	Matched bool
}

// Capture builds a snapshot from the board in position order.
// Matched cards go to MatchedIndices only; face-up cards that are not matched go to
// FaceUpIndices.
func Capture(cols, rows int, cards []Card, st score.State) Snapshot {
	s := Snapshot{
		Cols:           cols,
		Rows:           rows,
		Score:          st.Current,
		HighScore:      st.Best,
		Combo:          st.Combo,
		LastComboTime:  st.LastMatch,
		CardOrder:      make([]int, len(cards)),
		MatchedIndices: []int{},
		FaceUpIndices:  []int{},
	}
	for i, c := range cards {
		s.CardOrder[i] = c.ID
		switch {
		case c.Matched:
			s.MatchedIndices = append(s.MatchedIndices, i)
		case c.FaceUp:
			s.FaceUpIndices = append(s.FaceUpIndices, i)
		}
	}
	return s
}

// Cards expands a valid snapshot into per-position card state. Matched cards are face up.
func (s Snapshot) Cards() []Card {
	out := make([]Card, len(s.CardOrder))
	for i, id := range s.CardOrder {
		out[i].ID = id
	}
	for _, i := range s.MatchedIndices {
		out[i].Matched = true
		out[i].FaceUp = true
	}
	for _, i := range s.FaceUpIndices {
		out[i].FaceUp = true
	}
	return out
}

// ScoreState returns the score fields.
func (s Snapshot) ScoreState() score.State {
	return score.State{
		Current:   s.Score,
		Best:      s.HighScore,
		Combo:     s.Combo,
		LastMatch: s.LastComboTime,
	}
}

// Validate checks every structural invariant. Any violation rejects the whole snapshot.
func (s Snapshot) Validate() error {
	if !(layout.Layout{Cols: s.Cols, Rows: s.Rows}).Valid() {
		return fmt.Errorf("%w: grid %dx%d", ErrMalformed, s.Cols, s.Rows)
	}
	n := s.Cols * s.Rows
	if len(s.CardOrder) != n {
		return fmt.Errorf("%w: cardOrder has %d entries, want %d", ErrMalformed, len(s.CardOrder), n)
	}
	if s.Score < 0 || s.HighScore < 0 || s.Combo < 0 {
		return fmt.Errorf("%w: negative score field", ErrMalformed)
	}

	counts := make(map[int]int, n/2)
	for i, id := range s.CardOrder {
		if id < 0 {
			return fmt.Errorf("%w: negative pair id at %d", ErrMalformed, i)
		}
		counts[id]++
	}
	for id, c := range counts {
		if c != 2 {
			return fmt.Errorf("%w: pair id %d appears %d times", ErrMalformed, id, c)
		}
	}

	seen := make(map[int]string, len(s.MatchedIndices)+len(s.FaceUpIndices))
	check := func(name string, idx []int) error {
		for _, i := range idx {
			if i < 0 || i >= n {
				return fmt.Errorf("%w: %s index %d out of range", ErrMalformed, name, i)
			}
			if prev, dup := seen[i]; dup {
				return fmt.Errorf("%w: index %d in both %s and %s", ErrMalformed, i, prev, name)
			}
			seen[i] = name
		}
		return nil
	}
	if err := check("matchedIndices", s.MatchedIndices); err != nil {
		return err
	}
	return check("faceUpIndices", s.FaceUpIndices)
}

// Equal reports whether two snapshots describe the same board and score.
// Index sets compare as sets.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.Cols == o.Cols && s.Rows == o.Rows &&
		s.Score == o.Score && s.HighScore == o.HighScore &&
		s.Combo == o.Combo && s.LastComboTime == o.LastComboTime &&
		slices.Equal(s.CardOrder, o.CardOrder) &&
		sameSet(s.MatchedIndices, o.MatchedIndices) &&
		sameSet(s.FaceUpIndices, o.FaceUpIndices)
}

func sameSet(a, b []int) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// Encode renders the snapshot as its persisted JSON record.
func Encode(s Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses and validates a persisted record. Empty input means no save exists.
func Decode(data []byte) (Snapshot, error) {
	if len(data) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}
