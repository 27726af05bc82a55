package layout

import "math/rand/v2"

// Picker chooses board layouts at random from an allowed list.
// It is not safe for concurrent use.
type Picker struct {
	valid []Layout
	rng   *rand.Rand
	last  Layout
}

// NewPicker keeps only the even-celled entries of allowed.
func NewPicker(allowed []Layout, rng *rand.Rand) *Picker {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	p := &Picker{rng: rng}
	for _, l := range allowed {
		if l.Valid() && l.Even() {
			p.valid = append(p.valid, l)
		}
	}
	return p
}

// Layouts returns the even-celled layouts the picker chooses from.
func (p *Picker) Layouts() []Layout {
	return append([]Layout(nil), p.valid...)
}

// Pick returns a random valid layout, or fallback when none are configured.
// When more than one choice exists and the draw repeats the previous pick, it draws once
// more and accepts whatever comes out.
func (p *Picker) Pick(fallback Layout) Layout {
	if len(p.valid) == 0 {
		p.last = fallback
		return fallback
	}
	chosen := p.valid[p.rng.IntN(len(p.valid))]
	if len(p.valid) > 1 && chosen == p.last {
		chosen = p.valid[p.rng.IntN(len(p.valid))]
	}
	p.last = chosen
	return chosen
}

// Remember records l as the previous pick, e.g. after an explicit layout was chosen.
func (p *Picker) Remember(l Layout) { p.last = l }
