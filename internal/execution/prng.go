package execution

// PRNG is a 32-bit linear congruential generator. The friction draws of the
// fill simulator come from here exclusively, so a run's outcome depends only
// on the seed and the fill sequence.
type PRNG struct {
	state uint32
}

// NewPRNG seeds a generator.
func NewPRNG(seed uint32) *PRNG {
	return &PRNG{state: seed}
}

// Float64 returns the next draw in [0, 1) with four decimal digits of
// resolution.
func (p *PRNG) Float64() float64 {
	p.state = p.state*1103515245 + 12345
	return float64(p.state%10000) / 10000.0
}
