// Package effects renders the time based text reveal effects of the chat room:
// a simulated decryption and a typewriter. Effects are plain step machines, the
// Engine drives them with tickers and hands every intermediate frame to a Sink.
package effects

import (
	"math/rand/v2"
)

// Alphabet is the pool random characters are drawn from while decoding.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*()"

// alnumSubset is the number of leading Alphabet characters used in the second phase.
const alnumSubset = 36

type DecodeOptions struct {
	// MaxIterations bounds the number of ticks. The last tick always yields the final text.
	MaxIterations int
	// P1 is the chance of a random alphanumeric over the final character in the second phase.
	P1 float64
	// P2 is the chance of the final character over a random one in the third phase.
	P2 float64
}

func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		MaxIterations: 150,
		P1:            0.9,
		P2:            0.8,
	}
}

// Decoder scrambles a blank buffer towards the final text in three phases.
type Decoder struct {
	final   []rune
	current []rune
	tick    int
	done    bool
	opts    DecodeOptions
	rng     *rand.Rand
}

func NewDecoder(final string, opts DecodeOptions, rng *rand.Rand) *Decoder {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultDecodeOptions().MaxIterations
	}
	f := []rune(final)
	current := make([]rune, len(f))
	for i := range current {
		current[i] = ' '
	}
	return &Decoder{
		final:   f,
		current: current,
		opts:    opts,
		rng:     rng,
	}
}

// Step advances one tick and returns the buffer. done is true once the buffer
// equals the final text; further calls keep returning the final text.
func (d *Decoder) Step() (string, bool) {
	if d.done {
		return string(d.final), true
	}
	d.tick++

	if d.tick >= d.opts.MaxIterations {
		copy(d.current, d.final)
	} else {
		for i, want := range d.final {
			if d.current[i] == want {
				continue
			}
			d.current[i] = d.next(want)
		}
	}

	d.done = string(d.current) == string(d.final)
	return string(d.current), d.done
}

func (d *Decoder) next(want rune) rune {
	max := d.opts.MaxIterations
	switch {
	case d.tick*3 < max:
		return d.random(len(Alphabet))
	case d.tick*3 < 2*max:
		if d.rng.Float64() < d.opts.P1 {
			return d.random(alnumSubset)
		}
		return want
	default:
		if d.rng.Float64() < d.opts.P2 {
			return want
		}
		return d.random(len(Alphabet))
	}
}

func (d *Decoder) random(n int) rune {
	return rune(Alphabet[d.rng.IntN(n)])
}

// Ticks returns how many ticks have been taken.
func (d *Decoder) Ticks() int {
	return d.tick
}

func (d *Decoder) Done() bool {
	return d.done
}
