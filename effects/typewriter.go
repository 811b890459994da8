package effects

// Cursor is appended to the text on blink ticks.
const Cursor = "_"

// Typewriter reveals the final text one rune per reveal tick. Reveal ticks and
// blink ticks alternate, blink ticks show the cursor after what has been typed:
// "ok" renders as "o", "o_", "ok", "ok_" and finally "ok".
type Typewriter struct {
	final   []rune
	index   int
	blink   bool
	done    bool
	reveals int
}

func NewTypewriter(final string) *Typewriter {
	return &Typewriter{final: []rune(final)}
}

func (t *Typewriter) Step() (string, bool) {
	if t.done {
		return string(t.final), true
	}
	if t.blink {
		t.blink = false
		return string(t.final[:t.index]) + Cursor, false
	}
	if t.index < len(t.final) {
		t.index++
		t.reveals++
		t.blink = true
		return string(t.final[:t.index]), false
	}
	t.done = true
	return string(t.final), true
}

// Reveals returns the number of ticks that revealed a rune.
func (t *Typewriter) Reveals() int {
	return t.reveals
}

func (t *Typewriter) Done() bool {
	return t.done
}
