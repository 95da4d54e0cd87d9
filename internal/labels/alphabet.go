// Package labels converts between raw label strings and the fixed-length,
// space-padded character sequences the classifier is trained on.
package labels

import (
	"fmt"

	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

// Pad is the symbol used to right-pad short labels. It must be part of every
// alphabet.
const Pad = ' '

// DefaultSymbols is the stock character set: ASCII letters (lower then upper
// case), digits and the space character.
const DefaultSymbols = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 "

// Alphabet is an ordered, duplicate-free set of symbols. The position of a
// symbol is the class index the classifier emits for it.
type Alphabet struct {
	symbols []rune
	index   map[rune]int
}

// NewAlphabet builds an alphabet from the runes of symbols, in order.
func NewAlphabet(symbols string) (*Alphabet, error) {
	return FromRunes([]rune(symbols))
}

// FromRunes builds an alphabet from an ordered rune slice.
func FromRunes(symbols []rune) (*Alphabet, error) {
	if len(symbols) == 0 {
		return nil, ocrerr.Configf("alphabet is empty")
	}
	a := &Alphabet{
		symbols: make([]rune, len(symbols)),
		index:   make(map[rune]int, len(symbols)),
	}
	copy(a.symbols, symbols)
	for i, r := range a.symbols {
		if _, dup := a.index[r]; dup {
			return nil, ocrerr.Configf("alphabet symbol %q appears more than once", r)
		}
		a.index[r] = i
	}
	if _, ok := a.index[Pad]; !ok {
		return nil, ocrerr.Configf("alphabet must contain the pad symbol %q", Pad)
	}
	return a, nil
}

// DefaultAlphabet returns the alphabet built from DefaultSymbols.
func DefaultAlphabet() *Alphabet {
	a, err := NewAlphabet(DefaultSymbols)
	if err != nil {
		panic(fmt.Sprintf("labels: default alphabet: %v", err))
	}
	return a
}

// Len returns the number of classes (NC).
func (a *Alphabet) Len() int { return len(a.symbols) }

// Symbols returns a copy of the ordered symbol list.
func (a *Alphabet) Symbols() []rune {
	out := make([]rune, len(a.symbols))
	copy(out, a.symbols)
	return out
}

// Symbol returns the symbol for class index i.
func (a *Alphabet) Symbol(i int) rune { return a.symbols[i] }

// Index returns the class index of r.
func (a *Alphabet) Index(r rune) (int, bool) {
	i, ok := a.index[r]
	return i, ok
}

// Contains reports whether r belongs to the alphabet.
func (a *Alphabet) Contains(r rune) bool {
	_, ok := a.index[r]
	return ok
}

// Equal reports whether both alphabets hold the same symbols in the same order.
func (a *Alphabet) Equal(b *Alphabet) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.symbols) != len(b.symbols) {
		return false
	}
	for i := range a.symbols {
		if a.symbols[i] != b.symbols[i] {
			return false
		}
	}
	return true
}

func (a *Alphabet) String() string { return string(a.symbols) }
