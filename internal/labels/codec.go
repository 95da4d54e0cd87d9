package labels

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

// DefaultMaxChars is the number of characters a single patch represents.
const DefaultMaxChars = 64

var (
	// ErrLabelTooLong is returned by Encode for labels longer than MaxChars.
	// Labels are never truncated.
	ErrLabelTooLong = fmt.Errorf("%w: label exceeds max chars", ocrerr.ErrLoad)

	// ErrUnknownSymbol is returned by Encode for labels with runes outside the alphabet.
	ErrUnknownSymbol = fmt.Errorf("%w: label symbol not in alphabet", ocrerr.ErrLoad)
)

// Sequence is a fixed-length run of MaxChars symbols.
type Sequence []rune

// String joins the symbols without trimming padding.
func (s Sequence) String() string { return string(s) }

// Codec encodes raw labels into padded sequences and back.
type Codec struct {
	Alphabet *Alphabet
	MaxChars int
}

// NewCodec validates the pairing of alphabet and sequence length.
func NewCodec(alphabet *Alphabet, maxChars int) (Codec, error) {
	if alphabet == nil {
		return Codec{}, ocrerr.Configf("codec needs an alphabet")
	}
	if maxChars <= 0 {
		return Codec{}, ocrerr.Configf("max chars must be positive, got %d", maxChars)
	}
	return Codec{Alphabet: alphabet, MaxChars: maxChars}, nil
}

// Encode right-pads raw with Pad up to MaxChars.
func (c Codec) Encode(raw string) (Sequence, error) {
	if n := utf8.RuneCountInString(raw); n > c.MaxChars {
		return nil, fmt.Errorf("%w: %q has %d characters, max %d", ErrLabelTooLong, raw, n, c.MaxChars)
	}
	seq := make(Sequence, 0, c.MaxChars)
	for _, r := range raw {
		if !c.Alphabet.Contains(r) {
			return nil, fmt.Errorf("%w: %q in %q", ErrUnknownSymbol, r, raw)
		}
		seq = append(seq, r)
	}
	for len(seq) < c.MaxChars {
		seq = append(seq, Pad)
	}
	return seq, nil
}

// EncodeAll encodes every label, stopping at the first failure.
func (c Codec) EncodeAll(raw []string) ([]Sequence, error) {
	out := make([]Sequence, len(raw))
	for i, s := range raw {
		seq, err := c.Encode(s)
		if err != nil {
			return nil, fmt.Errorf("label %d: %w", i, err)
		}
		out[i] = seq
	}
	return out, nil
}

// Validate checks that seq has the configured length and only alphabet symbols.
func (c Codec) Validate(seq Sequence) error {
	if len(seq) != c.MaxChars {
		return ocrerr.Configf("sequence has %d symbols, want %d", len(seq), c.MaxChars)
	}
	for _, r := range seq {
		if !c.Alphabet.Contains(r) {
			return ocrerr.Configf("sequence symbol %q not in alphabet", r)
		}
	}
	return nil
}

// Decode concatenates the symbols of seq. Trailing pad spaces are kept: patch
// boundaries may legitimately end in whitespace.
func Decode(seq Sequence) string { return string(seq) }

// DecodeAll decodes every sequence.
func DecodeAll(seqs []Sequence) []string {
	out := make([]string, len(seqs))
	for i, s := range seqs {
		out[i] = Decode(s)
	}
	return out
}

// TrimPadding removes trailing pad symbols.
func TrimPadding(s string) string { return strings.TrimRight(s, string(Pad)) }

// IsLabelError reports whether err came from Encode rejecting a label.
func IsLabelError(err error) bool {
	return errors.Is(err, ErrLabelTooLong) || errors.Is(err, ErrUnknownSymbol)
}
