// Package octet classifies keystroke-level edits of one IPv4 octet field.
package octet

import (
	"errors"
	"strconv"
	"strings"
)

// MaxValue is the largest value an octet may hold.
const MaxValue = 255

// Kind tags a Classification.
type Kind int

const (
	Valid Kind = iota
	AboveRange
	Fractions
)

func (k Kind) String() string {
	switch k {
	case Valid:
		return "valid"
	case AboveRange:
		return "above_range"
	case Fractions:
		return "fractions"
	default:
		return "unknown"
	}
}

// Classification is the verdict on one edit transition.
// CorrectedText is only meaningful for Fractions.
type Classification struct {
	Kind          Kind
	CorrectedText string
}

// Correction returns the text a consumer should put back into the field
// and whether any correction is needed at all.
func (c Classification) Correction() (string, bool) {
	switch c.Kind {
	case AboveRange:
		return strconv.Itoa(MaxValue), true
	case Fractions:
		return c.CorrectedText, true
	default:
		return "", false
	}
}

// Cursor is the edit cursor position after applying Correction: the end of
// the replacement text.
func (c Classification) Cursor() int {
	text, _ := c.Correction()
	return len(text)
}

// Classify inspects the transition from previous to next. The second
// result is false when the transition is suppressed because previous was
// itself invalid, i.e. the edit is the consumer applying a correction.
func Classify(previous, next string) (Classification, bool) {
	switch {
	case isAboveRange(previous) || containsFractions(previous):
		return Classification{}, false
	case isAboveRange(next):
		return Classification{Kind: AboveRange}, true
	case containsFractions(next):
		return Classification{Kind: Fractions, CorrectedText: previous}, true
	default:
		return Classification{Kind: Valid}, true
	}
}

func containsFractions(s string) bool {
	return strings.ContainsAny(s, ".,")
}

// isAboveRange treats anything that is not an integer literal as in range.
// Positive literals too large for 32 bits are still above range.
func isAboveRange(s string) bool {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		var numErr *strconv.NumError
		return errors.As(err, &numErr) && numErr.Err == strconv.ErrRange && !strings.HasPrefix(s, "-")
	}
	return v > MaxValue
}

// Field follows the successive text states of one input field. The first
// state it sees is the initial text and produces no classification.
type Field struct {
	previous string
	seen     bool
}

// NewField returns a field whose initial text is already known.
func NewField(initial string) *Field {
	return &Field{previous: initial, seen: true}
}

// Change records the new text and classifies the edit against the text
// seen before it.
func (f *Field) Change(text string) (Classification, bool) {
	if !f.seen {
		f.previous, f.seen = text, true
		return Classification{}, false
	}
	previous := f.previous
	f.previous = text
	return Classify(previous, text)
}

// Text returns the last recorded text.
func (f *Field) Text() string {
	return f.previous
}
