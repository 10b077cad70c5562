package api

import "fmt"

// Position is a zero-based line and character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// NewPosition validates and returns a position.
func NewPosition(line, character int) (Position, error) {
	if line < 0 {
		return Position{}, invalid("line must be non-negative, got %d", line)
	}
	if character < 0 {
		return Position{}, invalid("character must be non-negative, got %d", character)
	}
	return Position{Line: line, Character: character}, nil
}

// Compare returns -1, 0 or 1 as p is before, equal to or after other.
func (p Position) Compare(other Position) int {
	switch {
	case p.Line < other.Line:
		return -1
	case p.Line > other.Line:
		return 1
	case p.Character < other.Character:
		return -1
	case p.Character > other.Character:
		return 1
	default:
		return 0
	}
}

// IsBefore reports whether p is strictly before other.
func (p Position) IsBefore(other Position) bool { return p.Compare(other) < 0 }

// IsBeforeOrEqual reports whether p is before or equal to other.
func (p Position) IsBeforeOrEqual(other Position) bool { return p.Compare(other) <= 0 }

// IsAfter reports whether p is strictly after other.
func (p Position) IsAfter(other Position) bool { return p.Compare(other) > 0 }

// IsAfterOrEqual reports whether p is after or equal to other.
func (p Position) IsAfterOrEqual(other Position) bool { return p.Compare(other) >= 0 }

// IsEqual reports whether p equals other.
func (p Position) IsEqual(other Position) bool { return p == other }

// Translate returns p shifted by the given deltas.
func (p Position) Translate(lineDelta, characterDelta int) (Position, error) {
	return NewPosition(p.Line+lineDelta, p.Character+characterDelta)
}

// With returns p with line and character replaced. Negative arguments keep
// the current value.
func (p Position) With(line, character int) Position {
	if line >= 0 {
		p.Line = line
	}
	if character >= 0 {
		p.Character = character
	}
	return p
}

// String returns "(line, character)".
func (p Position) String() string {
	return fmt.Sprintf("(%d, %d)", p.Line, p.Character)
}

// Range is an ordered pair of positions. Start is never after End.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// NewRange returns the range spanning a and b, swapping them if needed.
func NewRange(a, b Position) Range {
	if a.IsAfter(b) {
		a, b = b, a
	}
	return Range{Start: a, End: b}
}

// RangeOf builds a range from line/character pairs.
func RangeOf(startLine, startChar, endLine, endChar int) (Range, error) {
	start, err := NewPosition(startLine, startChar)
	if err != nil {
		return Range{}, err
	}
	end, err := NewPosition(endLine, endChar)
	if err != nil {
		return Range{}, err
	}
	return NewRange(start, end), nil
}

// IsEmpty reports whether start equals end.
func (r Range) IsEmpty() bool { return r.Start == r.End }

// IsSingleLine reports whether the range lies on one line.
func (r Range) IsSingleLine() bool { return r.Start.Line == r.End.Line }

// Contains reports whether p lies within r, bounds included.
func (r Range) Contains(p Position) bool {
	return r.Start.IsBeforeOrEqual(p) && p.IsBeforeOrEqual(r.End)
}

// ContainsRange reports whether other lies entirely within r.
func (r Range) ContainsRange(other Range) bool {
	return r.Contains(other.Start) && r.Contains(other.End)
}

// IsEqual reports whether r equals other.
func (r Range) IsEqual(other Range) bool { return r == other }

// Intersection returns the overlap of r and other. The second result is
// false when the ranges do not overlap or only touch.
func (r Range) Intersection(other Range) (Range, bool) {
	start := r.Start
	if other.Start.IsAfter(start) {
		start = other.Start
	}
	end := r.End
	if other.End.IsBefore(end) {
		end = other.End
	}
	if start.IsAfterOrEqual(end) {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}

// Union returns the smallest range covering r and other.
func (r Range) Union(other Range) Range {
	start := r.Start
	if other.Start.IsBefore(start) {
		start = other.Start
	}
	end := r.End
	if other.End.IsAfter(end) {
		end = other.End
	}
	return Range{Start: start, End: end}
}

// WithStart returns a range from start to r.End, normalized.
func (r Range) WithStart(start Position) Range { return NewRange(start, r.End) }

// WithEnd returns a range from r.Start to end, normalized.
func (r Range) WithEnd(end Position) Range { return NewRange(r.Start, end) }

// String returns "[start, end]".
func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start, r.End)
}

// Selection is a range with a direction: Anchor is where the selection
// started and Active is where the cursor is.
type Selection struct {
	Range
	Anchor Position `json:"anchor"`
	Active Position `json:"active"`
}

// NewSelection builds a selection from anchor to active.
func NewSelection(anchor, active Position) Selection {
	return Selection{
		Range:  NewRange(anchor, active),
		Anchor: anchor,
		Active: active,
	}
}

// IsReversed reports whether the active end precedes the anchor.
func (s Selection) IsReversed() bool {
	return s.Active.IsBefore(s.Anchor)
}
