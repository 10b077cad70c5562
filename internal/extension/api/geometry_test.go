package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pos(line, char int) Position { return Position{Line: line, Character: char} }

func TestNewPositionRejectsNegative(t *testing.T) {
	_, err := NewPosition(-1, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewPosition(0, -1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	p, err := NewPosition(2, 3)
	require.NoError(t, err)
	assert.Equal(t, "(2, 3)", p.String())
}

func TestPositionCompare(t *testing.T) {
	tests := []struct {
		a, b Position
		want int
	}{
		{pos(1, 1), pos(1, 1), 0},
		{pos(0, 9), pos(1, 0), -1},
		{pos(2, 0), pos(1, 9), 1},
		{pos(1, 2), pos(1, 3), -1},
		{pos(1, 4), pos(1, 3), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.a.Compare(tt.b), "%s vs %s", tt.a, tt.b)
	}

	assert.True(t, pos(0, 0).IsBefore(pos(0, 1)))
	assert.True(t, pos(0, 1).IsBeforeOrEqual(pos(0, 1)))
	assert.True(t, pos(1, 0).IsAfter(pos(0, 5)))
	assert.True(t, pos(1, 0).IsAfterOrEqual(pos(1, 0)))
	assert.True(t, pos(3, 3).IsEqual(pos(3, 3)))
}

func TestPositionTranslateAndWith(t *testing.T) {
	p, err := pos(2, 2).Translate(1, -2)
	require.NoError(t, err)
	assert.Equal(t, pos(3, 0), p)

	_, err = pos(0, 0).Translate(-1, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, pos(5, 2), pos(1, 2).With(5, -1))
	assert.Equal(t, pos(1, 7), pos(1, 2).With(-1, 7))
}

func TestRangeNormalizes(t *testing.T) {
	r := NewRange(pos(4, 0), pos(1, 2))
	assert.Equal(t, pos(1, 2), r.Start)
	assert.Equal(t, pos(4, 0), r.End)

	r2, err := RangeOf(0, 0, 0, 5)
	require.NoError(t, err)
	assert.True(t, r2.IsSingleLine())
	assert.False(t, r2.IsEmpty())
	assert.True(t, NewRange(pos(1, 1), pos(1, 1)).IsEmpty())
	assert.Equal(t, "[(0, 0), (0, 5)]", r2.String())

	_, err = RangeOf(0, -1, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRangeContains(t *testing.T) {
	r := NewRange(pos(1, 5), pos(3, 2))

	assert.True(t, r.Contains(pos(1, 5)))
	assert.True(t, r.Contains(pos(2, 100)))
	assert.True(t, r.Contains(pos(3, 2)))
	assert.False(t, r.Contains(pos(1, 4)))
	assert.False(t, r.Contains(pos(3, 3)))
	assert.False(t, r.Contains(pos(0, 9)))

	assert.True(t, r.ContainsRange(NewRange(pos(2, 0), pos(3, 1))))
	assert.False(t, r.ContainsRange(NewRange(pos(0, 0), pos(2, 0))))
}

func TestRangeIntersectionAndUnion(t *testing.T) {
	a := NewRange(pos(0, 0), pos(2, 0))
	b := NewRange(pos(1, 0), pos(3, 0))

	got, ok := a.Intersection(b)
	require.True(t, ok)
	assert.Equal(t, NewRange(pos(1, 0), pos(2, 0)), got)

	_, ok = a.Intersection(NewRange(pos(2, 0), pos(4, 0)))
	assert.False(t, ok, "touching ranges do not intersect")

	_, ok = a.Intersection(NewRange(pos(5, 0), pos(6, 0)))
	assert.False(t, ok)

	assert.Equal(t, NewRange(pos(0, 0), pos(3, 0)), a.Union(b))
	assert.True(t, a.Union(b).IsEqual(b.Union(a)))

	assert.Equal(t, NewRange(pos(0, 0), pos(1, 0)), a.WithEnd(pos(1, 0)))
	assert.Equal(t, NewRange(pos(2, 0), pos(5, 0)), a.WithStart(pos(5, 0)).WithStart(pos(2, 0)).WithEnd(pos(5, 0)))
}

func TestSelection(t *testing.T) {
	s := NewSelection(pos(3, 0), pos(1, 0))
	assert.True(t, s.IsReversed())
	assert.Equal(t, pos(1, 0), s.Start)
	assert.Equal(t, pos(3, 0), s.End)
	assert.False(t, NewSelection(pos(1, 0), pos(3, 0)).IsReversed())
}
