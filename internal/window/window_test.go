package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AhmedBakrXI/GeoMap/internal/model"
)

func rec(id int64, ts string) model.Record {
	if ts == "" {
		return model.Record{ID: id}
	}
	return model.Record{ID: id, Time: &ts}
}

func ids(recs []model.Record) []int64 {
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestFilter_FirstHalfOfThree(t *testing.T) {
	points := []model.Record{
		rec(3, "2025-01-01T12:00:00"),
		rec(1, "2025-01-01T10:00:00"),
		rec(2, "2025-01-01T11:00:00"),
	}

	got := Filter(points, 0, 50)
	assert.Equal(t, []int64{1, 2}, ids(got))

	// Input order is untouched.
	assert.Equal(t, []int64{3, 1, 2}, ids(points))
}

func TestFilter_Table(t *testing.T) {
	points := make([]model.Record, 0, 11)
	for i := 0; i <= 10; i++ {
		points = append(points, rec(int64(i), "2025-01-01T10:00:"+twoDigits(i)))
	}

	tests := []struct {
		name       string
		start, end float64
		want       []int64
	}{
		{"full", 0, 100, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{"single first", 0, 0, []int64{0}},
		{"single last", 100, 100, []int64{10}},
		{"middle", 30, 50, []int64{3, 4, 5}},
		{"rounding", 14, 26, []int64{1, 2, 3}},
		{"clamped", -20, 140, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{"start past end collapses", 80, 20, []int64{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Filter(points, tt.start, tt.end)))
		})
	}
}

func TestFilter_DropsUntimedPoints(t *testing.T) {
	points := []model.Record{
		rec(1, "2025-01-01T10:00:00"),
		rec(2, ""),
		rec(3, "2025-01-01T09:00:00"),
	}
	assert.Equal(t, []int64{3, 1}, ids(Filter(points, 0, 100)))
}

func TestFilter_EmptyInput(t *testing.T) {
	got := Filter(nil, 0, 100)
	require.NotNil(t, got)
	assert.Empty(t, got)

	got = Filter([]model.Record{rec(1, "")}, 0, 100)
	assert.Empty(t, got)
}

func TestFilter_StableUnderTies(t *testing.T) {
	same := "2025-01-01T10:00:00"
	points := []model.Record{
		rec(5, same),
		rec(2, same),
		rec(9, "2025-01-01T09:59:59"),
		rec(7, same),
	}
	assert.Equal(t, []int64{9, 5, 2, 7}, ids(Filter(points, 0, 100)))
}

func TestFilter_Monotonic(t *testing.T) {
	points := make([]model.Record, 0, 37)
	for i := 0; i < 37; i++ {
		points = append(points, rec(int64(i), "2025-01-01T10:00:"+twoDigits(i)))
	}

	steps := []float64{0, 5, 12.5, 25, 33.3, 50, 66.7, 75, 90, 99.9, 100}
	for _, s1 := range steps {
		for _, s2 := range steps {
			for _, e1 := range steps {
				for _, e2 := range steps {
					if s1 > s2 || e1 > e2 || s2 > e1 {
						continue
					}
					outer := Filter(points, s1, e2)
					inner := Filter(points, s2, e1)
					assert.LessOrEqual(t, len(inner), len(outer), "[%g,%g] within [%g,%g]", s2, e1, s1, e2)
					assert.Subset(t, ids(outer), ids(inner))
				}
			}
		}
	}
}

func TestBounds_Validate(t *testing.T) {
	assert.NoError(t, Full.Validate())
	assert.NoError(t, Bounds{Start: 40, End: 40}.Validate())

	assert.ErrorIs(t, Bounds{Start: -1, End: 10}.Validate(), ErrInvalidBounds)
	assert.ErrorIs(t, Bounds{Start: 0, End: 100.5}.Validate(), ErrInvalidBounds)
	assert.ErrorIs(t, Bounds{Start: 60, End: 40}.Validate(), ErrInvalidBounds)
}

func TestRange(t *testing.T) {
	_, _, ok := Range(nil)
	assert.False(t, ok)

	w := Filter([]model.Record{
		rec(2, "2025-01-01T11:00:00"),
		rec(1, "2025-01-01T10:00:00"),
	}, 0, 100)
	first, last, ok := Range(w)
	require.True(t, ok)
	assert.Equal(t, "2025-01-01T10:00:00", first)
	assert.Equal(t, "2025-01-01T11:00:00", last)
}

func twoDigits(i int) string {
	return string([]byte{byte('0' + i/10), byte('0' + i%10)})
}
