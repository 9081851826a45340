package spectrum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSortsAndMerges(t *testing.T) {
	s := New([]Peak{
		{Mz: 3, Intens: 1},
		{Mz: 1, Intens: 2},
		{Mz: 3, Intens: 4},
		{Mz: 2, Intens: 3},
	})
	require.Len(t, s.Peaks, 3)
	assert.Equal(t, []Peak{{1, 2}, {2, 3}, {3, 5}}, s.Peaks)
	assert.NoError(t, s.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		peaks []Peak
		want  error
	}{
		{"ok", []Peak{{1, 1}, {2, 0}}, nil},
		{"negative mass", []Peak{{-1, 1}}, ErrNegativeMass},
		{"negative intensity", []Peak{{1, -0.5}}, ErrNegativeIntensity},
		{"unsorted", []Peak{{2, 1}, {1, 1}}, ErrUnsorted},
		{"duplicate mass", []Peak{{1, 1}, {1, 1}}, ErrUnsorted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &Spectrum{Peaks: tc.peaks}
			if tc.want == nil {
				assert.NoError(t, s.Validate())
			} else {
				assert.ErrorIs(t, s.Validate(), tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	s := New([]Peak{{1, 2}, {2, 6}})
	assert.ErrorIs(t, s.CheckNormalized(), ErrNotNormalized)

	s.Normalize()
	require.NoError(t, s.CheckNormalized())
	assert.InDelta(t, 0.25, s.Peaks[0].Intens, 1e-12)
	assert.InDelta(t, 0.75, s.Peaks[1].Intens, 1e-12)

	// Zero ion current stays untouched instead of dividing by zero.
	z := New([]Peak{{1, 0}})
	z.Normalize()
	assert.Equal(t, 0.0, z.Peaks[0].Intens)
}

func TestModalPeak(t *testing.T) {
	s := New([]Peak{{1, 0.2}, {2, 0.5}, {3, 0.5}, {4, 0.1}})
	// Ties resolve to the lowest mass.
	assert.Equal(t, Peak{2, 0.5}, s.ModalPeak())
}

func TestExtractRange(t *testing.T) {
	s := New([]Peak{{1, 1}, {2, 1}, {3, 1}, {4, 1}})

	assert.Equal(t, []Peak{{2, 1}, {3, 1}}, s.ExtractRange(1.5, 3))
	assert.Empty(t, s.ExtractRange(4.5, 9))
	assert.Len(t, s.ExtractRange(0, 10), 4)
}

func TestClosest(t *testing.T) {
	s := New([]Peak{{1, 1}, {2, 1}, {10, 1}})

	assert.Equal(t, 1.0, s.Closest(-5).Mz)
	assert.Equal(t, 1.0, s.Closest(1.4).Mz)
	assert.Equal(t, 2.0, s.Closest(1.6).Mz)
	assert.Equal(t, 2.0, s.Closest(2).Mz)
	assert.Equal(t, 10.0, s.Closest(99).Mz)
	// Midpoint ties break toward the lower mass.
	assert.Equal(t, 1.0, s.Closest(1.5).Mz)
}
