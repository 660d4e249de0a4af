package domain_test

import (
	"testing"
	"time"

	"github.com/couchcryptid/race-weather-etl/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestKmhToKnots(t *testing.T) {
	tests := []struct {
		name string
		kmh  float64
		want float64
	}{
		{name: "exact knot definition", kmh: 18.52, want: 10.0},
		{name: "zero", kmh: 0, want: 0},
		{name: "rounds to one decimal", kmh: 10, want: 5.4}, // 5.3995...
		{name: "rounds up", kmh: 20, want: 10.8},            // 10.799...
		{name: "typical gust", kmh: 55.5, want: 30.0},       // 29.967...
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, domain.KmhToKnots(tt.kmh), 1e-9)
		})
	}
}

func TestRoundCoord(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{name: "rounds down", in: 45.00004, want: 45.0},
		{name: "rounds up", in: 44.99996, want: 45.0},
		{name: "negative rounds toward zero", in: -1.00004, want: -1.0},
		{name: "negative near boundary", in: -1.00003, want: -1.0},
		{name: "keeps four decimals", in: 12.34567, want: 12.3457},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, domain.RoundCoord(tt.in), 1e-9)
		})
	}
}

func TestNearestIndex(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	day := func(h, m int) time.Time {
		return time.Date(2024, time.November, 10, h, m, 0, 0, paris)
	}

	tests := []struct {
		name   string
		times  []time.Time
		target time.Time
		want   int
	}{
		{
			name:   "empty series",
			times:  nil,
			target: day(10, 40),
			want:   -1,
		},
		{
			name:   "closer to later hour",
			times:  []time.Time{day(10, 0), day(11, 0)},
			target: day(10, 40),
			want:   1,
		},
		{
			name:   "closer to earlier hour",
			times:  []time.Time{day(10, 0), day(11, 0)},
			target: day(10, 20),
			want:   0,
		},
		{
			name:   "tie resolves to earliest",
			times:  []time.Time{day(10, 0), day(11, 0)},
			target: day(10, 30),
			want:   0,
		},
		{
			name:   "exact match",
			times:  []time.Time{day(9, 0), day(10, 0), day(11, 0)},
			target: day(10, 0),
			want:   1,
		},
		{
			name:   "target before series",
			times:  []time.Time{day(3, 0), day(4, 0)},
			target: day(0, 15),
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.NearestIndex(tt.times, tt.target))
		})
	}
}
