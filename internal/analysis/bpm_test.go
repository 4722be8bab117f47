package analysis

import (
	"math"
	"testing"
)

func TestCorrectBPM(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want float64
		ok   bool
	}{
		{"in range low edge", 40, 40, true},
		{"in range", 128, 128, true},
		{"in range high edge", 250, 250, true},
		{"half time", 30, 60, true},
		{"half time low edge", 20, 40, true},
		{"double time", 300, 150, true},
		{"double time high edge", 500, 250, true},
		{"too slow", 19.9, 0, false},
		{"too fast", 500.1, 0, false},
		{"nan", math.NaN(), 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := CorrectBPM(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("CorrectBPM(%v) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestEstimateBPM(t *testing.T) {
	cases := []struct {
		name     string
		beats    []float64
		detector float64
		want     float64
		ok       bool
	}{
		{"beats preferred", []float64{0, 0.5, 1.0, 1.5}, 90, 120, true},
		{"slow beats doubled", []float64{0, 2, 4}, 0, 60, true},
		{"single beat uses detector", []float64{1}, 97, 97, true},
		{"detector out of range", nil, 260, 0, false},
		{"implausible beats fall back", []float64{0, 5}, 100, 100, true},
		{"nothing usable", []float64{0, 5}, 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := EstimateBPM(tc.beats, tc.detector)
			if ok != tc.ok || math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("EstimateBPM = %v, %v; want %v, %v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestRoundBPM(t *testing.T) {
	if RoundBPM(127.5) != 128 || RoundBPM(127.49) != 127 {
		t.Fatal("unexpected rounding")
	}
}
