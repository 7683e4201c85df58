package audio

import (
	"math"
	"testing"
)

func TestSampleCount(t *testing.T) {
	tests := []struct {
		seconds float64
		want    int
	}{
		{seconds: 0, want: 0},
		{seconds: -1, want: 0},
		{seconds: 1, want: 24000},
		{seconds: 2.5, want: 60000},
		{seconds: 0.00002, want: 0},
		{seconds: 0.00003, want: 1},
	}

	for _, tt := range tests {
		if got := SampleCount(tt.seconds); got != tt.want {
			t.Errorf("SampleCount(%v) = %d, want %d", tt.seconds, got, tt.want)
		}
	}
}

func TestSilence_ExactLengthAndZero(t *testing.T) {
	s := Silence(2.5)
	if len(s) != 60000 {
		t.Fatalf("len = %d, want 60000", len(s))
	}
	for i, v := range s {
		if v != 0 {
			t.Fatalf("sample %d = %f, want 0", i, v)
		}
	}
	if d := Seconds(len(s)); math.Abs(d-2.5) > 0.005 {
		t.Errorf("duration = %f, want 2.5", d)
	}
}

func TestSlice(t *testing.T) {
	src := []float32{1, 2, 3, 4, 5}

	got := Slice(src, 1, 3)
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("Slice(1,3) = %v", got)
	}

	got[0] = 99
	if src[1] != 2 {
		t.Error("Slice must copy, source was modified")
	}

	if got := Slice(src, -2, 100); len(got) != 5 {
		t.Errorf("clamped slice len = %d, want 5", len(got))
	}
	if got := Slice(src, 4, 2); len(got) != 0 {
		t.Errorf("inverted slice len = %d, want 0", len(got))
	}
}
