package audio

import "testing"

func ones(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func TestFade(t *testing.T) {
	const ramp = 240 // 10 ms at the working rate

	tests := []struct {
		name        string
		in, out     bool
		wantFirst   float32
		wantLast    float32
		untouchedAt []int
	}{
		{name: "in only", in: true, wantFirst: 0, wantLast: 1, untouchedAt: []int{ramp, 12000}},
		{name: "out only", out: true, wantFirst: 1, wantLast: 0, untouchedAt: []int{0, 24000 - 1 - ramp}},
		{name: "both", in: true, out: true, wantFirst: 0, wantLast: 0, untouchedAt: []int{ramp, 12000, 24000 - 1 - ramp}},
		{name: "neither", wantFirst: 1, wantLast: 1, untouchedAt: []int{0, 23999}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clip := ones(24000)
			Fade(clip, 10, tt.in, tt.out)

			if clip[0] != tt.wantFirst {
				t.Errorf("first = %f, want %f", clip[0], tt.wantFirst)
			}
			if clip[len(clip)-1] != tt.wantLast {
				t.Errorf("last = %f, want %f", clip[len(clip)-1], tt.wantLast)
			}
			for _, i := range tt.untouchedAt {
				if clip[i] != 1 {
					t.Errorf("sample %d = %f, want 1", i, clip[i])
				}
			}
		})
	}
}

func TestFade_RampIsMonotonic(t *testing.T) {
	clip := ones(24000)
	Fade(clip, 50, true, true)

	n := SampleCount(0.05)
	for i := 1; i < n; i++ {
		if clip[i] < clip[i-1] {
			t.Fatalf("fade-in not monotonic at %d: %f < %f", i, clip[i], clip[i-1])
		}
		j := len(clip) - 1 - i
		if clip[j] < clip[j+1] {
			t.Fatalf("fade-out not monotonic at %d", j)
		}
	}
}

func TestFade_ShortClipRampsDoNotOverlap(t *testing.T) {
	clip := ones(10)
	Fade(clip, 100, true, true)

	if clip[0] != 0 || clip[9] != 0 {
		t.Errorf("edges = %f, %f; want 0", clip[0], clip[9])
	}
	for i, v := range clip {
		if v < 0 || v >= 1 {
			t.Errorf("sample %d = %f, want in [0,1)", i, v)
		}
	}
}

func TestFade_EmptyClip(_ *testing.T) {
	Fade(nil, 10, true, true)
}
