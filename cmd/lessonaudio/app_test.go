package main

import (
	"strings"
	"testing"

	"github.com/example/go-lesson-audio/internal/config"
)

func TestMasteringConfig_MapsEveryStage(t *testing.T) {
	mc := config.DefaultConfig().Mastering
	mc.CompThresholdDB = -30
	mc.CompRatio = 6
	mc.CompAttackMs = 12
	mc.CompReleaseMs = 200
	mc.CompMakeupDB = 4
	mc.PresenceHz = 2800
	mc.PresenceWidthQ = 0.5
	mc.PresenceGainDB = 3

	chain := masteringConfig(mc).Chain()
	for _, want := range []string{
		"highpass=f=80",
		"acompressor=threshold=-30dB:ratio=6:attack=12:release=200:makeup=4",
		"equalizer=f=2800:t=q:w=0.5:g=3",
		"loudnorm=I=-16:LRA=11:TP=-1.5",
	} {
		if !strings.Contains(chain, want) {
			t.Errorf("chain %q missing %q", chain, want)
		}
	}
}

func TestMasteringConfig_Toggles(t *testing.T) {
	mc := config.DefaultConfig().Mastering
	mc.Enabled = false
	mc.SegmentLoudnorm = true

	c := masteringConfig(mc)
	if c.Enabled || !c.SegmentLoudnorm {
		t.Errorf("toggles = enabled %v, segment %v", c.Enabled, c.SegmentLoudnorm)
	}
}
