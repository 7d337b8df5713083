package pipeline

import (
	"testing"
	"time"
)

func TestAdaptiveBitrateDegradesOnSustainedLoss(t *testing.T) {
	var got []int
	a := NewAdaptiveBitrate(AdaptiveConfig{
		InitialBitrate:  4_000_000,
		MinBitrate:      500_000,
		MaxBitrate:      8_000_000,
		Cooldown:        0,
		OnBitrateChange: func(kbps int) { got = append(got, kbps) },
	})

	for i := 0; i < 5; i++ {
		a.Update(50*time.Millisecond, 0.10)
	}

	if len(got) == 0 {
		t.Fatal("expected at least one bitrate change under sustained loss")
	}
	if a.TargetBitrateKbps() >= 4000 {
		t.Fatalf("target = %d kbps, want a degrade below initial 4000", a.TargetBitrateKbps())
	}
}

func TestAdaptiveBitrateUpgradesAfterStableSamples(t *testing.T) {
	a := NewAdaptiveBitrate(AdaptiveConfig{
		InitialBitrate: 1_000_000,
		MinBitrate:     500_000,
		MaxBitrate:     8_000_000,
		Cooldown:       0,
	})

	for i := 0; i < 6; i++ {
		a.Update(20*time.Millisecond, 0.0)
	}

	if a.TargetBitrateKbps() <= 1000 {
		t.Fatalf("target = %d kbps, want an upgrade above initial 1000", a.TargetBitrateKbps())
	}
}

func TestAdaptiveBitrateHoldsDuringWarmup(t *testing.T) {
	a := NewAdaptiveBitrate(AdaptiveConfig{
		InitialBitrate: 2_000_000,
		MinBitrate:     500_000,
		MaxBitrate:     8_000_000,
	})

	a.Update(20*time.Millisecond, 0.0)
	a.Update(20*time.Millisecond, 0.0)

	if a.TargetBitrateKbps() != 2000 {
		t.Fatalf("target = %d kbps, want unchanged 2000 during warmup", a.TargetBitrateKbps())
	}
}
