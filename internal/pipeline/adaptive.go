package pipeline

import (
	"time"
)

// AdaptiveConfig configures an AdaptiveBitrate controller. Unlike the
// single-process capture pipeline this is adapted from, there is no local
// encoder to call directly — OnBitrateChange is invoked instead, so the
// caller can relay the new target to the host (session.Machine passes it to
// gamestream.Client.SetBitrate), since the encoder lives on the host, not
// in this process.
type AdaptiveConfig struct {
	InitialBitrate int
	MinBitrate     int
	MaxBitrate     int
	Cooldown       time.Duration
	OnBitrateChange func(bitrateKbps int)
}

const ewmaAlpha = 0.3

// AdaptiveBitrate applies the same AIMD-with-EWMA-smoothing policy as the
// single-process capture pipeline's controller, driven here by the RTT
// samples the client reports on the STATS channel, with the forwarding
// pipeline's drop fraction (StreamMetrics.LossFraction) as the loss proxy.
type AdaptiveBitrate struct {
	minBitrate int
	maxBitrate int
	cooldown   time.Duration
	onChange   func(int)

	lastAdjust time.Time
	target     int

	smoothedLoss float64
	smoothedRTT  time.Duration
	samples      int
	stableCount  int
}

// NewAdaptiveBitrate constructs a controller; a zero Cooldown defaults to
// 500ms.
func NewAdaptiveBitrate(cfg AdaptiveConfig) *AdaptiveBitrate {
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = 500 * time.Millisecond
	}
	target := cfg.InitialBitrate
	if target <= 0 {
		target = cfg.MinBitrate
	}
	return &AdaptiveBitrate{
		minBitrate: cfg.MinBitrate,
		maxBitrate: cfg.MaxBitrate,
		cooldown:   cooldown,
		onChange:   cfg.OnBitrateChange,
		target:     clampInt(target, cfg.MinBitrate, cfg.MaxBitrate),
	}
}

// Update feeds one RTT/loss sample and adjusts the target bitrate.
func (a *AdaptiveBitrate) Update(rtt time.Duration, loss float64) {
	if loss < 0 {
		loss = 0
	}
	if loss > 1 {
		loss = 1
	}

	now := time.Now()
	a.updateEWMA(rtt, loss)

	if !a.lastAdjust.IsZero() && now.Sub(a.lastAdjust) < a.cooldown {
		return
	}
	if a.samples < 3 {
		return
	}

	degrade := a.smoothedLoss >= 0.05 || (a.smoothedRTT >= 300*time.Millisecond && a.smoothedLoss >= 0.02)
	upgrade := a.smoothedLoss <= 0.01

	if degrade {
		a.stableCount = 0
	} else if upgrade {
		a.stableCount++
	} else if a.stableCount > 0 {
		a.stableCount--
	}

	const stableRequired = 2
	newBitrate := a.target

	switch {
	case degrade:
		newBitrate = clampInt(int(float64(newBitrate)*0.70), a.minBitrate, a.maxBitrate)
	case a.stableCount >= stableRequired && a.target < a.maxBitrate:
		step := a.maxBitrate / 20
		if step < 100_000 {
			step = 100_000
		}
		newBitrate = clampInt(newBitrate+step, a.minBitrate, a.maxBitrate)
		a.stableCount = 0
	}

	if newBitrate == a.target {
		return
	}
	a.target = newBitrate
	a.lastAdjust = now
	if a.onChange != nil {
		a.onChange(newBitrate / 1000)
	}
}

func (a *AdaptiveBitrate) updateEWMA(rtt time.Duration, loss float64) {
	a.samples++
	if a.samples == 1 {
		a.smoothedLoss = loss
		a.smoothedRTT = rtt
		return
	}
	a.smoothedLoss = ewmaAlpha*loss + (1-ewmaAlpha)*a.smoothedLoss
	a.smoothedRTT = time.Duration(ewmaAlpha*float64(rtt) + (1-ewmaAlpha)*float64(a.smoothedRTT))
}

// TargetBitrateKbps returns the current target in kbps.
func (a *AdaptiveBitrate) TargetBitrateKbps() int {
	return a.target / 1000
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
