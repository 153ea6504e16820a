package aggregator

import (
	"math"
	"testing"
)

func TestTempAtElevation(t *testing.T) {
	// 3,000 ft of gain at 3.5F per 1,000 ft.
	got := tempAtElevation(30, 4000, 7000)
	if math.Abs(got-19.5) > 0.01 {
		t.Errorf("got %.2f, want 19.5", got)
	}
	// No gain, no change.
	if tempAtElevation(30, 4000, 4000) != 30 {
		t.Error("same elevation should keep the reading")
	}
}

func TestElevationTemps(t *testing.T) {
	temps := elevationTemps(32, 4000, 8000)
	if temps.BaseF != 32 {
		t.Errorf("base = %.1f", temps.BaseF)
	}
	if temps.MidF >= temps.BaseF || temps.SummitF >= temps.MidF {
		t.Errorf("temps should decrease with elevation: %+v", temps)
	}
}

func TestRainRisk(t *testing.T) {
	cases := []struct {
		freezing float64
		score    float64
		label    string
	}{
		{3000, 0, "snow"},
		{4000, 0, "snow"},
		{5000, 0.25, "snow up high"},
		{6000, 0.5, "mixed"},
		{8000, 1, "rain"},
		{9000, 1, "rain"},
	}
	for _, c := range cases {
		r := rainRisk(c.freezing, 4000, 8000)
		if math.Abs(r.Score-c.score) > 0.001 {
			t.Errorf("freezing %.0f: score = %.3f, want %.3f", c.freezing, r.Score, c.score)
		}
		if r.Label != c.label {
			t.Errorf("freezing %.0f: label = %q, want %q", c.freezing, r.Label, c.label)
		}
	}
}

func TestPowderScoreDeepCold(t *testing.T) {
	// A foot overnight, cold, calm, all snow.
	p := powderScore(14, 20, 18, 5, 0)
	if p.Score < 8 {
		t.Errorf("deep cold day scored %.1f, want >= 8", p.Score)
	}
	if p.Verdict != "all-time — drop everything" {
		t.Errorf("verdict = %q", p.Verdict)
	}
}

func TestPowderScoreNoSnow(t *testing.T) {
	// Nothing recent, warm, windy, raining.
	p := powderScore(0, 0, 40, 45, 1)
	if p.Score >= 2 {
		t.Errorf("rainy day scored %.1f, want < 2", p.Score)
	}
	if p.Verdict != "poor — wait for the next storm" {
		t.Errorf("verdict = %q", p.Verdict)
	}
}

func TestPowderScoreBounds(t *testing.T) {
	// Absurd inputs must stay inside [0, 10].
	high := powderScore(100, 200, 15, 0, 0)
	if high.Score > 10 {
		t.Errorf("score %.1f exceeds 10", high.Score)
	}
	low := powderScore(-5, -5, 90, 200, 1)
	if low.Score < 0 {
		t.Errorf("score %.1f below 0", low.Score)
	}
}

func TestTempComponent(t *testing.T) {
	if tempComponent(18) != 1 {
		t.Error("ideal band should score 1")
	}
	if tempComponent(45) >= tempComponent(30) {
		t.Error("warm slush should score below near-freezing")
	}
	if tempComponent(-20) != 0.5 {
		t.Errorf("deep cold = %v", tempComponent(-20))
	}
}
