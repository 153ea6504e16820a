package aggregator

import "math"

// lapseRatePer1000Ft is the temperature drop applied per 1,000 ft of
// elevation gain when estimating per-elevation temperatures.
const lapseRatePer1000Ft = 3.5

// ElevationTemps are lapse-rate temperature estimates for the mountain.
type ElevationTemps struct {
	BaseF   float64 `json:"base_f"`
	MidF    float64 `json:"mid_f"`
	SummitF float64 `json:"summit_f"`
}

// RainRisk scores the chance that precipitation falls as rain rather
// than snow, from the freezing level relative to the terrain.
type RainRisk struct {
	Score float64 `json:"score"` // 0 (all snow) .. 1 (all rain)
	Label string  `json:"label"`
}

// PowderScore is the 0-10 composite powder rating with its verdict.
type PowderScore struct {
	Score      float64            `json:"score"`
	Verdict    string             `json:"verdict"`
	Components map[string]float64 `json:"components"`
}

// tempAtElevation estimates the temperature at targetFt given a reading
// anchored at refFt, using the fixed lapse rate.
func tempAtElevation(refTempF float64, refFt, targetFt int) float64 {
	return refTempF - lapseRatePer1000Ft*float64(targetFt-refFt)/1000.0
}

// elevationTemps anchors the station reading at the base elevation and
// projects mid-mountain and summit.
func elevationTemps(refTempF float64, baseFt, summitFt int) *ElevationTemps {
	mid := (baseFt + summitFt) / 2
	return &ElevationTemps{
		BaseF:   refTempF,
		MidF:    tempAtElevation(refTempF, baseFt, mid),
		SummitF: tempAtElevation(refTempF, baseFt, summitFt),
	}
}

// rainRisk maps the freezing level against base and summit. Below base:
// everything falls as snow. Above summit: rain to the top.
func rainRisk(freezingLevelFt float64, baseFt, summitFt int) *RainRisk {
	base, summit := float64(baseFt), float64(summitFt)
	var score float64
	switch {
	case freezingLevelFt <= base:
		score = 0
	case freezingLevelFt >= summit:
		score = 1
	default:
		score = (freezingLevelFt - base) / (summit - base)
	}

	label := "snow"
	switch {
	case score >= 0.9:
		label = "rain"
	case score >= 0.5:
		label = "mixed"
	case score > 0.1:
		label = "snow up high"
	}
	return &RainRisk{Score: score, Label: label}
}

// powderScore blends recent snowfall, temperature, wind, and rain risk
// into a 0-10 rating. Weights favor fresh 24 h snow; cold smoke beats
// warm chowder; wind and rain subtract.
func powderScore(snow24In, snow48In, tempF, windMPH, rain float64) *PowderScore {
	components := map[string]float64{
		"snow_24h":  clamp(snow24In/12.0, 0, 1) * 4.0,
		"snow_48h":  clamp(snow48In/18.0, 0, 1) * 2.0,
		"temp":      tempComponent(tempF) * 2.0,
		"wind":      (1 - clamp(windMPH/40.0, 0, 1)) * 1.0,
		"rain_risk": (1 - rain) * 1.0,
	}

	total := 0.0
	for _, v := range components {
		total += v
	}
	score := clamp(total, 0, 10)

	return &PowderScore{
		Score:      math.Round(score*10) / 10,
		Verdict:    verdict(score),
		Components: components,
	}
}

// tempComponent peaks in the ideal powder band (10-25 F) and decays
// toward slush above freezing and brittle cold below zero.
func tempComponent(tempF float64) float64 {
	switch {
	case tempF >= 10 && tempF <= 25:
		return 1
	case tempF > 25 && tempF <= 32:
		return 0.7
	case tempF > 32:
		return clamp(1-(tempF-32)/15.0, 0, 0.4)
	case tempF < 10 && tempF >= 0:
		return 0.8
	default:
		return 0.5
	}
}

func verdict(score float64) string {
	switch {
	case score >= 8:
		return "all-time — drop everything"
	case score >= 6:
		return "excellent — go"
	case score >= 4:
		return "good — worth the drive"
	case score >= 2:
		return "fair — manage expectations"
	default:
		return "poor — wait for the next storm"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
