package vbt

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// DefaultMinVelocityThreshold is the bar velocity (m/s) at which a lifter
// is assumed to grind out a true 1RM. 0.3 m/s is the commonly used value
// for the main barbell lifts.
const DefaultMinVelocityThreshold = 0.3

var ErrNotEnoughData = errors.New("not enough data points for a load-velocity profile")

// ProfilePoint is the best (fastest) recorded velocity at one load.
type ProfilePoint struct {
	LoadKg       float64 `json:"load_kg"`
	BestVelocity float64 `json:"best_velocity"`
}

// Profile is a linear load-velocity relationship fitted over a client's
// rep history for one exercise: velocity = Slope*load + Intercept.
type Profile struct {
	Points    []ProfilePoint `json:"points"`
	Slope     float64        `json:"slope"`
	Intercept float64        `json:"intercept"`
	R2        float64        `json:"r2"`

	// Estimated1RM is the load at which predicted velocity drops to the
	// minimum velocity threshold.
	Estimated1RM         float64 `json:"estimated_1rm"`
	MinVelocityThreshold float64 `json:"min_velocity_threshold"`
}

// PredictedVelocity evaluates the fitted line at the given load.
func (p *Profile) PredictedVelocity(loadKg float64) float64 {
	return p.Slope*loadKg + p.Intercept
}

type Analyzer struct {
	minVelocityThreshold float64
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{minVelocityThreshold: DefaultMinVelocityThreshold}
}

func NewAnalyzerWithThreshold(minVelocityThreshold float64) *Analyzer {
	return &Analyzer{minVelocityThreshold: minVelocityThreshold}
}

// LoadVelocityProfile fits a least-squares line through the best velocity
// recorded at each distinct load. Needs at least two distinct loads, and
// the fitted slope must be negative (heavier moves slower), otherwise the
// data cannot yield a meaningful 1RM estimate.
func (a *Analyzer) LoadVelocityProfile(reps []RepRecord) (*Profile, error) {
	bestPerLoad := make(map[float64]float64)
	for _, rep := range reps {
		if rep.LoadKg <= 0 || rep.MeanVelocity <= 0 {
			continue
		}
		if rep.MeanVelocity > bestPerLoad[rep.LoadKg] {
			bestPerLoad[rep.LoadKg] = rep.MeanVelocity
		}
	}

	if len(bestPerLoad) < 2 {
		return nil, ErrNotEnoughData
	}

	points := make([]ProfilePoint, 0, len(bestPerLoad))
	for load, velocity := range bestPerLoad {
		points = append(points, ProfilePoint{LoadKg: load, BestVelocity: velocity})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].LoadKg < points[j].LoadKg
	})

	slope, intercept := leastSquares(points)
	if slope >= 0 {
		return nil, fmt.Errorf("load-velocity data is not descending (slope %.4f)", slope)
	}

	profile := &Profile{
		Points:               points,
		Slope:                slope,
		Intercept:            intercept,
		R2:                   rSquared(points, slope, intercept),
		Estimated1RM:         (a.minVelocityThreshold - intercept) / slope,
		MinVelocityThreshold: a.minVelocityThreshold,
	}
	return profile, nil
}

// FatigueIndex is the percentage drop from the fastest set's mean
// velocity to the last set's, over one session's reps. Zero when the
// session holds fewer than two sets or the last set was the fastest.
func (a *Analyzer) FatigueIndex(reps []RepRecord) float64 {
	if len(reps) == 0 {
		return 0
	}

	velocitySums := make(map[int]float64)
	repCounts := make(map[int]int)
	lastSet := 0
	for _, rep := range reps {
		velocitySums[rep.SetNumber] += rep.MeanVelocity
		repCounts[rep.SetNumber]++
		if rep.SetNumber > lastSet {
			lastSet = rep.SetNumber
		}
	}
	if len(velocitySums) < 2 {
		return 0
	}

	bestMean := 0.0
	for set, sum := range velocitySums {
		if mean := sum / float64(repCounts[set]); mean > bestMean {
			bestMean = mean
		}
	}

	lastMean := velocitySums[lastSet] / float64(repCounts[lastSet])
	return VelocityLoss(bestMean, lastMean)
}

// VelocityLoss is the drop from best to current in percent, never
// negative.
func VelocityLoss(best, current float64) float64 {
	if best <= 0 || current >= best {
		return 0
	}
	return math.Round((best-current)/best*10000) / 100
}

func leastSquares(points []ProfilePoint) (slope, intercept float64) {
	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		sumX += p.LoadKg
		sumY += p.BestVelocity
		sumXY += p.LoadKg * p.BestVelocity
		sumXX += p.LoadKg * p.LoadKg
	}

	slope = (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

func rSquared(points []ProfilePoint, slope, intercept float64) float64 {
	var meanY float64
	for _, p := range points {
		meanY += p.BestVelocity
	}
	meanY /= float64(len(points))

	var ssRes, ssTot float64
	for _, p := range points {
		predicted := slope*p.LoadKg + intercept
		ssRes += (p.BestVelocity - predicted) * (p.BestVelocity - predicted)
		ssTot += (p.BestVelocity - meanY) * (p.BestVelocity - meanY)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}
