package vbt

import "github.com/velofit/velofit/internal/backend"

// RepObservation is the live feedback for one just-performed rep.
type RepObservation struct {
	SetNumber       int
	RepNumber       int
	VelocityLossPct float64
	ShouldStop      bool
}

// LiveSession tracks velocity loss within the running set during a
// monitored session. Loss is measured against the fastest rep of the
// current set; once it reaches the stop threshold the stop flag stays
// raised until the next set starts. Not safe for concurrent use: one
// live session belongs to one recording screen.
type LiveSession struct {
	exercise string
	loadKg   float64
	stopPct  float64

	setNumber    int
	repNumber    int
	bestVelocity float64
	shouldStop   bool
}

func NewLiveSession(exercise string, loadKg, stopPct float64) (*LiveSession, error) {
	if exercise == "" {
		return nil, backend.NewValidationError("live session needs an exercise name")
	}
	if stopPct <= 0 || stopPct > 100 {
		return nil, backend.NewValidationError(
			"velocity loss stop threshold must be within (0, 100], got %.1f", stopPct)
	}
	return &LiveSession{
		exercise:  exercise,
		loadKg:    loadKg,
		stopPct:   stopPct,
		setNumber: 1,
	}, nil
}

// StartSet begins the next set: rep numbering, the best-velocity baseline
// and the stop flag all reset.
func (s *LiveSession) StartSet() {
	s.setNumber++
	s.repNumber = 0
	s.bestVelocity = 0
	s.shouldStop = false
}

// AddRep records one rep's velocity and returns the updated loss reading.
func (s *LiveSession) AddRep(meanVelocity float64) (RepObservation, error) {
	if meanVelocity <= 0 {
		return RepObservation{}, backend.NewValidationError(
			"mean velocity must be positive, got %.3f", meanVelocity)
	}

	s.repNumber++
	if meanVelocity > s.bestVelocity {
		s.bestVelocity = meanVelocity
	}

	loss := VelocityLoss(s.bestVelocity, meanVelocity)
	if loss >= s.stopPct {
		s.shouldStop = true
	}

	return RepObservation{
		SetNumber:       s.setNumber,
		RepNumber:       s.repNumber,
		VelocityLossPct: loss,
		ShouldStop:      s.shouldStop,
	}, nil
}

// Record converts the latest observation into a persistable rep row.
func (s *LiveSession) Record(sessionID string, observation RepObservation, meanVelocity float64) RepRecord {
	return RepRecord{
		SessionID:    sessionID,
		SetNumber:    observation.SetNumber,
		RepNumber:    observation.RepNumber,
		LoadKg:       s.loadKg,
		MeanVelocity: meanVelocity,
	}
}
