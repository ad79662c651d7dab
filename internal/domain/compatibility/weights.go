// Package compatibility scores how well two users would work together.
//
// Every component is a pure function of immutable profile snapshots and
// returns a value in [0,1]. Missing or malformed input yields Neutral rather
// than an error, so a sparse profile is never rejected outright.
package compatibility

import (
	"fmt"
	"math"
)

const (
	// Neutral is returned when a component has nothing to go on.
	Neutral = 0.5
	// NoOverlapScore is the skill score when the users share no skills.
	NoOverlapScore = 0.1
	// PreferredSkillMultiplier weights skills named in the request.
	PreferredSkillMultiplier = 2.0
	// VerifiedSkillMultiplier weights candidate skills that were verified.
	VerifiedSkillMultiplier = 1.2

	weightTolerance = 1e-3
)

// Weights are the component weights of the total score.
type Weights struct {
	Skill          float64 `yaml:"skill" json:"skill"`
	Timezone       float64 `yaml:"timezone" json:"timezone"`
	Availability   float64 `yaml:"availability" json:"availability"`
	Communication  float64 `yaml:"communication" json:"communication"`
	SessionHistory float64 `yaml:"session_history" json:"session_history"`
}

// DefaultWeights returns the production weights.
func DefaultWeights() Weights {
	return Weights{
		Skill:          0.30,
		Timezone:       0.15,
		Availability:   0.15,
		Communication:  0.15,
		SessionHistory: 0.25,
	}
}

// Sum returns the sum of all weights.
func (w Weights) Sum() float64 {
	return w.Skill + w.Timezone + w.Availability + w.Communication + w.SessionHistory
}

// Validate requires non-negative weights summing to 1.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"skill": w.Skill, "timezone": w.Timezone, "availability": w.Availability,
		"communication": w.Communication, "session_history": w.SessionHistory,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %.4f", sum)
	}
	return nil
}

// Result is a full compatibility breakdown.
type Result struct {
	Skill          float64 `json:"skill"`
	Timezone       float64 `json:"timezone"`
	Availability   float64 `json:"availability"`
	Communication  float64 `json:"communication"`
	SessionHistory float64 `json:"session_history"`
	Total          float64 `json:"total"`
}

// Components returns the breakdown keyed by component name.
func (r Result) Components() map[string]float64 {
	return map[string]float64{
		"skill":           r.Skill,
		"timezone":        r.Timezone,
		"availability":    r.Availability,
		"communication":   r.Communication,
		"session_history": r.SessionHistory,
	}
}

// Weighted computes the total from the components.
func (r Result) Weighted(w Weights) float64 {
	return clamp01(r.Skill*w.Skill +
		r.Timezone*w.Timezone +
		r.Availability*w.Availability +
		r.Communication*w.Communication +
		r.SessionHistory*w.SessionHistory)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return Neutral
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
