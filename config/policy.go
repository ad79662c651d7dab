package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/application/matching"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/compatibility"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
)

// Policy is the tunable matching policy. It is read from YAML and falls back
// to the built-in defaults for anything the file omits.
//
//	weights:
//	  skill: 0.30
//	  timezone: 0.15
//	  availability: 0.15
//	  communication: 0.15
//	  session_history: 0.25
//	thresholds:
//	  min_total: 0.6
//	  min_skill: 0.4
//	  min_availability: 0.3
//	queue:
//	  base_priority: {high: 1000, medium: 500, low: 100}
//	  ttl: {high: 15m, medium: 30m, low: 60m}
type Policy struct {
	Weights    compatibility.Weights `yaml:"weights"`
	Thresholds matching.Thresholds   `yaml:"thresholds"`
	Queue      QueuePolicy           `yaml:"queue"`
}

// QueuePolicy is the file form of queue.Policy.
type QueuePolicy struct {
	BasePriority        map[string]float64       `yaml:"base_priority"`
	WaitWeightPerMinute float64                  `yaml:"wait_weight_per_minute"`
	CollaborationBonus  float64                  `yaml:"collaboration_bonus"`
	TTL                 map[string]time.Duration `yaml:"ttl"`
	Compatible          map[string][]string      `yaml:"compatible"`
	DefaultServiceTime  time.Duration            `yaml:"default_service_time"`
	ClaimMarkerTTL      time.Duration            `yaml:"claim_marker_ttl"`
	LeftMarkerTTL       time.Duration            `yaml:"left_marker_ttl"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() *Policy {
	qp := queue.DefaultPolicy()
	p := &Policy{
		Weights:    compatibility.DefaultWeights(),
		Thresholds: matching.DefaultThresholds(),
		Queue: QueuePolicy{
			BasePriority:        make(map[string]float64, len(qp.BasePriority)),
			WaitWeightPerMinute: qp.WaitWeightPerMinute,
			CollaborationBonus:  qp.CollaborationBonus,
			TTL:                 make(map[string]time.Duration, len(qp.TTL)),
			Compatible:          make(map[string][]string, len(qp.Compatible)),
			DefaultServiceTime:  qp.DefaultServiceTime,
			ClaimMarkerTTL:      qp.ClaimMarkerTTL,
			LeftMarkerTTL:       qp.LeftMarkerTTL,
		},
	}
	for u, v := range qp.BasePriority {
		p.Queue.BasePriority[string(u)] = v
	}
	for u, d := range qp.TTL {
		p.Queue.TTL[string(u)] = d
	}
	for st, targets := range qp.Compatible {
		names := make([]string, len(targets))
		for i, t := range targets {
			names[i] = string(t)
		}
		p.Queue.Compatible[string(st)] = names
	}
	return p
}

// LoadPolicy reads path over the defaults. An empty path yields the defaults.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPolicyFile, err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy decodes YAML over the defaults. Unknown keys are rejected.
func ParsePolicy(raw []byte) (*Policy, error) {
	p := DefaultPolicy()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode: %v", ErrPolicyFile, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks weights, thresholds and the queue section.
func (p *Policy) Validate() error {
	if err := p.Weights.Validate(); err != nil {
		return fmt.Errorf("policy weights: %w", err)
	}
	if err := p.Thresholds.Validate(); err != nil {
		return fmt.Errorf("policy thresholds: %w", err)
	}
	qp, err := p.QueuePolicy()
	if err != nil {
		return err
	}
	return qp.Validate()
}

// QueuePolicy converts the queue section into a queue.Policy.
func (p *Policy) QueuePolicy() (queue.Policy, error) {
	out := queue.Policy{
		BasePriority:        make(map[queue.Urgency]float64, len(p.Queue.BasePriority)),
		WaitWeightPerMinute: p.Queue.WaitWeightPerMinute,
		CollaborationBonus:  p.Queue.CollaborationBonus,
		TTL:                 make(map[queue.Urgency]time.Duration, len(p.Queue.TTL)),
		Compatible:          make(map[queue.SessionType][]queue.SessionType, len(p.Queue.Compatible)),
		DefaultServiceTime:  p.Queue.DefaultServiceTime,
		ClaimMarkerTTL:      p.Queue.ClaimMarkerTTL,
		LeftMarkerTTL:       p.Queue.LeftMarkerTTL,
	}
	for name, v := range p.Queue.BasePriority {
		u := queue.Urgency(name)
		if !u.IsValid() {
			return queue.Policy{}, fmt.Errorf("policy queue: unknown urgency %q", name)
		}
		out.BasePriority[u] = v
	}
	for name, d := range p.Queue.TTL {
		u := queue.Urgency(name)
		if !u.IsValid() {
			return queue.Policy{}, fmt.Errorf("policy queue: unknown urgency %q", name)
		}
		out.TTL[u] = d
	}
	for name, targets := range p.Queue.Compatible {
		types := make([]queue.SessionType, len(targets))
		for i, t := range targets {
			types[i] = queue.SessionType(t)
		}
		out.Compatible[queue.SessionType(name)] = types
	}
	return out, nil
}

// EngineConfig combines the policy thresholds with the env-tuned limits.
func (c *Config) EngineConfig() matching.Config {
	cfg := matching.DefaultConfig()
	if c.Policy != nil {
		cfg.Thresholds = c.Policy.Thresholds
	}
	cfg.CandidateLimit = c.Matching.CandidateLimit
	cfg.ScoreConcurrency = c.Matching.ScoreConcurrency
	cfg.OperationTimeout = c.Matching.OperationTimeout
	cfg.ClaimAttempts = c.Matching.ClaimAttempts
	return cfg
}
