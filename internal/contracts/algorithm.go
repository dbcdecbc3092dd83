package contracts

import (
	"fmt"
	"math"
	"time"
)

// AlgorithmConfig is a named, versioned bundle of seed parameters
type AlgorithmConfig struct {
	AlgorithmID    string         `json:"algorithm_id" yaml:"algorithm_id"`
	Version        string         `json:"version" yaml:"version"`
	Variant        string         `json:"variant,omitempty" yaml:"variant,omitempty"` // seed catalog key, 비어 있으면 AlgorithmID
	StrategyFamily StrategyFamily `json:"strategy_family" yaml:"strategy_family"`
	Parameters     Parameters     `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Enabled        bool           `json:"enabled" yaml:"enabled"`
	Weight         float64        `json:"weight" yaml:"weight"`
	CreatedAt      time.Time      `json:"created_at" yaml:"-"`
	IsActive       bool           `json:"is_active" yaml:"active"`
}

// ConfigKey identifies one registered version
type ConfigKey struct {
	AlgorithmID string
	Version     string
}

func (k ConfigKey) String() string {
	return k.AlgorithmID + "@" + k.Version
}

// Key returns the (algorithm_id, version) identity
func (c AlgorithmConfig) Key() ConfigKey {
	return ConfigKey{AlgorithmID: c.AlgorithmID, Version: c.Version}
}

// VariantKey returns the seed catalog key to run
func (c AlgorithmConfig) VariantKey() string {
	if c.Variant != "" {
		return c.Variant
	}
	return c.AlgorithmID
}

// Ref returns the metadata reference for this config
func (c AlgorithmConfig) Ref() ConfigRef {
	return ConfigRef{AlgorithmID: c.AlgorithmID, Version: c.Version, Weight: c.Weight}
}

// Validate checks structural invariants before registration
func (c AlgorithmConfig) Validate() error {
	if c.AlgorithmID == "" {
		return fmt.Errorf("%w: algorithm_id is required", ErrInvalidArgument)
	}
	if c.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidArgument)
	}
	if !c.StrategyFamily.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStrategyFamily, c.StrategyFamily)
	}
	// 가중치가 음수면 merge 단조성이 깨짐
	if c.Weight < 0 || math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) {
		return fmt.Errorf("%w: weight must be a finite value >= 0", ErrInvalidArgument)
	}
	return nil
}

// Clone returns a copy that shares no maps with c
func (c AlgorithmConfig) Clone() AlgorithmConfig {
	out := c
	if c.Parameters != nil {
		out.Parameters = make(Parameters, len(c.Parameters))
		for k, v := range c.Parameters {
			out.Parameters[k] = v
		}
	}
	return out
}

// VersionEventKind classifies an active-version change
type VersionEventKind string

const (
	EventActivate VersionEventKind = "activate"
	EventRollback VersionEventKind = "rollback"
)

// VersionEvent is the audit record of one active-version change
type VersionEvent struct {
	ID             string           `json:"id"`
	Kind           VersionEventKind `json:"kind"`
	AlgorithmID    string           `json:"algorithm_id"`
	StrategyFamily StrategyFamily   `json:"strategy_family"`
	FromVersion    string           `json:"from_version,omitempty"` // 이전 활성 버전, 없으면 ""
	ToVersion      string           `json:"to_version"`
	At             time.Time        `json:"at"`
}
