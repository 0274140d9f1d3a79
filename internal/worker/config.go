// Package worker runs background provider probes for airglance.
package worker

import (
	"strings"
	"time"
)

// ProbeTarget is a city or station query exercised end to end by a probe.
type ProbeTarget struct {
	// Query is the free text resolved to a station, e.g. "Delhi".
	Query string
}

// ProbeConfig holds configuration for the provider probe job.
type ProbeConfig struct {
	// Targets are the queries to probe.
	// If empty, uses DefaultProbeTargets.
	Targets []ProbeTarget

	// Concurrency is the number of concurrent probes.
	// Default: 3
	Concurrency int

	// Timeout bounds each probe, including any retries.
	// Default: 30 seconds
	Timeout time.Duration
}

// DefaultProbeConfig returns the default probe configuration.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Targets:     DefaultProbeTargets(),
		Concurrency: 3,
		Timeout:     30 * time.Second,
	}
}

// DefaultProbeTargets returns large cities with dense station coverage.
func DefaultProbeTargets() []ProbeTarget {
	return TargetsFromQueries([]string{"Delhi", "Mumbai", "Bangalore"})
}

// TargetsFromQueries builds targets from configured city names, skipping blanks.
func TargetsFromQueries(queries []string) []ProbeTarget {
	targets := make([]ProbeTarget, 0, len(queries))
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			targets = append(targets, ProbeTarget{Query: q})
		}
	}
	return targets
}

// withDefaults fills unset fields.
func (c ProbeConfig) withDefaults() ProbeConfig {
	def := DefaultProbeConfig()
	if len(c.Targets) == 0 {
		c.Targets = def.Targets
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}
