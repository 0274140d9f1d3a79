package airquality

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultSuggestDelay is the input quiescence required before a lookup fires.
const DefaultSuggestDelay = 300 * time.Millisecond

// Resolver resolves free text into station suggestions. *Service implements it.
type Resolver interface {
	ResolveStations(ctx context.Context, query string) []StationSuggestion
}

// SuggesterConfig holds configuration for a Suggester.
type SuggesterConfig struct {
	Resolver Resolver

	// Apply receives the suggestions for a query. It is only called with a result
	// newer than every result applied before it.
	Apply func(query string, suggestions []StationSuggestion)

	// Delay is the debounce interval (default: DefaultSuggestDelay).
	Delay time.Duration

	// MinLength is the shortest query that triggers a lookup (default: MinQueryLength).
	MinLength int
}

// Suggester debounces suggestion lookups for an interactive client. A newer
// query supersedes older ones without cancelling lookups already in flight;
// stale results are dropped when they complete.
type Suggester struct {
	resolver  Resolver
	apply     func(string, []StationSuggestion)
	delay     time.Duration
	minLength int

	// applyMu serializes the applied check with the Apply call.
	applyMu sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	applied uint64
	closed  bool
}

// NewSuggester creates a Suggester.
func NewSuggester(cfg SuggesterConfig) *Suggester {
	delay := cfg.Delay
	if delay == 0 {
		delay = DefaultSuggestDelay
	}

	minLength := cfg.MinLength
	if minLength == 0 {
		minLength = MinQueryLength
	}

	apply := cfg.Apply
	if apply == nil {
		apply = func(string, []StationSuggestion) {}
	}

	return &Suggester{
		resolver:  cfg.Resolver,
		apply:     apply,
		delay:     delay,
		minLength: minLength,
	}
}

// Submit registers the latest input text. Short input clears suggestions
// immediately; otherwise a lookup is scheduled after the debounce delay.
func (s *Suggester) Submit(ctx context.Context, query string) {
	query = strings.TrimSpace(query)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	seq := s.seq
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	if utf8.RuneCountInString(query) < s.minLength {
		s.mu.Unlock()
		s.deliver(seq, query, []StationSuggestion{})
		return
	}

	s.timer = time.AfterFunc(s.delay, func() {
		suggestions := s.resolver.ResolveStations(ctx, query)
		s.deliver(seq, query, suggestions)
	})
	s.mu.Unlock()
}

// Close stops any pending lookup. Results of lookups already running are dropped.
func (s *Suggester) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Suggester) deliver(seq uint64, query string, suggestions []StationSuggestion) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if s.closed || seq <= s.applied {
		s.mu.Unlock()
		return
	}
	s.applied = seq
	s.mu.Unlock()

	s.apply(query, suggestions)
}
