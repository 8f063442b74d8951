// Package briefing turns live fleet state into short natural-language text:
// the system brief that grounds every prompt, and the operator reports built
// on the same data.
package briefing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dhamidi/pmcopilot/fleet"
)

const (
	// HighRiskThreshold is the risk score above which a machine is listed in the brief.
	HighRiskThreshold = 0.3
	// CriticalThreshold separates critical machines from warnings in the overview.
	CriticalThreshold = 0.7
	// MaxListedMachines caps how many high-risk machines the brief names.
	MaxListedMachines = 5

	timestampLayout = "2006-01-02 15:04"
)

// Summarizer produces the system brief injected into prompts.
type Summarizer struct {
	source fleet.Source
	loc    *time.Location
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithLocation sets the time zone diagnosis timestamps are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(s *Summarizer) {
		s.loc = loc
	}
}

// NewSummarizer creates a Summarizer reading from source.
func NewSummarizer(source fleet.Source, opts ...Option) *Summarizer {
	s := &Summarizer{source: source, loc: time.Local}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize renders the current fleet state. It either returns the full brief
// or an error from the data source, never a partial brief.
func (s *Summarizer) Summarize(ctx context.Context) (string, error) {
	machines, err := s.source.Machines(ctx)
	if err != nil {
		return "", fmt.Errorf("briefing: load machines: %w", err)
	}
	diagnostics, err := s.source.LatestDiagnostics(ctx)
	if err != nil {
		return "", fmt.Errorf("briefing: load diagnostics: %w", err)
	}

	highRisk := filterRisk(diagnostics, func(score float64) bool { return score > HighRiskThreshold })

	var b strings.Builder
	b.WriteString("Current System State:\n")
	fmt.Fprintf(&b, "- Total Machines: %d\n", len(machines))
	fmt.Fprintf(&b, "- High Risk Machines: %d\n", len(highRisk))

	if len(highRisk) > 0 {
		b.WriteString("\nHigh Risk Machines:\n")
		for i, d := range highRisk {
			if i == MaxListedMachines {
				break
			}
			fmt.Fprintf(&b, "- %s: Risk %d%%, Issue: %s, Action: %s (Diagnosed: %s)\n",
				d.MachineID, Percent(d.RiskScore), orDefault(d.MostLikelyFailure, "Unknown"),
				orDefault(d.RecommendedAction, "None"), s.diagnosedAt(d.Timestamp))
		}
	}

	return b.String(), nil
}

func (s *Summarizer) diagnosedAt(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.In(s.loc).Format(timestampLayout)
}

// Percent converts a 0..1 risk score into a whole percentage.
func Percent(score float64) int {
	return int(math.Round(score * 100))
}

// filterRisk keeps the diagnostics whose score matches keep, riskiest first.
func filterRisk(diagnostics []fleet.Diagnostic, keep func(float64) bool) []fleet.Diagnostic {
	out := make([]fleet.Diagnostic, 0, len(diagnostics))
	for _, d := range diagnostics {
		if keep(d.RiskScore) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RiskScore > out[j].RiskScore
	})
	return out
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
