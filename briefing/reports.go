package briefing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dhamidi/pmcopilot/fleet"
)

// failurePriority orders failure types from most to least urgent.
var failurePriority = []string{
	fleet.FailureHeatDissipation,
	fleet.FailurePower,
	fleet.FailureOverstrain,
	fleet.FailureToolWear,
	fleet.FailureRandom,
	"Unknown",
}

// Overview counts machines by risk band.
func Overview(ctx context.Context, source fleet.Source) (string, error) {
	machines, err := source.Machines(ctx)
	if err != nil {
		return "", fmt.Errorf("briefing: load machines: %w", err)
	}
	if len(machines) == 0 {
		return "No machines in database.", nil
	}
	diagnostics, err := source.LatestDiagnostics(ctx)
	if err != nil {
		return "", fmt.Errorf("briefing: load diagnostics: %w", err)
	}

	var critical, warning, normal int
	for _, d := range diagnostics {
		switch {
		case d.RiskScore > CriticalThreshold:
			critical++
		case d.RiskScore > HighRiskThreshold:
			warning++
		default:
			normal++
		}
	}

	return fmt.Sprintf("System Overview:\n- Total Machines: %d\n- Critical: %d\n- Warning: %d\n- Normal: %d",
		len(machines), critical, warning, normal), nil
}

// Recommendations lists high-risk machines grouped by failure type, most urgent type first.
func Recommendations(ctx context.Context, source fleet.Source) (string, error) {
	diagnostics, err := source.LatestDiagnostics(ctx)
	if err != nil {
		return "", fmt.Errorf("briefing: load diagnostics: %w", err)
	}
	highRisk := filterRisk(diagnostics, func(score float64) bool { return score > HighRiskThreshold })
	if len(highRisk) == 0 {
		return "No maintenance recommendations at this time.", nil
	}

	byFailure := make(map[string][]fleet.Diagnostic)
	for _, d := range highRisk {
		failure := orDefault(d.MostLikelyFailure, "Unknown")
		if !knownFailure(failure) {
			failure = "Unknown"
		}
		byFailure[failure] = append(byFailure[failure], d)
	}

	var b strings.Builder
	b.WriteString("=== Maintenance Recommendations ===\n\n")
	for _, failure := range failurePriority {
		group := byFailure[failure]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s - %d machine(s)\n", failure, len(group))
		b.WriteString(strings.Repeat("─", 40) + "\n")
		for _, d := range group {
			fmt.Fprintf(&b, "• %s (Risk: %d%%)\n", d.MachineID, Percent(d.RiskScore))
			fmt.Fprintf(&b, "  %s\n\n", orDefault(d.RecommendedAction, "No action recommended"))
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// MachineDetail describes one machine with its latest diagnostic and telemetry.
func MachineDetail(ctx context.Context, source fleet.DetailSource, machineID string) (string, error) {
	machineID = strings.ToUpper(strings.TrimSpace(machineID))

	machine, err := source.Machine(ctx, machineID)
	if errors.Is(err, fleet.ErrNotFound) {
		return fmt.Sprintf("Machine %s not found in database.", machineID), nil
	}
	if err != nil {
		return "", fmt.Errorf("briefing: load machine %s: %w", machineID, err)
	}

	diagnostic, err := source.LatestDiagnostic(ctx, machineID)
	if err != nil && !errors.Is(err, fleet.ErrNotFound) {
		return "", fmt.Errorf("briefing: load diagnostic for %s: %w", machineID, err)
	}
	reading, err := source.LatestSensorReading(ctx, machineID)
	if err != nil && !errors.Is(err, fleet.ErrNotFound) {
		return "", fmt.Errorf("briefing: load sensor data for %s: %w", machineID, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== %s Details ===\n\n", machine.ID)
	fmt.Fprintf(&b, "Status: %s\n", machine.Status)
	fmt.Fprintf(&b, "Location: %s\n", machine.Location)

	if diagnostic != nil {
		fmt.Fprintf(&b, "Risk Score: %d%%\n", Percent(diagnostic.RiskScore))
		fmt.Fprintf(&b, "Predicted Issue: %s\n", orDefault(diagnostic.MostLikelyFailure, "None"))
		fmt.Fprintf(&b, "Recommended Action: %s\n", orDefault(diagnostic.RecommendedAction, "None"))
	}

	if reading != nil {
		b.WriteString("\nCurrent Sensor Readings:\n")
		fmt.Fprintf(&b, "- Air Temperature: %.1fK\n", reading.AirTemp)
		fmt.Fprintf(&b, "- Process Temperature: %.1fK\n", reading.ProcessTemp)
		fmt.Fprintf(&b, "- Rotational Speed: %.0f RPM\n", reading.RotationalSpeed)
		fmt.Fprintf(&b, "- Torque: %.1f Nm\n", reading.Torque)
		fmt.Fprintf(&b, "- Tool Wear: %.0f minutes\n", reading.ToolWear)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func knownFailure(failure string) bool {
	for _, f := range failurePriority {
		if f == failure {
			return true
		}
	}
	return false
}
