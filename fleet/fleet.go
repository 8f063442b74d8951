// Package fleet describes the machines, sensor readings and diagnostics the
// copilot reasons about, and reads them from the shared SQLite database.
//
// Writing this data is the job of the ingestion and prediction services; this
// package only reads it.
package fleet

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a machine or its latest reading does not exist.
var ErrNotFound = errors.New("fleet: not found")

// Failure type codes produced by the prediction service.
const (
	FailureToolWear        = "TWF"
	FailureHeatDissipation = "HDF"
	FailurePower           = "PWF"
	FailureOverstrain      = "OSF"
	FailureRandom          = "RNF"
)

// Machine is a monitored piece of equipment.
type Machine struct {
	ID        string
	Name      string
	Type      string
	Status    string
	Location  string
	CreatedAt time.Time
}

// Diagnostic is a failure-risk assessment for one machine at one point in time.
type Diagnostic struct {
	MachineID         string
	Timestamp         time.Time
	RiskScore         float64
	MostLikelyFailure string
	RecommendedAction string
}

// SensorReading is one sample of a machine's telemetry.
type SensorReading struct {
	MachineID       string
	Timestamp       time.Time
	AirTemp         float64
	ProcessTemp     float64
	RotationalSpeed float64
	Torque          float64
	ToolWear        float64
}

// Source lists the fleet and the latest diagnostic of every machine.
type Source interface {
	Machines(ctx context.Context) ([]Machine, error)
	LatestDiagnostics(ctx context.Context) ([]Diagnostic, error)
}

// DetailSource additionally looks up a single machine.
type DetailSource interface {
	Source
	Machine(ctx context.Context, id string) (*Machine, error)
	LatestDiagnostic(ctx context.Context, machineID string) (*Diagnostic, error)
	LatestSensorReading(ctx context.Context, machineID string) (*SensorReading, error)
}
