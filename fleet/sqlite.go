package fleet

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteSource reads fleet state from SQLite.
type SQLiteSource struct {
	db *sql.DB
}

var _ DetailSource = (*SQLiteSource)(nil)

// OpenSQLite opens the fleet database at dbPath, creating the tables if they are missing.
func OpenSQLite(dbPath string) (*SQLiteSource, error) {
	file, dsn := dataSourceName(dbPath)
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize fleet schema: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

// dataSourceName splits dbPath into its file and a DSN carrying the default
// pragmas. Parameters already present in dbPath take precedence.
func dataSourceName(dbPath string) (file, dsn string) {
	const pragmas = "_foreign_keys=on&_busy_timeout=5000"
	file, query, _ := strings.Cut(dbPath, "?")
	if query == "" {
		return file, file + "?" + pragmas
	}
	return file, file + "?" + query + "&" + pragmas
}

// Close closes the database connection.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Machines lists every machine, newest first.
func (s *SQLiteSource) Machines(ctx context.Context) ([]Machine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, status, location, created_at FROM machines ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query machines: %w", err)
	}
	defer rows.Close()

	machines := make([]Machine, 0)
	for rows.Next() {
		var m Machine
		if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.Status, &m.Location, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan machine: %w", err)
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

// Machine looks up a single machine by id.
func (s *SQLiteSource) Machine(ctx context.Context, id string) (*Machine, error) {
	m := &Machine{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, status, location, created_at FROM machines WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &m.Type, &m.Status, &m.Location, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("machine %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query machine %s: %w", id, err)
	}
	return m, nil
}

const latestDiagnosticColumns = `d.machine_id, d.timestamp, d.risk_score, d.most_likely_failure, d.recommended_action`

// LatestDiagnostics returns the most recent diagnostic of every machine that has one.
func (s *SQLiteSource) LatestDiagnostics(ctx context.Context) ([]Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+latestDiagnosticColumns+`
		FROM diagnostics d
		WHERE d.id = (
			SELECT d2.id FROM diagnostics d2
			WHERE d2.machine_id = d.machine_id
			ORDER BY d2.timestamp DESC, d2.id DESC LIMIT 1
		)
		ORDER BY d.risk_score DESC, d.machine_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest diagnostics: %w", err)
	}
	defer rows.Close()

	diagnostics := make([]Diagnostic, 0)
	for rows.Next() {
		d, err := scanDiagnostic(rows)
		if err != nil {
			return nil, err
		}
		diagnostics = append(diagnostics, *d)
	}
	return diagnostics, rows.Err()
}

// LatestDiagnostic returns the most recent diagnostic of one machine.
func (s *SQLiteSource) LatestDiagnostic(ctx context.Context, machineID string) (*Diagnostic, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+latestDiagnosticColumns+`
		FROM diagnostics d WHERE d.machine_id = ?
		ORDER BY d.timestamp DESC, d.id DESC LIMIT 1`, machineID)
	d, err := scanDiagnostic(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("diagnostic for machine %s: %w", machineID, ErrNotFound)
	}
	return d, err
}

// LatestSensorReading returns the most recent telemetry sample of one machine.
func (s *SQLiteSource) LatestSensorReading(ctx context.Context, machineID string) (*SensorReading, error) {
	r := &SensorReading{}
	err := s.db.QueryRowContext(ctx, `
		SELECT machine_id, timestamp, air_temp, process_temp, rotational_speed, torque, tool_wear
		FROM sensor_data WHERE machine_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT 1`, machineID).
		Scan(&r.MachineID, &r.Timestamp, &r.AirTemp, &r.ProcessTemp, &r.RotationalSpeed, &r.Torque, &r.ToolWear)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sensor reading for machine %s: %w", machineID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor data for machine %s: %w", machineID, err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDiagnostic(row scanner) (*Diagnostic, error) {
	d := &Diagnostic{}
	var failure, action sql.NullString
	if err := row.Scan(&d.MachineID, &d.Timestamp, &d.RiskScore, &failure, &action); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
	}
	d.MostLikelyFailure = failure.String
	d.RecommendedAction = action.String
	return d, nil
}
