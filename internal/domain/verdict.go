package domain

import "time"

// Verdict messages. Fixed set, selected by the fusion decision table with
// first-match-wins precedence.
const (
	MsgCritical = "Critical: High risk of motor failure with anomalous behavior detected"
	MsgHighRisk = "High risk of motor failure detected"
	MsgModerate = "Moderate risk of failure detected, monitoring recommended"
	MsgAnomaly  = "Anomalous sensor readings detected, inspection recommended"
	MsgNormal   = "Vehicle operating normally"
)

// Prediction holds the fused model outputs for a single reading, before it
// is persisted as a Verdict.
type Prediction struct {
	Failure    bool
	Confidence float64
	Anomaly    bool
	IsoScore   float64
	Message    string
}

// Verdict is the persisted fused prediction for one reading. Created exactly
// once per reading, never mutated.
type Verdict struct {
	ID        int64
	ReadingID int64
	VehicleID int64
	Timestamp time.Time

	Failure    bool
	Confidence float64
	Anomaly    bool
	IsoScore   float64
	Message    string
}

// Event is what the ingestion pipeline publishes to the broadcast hub after
// a reading and its verdict have both been committed.
type Event struct {
	Reading       *Reading
	Verdict       *Verdict
	MaintenanceID *int64
}
