package domain

import "time"

type MaintenanceSeverity string

const (
	SeverityLow      MaintenanceSeverity = "low"
	SeverityMedium   MaintenanceSeverity = "medium"
	SeverityHigh     MaintenanceSeverity = "high"
	SeverityCritical MaintenanceSeverity = "critical"
)

type MaintenanceStatus string

const (
	StatusPending    MaintenanceStatus = "pending"
	StatusInProgress MaintenanceStatus = "in_progress"
	StatusResolved   MaintenanceStatus = "resolved"
)

// IssueMotorFailure is the issue classification for records opened by the
// escalation policy. Human-entered records may use other classifications.
const IssueMotorFailure = "motor_failure"

// MaintenanceRecord is a maintenance work item for a vehicle. The pipeline
// only ever creates pending AI-predicted records; status transitions belong
// to the maintenance workflow.
type MaintenanceRecord struct {
	ID            int64
	VehicleID     int64
	IssueType     string
	Severity      MaintenanceSeverity
	PredictedByAI bool
	Status        MaintenanceStatus
	Notes         string
	CreatedAt     time.Time
}
