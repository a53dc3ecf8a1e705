// Package escalation maps a verdict to a maintenance decision.
package escalation

import "fleet-backend/internal/domain"

// Decision is the outcome of the escalation policy for one verdict.
type Decision struct {
	Create   bool
	Severity domain.MaintenanceSeverity
}

// Decide is pure and idempotent: a record is opened when failure confidence
// exceeds 0.7, with severity critical above 0.9 and high otherwise.
func Decide(p domain.Prediction) Decision {
	if p.Confidence <= 0.7 {
		return Decision{}
	}
	severity := domain.SeverityHigh
	if p.Confidence > 0.9 {
		severity = domain.SeverityCritical
	}
	return Decision{Create: true, Severity: severity}
}

// Record builds the pending AI-predicted maintenance record for a decision.
// Callers must only invoke it when d.Create is true.
func Record(vehicleID int64, d Decision) *domain.MaintenanceRecord {
	return &domain.MaintenanceRecord{
		VehicleID:     vehicleID,
		IssueType:     domain.IssueMotorFailure,
		Severity:      d.Severity,
		PredictedByAI: true,
		Status:        domain.StatusPending,
	}
}
