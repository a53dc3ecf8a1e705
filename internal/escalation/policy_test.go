package escalation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fleet-backend/internal/domain"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		create     bool
		severity   domain.MaintenanceSeverity
	}{
		{"below threshold", 0.4, false, ""},
		{"exactly 0.7 does not escalate", 0.7, false, ""},
		{"just above threshold", 0.71, true, domain.SeverityHigh},
		{"high severity", 0.85, true, domain.SeverityHigh},
		{"exactly 0.9 stays high", 0.9, true, domain.SeverityHigh},
		{"critical severity", 0.95, true, domain.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(domain.Prediction{Confidence: tt.confidence})
			assert.Equal(t, tt.create, d.Create)
			assert.Equal(t, tt.severity, d.Severity)
		})
	}
}

func TestDecideIgnoresAnomalyFlag(t *testing.T) {
	// Anomaly alone never opens a record.
	d := Decide(domain.Prediction{Confidence: 0.5, Anomaly: true})
	assert.False(t, d.Create)
}

func TestRecord(t *testing.T) {
	rec := Record(42, Decision{Create: true, Severity: domain.SeverityCritical})

	assert.Equal(t, int64(42), rec.VehicleID)
	assert.Equal(t, domain.IssueMotorFailure, rec.IssueType)
	assert.Equal(t, domain.SeverityCritical, rec.Severity)
	assert.Equal(t, domain.StatusPending, rec.Status)
	assert.True(t, rec.PredictedByAI)
}
