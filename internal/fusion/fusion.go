// Package fusion combines the classifier, probability and anomaly-detector
// outputs into a single verdict via a fixed decision table.
package fusion

import (
	"context"

	"fleet-backend/internal/domain"
	"fleet-backend/internal/ml"
)

// Engine fuses model outputs into domain predictions. Stateless apart from
// the injected registry; Evaluate is pure with respect to its inputs.
type Engine struct {
	models ml.Inferencer
}

func NewEngine(models ml.Inferencer) *Engine {
	return &Engine{models: models}
}

// Evaluate runs inference for one feature vector and applies the decision
// table. Identical features against identical model outputs always produce
// an identical prediction.
func (e *Engine) Evaluate(ctx context.Context, f domain.Features) domain.Prediction {
	inf := e.models.Infer(ctx, f)

	p := domain.Prediction{
		Failure:    inf.ClassLabel == 1,
		Confidence: inf.Probability,
		Anomaly:    inf.Anomaly,
		IsoScore:   inf.IsoScore,
	}
	p.Message = selectMessage(p.Confidence, p.Anomaly)
	return p
}

// selectMessage applies the message decision table. Rules are ordered; the
// first match wins.
func selectMessage(confidence float64, anomaly bool) string {
	switch {
	case confidence > 0.7 && anomaly:
		return domain.MsgCritical
	case confidence > 0.7:
		return domain.MsgHighRisk
	case confidence > 0.4:
		return domain.MsgModerate
	case anomaly:
		return domain.MsgAnomaly
	default:
		return domain.MsgNormal
	}
}
