// Package services – EscalationService
//
// This file decides whether an incoming message must be handed to a human.
// Crisis pattern matches always escalate, whatever the classifier says.
// Otherwise the intent classifier's verdict escalates only when it labels
// the message "escalate" with confidence above the configured threshold.
// A classifier outage fails safe: the message stays with the AI and the
// failure is logged, because blocking every conversation on a sidecar
// being up would be worse than missing a borderline intent.
package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/awaa-health/go-counsel-backend/internal/crisis"
	"github.com/awaa-health/go-counsel-backend/internal/intent"
)

// Decision is the outcome of an escalation check.
type Decision struct {
	// Escalate is the final verdict.
	Escalate bool
	// Crisis is set (with CrisisHit) when a crisis pattern matched.
	Crisis    crisis.Category
	CrisisHit bool
	// Label and Confidence echo the classifier's verdict when it ran.
	Label      string
	Confidence float64
}

// EscalationService evaluates messages against the crisis detector and the
// intent classifier.
type EscalationService struct {
	// Classifier is the intent sidecar; nil disables intent-based escalation.
	Classifier intent.Classifier
	// Threshold is the minimum classifier confidence that escalates.
	Threshold float64
}

// NewEscalationService constructs an EscalationService. A non-positive
// threshold takes the default of 0.7.
func NewEscalationService(classifier intent.Classifier, threshold float64) *EscalationService {
	if threshold <= 0 {
		threshold = 0.7
	}
	return &EscalationService{Classifier: classifier, Threshold: threshold}
}

// Check evaluates one message. Crisis detection runs first and
// short-circuits: a hit escalates without consulting the classifier.
func (s *EscalationService) Check(ctx context.Context, text string) Decision {
	if cat, ok := crisis.Detect(text); ok {
		return Decision{Escalate: true, Crisis: cat, CrisisHit: true}
	}
	if s.Classifier == nil {
		return Decision{}
	}
	label, confidence, err := s.Classifier.Classify(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("intent classifier unavailable; not escalating")
		return Decision{}
	}
	d := Decision{Label: label, Confidence: confidence}
	if label == intent.LabelEscalate && confidence > s.Threshold {
		d.Escalate = true
	}
	return d
}
