package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBillingEvent_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from BillingEventStatus
		to   BillingEventStatus
		want bool
	}{
		{"pending to processing", BillingEventStatusPending, BillingEventStatusProcessing, true},
		{"processing to completed", BillingEventStatusProcessing, BillingEventStatusCompleted, true},
		{"processing to failed", BillingEventStatusProcessing, BillingEventStatusFailed, true},
		{"processing to skipped", BillingEventStatusProcessing, BillingEventStatusSkipped, true},
		{"failed retried through processing", BillingEventStatusFailed, BillingEventStatusProcessing, true},
		{"failed to completed", BillingEventStatusFailed, BillingEventStatusCompleted, true},
		{"skipped retried through processing", BillingEventStatusSkipped, BillingEventStatusProcessing, true},
		{"failed never back to pending", BillingEventStatusFailed, BillingEventStatusPending, false},
		{"completed is terminal vs processing", BillingEventStatusCompleted, BillingEventStatusProcessing, false},
		{"completed is terminal vs failed", BillingEventStatusCompleted, BillingEventStatusFailed, false},
		{"completed is terminal vs completed", BillingEventStatusCompleted, BillingEventStatusCompleted, false},
		{"processing never back to pending", BillingEventStatusProcessing, BillingEventStatusPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &BillingEvent{Status: tt.from}
			assert.Equal(t, tt.want, e.CanTransitionTo(tt.to))
		})
	}
}

func TestBillingEvent_CanTransitionTo_NilRow(t *testing.T) {
	var e *BillingEvent
	assert.True(t, e.CanTransitionTo(BillingEventStatusProcessing))
}
