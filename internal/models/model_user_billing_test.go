package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drydocs/billing/pkg/types"
)

func TestUserBilling_HasAccess(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name string
		row  *UserBilling
		want bool
	}{
		{"nil row", nil, false},
		{"trial", &UserBilling{Status: types.SubscriptionStatusTrial}, true},
		{"active", &UserBilling{Status: types.SubscriptionStatusActive}, true},
		{"past due", &UserBilling{Status: types.SubscriptionStatusPastDue}, false},
		{"expired", &UserBilling{Status: types.SubscriptionStatusExpired}, false},
		{
			name: "canceled inside paid period",
			row:  &UserBilling{Status: types.SubscriptionStatusCanceled, CurrentPeriodEnd: &future},
			want: true,
		},
		{
			name: "canceled after paid period",
			row:  &UserBilling{Status: types.SubscriptionStatusCanceled, CurrentPeriodEnd: &past},
			want: false,
		},
		{
			name: "canceled with no period end",
			row:  &UserBilling{Status: types.SubscriptionStatusCanceled},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.row.HasAccess(now))
		})
	}
}
