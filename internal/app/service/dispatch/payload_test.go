package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_MalformedIsPermanent(t *testing.T) {
	var p subscriptionPayload
	err := decodePayload([]byte(`{"id": `), &p)
	require.Error(t, err)
	assert.True(t, isPermanent(err))
}

func TestSubscriptionPayload_PeriodBounds(t *testing.T) {
	t.Run("top level fields win", func(t *testing.T) {
		var p subscriptionPayload
		raw := `{
			"id": "sub_1",
			"current_period_start": 1700000000,
			"current_period_end": 1702592000,
			"items": {"data": [{"current_period_start": 1, "current_period_end": 2}]}
		}`
		require.NoError(t, decodePayload([]byte(raw), &p))

		start, end := p.periodBounds()
		require.NotNil(t, start)
		require.NotNil(t, end)
		assert.Equal(t, time.Unix(1700000000, 0), *start)
		assert.Equal(t, time.Unix(1702592000, 0), *end)
	})

	t.Run("falls back to first item", func(t *testing.T) {
		var p subscriptionPayload
		raw := `{
			"id": "sub_1",
			"items": {"data": [{"current_period_start": 1700000000, "current_period_end": 1702592000}]}
		}`
		require.NoError(t, decodePayload([]byte(raw), &p))

		start, end := p.periodBounds()
		require.NotNil(t, start)
		require.NotNil(t, end)
		assert.Equal(t, time.Unix(1700000000, 0), *start)
		assert.Equal(t, time.Unix(1702592000, 0), *end)
	})

	t.Run("absent everywhere stays nil", func(t *testing.T) {
		var p subscriptionPayload
		require.NoError(t, decodePayload([]byte(`{"id": "sub_1"}`), &p))

		start, end := p.periodBounds()
		assert.Nil(t, start)
		assert.Nil(t, end)
	})
}

func TestSubscriptionPayload_Plan(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "lookup key preferred",
			raw:  `{"items": {"data": [{"price": {"lookup_key": "pro_monthly", "nickname": "Pro"}}]}}`,
			want: "pro_monthly",
		},
		{
			name: "nickname fallback",
			raw:  `{"items": {"data": [{"price": {"nickname": "Pro"}}]}}`,
			want: "Pro",
		},
		{
			name: "no items",
			raw:  `{"items": {"data": []}}`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p subscriptionPayload
			require.NoError(t, decodePayload([]byte(tt.raw), &p))
			assert.Equal(t, tt.want, p.plan())
		})
	}
}

func TestInvoicePayload_SubscriptionID(t *testing.T) {
	t.Run("top level field", func(t *testing.T) {
		var p invoicePayload
		require.NoError(t, decodePayload([]byte(`{"subscription": "sub_1"}`), &p))
		assert.Equal(t, "sub_1", p.subscriptionID())
	})

	t.Run("parent subscription details fallback", func(t *testing.T) {
		var p invoicePayload
		raw := `{"parent": {"subscription_details": {"subscription": "sub_2"}}}`
		require.NoError(t, decodePayload([]byte(raw), &p))
		assert.Equal(t, "sub_2", p.subscriptionID())
	})

	t.Run("neither present", func(t *testing.T) {
		var p invoicePayload
		require.NoError(t, decodePayload([]byte(`{"id": "in_1"}`), &p))
		assert.Equal(t, "", p.subscriptionID())
	})
}

func TestCheckoutSessionPayload_UserID(t *testing.T) {
	t.Run("metadata wins", func(t *testing.T) {
		p := checkoutSessionPayload{
			ClientReferenceID: "u_ref",
			Metadata:          map[string]string{"user_id": "u_meta"},
		}
		assert.Equal(t, "u_meta", p.userID())
	})

	t.Run("client reference fallback", func(t *testing.T) {
		p := checkoutSessionPayload{ClientReferenceID: "u_ref"}
		assert.Equal(t, "u_ref", p.userID())
	})

	t.Run("empty", func(t *testing.T) {
		p := checkoutSessionPayload{}
		assert.Equal(t, "", p.userID())
	})
}
