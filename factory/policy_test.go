package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/factory"
)

func TestParse_FullConfig(t *testing.T) {
	cfg, err := factory.New().Parse(`{
		"cards": [
			{
				"key": "transit",
				"title": "Transit Card",
				"closing": {"type": "day_of_month", "day": 5},
				"payment_day": 4,
				"allows_split": true,
				"allows_bonus": true
			},
			{
				"key": "everyday",
				"title": "Everyday Card",
				"closing": {"type": "end_of_month"},
				"payment_day": 27
			}
		],
		"recurring": [
			{"label": "Gym", "card": "everyday", "amount": 4800, "payment_day": 27},
			{"label": "Water", "card": "everyday", "amount": 3200, "payment_day": 15, "odd_months_only": true}
		]
	}`)
	require.NoError(t, err)
	require.Len(t, cfg.Cards, 2)
	require.Len(t, cfg.Recurring, 2)

	transit := cfg.Cards[0]
	assert.Equal(t, billing.CardKey("transit"), transit.Key)
	assert.Equal(t, billing.DayOfMonth(5), transit.Closing)
	assert.True(t, transit.AllowsBonus)
	assert.True(t, transit.Active)

	everyday := cfg.Cards[1]
	assert.Equal(t, billing.EndOfMonth(), everyday.Closing)
	assert.False(t, everyday.AllowsSplit)

	assert.True(t, cfg.Recurring[1].OddMonthsOnly)
	assert.Equal(t, billing.CardKey("everyday"), cfg.Recurring[0].CardKey)
}

func TestParse_Rejections(t *testing.T) {
	f := factory.New()

	tests := []struct {
		name, raw string
	}{
		{"malformed json", `{`},
		{"no cards", `{"cards": []}`},
		{"duplicate key", `{"cards": [
			{"key": "a", "title": "A", "closing": {"type": "end_of_month"}, "payment_day": 1},
			{"key": "a", "title": "A2", "closing": {"type": "end_of_month"}, "payment_day": 2}
		]}`},
		{"unknown closing type", `{"cards": [
			{"key": "a", "title": "A", "closing": {"type": "weekly"}, "payment_day": 1}
		]}`},
		{"invalid payment day", `{"cards": [
			{"key": "a", "title": "A", "closing": {"type": "end_of_month"}, "payment_day": 0}
		]}`},
		{"recurring references unknown card", `{"cards": [
			{"key": "a", "title": "A", "closing": {"type": "end_of_month"}, "payment_day": 1}
		], "recurring": [
			{"label": "Gym", "card": "b", "amount": 100, "payment_day": 1}
		]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.Parse(tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestPreset_IsValid(t *testing.T) {
	cfg := factory.Preset()
	require.NotEmpty(t, cfg.Cards)

	for _, p := range cfg.Cards {
		assert.NoError(t, p.Validate(), "card %s", p.Key)
		assert.True(t, p.Active, "card %s", p.Key)
	}

	keys := make(map[billing.CardKey]bool)
	for _, p := range cfg.Cards {
		keys[p.Key] = true
	}
	for _, r := range cfg.Recurring {
		assert.True(t, keys[r.CardKey], "recurring %q references %q", r.Label, r.CardKey)
	}
}
