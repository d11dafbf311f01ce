/*
Package factory provides JSON to Go card-policy conversion.

PURPOSE:
  Converts JSON card definitions into billing.CardPolicy values and JSON
  recurring-charge definitions into estimate templates. This enables
  household configuration without code changes - the card set lives in a
  JSON document, and the factory creates the proper Go structs.

JSON SCHEMA:
  {
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
        "payment_day": 27,
        "allows_split": true
      }
    ],
    "recurring": [
      {
        "label": "Gym",
        "card": "everyday",
        "amount": 4800,
        "payment_day": 27,
        "odd_months_only": false
      }
    ]
  }

USAGE:
  f := factory.New()
  cfg, err := f.Parse(jsonString)
  registry := billing.NewStaticRegistry(cfg.Cards...)

  // Or start from the built-in preset:
  cfg := factory.Preset()

SEE ALSO:
  - billing/policy.go: CardPolicy type definition
  - estimate/snapshot.go: how templates become monthly snapshots
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/estimate"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ConfigJSON is the JSON representation of a household configuration.
type ConfigJSON struct {
	Cards     []CardJSON      `json:"cards"`
	Recurring []RecurringJSON `json:"recurring,omitempty"`
}

// CardJSON is the JSON representation of one card policy.
type CardJSON struct {
	Key         string      `json:"key"`
	Title       string      `json:"title"`
	Closing     ClosingJSON `json:"closing"`
	PaymentDay  int         `json:"payment_day"`
	AllowsSplit bool        `json:"allows_split,omitempty"`
	AllowsBonus bool        `json:"allows_bonus,omitempty"`
	Inactive    bool        `json:"inactive,omitempty"`
}

// ClosingJSON represents a closing rule.
type ClosingJSON struct {
	Type string `json:"type"` // end_of_month, day_of_month
	Day  int    `json:"day,omitempty"`
}

// RecurringJSON is the JSON representation of a recurring charge.
type RecurringJSON struct {
	Label         string `json:"label"`
	Card          string `json:"card"`
	Amount        int64  `json:"amount"`
	PaymentDay    int    `json:"payment_day"`
	OddMonthsOnly bool   `json:"odd_months_only,omitempty"`
	IsSplit       bool   `json:"is_split,omitempty"`
}

// Config is the parsed, validated configuration.
type Config struct {
	Cards     []billing.CardPolicy
	Recurring []estimate.TemplateInput
}

// =============================================================================
// FACTORY
// =============================================================================

type Factory struct{}

func New() *Factory { return &Factory{} }

// Parse converts a JSON configuration document into validated policies
// and template inputs.
func (f *Factory) Parse(raw string) (Config, error) {
	var doc ConfigJSON
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Config{}, fmt.Errorf("parsing configuration: %w", err)
	}
	if len(doc.Cards) == 0 {
		return Config{}, fmt.Errorf("configuration defines no cards")
	}

	cfg := Config{}
	seen := make(map[string]bool)
	for _, c := range doc.Cards {
		if seen[c.Key] {
			return Config{}, fmt.Errorf("duplicate card key %q", c.Key)
		}
		seen[c.Key] = true

		policy, err := f.card(c)
		if err != nil {
			return Config{}, err
		}
		cfg.Cards = append(cfg.Cards, policy)
	}

	for _, r := range doc.Recurring {
		if !seen[r.Card] {
			return Config{}, fmt.Errorf("recurring charge %q references unknown card %q", r.Label, r.Card)
		}
		cfg.Recurring = append(cfg.Recurring, estimate.TemplateInput{
			Label:         r.Label,
			CardKey:       billing.CardKey(r.Card),
			Amount:        r.Amount,
			PaymentDay:    r.PaymentDay,
			OddMonthsOnly: r.OddMonthsOnly,
			IsSplit:       r.IsSplit,
		})
	}
	return cfg, nil
}

func (f *Factory) card(c CardJSON) (billing.CardPolicy, error) {
	var rule billing.ClosingRule
	switch c.Closing.Type {
	case "end_of_month", "":
		rule = billing.EndOfMonth()
	case "day_of_month":
		rule = billing.DayOfMonth(c.Closing.Day)
	default:
		return billing.CardPolicy{}, fmt.Errorf("card %q: unknown closing type %q", c.Key, c.Closing.Type)
	}

	policy := billing.CardPolicy{
		Key:         billing.CardKey(c.Key),
		Title:       c.Title,
		Closing:     rule,
		PaymentDay:  c.PaymentDay,
		AllowsSplit: c.AllowsSplit,
		AllowsBonus: c.AllowsBonus,
		Active:      !c.Inactive,
	}
	if err := policy.Validate(); err != nil {
		return billing.CardPolicy{}, fmt.Errorf("card %q: %w", c.Key, err)
	}
	return policy, nil
}

// =============================================================================
// PRESET
// =============================================================================

// Preset returns the built-in starter configuration: one day-of-month
// card with bonus support and two month-end cards.
func Preset() Config {
	return Config{
		Cards: []billing.CardPolicy{
			{
				Key:         "transit",
				Title:       "Transit Card",
				Closing:     billing.DayOfMonth(5),
				PaymentDay:  4,
				AllowsSplit: true,
				AllowsBonus: true,
				Active:      true,
			},
			{
				Key:         "everyday",
				Title:       "Everyday Card",
				Closing:     billing.EndOfMonth(),
				PaymentDay:  27,
				AllowsSplit: true,
				Active:      true,
			},
			{
				Key:        "online",
				Title:      "Online Card",
				Closing:    billing.EndOfMonth(),
				PaymentDay: 10,
				Active:     true,
			},
		},
		Recurring: []estimate.TemplateInput{
			{Label: "Gym", CardKey: "everyday", Amount: 4800, PaymentDay: 27},
			{Label: "Water delivery", CardKey: "everyday", Amount: 3200, PaymentDay: 15, OddMonthsOnly: true},
		},
	}
}
