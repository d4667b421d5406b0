package billing

import (
	"encoding/json"
	"time"

	"github.com/courselyhq/coursely/app/models"
)

const defaultCurrency = "usd"

// UnixToTimePtr converts a provider-native unix-second timestamp to a nullable
// local timestamp. Zero and negative values mean "absent".
func UnixToTimePtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// TimeOrNow returns t if set, otherwise the current time. Used when the
// provider omits a timestamp the local record requires (e.g. ended_at on a
// deleted subscription).
func TimeOrNow(t *time.Time) *time.Time {
	if t != nil {
		return t
	}
	now := time.Now().UTC()
	return &now
}

// DerivePrice extracts price_amount/price_currency from the first line item of
// a subscription's item list. The currency falls back to usd when the provider
// omits it. No resolvable item yields nil/nil.
func DerivePrice(items []SubscriptionItem) (*int64, *string) {
	if len(items) == 0 {
		return nil, nil
	}
	item := items[0]
	if item.UnitAmount == nil {
		return nil, nil
	}
	amount := *item.UnitAmount
	currency := item.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	return &amount, &currency
}

// ParseAttribution decodes the serialized attribution blob carried in checkout
// metadata. Invalid JSON is swallowed; the record still gets an empty map.
func ParseAttribution(raw string) models.JSONMap {
	out := models.JSONMap{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return models.JSONMap{}
	}
	return out
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
