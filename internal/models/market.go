package models

import (
	"strings"
	"time"
)

// Market is a tradable pair snapshot for one exchange (spec §3). Identity is
// (exchange_id, name) where name is the canonical "BASE-QUOTE" form.
type Market struct {
	ID         int       `json:"id" db:"id"`
	ExchangeID int       `json:"exchange_id" db:"exchange_id"`
	Name       string    `json:"name" db:"name"`
	Base       string    `json:"base" db:"base"`
	Quote      string    `json:"quote" db:"quote"`
	Last       float64   `json:"last" db:"last"`
	Bid        float64   `json:"bid" db:"bid"`
	Ask        float64   `json:"ask" db:"ask"`
	Open       float64   `json:"open" db:"open"`
	Close      float64   `json:"close" db:"close"`
	High       float64   `json:"high" db:"high"`
	Low        float64   `json:"low" db:"low"`
	Volume     float64   `json:"volume" db:"volume"` // base-denominated
	Updated    time.Time `json:"updated" db:"updated"`
}

// CanonicalName builds the "<BASE>-<QUOTE>" form used as Market identity,
// per spec §4.1.
func CanonicalName(base, quote string) string {
	return strings.ToUpper(base) + "-" + strings.ToUpper(quote)
}
