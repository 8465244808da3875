package models

import "time"

// CurrencyFiatPrices is the per-exchange fiat price of one currency symbol
// (spec §3), identity (currency, exchange). Written by the Snapshot Updater
// from the Fiat Rate Resolver's fiatPairs submap.
type CurrencyFiatPrices struct {
	ID         int       `json:"id" db:"id"`
	Currency   string    `json:"currency" db:"currency"`
	ExchangeID int       `json:"exchange_id" db:"exchange_id"`
	Price      float64   `json:"price" db:"price"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
