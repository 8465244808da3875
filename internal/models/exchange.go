package models

import "time"

// Exchange represents a venue MarketManager fetches ticker data from.
type Exchange struct {
	ID             int       `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"` // bittrex, binance, kraken, ...
	Interval       int       `json:"interval" db:"interval"`
	Enabled        bool      `json:"enabled" db:"enabled"`
	FiatMarkets    bool      `json:"fiat_markets" db:"fiat_markets"` // sticky once true
	URL            string    `json:"url,omitempty" db:"url"`
	Logo           string    `json:"logo,omitempty" db:"logo"`
	APIURL         string    `json:"api_url,omitempty" db:"api_url"`
	Volume         float64   `json:"volume" db:"volume"`
	TopPair        string    `json:"top_pair,omitempty" db:"top_pair"`
	TopPairVolume  float64   `json:"top_pair_volume" db:"top_pair_volume"`
	LastDataFetch  *time.Time `json:"last_data_fetch,omitempty" db:"last_data_fetch"`

	// APIKey/APISecret are AES-256-GCM encrypted at rest by
	// ExchangeRepository whenever ENCRYPTION_KEY is configured (pkg/crypto),
	// and never marshaled to JSON. Only populated for exchanges whose public
	// ticker endpoints grant a higher rate-limit tier to authenticated
	// callers.
	APIKey    string `json:"-" db:"api_key"`
	APISecret string `json:"-" db:"api_secret"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DueForFetch reports whether the exchange should be dispatched right now,
// per spec §4.6 step 3 (last_data_fetch==null OR now-last_data_fetch>=interval).
func (e *Exchange) DueForFetch(now time.Time) bool {
	if !e.Enabled {
		return false
	}
	if e.LastDataFetch == nil {
		return true
	}
	return now.Sub(*e.LastDataFetch) >= time.Duration(e.Interval)*time.Second
}
