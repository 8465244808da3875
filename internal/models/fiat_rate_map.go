package models

// FiatRateMap maps currency symbol -> fiat price in the canonical fiat unit,
// derived by the Fiat Rate Resolver from one run's TickerBatch (spec §3/§4.2,
// transient). Consumed by the Snapshot Updater for summarisation and by the
// Timeseries Writer for fiat-series emission.
type FiatRateMap map[string]float64

// Get returns (price, true) if currency has a known rate, else (0, false).
func (m FiatRateMap) Get(currency string) (float64, bool) {
	v, ok := m[currency]
	return v, ok
}
