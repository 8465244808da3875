package models

// TickerEntry is one normalised pair record produced by the Ticker Parser
// for a single run (spec §3, transient).
type TickerEntry struct {
	Base       string
	Quote      string
	Last       float64
	Bid        float64
	Ask        float64
	Open       float64
	Close      float64
	High       float64
	Low        float64
	Volume     float64 // base-denominated, sourced from baseVolume
	ExchangeID int
}

// CanonicalName returns the "<BASE>-<QUOTE>" identity of this entry.
func (e TickerEntry) CanonicalName() string {
	return CanonicalName(e.Base, e.Quote)
}

// TickerBatch maps canonical pair name -> TickerEntry for one Fetch Worker
// run (spec §3). Produced by the Ticker Parser, consumed by both updaters.
type TickerBatch map[string]TickerEntry
