// Package tickerparser normalises heterogeneous raw ticker payloads from
// upstream exchanges into a canonical TickerBatch (spec §4.1). The shape of
// a raw entry is duck-typed in the source system; here it is an explicit
// options record with every recognised key optional, per spec.md §9's
// "duck-typed ticker records" redesign note.
package tickerparser

import (
	"strings"

	"marketmanager/internal/models"
	"marketmanager/pkg/utils"
)

// separators is the ordered set of characters tried when splitting a
// symbol-ish field into (base, quote). First found wins (spec §4.1 rule 2).
var separators = []string{"/", "-", "_"}

// RawEntry is one upstream ticker record, after JSON-decoding into a
// generic map and lifting the recognised fields. Every field is optional;
// zero values mean "absent" exactly as a missing/null JSON value would.
type RawEntry struct {
	Symbol     string
	InfoSymbol string // info.symbol
	Market     string
	Name       string
	Underlying string
	Quote      string
	Base       string
	Last       float64
	Bid        float64
	Ask        float64
	High       float64
	Low        float64
	Open       float64
	Close      float64
	BaseVolume float64
}

// FromRaw builds a RawEntry from a decoded JSON object (map[string]interface{}),
// the shape json-iterator/go hands back for an upstream payload whose exact
// fields are unknown ahead of time. Unrecognised keys are ignored; type
// mismatches are treated as absent rather than an error (spec §4.1: this
// stage never fails the run).
func FromRaw(raw map[string]interface{}) RawEntry {
	e := RawEntry{
		Symbol:     stringField(raw, "symbol"),
		Market:     stringField(raw, "market"),
		Name:       stringField(raw, "name"),
		Underlying: stringField(raw, "underlying"),
		Quote:      stringField(raw, "quote"),
		Base:       stringField(raw, "base"),
		Last:       floatField(raw, "last"),
		Bid:        floatField(raw, "bid"),
		Ask:        floatField(raw, "ask"),
		High:       floatField(raw, "high"),
		Low:        floatField(raw, "low"),
		Open:       floatField(raw, "open"),
		Close:      floatField(raw, "close"),
		BaseVolume: floatField(raw, "baseVolume"),
	}
	if info, ok := raw["info"].(map[string]interface{}); ok {
		e.InfoSymbol = stringField(info, "symbol")
	}
	return e
}

func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func floatField(m map[string]interface{}, key string) float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// resolveBaseQuote implements the resolution order of spec §4.1, returning
// (base, quote, true) on success or ("", "", false) when every rule fails.
func resolveBaseQuote(key string, e RawEntry) (string, string, bool) {
	// Rule 1: underlying + name containing underlying as a substring.
	// quote is always underlying; base is whichever side of name is left
	// over once underlying (prefix or suffix) and its separator are
	// stripped.
	if e.Underlying != "" && e.Name != "" && strings.Contains(e.Name, e.Underlying) {
		var remainder string
		if strings.HasPrefix(e.Name, e.Underlying) {
			remainder = strings.TrimPrefix(e.Name, e.Underlying)
		} else {
			remainder = strings.TrimSuffix(e.Name, e.Underlying)
		}
		if base, ok := splitSingleSide(remainder); ok {
			return base, e.Underlying, true
		}
	}

	// Rule 2: symbol, market, name, then info.symbol (the only field read
	// from info), split on the first separator found.
	candidates := []string{e.Symbol, e.Market, e.Name, e.InfoSymbol}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if base, quote, ok := splitOnSeparator(c); ok {
			return base, quote, true
		}
	}

	// Rule 3: fall back to splitting the input key by '/'.
	if base, quote, ok := splitOn(key, "/"); ok {
		return base, quote, true
	}

	return "", "", false
}

// splitSingleSide strips any separator characters left over once
// `underlying` has been removed from `name`, returning the remaining token.
func splitSingleSide(remainder string) (string, bool) {
	remainder = strings.Trim(remainder, "/-_")
	if remainder == "" {
		return "", false
	}
	return remainder, true
}

// splitOnSeparator tries each separator in order and returns the first
// successful (base, quote) split.
func splitOnSeparator(s string) (string, string, bool) {
	for _, sep := range separators {
		if base, quote, ok := splitOn(s, sep); ok {
			return base, quote, true
		}
	}
	return "", "", false
}

func splitOn(s, sep string) (string, string, bool) {
	idx := strings.Index(s, sep)
	if idx <= 0 || idx >= len(s)-len(sep) {
		return "", "", false
	}
	return s[:idx], s[idx+len(sep):], true
}

// Parse builds a TickerBatch from a mapping of upstream key -> raw record,
// for one exchange (spec §4.1). Malformed entries are dropped and counted;
// this stage never returns an error.
func Parse(raw map[string]map[string]interface{}, exchangeID int) (models.TickerBatch, int) {
	batch := make(models.TickerBatch, len(raw))
	dropped := 0

	for key, rawEntry := range raw {
		entry := FromRaw(rawEntry)
		base, quote, ok := resolveBaseQuote(key, entry)
		if !ok {
			dropped++
			utils.L().Debug("dropping malformed ticker entry",
				utils.String("key", key), utils.Int("exchange_id", exchangeID))
			continue
		}

		te := models.TickerEntry{
			Base:       strings.ToUpper(base),
			Quote:      strings.ToUpper(quote),
			Last:       entry.Last,
			Bid:        entry.Bid,
			Ask:        entry.Ask,
			Open:       entry.Open,
			Close:      entry.Close,
			High:       entry.High,
			Low:        entry.Low,
			Volume:     entry.BaseVolume,
			ExchangeID: exchangeID,
		}
		// Collisions on canonical name within one batch: later entries win.
		batch[te.CanonicalName()] = te
	}

	return batch, dropped
}
