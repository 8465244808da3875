package upstream

import (
	"fmt"
	"strings"
)

// SupportedExchanges lists the venues with a concrete Exchange adapter.
var SupportedExchanges = []string{"binance", "kraken", "bittrex"}

// New builds an Exchange adapter by name (case-insensitive), the upstream
// library equivalent of the Fetch Worker's step 1 lookup.
func New(name string) (Exchange, error) {
	switch strings.ToLower(name) {
	case "binance":
		return NewBinance(), nil
	case "kraken":
		return NewKraken(), nil
	case "bittrex":
		return NewBittrex(), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
}

// IsSupported reports whether name has a concrete adapter.
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, s := range SupportedExchanges {
		if s == name {
			return true
		}
	}
	return false
}
