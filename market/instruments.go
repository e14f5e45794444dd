// market/instruments.go
package market

import (
	"fmt"
	"sort"
	"strings"
)

const (
	Exchange       = "JSE"
	Currency       = "ZAR"
	CurrencySymbol = "R"
	Timezone       = "Africa/Johannesburg"
	TradingHours   = "09:00 - 17:00 SAST"

	// DefaultSettlementDays is the JSE T+3 settlement lag.
	DefaultSettlementDays = 3
)

// Sectors used by the built-in JSE catalog.
const (
	SectorFinancials = "Financial Services"
	SectorResources  = "Mining & Resources"
	SectorConsumer   = "Consumer Goods"
	SectorTelecoms   = "Telecommunications"
	SectorTechnology = "Technology"
)

// Instrument is immutable reference data for one tradable symbol.
type Instrument struct {
	Symbol         string `json:"symbol" yaml:"symbol"`
	Name           string `json:"name" yaml:"name"`
	Sector         string `json:"sector" yaml:"sector"`
	SettlementDays int    `json:"settlement_days" yaml:"settlement_days"`
}

// Catalog is a read-only symbol -> Instrument lookup.
// It is built once at run start and never mutated afterwards.
type Catalog struct {
	instruments map[string]Instrument
}

// NewCatalog builds a catalog, rejecting duplicate or empty symbols.
func NewCatalog(instruments ...Instrument) (*Catalog, error) {
	c := &Catalog{instruments: make(map[string]Instrument, len(instruments))}
	for _, in := range instruments {
		sym := strings.ToUpper(strings.TrimSpace(in.Symbol))
		if sym == "" {
			return nil, fmt.Errorf("catalog: empty symbol")
		}
		if _, dup := c.instruments[sym]; dup {
			return nil, fmt.Errorf("catalog: duplicate symbol %q", sym)
		}
		if in.Sector == "" {
			return nil, fmt.Errorf("catalog: %s has no sector", sym)
		}
		if in.SettlementDays < 0 {
			return nil, fmt.Errorf("catalog: %s has negative settlement lag", sym)
		}
		in.Symbol = sym
		c.instruments[sym] = in
	}
	return c, nil
}

// Lookup returns the instrument for symbol.
func (c *Catalog) Lookup(symbol string) (Instrument, bool) {
	in, ok := c.instruments[symbol]
	return in, ok
}

// Sector returns the sector tag of symbol or an error for unknown symbols.
func (c *Catalog) Sector(symbol string) (string, error) {
	in, ok := c.instruments[symbol]
	if !ok {
		return "", fmt.Errorf("unknown instrument %s", symbol)
	}
	return in.Sector, nil
}

// Symbols returns every symbol in ascending order.
func (c *Catalog) Symbols() []string {
	out := make([]string, 0, len(c.instruments))
	for s := range c.instruments {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Instruments returns every instrument ordered by symbol.
func (c *Catalog) Instruments() []Instrument {
	out := make([]Instrument, 0, len(c.instruments))
	for _, s := range c.Symbols() {
		out = append(out, c.instruments[s])
	}
	return out
}

// Len is the number of instruments in the catalog.
func (c *Catalog) Len() int { return len(c.instruments) }

var jseTop = []Instrument{
	{Symbol: "NPN", Name: "Naspers", Sector: SectorTechnology},
	{Symbol: "BHP", Name: "BHP Group", Sector: SectorResources},
	{Symbol: "AGL", Name: "Anglo American", Sector: SectorResources},
	{Symbol: "MTN", Name: "MTN Group", Sector: SectorTelecoms},
	{Symbol: "VOD", Name: "Vodacom", Sector: SectorTelecoms},
	{Symbol: "SBK", Name: "Standard Bank", Sector: SectorFinancials},
	{Symbol: "FSR", Name: "FirstRand", Sector: SectorFinancials},
	{Symbol: "NED", Name: "Nedbank", Sector: SectorFinancials},
	{Symbol: "ABG", Name: "Absa Group", Sector: SectorFinancials},
	{Symbol: "SOL", Name: "Sasol", Sector: SectorResources},
	{Symbol: "IMP", Name: "Impala Platinum", Sector: SectorResources},
	{Symbol: "ANG", Name: "AngloGold Ashanti", Sector: SectorResources},
	{Symbol: "AMS", Name: "Anglo American Platinum", Sector: SectorResources},
	{Symbol: "SHP", Name: "Shoprite", Sector: SectorConsumer},
	{Symbol: "WHL", Name: "Woolworths", Sector: SectorConsumer},
	{Symbol: "TBS", Name: "Tiger Brands", Sector: SectorConsumer},
	{Symbol: "BID", Name: "Bid Corporation", Sector: SectorConsumer},
	{Symbol: "TFG", Name: "The Foschini Group", Sector: SectorConsumer},
	{Symbol: "MRP", Name: "Mr Price Group", Sector: SectorConsumer},
	{Symbol: "CLS", Name: "Clicks Group", Sector: SectorConsumer},
}

// JSE returns the built-in catalog of the largest JSE listings by market cap.
func JSE() *Catalog {
	ins := make([]Instrument, len(jseTop))
	for i, in := range jseTop {
		in.SettlementDays = DefaultSettlementDays
		ins[i] = in
	}
	c, err := NewCatalog(ins...)
	if err != nil {
		// static data
		panic(err)
	}
	return c
}

// ValidTicker reports whether ticker looks like a JSE ticker (3-4 letters)
// and is present in the catalog.
func (c *Catalog) ValidTicker(ticker string) bool {
	if len(ticker) < 3 || len(ticker) > 4 {
		return false
	}
	for _, r := range ticker {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	_, ok := c.instruments[ticker]
	return ok
}

// SplitTickers normalizes a comma separated ticker list and partitions it
// into tickers known to the catalog and rejected ones, preserving input order.
func (c *Catalog) SplitTickers(list string) (valid, invalid []string) {
	seen := map[string]bool{}
	for _, raw := range strings.Split(list, ",") {
		t := strings.ToUpper(strings.TrimSpace(raw))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		if c.ValidTicker(t) {
			valid = append(valid, t)
		} else {
			invalid = append(invalid, t)
		}
	}
	return valid, invalid
}
