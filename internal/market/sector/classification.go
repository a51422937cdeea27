package sector

import (
	"sync"
)

// Granularity selects which of the two static classifications is active
type Granularity string

const (
	GranularityDetailed Granularity = "detailed" // 세분류
	GranularityBasic    Granularity = "basic"    // 대분류
)

// detailedSectors returns the fine-grained sector -> member symbols mapping.
// Returned fresh on every call so callers can never mutate the canonical data.
func detailedSectors() map[string][]string {
	return map[string][]string{
		"메이저":  {"KRW-BTC", "KRW-ETH"},
		"플랫폼":  {"KRW-SOL", "KRW-ADA", "KRW-AVAX", "KRW-NEAR", "KRW-ATOM"},
		"디파이":  {"KRW-UNI", "KRW-AAVE", "KRW-LINK", "KRW-INJ"},
		"결제":   {"KRW-XRP", "KRW-XLM", "KRW-BCH", "KRW-LTC"},
		"밈":    {"KRW-DOGE", "KRW-SHIB", "KRW-PEPE", "KRW-BONK"},
		"게임":   {"KRW-SAND", "KRW-MANA", "KRW-AXS"},
		"AI":   {"KRW-FET", "KRW-RNDR", "KRW-NEAR"},
		"스토리지": {"KRW-FIL", "KRW-AR"},
	}
}

// basicSectors returns the coarse sector -> member symbols mapping
func basicSectors() map[string][]string {
	return map[string][]string{
		"메이저": {"KRW-BTC", "KRW-ETH"},
		"알트":  {"KRW-SOL", "KRW-ADA", "KRW-AVAX", "KRW-NEAR", "KRW-ATOM", "KRW-UNI", "KRW-AAVE", "KRW-LINK", "KRW-INJ", "KRW-XRP", "KRW-XLM", "KRW-BCH", "KRW-LTC", "KRW-SAND", "KRW-MANA", "KRW-AXS", "KRW-FET", "KRW-RNDR", "KRW-FIL", "KRW-AR"},
		"밈":   {"KRW-DOGE", "KRW-SHIB", "KRW-PEPE", "KRW-BONK"},
	}
}

// Classification maps sectors to member symbols at a switchable granularity
// ⭐ SSOT: 섹터 분류는 이 구조체에서만
//
// The derived symbol -> sectors reverse index is versioned: switching
// granularity bumps the version and the index is rebuilt lazily on the next
// lookup, never mutated in place under a reader.
type Classification struct {
	mu          sync.RWMutex
	granularity Granularity
	reverse     map[string][]string
	version     uint64 // bumped on every granularity change
	builtFor    uint64 // version the reverse index was built against
}

// NewClassification starts at detailed granularity
func NewClassification() *Classification {
	return &Classification{
		granularity: GranularityDetailed,
		version:     1,
	}
}

// Granularity returns the active granularity
func (c *Classification) Granularity() Granularity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.granularity
}

// SetGranularity switches the active classification. A no-op when the
// granularity is unchanged; otherwise the derived reverse index is
// invalidated and rebuilt lazily.
func (c *Classification) SetGranularity(g Granularity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.granularity == g {
		return
	}
	c.granularity = g
	c.version++
}

// Version returns the current classification version. Consumers caching
// derived state compare versions to detect staleness.
func (c *Classification) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.version
}

// Mapping returns a copy of the active sector -> symbols mapping
func (c *Classification) Mapping() map[string][]string {
	c.mu.RLock()
	g := c.granularity
	c.mu.RUnlock()

	return mappingFor(g)
}

func mappingFor(g Granularity) map[string][]string {
	if g == GranularityBasic {
		return basicSectors()
	}
	return detailedSectors()
}

// SectorsOf returns every sector containing symbol; nil for unclassified
// symbols. A symbol may belong to multiple sectors.
func (c *Classification) SectorsOf(symbol string) []string {
	c.mu.RLock()
	if c.builtFor == c.version && c.reverse != nil {
		sectors := c.reverse[symbol]
		c.mu.RUnlock()
		return sectors
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check: another goroutine may have rebuilt while we waited.
	if c.builtFor != c.version || c.reverse == nil {
		c.reverse = buildReverse(mappingFor(c.granularity))
		c.builtFor = c.version
	}

	return c.reverse[symbol]
}

// buildReverse derives the symbol -> sectors index from a mapping
func buildReverse(mapping map[string][]string) map[string][]string {
	reverse := make(map[string][]string)
	for sector, symbols := range mapping {
		for _, symbol := range symbols {
			reverse[symbol] = append(reverse[symbol], sector)
		}
	}
	return reverse
}
