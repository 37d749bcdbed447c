package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sentirun/internal/social"
)

// CacheTTL is how long a resolution stays valid
const CacheTTL = 7 * 24 * time.Hour

var (
	querySyntax   = regexp.MustCompile(`^[A-Z0-9][A-Z0-9 .&'\-]{0,63}$`)
	tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)
)

// defaultNames maps company names to their primary listing
var defaultNames = map[string]string{
	"APPLE":     "AAPL",
	"TESLA":     "TSLA",
	"MICROSOFT": "MSFT",
	"AMAZON":    "AMZN",
	"GOOGLE":    "GOOGL",
	"ALPHABET":  "GOOGL",
	"META":      "META",
	"FACEBOOK":  "META",
	"NVIDIA":    "NVDA",
	"NETFLIX":   "NFLX",
	"PAYPAL":    "PYPL",
	"COINBASE":  "COIN",
}

// defaultDisplay is the name matched in post text for each known symbol
var defaultDisplay = map[string]string{
	"AAPL":  "APPLE",
	"TSLA":  "TESLA",
	"MSFT":  "MICROSOFT",
	"AMZN":  "AMAZON",
	"GOOGL": "GOOGLE",
	"META":  "META",
	"NVDA":  "NVIDIA",
	"NFLX":  "NETFLIX",
	"PYPL":  "PAYPAL",
	"COIN":  "COINBASE",
}

// Resolver maps free-form queries to instruments
type Resolver struct {
	names   map[string]string // upper-case name -> symbol
	display map[string]string // symbol -> display name
	cache   Cache
}

// New creates a resolver with the built-in directory plus aliases
// (name -> symbol). cache may be nil.
func New(cache Cache, aliases map[string]string) *Resolver {
	r := &Resolver{
		names:   make(map[string]string, len(defaultNames)+len(aliases)),
		display: make(map[string]string, len(defaultDisplay)),
		cache:   cache,
	}
	for name, symbol := range defaultNames {
		r.names[name] = symbol
	}
	for symbol, name := range defaultDisplay {
		r.display[symbol] = name
	}
	for name, symbol := range aliases {
		name = NormalizeQuery(name)
		symbol = NormalizeQuery(symbol)
		if name == "" || symbol == "" {
			continue
		}
		r.names[name] = symbol
		if _, ok := r.display[symbol]; !ok {
			r.display[symbol] = name
		}
	}
	return r
}

// NormalizeQuery upper-cases and trims a query and strips a leading cashtag
func NormalizeQuery(query string) string {
	q := strings.ToUpper(strings.TrimSpace(query))
	q = strings.TrimPrefix(q, "$")
	return strings.Join(strings.Fields(q), " ")
}

// Resolve maps query to an instrument. Malformed queries fail with
// social.ErrInvalidInput before any lookup; unknown names fail with
// social.ErrSymbolNotFound.
func (r *Resolver) Resolve(ctx context.Context, query string) (social.Instrument, error) {
	q := NormalizeQuery(query)
	if q == "" {
		return social.Instrument{}, fmt.Errorf("empty query: %w", social.ErrInvalidInput)
	}
	if !querySyntax.MatchString(q) {
		return social.Instrument{}, fmt.Errorf("query %q: %w", query, social.ErrInvalidInput)
	}

	if r.cache != nil {
		inst, ok, err := r.cache.Get(ctx, q)
		if err != nil {
			log.Warn().Err(err).Str("query", q).Msg("Resolution cache read failed")
		} else if ok {
			return inst, nil
		}
	}

	inst, err := r.lookup(q)
	if err != nil {
		return social.Instrument{}, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, q, inst); err != nil {
			log.Warn().Err(err).Str("query", q).Msg("Resolution cache write failed")
		}
	}
	return inst, nil
}

func (r *Resolver) lookup(q string) (social.Instrument, error) {
	if symbol, ok := r.names[q]; ok {
		return social.Instrument{Symbol: symbol, DisplayName: r.displayName(symbol)}, nil
	}
	if tickerPattern.MatchString(q) {
		return social.Instrument{Symbol: q, DisplayName: r.displayName(q)}, nil
	}
	return social.Instrument{}, fmt.Errorf("%q: %w", q, social.ErrSymbolNotFound)
}

func (r *Resolver) displayName(symbol string) string {
	if name, ok := r.display[symbol]; ok {
		return name
	}
	return symbol
}
