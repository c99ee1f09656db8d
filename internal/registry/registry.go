package registry

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/market-feed/internal/model"
)

// Registry groups the fixed instrument set by source. Immutable after
// construction.
type Registry struct {
	instruments []model.Instrument
	bySource    map[string][]model.Instrument
}

// New builds a registry from the resolved instrument list.
func New(instruments []model.Instrument) *Registry {
	r := &Registry{
		instruments: instruments,
		bySource:    make(map[string][]model.Instrument),
	}
	for _, inst := range instruments {
		r.bySource[inst.Source] = append(r.bySource[inst.Source], inst)
	}
	return r
}

// Instruments returns all tracked instruments.
func (r *Registry) Instruments() []model.Instrument {
	return r.instruments
}

// Sources returns the distinct source names, sorted.
func (r *Registry) Sources() []string {
	sources := make([]string, 0, len(r.bySource))
	for s := range r.bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	return sources
}

// InstrumentsFor returns the instruments served by one source.
func (r *Registry) InstrumentsFor(source string) []model.Instrument {
	return r.bySource[source]
}

// IndexKey returns the unified key whose price is the underlying
// reference for an instrument group.
func IndexKey(inst model.Instrument) string {
	if inst.Settlement == model.SettlementUSD {
		return inst.BaseSymbol + "_USDC"
	}
	return inst.BaseSymbol + "-PERPETUAL"
}

// PerpKey returns the unified key of the perpetual tracked alongside the
// index for an instrument group.
func PerpKey(inst model.Instrument) string {
	if inst.Settlement == model.SettlementUSD {
		return inst.BaseSymbol + "_USDC-PERPETUAL"
	}
	return inst.BaseSymbol + "-PERPETUAL"
}

// ReferenceKeys returns the keys that serve as the underlying price
// reference for an instrument group. USD settlement watches the USDC pair
// and the linear perp; coin settlement watches the inverse perp and the
// USDC pair as a secondary reference.
func ReferenceKeys(inst model.Instrument) []string {
	if inst.Settlement == model.SettlementUSD {
		return []string{inst.BaseSymbol + "_USDC", inst.BaseSymbol + "_USDC-PERPETUAL"}
	}
	return []string{inst.BaseSymbol + "-PERPETUAL", inst.BaseSymbol + "_USDC"}
}

// StrikeMap is the tradable option structure for one expiry: the sorted
// strike ladder plus the call/put contract name per strike.
type StrikeMap struct {
	Strikes []float64
	Calls   map[float64]string
	Puts    map[float64]string
}

// OptionStructure selects the option contracts within [lo, hi] strike for
// the target expiry codes and groups them per expiry. Contracts without a
// parseable name or strike are skipped.
func OptionStructure(metas []model.InstrumentMeta, targetDates []string, lo, hi float64) map[string]*StrikeMap {
	dates := make(map[string]struct{}, len(targetDates))
	for _, d := range targetDates {
		dates[d] = struct{}{}
	}

	structure := make(map[string]*StrikeMap)
	for _, m := range metas {
		parts := strings.Split(m.Name, "-")
		if len(parts) < 4 {
			continue
		}
		date := parts[1]
		if _, ok := dates[date]; !ok {
			continue
		}

		strike := m.Strike
		if strike <= 0 {
			parsed, err := strconv.ParseFloat(parts[2], 64)
			if err != nil {
				continue
			}
			strike = parsed
		}
		if strike < lo || strike > hi {
			continue
		}

		sm, ok := structure[date]
		if !ok {
			sm = &StrikeMap{
				Calls: make(map[float64]string),
				Puts:  make(map[float64]string),
			}
			structure[date] = sm
		}
		if _, seen := sm.Calls[strike]; !seen {
			if _, seen := sm.Puts[strike]; !seen {
				sm.Strikes = append(sm.Strikes, strike)
			}
		}

		switch parts[3] {
		case "C":
			sm.Calls[strike] = m.Name
		case "P":
			sm.Puts[strike] = m.Name
		}
	}

	for _, sm := range structure {
		sort.Float64s(sm.Strikes)
	}
	return structure
}

// Names returns every contract name in the structure.
func (sm *StrikeMap) Names() []string {
	names := make([]string, 0, len(sm.Calls)+len(sm.Puts))
	for _, k := range sm.Strikes {
		if nm, ok := sm.Calls[k]; ok {
			names = append(names, nm)
		}
		if nm, ok := sm.Puts[k]; ok {
			names = append(names, nm)
		}
	}
	return names
}

// Expiries extracts the distinct expiry codes (e.g., "27MAR26") from
// contract names, sorted by date. Unparseable codes sort last.
func Expiries(metas []model.InstrumentMeta) []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, m := range metas {
		parts := strings.Split(m.Name, "-")
		if len(parts) < 2 {
			continue
		}
		code := parts[1]
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	sort.Slice(codes, func(i, j int) bool {
		ti, erri := ParseExpiry(codes[i])
		tj, errj := ParseExpiry(codes[j])
		if erri != nil {
			return false
		}
		if errj != nil {
			return true
		}
		return ti.Before(tj)
	})
	return codes
}

// ParseExpiry parses an expiry code like "27MAR26" or "8AUG25" into a time.
func ParseExpiry(code string) (time.Time, error) {
	// Go month abbreviations are title case; exchange codes are upper.
	b := []byte(strings.ToUpper(code))
	for i := 1; i < len(b); i++ {
		prevLetter := (b[i-1] >= 'A' && b[i-1] <= 'Z') || (b[i-1] >= 'a' && b[i-1] <= 'z')
		if b[i] >= 'A' && b[i] <= 'Z' && prevLetter {
			b[i] += 'a' - 'A'
		}
	}
	return time.Parse("2Jan06", string(b))
}
