// Package rules runs heuristic quality assertions against single values.
//
// Which validators run is decided by the value's mask shape and the field
// name, so only plausible checks are attempted: a "9.9" value is tested as a
// number, an "A9A 9A" value as a UK postcode, a value under a field named
// "*country*" against the country reference. Every check is best-effort: a
// value that cannot be parsed simply gets no assertion for that check.
package rules

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"dqprobe/internal/country"
	"dqprobe/internal/walker"
)

// Assertion names.
const (
	StringLength      = "string_length"
	IsNumeric         = "is_numeric"
	IsUKPostcode      = "is_uk_postcode"
	PossPostalCountry = "poss_postal_country"
	StdCountryISO3    = "std_country_iso3"
	StdRegionCode     = "std_region_code"
	StdDate           = "std_date"
	IsSensibleDOB     = "is_sensible_dob"
)

// Assertion is one named outcome.
type Assertion struct {
	Name  string
	Value walker.Value
}

// Result lists assertions in evaluation order.
type Result []Assertion

// Get returns the value of the named assertion.
func (r Result) Get(name string) (walker.Value, bool) {
	for _, a := range r {
		if a.Name == name {
			return a.Value, true
		}
	}
	return walker.Value{}, false
}

// Object renders r as a JSON object value.
func (r Result) Object() walker.Value {
	members := make([]walker.Member, len(r))
	for i, a := range r {
		members[i] = walker.Member{Key: a.Name, Value: a.Value}
	}
	return walker.ObjectValue(members...)
}

// Engine evaluates assertions. The zero value is not usable; call New.
type Engine struct {
	countries *country.Cache
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for date-of-birth sanity checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns an engine resolving countries through cache. A nil cache gets
// a fresh one over the built-in reference table.
func New(cache *country.Cache, opts ...Option) *Engine {
	if cache == nil {
		cache = country.NewCache(nil)
	}
	e := &Engine{countries: cache, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Countries returns the lookup cache the engine resolves through.
func (e *Engine) Countries() *country.Cache { return e.countries }

// Assert evaluates every applicable rule for one value. lu and hu are the
// value's low and high Unicode patterns.
func (e *Engine) Assert(field, raw, lu, hu string) Result {
	raw = strings.Trim(raw, `"`)
	name := strings.ToLower(field)

	res := Result{{Name: StringLength, Value: walker.NumberValue(strconv.Itoa(utf8.RuneCountInString(raw)))}}
	add := func(n string, v walker.Value) {
		res = append(res, Assertion{Name: n, Value: v})
	}

	if numericShape(lu) {
		if _, err := strconv.ParseFloat(raw, 64); err == nil {
			add(IsNumeric, walker.BoolValue(true))
		}
	}

	if ukPostcodeShape(lu) || ukPostcodeShape(hu) {
		add(IsUKPostcode, walker.BoolValue(IsValidUKPostcode(raw)))
	}

	if strings.Contains(name, "post") {
		if cands := PostalCountries(raw, hu); len(cands) > 0 {
			elems := make([]walker.Value, len(cands))
			for i, c := range cands {
				elems[i] = walker.StringValue(c)
			}
			add(PossPostalCountry, walker.ArrayValue(elems...))
		}
	}

	if strings.Contains(name, "country") && !strings.ContainsRune(hu, '9') {
		if iso3, ok := e.countries.Lookup(strings.TrimSpace(raw)); ok {
			add(StdCountryISO3, walker.StringValue(iso3))
			if region, ok := e.countries.Region(iso3); ok {
				add(StdRegionCode, walker.StringValue(region))
			}
		}
	}

	if dateShape(lu, raw) || strings.Contains(name, "date") {
		if d, ok := ParseDate(raw); ok {
			add(StdDate, walker.StringValue(d.Format(time.DateOnly)))
		}
	}

	if strings.Contains(name, "dob") && dobShape(hu) {
		if d, ok := ParseDate(raw); ok {
			add(IsSensibleDOB, walker.BoolValue(SensibleDOB(d, e.now())))
		}
	}

	return res
}

func numericShape(lu string) bool {
	lu = strings.TrimPrefix(lu, "-")
	return lu == "9" || lu == "9.9"
}
