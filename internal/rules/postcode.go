package rules

import (
	"regexp"
	"strings"

	"dqprobe/internal/mask"
)

// ukPostcodeRe covers standard outward/inward codes plus BFPO, overseas
// territory and GIR 0AA forms.
var ukPostcodeRe = regexp.MustCompile(`^(([A-Z][A-HJ-Y]?\d[A-Z\d]?|ASCN|STHL|TDCU|BBND|[BFS]IQQ|PCRN|TKCA) ?\d[A-Z]{2}|BFPO ?\d{1,4}|(KY\d|MSR|VG|AI)[ -]?\d{4}|[A-Z]{2} ?\d{2}|GE ?CX|GIR ?0A{2}|SAN ?TA1)$`)

// Low-grain shapes of UK postcodes, spaced and unspaced.
var ukShapes = map[string]bool{
	"A9 9A":  true,
	"A9A 9A": true,
	"A9A":    true,
	"A9A9A":  true,
}

func ukPostcodeShape(pattern string) bool {
	if pattern == "" {
		return false
	}
	return ukShapes[mask.Mask(pattern, mask.Low)]
}

// IsValidUKPostcode reports whether s is a well-formed UK postcode.
func IsValidUKPostcode(s string) bool {
	return ukPostcodeRe.MatchString(strings.TrimSpace(s))
}

type postalFormat struct {
	shape     string
	countries []string
}

// postalFormats maps high Unicode shapes to countries using that format.
var postalFormats = []postalFormat{
	{"9999", []string{"AUS", "AUT", "BEL", "BGR", "CHE", "DNK", "HUN", "LUX", "NOR", "NZL", "PHL", "ZAF"}},
	{"99999", []string{"DEU", "DZA", "ESP", "FIN", "FRA", "HRV", "IDN", "ITA", "MAR", "MEX", "MYS", "THA", "TUR", "UKR", "USA"}},
	{"999 99", []string{"CZE", "GRC", "SVK", "SWE"}},
	{"999999", []string{"CHN", "IND", "KAZ", "RUS", "SGP", "VNM"}},
	{"99999-9999", []string{"USA"}},
	{"99999-999", []string{"BRA"}},
	{"999-9999", []string{"JPN"}},
	{"99-999", []string{"POL"}},
	{"9999-999", []string{"PRT"}},
	{"9999 AA", []string{"NLD"}},
	{"9999AA", []string{"NLD"}},
	{"A9A 9A9", []string{"CAN"}},
	{"A9999AAA", []string{"ARG"}},
	{"999", []string{"ISL"}},
	{"A9 9AA", []string{"GBR"}},
	{"A99 9AA", []string{"GBR"}},
	{"AA9 9AA", []string{"GBR"}},
	{"AA99 9AA", []string{"GBR"}},
	{"A9A 9AA", []string{"GBR"}},
	{"AA9A 9AA", []string{"GBR"}},
}

// zeroLead lists countries whose numeric codes may start with "0". For
// four-digit codes only Australia (Northern Territory, 08xx) is kept.
var zeroLead = map[string]bool{
	"AUS": true,
	"DEU": true,
	"ESP": true,
	"FIN": true,
	"FRA": true,
	"ITA": true,
	"MEX": true,
	"USA": true,
	"CHN": true,
	"SGP": true,
}

// PostalCountries returns the ISO3 codes whose postal format matches hu,
// narrowed by leading-digit rules on raw. Unknown shapes return nil.
func PostalCountries(raw, hu string) []string {
	var cands []string
	for _, f := range postalFormats {
		if f.shape == hu {
			cands = f.countries
			break
		}
	}
	if len(cands) == 0 {
		return nil
	}
	if !strings.HasPrefix(strings.TrimSpace(raw), "0") || !strings.HasPrefix(hu, "9") {
		return append([]string(nil), cands...)
	}
	var out []string
	for _, c := range cands {
		if zeroLead[c] {
			out = append(out, c)
		}
	}
	return out
}
