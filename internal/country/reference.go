// Package country resolves free-text country names to ISO 3166-1 alpha-3
// codes and continent region codes.
package country

import (
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

//go:embed countries.csv
var embeddedCSV string

// Country is one row of the reference table.
type Country struct {
	Name   string
	ISO2   string
	ISO3   string
	Region string
}

// Reference is an immutable name index over the reference table. Names, ISO2
// and ISO3 codes all resolve.
type Reference struct {
	byKey  map[string]Country
	byISO3 map[string]Country
}

var requiredColumns = []string{"name", "iso2", "iso3", "region"}

// LoadReference reads a CSV with a header containing name, iso2, iso3 and
// region columns (any order, extra columns ignored).
func LoadReference(r io.Reader) (*Reference, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("country: read header: %w", err)
	}
	col := make(map[string]int, len(hdr))
	for i, h := range hdr {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := col[c]; !ok {
			return nil, fmt.Errorf("country: missing column %q", c)
		}
	}

	ref := &Reference{
		byKey:  make(map[string]Country),
		byISO3: make(map[string]Country),
	}
	line := 1
	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("country: line %d: %w", line, err)
		}
		get := func(name string) string {
			ix := col[name]
			if ix >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[ix])
		}
		c := Country{
			Name:   get("name"),
			ISO2:   strings.ToUpper(get("iso2")),
			ISO3:   strings.ToUpper(get("iso3")),
			Region: strings.ToUpper(get("region")),
		}
		if c.Name == "" || len(c.ISO3) != 3 {
			return nil, fmt.Errorf("country: line %d: need name and 3-letter iso3", line)
		}
		// Alias rows share an ISO3; the first row names the country.
		if _, ok := ref.byISO3[c.ISO3]; !ok {
			ref.byISO3[c.ISO3] = c
		}
		canonical := ref.byISO3[c.ISO3]
		for _, k := range []string{c.Name, c.ISO2, c.ISO3} {
			if k == "" {
				continue
			}
			if _, ok := ref.byKey[Normalize(k)]; !ok {
				ref.byKey[Normalize(k)] = canonical
			}
		}
	}
	if len(ref.byISO3) == 0 {
		return nil, errors.New("country: reference table is empty")
	}
	return ref, nil
}

var defaultReference = sync.OnceValue(func() *Reference {
	ref, err := LoadReference(strings.NewReader(embeddedCSV))
	if err != nil {
		panic(err)
	}
	return ref
})

// DefaultReference returns the table compiled into the binary.
func DefaultReference() *Reference {
	return defaultReference()
}

// Find resolves a country name or code.
func (r *Reference) Find(name string) (Country, bool) {
	c, ok := r.byKey[Normalize(name)]
	return c, ok
}

// ByISO3 returns the canonical row for an alpha-3 code.
func (r *Reference) ByISO3(iso3 string) (Country, bool) {
	c, ok := r.byISO3[strings.ToUpper(iso3)]
	return c, ok
}

// Len reports the number of distinct countries.
func (r *Reference) Len() int { return len(r.byISO3) }

var folder = cases.Fold()

// Normalize produces the lookup key for a name: accents stripped, case
// folded, dots dropped and whitespace collapsed.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	stripped = strings.ReplaceAll(stripped, ".", "")
	return strings.Join(strings.Fields(folder.String(stripped)), " ")
}
