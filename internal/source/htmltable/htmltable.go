// Package htmltable converts HTML pages into lines the profiler can read:
// a <table> becomes delimited lines, repeated record containers become JSON
// lines.
package htmltable

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dqprobe/internal/parser/csv"
	"dqprobe/internal/walker"
)

// ErrNoTable is returned when the requested table index does not exist.
var ErrNoTable = errors.New("htmltable: table not found")

// TableLines renders the index-th <table> (0-based, document order) as
// delimited lines, one per <tr>. Header and data cells (th, td) are treated
// alike, so a header row becomes the first line. Rows without cells are
// dropped. Cells are quoted where needed so csv.SplitLine reads them back.
func TableLines(r io.Reader, index int, delim rune) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find("table").Eq(index)
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNoTable, index, doc.Find("table").Length())
	}

	var lines []string
	// Nested tables keep their own rows.
	table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest("table").IsSelection(table)
	}).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("th, td")
		if cells.Length() == 0 {
			return
		}
		vals := make([]string, 0, cells.Length())
		cells.Each(func(_ int, c *goquery.Selection) {
			vals = append(vals, cellText(c))
		})
		lines = append(lines, csv.JoinLine(vals, delim))
	})
	return lines, nil
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// Mapping extracts one output field from a record container.
type Mapping struct {
	// Name is the output key.
	Name string
	// Selector is evaluated relative to the record. Empty means the record
	// itself.
	Selector string
	// Attr, when set, reads an attribute instead of the element text.
	Attr string
	// Match is an optional regular expression. Group 1 is used when
	// present, otherwise the whole match; no match drops the field.
	Match string
	// All collects every match into an array.
	All bool
}

// ParseMapping parses the compact form "name=selector", "name=selector@attr"
// or "name=@attr". A trailing "[]" on name sets All.
func ParseMapping(s string) (Mapping, error) {
	name, rest, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Mapping{}, fmt.Errorf("htmltable: mapping %q: want name=selector[@attr]", s)
	}
	m := Mapping{Name: name}
	if n, found := strings.CutSuffix(name, "[]"); found {
		m.Name, m.All = n, true
	}
	sel, attr, _ := strings.Cut(rest, "@")
	m.Selector = strings.TrimSpace(sel)
	m.Attr = strings.TrimSpace(attr)
	return m, nil
}

// ParseMappings parses each entry with ParseMapping.
func ParseMappings(specs []string) ([]Mapping, error) {
	out := make([]Mapping, 0, len(specs))
	for _, s := range specs {
		m, err := ParseMapping(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

type compiled struct {
	Mapping
	re *regexp.Regexp
}

func compile(mappings []Mapping) ([]compiled, error) {
	out := make([]compiled, len(mappings))
	for i, m := range mappings {
		out[i].Mapping = m
		if strings.TrimSpace(m.Match) == "" {
			continue
		}
		re, err := regexp.Compile(m.Match)
		if err != nil {
			return nil, fmt.Errorf("htmltable: invalid regex for %q: %w", m.Name, err)
		}
		out[i].re = re
	}
	return out, nil
}

// RecordLines extracts one JSON object per element matched by
// recordSelector, in DOM order, and returns them as JSON lines. Keys follow
// mapping order. Missing selectors produce no key; records that produce no
// keys are dropped.
func RecordLines(r io.Reader, recordSelector string, mappings []Mapping) ([]string, error) {
	if strings.TrimSpace(recordSelector) == "" {
		return nil, errors.New("htmltable: record selector is empty")
	}
	if len(mappings) == 0 {
		return nil, errors.New("htmltable: no mappings")
	}
	cms, err := compile(mappings)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var lines []string
	var encErr error
	doc.Find(recordSelector).EachWithBreak(func(_ int, rec *goquery.Selection) bool {
		v := extract(rec, cms)
		if len(v.Members()) == 0 {
			return true
		}
		b, err := json.Marshal(v)
		if err != nil {
			encErr = fmt.Errorf("encode record: %w", err)
			return false
		}
		lines = append(lines, string(b))
		return true
	})
	if encErr != nil {
		return nil, encErr
	}
	return lines, nil
}

func extract(root *goquery.Selection, cms []compiled) walker.Value {
	var members []walker.Member
	for _, m := range cms {
		sel := root
		if m.Selector != "" {
			sel = root.Find(m.Selector)
		}

		if m.All {
			var vals []walker.Value
			sel.Each(func(_ int, s *goquery.Selection) {
				if v := m.value(s); v != "" {
					vals = append(vals, walker.StringValue(v))
				}
			})
			if len(vals) > 0 {
				members = append(members, walker.Member{Key: m.Name, Value: walker.ArrayValue(vals...)})
			}
			continue
		}

		sel = sel.First()
		if sel.Length() == 0 {
			continue
		}
		if v := m.value(sel); v != "" {
			members = append(members, walker.Member{Key: m.Name, Value: walker.StringValue(v)})
		}
	}
	return walker.ObjectValue(members...)
}

func (m compiled) value(s *goquery.Selection) string {
	var v string
	if m.Attr != "" {
		a, ok := s.Attr(m.Attr)
		if !ok {
			return ""
		}
		v = strings.TrimSpace(a)
	} else {
		v = cellText(s)
	}
	if v == "" || m.re == nil {
		return v
	}
	sm := m.re.FindStringSubmatch(v)
	switch {
	case len(sm) == 0:
		return ""
	case len(sm) > 1:
		return sm[1]
	default:
		return sm[0]
	}
}
