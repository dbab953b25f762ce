package worker

import (
	"sort"
	"strings"

	"csv-generator/search"
)

// Projector flattens raw hits down to the columns of a saved search.
type Projector struct {
	timeField string
	includes  []string
	columns   []string
	keys      map[string]bool
}

// NewProjector builds the column set: the time field first, then the last
// dotted segment of every column, without duplicates. No columns, or just
// "_source", disables projection.
func NewProjector(columns []string, timeField string) *Projector {
	p := &Projector{timeField: timeField, keys: map[string]bool{}}
	var explicit []string
	for _, c := range columns {
		if c != search.SourceColumn && c != "" {
			explicit = append(explicit, c)
		}
	}
	if len(explicit) == 0 {
		return p
	}
	if timeField != "" {
		explicit = append([]string{timeField}, explicit...)
	}
	included := map[string]bool{}
	for _, c := range explicit {
		if !included[c] {
			included[c] = true
			p.includes = append(p.includes, c)
		}
		p.add(c[strings.LastIndex(c, ".")+1:])
	}
	return p
}

func (p *Projector) add(key string) {
	if !p.keys[key] {
		p.keys[key] = true
		p.columns = append(p.columns, key)
	}
}

func (p *Projector) Enabled() bool { return len(p.columns) > 0 }

// Columns returns the flat column set, nil when projection is disabled.
func (p *Projector) Columns() []string { return p.columns }

// SourceIncludes is the backend source filter, nil when projection is disabled.
func (p *Projector) SourceIncludes() []string { return p.includes }

// Project copies every key of the column set found at any depth of hit. The
// walk does not descend into a matched value and later matches win. With
// projection disabled the hit is returned as is.
func (p *Projector) Project(hit search.Hit) Row {
	if !p.Enabled() {
		return Row{Values: hit}
	}
	found := map[string]any{}
	p.walk(hit, found)
	if p.timeField != "" {
		if _, ok := found[p.timeField]; !ok {
			found[p.timeField] = nil
		}
	}
	row := Row{Values: found}
	for _, c := range p.columns {
		if _, ok := found[c]; ok {
			row.Columns = append(row.Columns, c)
		}
	}
	return row
}

func (p *Projector) walk(v any, found map[string]any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if p.keys[k] {
				found[k] = t[k]
				continue
			}
			p.walk(t[k], found)
		}
	case []any:
		for _, e := range t {
			p.walk(e, found)
		}
	}
}
