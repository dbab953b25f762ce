package search

import (
	"bytes"
	"encoding/json"
	"strings"
)

type MatchType string

const (
	MatchPhrase  MatchType = "phrase"
	MatchExists  MatchType = "exists"
	MatchPhrases MatchType = "phrases"
)

// phrasesSeparator splits the single-string value of a "phrases" filter.
const phrasesSeparator = ", "

// FilterClause is one entry of a saved search filter bar.
type FilterClause struct {
	Key      string
	Value    string
	Type     MatchType
	Negate   bool
	Disabled bool
}

// SearchSource is the decoded kibanaSavedObjectMeta.searchSourceJSON of a
// saved search.
type SearchSource struct {
	Index        string // legacy: index-pattern id stored inline
	IndexRefName string // name of the reference holding the index-pattern id
	Query        string // free text, "field:value"
	Filters      []FilterClause
}

// TimeRange bounds the time field, both ends as epoch-millis strings.
type TimeRange struct {
	Gte string
	Lte string
}

type rawSearchSource struct {
	Index        string          `json:"index"`
	IndexRefName string          `json:"indexRefName"`
	Query        json.RawMessage `json:"query"`
	Filter       []struct {
		Meta rawFilterMeta `json:"meta"`
	} `json:"filter"`
}

type rawFilterMeta struct {
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	Type     string          `json:"type"`
	Negate   bool            `json:"negate"`
	Disabled bool            `json:"disabled"`
}

// ParseSearchSource decodes a serialized filter expression. Any decoding
// problem is a *ValidationError.
func ParseSearchSource(raw string) (SearchSource, error) {
	var src SearchSource
	if strings.TrimSpace(raw) == "" {
		return src, &ValidationError{Reason: "empty searchSourceJSON"}
	}
	var rs rawSearchSource
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		return src, &ValidationError{Reason: "malformed searchSourceJSON", Err: err}
	}
	query, err := parseFreeText(rs.Query)
	if err != nil {
		return src, err
	}
	src.Index = rs.Index
	src.IndexRefName = rs.IndexRefName
	src.Query = query
	for _, f := range rs.Filter {
		src.Filters = append(src.Filters, FilterClause{
			Key:      f.Meta.Key,
			Value:    scalarText(f.Meta.Value),
			Type:     MatchType(f.Meta.Type),
			Negate:   f.Meta.Negate,
			Disabled: f.Meta.Disabled,
		})
	}
	return src, nil
}

// parseFreeText accepts {"query": "...", "language": ...} and the legacy
// {"query": {"query_string": {"query": "..."}}} shape.
func parseFreeText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var q struct {
		Query json.RawMessage `json:"query"`
	}
	if err := json.Unmarshal(raw, &q); err != nil {
		return "", &ValidationError{Reason: "malformed query", Err: err}
	}
	if len(q.Query) == 0 || string(q.Query) == "null" {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(q.Query, &text); err == nil {
		return strings.TrimSpace(text), nil
	}
	var legacy struct {
		QueryString struct {
			Query string `json:"query"`
		} `json:"query_string"`
	}
	if err := json.Unmarshal(q.Query, &legacy); err != nil {
		return "", &ValidationError{Reason: "unsupported query", Err: err}
	}
	text = strings.TrimSpace(legacy.QueryString.Query)
	if text == "*" {
		return "", nil
	}
	return text, nil
}

func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Clause is one node of the backend bool query.
type Clause = map[string]any

// CompiledQuery is the bool query built from a saved search.
type CompiledQuery struct {
	Must    []Clause
	MustNot []Clause
	Filter  Clause
	Should  []Clause
}

// Source renders the query as the value of a request's "query" key.
func (q CompiledQuery) Source() Clause {
	return Clause{
		"bool": Clause{
			"must":     nonNil(q.Must),
			"must_not": nonNil(q.MustNot),
			"filter":   []Clause{q.Filter},
			"should":   nonNil(q.Should),
		},
	}
}

func (q CompiledQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Source())
}

func nonNil(c []Clause) []Clause {
	if c == nil {
		return []Clause{}
	}
	return c
}

// Compile translates the filter bar, free text and time window into a bool
// query. Disabled clauses and unknown match types are skipped.
func Compile(src SearchSource, tr TimeRange, timeField string) CompiledQuery {
	q := CompiledQuery{
		Must:    []Clause{},
		MustNot: []Clause{},
		Should:  []Clause{},
	}
	for _, f := range src.Filters {
		if f.Disabled {
			continue
		}
		c := compileClause(f)
		if c == nil {
			continue
		}
		if f.Negate {
			q.MustNot = append(q.MustNot, c)
		} else {
			q.Must = append(q.Must, c)
		}
	}
	if timeField != "" {
		q.Must = append(q.Must, Clause{
			"range": Clause{
				timeField: Clause{
					"format": "epoch_millis",
					"gte":    tr.Gte,
					"lte":    tr.Lte,
				},
			},
		})
	}
	q.Filter = compileFreeText(src.Query)
	return q
}

func compileClause(f FilterClause) Clause {
	switch f.Type {
	case MatchPhrase:
		return Clause{"match_phrase": Clause{f.Key: Clause{"query": f.Value}}}
	case MatchExists:
		return Clause{"exists": Clause{"field": f.Key}}
	case MatchPhrases:
		tokens := strings.Split(f.Value, phrasesSeparator)
		if len(tokens) == 1 {
			return Clause{"match_phrase": Clause{f.Key: tokens[0]}}
		}
		should := make([]Clause, 0, len(tokens))
		for _, tok := range tokens {
			should = append(should, Clause{"match_phrase": Clause{f.Key: tok}})
		}
		return Clause{"bool": Clause{"should": should, "minimum_should_match": 1}}
	}
	return nil
}

func compileFreeText(text string) Clause {
	if text == "" {
		return Clause{"match_all": Clause{}}
	}
	var inner Clause
	field, value, ok := strings.Cut(text, ":")
	if ok {
		value = strings.Trim(strings.TrimSpace(value), `"`)
		inner = Clause{"match": Clause{strings.TrimSpace(field): value}}
	} else {
		inner = Clause{"query_string": Clause{"query": text}}
	}
	return Clause{"bool": Clause{"should": []Clause{inner}}}
}
