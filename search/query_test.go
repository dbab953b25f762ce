package search

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolOf(t *testing.T, q CompiledQuery) map[string]any {
	t.Helper()
	b, ok := q.Source()["bool"].(Clause)
	require.True(t, ok)
	return b
}

func TestCompile_AllDisabledNoTimeField(t *testing.T) {
	src := SearchSource{Filters: []FilterClause{
		{Key: "status", Value: "200", Type: MatchPhrase, Disabled: true},
		{Key: "host", Type: MatchExists, Disabled: true},
	}}
	q := Compile(src, TimeRange{Gte: "1", Lte: "2"}, "")

	assert.Empty(t, q.Must)
	assert.Empty(t, q.MustNot)
	assert.Empty(t, q.Should)
	assert.Equal(t, Clause{"match_all": Clause{}}, q.Filter)
}

func TestCompile_PhraseExistsAndNegation(t *testing.T) {
	src := SearchSource{Filters: []FilterClause{
		{Key: "status", Value: "200", Type: MatchPhrase},
		{Key: "user", Type: MatchExists, Negate: true},
	}}
	q := Compile(src, TimeRange{}, "")

	require.Len(t, q.Must, 1)
	assert.Equal(t, Clause{"match_phrase": Clause{"status": Clause{"query": "200"}}}, q.Must[0])
	require.Len(t, q.MustNot, 1)
	assert.Equal(t, Clause{"exists": Clause{"field": "user"}}, q.MustNot[0])
}

func TestCompile_PhrasesSplitsTokens(t *testing.T) {
	src := SearchSource{Filters: []FilterClause{
		{Key: "country", Value: "FR, DE, IT", Type: MatchPhrases},
		{Key: "env", Value: "prod", Type: MatchPhrases},
	}}
	q := Compile(src, TimeRange{}, "")

	require.Len(t, q.Must, 2)
	multi := q.Must[0]["bool"].(Clause)
	assert.Equal(t, 1, multi["minimum_should_match"])
	should := multi["should"].([]Clause)
	require.Len(t, should, 3)
	assert.Equal(t, Clause{"match_phrase": Clause{"country": "DE"}}, should[1])
	assert.Equal(t, Clause{"match_phrase": Clause{"env": "prod"}}, q.Must[1])
}

func TestCompile_UnknownTypeSkipped(t *testing.T) {
	src := SearchSource{Filters: []FilterClause{{Key: "a", Value: "b", Type: "range"}}}
	q := Compile(src, TimeRange{}, "")
	assert.Empty(t, q.Must)
	assert.Empty(t, q.MustNot)
}

func TestCompile_TimeRangeAppearsOnce(t *testing.T) {
	src := SearchSource{Filters: []FilterClause{{Key: "status", Value: "200", Type: MatchPhrase}}}
	q := Compile(src, TimeRange{Gte: "1700000000000", Lte: "1700003600000"}, "@timestamp")

	ranges := 0
	for _, c := range q.Must {
		if r, ok := c["range"]; ok {
			ranges++
			assert.Equal(t, Clause{"@timestamp": Clause{
				"format": "epoch_millis",
				"gte":    "1700000000000",
				"lte":    "1700003600000",
			}}, r)
		}
	}
	assert.Equal(t, 1, ranges)
}

func TestCompile_FreeText(t *testing.T) {
	q := Compile(SearchSource{Query: `level: "error"`}, TimeRange{}, "")
	assert.Equal(t, Clause{"bool": Clause{"should": []Clause{
		{"match": Clause{"level": "error"}},
	}}}, q.Filter)

	q = Compile(SearchSource{Query: "timeout"}, TimeRange{}, "")
	assert.Equal(t, Clause{"bool": Clause{"should": []Clause{
		{"query_string": Clause{"query": "timeout"}},
	}}}, q.Filter)
}

func TestCompiledQuery_MarshalJSON(t *testing.T) {
	q := Compile(SearchSource{}, TimeRange{}, "")
	b, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bool":{"must":[],"must_not":[],"filter":[{"match_all":{}}],"should":[]}}`, string(b))
}

func TestParseSearchSource(t *testing.T) {
	raw := `{
		"indexRefName": "kibanaSavedObjectMeta.searchSourceJSON.index",
		"query": {"query": "status:500", "language": "kuery"},
		"filter": [
			{"meta": {"key": "host", "value": "web-1", "type": "phrase", "negate": true}},
			{"meta": {"key": "code", "value": 404, "type": "phrase", "disabled": true}}
		]
	}`
	src, err := ParseSearchSource(raw)
	require.NoError(t, err)

	assert.Equal(t, "kibanaSavedObjectMeta.searchSourceJSON.index", src.IndexRefName)
	assert.Equal(t, "status:500", src.Query)
	require.Len(t, src.Filters, 2)
	assert.Equal(t, FilterClause{Key: "host", Value: "web-1", Type: MatchPhrase, Negate: true}, src.Filters[0])
	assert.Equal(t, "404", src.Filters[1].Value)
	assert.True(t, src.Filters[1].Disabled)
}

func TestParseSearchSource_LegacyQueryString(t *testing.T) {
	src, err := ParseSearchSource(`{"index":"logs-pattern","query":{"query":{"query_string":{"query":"*"}}}}`)
	require.NoError(t, err)
	assert.Equal(t, "logs-pattern", src.Index)
	assert.Empty(t, src.Query)
}

func TestParseSearchSource_Invalid(t *testing.T) {
	for _, raw := range []string{"", "{not json", `{"query":{"query":42}}`} {
		_, err := ParseSearchSource(raw)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, "input %q", raw)
	}
}
