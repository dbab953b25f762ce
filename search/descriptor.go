package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// SourceColumn is the saved search column meaning "whole documents".
const SourceColumn = "_source"

type Reference struct {
	Name string `json:"name"`
	Type string `json:"type"`
	ID   string `json:"id"`
}

// SavedSearch is the read-only saved search saved object.
type SavedSearch struct {
	ID               string
	Title            string
	Columns          []string
	SearchSourceJSON string
	References       []Reference
}

// IndexPatternID returns the id of the index pattern backing the search: the
// reference named by src.IndexRefName, else the legacy inline index id.
func (s *SavedSearch) IndexPatternID(src SearchSource) (string, error) {
	for _, ref := range s.References {
		if src.IndexRefName != "" && ref.Name == src.IndexRefName {
			return ref.ID, nil
		}
	}
	if src.Index != "" {
		return src.Index, nil
	}
	return "", &NotFoundError{Kind: "index-pattern", ID: src.IndexRefName}
}

type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// IndexPattern is the read-only index-pattern saved object.
type IndexPattern struct {
	ID            string
	Title         string // concrete index or alias to query
	TimeFieldName string // empty: no time filter
	Fields        []Field
}

// DocumentGetter reads one document source by id.
type DocumentGetter interface {
	GetDocument(ctx context.Context, index, id string) (json.RawMessage, error)
}

// Descriptors loads saved searches and index patterns from the saved objects
// index.
type Descriptors struct {
	docs  DocumentGetter
	index string
}

func NewDescriptors(docs DocumentGetter, kibanaIndex string) *Descriptors {
	return &Descriptors{docs: docs, index: kibanaIndex}
}

type savedSearchDoc struct {
	Search struct {
		Title                 string   `json:"title"`
		Columns               []string `json:"columns"`
		KibanaSavedObjectMeta struct {
			SearchSourceJSON string `json:"searchSourceJSON"`
		} `json:"kibanaSavedObjectMeta"`
	} `json:"search"`
	References []Reference `json:"references"`
}

type indexPatternDoc struct {
	IndexPattern struct {
		Title         string `json:"title"`
		TimeFieldName string `json:"timeFieldName"`
		Fields        string `json:"fields"`
	} `json:"index-pattern"`
}

func (d *Descriptors) SavedSearch(ctx context.Context, id string) (*SavedSearch, error) {
	raw, err := d.load(ctx, "search", id)
	if err != nil {
		return nil, err
	}
	var doc savedSearchDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ValidationError{Reason: "malformed saved search " + id, Err: err}
	}
	return &SavedSearch{
		ID:               id,
		Title:            doc.Search.Title,
		Columns:          doc.Search.Columns,
		SearchSourceJSON: doc.Search.KibanaSavedObjectMeta.SearchSourceJSON,
		References:       doc.References,
	}, nil
}

func (d *Descriptors) IndexPattern(ctx context.Context, id string) (*IndexPattern, error) {
	raw, err := d.load(ctx, "index-pattern", id)
	if err != nil {
		return nil, err
	}
	var doc indexPatternDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ValidationError{Reason: "malformed index pattern " + id, Err: err}
	}
	ip := &IndexPattern{
		ID:            id,
		Title:         doc.IndexPattern.Title,
		TimeFieldName: doc.IndexPattern.TimeFieldName,
	}
	if doc.IndexPattern.Fields != "" {
		if err := json.Unmarshal([]byte(doc.IndexPattern.Fields), &ip.Fields); err != nil {
			return nil, &ValidationError{Reason: "malformed fields of index pattern " + id, Err: err}
		}
	}
	return ip, nil
}

// load reads "<kind>:<id>" from the saved objects index.
func (d *Descriptors) load(ctx context.Context, kind, id string) (json.RawMessage, error) {
	raw, err := d.docs.GetDocument(ctx, d.index, kind+":"+id)
	if errors.Is(err, ErrNotFound) {
		return nil, &NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s %s: %w", kind, id, err)
	}
	return raw, nil
}
