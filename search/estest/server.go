// Package estest provides an in-memory fake of the Elasticsearch REST API
// subset used by csv-generator, for tests (like net/http/httptest).
package estest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"csv-generator/config"
)

const (
	KibanaIndex  = ".kibana"
	ReportIndex  = "csvgenerator"
	IndexRefName = "kibanaSavedObjectMeta.searchSourceJSON.index"

	dateLayout = "02-01-2006 15:04:05"
)

// Server answers count, search, scroll, document and index calls from memory.
//
// Indices registered with AddHits behave as data indices (search pages
// through the hits, count returns their number). Other indices behave as the
// report job index (search lists csv jobs by date desc).
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	docs     map[string]map[string]map[string]any
	order    map[string][]string
	created  map[string]map[string]any
	hits     map[string][]map[string]any
	counts   map[string]int64
	cursors  map[string]*cursor
	nextID   int
	failures map[string]int
	calls    map[string]int
	bodies   map[string][]map[string]any
}

type cursor struct {
	hits []map[string]any
	size int
}

func NewServer(t testing.TB) *Server {
	s := &Server{
		docs:     map[string]map[string]map[string]any{},
		order:    map[string][]string{},
		created:  map[string]map[string]any{},
		hits:     map[string][]map[string]any{},
		counts:   map[string]int64{},
		cursors:  map[string]*cursor{},
		failures: map[string]int{},
		calls:    map[string]int{},
		bodies:   map[string][]map[string]any{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Config points a client at the fake.
func (s *Server) Config() config.ElasticsearchConfig {
	return config.ElasticsearchConfig{
		Addresses:   []string{s.URL},
		KibanaIndex: KibanaIndex,
		ReportIndex: ReportIndex,
	}
}

func (s *Server) PutDocument(index, id string, source any) {
	b, err := json.Marshal(source)
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(index, id, m)
}

func (s *Server) putLocked(index, id string, m map[string]any) {
	if s.docs[index] == nil {
		s.docs[index] = map[string]map[string]any{}
	}
	if _, ok := s.docs[index][id]; !ok {
		s.order[index] = append(s.order[index], id)
	}
	s.docs[index][id] = m
}

// Document returns a copy-free view of a stored document source.
func (s *Server) Document(index, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[index][id]
	return d, ok
}

// PutSavedSearch stores search:<id> referencing index-pattern patternID.
func (s *Server) PutSavedSearch(id, title string, columns []string, searchSourceJSON, patternID string) {
	s.PutDocument(KibanaIndex, "search:"+id, map[string]any{
		"type": "search",
		"search": map[string]any{
			"title":   title,
			"columns": columns,
			"kibanaSavedObjectMeta": map[string]any{
				"searchSourceJSON": searchSourceJSON,
			},
		},
		"references": []map[string]any{
			{"name": IndexRefName, "type": "index-pattern", "id": patternID},
		},
	})
}

// PutIndexPattern stores index-pattern:<id>. fields alternate name, type.
func (s *Server) PutIndexPattern(id, title, timeField string, fields ...string) {
	var fl []map[string]string
	for i := 0; i+1 < len(fields); i += 2 {
		fl = append(fl, map[string]string{"name": fields[i], "type": fields[i+1]})
	}
	fj, _ := json.Marshal(fl)
	s.PutDocument(KibanaIndex, "index-pattern:"+id, map[string]any{
		"type": "index-pattern",
		"index-pattern": map[string]any{
			"title":         title,
			"timeFieldName": timeField,
			"fields":        string(fj),
		},
	})
}

// AddHits appends documents to a data index.
func (s *Server) AddHits(index string, sources ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range sources {
		s.nextID++
		s.hits[index] = append(s.hits[index], map[string]any{
			"_index":   index,
			"_id":      "doc-" + strconv.Itoa(s.nextID),
			"_version": 1,
			"_score":   nil,
			"_source":  src,
		})
	}
}

// SetCount overrides what the count API reports for index.
func (s *Server) SetCount(index string, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[index] = n
}

// FailNext makes the next n calls of op answer HTTP 500; n < 0 fails forever.
// Ops: count, search, scroll, clear_scroll, get, index, update, exists,
// create, delete_by_query.
func (s *Server) FailNext(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = n
}

func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Bodies returns the decoded request bodies received for op.
func (s *Server) Bodies(op string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.bodies[op]...)
}

// Created returns the body an index was created with.
func (s *Server) Created(index string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.created[index]
	return b, ok
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	op := route(r.Method, parts)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	if body != nil {
		s.bodies[op] = append(s.bodies[op], body)
	}
	if n, ok := s.failures[op]; ok && n != 0 {
		if n > 0 {
			s.failures[op] = n - 1
		}
		writeError(w, http.StatusInternalServerError, "injected failure on "+op)
		return
	}

	switch op {
	case "count":
		s.count(w, parts[0])
	case "search":
		s.search(w, r, parts[0], body)
	case "scroll":
		s.scroll(w, scrollID(r, parts, body))
	case "clear_scroll":
		delete(s.cursors, scrollID(r, parts, body))
		writeJSON(w, http.StatusOK, map[string]any{"succeeded": true})
	case "get":
		s.get(w, parts[0], parts[2])
	case "index":
		s.putLocked(parts[0], parts[2], body)
		writeJSON(w, http.StatusCreated, map[string]any{"_index": parts[0], "_id": parts[2], "result": "created"})
	case "update":
		s.update(w, parts[0], parts[2], body)
	case "exists":
		if _, ok := s.created[parts[0]]; ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case "create":
		if body == nil {
			body = map[string]any{}
		}
		s.created[parts[0]] = body
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "index": parts[0]})
	case "delete_by_query":
		s.deleteByQuery(w, parts[0], body)
	default:
		writeError(w, http.StatusBadRequest, "unsupported "+r.Method+" "+r.URL.Path)
	}
}

func route(method string, parts []string) string {
	if len(parts) >= 2 && parts[0] == "_search" && parts[1] == "scroll" {
		if method == http.MethodDelete {
			return "clear_scroll"
		}
		return "scroll"
	}
	switch {
	case len(parts) == 1 && method == http.MethodHead:
		return "exists"
	case len(parts) == 1 && method == http.MethodPut:
		return "create"
	case len(parts) == 2 && parts[1] == "_count":
		return "count"
	case len(parts) == 2 && parts[1] == "_search":
		return "search"
	case len(parts) == 2 && parts[1] == "_delete_by_query":
		return "delete_by_query"
	case len(parts) == 3 && parts[1] == "_doc" && method == http.MethodGet:
		return "get"
	case len(parts) == 3 && parts[1] == "_doc":
		return "index"
	case len(parts) == 3 && parts[1] == "_update":
		return "update"
	}
	return "unknown"
}

func scrollID(r *http.Request, parts []string, body map[string]any) string {
	if len(parts) == 3 {
		return parts[2]
	}
	if id := r.URL.Query().Get("scroll_id"); id != "" {
		return id
	}
	switch v := body["scroll_id"].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			s, _ := v[0].(string)
			return s
		}
	}
	return ""
}

func (s *Server) count(w http.ResponseWriter, index string) {
	n, ok := s.counts[index]
	if !ok {
		n = int64(len(s.hits[index]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, index string, body map[string]any) {
	size := 10
	if v, ok := body["size"].(float64); ok {
		size = int(v)
	}
	if hits, ok := s.hits[index]; ok {
		page, rest := split(hits, size)
		resp := map[string]any{
			"hits": map[string]any{
				"total": map[string]any{"value": len(hits), "relation": "eq"},
				"hits":  page,
			},
		}
		if r.URL.Query().Get("scroll") != "" {
			s.nextID++
			id := "scroll-" + strconv.Itoa(s.nextID)
			s.cursors[id] = &cursor{hits: rest, size: size}
			resp["_scroll_id"] = id
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	s.listJobs(w, index, size)
}

func (s *Server) listJobs(w http.ResponseWriter, index string, size int) {
	type entry struct {
		id   string
		pos  int
		date time.Time
		src  map[string]any
	}
	var entries []entry
	for pos, id := range s.order[index] {
		src := s.docs[index][id]
		if src["fileType"] != "csv" {
			continue
		}
		d, _ := time.Parse(dateLayout, fmt.Sprint(src["date"]))
		entries = append(entries, entry{id: id, pos: pos, date: d, src: src})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].date.Equal(entries[j].date) {
			return entries[i].date.After(entries[j].date)
		}
		return entries[i].pos > entries[j].pos
	})
	hits := []map[string]any{}
	for i, e := range entries {
		if i >= size {
			break
		}
		hits = append(hits, map[string]any{"_index": index, "_id": e.id, "_source": e.src})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hits": map[string]any{
			"total": map[string]any{"value": len(entries), "relation": "eq"},
			"hits":  hits,
		},
	})
}

func (s *Server) scroll(w http.ResponseWriter, id string) {
	c, ok := s.cursors[id]
	if !ok {
		writeError(w, http.StatusNotFound, "No search context found for id ["+id+"]")
		return
	}
	page, rest := split(c.hits, c.size)
	c.hits = rest
	writeJSON(w, http.StatusOK, map[string]any{
		"_scroll_id": id,
		"hits": map[string]any{
			"total": map[string]any{"value": len(page), "relation": "eq"},
			"hits":  page,
		},
	})
}

func (s *Server) get(w http.ResponseWriter, index, id string) {
	src, ok := s.docs[index][id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"_index": index, "_id": id, "found": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"_index": index, "_id": id, "found": true, "_source": src})
}

func (s *Server) update(w http.ResponseWriter, index, id string, body map[string]any) {
	src, ok := s.docs[index][id]
	if !ok {
		writeError(w, http.StatusNotFound, "document missing ["+id+"]")
		return
	}
	doc, _ := body["doc"].(map[string]any)
	for k, v := range doc {
		src[k] = v
	}
	writeJSON(w, http.StatusOK, map[string]any{"_index": index, "_id": id, "result": "updated"})
}

// deleteByQuery understands {"query": {"range": {"date": {"lt": ...}}}}.
func (s *Server) deleteByQuery(w http.ResponseWriter, index string, body map[string]any) {
	query, _ := body["query"].(map[string]any)
	rng, _ := query["range"].(map[string]any)
	date, _ := rng["date"].(map[string]any)
	before, err := time.Parse(dateLayout, fmt.Sprint(date["lt"]))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported delete_by_query")
		return
	}
	var kept []string
	deleted := 0
	for _, id := range s.order[index] {
		d, err := time.Parse(dateLayout, fmt.Sprint(s.docs[index][id]["date"]))
		if err == nil && d.Before(before) {
			delete(s.docs[index], id)
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	s.order[index] = kept
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func split(hits []map[string]any, size int) (page, rest []map[string]any) {
	if size > len(hits) {
		size = len(hits)
	}
	page = append([]map[string]any{}, hits[:size]...)
	return page, hits[size:]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]any{
		"error":  map[string]any{"type": "exception", "reason": reason},
		"status": status,
	})
}
