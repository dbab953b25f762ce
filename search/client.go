package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"csv-generator/config"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Hit is one raw search hit (_index, _id, _source, ...). Numbers are decoded
// as json.Number so they reach the CSV untouched.
type Hit = map[string]any

type SearchResult struct {
	ScrollID string
	Total    int64
	Hits     []Hit
}

// Client talks to the Elasticsearch cluster holding both the data indices and
// the report job index.
type Client struct {
	es *elasticsearch.Client
}

// NewClient builds a client from the elasticsearch config section. transport
// may be nil.
func NewClient(cfg config.ElasticsearchConfig, transport http.RoundTripper) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}
	return &Client{es: es}, nil
}

func (c *Client) Count(ctx context.Context, index string, query Clause) (int64, error) {
	body, err := encodeBody(Clause{"query": query})
	if err != nil {
		return 0, err
	}
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(index),
		c.es.Count.WithBody(body),
	)
	if err != nil {
		return 0, err
	}
	var out struct {
		Count int64 `json:"count"`
	}
	if err := decodeResponse(res, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Search runs a search. A positive keepAlive opens a scroll cursor.
func (c *Client) Search(ctx context.Context, index string, request map[string]any, keepAlive time.Duration) (*SearchResult, error) {
	body, err := encodeBody(request)
	if err != nil {
		return nil, err
	}
	opts := []func(*esapi.SearchRequest){
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(body),
	}
	if keepAlive > 0 {
		opts = append(opts, c.es.Search.WithScroll(keepAlive))
	}
	res, err := c.es.Search(opts...)
	if err != nil {
		return nil, err
	}
	return decodeSearch(res)
}

// Scroll fetches the next page of a cursor and renews its lifetime.
func (c *Client) Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (*SearchResult, error) {
	res, err := c.es.Scroll(
		c.es.Scroll.WithContext(ctx),
		c.es.Scroll.WithScrollID(scrollID),
		c.es.Scroll.WithScroll(keepAlive),
	)
	if err != nil {
		return nil, err
	}
	return decodeSearch(res)
}

func (c *Client) ClearScroll(ctx context.Context, scrollID string) error {
	res, err := c.es.ClearScroll(
		c.es.ClearScroll.WithContext(ctx),
		c.es.ClearScroll.WithScrollID(scrollID),
	)
	if err != nil {
		return err
	}
	return decodeResponse(res, nil)
}

// GetDocument returns the _source of index/id, or ErrNotFound.
func (c *Client) GetDocument(ctx context.Context, index, id string) (json.RawMessage, error) {
	res, err := c.es.Get(index, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return nil, fmt.Errorf("%s/%s: %w", index, id, ErrNotFound)
	}
	var out struct {
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}
	if err := decodeResponse(res, &out); err != nil {
		return nil, err
	}
	if !out.Found {
		return nil, fmt.Errorf("%s/%s: %w", index, id, ErrNotFound)
	}
	return out.Source, nil
}

// IndexDocument writes doc under index/id and refreshes so pollers see it.
func (c *Client) IndexDocument(ctx context.Context, index, id string, doc any) error {
	body, err := encodeBody(doc)
	if err != nil {
		return err
	}
	res, err := c.es.Index(index, body,
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(id),
		c.es.Index.WithRefresh("true"),
	)
	if err != nil {
		return err
	}
	return decodeResponse(res, nil)
}

// UpdateDocument merges fields into index/id.
func (c *Client) UpdateDocument(ctx context.Context, index, id string, fields map[string]any) error {
	body, err := encodeBody(map[string]any{"doc": fields})
	if err != nil {
		return err
	}
	res, err := c.es.Update(index, id, body,
		c.es.Update.WithContext(ctx),
		c.es.Update.WithRefresh("true"),
	)
	if err != nil {
		return err
	}
	if res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return fmt.Errorf("%s/%s: %w", index, id, ErrNotFound)
	}
	return decodeResponse(res, nil)
}

func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("elasticsearch HTTP %d on index exists", res.StatusCode)
}

// CreateIndex creates index with the given settings/mappings body.
func (c *Client) CreateIndex(ctx context.Context, index string, request map[string]any) error {
	body, err := encodeBody(request)
	if err != nil {
		return err
	}
	res, err := c.es.Indices.Create(index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(body),
	)
	if err != nil {
		return err
	}
	return decodeResponse(res, nil)
}

// DeleteByQuery removes every document of index matching query and returns
// how many were deleted.
func (c *Client) DeleteByQuery(ctx context.Context, index string, query Clause) (int64, error) {
	body, err := encodeBody(Clause{"query": query})
	if err != nil {
		return 0, err
	}
	res, err := c.es.DeleteByQuery([]string{index}, body, c.es.DeleteByQuery.WithContext(ctx))
	if err != nil {
		return 0, err
	}
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := decodeResponse(res, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

func encodeBody(v any) (io.Reader, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	return &buf, nil
}

func decodeResponse(res *esapi.Response, out any) error {
	defer res.Body.Close()
	if res.IsError() {
		bb, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("elasticsearch HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(bb)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Total json.RawMessage `json:"total"`
		Hits  []Hit           `json:"hits"`
	} `json:"hits"`
}

func decodeSearch(res *esapi.Response) (*SearchResult, error) {
	var out searchResponse
	if err := decodeResponse(res, &out); err != nil {
		return nil, err
	}
	return &SearchResult{
		ScrollID: out.ScrollID,
		Total:    parseTotal(out.Hits.Total),
		Hits:     out.Hits.Hits,
	}, nil
}

// parseTotal accepts both {"value": n} and the legacy integer form.
func parseTotal(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var obj struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Value
	}
	var n int64
	_ = json.Unmarshal(raw, &n)
	return n
}
