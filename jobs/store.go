package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"csv-generator/logging"
	"csv-generator/search"
	"csv-generator/utils"
)

// Backend is the part of search.Client the store persists through.
type Backend interface {
	IndexExists(ctx context.Context, index string) (bool, error)
	CreateIndex(ctx context.Context, index string, request map[string]any) error
	IndexDocument(ctx context.Context, index, id string, doc any) error
	UpdateDocument(ctx context.Context, index, id string, fields map[string]any) error
	GetDocument(ctx context.Context, index, id string) (json.RawMessage, error)
	Search(ctx context.Context, index string, request map[string]any, keepAlive time.Duration) (*search.SearchResult, error)
	DeleteByQuery(ctx context.Context, index string, query search.Clause) (int64, error)
}

// DefaultListSize is used by List when limit is not positive.
const DefaultListSize = 10

// Store keeps report jobs as documents of one backend index.
type Store struct {
	backend Backend
	index   string
	logger  *logging.Logger
	now     func() time.Time
}

func NewStore(backend Backend, index string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{backend: backend, index: index, logger: logger, now: time.Now}
}

func (s *Store) Index() string { return s.index }

// Setup creates the job index with its mapping when it does not exist yet.
func (s *Store) Setup(ctx context.Context) (created bool, err error) {
	exists, err := s.backend.IndexExists(ctx, s.index)
	if err != nil {
		return false, fmt.Errorf("checking index %s: %w", s.index, err)
	}
	if exists {
		return false, nil
	}
	if err := s.backend.CreateIndex(ctx, s.index, indexMapping()); err != nil {
		return false, fmt.Errorf("creating index %s: %w", s.index, err)
	}
	s.logger.Infow("report index created", "index", s.index)
	return true, nil
}

func indexMapping() map[string]any {
	text := map[string]any{"type": "text"}
	date := map[string]any{"type": "date", "format": dateMappingFormat}
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"fileType":     text,
				"file":         text,
				"downloadLink": text,
				"date":         date,
				"timestamp":    date,
				"status":       text,
				"binary":       map[string]any{"type": "binary"},
				"error":        text,
				"userId":       text,
				"username":     text,
			},
		},
	}
}

// Create inserts a pending job and returns its id.
func (s *Store) Create(ctx context.Context, fileName string, by Requester) (string, error) {
	id := utils.GenerateRequestID()
	job := ReportJob{
		FileType:     FileType,
		File:         fileName,
		DownloadLink: DownloadPrefix + id,
		Date:         s.now().Format(DateLayout),
		Status:       StatusPending,
		Binary:       NullPayload,
		Error:        PendingMessage,
		UserID:       by.UserID,
		Username:     by.Username,
	}
	if err := s.backend.IndexDocument(ctx, s.index, id, job); err != nil {
		return "", fmt.Errorf("creating report job: %w", err)
	}
	return id, nil
}

// Terminate moves a job to success or failed. A failed write is followed by
// exactly one fallback write marking the job failed with the write error, and
// a *PersistError is returned either way.
func (s *Store) Terminate(ctx context.Context, id string, status Status, payload, message string) error {
	if !status.Terminal() {
		return fmt.Errorf("report %s: %q is not a terminal status", id, status)
	}
	err := s.backend.UpdateDocument(ctx, s.index, id, map[string]any{
		"status": status,
		"binary": payload,
		"error":  message,
	})
	if err == nil {
		return nil
	}
	s.logger.Warnw("terminal write failed, marking report failed", "id", id, "status", status, "err", err)
	ferr := s.backend.UpdateDocument(ctx, s.index, id, map[string]any{
		"status": StatusFailed,
		"binary": NullPayload,
		"error":  err.Error(),
	})
	perr := &PersistError{ID: id, Err: err, Fallback: ferr}
	if perr.Pending() {
		s.logger.Errorw("report left pending", "id", id, "err", perr)
	}
	return perr
}

// Job returns the stored job without its payload check.
func (s *Store) Job(ctx context.Context, id string) (*ReportJob, error) {
	raw, err := s.backend.GetDocument(ctx, s.index, id)
	if errors.Is(err, search.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading report %s: %w", id, err)
	}
	var job ReportJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decoding report %s: %w", id, err)
	}
	job.ID = id
	return &job, nil
}

// Get returns the CSV of a successful job, ErrNotFound, or a *NotReadyError.
func (s *Store) Get(ctx context.Context, id string) (*Report, error) {
	job, err := s.Job(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusSuccess {
		return nil, &NotReadyError{ID: id, Status: job.Status, Message: job.Error}
	}
	text, err := DecodePayload(job.Binary)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", id, err)
	}
	return &Report{FileName: job.File, CSV: text}, nil
}

// List returns the most recent csv jobs, newest first, without payloads.
func (s *Store) List(ctx context.Context, limit int) ([]ReportJob, error) {
	if limit <= 0 {
		limit = DefaultListSize
	}
	res, err := s.backend.Search(ctx, s.index, map[string]any{
		"size":    limit,
		"sort":    []map[string]any{{"date": map[string]any{"order": "desc"}}},
		"query":   map[string]any{"match": map[string]any{"fileType": FileType}},
		"_source": map[string]any{"excludes": []string{"binary"}},
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	out := make([]ReportJob, 0, len(res.Hits))
	for _, hit := range res.Hits {
		b, err := json.Marshal(hit["_source"])
		if err != nil {
			return nil, fmt.Errorf("listing reports: %w", err)
		}
		var job ReportJob
		if err := json.Unmarshal(b, &job); err != nil {
			return nil, fmt.Errorf("listing reports: %w", err)
		}
		job.ID, _ = hit["_id"].(string)
		job.Binary = ""
		out = append(out, job)
	}
	return out, nil
}

// Purge deletes jobs dated before the given time.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.backend.DeleteByQuery(ctx, s.index, search.Clause{
		"range": search.Clause{
			"date": search.Clause{
				"lt":     before.Format(DateLayout),
				"format": dateMappingFormat,
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("purging reports: %w", err)
	}
	return n, nil
}
