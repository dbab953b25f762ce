package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"csv-generator/jobs"
	"csv-generator/logging"
	"csv-generator/metrics"
	"csv-generator/search"

	"golang.org/x/sync/semaphore"
)

// SavedObjects resolves saved searches and index patterns.
type SavedObjects interface {
	SavedSearch(ctx context.Context, id string) (*search.SavedSearch, error)
	IndexPattern(ctx context.Context, id string) (*search.IndexPattern, error)
}

// JobStore persists report jobs.
type JobStore interface {
	Create(ctx context.Context, fileName string, by jobs.Requester) (string, error)
	Terminate(ctx context.Context, id string, status jobs.Status, payload, message string) error
	Get(ctx context.Context, id string) (*jobs.Report, error)
	List(ctx context.Context, limit int) ([]jobs.ReportJob, error)
}

type Options struct {
	HistorySize   int   // jobs returned by ListRecentReports
	MaxConcurrent int64 // generations running at once, others stay pending
}

// Service accepts report requests and generates them in the background.
type Service struct {
	objects     SavedObjects
	fetcher     *search.Fetcher
	store       JobStore
	logger      *logging.Logger
	historySize int
	sem         *semaphore.Weighted
	wg          sync.WaitGroup
}

func NewService(objects SavedObjects, fetcher *search.Fetcher, store JobStore, logger *logging.Logger, opts Options) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = jobs.DefaultListSize
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Service{
		objects:     objects,
		fetcher:     fetcher,
		store:       store,
		logger:      logger,
		historySize: opts.HistorySize,
		sem:         semaphore.NewWeighted(opts.MaxConcurrent),
	}
}

// CreateReport stores a pending job and returns before the report is built.
func (s *Service) CreateReport(ctx context.Context, req Request) (*Ack, error) {
	ss, err := s.objects.SavedSearch(ctx, req.SavedSearchID)
	if err != nil {
		return nil, err
	}
	fileName := strings.ReplaceAll(ss.Title, " ", "_") + "_" + req.Start + "_" + req.End + ".csv"
	id, err := s.store.Create(ctx, fileName, req.Requester)
	if err != nil {
		return nil, err
	}
	metrics.ReportStarted()
	s.wg.Add(1)
	go s.generate(id, ss, req)
	return &Ack{ID: id, FileName: fileName, Message: AckMessage}, nil
}

func (s *Service) ListRecentReports(ctx context.Context) ([]jobs.ReportJob, error) {
	return s.store.List(ctx, s.historySize)
}

func (s *Service) GetReport(ctx context.Context, id string) (*jobs.Report, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) DescribeSavedSearch(ctx context.Context, id string) (*Description, error) {
	ss, err := s.objects.SavedSearch(ctx, id)
	if err != nil {
		return nil, err
	}
	ip, err := s.indexPattern(ctx, ss)
	if err != nil {
		return nil, err
	}
	cols := NewProjector(ss.Columns, ip.TimeFieldName).Columns()
	return &Description{
		ID:        ss.ID,
		Title:     ss.Title,
		Columns:   cols,
		Index:     ip.Title,
		TimeField: ip.TimeFieldName,
		Fields:    ip.Fields,
	}, nil
}

// Wait blocks until every accepted generation has terminated its job.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) indexPattern(ctx context.Context, ss *search.SavedSearch) (*search.IndexPattern, error) {
	src, err := search.ParseSearchSource(ss.SearchSourceJSON)
	if err != nil {
		return nil, err
	}
	id, err := ss.IndexPatternID(src)
	if err != nil {
		return nil, err
	}
	return s.objects.IndexPattern(ctx, id)
}

// generate runs detached from the request; every outcome ends in Terminate.
func (s *Service) generate(id string, ss *search.SavedSearch, req Request) {
	defer s.wg.Done()
	ctx := context.Background()
	started := time.Now()

	// Acquire only fails once ctx is done, and Background never is.
	_ = s.sem.Acquire(ctx, 1)
	defer s.sem.Release(1)

	s.logger.Infow("[START]", "id", id, "savedSearch", ss.ID, "start", req.Start, "end", req.End, "username", req.Requester.Username)

	var (
		text string
		rows int
		err  error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("report generation panicked: %v", r)
			}
		}()
		text, rows, err = s.build(ctx, id, ss, req)
	}()

	if err != nil {
		s.logger.Warnw("[FAIL]", "id", id, "err", err)
		var perr *jobs.PersistError
		if terr := s.store.Terminate(ctx, id, jobs.StatusFailed, jobs.NullPayload, err.Error()); errors.As(terr, &perr) && perr.Pending() {
			s.logger.Errorw("job left pending", "id", id, "err", perr)
		}
		metrics.ReportFinished(string(jobs.StatusFailed), 0, time.Since(started))
		return
	}
	if err := s.store.Terminate(ctx, id, jobs.StatusSuccess, jobs.EncodePayload(text), jobs.SuccessMessage); err != nil {
		s.logger.Errorw("[FAIL]", "id", id, "err", err)
		metrics.ReportFinished(string(jobs.StatusFailed), 0, time.Since(started))
		return
	}
	s.logger.Infow("[COMPLETE]", "id", id, "rows", rows, "bytes", len(text), "elapsed", time.Since(started).String())
	metrics.ReportFinished(string(jobs.StatusSuccess), rows, time.Since(started))
}

func (s *Service) build(ctx context.Context, id string, ss *search.SavedSearch, req Request) (string, int, error) {
	src, err := search.ParseSearchSource(ss.SearchSourceJSON)
	if err != nil {
		return "", 0, err
	}
	for _, f := range src.Filters {
		switch f.Type {
		case search.MatchPhrase, search.MatchExists, search.MatchPhrases:
		default:
			s.logger.Debugw("filter skipped", "id", id, "key", f.Key, "type", f.Type)
		}
	}
	patternID, err := ss.IndexPatternID(src)
	if err != nil {
		return "", 0, err
	}
	ip, err := s.objects.IndexPattern(ctx, patternID)
	if err != nil {
		return "", 0, err
	}

	q := search.Compile(src, search.TimeRange{Gte: req.Start, Lte: req.End}, ip.TimeFieldName)
	count, err := s.fetcher.Count(ctx, ip.Title, q)
	s.logger.Infow("[COUNT]", "id", id, "index", ip.Title, "count", count)
	if err != nil {
		return "", 0, err
	}

	proj := NewProjector(ss.Columns, ip.TimeFieldName)
	hits, err := s.fetcher.FetchAll(ctx, ip.Title, q, proj.SourceIncludes(), count)
	if err != nil {
		return "", 0, err
	}
	rows := make([]Row, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, proj.Project(h))
	}
	text, err := EncodeCSV(rows)
	if err != nil {
		return "", 0, err
	}
	return text, len(rows), nil
}
