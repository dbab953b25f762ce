package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"csv-generator/config"
	"csv-generator/jobs"
	"csv-generator/logging"
	"csv-generator/search"
	"csv-generator/worker"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reports is the report service behind the handlers.
type Reports interface {
	CreateReport(ctx context.Context, req worker.Request) (*worker.Ack, error)
	ListRecentReports(ctx context.Context) ([]jobs.ReportJob, error)
	GetReport(ctx context.Context, id string) (*jobs.Report, error)
	DescribeSavedSearch(ctx context.Context, id string) (*worker.Description, error)
}

// IndexSetup creates the job index.
type IndexSetup interface {
	Setup(ctx context.Context) (bool, error)
}

const basePath = "/api/csvGenerator"

// NewRouter mounts the report routes and the metrics endpoint.
func NewRouter(cfg *config.Config, reports Reports, setup IndexSetup, accessLogger *logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	RegisterHandlers(r, cfg, reports, setup, accessLogger)
	if cfg.Server.MetricsPath != "" {
		r.Handle(cfg.Server.MetricsPath, promhttp.Handler())
	}
	return r
}

func RegisterHandlers(r chi.Router, cfg *config.Config, reports Reports, setup IndexSetup, accessLogger *logging.Logger) {
	r.Route(basePath, func(r chi.Router) {
		r.Get("/setup", SetupHandler(setup, accessLogger))
		r.Get("/history", HistoryHandler(cfg, reports, accessLogger))
		r.Get("/savedObjects/{savedsearchId}", DescribeHandler(cfg, reports, accessLogger))
		r.Get("/savedObjects/{savedsearchId}/{start}/{end}", GenerateHandler(cfg, reports, accessLogger))
		r.Get("/download/{csvId}", DownloadHandler(cfg, reports, accessLogger))
	})
}

// reply writes the {"ok": ..., "resp": ...} envelope.
func reply(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":   status < 400,
		"resp": resp,
	})
}

func replyError(w http.ResponseWriter, err error) {
	var verr *search.ValidationError
	var nr *jobs.NotReadyError
	switch {
	case errors.As(err, &nr):
		reply(w, http.StatusConflict, map[string]any{"status": nr.Status, "error": nr.Message})
	case errors.Is(err, search.ErrNotFound), errors.Is(err, jobs.ErrNotFound):
		reply(w, http.StatusNotFound, err.Error())
	case errors.As(err, &verr):
		reply(w, http.StatusBadRequest, err.Error())
	default:
		reply(w, http.StatusInternalServerError, err.Error())
	}
}
