package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"csv-generator/api"
	"csv-generator/config"
	"csv-generator/jobs"
	"csv-generator/logging"
	"csv-generator/search"
	"csv-generator/worker"
)

func main() {
	configFile := flag.String("config", "config.yaml", "config file, relative to the project root")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed %s: %v", *configFile, err)
	}
	accessLogger := logging.NewLoggerOrDie(cfg.Server.LogDir, "access.log", cfg.Server.LogLevel)
	reportLogger := logging.NewLoggerOrDie(cfg.Server.LogDir, "report.log", cfg.Server.LogLevel)
	defer accessLogger.Close()
	defer reportLogger.Close()

	client, err := search.NewClient(cfg.Elasticsearch, nil)
	if err != nil {
		log.Fatalf("Failed elasticsearch client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := jobs.NewStore(client, cfg.Elasticsearch.ReportIndex, reportLogger)
	if _, err := store.Setup(ctx); err != nil {
		// the index can still be created later through /setup
		log.Printf("Report index setup failed: %v", err)
	}

	svc := worker.NewService(
		search.NewDescriptors(client, cfg.Elasticsearch.KibanaIndex),
		search.NewFetcher(client, search.FetchOptionsFromConfig(cfg.Report)),
		store,
		reportLogger,
		worker.Options{HistorySize: cfg.Report.HistorySize, MaxConcurrent: cfg.Report.MaxConcurrent},
	)

	if cfg.RetentionEnabled() {
		janitor := jobs.NewJanitor(store, time.Duration(cfg.Report.RetentionHours)*time.Hour, reportLogger)
		if err := janitor.Start(cfg.Report.PurgeSchedule); err != nil {
			log.Fatalf("Failed purge schedule: %v", err)
		}
		defer janitor.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.NewRouter(cfg, svc, store, accessLogger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Server started listening on %s ...", cfg.Server.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down, waiting for running reports...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	svc.Wait()
}
