package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"csv-generator/config"
	"csv-generator/jobs"
	"csv-generator/logging"
	"csv-generator/search"
	"csv-generator/utils"
	"csv-generator/worker"

	"github.com/spf13/cobra"
)

// app holds what every subcommand needs, built once the flags are parsed.
type app struct {
	cfg    *config.Config
	store  *jobs.Store
	svc    *worker.Service
	logger *logging.Logger
	output string
	out    io.Writer
}

func execute() int {
	a := &app{out: os.Stdout}
	root := newRootCmd(a)
	err := root.Execute()
	if a.logger != nil {
		a.logger.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	var (
		configFile  string
		askPassword bool
	)
	root := &cobra.Command{
		Use:           "csvgenctl",
		Short:         "Operate csv-generator report jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(a.output); err != nil {
				return err
			}
			if a.output == "" {
				a.output = "json"
				if utils.IsTerminal(os.Stdout) {
					a.output = "table"
				}
			}
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if askPassword {
				if cfg.Elasticsearch.Password, err = utils.PromptPassword("Elasticsearch password: "); err != nil {
					return err
				}
			}
			return a.init(cfg)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "config file, relative to the project root")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "", "output format (table, json), default table on a terminal")
	root.PersistentFlags().BoolVar(&askPassword, "ask-password", false, "prompt for the Elasticsearch password")

	root.AddCommand(
		newSetupCmd(a),
		newHistoryCmd(a),
		newDescribeCmd(a),
		newGenerateCmd(a),
		newDownloadCmd(a),
		newPurgeCmd(a),
	)
	return root
}

func (a *app) init(cfg *config.Config) error {
	logger, err := logging.NewLogger(cfg.Server.LogDir, "report.log", cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	client, err := search.NewClient(cfg.Elasticsearch, nil)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.store = jobs.NewStore(client, cfg.Elasticsearch.ReportIndex, logger)
	a.svc = worker.NewService(
		search.NewDescriptors(client, cfg.Elasticsearch.KibanaIndex),
		search.NewFetcher(client, search.FetchOptionsFromConfig(cfg.Report)),
		a.store,
		logger,
		worker.Options{HistorySize: cfg.Report.HistorySize, MaxConcurrent: cfg.Report.MaxConcurrent},
	)
	return nil
}

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

// print writes v as indented JSON, or calls table with a tab-aligned writer.
func (a *app) print(v any, table func(w io.Writer)) error {
	if a.output == "json" {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}
