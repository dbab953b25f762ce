package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"csv-generator/jobs"
	"csv-generator/worker"

	"github.com/spf13/cobra"
)

func newSetupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the report job index if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			created, err := a.store.Setup(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(map[string]any{"index": a.store.Index(), "created": created}, func(w io.Writer) {
				fmt.Fprintf(w, "index\t%s\ncreated\t%t\n", a.store.Index(), created)
			})
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List the most recent report jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := a.svc.ListRecentReports(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(jobViews(list), func(w io.Writer) {
				fmt.Fprintln(w, "ID\tFILE\tSTATUS\tDATE\tUSER\tMESSAGE")
				for _, j := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", j.ID, j.File, j.Status, j.Date, j.Username, j.Error)
				}
			})
		},
	}
}

func newDescribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <savedSearchId>",
		Short: "Show the index and columns a saved search would export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.svc.DescribeSavedSearch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(d, func(w io.Writer) {
				fmt.Fprintf(w, "title\t%s\nindex\t%s\ntime field\t%s\ncolumns\t%v\n", d.Title, d.Index, d.TimeField, d.Columns)
			})
		},
	}
}

// newGenerateCmd runs the generation in process, so it blocks until the job
// is terminal.
func newGenerateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <savedSearchId> <startMillis> <endMillis>",
		Short: "Generate a report and wait for it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := os.Getenv("USER")
			ack, err := a.svc.CreateReport(cmd.Context(), worker.Request{
				SavedSearchID: args[0],
				Start:         args[1],
				End:           args[2],
				Requester:     jobs.Requester{UserID: user, Username: user},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s (%s)\n", ack.Message, ack.ID)
			a.svc.Wait()

			job, err := a.store.Job(context.WithoutCancel(cmd.Context()), ack.ID)
			if err != nil {
				return err
			}
			if err := a.print(jobViews([]jobs.ReportJob{*job})[0], func(w io.Writer) {
				fmt.Fprintf(w, "id\t%s\nfile\t%s\nstatus\t%s\nmessage\t%s\n", job.ID, job.File, job.Status, job.Error)
			}); err != nil {
				return err
			}
			if job.Status != jobs.StatusSuccess {
				return fmt.Errorf("report %s %s: %s", job.ID, job.Status, job.Error)
			}
			return nil
		},
	}
}

func newDownloadCmd(a *app) *cobra.Command {
	var outFile string
	cmd := &cobra.Command{
		Use:   "download <reportId>",
		Short: "Write the CSV of a successful report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := a.svc.GetReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outFile == "" {
				_, err = io.WriteString(a.out, rep.CSV)
				return err
			}
			if outFile == "." {
				outFile = rep.FileName
			}
			if err := os.WriteFile(outFile, []byte(rep.CSV), 0644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "written %s\n", outFile)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outFile, "file", "f", "", "output file, \".\" for the report file name (default stdout)")
	return cmd
}

func newPurgeCmd(a *app) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete report jobs older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			n, err := jobs.NewJanitor(a.store, olderThan, a.logger).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(map[string]int64{"deleted": n}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted\t%d\n", n)
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age of the jobs to delete, e.g. 720h")
	return cmd
}

type jobView struct {
	ID           string      `json:"id"`
	FileName     string      `json:"filename"`
	Status       jobs.Status `json:"status"`
	Error        string      `json:"error"`
	Date         string      `json:"date"`
	DownloadLink string      `json:"downloadLink"`
	Username     string      `json:"username"`
}

func jobViews(list []jobs.ReportJob) []jobView {
	out := make([]jobView, 0, len(list))
	for _, j := range list {
		out = append(out, jobView{
			ID:           j.ID,
			FileName:     j.File,
			Status:       j.Status,
			Error:        j.Error,
			Date:         j.Date,
			DownloadLink: j.DownloadLink,
			Username:     j.Username,
		})
	}
	return out
}
