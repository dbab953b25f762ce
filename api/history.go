package api

import (
	"net/http"

	"csv-generator/auth"
	"csv-generator/config"
	"csv-generator/jobs"
	"csv-generator/logging"
)

type historyEntry struct {
	ID           string      `json:"id"`
	FileName     string      `json:"filename"`
	Status       jobs.Status `json:"status"`
	Error        string      `json:"error"`
	Date         string      `json:"date"`
	DownloadLink string      `json:"downloadLink"`
	Username     string      `json:"username"`
}

func HistoryHandler(cfg *config.Config, reports Reports, accessLogger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requester := auth.RequesterFromRequest(r, cfg.JWT.Secret)
		list, err := reports.ListRecentReports(r.Context())
		if err != nil {
			accessLogger.Warnw("HISTORY_FAIL", "user", requester.Username, "err", err)
			replyError(w, err)
			return
		}
		out := make([]historyEntry, 0, len(list))
		for _, j := range list {
			out = append(out, historyEntry{
				ID:           j.ID,
				FileName:     j.File,
				Status:       j.Status,
				Error:        j.Error,
				Date:         j.Date,
				DownloadLink: j.DownloadLink,
				Username:     j.Username,
			})
		}
		accessLogger.Infow("HISTORY", "user", requester.Username, "count", len(out))
		reply(w, http.StatusOK, out)
	}
}
