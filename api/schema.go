package api

import (
	"net/http"

	"csv-generator/auth"
	"csv-generator/config"
	"csv-generator/logging"

	"github.com/go-chi/chi/v5"
)

// DescribeHandler previews the columns and index of a saved search.
func DescribeHandler(cfg *config.Config, reports Reports, accessLogger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requester := auth.RequesterFromRequest(r, cfg.JWT.Secret)
		id := chi.URLParam(r, "savedsearchId")
		d, err := reports.DescribeSavedSearch(r.Context(), id)
		if err != nil {
			accessLogger.Warnw("DESCRIBE_FAIL", "user", requester.Username, "savedSearch", id, "err", err)
			replyError(w, err)
			return
		}
		accessLogger.Infow("DESCRIBE", "user", requester.Username, "savedSearch", id)
		reply(w, http.StatusOK, d)
	}
}
