package api

import (
	"net/http"

	"csv-generator/auth"
	"csv-generator/config"
	"csv-generator/logging"
	"csv-generator/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type generateParams struct {
	SavedSearchID string `validate:"required"`
	Start         string `validate:"required,numeric"`
	End           string `validate:"required,numeric"`
}

// GenerateHandler accepts a report request and answers before generation.
func GenerateHandler(cfg *config.Config, reports Reports, accessLogger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requester := auth.RequesterFromRequest(r, cfg.JWT.Secret)
		p := generateParams{
			SavedSearchID: chi.URLParam(r, "savedsearchId"),
			Start:         chi.URLParam(r, "start"),
			End:           chi.URLParam(r, "end"),
		}
		if err := validate.Struct(p); err != nil {
			accessLogger.Infow("EXECUTE_FAIL", "user", requester.Username, "reason", "bad_params", "err", err)
			reply(w, http.StatusBadRequest, err.Error())
			return
		}
		ack, err := reports.CreateReport(r.Context(), worker.Request{
			SavedSearchID: p.SavedSearchID,
			Start:         p.Start,
			End:           p.End,
			Requester:     requester,
		})
		if err != nil {
			accessLogger.Warnw("EXECUTE_FAIL", "user", requester.Username, "savedSearch", p.SavedSearchID, "err", err)
			replyError(w, err)
			return
		}
		accessLogger.Infow("EXECUTE_OK", "user", requester.Username, "savedSearch", p.SavedSearchID, "id", ack.ID)
		reply(w, http.StatusOK, ack)
	}
}
