package api

import (
	"net/http"

	"csv-generator/logging"
)

func SetupHandler(setup IndexSetup, accessLogger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		created, err := setup.Setup(r.Context())
		if err != nil {
			accessLogger.Warnw("SETUP_FAIL", "err", err)
			replyError(w, err)
			return
		}
		accessLogger.Infow("SETUP_OK", "created", created)
		reply(w, http.StatusOK, map[string]bool{"created": created})
	}
}
