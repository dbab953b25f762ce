package api

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"

	"csv-generator/auth"
	"csv-generator/config"
	"csv-generator/logging"

	"github.com/go-chi/chi/v5"
	"github.com/tealeg/xlsx/v3"
)

// DownloadHandler returns a generated report. ?type=csv or ?type=xlsx
// (alias excel) send a file attachment, anything else the JSON envelope
// {filename, csv}.
func DownloadHandler(cfg *config.Config, reports Reports, accessLogger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requester := auth.RequesterFromRequest(r, cfg.JWT.Secret)
		id := chi.URLParam(r, "csvId")
		fileType := strings.ToLower(r.URL.Query().Get("type"))

		rep, err := reports.GetReport(r.Context(), id)
		if err != nil {
			accessLogger.Infow("DOWNLOAD_FAIL", "user", requester.Username, "id", id, "err", err)
			replyError(w, err)
			return
		}
		accessLogger.Infow("DOWNLOAD_OK", "user", requester.Username, "id", id, "type", fileType)

		switch fileType {
		case "csv":
			attachment(w, "text/csv", rep.FileName)
			_, _ = io.WriteString(w, rep.CSV)
		case "xlsx", "excel":
			var buf bytes.Buffer
			if err := csvToXLSX(rep.CSV, &buf); err != nil {
				reply(w, http.StatusInternalServerError, err.Error())
				return
			}
			name := strings.TrimSuffix(rep.FileName, ".csv") + ".xlsx"
			attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", name)
			_, _ = w.Write(buf.Bytes())
		default:
			reply(w, http.StatusOK, rep)
		}
	}
}

func attachment(w http.ResponseWriter, contentType, fileName string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", strings.ReplaceAll(fileName, "\"", "")))
}

// csvToXLSX writes every CSV record as a row of a single sheet.
func csvToXLSX(text string, out io.Writer) error {
	rd := csv.NewReader(strings.NewReader(text))
	rd.FieldsPerRecord = -1
	records, err := rd.ReadAll()
	if err != nil {
		return fmt.Errorf("reading csv: %w", err)
	}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("report")
	if err != nil {
		return err
	}
	for _, rec := range records {
		row := sheet.AddRow()
		for _, v := range rec {
			row.AddCell().SetString(v)
		}
	}
	return f.Write(out)
}
