package worker

import (
	"csv-generator/jobs"
	"csv-generator/search"
)

// AckMessage is returned as soon as a report job is accepted.
const AckMessage = "csv file pending !"

// Request asks for a report of a saved search over [Start, End], both
// epoch-millis strings.
type Request struct {
	SavedSearchID string
	Start         string
	End           string
	Requester     jobs.Requester
}

type Ack struct {
	ID       string `json:"id"`
	FileName string `json:"filename"`
	Message  string `json:"message"`
}

// Description previews what a report of a saved search would contain.
type Description struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Columns   []string       `json:"columns"`
	Index     string         `json:"index"`
	TimeField string         `json:"timeField"`
	Fields    []search.Field `json:"fields"`
}

// Row is one flat record. Columns orders Values; a nil Columns means the
// keys of Values in sorted order.
type Row struct {
	Columns []string
	Values  map[string]any
}
