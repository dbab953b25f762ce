package jobs

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Status of a report job. pending moves to success or failed exactly once.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

const (
	FileType       = "csv"
	NullPayload    = "bnVsbA==" // base64("null")
	PendingMessage = "Csv being Generated"
	SuccessMessage = "Succesfully Generated"
	DownloadPrefix = "/api/csvGenerator/download/"

	// DateLayout formats the job date as DD-MM-YYYY HH:mm:ss.
	DateLayout = "02-01-2006 15:04:05"
	// dateMappingFormat is DateLayout in the backend's date format syntax.
	dateMappingFormat = "dd-MM-yyyy HH:mm:ss"
)

// Requester identifies who asked for a report. Both fields may be empty.
type Requester struct {
	UserID   string
	Username string
}

// ReportJob is the persisted job document.
type ReportJob struct {
	ID           string `json:"-"`
	FileType     string `json:"fileType"`
	File         string `json:"file"`
	DownloadLink string `json:"downloadLink"`
	Date         string `json:"date"`
	Status       Status `json:"status"`
	Binary       string `json:"binary,omitempty"`
	Error        string `json:"error"`
	UserID       string `json:"userId"`
	Username     string `json:"username"`
}

// Report is the decoded content of a successful job.
type Report struct {
	FileName string `json:"filename"`
	CSV      string `json:"csv"`
}

var (
	ErrNotFound = errors.New("report not found")
	ErrNotReady = errors.New("report not ready")
)

// NotReadyError is returned by Get for jobs that did not succeed (yet).
type NotReadyError struct {
	ID      string
	Status  Status
	Message string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("report %s is %s: %s", e.ID, e.Status, e.Message)
}

func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }

// PersistError is returned when the terminal write failed. Fallback is nil
// when the job was marked failed instead, and holds the fallback write error
// when the job is still pending.
type PersistError struct {
	ID       string
	Err      error
	Fallback error
}

func (e *PersistError) Error() string {
	if e.Fallback == nil {
		return fmt.Sprintf("persisting report %s: %v (marked failed)", e.ID, e.Err)
	}
	return fmt.Sprintf("persisting report %s: %v (fallback: %v)", e.ID, e.Err, e.Fallback)
}

// Pending reports whether the job was left without a terminal status.
func (e *PersistError) Pending() bool { return e.Fallback != nil }

func (e *PersistError) Unwrap() error { return e.Err }

func EncodePayload(csvText string) string {
	return base64.StdEncoding.EncodeToString([]byte(csvText))
}

func DecodePayload(payload string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decoding payload: %w", err)
	}
	return string(b), nil
}
