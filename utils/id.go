package utils

import "github.com/google/uuid"

// GenerateRequestID returns a random identifier for a report job.
func GenerateRequestID() string {
	return uuid.NewString()
}
