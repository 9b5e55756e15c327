package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique local run ID with the "run_" prefix.
// The server's job ID is separate; a run ID also exists for runs whose start request failed.
func NewRunID() string {
	return "run_" + uuid.New().String()
}
