// Package pipeline provides a client for the image pipeline server API.
package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/ternarybob/pipewatch/internal/models"
)

// startJobRequest is the body of POST /api/process
type startJobRequest struct {
	Images []string           `json:"images"`
	Steps  []models.StageSpec `json:"steps"`
}

// startJobResponse is returned by POST /api/process
type startJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// outputsResponse is returned by GET /api/jobs/{id}/outputs
type outputsResponse struct {
	JobID   string          `json:"job_id"`
	Outputs []models.Output `json:"outputs"`
}

// errorResponse is the server's error body. Detail is usually a string but
// request validation failures carry a list of objects.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

func (e *errorResponse) message() string {
	if len(e.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(e.Detail))
}
