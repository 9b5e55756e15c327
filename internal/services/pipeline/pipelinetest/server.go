// Package pipelinetest provides a scripted in-process pipeline server for tests.
package pipelinetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ternarybob/pipewatch/internal/models"
)

// LiveMode controls how the fake server answers the live channel
type LiveMode int

const (
	// LiveStream pushes the job's scripted snapshots and closes after a terminal one
	LiveStream LiveMode = iota
	// LiveReject fails the websocket handshake
	LiveReject
	// LiveCloseOnOpen accepts the channel and closes it immediately
	LiveCloseOnOpen
	// LiveSilent accepts the channel and never sends anything
	LiveSilent
)

// Job is a scripted job. Polls and live pushes share one cursor through
// Snapshots; the last snapshot repeats once the script is exhausted.
type Job struct {
	ID        string
	Snapshots []models.JobSnapshot
	Outputs   []models.Output

	Live         LiveMode
	LiveInterval time.Duration
	// LivePreamble is sent raw on the live channel before any snapshot
	LivePreamble [][]byte
	// RejectFirstDials fails this many handshakes before Live applies
	RejectFirstDials int

	// PollFailAt makes the Nth status poll (1-based) and all later ones fail with 500
	PollFailAt    int
	StatusDelay   time.Duration
	OutputsStatus int
	OutputsDelay  time.Duration

	next    int
	polls   int
	dials   int
	outputs int
}

// Server is an httptest server speaking the pipeline API
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	jobs        map[string]*Job
	startQueue  []string
	started     []startRecord
	filters     []models.FilterInfo
	liveConns   int
	maxLiveConn int
}

type startRecord struct {
	Images []string           `json:"images"`
	Steps  []models.StageSpec `json:"steps"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewServer starts a fake pipeline server. Close it when done.
func NewServer() *Server {
	s := &Server{
		jobs: make(map[string]*Job),
		filters: []models.FilterInfo{
			{Name: "resize", Params: map[string]interface{}{"width": 256, "height": 256}},
			{Name: "blur", Params: map[string]interface{}{"radius": 2}},
			{Name: "grayscale"},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/process", s.handleProcess)
	mux.HandleFunc("GET /api/filters", s.handleFilters)
	mux.HandleFunc("GET /api/jobs/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /api/jobs/{id}/outputs", s.handleOutputs)
	mux.HandleFunc("GET /api/jobs/{id}/ws", s.handleLive)

	s.Server = httptest.NewServer(mux)
	return s
}

// AddJob registers a scripted job. The next POST /api/process returns its ID.
func (s *Server) AddJob(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.LiveInterval <= 0 {
		job.LiveInterval = 20 * time.Millisecond
	}
	s.jobs[job.ID] = job
	s.startQueue = append(s.startQueue, job.ID)
}

// Polls returns how many status polls jobID received
func (s *Server) Polls(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		return job.polls
	}
	return 0
}

// Dials returns how many live channel attempts jobID received
func (s *Server) Dials(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		return job.dials
	}
	return 0
}

// OutputsCalls returns how many output listings jobID received
func (s *Server) OutputsCalls(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		return job.outputs
	}
	return 0
}

// MaxConcurrentLive returns the highest number of simultaneously open live channels
func (s *Server) MaxConcurrentLive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxLiveConn
}

// StartedImages returns the image lists of every accepted start request
func (s *Server) StartedImages() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.started))
	for i, rec := range s.started {
		out[i] = rec.Images
	}
	return out
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req startRecord
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	if len(req.Images) == 0 || len(req.Steps) == 0 {
		writeDetail(w, http.StatusBadRequest, "images and steps required")
		return
	}

	s.mu.Lock()
	if len(s.startQueue) == 0 {
		s.mu.Unlock()
		writeDetail(w, http.StatusInternalServerError, "no job scripted")
		return
	}
	jobID := s.startQueue[0]
	s.startQueue = s.startQueue[1:]
	s.started = append(s.started, req)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "running"})
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	filters := s.filters
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, filters)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	job, ok := s.jobs[r.PathValue("id")]
	if !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	job.polls++
	failing := job.PollFailAt > 0 && job.polls >= job.PollFailAt
	delay := job.StatusDelay
	var snap models.JobSnapshot
	if !failing {
		snap = s.advance(job)
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if failing {
		writeDetail(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleOutputs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	job, ok := s.jobs[r.PathValue("id")]
	if !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	job.outputs++
	code := job.OutputsStatus
	delay := job.OutputsDelay
	body := map[string]interface{}{"job_id": job.ID, "outputs": job.Outputs}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if code != 0 {
		writeDetail(w, code, "outputs unavailable")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	job, ok := s.jobs[r.PathValue("id")]
	if ok {
		job.dials++
	}
	mode := LiveStream
	if ok {
		mode = job.Live
		if job.dials <= job.RejectFirstDials {
			mode = LiveReject
		}
	}
	s.mu.Unlock()

	if mode == LiveReject {
		writeDetail(w, http.StatusServiceUnavailable, "live channel disabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.liveConns++
	if s.liveConns > s.maxLiveConn {
		s.maxLiveConn = s.liveConns
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.liveConns--
		s.mu.Unlock()
	}()

	if !ok {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"status":"not_found"}`))
		return
	}

	// Drain client frames so close handshakes are observed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	switch mode {
	case LiveCloseOnOpen:
		return
	case LiveSilent:
		<-closed
		return
	}

	s.mu.Lock()
	preamble := job.LivePreamble
	interval := job.LiveInterval
	s.mu.Unlock()

	for _, raw := range preamble {
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		snap := s.advance(job)
		s.mu.Unlock()

		data, err := json.Marshal(snap)
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
		if snap.Status.IsTerminal() {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
			return
		}

		select {
		case <-ticker.C:
		case <-closed:
			return
		}
	}
}

// advance returns the job's current snapshot and moves the cursor. Caller holds s.mu.
func (s *Server) advance(job *Job) models.JobSnapshot {
	if len(job.Snapshots) == 0 {
		return models.JobSnapshot{JobID: job.ID, Status: models.JobStatusRunning}
	}
	snap := job.Snapshots[job.next]
	if job.next < len(job.Snapshots)-1 {
		job.next++
	}
	if snap.JobID == "" {
		snap.JobID = job.ID
	}
	return snap
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
