// Package fakebackend serves the backend job endpoints from scripted
// progressions. Tests run it through httptest; the dev-backend command serves
// it for local runs.
package fakebackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/cristianoliveira/job-intray/internal/jobs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Job kinds, one per start endpoint.
const (
	KindPlaidSync  = "plaid-sync"
	KindConvert    = "convert-transactions"
	KindBulkDelete = "bulk-delete"
	KindStatement  = "statement-process"
)

// Step is one answer of the status endpoint. Gone answers 404.
type Step struct {
	Status jobs.Status
	Gone   bool
}

// Queued, Started, Finished, Failed and Gone build script steps.
func Queued() Step { return Step{Status: jobs.Status{Status: jobs.StatusQueued}} }

func Started(stage string) Step {
	st := jobs.Status{Status: jobs.StatusStarted}
	if stage != "" {
		st.Meta = &jobs.Meta{Stage: stage}
	}
	return Step{Status: st}
}

func Finished(result string) Step {
	return Step{Status: jobs.Status{Status: jobs.StatusFinished, Result: json.RawMessage(result)}}
}

func Failed(msg string) Step {
	return Step{Status: jobs.Status{Status: jobs.StatusFailed, Error: msg}}
}

func Gone() Step { return Step{Gone: true} }

// DefaultScripts are the progressions used when a kind has no explicit script.
func DefaultScripts() map[string][]Step {
	return map[string][]Step{
		KindPlaidSync:  {Queued(), Started("fetching"), Finished(`{"added":3,"modified":1,"removed":0}`)},
		KindConvert:    {Queued(), Started("converting"), Finished(`{"converted":4,"total_amount":"125.50","currency":"USD"}`)},
		KindBulkDelete: {Started("deleting"), Finished(`{"deleted":2}`)},
		KindStatement:  {Queued(), Started("parsing"), Started("categorizing"), Finished(`{"transactions":12,"statement_id":"s-1"}`)},
	}
}

type job struct {
	id    string
	kind  string
	steps []Step
	polls int
}

type startFailure struct {
	code    int
	message string
}

// Server is an in-memory backend.
type Server struct {
	mu          sync.Mutex
	token       string
	seq         int
	scripts     map[string][]Step
	jobs        map[string]*job
	failures    map[string]startFailure
	resources   map[string]int
	idempotency map[string]string
	starts      int
}

// Option configures a Server.
type Option func(*Server)

// WithToken makes every request require "Authorization: Bearer <token>".
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// New creates a server with the default scripts.
func New(opts ...Option) *Server {
	s := &Server{
		scripts:     DefaultScripts(),
		jobs:        make(map[string]*job),
		failures:    make(map[string]startFailure),
		resources:   map[string]int{"transactions": 12, "accounts": 3, "expenses": 4},
		idempotency: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Script replaces the progression of future jobs of kind.
func (s *Server) Script(kind string, steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[kind] = steps
}

// FailStart makes the start endpoint of kind answer code with msg.
func (s *Server) FailStart(kind string, code int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[kind] = startFailure{code: code, message: msg}
}

// SetResource sets the item count returned for a resource collection.
func (s *Server) SetResource(name string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[name] = count
}

// Expire deletes a job so its status endpoint answers 404.
func (s *Server) Expire(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
}

// Polls returns how many status requests a job received.
func (s *Server) Polls(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		return j.polls
	}
	return 0
}

// Starts returns how many jobs were started.
func (s *Server) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Handler returns the chi router serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.authenticate)

	r.Route("/api", func(r chi.Router) {
		r.Post("/plaid/sync", s.handlePlaidSync)
		r.Post("/transactions/convert", s.handleTransactions(KindConvert))
		r.Post("/transactions/bulk-delete", s.handleTransactions(KindBulkDelete))
		r.Post("/statements/{statementID}/process", s.handleStatement)
		r.Get("/jobs/{jobID}", s.handleJobStatus)
		r.Get("/{resource}", s.handleResource)
	})
	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePlaidSync(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemID string `json:"item_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.ItemID) == "" {
		writeError(w, http.StatusUnprocessableEntity, "item_id is required")
		return
	}
	s.start(w, r, KindPlaidSync)
}

func (s *Server) handleTransactions(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TransactionIDs []string `json:"transaction_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.TransactionIDs) == 0 {
			writeError(w, http.StatusUnprocessableEntity, "transaction_ids is required")
			return
		}
		s.start(w, r, kind)
	}
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "statementID") == "" {
		writeError(w, http.StatusUnprocessableEntity, "statement id is required")
		return
	}
	s.start(w, r, KindStatement)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.failures[kind]; ok {
		writeError(w, f.code, f.message)
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if id, ok := s.idempotency[key]; ok && key != "" {
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
		return
	}

	s.seq++
	s.starts++
	id := fmt.Sprintf("%s-%d", kind, s.seq)
	steps := append([]Step(nil), s.scripts[kind]...)
	if len(steps) == 0 {
		steps = []Step{Finished(`{}`)}
	}
	s.jobs[id] = &job{id: id, kind: kind, steps: steps}
	if key != "" {
		s.idempotency[key] = id
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[chi.URLParam(r, "jobID")]
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	idx := j.polls
	if idx >= len(j.steps) {
		idx = len(j.steps) - 1
	}
	j.polls++
	step := j.steps[idx]
	if step.Gone {
		delete(s.jobs, j.id)
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, step.Status)
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n, ok := s.resources[chi.URLParam(r, "resource")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}
	items := make([]map[string]int, n)
	for i := range items {
		items[i] = map[string]int{"id": i + 1}
	}
	writeJSON(w, http.StatusOK, items)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"detail": msg})
}
