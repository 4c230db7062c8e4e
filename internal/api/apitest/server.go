// Package apitest provides an in-process fake of the question-answering
// backend for tests.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/entrepeneur4lyf/bookchat/internal/api"
)

// Response is a canned reply. A zero Status means 200.
type Response struct {
	Status int
	Body   any
	Header map[string]string
	// Delay holds the reply back; the handler gives up early when the client
	// cancels
	Delay time.Duration
}

// QueryResponder produces the reply for a query
type QueryResponder func(req api.QueryRequest) Response

// Server is a fake backend. The zero configuration answers every question
// with one citation.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	responder QueryResponder
	status    Response
	health    Response
	queries   []api.QueryRequest
	feedback  []api.FeedbackRequest
	reports   []api.ReportIssueRequest
}

// NewServer starts a fake backend. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		responder: DefaultAnswer,
		status: Response{Body: api.ContentStatus{
			LastUpdated:      "2025-01-15",
			ContentVersion:   "v1.0.0",
			IndexedModules:   []string{"module-0", "module-1"},
			TotalChunks:      412,
			IndexingComplete: true,
		}},
		health: Response{Body: api.HealthStatus{
			Status:    "healthy",
			Qdrant:    "connected",
			Database:  "connected",
			Timestamp: "2025-01-15T10:30:00.123456",
		}},
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// DefaultAnswer answers with a fixed citation scored 0.95
func DefaultAnswer(req api.QueryRequest) Response {
	return Response{Body: api.QueryResponse{
		Answer: "Answer to: " + req.Question,
		Citations: []api.Citation{{
			Section:  "Introduction to Physical AI",
			URL:      "/docs/module-0/physical-ai",
			Score:    0.95,
			ModuleID: "module-0",
		}},
		Confidence:     0.9,
		MessageID:      uuid.NewString(),
		ResponseTimeMS: 1200,
	}}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/query", s.handleQuery).Methods("POST")
	apiRouter.HandleFunc("/content-status", s.handleContentStatus).Methods("GET")
	apiRouter.HandleFunc("/feedback", s.handleFeedback).Methods("POST")
	apiRouter.HandleFunc("/report-issue", s.handleReportIssue).Methods("POST")

	return router
}

// SetQueryResponder replaces how queries are answered
func (s *Server) SetQueryResponder(fn QueryResponder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responder = fn
}

// RespondToQueries answers every query with resp
func (s *Server) RespondToQueries(resp Response) {
	s.SetQueryResponder(func(api.QueryRequest) Response { return resp })
}

// SetContentStatus replaces the content-status reply
func (s *Server) SetContentStatus(resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = resp
}

// SetHealth replaces the health reply
func (s *Server) SetHealth(resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = resp
}

// Queries returns every query received so far
func (s *Server) Queries() []api.QueryRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.QueryRequest(nil), s.queries...)
}

// QueryCount returns how many queries were received
func (s *Server) QueryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

// Feedback returns every rating received so far
func (s *Server) Feedback() []api.FeedbackRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.FeedbackRequest(nil), s.feedback...)
}

// Reports returns every issue report received so far
func (s *Server) Reports() []api.ReportIssueRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.ReportIssueRequest(nil), s.reports...)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req api.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.queries = append(s.queries, req)
	responder := s.responder
	s.mu.Unlock()

	s.reply(w, r, responder(req))
}

func (s *Server) handleContentStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := s.status
	s.mu.Unlock()
	s.reply(w, r, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := s.health
	s.mu.Unlock()
	s.reply(w, r, resp)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req api.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Rating != api.RatingUp && req.Rating != api.RatingDown {
		writeError(w, "Rating must be 'up' or 'down'", http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	s.feedback = append(s.feedback, req)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, api.FeedbackResponse{Success: true, Message: "Feedback recorded"})
}

func (s *Server) handleReportIssue(w http.ResponseWriter, r *http.Request) {
	var req api.ReportIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !req.IssueType.Valid() {
		writeError(w, "Invalid issue type", http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	s.reports = append(s.reports, req)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, api.ReportIssueResponse{
		Success: true,
		IssueID: uuid.NewString(),
		Message: "Issue reported",
	})
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request, resp Response) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for k, v := range resp.Header {
		w.Header().Set(k, v)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	if raw, ok := resp.Body.(string); ok {
		w.WriteHeader(status)
		w.Write([]byte(raw))
		return
	}
	writeJSON(w, status, resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"detail": message})
}
