// Package jiratest provides an httptest-backed mock Jira server for client,
// pull and push tests.
package jiratest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/deskbridge/deskbridge/internal/jira"
)

// Server is a fake Jira REST endpoint. Populate the exported fields before
// exercising the engine; recorded requests are available afterwards.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// Fixtures
	ProjectList []jira.Project
	Issues      []jira.Issue
	Comments    map[string][]jira.Comment    // by issue key
	Transitions map[string][]jira.Transition // by issue key
	Files       map[string][]byte            // by path, served at /files/<path>
	MyselfCode  int                          // 0 means 200

	// Recorded traffic
	SearchRequests     int
	PostedComments     map[string][]string // key -> raw POST bodies
	UpdatedFields      map[string][]string // key -> raw PUT bodies
	AppliedTransitions map[string][]string // key -> raw POST bodies
}

// NewServer starts the mock. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		Comments:           make(map[string][]jira.Comment),
		Transitions:        make(map[string][]jira.Transition),
		Files:              make(map[string][]byte),
		PostedComments:     make(map[string][]string),
		UpdatedFields:      make(map[string][]string),
		AppliedTransitions: make(map[string][]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/myself", s.handleMyself)
	mux.HandleFunc("/rest/api/3/project", s.handleProjects)
	mux.HandleFunc("/rest/api/3/project/", s.handleProjectUpdate)
	mux.HandleFunc("/rest/api/3/search", s.handleSearch)
	mux.HandleFunc("/rest/api/3/issue/", s.handleIssue)
	mux.HandleFunc("/files/", s.handleFile)
	s.Server = httptest.NewServer(mux)
	return s
}

// Client returns a jira.Client pointed at the mock.
func (s *Server) Client() *jira.Client {
	return jira.NewClient(s.URL, "test@example.com", "token")
}

// FileURL returns the absolute URL of a registered file.
func (s *Server) FileURL(name string) string {
	return s.URL + "/files/" + name
}

func (s *Server) handleMyself(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	code := s.MyselfCode
	s.mu.Unlock()
	if code == 0 {
		code = http.StatusOK
	}
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"accountId":"mock"}`))
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, s.ProjectList)
}

func (s *Server) handleProjectUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/rest/api/3/project/")
	s.mu.Lock()
	s.UpdatedFields[key] = append(s.UpdatedFields[key], readBody(r))
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SearchRequests++

	startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
	maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
	if maxResults <= 0 {
		maxResults = 50
	}

	end := startAt + maxResults
	if end > len(s.Issues) {
		end = len(s.Issues)
	}
	page := []jira.Issue{}
	if startAt < len(s.Issues) {
		page = s.Issues[startAt:end]
	}

	writeJSON(w, jira.SearchResponse{
		StartAt:    startAt,
		MaxResults: maxResults,
		Total:      len(s.Issues),
		Issues:     page,
	})
}

// handleIssue dispatches /issue/{key}, /issue/{key}/comment and
// /issue/{key}/transitions.
func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/rest/api/3/issue/")
	parts := strings.Split(rest, "/")
	key := parts[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		for i := range s.Issues {
			if s.Issues[i].Key == key {
				writeJSON(w, s.Issues[i])
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)

	case len(parts) == 1 && r.Method == http.MethodPut:
		s.UpdatedFields[key] = append(s.UpdatedFields[key], readBody(r))
		w.WriteHeader(http.StatusNoContent)

	case len(parts) == 2 && parts[1] == "comment" && r.Method == http.MethodGet:
		writeJSON(w, jira.CommentsResponse{Comments: s.Comments[key]})

	case len(parts) == 2 && parts[1] == "comment" && r.Method == http.MethodPost:
		s.PostedComments[key] = append(s.PostedComments[key], readBody(r))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"9000"}`))

	case len(parts) == 2 && parts[1] == "transitions" && r.Method == http.MethodGet:
		writeJSON(w, jira.TransitionsResponse{Transitions: s.Transitions[key]})

	case len(parts) == 2 && parts[1] == "transitions" && r.Method == http.MethodPost:
		s.AppliedTransitions[key] = append(s.AppliedTransitions[key], readBody(r))
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/files/")
	s.mu.Lock()
	content, ok := s.Files[name]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(content)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(fmt.Sprintf("jiratest: encode response: %v", err))
	}
}

func readBody(r *http.Request) string {
	data, _ := io.ReadAll(r.Body)
	return string(data)
}
