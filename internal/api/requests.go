package api

import (
	"net/http"
	"strings"

	"github.com/aatumaykin/nanoclaw/internal/logger"
)

func (s *Server) getRequests(w http.ResponseWriter) {
	requests, err := s.deps.Store.AllHelpRequests()
	if err != nil {
		s.logger.Error("failed to load help requests", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *Server) respondToRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	var body struct {
		Response string `json:"response"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	response := strings.TrimSpace(body.Response)
	if response == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "response is required"})
		return
	}

	existing, err := s.deps.Store.HelpRequestByID(requestID)
	if err != nil {
		s.logger.Error("failed to load help request", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Help request not found"})
		return
	}

	if err := s.deps.Store.RespondToHelpRequest(requestID, response); err != nil {
		s.logger.Error("failed to resolve help request", err,
			logger.Field{Key: "request_id", Value: requestID})
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}

	s.refreshDashboard()
	s.logger.Info("help request resolved via api",
		logger.Field{Key: "request_id", Value: requestID})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
