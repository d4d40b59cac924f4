package api

import (
	"errors"
	"net/http"

	"github.com/cuemby/warden/pkg/host"
	"github.com/cuemby/warden/pkg/switcher"
	"github.com/gorilla/mux"
)

// IdleRequest reports the application activity state
type IdleRequest struct {
	State host.IdleState `json:"state"`
}

// NavigationResponse carries a pending navigation for a surface
type NavigationResponse struct {
	URL string `json:"url"`
}

// PromptAnswer resolves a confirmation prompt
type PromptAnswer struct {
	Accepted bool `json:"accepted"`
}

// PromptResult is the switch state after an answer
type PromptResult struct {
	State string `json:"state"`
}

// hostRoutes serves the companion extension. It reports surfaces and idle
// state, and drains what the engine queued for it.
func (s *Server) hostRoutes(r *mux.Router) {
	r.HandleFunc("/surfaces/{id}", s.handleReportSurface).Methods(http.MethodPut)
	r.HandleFunc("/surfaces/{id}", s.handleRemoveSurface).Methods(http.MethodDelete)
	r.HandleFunc("/idle", s.handleIdle).Methods(http.MethodPut)
	r.HandleFunc("/navigations/{id}", s.handleTakeNavigation).Methods(http.MethodGet)
	r.HandleFunc("/notifications", s.handleDrainNotifications).Methods(http.MethodGet)
	r.HandleFunc("/prompts", s.handleDrainPrompts).Methods(http.MethodGet)
	r.HandleFunc("/prompts/{id}", s.handleAnswerPrompt).Methods(http.MethodPost)
}

func (s *Server) handleReportSurface(w http.ResponseWriter, r *http.Request) {
	var surface host.Surface
	if err := decodeBody(w, r, &surface); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	surface.ID = mux.Vars(r)["id"]
	s.bridge.ReportSurface(surface)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveSurface(w http.ResponseWriter, r *http.Request) {
	s.bridge.RemoveSurface(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIdle(w http.ResponseWriter, r *http.Request) {
	var req IdleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	switch req.State {
	case host.IdleActive, host.IdleIdle, host.IdleLocked:
	default:
		writeError(w, http.StatusBadRequest, "unknown idle state "+string(req.State))
		return
	}
	s.bridge.SetIdle(req.State)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTakeNavigation(w http.ResponseWriter, r *http.Request) {
	url, ok := s.bridge.TakeNavigation(mux.Vars(r)["id"])
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, NavigationResponse{URL: url})
}

func (s *Server) handleDrainNotifications(w http.ResponseWriter, r *http.Request) {
	out := s.bridge.DrainNotifications()
	if out == nil {
		out = []host.Notification{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDrainPrompts(w http.ResponseWriter, r *http.Request) {
	out := s.bridge.DrainPrompts()
	if out == nil {
		out = []host.Prompt{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAnswerPrompt(w http.ResponseWriter, r *http.Request) {
	var req PromptAnswer
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	ctx, cancel := commandContext(r)
	defer cancel()

	state, err := s.engine.AnswerPrompt(ctx, mux.Vars(r)["id"], req.Accepted)
	if errors.Is(err, switcher.ErrUnknownPrompt) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PromptResult{State: state})
}
