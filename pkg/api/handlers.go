package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cuemby/warden/pkg/scheduler"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
	"github.com/gorilla/mux"
)

var (
	errBadRequest   = errors.New("bad request")
	errBodyTooLarge = errors.New("request body too large")
)

type errorResponse struct {
	Error string `json:"error"`
}

// ActionResponse answers the force endpoints
type ActionResponse struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// SurfaceResponse reports the managed surface binding
type SurfaceResponse struct {
	SurfaceID string `json:"surfaceId"`
	Bound     bool   `json:"bound"`
}

// StatusResponse is the full daemon status
type StatusResponse struct {
	Summary       types.Summary          `json:"summary"`
	Scheduler     scheduler.Status       `json:"scheduler"`
	Fallback      types.FallbackRuntime  `json:"fallback"`
	PendingWrites map[storage.Record]int `json:"pendingWrites,omitempty"`
}

// ChannelRequest adds a channel
type ChannelRequest struct {
	Name string `json:"name"`
}

// PriorityRequest moves a channel to a 1-based priority
type PriorityRequest struct {
	Priority int `json:"priority"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	return decodeStrict(body, v)
}

// readBody reads at most maxBodyBytes of the request body
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}
	return body, nil
}

func decodeStrict(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func commandContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), commandTimeout)
}

// errorStatus maps domain errors onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, types.ErrInvalidChannel),
		errors.Is(err, types.ErrInvalidPriority):
		return http.StatusBadRequest
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, types.ErrChannelNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrDuplicateChannel):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := commandContext(r)
	defer cancel()

	id, err := s.engine.ManagedSurfaceID(ctx)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SurfaceResponse{SurfaceID: id, Bound: id != ""})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := commandContext(r)
	defer cancel()

	ok, err := s.engine.ForcePollNow(ctx)
	s.writeAction(w, ok, err)
}

func (s *Server) handleReroll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := commandContext(r)
	defer cancel()

	ok, err := s.engine.ForceFallbackReroll(ctx)
	s.writeAction(w, ok, err)
}

// writeAction reports a forced action. A failure inside an accepted action
// is an upstream problem, not a problem with the request.
func (s *Server) writeAction(w http.ResponseWriter, ok bool, err error) {
	resp := ActionResponse{Accepted: ok}
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Error = err.Error()
	code := errorStatus(err)
	if code == http.StatusInternalServerError {
		code = http.StatusBadGateway
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rt, err := s.queue.Runtime()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Summary:       s.engine.Summary(),
		Scheduler:     s.engine.SchedulerStatus(),
		Fallback:      rt,
		PendingWrites: s.queue.Pending(),
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.Settings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handlePutSettings overlays the fields present in the body onto the stored
// settings and propagates the change to the engine
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	settings, err := s.store.UpdateSettings(func(st *types.Settings) error {
		return decodeStrict(body, st)
	})
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	ctx, cancel := commandContext(r)
	defer cancel()
	if err := s.engine.SettingsChanged(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Settings stored but not propagated")
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.store.Channels()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, channelList(channels))
}

func (s *Server) handleAddChannel(w http.ResponseWriter, r *http.Request) {
	var req ChannelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	now := s.now()
	channels, err := s.store.UpdateChannels(func(list []types.ChannelEntry) ([]types.ChannelEntry, error) {
		return types.AddChannel(list, req.Name, now)
	})
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, channelList(channels))
}

func (s *Server) handleRemoveChannel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	channels, err := s.store.UpdateChannels(func(list []types.ChannelEntry) ([]types.ChannelEntry, error) {
		return types.RemoveChannel(list, name)
	})
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, channelList(channels))
}

func (s *Server) handleMoveChannel(w http.ResponseWriter, r *http.Request) {
	var req PriorityRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	name := mux.Vars(r)["name"]
	channels, err := s.store.UpdateChannels(func(list []types.ChannelEntry) ([]types.ChannelEntry, error) {
		return types.MoveChannel(list, name, req.Priority)
	})
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, channelList(channels))
}

func channelList(channels []types.ChannelEntry) []types.ChannelEntry {
	if channels == nil {
		return []types.ChannelEntry{}
	}
	return channels
}

func (s *Server) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.queue.Analytics()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// handleResetAnalytics lands queued increments first so none survive the reset
func (s *Server) handleResetAnalytics(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.Flush(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.ResetAnalytics(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
