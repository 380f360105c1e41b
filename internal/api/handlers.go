package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"uninotifier/internal/dispatch"
	"uninotifier/internal/schedule"
	logx "uninotifier/pkg/logx"
)

const maxBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

type channelInfo struct {
	Alias      string   `json:"alias"`
	Mechanism  string   `json:"mechanism"`
	Family     string   `json:"family"`
	Voice      bool     `json:"voice"`
	Alternates []string `json:"alternates,omitempty"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (dispatch.Request, bool) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		status := http.StatusBadRequest
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorBody{Error: err.Error()})
		return dispatch.Request{}, false
	}
	req, err := dispatch.DecodeRequest(b)
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		s.log.Debug("rejected request", logx.Err(err))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return dispatch.Request{}, false
	}
	return req, true
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	// the fan-out outlives a client that hangs up
	rep := s.disp.Send(context.WithoutCancel(r.Context()), req)
	writeJSON(w, http.StatusAccepted, rep)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.disp.Plan(req))
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	out := []channelInfo{}
	if rt := s.disp.Runtime(); rt != nil {
		for _, alias := range rt.Registry.Aliases() {
			c, _ := rt.Registry.Lookup(alias)
			info := channelInfo{
				Alias:     alias,
				Mechanism: c.Mechanism.String(),
				Family:    c.Mechanism.Family.String(),
				Voice:     c.Voice,
			}
			for typ := range c.Alternates {
				info.Alternates = append(info.Alternates, typ)
			}
			sort.Strings(info.Alternates)
			out = append(out, info)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Entries())
}

func (s *Server) handleRunSchedule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rep, err := s.sched.Trigger(context.WithoutCancel(r.Context()), name)
	if errors.Is(err, schedule.ErrUnknownJob) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, rep)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
