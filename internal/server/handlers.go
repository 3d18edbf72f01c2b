package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/yanachan-dev/homepage/pkg/store"
	"github.com/yanachan-dev/homepage/pkg/swcache"
	"github.com/yanachan-dev/homepage/pkg/toast"
)

// Status describes the cache controller.
type Status struct {
	State    string           `json:"state"`
	Active   string           `json:"active"`
	Manifest swcache.Manifest `json:"manifest"`
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBody))
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	if path := r.URL.Query().Get("path"); path != "" {
		res := s.store.Get(path)
		if !res.Exists() {
			writeError(w, http.StatusNotFound, errors.New("no value at "+path))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, res.Raw)
		return
	}
	writeJSON(w, http.StatusOK, s.store.GetState())
}

func (s *Server) patchState(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := store.ParsePatch(data)
	if err == nil {
		err = p.Validate()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if r.URL.Query().Has("silent") {
		s.store.SetState(p, store.Silent())
	} else {
		s.store.SetState(p)
	}
	writeJSON(w, http.StatusOK, s.store.GetState())
}

func (s *Server) resetState(w http.ResponseWriter, r *http.Request) {
	s.store.Reset()
	writeJSON(w, http.StatusOK, s.store.GetState())
}

func (s *Server) currentStatus() Status {
	return Status{
		State:    s.ctrl.State().String(),
		Active:   s.ctrl.ActiveVersion(),
		Manifest: s.ctrl.Manifest(),
	}
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentStatus())
}

func (s *Server) caches(w http.ResponseWriter, r *http.Request) {
	inv, err := s.ctrl.Inventory(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// lifecycleStatus maps a lifecycle error to an HTTP status.
func lifecycleStatus(err error) int {
	switch {
	case errors.Is(err, swcache.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, swcache.ErrInstallFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) install(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Install(r.Context()); err != nil {
		if errors.Is(err, swcache.ErrInstallFailed) {
			toast.Error(s.store, err.Error())
		}
		writeError(w, lifecycleStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.currentStatus())
}

func (s *Server) activate(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Activate(r.Context()); err != nil {
		writeError(w, lifecycleStatus(err), err)
		return
	}
	s.NotifyReload(s.ctrl.ActiveVersion())
	writeJSON(w, http.StatusOK, s.currentStatus())
}

func (s *Server) reinstall(w http.ResponseWriter, r *http.Request) {
	if s.re == nil {
		writeError(w, http.StatusNotImplemented, errors.New("no asset directory configured"))
		return
	}
	changed, err := s.re.Reinstall(r.Context())
	if err != nil {
		writeError(w, lifecycleStatus(err), err)
		return
	}
	if changed {
		s.NotifyReload(s.ctrl.ActiveVersion())
	}
	writeJSON(w, http.StatusOK, s.currentStatus())
}

func (s *Server) push(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch err := s.ctrl.Push(r.Context(), data); {
	case errors.Is(err, swcache.ErrNoClients):
		writeError(w, http.StatusServiceUnavailable, err)
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) click(w http.ResponseWriter, r *http.Request) {
	var n swcache.Notification
	data, err := readBody(r)
	if err == nil {
		err = json.Unmarshal(data, &n)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch err := s.ctrl.NotificationClick(r.Context(), n); {
	case errors.Is(err, swcache.ErrNoClients):
		writeError(w, http.StatusServiceUnavailable, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
