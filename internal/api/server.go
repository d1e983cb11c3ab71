package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"calsync/internal/domain"
	"calsync/internal/remote"
	"calsync/internal/store"
)

type Server struct {
	r    *chi.Mux
	repo store.Repository
}

func NewServer(repo store.Repository) http.Handler {
	return NewServerWithDebug(repo, false)
}

func NewServerWithDebug(repo store.Repository, enableDebug bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, repo: repo}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)

	r.Route("/v1/resources/{rid}", func(r chi.Router) {
		r.Get("/events", s.queryEvents)
		r.Post("/events", s.createEvent)
		r.Get("/events/{id}", s.getEvent)
		r.Put("/events/{id}/confirmation", s.confirm)
		r.Delete("/events/{id}/confirmation", s.unconfirm)
		r.Put("/events/{id}/preferences/{pref}", s.setPreference)
		r.Post("/labels", s.setLabels)
		r.Post("/batch", s.batch)
	})

	if enableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	n, err := s.repo.CountEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "calsync_up 1\ncalsync_events %d\n", n)
}

type eventsResp struct {
	Events []domain.Event `json:"events"`
}

func (s *Server) queryEvents(w http.ResponseWriter, r *http.Request) {
	rid := chi.URLParam(r, "rid")
	q := r.URL.Query()
	start, err := domain.ParseDay(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start", err.Error())
		return
	}
	end, err := domain.ParseDay(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end", err.Error())
		return
	}
	if end < start {
		writeError(w, http.StatusBadRequest, "invalid_range", "end is before start")
		return
	}
	var filter domain.Filter
	if raw := q.Get("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filter", err.Error())
			return
		}
	}

	events, err := s.repo.QueryEvents(r.Context(), rid, start.Time(time.UTC), (end + 1).Time(time.UTC))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	out := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if matches(ev, filter) {
			out = append(out, ev)
		}
	}
	writeJSON(w, http.StatusOK, eventsResp{Events: out})
}

func matches(ev domain.Event, f domain.Filter) bool {
	if label, ok := f["label"]; ok {
		found := false
		for _, l := range ev.Labels {
			if l == label {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if hidden, ok := f["hidden"]; ok && (hidden == "true") != ev.Hidden {
		return false
	}
	return true
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.repo.GetEvent(r.Context(), chi.URLParam(r, "rid"), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if ev.Start.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_body", "start is required")
		return
	}
	ev.ResourceID = chi.URLParam(r, "rid")
	created, err := s.repo.CreateEvent(r.Context(), ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	s.flag(w, r, func(rid, id string) error { return s.repo.SetConfirmed(r.Context(), rid, id, true) })
}

func (s *Server) unconfirm(w http.ResponseWriter, r *http.Request) {
	s.flag(w, r, func(rid, id string) error { return s.repo.SetConfirmed(r.Context(), rid, id, false) })
}

type preferenceReq struct {
	Value bool `json:"value"`
}

func (s *Server) setPreference(w http.ResponseWriter, r *http.Request) {
	var req preferenceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	switch chi.URLParam(r, "pref") {
	case "confirmation":
		s.flag(w, r, func(rid, id string) error { return s.repo.SetConfirmationPref(r.Context(), rid, id, req.Value) })
	case "feedback":
		s.flag(w, r, func(rid, id string) error { return s.repo.SetFeedbackPref(r.Context(), rid, id, req.Value) })
	default:
		writeError(w, http.StatusNotFound, "unknown_preference", chi.URLParam(r, "pref"))
	}
}

func (s *Server) flag(w http.ResponseWriter, r *http.Request, apply func(rid, id string) error) {
	if err := apply(chi.URLParam(r, "rid"), chi.URLParam(r, "id")); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setLabels(w http.ResponseWriter, r *http.Request) {
	var req remote.LabelBatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	changes := make([]store.LabelChange, 0, len(req.Set))
	for _, set := range req.Set {
		if strings.TrimSpace(set.ID) == "" {
			writeError(w, http.StatusBadRequest, "invalid_body", "id is required")
			return
		}
		changes = append(changes, store.LabelChange{ID: set.ID, Labels: set.Labels, Hidden: set.Hidden})
	}
	if err := s.repo.ApplyLabels(r.Context(), chi.URLParam(r, "rid"), changes); err != nil {
		s.storeError(w, err)
		return
	}
	log.Debug().Str("resource", chi.URLParam(r, "rid")).Int("set", len(changes)).Int("predict", len(req.Predict)).Msg("labels applied")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request) {
	var req remote.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	rid := chi.URLParam(r, "rid")
	resp := remote.BatchResponse{Results: make([]remote.BatchResult, 0, len(req.Ops))}
	for _, op := range req.Ops {
		var err error
		value := op.Value != nil && *op.Value
		switch op.Op {
		case remote.OpConfirm:
			err = s.repo.SetConfirmed(r.Context(), rid, op.EventID, true)
		case remote.OpUnconfirm:
			err = s.repo.SetConfirmed(r.Context(), rid, op.EventID, false)
		case remote.OpConfirmationPref:
			err = s.repo.SetConfirmationPref(r.Context(), rid, op.EventID, value)
		case remote.OpFeedbackPref:
			err = s.repo.SetFeedbackPref(r.Context(), rid, op.EventID, value)
		default:
			err = fmt.Errorf("unknown op %q", op.Op)
		}
		res := remote.BatchResult{EventID: op.EventID}
		if err != nil {
			res.Error = err.Error()
		}
		resp.Results = append(resp.Results, res)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal", err.Error())
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, map[string]string{"code": errCode, "message": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
