package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"shelter-api/internal/facility"
	"shelter-api/internal/geo"
	"shelter-api/internal/locator"
	"shelter-api/internal/logger"
)

type positionBody struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (b positionBody) coordinate() (geo.Coordinate, error) {
	if b.Lat == nil || b.Lon == nil {
		return geo.Coordinate{}, geo.ErrInvalidInput
	}
	return geo.NewCoordinate(*b.Lat, *b.Lon)
}

type filterBody struct {
	Categories []string `json:"categories"`
}

type createBody struct {
	positionBody
	filterBody
}

type sessionView struct {
	ID     string              `json:"id"`
	Filter []facility.Category `json:"filter"`
	routesView
}

func viewSession(id string, t *locator.Tracker) sessionView {
	v := sessionView{ID: id, Filter: t.Filter().Categories()}
	if v.Filter == nil {
		v.Filter = []facility.Category{}
	}
	q := t.Query()
	if q == nil {
		v.routesView = routesView{State: t.Snapshot().State, Generation: t.Generation(), Candidates: []candidateView{}}
		return v
	}
	v.routesView = buildView(*q, t.Generation(), t.Candidates(), t.Snapshot())
	return v
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, *locator.Tracker, bool) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions disabled")
		return "", nil, false
	}
	id := mux.Vars(r)["id"]
	t, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return "", nil, false
	}
	return id, t, true
}

// 文档注释：创建跟踪会话
// 背景：请求体可选携带初始位置与类别过滤；两者都合法时才创建，避免留下半初始化的会话。
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions disabled")
		return
	}
	var body createBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	f, err := facility.ParseFilter(body.Categories)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var pos *geo.Coordinate
	if body.Lat != nil || body.Lon != nil {
		c, err := body.positionBody.coordinate()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid position")
			return
		}
		pos = &c
	}
	id, t, err := s.sessions.Create()
	if err != nil {
		logger.L().Error("session_create_error", "err", err)
		writeError(w, http.StatusInternalServerError, "cannot create session")
		return
	}
	if len(body.Categories) > 0 {
		t.SetFilter(f)
	}
	if pos != nil {
		_ = t.UpdatePosition(*pos)
	}
	writeJSON(w, http.StatusCreated, viewSession(id, t))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, t, ok := s.session(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("wait_ms") != "" {
		wait, ok := s.parseWait(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "wait_ms must be a non-negative integer")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		_, _ = t.Wait(ctx)
	}
	writeJSON(w, http.StatusOK, viewSession(id, t))
}

func (s *Server) updatePosition(w http.ResponseWriter, r *http.Request) {
	id, t, ok := s.session(w, r)
	if !ok {
		return
	}
	var body positionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := body.coordinate()
	if err == nil {
		err = t.UpdatePosition(c)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid position")
		return
	}
	writeJSON(w, http.StatusOK, viewSession(id, t))
}

func (s *Server) updateFilter(w http.ResponseWriter, r *http.Request) {
	id, t, ok := s.session(w, r)
	if !ok {
		return
	}
	var body filterBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	f, err := facility.ParseFilter(body.Categories)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t.SetFilter(f)
	writeJSON(w, http.StatusOK, viewSession(id, t))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions disabled")
		return
	}
	if !s.sessions.Delete(mux.Vars(r)["id"]) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
