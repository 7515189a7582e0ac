// 包 api：HTTP 接口层；查询最近避难所、单条路线、按 IP 估算位置以及持续跟踪会话
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"shelter-api/internal/aggregator"
	"shelter-api/internal/facility"
	"shelter-api/internal/geo"
	"shelter-api/internal/geoip"
	"shelter-api/internal/logger"
	"shelter-api/internal/metrics"
	"shelter-api/internal/routing"
)

const (
	maxK    = 50
	maxWait = 30 * time.Second
)

// Locator 按 IP 估算位置
type Locator interface {
	Locate(ip string) (geoip.Result, error)
}

// Options 接口层参数
type Options struct {
	K            int
	RouteTimeout time.Duration
	MaxInFlight  int
	DefaultWait  time.Duration
}

// Server 持有各处理器依赖
type Server struct {
	set      *facility.Set
	router   routing.Provider
	statuses func() []routing.ProviderStatus
	locator  Locator
	sessions *Sessions
	opts     Options
}

// NewServer 构建接口层；statuses、locator、sessions 可为 nil，对应接口返回 503
func NewServer(set *facility.Set, router routing.Provider, opts Options) *Server {
	if opts.K < 1 {
		opts.K = 5
	}
	if opts.DefaultWait <= 0 {
		opts.DefaultWait = 5 * time.Second
	}
	return &Server{set: set, router: router, opts: opts}
}

func (s *Server) WithStatuses(fn func() []routing.ProviderStatus) *Server {
	s.statuses = fn
	return s
}

func (s *Server) WithLocator(l Locator) *Server {
	s.locator = l
	return s
}

func (s *Server) WithSessions(ss *Sessions) *Server {
	s.sessions = ss
	return s
}

// AggregatorOptions 单次聚合与会话跟踪器共用的聚合参数
func (s *Server) AggregatorOptions() []aggregator.Option {
	return []aggregator.Option{
		aggregator.WithTimeout(s.opts.RouteTimeout),
		aggregator.WithMaxInFlight(s.opts.MaxInFlight),
	}
}

// 构建并返回 API 路由：在主入口挂载到 API_BASE 前缀
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", instrument("healthz", s.healthz)).Methods(http.MethodGet)
	r.HandleFunc("/categories", instrument("categories", s.categories)).Methods(http.MethodGet)
	r.HandleFunc("/shelters", instrument("shelters", s.shelters)).Methods(http.MethodGet)
	r.HandleFunc("/shelters/{id}", instrument("shelter", s.shelter)).Methods(http.MethodGet)
	r.HandleFunc("/nearest", instrument("nearest", s.nearest)).Methods(http.MethodGet)
	r.HandleFunc("/route", instrument("route", s.route)).Methods(http.MethodGet)
	r.HandleFunc("/providers", instrument("providers", s.providers)).Methods(http.MethodGet)
	r.HandleFunc("/locate", instrument("locate", s.locate)).Methods(http.MethodGet)
	r.HandleFunc("/sessions", instrument("session_create", s.createSession)).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", instrument("session_get", s.getSession)).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", instrument("session_delete", s.deleteSession)).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{id}/position", instrument("session_position", s.updatePosition)).Methods(http.MethodPut)
	r.HandleFunc("/sessions/{id}/filter", instrument("session_filter", s.updateFilter)).Methods(http.MethodPut)
	return r
}

func instrument(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.RequestsTotal.WithLabelValues(name).Inc()
		h(w, r)
		metrics.RequestDurationMs.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus 将领域错误映射为 HTTP 状态码
func errorStatus(err error) int {
	switch {
	case errors.Is(err, geo.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, routing.ErrUnreachable), errors.Is(err, geoip.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, routing.ErrNoProvider):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	g := s.set.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"generation": g.Seq,
		"facilities": len(g.Facilities),
	})
}

type categoryView struct {
	Slug  facility.Category `json:"slug"`
	Label string            `json:"label"`
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	cs := facility.Categories()
	out := make([]categoryView, 0, len(cs))
	for _, c := range cs {
		out = append(out, categoryView{Slug: c, Label: c.Label()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) shelters(w http.ResponseWriter, r *http.Request) {
	f, err := facility.ParseFilter(r.URL.Query()["category"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g := s.set.Current()
	out := make([]facility.Geolocated, 0, len(g.Facilities))
	for _, x := range g.Facilities {
		if f.Allows(x.Category()) {
			out = append(out, x)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generation": g.Seq,
		"loaded_at":  g.LoadedAt,
		"skipped":    g.Skipped,
		"count":      len(out),
		"shelters":   out,
	})
}

// shelter 按 ID 查询当前代际中的设施；刷新后被移除的设施返回 404
func (s *Server) shelter(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}
	f, ok := s.set.Lookup(facility.ID(id))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown shelter")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// candidateView 候选及其路线结果；路线尚未返回时 route 为空
type candidateView struct {
	Facility       facility.Geolocated `json:"facility"`
	DistanceMeters float64             `json:"distance_m"`
	Route          *aggregator.Outcome `json:"route,omitempty"`
}

type routesView struct {
	Query      geo.Coordinate   `json:"query"`
	Generation uint64           `json:"generation"`
	Round      uint64           `json:"round"`
	State      aggregator.State `json:"state"`
	Pending    int              `json:"pending"`
	Candidates []candidateView  `json:"candidates"`
}

// buildView 合并候选与快照；快照查询点不一致时（轮次已被取代）不附带路线
func buildView(q geo.Coordinate, gen uint64, cs facility.CandidateSet, snap aggregator.Snapshot) routesView {
	v := routesView{Query: q, Generation: gen, Round: snap.Round, State: snap.State, Candidates: make([]candidateView, 0, len(cs))}
	match := snap.Round != 0 && snap.Query == q
	for _, c := range cs {
		cv := candidateView{Facility: c.Facility, DistanceMeters: c.DistanceMeters}
		if match {
			if o, ok := snap.Outcomes[c.Facility.ID()]; ok {
				o := o
				cv.Route = &o
			}
		}
		if cv.Route == nil {
			v.Pending++
		}
		v.Candidates = append(v.Candidates, cv)
	}
	return v
}

func parseCoordinate(lat, lon string) (geo.Coordinate, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return geo.Coordinate{}, geo.ErrInvalidInput
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return geo.Coordinate{}, geo.ErrInvalidInput
	}
	return geo.NewCoordinate(la, lo)
}

func (s *Server) parseWait(r *http.Request) (time.Duration, bool) {
	v := r.URL.Query().Get("wait_ms")
	if v == "" {
		return s.opts.DefaultWait, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	d := time.Duration(n) * time.Millisecond
	if d > maxWait {
		d = maxWait
	}
	return d, true
}

// 文档注释：一次性最近避难所查询
// 背景：计算最近 K 个候选后启动一轮聚合，最多等待 wait_ms；超时返回部分结果（state=running）。
func (s *Server) nearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c, err := parseCoordinate(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "lat/lon required and must be valid coordinates")
		return
	}
	k := s.opts.K
	if v := q.Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxK {
			writeError(w, http.StatusBadRequest, "k must be between 1 and 50")
			return
		}
		k = n
	}
	f, err := facility.ParseFilter(q["category"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wait, ok := s.parseWait(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "wait_ms must be a non-negative integer")
		return
	}
	gen := s.set.Current()
	cs, err := facility.FindNearest(&c, gen.Facilities, k, f)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	agg := aggregator.New(s.router, s.AggregatorOptions()...)
	defer agg.Stop()
	id := agg.Start(r.Context(), c, cs)
	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	snap, err := agg.Wait(ctx, id)
	if err != nil && ctx.Err() == nil {
		logger.L().Error("nearest_wait_error", "err", err)
		writeError(w, http.StatusInternalServerError, "aggregation failed")
		return
	}
	writeJSON(w, http.StatusOK, buildView(c, gen.Seq, cs, snap))
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	from, err := geo.ParseLatLon(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, err := geo.ParseLatLon(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}
	res, err := s.router.ComputeRoute(r.Context(), from, to)
	if err != nil {
		writeError(w, errorStatus(err), routing.Classify(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"from": from, "to": to, "route": res})
}

func (s *Server) providers(w http.ResponseWriter, r *http.Request) {
	if s.statuses == nil {
		writeError(w, http.StatusServiceUnavailable, "provider status not available")
		return
	}
	writeJSON(w, http.StatusOK, s.statuses())
}

func (s *Server) locate(w http.ResponseWriter, r *http.Request) {
	if s.locator == nil {
		writeError(w, http.StatusServiceUnavailable, "geoip not configured")
		return
	}
	res, err := s.locator.Locate(getClientIP(r))
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusBadGateway {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
