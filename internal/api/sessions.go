package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"shelter-api/internal/locator"
	"shelter-api/internal/logger"
	"shelter-api/internal/metrics"
)

// TrackerFactory 为新会话创建跟踪器
type TrackerFactory func() (*locator.Tracker, error)

type session struct {
	t    *locator.Tracker
	seen time.Time
}

// 文档注释：跟踪会话注册表
// 背景：每个客户端会话持有一个跟踪器（各自的查询点、过滤与聚合轮次）；空闲超过 ttl 的会话由清理协程关闭。
// 约束：跟踪器的 Close 与 Refresh 在锁外调用。
type Sessions struct {
	ttl     time.Duration
	factory TrackerFactory
	now     func() time.Time

	mu sync.Mutex
	m  map[string]*session
}

func NewSessions(ttl time.Duration, factory TrackerFactory) *Sessions {
	return &Sessions{ttl: ttl, factory: factory, now: time.Now, m: make(map[string]*session)}
}

// Create 新建会话并返回其 ID
func (s *Sessions) Create() (string, *locator.Tracker, error) {
	t, err := s.factory()
	if err != nil {
		return "", nil, err
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.m[id] = &session{t: t, seen: s.now()}
	n := len(s.m)
	s.mu.Unlock()
	metrics.SessionsActive.Set(float64(n))
	logger.L().Debug("session_created", "id", id, "active", n)
	return id, t, nil
}

// Get 查找会话并刷新其活跃时间
func (s *Sessions) Get(id string) (*locator.Tracker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.m[id]
	if !ok {
		return nil, false
	}
	ss.seen = s.now()
	return ss.t, true
}

// Delete 关闭并移除会话
func (s *Sessions) Delete(id string) bool {
	s.mu.Lock()
	ss, ok := s.m[id]
	delete(s.m, id)
	n := len(s.m)
	s.mu.Unlock()
	if !ok {
		return false
	}
	ss.t.Close()
	metrics.SessionsActive.Set(float64(n))
	logger.L().Debug("session_deleted", "id", id, "active", n)
	return true
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// RefreshAll 设施代际替换后让所有会话重算候选
func (s *Sessions) RefreshAll() {
	s.mu.Lock()
	ts := make([]*locator.Tracker, 0, len(s.m))
	for _, ss := range s.m {
		ts = append(ts, ss.t)
	}
	s.mu.Unlock()
	for _, t := range ts {
		t.Refresh()
	}
}

// Expire 关闭空闲超时的会话，返回关闭数量
func (s *Sessions) Expire() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)
	var idle []*locator.Tracker
	s.mu.Lock()
	for id, ss := range s.m {
		if ss.seen.Before(cutoff) {
			idle = append(idle, ss.t)
			delete(s.m, id)
		}
	}
	n := len(s.m)
	s.mu.Unlock()
	for _, t := range idle {
		t.Close()
	}
	if len(idle) > 0 {
		metrics.SessionsActive.Set(float64(n))
		logger.L().Info("sessions_expired", "count", len(idle), "active", n)
	}
	return len(idle)
}

// StartJanitor 周期清理空闲会话，ctx 结束时关闭全部会话
func (s *Sessions) StartJanitor(ctx context.Context, every time.Duration) {
	go func() {
		tk := time.NewTicker(every)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				s.CloseAll()
				return
			case <-tk.C:
				s.Expire()
			}
		}
	}()
}

// CloseAll 关闭全部会话
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	all := s.m
	s.m = make(map[string]*session)
	s.mu.Unlock()
	for _, ss := range all {
		ss.t.Close()
	}
	metrics.SessionsActive.Set(0)
}
