package routing

import (
	"context"
	"sync"
	"time"

	"shelter-api/internal/geo"
	"shelter-api/internal/logger"
	"shelter-api/internal/metrics"
)

// 文档注释：提供方健康状态缓存
type status struct {
	healthy bool
	last    time.Time
	lastErr string
}

type entry struct {
	p  Provider
	st status
}

// 文档注释：提供方管理器
// 背景：负责注册、心跳与健康筛选；按注册顺序作为优先级，每次调用选择第一个健康的提供方。
// 约束：心跳周期默认 10s；心跳失败视为不健康直到下次心跳成功；单次调用失败不会切换到下一个提供方。
type Manager struct {
	mu         sync.RWMutex
	ps         []*entry
	hbInterval time.Duration
	hbTimeout  time.Duration
}

func NewManager() *Manager {
	return &Manager{hbInterval: 10 * time.Second, hbTimeout: 3 * time.Second}
}

// SetHeartbeatInterval 修改心跳周期，需在 Start 之前调用
func (m *Manager) SetHeartbeatInterval(d time.Duration) {
	if d > 0 {
		m.hbInterval = d
	}
}

// 文档注释：注册提供方
// 背景：默认设置为健康以便立即参与选择；同名重复注册替换原实例并保留其优先级位置。
func (m *Manager) Register(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &entry{p: p, st: status{healthy: true, last: time.Now()}}
	for i, old := range m.ps {
		if old.p.Name() == p.Name() {
			m.ps[i] = e
			logger.L().Info("provider_replaced", "name", p.Name())
			return
		}
	}
	m.ps = append(m.ps, e)
	logger.L().Info("provider_registered", "name", p.Name(), "priority", len(m.ps)-1)
}

// Select 返回优先级最高的健康提供方；没有时返回 nil
func (m *Manager) Select() Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.ps {
		if e.st.healthy {
			return e.p
		}
	}
	return nil
}

// ProviderStatus 对外暴露的健康状态
type ProviderStatus struct {
	Name      string    `json:"name"`
	Priority  int       `json:"priority"`
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

func (m *Manager) Statuses() []ProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ProviderStatus, 0, len(m.ps))
	for i, e := range m.ps {
		out = append(out, ProviderStatus{Name: e.p.Name(), Priority: i, Healthy: e.st.healthy, LastCheck: e.st.last, LastError: e.st.lastErr})
	}
	return out
}

func (m *Manager) Name() string { return "manager" }

// 文档注释：经当前选中的提供方计算路线
// 背景：记录调用指标；非法数值视为瞬时失败，不向上游暴露。
func (m *Manager) ComputeRoute(ctx context.Context, origin, dest geo.Coordinate) (RouteResult, error) {
	p := m.Select()
	if p == nil {
		return RouteResult{}, &ProviderError{Provider: m.Name(), Op: "select", Err: ErrNoProvider}
	}
	name := p.Name()
	t0 := time.Now()
	metrics.ProviderRequestsTotal.WithLabelValues(name).Inc()
	res, err := p.ComputeRoute(ctx, origin, dest)
	if err == nil {
		if verr := res.Validate(); verr != nil {
			err = &ProviderError{Provider: name, Op: "route", Err: verr}
		}
	}
	metrics.ProviderDurationMs.WithLabelValues(name).Observe(float64(time.Since(t0).Milliseconds()))
	if err != nil {
		kind := Classify(err)
		metrics.ProviderFailTotal.WithLabelValues(name, kind).Inc()
		logger.L().Debug("provider_route_fail", "name", name, "kind", kind, "err", err)
		return RouteResult{}, err
	}
	metrics.ProviderSuccessTotal.WithLabelValues(name).Inc()
	return res, nil
}

// Heartbeat 至少一个提供方健康即视为健康
func (m *Manager) Heartbeat(ctx context.Context) error {
	if m.Select() == nil {
		return &ProviderError{Provider: m.Name(), Op: "heartbeat", Err: ErrNoProvider}
	}
	return nil
}

// 文档注释：启动心跳循环
// 背景：周期性调用各提供方 Heartbeat 更新健康状态；在 ctx 取消时停止。
func (m *Manager) Start(ctx context.Context) {
	t := time.NewTicker(m.hbInterval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.CheckNow(ctx)
			}
		}
	}()
}

// CheckNow 立即执行一轮心跳；探测在锁外进行，避免阻塞选择路径
func (m *Manager) CheckNow(ctx context.Context) {
	m.mu.RLock()
	es := append([]*entry(nil), m.ps...)
	m.mu.RUnlock()
	results := make([]error, len(es))
	for i, e := range es {
		hctx, cancel := context.WithTimeout(ctx, m.hbTimeout)
		results[i] = e.p.Heartbeat(hctx)
		cancel()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range es {
		name := e.p.Name()
		if err := results[i]; err != nil {
			e.st = status{healthy: false, last: time.Now(), lastErr: err.Error()}
			logger.L().Debug("provider_heartbeat_fail", "name", name, "err", err)
			metrics.ProviderHeartbeatTotal.WithLabelValues(name, "fail").Inc()
		} else {
			e.st = status{healthy: true, last: time.Now()}
			logger.L().Debug("provider_heartbeat_ok", "name", name)
			metrics.ProviderHeartbeatTotal.WithLabelValues(name, "ok").Inc()
		}
	}
}
