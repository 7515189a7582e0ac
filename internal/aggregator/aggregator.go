// 包 aggregator：按轮次并发计算每个候选设施的步行路线，合并为一致的快照并处理轮次取代
package aggregator

import (
	"context"
	"errors"
	"sync"
	"time"

	"shelter-api/internal/facility"
	"shelter-api/internal/geo"
	"shelter-api/internal/logger"
	"shelter-api/internal/metrics"
	"shelter-api/internal/routing"
)

// RouteCostProvider 聚合所需的最小路由能力；routing.Provider 及其装饰器均满足
type RouteCostProvider interface {
	ComputeRoute(ctx context.Context, origin, dest geo.Coordinate) (routing.RouteResult, error)
}

// Observer 快照观察者；在独立的派发协程中按变更顺序调用
type Observer func(Snapshot)

var (
	// ErrUnknownRound 轮次不是当前轮次（已被取代且不再保留）
	ErrUnknownRound = errors.New("unknown round")
	// ErrStopped 聚合器已停止
	ErrStopped = errors.New("aggregator stopped")
)

type round struct {
	id       uint64
	query    geo.Coordinate
	cands    []facility.Candidate
	ids      []facility.ID
	state    State
	outcomes map[facility.ID]Outcome
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option 聚合器配置项
type Option func(*Aggregator)

// WithTimeout 单个候选的路由超时；超时记为 provider_error
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

// WithMaxInFlight 同时进行的路由调用上限；<=0 不限
func WithMaxInFlight(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.sem = make(chan struct{}, n)
		}
	}
}

// 文档注释：路线聚合器
// 背景：每轮为每个候选启动一个协程调用路由提供方，结果在互斥锁下合并；
// “是否仍为当前轮次”的检查与合并在同一把锁内完成，被取代轮次的迟到结果直接丢弃。
// 约束：同一轮内结果只增不改；单个候选失败不影响其他候选与轮次完成；不重试。
// 观察者在派发协程中调用，可安全回调 Snapshot 等方法。
type Aggregator struct {
	provider RouteCostProvider
	timeout  time.Duration
	sem      chan struct{}

	mu        sync.Mutex
	cur       *round
	seq       uint64
	observers map[int]Observer
	nextObs   int
	queue     []Snapshot
	stopped   bool
	wg        sync.WaitGroup

	wake     chan struct{}
	quit     chan struct{}
	dispDone chan struct{}
}

func New(p RouteCostProvider, opts ...Option) *Aggregator {
	a := &Aggregator{
		provider:  p,
		observers: make(map[int]Observer),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		dispDone:  make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	go a.dispatch()
	return a
}

// 文档注释：开始新一轮聚合
// 背景：若上一轮仍在进行，先标记为 Superseded 并取消其上下文（正在进行的 HTTP 请求随之中止）。
// 约束：重复 ID 的候选只保留首个；空候选集立即完成。返回轮次号，停止后返回 0。
func (a *Aggregator) Start(ctx context.Context, query geo.Coordinate, cs facility.CandidateSet) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return 0
	}
	a.retireLocked()
	a.seq++
	rctx, cancel := context.WithCancel(ctx)
	r := &round{
		id:       a.seq,
		query:    query,
		state:    StateRunning,
		outcomes: make(map[facility.ID]Outcome, len(cs)),
		ctx:      rctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	seen := make(map[facility.ID]struct{}, len(cs))
	for _, c := range cs {
		id := c.Facility.ID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		r.cands = append(r.cands, c)
		r.ids = append(r.ids, id)
	}
	a.cur = r
	logger.L().Debug("round_started", "round", r.id, "query", query.String(), "candidates", len(r.cands))
	a.enqueueLocked(r.snapshot())
	if len(r.cands) == 0 {
		a.finishLocked(r, StateCompleted)
		return r.id
	}
	a.wg.Add(len(r.cands))
	for _, c := range r.cands {
		go a.run(r, c)
	}
	return r.id
}

// retireLocked 取代或释放当前轮次；调用方持有 a.mu
func (a *Aggregator) retireLocked() {
	r := a.cur
	if r == nil {
		return
	}
	if r.state == StateRunning {
		a.finishLocked(r, StateSuperseded)
		logger.L().Debug("round_superseded", "round", r.id, "pending", len(r.cands)-len(r.outcomes))
		return
	}
	r.cancel()
}

// finishLocked 进入终态、取消上下文并通知
func (a *Aggregator) finishLocked(r *round, st State) {
	r.state = st
	r.cancel()
	close(r.done)
	metrics.RoundsTotal.WithLabelValues(st.String()).Inc()
	a.enqueueLocked(r.snapshot())
}

func (a *Aggregator) run(r *round, c facility.Candidate) {
	defer a.wg.Done()
	id := c.Facility.ID()
	if a.sem != nil {
		select {
		case a.sem <- struct{}{}:
			defer func() { <-a.sem }()
		case <-r.ctx.Done():
			a.merge(r, id, failure(FailureProvider, r.ctx.Err()))
			return
		}
	}
	ctx := r.ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	res, err := a.provider.ComputeRoute(ctx, r.query, c.Facility.Coordinate())
	a.merge(r, id, toOutcome(res, err))
}

func toOutcome(res routing.RouteResult, err error) Outcome {
	if err != nil {
		if errors.Is(err, routing.ErrUnreachable) {
			return failure(FailureUnreachable, err)
		}
		return failure(FailureProvider, err)
	}
	if verr := res.Validate(); verr != nil {
		return failure(FailureProvider, verr)
	}
	return Outcome{Result: &res}
}

func failure(kind FailureKind, err error) Outcome {
	o := Outcome{Failure: kind}
	if err != nil {
		o.Detail = err.Error()
	}
	return o
}

// 文档注释：合并单个候选结果
// 约束：检查与写入在同一把锁内；非当前轮次或已终止的轮次结果计入迟到指标后丢弃；已有结果不覆盖。
func (a *Aggregator) merge(r *round, id facility.ID, o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur != r || r.state != StateRunning {
		metrics.LateResultsTotal.Inc()
		return
	}
	if _, exists := r.outcomes[id]; exists {
		return
	}
	r.outcomes[id] = o
	kind := "ok"
	if !o.OK() {
		kind = string(o.Failure)
	}
	metrics.OutcomesTotal.WithLabelValues(kind).Inc()
	if len(r.outcomes) == len(r.cands) {
		a.finishLocked(r, StateCompleted)
		logger.L().Debug("round_completed", "round", r.id, "candidates", len(r.cands))
		return
	}
	a.enqueueLocked(r.snapshot())
}

// Snapshot 当前轮次快照；尚未开始任何轮次时返回 Idle
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur == nil {
		return Snapshot{State: StateIdle, Outcomes: map[facility.ID]Outcome{}}
	}
	return a.cur.snapshot()
}

// 文档注释：等待指定轮次结束
// 返回：该轮次终态快照（Completed 或 Superseded）；ctx 先结束时返回当时的部分快照与 ctx 错误；
// 轮次已不是当前轮次时返回 ErrUnknownRound。
func (a *Aggregator) Wait(ctx context.Context, id uint64) (Snapshot, error) {
	a.mu.Lock()
	r := a.cur
	if r == nil || r.id != id {
		a.mu.Unlock()
		return Snapshot{}, ErrUnknownRound
	}
	a.mu.Unlock()
	select {
	case <-r.done:
	case <-ctx.Done():
		a.mu.Lock()
		defer a.mu.Unlock()
		return r.snapshot(), ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return r.snapshot(), nil
}

// Subscribe 注册观察者，返回取消函数
func (a *Aggregator) Subscribe(fn Observer) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextObs
	a.nextObs++
	a.observers[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.observers, id)
	}
}

func (a *Aggregator) enqueueLocked(s Snapshot) {
	a.queue = append(a.queue, s)
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// dispatch 单协程按入队顺序派发快照
func (a *Aggregator) dispatch() {
	defer close(a.dispDone)
	for {
		select {
		case <-a.wake:
			a.drain()
		case <-a.quit:
			a.drain()
			return
		}
	}
}

func (a *Aggregator) drain() {
	for {
		a.mu.Lock()
		q := a.queue
		a.queue = nil
		obs := make([]Observer, 0, len(a.observers))
		for i := 0; i < a.nextObs; i++ {
			if fn, ok := a.observers[i]; ok {
				obs = append(obs, fn)
			}
		}
		a.mu.Unlock()
		if len(q) == 0 {
			return
		}
		for _, s := range q {
			for _, fn := range obs {
				fn(s)
			}
		}
	}
}

// 文档注释：停止聚合器
// 背景：取代当前轮次，等待所有路由协程退出，派发剩余通知后返回；可重复调用。
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		<-a.dispDone
		return
	}
	a.stopped = true
	a.retireLocked()
	a.mu.Unlock()
	a.wg.Wait()
	close(a.quit)
	<-a.dispDone
}
